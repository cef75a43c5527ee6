package state

import (
	"fmt"

	"equitydesk/engine/library"
	"golang.org/x/exp/slices"
)

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func (tx *Tx) Schedule(id library.ScheduleID) (VestingSchedule, error) {
	if r, ok := tx.schedules.get(tx.s, id); ok {
		return r, nil
	}
	return VestingSchedule{}, notFound("vesting schedule", id)
}

func (tx *Tx) InsertSchedule(r VestingSchedule) error {
	return tx.schedules.insert(tx.s, r.ID, r)
}

func (tx *Tx) Grant(id library.GrantID) (EquityGrant, error) {
	if r, ok := tx.grants.get(tx.s, id); ok {
		return r, nil
	}
	return EquityGrant{}, notFound("equity grant", id)
}

func (tx *Tx) InsertGrant(r EquityGrant) error {
	return tx.grants.insert(tx.s, r.ID, r)
}

func (tx *Tx) PutGrant(r EquityGrant) {
	tx.grants.put(tx.s, r.ID, r)
}

func (tx *Tx) Grants(keep func(EquityGrant) bool) []EquityGrant {
	return tx.grants.list(tx.s, keep)
}

func (tx *Tx) GrantsForInvestor(investor library.InvestorID) []EquityGrant {
	return tx.Grants(func(g EquityGrant) bool { return g.InvestorID == investor })
}

func (tx *Tx) Event(id library.EventID) (VestingEvent, error) {
	if r, ok := tx.events.get(tx.s, id); ok {
		return r, nil
	}
	return VestingEvent{}, notFound("vesting event", id)
}

func (tx *Tx) InsertEvent(r VestingEvent) error {
	return tx.events.insert(tx.s, r.ID, r)
}

func (tx *Tx) PutEvent(r VestingEvent) {
	tx.events.put(tx.s, r.ID, r)
}

func (tx *Tx) Events(keep func(VestingEvent) bool) []VestingEvent {
	return tx.events.list(tx.s, keep)
}

// EventsForGrant returns the grant's events ordered by vesting date.
func (tx *Tx) EventsForGrant(grant library.GrantID) []VestingEvent {
	events := tx.events.list(tx.s, func(e VestingEvent) bool { return e.GrantID == grant })
	slices.SortStableFunc(events, func(a, b VestingEvent) bool {
		return a.VestingDate.Before(b.VestingDate)
	})
	return events
}

func (tx *Tx) InsertTransaction(r EquityGrantTransaction) error {
	return tx.transactions.insert(tx.s, r.ID, r)
}

func (tx *Tx) TransactionsForGrant(grant library.GrantID) []EquityGrantTransaction {
	rows := tx.transactions.list(tx.s, func(t EquityGrantTransaction) bool { return t.GrantID == grant })
	slices.SortStableFunc(rows, func(a, b EquityGrantTransaction) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return rows
}

func (tx *Tx) Holding(id library.HoldingID) (ShareHolding, error) {
	if r, ok := tx.holdings.get(tx.s, id); ok {
		return r, nil
	}
	return ShareHolding{}, notFound("share holding", id)
}

func (tx *Tx) InsertHolding(r ShareHolding) error {
	return tx.holdings.insert(tx.s, r.ID, r)
}

func (tx *Tx) PutHolding(r ShareHolding) {
	tx.holdings.put(tx.s, r.ID, r)
}

func (tx *Tx) HoldingsForInvestor(investor library.InvestorID) []ShareHolding {
	return tx.holdings.list(tx.s, func(h ShareHolding) bool { return h.InvestorID == investor })
}

func (tx *Tx) Company(id library.CompanyID) (Company, error) {
	if r, ok := tx.companies.get(tx.s, id); ok {
		return r, nil
	}
	return Company{}, notFound("company", id)
}

func (tx *Tx) InsertCompany(r Company) error {
	return tx.companies.insert(tx.s, r.ID, r)
}

func (tx *Tx) PutCompany(r Company) {
	tx.companies.put(tx.s, r.ID, r)
}

func (tx *Tx) OptionPool(id library.OptionPoolID) (OptionPool, error) {
	if r, ok := tx.pools.get(tx.s, id); ok {
		return r, nil
	}
	return OptionPool{}, notFound("option pool", id)
}

func (tx *Tx) InsertOptionPool(r OptionPool) error {
	return tx.pools.insert(tx.s, r.ID, r)
}

func (tx *Tx) PutOptionPool(r OptionPool) {
	tx.pools.put(tx.s, r.ID, r)
}

func (tx *Tx) Offer(id library.TenderOfferID) (TenderOffer, error) {
	if r, ok := tx.offers.get(tx.s, id); ok {
		return r, nil
	}
	return TenderOffer{}, notFound("tender offer", id)
}

func (tx *Tx) InsertOffer(r TenderOffer) error {
	return tx.offers.insert(tx.s, r.ID, r)
}

func (tx *Tx) PutOffer(r TenderOffer) {
	tx.offers.put(tx.s, r.ID, r)
}

func (tx *Tx) Offers(keep func(TenderOffer) bool) []TenderOffer {
	return tx.offers.list(tx.s, keep)
}

func (tx *Tx) InsertBid(r TenderOfferBid) error {
	return tx.bids.insert(tx.s, r.ID, r)
}

func (tx *Tx) PutBid(r TenderOfferBid) {
	tx.bids.put(tx.s, r.ID, r)
}

// BidsForOffer returns the offer's bids in the order they were placed.
func (tx *Tx) BidsForOffer(offer library.TenderOfferID) []TenderOfferBid {
	bids := tx.bids.list(tx.s, func(b TenderOfferBid) bool { return b.TenderOfferID == offer })
	slices.SortStableFunc(bids, func(a, b TenderOfferBid) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return bids
}

func (tx *Tx) Round(id library.RoundID) (EquityBuybackRound, error) {
	if r, ok := tx.rounds.get(tx.s, id); ok {
		return r, nil
	}
	return EquityBuybackRound{}, notFound("buyback round", id)
}

func (tx *Tx) InsertRound(r EquityBuybackRound) error {
	return tx.rounds.insert(tx.s, r.ID, r)
}

func (tx *Tx) PutRound(r EquityBuybackRound) {
	tx.rounds.put(tx.s, r.ID, r)
}

func (tx *Tx) Rounds(keep func(EquityBuybackRound) bool) []EquityBuybackRound {
	return tx.rounds.list(tx.s, keep)
}

// RoundForOffer returns the round settled from offer, if one exists.
func (tx *Tx) RoundForOffer(offer library.TenderOfferID) (EquityBuybackRound, bool) {
	rounds := tx.Rounds(func(r EquityBuybackRound) bool { return r.TenderOfferID == offer })
	if len(rounds) == 0 {
		return EquityBuybackRound{}, false
	}
	return rounds[0], true
}

func (tx *Tx) InsertBuyback(r EquityBuyback) error {
	return tx.buybacks.insert(tx.s, r.ID, r)
}

func (tx *Tx) BuybacksForRound(round library.RoundID) []EquityBuyback {
	rows := tx.buybacks.list(tx.s, func(b EquityBuyback) bool { return b.RoundID == round })
	slices.SortFunc(rows, func(a, b EquityBuyback) bool {
		return a.Sequence < b.Sequence
	})
	return rows
}
