package tender

import (
	"context"
	"fmt"
	"time"

	"equitydesk/engine/library"
	"equitydesk/state"
	"golang.org/x/exp/slices"
)

// Clearing solves closed tender offers and records the result on the offer and its bids.
type Clearing struct {
	store    *state.Store
	attempts int
	backoff  time.Duration
}

func NewClearing(store *state.Store, attempts int, backoff time.Duration) *Clearing {
	return &Clearing{store: store, attempts: attempts, backoff: backoff}
}

// Settle solves the offer once its window has closed and writes acceptedShares on every
// bid and the accepted price on the offer. An offer that was already solved is returned
// as recorded. A nil solution with a nil error means nothing clears, which includes an
// offer still open for bids; that case writes nothing.
func (c *Clearing) Settle(ctx context.Context, offerID library.TenderOfferID, now time.Time) (*Solution, error) {
	var solution *Solution
	var open bool
	err := c.store.UpdateWithRetry(ctx, c.attempts, c.backoff, func(tx *state.Tx) error {
		solution, open = nil, false
		tx.Lock(state.OfferKey(offerID))
		offer, err := tx.Offer(offerID)
		if err != nil {
			return err
		}
		if !offer.Closed(now) {
			open = true
			return nil
		}
		bids := tx.BidsForOffer(offerID)
		if offer.SolvedAt != nil {
			solution = recorded(offer, bids)
			return nil
		}
		solution = SolveEquilibrium(Input{
			Bids:             bids,
			Availability:     SnapshotAvailability(tx, offer.CompanyID, bids),
			TotalShares:      offer.NumberOfShares,
			TotalAmountCents: offer.TotalAmountInCents,
		})
		for _, b := range bids {
			if b.AcceptedShares != 0 {
				b.AcceptedShares = 0
				tx.PutBid(b)
			}
		}
		if solution != nil {
			for _, b := range acceptBids(bids, solution) {
				tx.PutBid(b)
			}
			price := solution.PriceCents
			offer.AcceptedPriceCents = &price
		}
		offer.SolvedAt = &now
		tx.PutOffer(offer)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("settling tender offer %s: %w", offerID, err)
	}
	switch {
	case open:
		library.LogCLI(fmt.Sprintf("tender offer %s is still open for bids, not settling", offerID), 4)
	case solution == nil:
		library.LogCLI(fmt.Sprintf("tender offer %s: no clearing price", offerID), 4)
	default:
		library.LogCLI(fmt.Sprintf("tender offer %s clears at %d cents for %d shares", offerID, solution.PriceCents, solution.TotalShares), 4)
	}
	return solution, nil
}

// acceptBids hands each investor's allocation per class to their eligible bids, cheapest
// first and then in the order they were placed.
func acceptBids(bids []state.TenderOfferBid, solution *Solution) []state.TenderOfferBid {
	eligible := make([]state.TenderOfferBid, 0, len(bids))
	for _, b := range bids {
		if b.SharePriceCents > 0 && b.SharePriceCents <= solution.PriceCents {
			eligible = append(eligible, b)
		}
	}
	slices.SortStableFunc(eligible, func(a, b state.TenderOfferBid) bool {
		return a.SharePriceCents < b.SharePriceCents
	})
	remaining := make(Allocation, len(solution.Allocation))
	for investor, classes := range solution.Allocation {
		remaining[investor] = make(map[library.ShareClass]int64, len(classes))
		for class, n := range classes {
			remaining[investor][class] = n
		}
	}
	var out []state.TenderOfferBid
	for _, b := range eligible {
		left := remaining[b.CompanyInvestorID][b.ShareClass]
		if left <= 0 {
			continue
		}
		take := b.NumberOfShares
		if take > left {
			take = left
		}
		remaining[b.CompanyInvestorID][b.ShareClass] -= take
		b.AcceptedShares = take
		out = append(out, b)
	}
	return out
}

func recorded(offer state.TenderOffer, bids []state.TenderOfferBid) *Solution {
	if offer.AcceptedPriceCents == nil {
		return nil
	}
	s := &Solution{PriceCents: *offer.AcceptedPriceCents, Allocation: make(Allocation)}
	for _, b := range bids {
		if b.AcceptedShares == 0 {
			continue
		}
		if s.Allocation[b.CompanyInvestorID] == nil {
			s.Allocation[b.CompanyInvestorID] = make(map[library.ShareClass]int64)
		}
		s.Allocation[b.CompanyInvestorID][b.ShareClass] += b.AcceptedShares
		s.TotalShares += b.AcceptedShares
	}
	s.TotalAmountCents = s.TotalShares * s.PriceCents
	return s
}
