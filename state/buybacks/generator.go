package buybacks

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"equitydesk/engine/library"
	"equitydesk/state"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Generator turns a solved tender offer into a buyback round drawn from concrete lots.
type Generator struct {
	store    *state.Store
	attempts int
	backoff  time.Duration
}

func NewGenerator(store *state.Store, attempts int, backoff time.Duration) *Generator {
	return &Generator{store: store, attempts: attempts, backoff: backoff}
}

// RoundID is the ID of the single round an offer settles into.
func RoundID(offerID library.TenderOfferID) library.RoundID {
	return library.DeterministicID("buyback-round", offerID)
}

// Generate creates the offer's buyback round and its buybacks in one transaction. If the
// offer already has a round it is returned unchanged.
func (g *Generator) Generate(ctx context.Context, offerID library.TenderOfferID, now time.Time) (state.EquityBuybackRound, error) {
	var round state.EquityBuybackRound
	var created bool
	err := g.store.UpdateWithRetry(ctx, g.attempts, g.backoff, func(tx *state.Tx) error {
		created = false
		offer, err := tx.Offer(offerID)
		if err != nil {
			return err
		}
		needed := acceptedByInvestor(tx.BidsForOffer(offerID))
		tx.Lock(append(securityKeys(tx, offer.CompanyID, needed), state.OfferKey(offerID))...)
		// reread under the lock
		if offer, err = tx.Offer(offerID); err != nil {
			return err
		}
		if existing, ok := tx.RoundForOffer(offerID); ok {
			round = existing
			return nil
		}
		if offer.AcceptedPriceCents == nil {
			return fmt.Errorf("tender offer %s: %w", offerID, ErrNoAcceptedPrice)
		}
		price := *offer.AcceptedPriceCents
		needed = acceptedByInvestor(tx.BidsForOffer(offerID))

		round = state.EquityBuybackRound{
			ID:            RoundID(offerID),
			CompanyID:     offer.CompanyID,
			TenderOfferID: offerID,
			Status:        state.RoundIssued,
			IssuedAt:      now,
		}
		investors := maps.Keys(needed)
		slices.Sort(investors)
		sequence := 0
		for _, investor := range investors {
			classes := maps.Keys(needed[investor])
			slices.Sort(classes)
			for _, class := range classes {
				want := needed[investor][class]
				round.NumberOfShares += want
				var lots []lot
				if class == state.VestedSharesClass {
					lots = grantLots(tx, offer.CompanyID, investor)
				} else {
					lots = holdingLots(tx, offer.CompanyID, investor, class)
				}
				for _, l := range lots {
					if want == 0 {
						break
					}
					n := l.available
					if n > want {
						n = want
					}
					b := state.EquityBuyback{
						ID:                 library.DeterministicID(round.ID, "buyback", strconv.Itoa(sequence)),
						RoundID:            round.ID,
						Sequence:           sequence,
						CompanyID:          offer.CompanyID,
						InvestorID:         investor,
						Security:           l.ref,
						ShareClass:         class,
						NumberOfShares:     n,
						ExercisePriceCents: l.exercisePriceCents,
						SharePriceCents:    price,
						TotalAmountCents:   n * (price - l.exercisePriceCents),
						CreatedAt:          now,
					}
					if err := tx.InsertBuyback(b); err != nil {
						return err
					}
					sequence++
					want -= n
				}
				if want > 0 {
					return fmt.Errorf("investor %s is short %d %s shares for tender offer %s: %w",
						investor, want, class, offerID, ErrInsufficientLots)
				}
			}
		}
		round.NumberOfShareholders = int64(len(investors))
		for _, b := range tx.BuybacksForRound(round.ID) {
			round.TotalAmountCents += b.TotalAmountCents
		}
		if err := tx.InsertRound(round); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return state.EquityBuybackRound{}, fmt.Errorf("generating buybacks for tender offer %s: %w", offerID, err)
	}
	if created {
		library.LogCLI(fmt.Sprintf("buyback round %s issued: %d shares from %d shareholders for %d cents",
			round.ID, round.NumberOfShares, round.NumberOfShareholders, round.TotalAmountCents), 4)
	}
	return round, nil
}

func acceptedByInvestor(bids []state.TenderOfferBid) map[library.InvestorID]map[library.ShareClass]int64 {
	out := make(map[library.InvestorID]map[library.ShareClass]int64)
	for _, b := range bids {
		if b.AcceptedShares <= 0 {
			continue
		}
		if out[b.CompanyInvestorID] == nil {
			out[b.CompanyInvestorID] = make(map[library.ShareClass]int64)
		}
		out[b.CompanyInvestorID][b.ShareClass] += b.AcceptedShares
	}
	return out
}

// securityKeys are the row locks for every lot the accepted investors could be drawn from.
func securityKeys(tx *state.Tx, company library.CompanyID, needed map[library.InvestorID]map[library.ShareClass]int64) []string {
	var keys []string
	for investor := range needed {
		for _, g := range tx.GrantsForInvestor(investor) {
			if g.CompanyID == company {
				keys = append(keys, state.GrantKey(g.ID))
			}
		}
		for _, h := range tx.HoldingsForInvestor(investor) {
			if h.CompanyID == company {
				keys = append(keys, state.HoldingKey(h.ID))
			}
		}
	}
	return keys
}

// FinalizeRound moves an issued round to finalized. Finalized and applied rounds are
// returned unchanged.
func (g *Generator) FinalizeRound(ctx context.Context, roundID library.RoundID, now time.Time) (state.EquityBuybackRound, error) {
	var round state.EquityBuybackRound
	err := g.store.UpdateWithRetry(ctx, g.attempts, g.backoff, func(tx *state.Tx) error {
		r, err := tx.Round(roundID)
		if err != nil {
			return err
		}
		round = r
		if r.Status != state.RoundIssued {
			return nil
		}
		r.Status = state.RoundFinalized
		r.FinalizedAt = &now
		tx.PutRound(r)
		round = r
		return nil
	})
	if err != nil {
		return state.EquityBuybackRound{}, fmt.Errorf("finalizing buyback round %s: %w", roundID, err)
	}
	return round, nil
}
