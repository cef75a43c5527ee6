package tender

import (
	"context"
	"testing"
	"time"

	"equitydesk/state"
)

var (
	opens  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	closes = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
)

func seedOffer(t *testing.T, bids ...state.TenderOfferBid) *state.Store {
	t.Helper()
	s := state.NewStore()
	err := s.Update(context.Background(), func(tx *state.Tx) error {
		if err := tx.InsertGrant(state.EquityGrant{ID: "g1", CompanyID: "acme", InvestorID: "alice", NumberOfShares: 300, VestedShares: 150}); err != nil {
			return err
		}
		if err := tx.InsertHolding(state.ShareHolding{ID: "h1", CompanyID: "acme", InvestorID: "bob", ShareClass: "common", NumberOfShares: 80}); err != nil {
			return err
		}
		if err := tx.InsertOffer(state.TenderOffer{ID: "offer", CompanyID: "acme", StartsAt: opens, EndsAt: closes, NumberOfShares: 100, TotalAmountInCents: 100000}); err != nil {
			return err
		}
		for _, b := range bids {
			if err := tx.InsertBid(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestSettleLeavesOpenOfferUntouched(t *testing.T) {
	s := seedOffer(t, bid("b1", "alice", state.VestedSharesClass, 50, 500))
	sol, err := NewClearing(s, 3, time.Millisecond).Settle(context.Background(), "offer", closes)
	if err != nil {
		t.Fatalf("expected no error at the closing instant, got %v", err)
	}
	if sol != nil {
		t.Fatalf("expected no clearing price while the offer is open, got %+v", sol)
	}
	_ = s.View(func(tx *state.Tx) error {
		offer, _ := tx.Offer("offer")
		if offer.SolvedAt != nil || offer.AcceptedPriceCents != nil {
			t.Errorf("expected the offer unsolved, got solvedAt %v price %v", offer.SolvedAt, offer.AcceptedPriceCents)
		}
		for _, b := range tx.BidsForOffer("offer") {
			if b.AcceptedShares != 0 {
				t.Errorf("bid %s: expected no accepted shares, got %d", b.ID, b.AcceptedShares)
			}
		}
		return nil
	})
}

func TestSettleRecordsAcceptedShares(t *testing.T) {
	first := bid("b1", "alice", state.VestedSharesClass, 40, 700)
	second := bid("b2", "alice", state.VestedSharesClass, 100, 900)
	second.CreatedAt = placed.Add(time.Hour)
	s := seedOffer(t, first, second, bid("b3", "bob", "common", 200, 800))
	c := NewClearing(s, 3, time.Millisecond)
	after := closes.Add(time.Minute)

	sol, err := c.Settle(context.Background(), "offer", after)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if sol == nil {
		t.Fatal("expected a clearing price")
	}
	var accepted int64
	_ = s.View(func(tx *state.Tx) error {
		offer, _ := tx.Offer("offer")
		if offer.AcceptedPriceCents == nil || *offer.AcceptedPriceCents != sol.PriceCents {
			t.Errorf("expected offer price %d, got %v", sol.PriceCents, offer.AcceptedPriceCents)
		}
		for _, b := range tx.BidsForOffer("offer") {
			if b.SharePriceCents > sol.PriceCents && b.AcceptedShares != 0 {
				t.Errorf("bid %s above the price accepted %d", b.ID, b.AcceptedShares)
			}
			if b.AcceptedShares > b.NumberOfShares {
				t.Errorf("bid %s accepted %d of %d", b.ID, b.AcceptedShares, b.NumberOfShares)
			}
			accepted += b.AcceptedShares
		}
		return nil
	})
	if accepted != sol.TotalShares || accepted > 100 {
		t.Fatalf("expected bids to accept %d shares within the cap, got %d", sol.TotalShares, accepted)
	}
	if bobs := sol.Allocation["bob"]["common"]; bobs > 80 {
		t.Fatalf("bob holds 80 common shares, allocated %d", bobs)
	}

	again, err := c.Settle(context.Background(), "offer", after.Add(time.Hour))
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if again.PriceCents != sol.PriceCents || again.TotalShares != sol.TotalShares {
		t.Fatalf("expected the recorded result back, got %+v want %+v", again, sol)
	}
}

func TestSettleFillsCheapestBidsFirst(t *testing.T) {
	s := seedOffer(t,
		bid("late", "alice", state.VestedSharesClass, 30, 500),
		bid("cheap", "alice", state.VestedSharesClass, 30, 400),
	)
	sol, err := NewClearing(s, 3, time.Millisecond).Settle(context.Background(), "offer", closes.Add(time.Second))
	if err != nil || sol == nil {
		t.Fatalf("settle: %+v %v", sol, err)
	}
	if sol.PriceCents != 500 || sol.TotalShares != 60 {
		t.Fatalf("expected 60 shares at 500, got %d at %d", sol.TotalShares, sol.PriceCents)
	}
	_ = s.View(func(tx *state.Tx) error {
		for _, b := range tx.BidsForOffer("offer") {
			if b.AcceptedShares != 30 {
				t.Errorf("bid %s: expected 30 accepted, got %d", b.ID, b.AcceptedShares)
			}
		}
		return nil
	})
}

func TestSettleWithoutBidsMarksOfferSolved(t *testing.T) {
	s := seedOffer(t)
	sol, err := NewClearing(s, 3, time.Millisecond).Settle(context.Background(), "offer", closes.Add(time.Second))
	if err != nil || sol != nil {
		t.Fatalf("expected no price and no error, got %+v %v", sol, err)
	}
	_ = s.View(func(tx *state.Tx) error {
		offer, _ := tx.Offer("offer")
		if offer.SolvedAt == nil || offer.AcceptedPriceCents != nil {
			t.Errorf("expected solved offer without a price, got %+v", offer)
		}
		return nil
	})
}
