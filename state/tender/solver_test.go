package tender

import (
	"math/rand"
	"testing"
	"time"

	"equitydesk/engine/library"
	"equitydesk/state"
)

var placed = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func bid(id, investor string, class library.ShareClass, shares, price int64) state.TenderOfferBid {
	return state.TenderOfferBid{
		ID:                id,
		TenderOfferID:     "offer",
		CompanyInvestorID: investor,
		ShareClass:        class,
		NumberOfShares:    shares,
		SharePriceCents:   price,
		CreatedAt:         placed,
	}
}

func plenty(investors ...string) Availability {
	out := make(Availability)
	for _, i := range investors {
		out[i] = map[library.ShareClass]int64{state.VestedSharesClass: 1 << 30, "common": 1 << 30}
	}
	return out
}

func TestSolveEquilibriumNoBids(t *testing.T) {
	if s := SolveEquilibrium(Input{TotalShares: 100, TotalAmountCents: 100}); s != nil {
		t.Fatalf("expected no price, got %+v", s)
	}
}

func TestSolveEquilibriumMaximisesShares(t *testing.T) {
	s := SolveEquilibrium(Input{
		Bids: []state.TenderOfferBid{
			bid("1", "alice", state.VestedSharesClass, 100, 500),
			bid("2", "bob", state.VestedSharesClass, 100, 1000),
		},
		Availability:     plenty("alice", "bob"),
		TotalShares:      150,
		TotalAmountCents: 1000000,
	})
	if s == nil {
		t.Fatal("expected a clearing price")
	}
	if s.PriceCents != 1000 || s.TotalShares != 150 {
		t.Fatalf("expected 150 shares at 1000, got %d at %d", s.TotalShares, s.PriceCents)
	}
	if a, b := s.Allocation["alice"][state.VestedSharesClass], s.Allocation["bob"][state.VestedSharesClass]; a != 75 || b != 75 {
		t.Fatalf("expected a 75/75 split, got %d/%d", a, b)
	}
}

func TestSolveEquilibriumPrefersLowerPriceOnTie(t *testing.T) {
	s := SolveEquilibrium(Input{
		Bids: []state.TenderOfferBid{
			bid("1", "alice", "common", 10, 100),
			bid("2", "bob", "common", 10, 200),
		},
		Availability:     plenty("alice", "bob"),
		TotalShares:      10,
		TotalAmountCents: 1000000,
	})
	if s == nil || s.PriceCents != 100 || s.TotalShares != 10 {
		t.Fatalf("expected 10 shares at 100, got %+v", s)
	}
}

func TestSolveEquilibriumRespectsBudget(t *testing.T) {
	s := SolveEquilibrium(Input{
		Bids:             []state.TenderOfferBid{bid("1", "alice", "common", 100, 100)},
		Availability:     plenty("alice"),
		TotalShares:      1000,
		TotalAmountCents: 5000,
	})
	if s == nil || s.TotalShares != 50 || s.TotalAmountCents != 5000 {
		t.Fatalf("expected 50 shares for 5000 cents, got %+v", s)
	}
}

func TestSolveEquilibriumCapsDemandByAvailability(t *testing.T) {
	s := SolveEquilibrium(Input{
		Bids:             []state.TenderOfferBid{bid("1", "alice", state.VestedSharesClass, 100, 100)},
		Availability:     Availability{"alice": {state.VestedSharesClass: 40}},
		TotalShares:      1000,
		TotalAmountCents: 1000000,
	})
	if s == nil || s.TotalShares != 40 {
		t.Fatalf("expected 40 available shares bought, got %+v", s)
	}
	none := SolveEquilibrium(Input{
		Bids:             []state.TenderOfferBid{bid("1", "alice", "preferred", 100, 100)},
		Availability:     Availability{"alice": {"common": 40}},
		TotalShares:      1000,
		TotalAmountCents: 1000000,
	})
	if none != nil {
		t.Fatalf("expected no price for a class the investor does not hold, got %+v", none)
	}
}

func TestSplitClassesGivesRemainderToLargestUnmetRatio(t *testing.T) {
	got := splitClasses(map[library.ShareClass]int64{"class_a": 1, "class_b": 2}, 3, 2)
	if got["class_a"] != 1 || got["class_b"] != 1 {
		t.Fatalf("expected 1/1, got %v", got)
	}
	tie := splitClasses(map[library.ShareClass]int64{"class_b": 1, "class_a": 1}, 2, 1)
	if tie["class_a"] != 1 || tie["class_b"] != 0 {
		t.Fatalf("expected the tie to go to class_a, got %v", tie)
	}
}

func TestSolveEquilibriumInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	investors := []string{"alice", "bob", "carol", "dave"}
	classes := []library.ShareClass{state.VestedSharesClass, "common", "preferred"}
	for round := 0; round < 200; round++ {
		var bids []state.TenderOfferBid
		prices := make(map[int64]bool)
		available := make(Availability)
		for _, i := range investors {
			available[i] = make(map[library.ShareClass]int64)
			for _, c := range classes {
				available[i][c] = rng.Int63n(200)
			}
		}
		for n := rng.Intn(12); n > 0; n-- {
			b := bid(library.NewID(), investors[rng.Intn(len(investors))], classes[rng.Intn(len(classes))], 1+rng.Int63n(150), 1+rng.Int63n(40)*25)
			bids = append(bids, b)
			prices[b.SharePriceCents] = true
		}
		in := Input{Bids: bids, Availability: available, TotalShares: 1 + rng.Int63n(400), TotalAmountCents: 1 + rng.Int63n(200000)}
		s := SolveEquilibrium(in)
		if s == nil {
			continue
		}
		if !prices[s.PriceCents] {
			t.Fatalf("round %d: price %d is not a bid price", round, s.PriceCents)
		}
		if s.TotalShares > in.TotalShares || s.TotalShares*s.PriceCents > in.TotalAmountCents {
			t.Fatalf("round %d: %d shares at %d breaks caps %d/%d", round, s.TotalShares, s.PriceCents, in.TotalShares, in.TotalAmountCents)
		}
		if s.Allocation.Total() != s.TotalShares {
			t.Fatalf("round %d: allocation sums to %d, reported %d", round, s.Allocation.Total(), s.TotalShares)
		}
		bidFor := make(Allocation)
		for _, b := range bids {
			if b.SharePriceCents > s.PriceCents {
				continue
			}
			if bidFor[b.CompanyInvestorID] == nil {
				bidFor[b.CompanyInvestorID] = make(map[library.ShareClass]int64)
			}
			bidFor[b.CompanyInvestorID][b.ShareClass] += b.NumberOfShares
		}
		for investor, byClass := range s.Allocation {
			for class, n := range byClass {
				if n > bidFor[investor][class] || n > available[investor][class] {
					t.Fatalf("round %d: %s/%s allocated %d, bid %d, available %d",
						round, investor, class, n, bidFor[investor][class], available[investor][class])
				}
			}
		}
	}
}
