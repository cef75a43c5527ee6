package buybacks

import (
	"equitydesk/engine/library"
	"equitydesk/state"
	"golang.org/x/exp/slices"
)

// lot is one grant or holding shares can be bought back from.
type lot struct {
	ref                state.SecurityRef
	available          int64
	exercisePriceCents int64
}

// grantLots are the investor's vested options in company, cheapest exercise price first,
// then oldest grant first.
func grantLots(tx *state.Tx, company library.CompanyID, investor library.InvestorID) []lot {
	grants := tx.GrantsForInvestor(investor)
	slices.SortStableFunc(grants, func(a, b state.EquityGrant) bool {
		if c := a.ExercisePriceUsd.Cmp(b.ExercisePriceUsd); c != 0 {
			return c < 0
		}
		return a.IssuedAt.Before(b.IssuedAt)
	})
	var out []lot
	for _, g := range grants {
		if g.CompanyID != company || g.VestedShares <= 0 {
			continue
		}
		out = append(out, lot{
			ref:                state.SecurityRef{Kind: state.SecurityEquityGrant, ID: g.ID},
			available:          g.VestedShares,
			exercisePriceCents: library.UsdToCents(g.ExercisePriceUsd),
		})
	}
	return out
}

// holdingLots are the investor's holdings of class in company, earliest acquired first,
// then earliest issued first.
func holdingLots(tx *state.Tx, company library.CompanyID, investor library.InvestorID, class library.ShareClass) []lot {
	holdings := tx.HoldingsForInvestor(investor)
	slices.SortStableFunc(holdings, func(a, b state.ShareHolding) bool {
		if !a.OriginallyAcquiredAt.Equal(b.OriginallyAcquiredAt) {
			return a.OriginallyAcquiredAt.Before(b.OriginallyAcquiredAt)
		}
		return a.IssuedAt.Before(b.IssuedAt)
	})
	var out []lot
	for _, h := range holdings {
		if h.CompanyID != company || h.ShareClass != class || h.NumberOfShares <= 0 {
			continue
		}
		out = append(out, lot{
			ref:       state.SecurityRef{Kind: state.SecurityShareHolding, ID: h.ID},
			available: h.NumberOfShares,
		})
	}
	return out
}
