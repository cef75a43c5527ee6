package tender

import (
	"equitydesk/engine/library"
	"equitydesk/state"
)

// SnapshotAvailability reads what each bidding investor holds in company: vested options
// under the vested shares class, share holdings under their own class.
func SnapshotAvailability(tx *state.Tx, company library.CompanyID, bids []state.TenderOfferBid) Availability {
	out := make(Availability)
	for _, b := range bids {
		if _, ok := out[b.CompanyInvestorID]; ok {
			continue
		}
		classes := make(map[library.ShareClass]int64)
		for _, g := range tx.GrantsForInvestor(b.CompanyInvestorID) {
			if g.CompanyID == company {
				classes[state.VestedSharesClass] += g.VestedShares
			}
		}
		for _, h := range tx.HoldingsForInvestor(b.CompanyInvestorID) {
			if h.CompanyID == company {
				classes[h.ShareClass] += h.NumberOfShares
			}
		}
		out[b.CompanyInvestorID] = classes
	}
	return out
}
