package tender

import (
	"math/big"

	"equitydesk/engine/library"
	"equitydesk/state"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Availability is how many shares each investor actually holds per share class.
type Availability map[library.InvestorID]map[library.ShareClass]int64

// Allocation is the number of shares bought per investor and share class.
type Allocation map[library.InvestorID]map[library.ShareClass]int64

// Total sums the allocation.
func (a Allocation) Total() (n int64) {
	for _, classes := range a {
		for _, shares := range classes {
			n += shares
		}
	}
	return
}

// Input is an in-memory snapshot of a closed tender offer.
type Input struct {
	Bids             []state.TenderOfferBid
	Availability     Availability
	TotalShares      int64
	TotalAmountCents int64
}

// Solution is the clearing price and what it buys from each investor.
type Solution struct {
	PriceCents       int64
	Allocation       Allocation
	TotalShares      int64
	TotalAmountCents int64
}

// SolveEquilibrium finds the bid price that transacts the most shares within both caps.
// Candidate prices are the distinct bid prices, scanned upwards; the scan stops after the
// first price whose demand alone breaks a cap. Ties go to the lower price. Nil means no
// price clears.
func SolveEquilibrium(in Input) *Solution {
	if in.TotalShares <= 0 || in.TotalAmountCents <= 0 {
		return nil
	}
	var best *Solution
	for _, price := range candidatePrices(in.Bids) {
		demand := eligibleDemand(in.Bids, in.Availability, price)
		total := demand.Total()
		if total == 0 {
			continue
		}
		ratio := clearingRatio(total, price, in.TotalShares, in.TotalAmountCents)
		alloc := allocate(demand, ratio)
		shares := alloc.Total()
		amount := shares * price
		if shares > 0 && shares <= in.TotalShares && amount <= in.TotalAmountCents {
			if best == nil || shares > best.TotalShares {
				best = &Solution{PriceCents: price, Allocation: alloc, TotalShares: shares, TotalAmountCents: amount}
			}
		}
		if total > in.TotalShares || total*price > in.TotalAmountCents {
			break
		}
	}
	return best
}

func candidatePrices(bids []state.TenderOfferBid) []int64 {
	seen := make(map[int64]struct{})
	for _, b := range bids {
		if b.SharePriceCents > 0 && b.NumberOfShares > 0 {
			seen[b.SharePriceCents] = struct{}{}
		}
	}
	prices := maps.Keys(seen)
	slices.Sort(prices)
	return prices
}

// eligibleDemand sums bids at or below price, capped by what each investor holds per class.
func eligibleDemand(bids []state.TenderOfferBid, available Availability, price int64) Allocation {
	demand := make(Allocation)
	for _, b := range bids {
		if b.SharePriceCents > price || b.SharePriceCents <= 0 || b.NumberOfShares <= 0 {
			continue
		}
		if demand[b.CompanyInvestorID] == nil {
			demand[b.CompanyInvestorID] = make(map[library.ShareClass]int64)
		}
		demand[b.CompanyInvestorID][b.ShareClass] += b.NumberOfShares
	}
	for investor, classes := range demand {
		for class, shares := range classes {
			if limit := available[investor][class]; shares > limit {
				shares = limit
			}
			if shares <= 0 {
				delete(classes, class)
				continue
			}
			classes[class] = shares
		}
		if len(classes) == 0 {
			delete(demand, investor)
		}
	}
	return demand
}

// clearingRatio is min(totalShares/demand, totalAmount/(demand*price), 1).
func clearingRatio(demand, price, totalShares, totalAmount int64) *big.Rat {
	ratio := big.NewRat(1, 1)
	if r := big.NewRat(totalShares, demand); r.Cmp(ratio) < 0 {
		ratio = r
	}
	byAmount := new(big.Rat).SetFrac(big.NewInt(totalAmount), new(big.Int).Mul(big.NewInt(demand), big.NewInt(price)))
	if byAmount.Cmp(ratio) < 0 {
		ratio = byAmount
	}
	return ratio
}

func floorMul(n int64, r *big.Rat) int64 {
	num := new(big.Int).Mul(big.NewInt(n), r.Num())
	return num.Quo(num, r.Denom()).Int64()
}

// allocate gives each investor floor(demand*ratio) and splits it across their classes.
func allocate(demand Allocation, ratio *big.Rat) Allocation {
	out := make(Allocation, len(demand))
	for investor, classes := range demand {
		var investorDemand int64
		for _, shares := range classes {
			investorDemand += shares
		}
		if got := floorMul(investorDemand, ratio); got > 0 {
			out[investor] = splitClasses(classes, investorDemand, got)
		}
	}
	return out
}

// splitClasses divides shares across classes in proportion to demand. Units lost to
// flooring go one at a time to the class with the largest unmet fraction of its demand,
// ties to the lexically first class.
func splitClasses(classes map[library.ShareClass]int64, demand, shares int64) map[library.ShareClass]int64 {
	names := maps.Keys(classes)
	slices.Sort(names)
	out := make(map[library.ShareClass]int64, len(classes))
	var assigned int64
	for _, class := range names {
		n := new(big.Int).Mul(big.NewInt(shares), big.NewInt(classes[class]))
		out[class] = n.Quo(n, big.NewInt(demand)).Int64()
		assigned += out[class]
	}
	for ; assigned < shares; assigned++ {
		var pick library.ShareClass
		var pickUnmet *big.Rat
		for _, class := range names {
			unmet := classes[class] - out[class]
			if unmet <= 0 {
				continue
			}
			r := big.NewRat(unmet, classes[class])
			if pickUnmet == nil || r.Cmp(pickUnmet) > 0 {
				pick, pickUnmet = class, r
			}
		}
		if pickUnmet == nil {
			break
		}
		out[pick]++
	}
	for class, n := range out {
		if n == 0 {
			delete(out, class)
		}
	}
	return out
}
