package captable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"equitydesk/engine/library"
	"equitydesk/messaging/documents"
	"equitydesk/messaging/notify"
	"equitydesk/state"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// CertificateScheduler queues certificate regeneration outside the transaction.
type CertificateScheduler interface {
	Regenerate(req documents.Request)
}

// Mutator applies finalized buyback rounds to grants, holdings, the company and its pools.
type Mutator struct {
	store        *state.Store
	certificates CertificateScheduler
	notifier     notify.Notifier
	attempts     int
	backoff      time.Duration
}

func NewMutator(store *state.Store, certificates CertificateScheduler, notifier notify.Notifier, attempts int, backoff time.Duration) *Mutator {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Mutator{store: store, certificates: certificates, notifier: notifier, attempts: attempts, backoff: backoff}
}

// Result summarizes an applied round. Applied is false when the round had already been applied.
type Result struct {
	Applied        bool
	SharesSold     int64
	OptionsSold    int64
	HoldersChanged []library.InvestorID
}

// Apply draws every buyback of a finalized round from its security, reduces the company's
// fully diluted shares by the total and each option pool by the options sold from it. It
// commits all of that or nothing. Applying an applied round is a no-op.
func (m *Mutator) Apply(ctx context.Context, roundID library.RoundID, now time.Time) (Result, error) {
	var res Result
	var round state.EquityBuybackRound
	var rows []state.EquityBuyback
	err := m.store.UpdateWithRetry(ctx, m.attempts, m.backoff, func(tx *state.Tx) error {
		res = Result{}
		r, err := tx.Round(roundID)
		if err != nil {
			return err
		}
		if r.Status == state.RoundApplied {
			round = r
			return nil
		}
		if r.Status != state.RoundFinalized {
			return fmt.Errorf("buyback round %s is %s: %w", roundID, r.Status, ErrRoundNotFinalized)
		}
		rows = tx.BuybacksForRound(roundID)

		var keys []string
		for _, b := range rows {
			key, err := lockKey(b.Security)
			if err != nil {
				return fmt.Errorf("buyback %s: %w", b.ID, err)
			}
			keys = append(keys, key)
		}
		tx.Lock(keys...)

		securities := make(map[state.SecurityRef]Security)
		pools := make(map[library.OptionPoolID]int64)
		holders := make(map[library.InvestorID]struct{})
		for _, b := range rows {
			sec, ok := securities[b.Security]
			if !ok {
				if sec, err = load(tx, b.Security); err != nil {
					return fmt.Errorf("buyback %s: %w", b.ID, err)
				}
				securities[b.Security] = sec
			}
			if err := sec.ReduceBy(b.NumberOfShares); err != nil {
				return fmt.Errorf("buyback %s: %w", b.ID, err)
			}
			res.SharesSold += b.NumberOfShares
			if g, ok := sec.(*grantSecurity); ok {
				res.OptionsSold += b.NumberOfShares
				if g.grant.OptionPoolID != "" {
					pools[g.grant.OptionPoolID] += b.NumberOfShares
				}
			} else {
				holders[b.InvestorID] = struct{}{}
			}
		}
		for _, sec := range securities {
			sec.save(tx)
		}

		aggregates := []string{state.CompanyKey(r.CompanyID)}
		for pool := range pools {
			aggregates = append(aggregates, state.OptionPoolKey(pool))
		}
		tx.Lock(aggregates...)
		company, err := tx.Company(r.CompanyID)
		if err != nil {
			return err
		}
		company.FullyDilutedShares -= res.SharesSold
		tx.PutCompany(company)
		for id, sold := range pools {
			pool, err := tx.OptionPool(id)
			if err != nil {
				return err
			}
			pool.IssuedShares -= sold
			tx.PutOptionPool(pool)
		}

		r.Status = state.RoundApplied
		r.AppliedAt = &now
		tx.PutRound(r)
		round = r
		res.Applied = true
		res.HoldersChanged = maps.Keys(holders)
		slices.Sort(res.HoldersChanged)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnsupportedSecurity) {
			library.LogCLI(fmt.Sprintf("buyback round %s needs an operator: %s", roundID, err), 1)
		}
		return Result{}, fmt.Errorf("applying buyback round %s: %w", roundID, err)
	}
	if !res.Applied {
		return res, nil
	}
	library.LogCLI(fmt.Sprintf("buyback round %s applied: %d shares sold, %d of them options", roundID, res.SharesSold, res.OptionsSold), 4)
	m.afterCommit(ctx, round, rows, res.HoldersChanged)
	return res, nil
}

// afterCommit regenerates certificates for investors whose holdings changed and tells
// every seller what was bought.
func (m *Mutator) afterCommit(ctx context.Context, round state.EquityBuybackRound, rows []state.EquityBuyback, holders []library.InvestorID) {
	if m.certificates != nil && len(holders) > 0 {
		remaining := make(map[library.InvestorID][]state.ShareHolding)
		_ = m.store.View(func(tx *state.Tx) error {
			for _, investor := range holders {
				for _, h := range tx.HoldingsForInvestor(investor) {
					if h.CompanyID == round.CompanyID && h.NumberOfShares > 0 {
						remaining[investor] = append(remaining[investor], h)
					}
				}
			}
			return nil
		})
		for _, investor := range holders {
			m.certificates.Regenerate(documents.Request{CompanyID: round.CompanyID, InvestorID: investor, Holdings: remaining[investor]})
		}
	}
	bySeller := make(map[library.InvestorID][]state.EquityBuyback)
	for _, b := range rows {
		bySeller[b.InvestorID] = append(bySeller[b.InvestorID], b)
	}
	sellers := maps.Keys(bySeller)
	slices.Sort(sellers)
	for _, investor := range sellers {
		m.notifier.Notify(ctx, notify.Notification{
			Kind:     notify.KindBuybackExecuted,
			Subject:  round.ID,
			Investor: investor,
			Payload:  bySeller[investor],
		})
	}
}
