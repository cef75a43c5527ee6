package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"equitydesk/engine/actors"
	"equitydesk/engine/library"
	"equitydesk/state"
	"equitydesk/state/buybacks"
	"equitydesk/state/captable"
	"equitydesk/state/tender"
	"equitydesk/state/vesting"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"
)

// Sweeper is the job loop. It processes due vesting across all grants and settles tender
// offers whose bidding window has closed.
type Sweeper struct {
	store     *state.Store
	ledger    *vesting.Ledger
	clearing  *tender.Clearing
	generator *buybacks.Generator
	mutator   *captable.Mutator
	settings  actors.Settings
	now       func() time.Time

	mutex *deadlock.Mutex
	retry *library.Queue[library.GrantID]
}

func New(store *state.Store, ledger *vesting.Ledger, clearing *tender.Clearing, generator *buybacks.Generator,
	mutator *captable.Mutator, settings actors.Settings) *Sweeper {
	return &Sweeper{
		store:     store,
		ledger:    ledger,
		clearing:  clearing,
		generator: generator,
		mutator:   mutator,
		settings:  settings,
		now:       time.Now,
		mutex:     &deadlock.Mutex{},
		retry:     library.NewQueue[library.GrantID](8),
	}
}

// Start runs sweeps on their intervals until the terminate channel closes. ready is closed
// once the loop is running.
func (s *Sweeper) Start(ready chan struct{}) {
	actors.GetWaitGroup().Add(1)
	defer actors.GetWaitGroup().Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweep := time.NewTicker(s.settings.SweepInterval)
	defer sweep.Stop()
	settle := time.NewTicker(s.settings.SettlementInterval)
	defer settle.Stop()
	close(ready)
	library.LogCLI("Sweeper has started", 4)
L:
	for {
		select {
		case <-sweep.C:
			if _, err := s.SweepDueVesting(ctx); err != nil {
				library.LogCLI(err.Error(), 2)
			}
		case <-settle.C:
			s.SettleClosedOffers(ctx)
		case <-actors.GetTerminateChan():
			break L
		}
	}
	library.LogCLI("Sweeper has shut down", 4)
}

// SweepDueVesting processes every grant with due events plus grants that lost a lock race
// on the previous sweep. Grants run in parallel up to MaxParallelGrants.
func (s *Sweeper) SweepDueVesting(ctx context.Context) (vesting.Result, error) {
	now := s.now()
	due, err := s.ledger.DueGrants(now)
	if err != nil {
		return vesting.Result{}, err
	}
	s.mutex.Lock()
	retries := s.retry.Drain()
	s.mutex.Unlock()
	grants := make([]library.GrantID, 0, len(due)+len(retries))
	seen := make(map[library.GrantID]struct{})
	for _, id := range append(retries, due...) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			grants = append(grants, id)
		}
	}

	var total vesting.Result
	totalLock := &deadlock.Mutex{}
	group, gctx := errgroup.WithContext(ctx)
	if s.settings.MaxParallelGrants > 0 {
		group.SetLimit(s.settings.MaxParallelGrants)
	}
	for _, id := range grants {
		id := id
		group.Go(func() error {
			res, err := s.ledger.ProcessDueVesting(gctx, id, now)
			if err != nil {
				if state.IsRetryable(err) {
					library.LogCLI(fmt.Sprintf("grant %s deferred to the next sweep: %s", id, err), 3)
					s.mutex.Lock()
					s.retry.Push(id)
					s.mutex.Unlock()
					return nil
				}
				library.LogCLI(err.Error(), 2)
				return nil
			}
			totalLock.Lock()
			total.Processed += res.Processed
			total.Cancelled += res.Cancelled
			totalLock.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return total, err
	}
	if total.Processed+total.Cancelled > 0 {
		library.LogCLI(fmt.Sprintf("vesting sweep over %d grants: %d processed, %d cancelled", len(grants), total.Processed, total.Cancelled), 4)
	}
	return total, ctx.Err()
}

// Deferred is the number of grants waiting for the next sweep after a lock conflict.
func (s *Sweeper) Deferred() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.retry.Len()
}

// HandleInvoicePaid is called when an invoice on an invoice-triggered grant has been paid.
func (s *Sweeper) HandleInvoicePaid(ctx context.Context, grantID library.GrantID, invoiceID string, shares int64) (vesting.InvoiceResult, error) {
	return s.ledger.ProcessInvoiceVesting(ctx, grantID, invoiceID, shares, s.now())
}

// SettleClosedOffers runs every closed, unsettled, unparked offer through settlement.
func (s *Sweeper) SettleClosedOffers(ctx context.Context) (settled int) {
	now := s.now()
	var offers []state.TenderOffer
	_ = s.store.View(func(tx *state.Tx) error {
		for _, o := range tx.Offers(func(o state.TenderOffer) bool {
			return o.Closed(now) && o.SettlementError == "" && (o.SolvedAt == nil || o.AcceptedPriceCents != nil)
		}) {
			if r, ok := tx.RoundForOffer(o.ID); ok && r.Status == state.RoundApplied {
				continue
			}
			offers = append(offers, o)
		}
		return nil
	})
	for _, o := range offers {
		if err := s.SettleOffer(ctx, o.ID); err != nil {
			library.LogCLI(err.Error(), 2)
			continue
		}
		settled++
	}
	return settled
}

// SettleOffer solves a closed offer, generates and finalizes its buyback round and applies
// it to the cap table. Each step is idempotent so a failed settlement can be run again.
// Failures retrying cannot fix park the offer for an operator.
func (s *Sweeper) SettleOffer(ctx context.Context, offerID library.TenderOfferID) error {
	now := s.now()
	solution, err := s.clearing.Settle(ctx, offerID, now)
	if err != nil {
		return err
	}
	if solution == nil {
		return nil
	}
	round, err := s.generator.Generate(ctx, offerID, now)
	if err != nil {
		return s.park(ctx, offerID, err)
	}
	if round, err = s.generator.FinalizeRound(ctx, round.ID, now); err != nil {
		return err
	}
	if _, err = s.mutator.Apply(ctx, round.ID, now); err != nil {
		return s.park(ctx, offerID, err)
	}
	return nil
}

func (s *Sweeper) park(ctx context.Context, offerID library.TenderOfferID, cause error) error {
	if !errors.Is(cause, captable.ErrUnsupportedSecurity) &&
		!errors.Is(cause, captable.ErrInsufficientQuantity) &&
		!errors.Is(cause, buybacks.ErrInsufficientLots) {
		return cause
	}
	err := s.store.UpdateWithRetry(ctx, s.settings.LockRetryAttempts, s.settings.LockRetryBackoff, func(tx *state.Tx) error {
		tx.Lock(state.OfferKey(offerID))
		o, err := tx.Offer(offerID)
		if err != nil {
			return err
		}
		o.SettlementError = cause.Error()
		tx.PutOffer(o)
		return nil
	})
	if err != nil {
		return fmt.Errorf("parking tender offer %s after %q: %w", offerID, cause, err)
	}
	library.LogCLI(fmt.Sprintf("tender offer %s parked: %s", offerID, cause), 1)
	return cause
}
