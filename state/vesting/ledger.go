package vesting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"equitydesk/engine/library"
	"equitydesk/messaging/notify"
	"equitydesk/state"
)

// Ledger moves a grant's unvested shares into vested shares as its vesting events fall due.
// Work on one grant is serialized by the grant's row lock; different grants run in parallel.
type Ledger struct {
	store    *state.Store
	notifier notify.Notifier
	attempts int
	backoff  time.Duration
}

func NewLedger(store *state.Store, notifier notify.Notifier, attempts int, backoff time.Duration) *Ledger {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Ledger{store: store, notifier: notifier, attempts: attempts, backoff: backoff}
}

// Result counts what one ProcessDueVesting call did.
type Result struct {
	Processed int
	Cancelled int
}

type outcome struct {
	grant        state.EquityGrant
	transactions []state.EquityGrantTransaction
	cancelled    []state.VestingEvent
}

// ProcessDueVesting applies every unprocessed event of the grant dated at or before now, oldest
// first. An event larger than the grant's unvested balance is cancelled and later events are
// still tried.
func (l *Ledger) ProcessDueVesting(ctx context.Context, grantID library.GrantID, now time.Time) (Result, error) {
	var out outcome
	err := l.store.UpdateWithRetry(ctx, l.attempts, l.backoff, func(tx *state.Tx) error {
		out = outcome{}
		tx.Lock(state.GrantKey(grantID))
		g, err := tx.Grant(grantID)
		if err != nil {
			return err
		}
		changed := false
		for _, e := range tx.EventsForGrant(grantID) {
			if e.Terminal() || e.VestingDate.After(now) {
				continue
			}
			t, applied, err := applyEvent(tx, &g, e, now)
			if err != nil {
				return err
			}
			if t != nil {
				out.transactions = append(out.transactions, *t)
				changed = true
			} else {
				out.cancelled = append(out.cancelled, applied)
			}
		}
		if changed {
			tx.PutGrant(g)
		}
		out.grant = g
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("processing due vesting for grant %s: %w", grantID, err)
	}
	l.report(ctx, out)
	return Result{Processed: len(out.transactions), Cancelled: len(out.cancelled)}, nil
}

// applyEvent vests e against g if the unvested balance covers it, and cancels it otherwise.
// The returned transaction is nil when the event was cancelled.
func applyEvent(tx *state.Tx, g *state.EquityGrant, e state.VestingEvent, now time.Time) (*state.EquityGrantTransaction, state.VestingEvent, error) {
	if g.UnvestedShares < e.VestedShares {
		if err := e.MarkCancelled(state.ReasonNotEnoughShares, now); err != nil {
			return nil, e, err
		}
		tx.PutEvent(e)
		return nil, e, nil
	}
	if err := e.MarkProcessed(now); err != nil {
		return nil, e, err
	}
	g.UnvestedShares -= e.VestedShares
	g.VestedShares += e.VestedShares
	tx.PutEvent(e)
	t := state.EquityGrantTransaction{
		ID:                  library.DeterministicID("grant-transaction", e.ID),
		GrantID:             g.ID,
		InvestorID:          g.InvestorID,
		VestingEventID:      e.ID,
		InvoiceID:           e.InvoiceID,
		VestedShares:        e.VestedShares,
		TotalVestedShares:   g.VestedShares,
		TotalUnvestedShares: g.UnvestedShares,
		CreatedAt:           now,
	}
	if err := tx.InsertTransaction(t); err != nil {
		return nil, e, err
	}
	return &t, e, nil
}

func (l *Ledger) report(ctx context.Context, out outcome) {
	for _, t := range out.transactions {
		l.notifier.Notify(ctx, notify.Notification{
			Kind:     notify.KindVestingProcessed,
			Subject:  t.GrantID,
			Investor: t.InvestorID,
			Payload:  t,
		})
	}
	for _, e := range out.cancelled {
		library.LogCLI(fmt.Sprintf("vesting event %s on grant %s for %d shares cancelled: %s (unvested %d)",
			e.ID, e.GrantID, e.VestedShares, e.CancellationReason, out.grant.UnvestedShares), 4)
		l.notifier.Notify(ctx, notify.Notification{
			Kind:     notify.KindVestingCancelled,
			Subject:  e.GrantID,
			Investor: out.grant.InvestorID,
			Payload:  e,
		})
	}
}

type InvoiceOutcome string

const (
	InvoiceVested    InvoiceOutcome = "vested"
	InvoiceCancelled InvoiceOutcome = "cancelled"
	InvoiceNoOp      InvoiceOutcome = "no_op"
)

// InvoiceResult is what ProcessInvoiceVesting did with the invoice's vesting event.
// Transaction is only set when Outcome is InvoiceVested.
type InvoiceResult struct {
	Outcome     InvoiceOutcome
	Event       state.VestingEvent
	Transaction *state.EquityGrantTransaction
}

// InvoiceEventID names the single vesting event an invoice can create on a grant.
func InvoiceEventID(grantID library.GrantID, invoiceID string) library.EventID {
	return library.DeterministicID(grantID, "invoice", invoiceID)
}

// ProcessInvoiceVesting vests shares on an invoice-triggered grant when the invoice is paid.
// The invoice's event is created on first call; once it is processed or cancelled, later
// calls are no-ops.
func (l *Ledger) ProcessInvoiceVesting(ctx context.Context, grantID library.GrantID, invoiceID string, shares int64, now time.Time) (InvoiceResult, error) {
	if shares <= 0 {
		return InvoiceResult{}, fmt.Errorf("invoice %s vests %d shares on grant %s: %w", invoiceID, shares, grantID, ErrInvalidGrant)
	}
	var res InvoiceResult
	var grant state.EquityGrant
	eventID := InvoiceEventID(grantID, invoiceID)
	err := l.store.UpdateWithRetry(ctx, l.attempts, l.backoff, func(tx *state.Tx) error {
		res = InvoiceResult{}
		tx.Lock(state.GrantKey(grantID))
		g, err := tx.Grant(grantID)
		if err != nil {
			return err
		}
		if g.VestingTrigger != state.TriggerInvoicePaid {
			return fmt.Errorf("grant %s vests on %s, not on invoice %s: %w", grantID, g.VestingTrigger, invoiceID, ErrWrongTrigger)
		}
		e, err := tx.Event(eventID)
		if errors.Is(err, state.ErrNotFound) {
			e = state.VestingEvent{
				ID:           eventID,
				GrantID:      grantID,
				VestingDate:  now,
				VestedShares: shares,
				Status:       state.EventUnprocessed,
				InvoiceID:    invoiceID,
			}
			if err := tx.InsertEvent(e); err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else if e.VestedShares != shares {
			library.LogCLI(fmt.Sprintf("invoice %s on grant %s already recorded %d shares, ignoring %d", invoiceID, grantID, e.VestedShares, shares), 2)
		}
		if e.Terminal() {
			res = InvoiceResult{Outcome: InvoiceNoOp, Event: e}
			return nil
		}
		t, e, err := applyEvent(tx, &g, e, now)
		if err != nil {
			return err
		}
		res.Event = e
		if t == nil {
			res.Outcome = InvoiceCancelled
			grant = g
			return nil
		}
		tx.PutGrant(g)
		grant = g
		res.Outcome = InvoiceVested
		res.Transaction = t
		return nil
	})
	if err != nil {
		return InvoiceResult{}, fmt.Errorf("processing invoice %s vesting for grant %s: %w", invoiceID, grantID, err)
	}
	switch res.Outcome {
	case InvoiceVested:
		l.report(ctx, outcome{grant: grant, transactions: []state.EquityGrantTransaction{*res.Transaction}})
	case InvoiceCancelled:
		l.report(ctx, outcome{grant: grant, cancelled: []state.VestingEvent{res.Event}})
	}
	return res, nil
}

// DueGrants lists grants with at least one unprocessed event dated at or before now.
func (l *Ledger) DueGrants(now time.Time) ([]library.GrantID, error) {
	seen := make(map[library.GrantID]struct{})
	var ids []library.GrantID
	err := l.store.View(func(tx *state.Tx) error {
		for _, e := range tx.Events(func(e state.VestingEvent) bool {
			return e.Status == state.EventUnprocessed && !e.VestingDate.After(now)
		}) {
			if _, ok := seen[e.GrantID]; ok {
				continue
			}
			seen[e.GrantID] = struct{}{}
			ids = append(ids, e.GrantID)
		}
		return nil
	})
	return ids, err
}
