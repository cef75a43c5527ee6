package vesting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"equitydesk/engine/library"
	"equitydesk/messaging/notify"
	"equitydesk/state"
	"github.com/shopspring/decimal"
)

// GrantParams describe a grant being issued. Schedule is required for scheduled grants; an
// existing schedule is referenced by ID and is never modified.
type GrantParams struct {
	ID               library.GrantID
	CompanyID        library.CompanyID
	InvestorID       library.InvestorID
	OptionPoolID     library.OptionPoolID
	NumberOfShares   int64
	ExercisePriceUsd decimal.Decimal
	PeriodStartedAt  time.Time
	PeriodEndedAt    time.Time
	VestingTrigger   state.VestingTrigger
	Schedule         *state.VestingSchedule
}

// IssueGrant validates params, stores the grant with every share unvested, and stores the
// calculated vesting events. The option pool's issued shares grow by the grant size.
func (l *Ledger) IssueGrant(ctx context.Context, params GrantParams, now time.Time) (state.EquityGrant, error) {
	if params.ID == "" {
		params.ID = library.NewID()
	}
	if params.VestingTrigger == "" {
		params.VestingTrigger = state.TriggerScheduled
	}
	if params.VestingTrigger != state.TriggerScheduled && params.VestingTrigger != state.TriggerInvoicePaid {
		return state.EquityGrant{}, fmt.Errorf("grant %s has unknown vesting trigger %q: %w", params.ID, params.VestingTrigger, ErrInvalidGrant)
	}
	if params.InvestorID == "" {
		return state.EquityGrant{}, fmt.Errorf("grant %s has no investor: %w", params.ID, ErrInvalidGrant)
	}
	if params.ExercisePriceUsd.IsNegative() {
		return state.EquityGrant{}, fmt.Errorf("grant %s has a negative exercise price: %w", params.ID, ErrInvalidGrant)
	}
	terms := GrantTerms{
		NumberOfShares:  params.NumberOfShares,
		PeriodStartedAt: params.PeriodStartedAt,
		PeriodEndedAt:   params.PeriodEndedAt,
		VestingTrigger:  params.VestingTrigger,
	}
	if params.VestingTrigger == state.TriggerInvoicePaid {
		// invoice grants have no schedule but the period still has to make sense
		if err := validateTerms(terms, &state.VestingSchedule{VestingFrequencyMonths: 1, TotalVestingDurationMonths: 1}); err != nil {
			return state.EquityGrant{}, fmt.Errorf("grant %s: %w", params.ID, err)
		}
	}

	var grant state.EquityGrant
	err := l.store.Update(ctx, func(tx *state.Tx) error {
		schedule, err := resolveSchedule(tx, params.Schedule)
		if err != nil {
			return err
		}
		installments, err := ComputeVestingEvents(terms, schedule)
		if err != nil {
			return fmt.Errorf("grant %s: %w", params.ID, err)
		}
		if params.OptionPoolID != "" {
			tx.Lock(state.OptionPoolKey(params.OptionPoolID))
			pool, err := tx.OptionPool(params.OptionPoolID)
			if err != nil {
				return err
			}
			if pool.AuthorizedShares > 0 && pool.IssuedShares+params.NumberOfShares > pool.AuthorizedShares {
				return fmt.Errorf("grant %s for %d shares exceeds option pool %s (%d of %d issued): %w",
					params.ID, params.NumberOfShares, pool.ID, pool.IssuedShares, pool.AuthorizedShares, ErrInvalidGrant)
			}
			pool.IssuedShares += params.NumberOfShares
			tx.PutOptionPool(pool)
		}
		grant = state.EquityGrant{
			ID:               params.ID,
			CompanyID:        params.CompanyID,
			InvestorID:       params.InvestorID,
			OptionPoolID:     params.OptionPoolID,
			NumberOfShares:   params.NumberOfShares,
			UnvestedShares:   params.NumberOfShares,
			ExercisePriceUsd: params.ExercisePriceUsd,
			PeriodStartedAt:  params.PeriodStartedAt,
			PeriodEndedAt:    params.PeriodEndedAt,
			VestingTrigger:   params.VestingTrigger,
			IssuedAt:         now,
		}
		if schedule != nil {
			grant.VestingScheduleID = schedule.ID
		}
		if err := tx.InsertGrant(grant); err != nil {
			return err
		}
		for i, in := range installments {
			e := state.VestingEvent{
				ID:           library.DeterministicID(grant.ID, "scheduled", strconv.Itoa(i)),
				GrantID:      grant.ID,
				VestingDate:  in.Date,
				VestedShares: in.Shares,
				Status:       state.EventUnprocessed,
			}
			if err := tx.InsertEvent(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return state.EquityGrant{}, err
	}
	library.LogCLI(fmt.Sprintf("issued grant %s of %d shares to %s", grant.ID, grant.NumberOfShares, grant.InvestorID), 4)
	return grant, nil
}

func resolveSchedule(tx *state.Tx, schedule *state.VestingSchedule) (*state.VestingSchedule, error) {
	if schedule == nil {
		return nil, nil
	}
	if schedule.ID != "" {
		stored, err := tx.Schedule(schedule.ID)
		if err == nil {
			return &stored, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			return nil, err
		}
	}
	s := *schedule
	if s.ID == "" {
		s.ID = library.NewID()
	}
	if err := tx.InsertSchedule(s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CancelGrant stops a grant from vesting any further: its unprocessed events are cancelled
// with reason and its unvested shares are forfeited back to the option pool. Cancelling a
// cancelled grant changes nothing.
func (l *Ledger) CancelGrant(ctx context.Context, grantID library.GrantID, reason string, now time.Time) (state.EquityGrant, error) {
	if reason == "" {
		reason = state.ReasonGrantCancelled
	}
	var grant state.EquityGrant
	var cancelled bool
	err := l.store.UpdateWithRetry(ctx, l.attempts, l.backoff, func(tx *state.Tx) error {
		cancelled = false
		tx.Lock(state.GrantKey(grantID))
		g, err := tx.Grant(grantID)
		if err != nil {
			return err
		}
		grant = g
		if g.CancelledAt != nil {
			return nil
		}
		for _, e := range tx.EventsForGrant(grantID) {
			if e.Terminal() {
				continue
			}
			if err := e.MarkCancelled(reason, now); err != nil {
				return err
			}
			tx.PutEvent(e)
		}
		forfeited := g.UnvestedShares
		if g.OptionPoolID != "" && forfeited > 0 {
			tx.Lock(state.OptionPoolKey(g.OptionPoolID))
			pool, err := tx.OptionPool(g.OptionPoolID)
			if err != nil {
				return err
			}
			pool.IssuedShares -= forfeited
			tx.PutOptionPool(pool)
		}
		g.ForfeitedShares += forfeited
		g.UnvestedShares = 0
		g.CancelledAt = &now
		tx.PutGrant(g)
		grant = g
		cancelled = true
		return nil
	})
	if err != nil {
		return state.EquityGrant{}, fmt.Errorf("cancelling grant %s: %w", grantID, err)
	}
	if cancelled {
		library.LogCLI(fmt.Sprintf("grant %s cancelled (%s), %d shares forfeited", grant.ID, reason, grant.ForfeitedShares), 4)
		l.notifier.Notify(ctx, notify.Notification{
			Kind:     notify.KindGrantCancelled,
			Subject:  grant.ID,
			Investor: grant.InvestorID,
			Payload:  grant,
		})
	}
	return grant, nil
}
