package vesting

import (
	"fmt"
	"time"

	"equitydesk/state"
)

// Installment is one calculated vesting date and the shares that vest on it.
type Installment struct {
	Date   time.Time
	Shares int64
}

// GrantTerms are the grant parameters the schedule is calculated from.
type GrantTerms struct {
	NumberOfShares  int64
	PeriodStartedAt time.Time
	PeriodEndedAt   time.Time
	VestingTrigger  state.VestingTrigger
}

// ComputeVestingEvents returns the grant's vesting installments in date order. The unit is
// per vesting period: NumberOfShares split over TotalVestingDurationMonths/VestingFrequencyMonths.
// The installment on PeriodEndedAt absorbs the rounding remainder, so the installments sum
// to NumberOfShares exactly. Installments of zero shares are never emitted, so when the
// period outlasts the schedule the last installment is the last regular one.
// Invoice-triggered grants have no schedule.
func ComputeVestingEvents(terms GrantTerms, schedule *state.VestingSchedule) ([]Installment, error) {
	if terms.VestingTrigger == state.TriggerInvoicePaid {
		return nil, nil
	}
	if err := validateTerms(terms, schedule); err != nil {
		return nil, err
	}
	frequency := schedule.VestingFrequencyMonths
	periods := int64(schedule.TotalVestingDurationMonths / frequency)
	unitShares := terms.NumberOfShares / periods

	var out []Installment
	var allocated int64
	offset := 0
	if schedule.CliffDurationMonths > 0 {
		offset = schedule.CliffDurationMonths
		date := addMonths(terms.PeriodStartedAt, offset)
		shares := unitShares * int64(schedule.CliffDurationMonths/frequency)
		if shares > 0 && date.Before(terms.PeriodEndedAt) && shares <= terms.NumberOfShares {
			out = append(out, Installment{Date: date, Shares: shares})
			allocated += shares
		}
	}
	for {
		offset += frequency
		date := addMonths(terms.PeriodStartedAt, offset)
		if !date.Before(terms.PeriodEndedAt) || allocated+unitShares > terms.NumberOfShares {
			break
		}
		if unitShares > 0 {
			out = append(out, Installment{Date: date, Shares: unitShares})
			allocated += unitShares
		}
	}
	if rest := terms.NumberOfShares - allocated; rest > 0 {
		out = append(out, Installment{Date: terms.PeriodEndedAt, Shares: rest})
	}
	return out, nil
}

func validateTerms(terms GrantTerms, schedule *state.VestingSchedule) error {
	if terms.NumberOfShares <= 0 {
		return fmt.Errorf("number of shares must be > 0, got %d: %w", terms.NumberOfShares, ErrInvalidGrant)
	}
	if !terms.PeriodStartedAt.Before(terms.PeriodEndedAt) {
		return fmt.Errorf("period start %s is not before period end %s: %w",
			terms.PeriodStartedAt.Format(time.RFC3339), terms.PeriodEndedAt.Format(time.RFC3339), ErrInvalidGrant)
	}
	if schedule == nil {
		return fmt.Errorf("a scheduled grant needs a vesting schedule: %w", ErrInvalidGrant)
	}
	if schedule.VestingFrequencyMonths <= 0 || schedule.TotalVestingDurationMonths <= 0 {
		return fmt.Errorf("vesting schedule %s needs positive frequency and duration: %w", schedule.ID, ErrInvalidGrant)
	}
	if schedule.VestingFrequencyMonths > schedule.TotalVestingDurationMonths {
		return fmt.Errorf("vesting schedule %s vests less often than its duration: %w", schedule.ID, ErrInvalidGrant)
	}
	if schedule.CliffDurationMonths < 0 || schedule.CliffDurationMonths > schedule.TotalVestingDurationMonths {
		return fmt.Errorf("vesting schedule %s cliff must be within the vesting duration: %w", schedule.ID, ErrInvalidGrant)
	}
	if schedule.CliffDurationMonths%schedule.VestingFrequencyMonths != 0 {
		return fmt.Errorf("vesting schedule %s cliff of %d months is not a whole number of %d-month periods: %w",
			schedule.ID, schedule.CliffDurationMonths, schedule.VestingFrequencyMonths, ErrInvalidGrant)
	}
	return nil
}

// addMonths adds n calendar months, clamping to the last day of the target month.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
