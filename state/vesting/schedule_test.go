package vesting

import (
	"errors"
	"testing"
	"time"

	"equitydesk/state"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeVestingEventsCliffThenMonthly(t *testing.T) {
	terms := GrantTerms{
		NumberOfShares:  1000,
		PeriodStartedAt: date(2024, 1, 1),
		PeriodEndedAt:   date(2028, 1, 1),
		VestingTrigger:  state.TriggerScheduled,
	}
	schedule := &state.VestingSchedule{ID: "s", CliffDurationMonths: 12, VestingFrequencyMonths: 1, TotalVestingDurationMonths: 48}
	events, err := ComputeVestingEvents(terms, schedule)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(events) != 37 {
		t.Fatalf("expected 37 events, got %d", len(events))
	}
	if !events[0].Date.Equal(date(2025, 1, 1)) || events[0].Shares != 240 {
		t.Fatalf("expected cliff of 240 on 2025-01-01, got %d on %s", events[0].Shares, events[0].Date)
	}
	for i := 1; i < 36; i++ {
		if events[i].Shares != 20 {
			t.Fatalf("event %d: expected 20 shares, got %d", i, events[i].Shares)
		}
	}
	if !events[35].Date.Equal(date(2027, 12, 1)) {
		t.Fatalf("expected last monthly event on 2027-12-01, got %s", events[35].Date)
	}
	last := events[36]
	if !last.Date.Equal(date(2028, 1, 1)) || last.Shares != 60 {
		t.Fatalf("expected final 60 on 2028-01-01, got %d on %s", last.Shares, last.Date)
	}
	if sum(events) != 1000 {
		t.Fatalf("expected events to sum to 1000, got %d", sum(events))
	}
}

func TestComputeVestingEventsSumsExactly(t *testing.T) {
	schedules := []state.VestingSchedule{
		{CliffDurationMonths: 0, VestingFrequencyMonths: 1, TotalVestingDurationMonths: 48},
		{CliffDurationMonths: 12, VestingFrequencyMonths: 3, TotalVestingDurationMonths: 48},
		{CliffDurationMonths: 6, VestingFrequencyMonths: 1, TotalVestingDurationMonths: 24},
		{CliffDurationMonths: 0, VestingFrequencyMonths: 12, TotalVestingDurationMonths: 36},
	}
	for _, shares := range []int64{1, 7, 999, 1000, 12345, 100003} {
		for _, s := range schedules {
			s := s
			start := date(2023, 3, 31)
			terms := GrantTerms{
				NumberOfShares:  shares,
				PeriodStartedAt: start,
				PeriodEndedAt:   addMonths(start, s.TotalVestingDurationMonths),
				VestingTrigger:  state.TriggerScheduled,
			}
			events, err := ComputeVestingEvents(terms, &s)
			if err != nil {
				t.Fatalf("compute %+v: %v", s, err)
			}
			if sum(events) != shares {
				t.Errorf("%d shares with %+v: events sum to %d", shares, s, sum(events))
			}
			if !events[len(events)-1].Date.Equal(terms.PeriodEndedAt) {
				t.Errorf("%+v: final event on %s, want %s", s, events[len(events)-1].Date, terms.PeriodEndedAt)
			}
			for i := 1; i < len(events); i++ {
				if !events[i].Date.After(events[i-1].Date) {
					t.Errorf("%+v: events out of order at %d", s, i)
				}
				if events[i].Shares <= 0 {
					t.Errorf("%+v: empty installment at %d", s, i)
				}
			}
		}
	}
}

func TestComputeVestingEventsPeriodOutlastsSchedule(t *testing.T) {
	terms := GrantTerms{
		NumberOfShares:  48,
		PeriodStartedAt: date(2024, 1, 1),
		PeriodEndedAt:   date(2029, 1, 1),
		VestingTrigger:  state.TriggerScheduled,
	}
	schedule := &state.VestingSchedule{VestingFrequencyMonths: 1, TotalVestingDurationMonths: 48}
	events, err := ComputeVestingEvents(terms, schedule)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(events) != 48 {
		t.Fatalf("expected 48 monthly events, got %d", len(events))
	}
	last := events[47]
	if last.Shares != 1 || !last.Date.Equal(date(2028, 1, 1)) {
		t.Fatalf("expected the last event to be 1 share on 2028-01-01, got %d on %s", last.Shares, last.Date)
	}
	if sum(events) != 48 {
		t.Fatalf("expected events to sum to 48, got %d", sum(events))
	}
}

func TestComputeVestingEventsFewerSharesThanPeriods(t *testing.T) {
	terms := GrantTerms{
		NumberOfShares:  7,
		PeriodStartedAt: date(2024, 1, 1),
		PeriodEndedAt:   date(2028, 1, 1),
		VestingTrigger:  state.TriggerScheduled,
	}
	schedule := &state.VestingSchedule{CliffDurationMonths: 12, VestingFrequencyMonths: 1, TotalVestingDurationMonths: 48}
	events, err := ComputeVestingEvents(terms, schedule)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(events) != 1 || events[0].Shares != 7 || !events[0].Date.Equal(date(2028, 1, 1)) {
		t.Fatalf("expected a single event of 7 on 2028-01-01, got %+v", events)
	}
}

func TestComputeVestingEventsQuarterlyCliff(t *testing.T) {
	terms := GrantTerms{
		NumberOfShares:  1000,
		PeriodStartedAt: date(2024, 1, 1),
		PeriodEndedAt:   date(2028, 1, 1),
		VestingTrigger:  state.TriggerScheduled,
	}
	schedule := &state.VestingSchedule{CliffDurationMonths: 12, VestingFrequencyMonths: 3, TotalVestingDurationMonths: 48}
	events, err := ComputeVestingEvents(terms, schedule)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 16 quarters of 62 shares, the first four vest together at the cliff
	if events[0].Shares != 248 || !events[0].Date.Equal(date(2025, 1, 1)) {
		t.Fatalf("expected cliff of 248 on 2025-01-01, got %d on %s", events[0].Shares, events[0].Date)
	}
	if events[1].Shares != 62 || !events[1].Date.Equal(date(2025, 4, 1)) {
		t.Fatalf("expected 62 on 2025-04-01, got %d on %s", events[1].Shares, events[1].Date)
	}
	if len(events) != 13 || events[12].Shares != 1000-248-11*62 {
		t.Fatalf("expected 13 events ending with the remainder, got %d ending with %d", len(events), events[len(events)-1].Shares)
	}
}

func TestComputeVestingEventsInvoiceTriggerIsEmpty(t *testing.T) {
	events, err := ComputeVestingEvents(GrantTerms{NumberOfShares: 10, VestingTrigger: state.TriggerInvoicePaid}, nil)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no events, got %v %v", events, err)
	}
}

func TestComputeVestingEventsValidation(t *testing.T) {
	good := &state.VestingSchedule{VestingFrequencyMonths: 1, TotalVestingDurationMonths: 12}
	cases := map[string]struct {
		terms    GrantTerms
		schedule *state.VestingSchedule
	}{
		"missing schedule": {GrantTerms{NumberOfShares: 10, PeriodStartedAt: date(2024, 1, 1), PeriodEndedAt: date(2025, 1, 1)}, nil},
		"start after end":  {GrantTerms{NumberOfShares: 10, PeriodStartedAt: date(2025, 1, 1), PeriodEndedAt: date(2024, 1, 1)}, good},
		"start equals end": {GrantTerms{NumberOfShares: 10, PeriodStartedAt: date(2024, 1, 1), PeriodEndedAt: date(2024, 1, 1)}, good},
		"no shares":        {GrantTerms{NumberOfShares: 0, PeriodStartedAt: date(2024, 1, 1), PeriodEndedAt: date(2025, 1, 1)}, good},
		"zero frequency": {GrantTerms{NumberOfShares: 10, PeriodStartedAt: date(2024, 1, 1), PeriodEndedAt: date(2025, 1, 1)},
			&state.VestingSchedule{TotalVestingDurationMonths: 12}},
		"cliff off the period grid": {GrantTerms{NumberOfShares: 10, PeriodStartedAt: date(2024, 1, 1), PeriodEndedAt: date(2025, 1, 1)},
			&state.VestingSchedule{CliffDurationMonths: 6, VestingFrequencyMonths: 4, TotalVestingDurationMonths: 12}},
	}
	for name, c := range cases {
		c.terms.VestingTrigger = state.TriggerScheduled
		if _, err := ComputeVestingEvents(c.terms, c.schedule); !errors.Is(err, ErrInvalidGrant) {
			t.Errorf("%s: expected ErrInvalidGrant, got %v", name, err)
		}
	}
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	if got := addMonths(date(2024, 1, 31), 1); !got.Equal(date(2024, 2, 29)) {
		t.Errorf("expected 2024-02-29, got %s", got)
	}
	if got := addMonths(date(2023, 3, 31), 12); !got.Equal(date(2024, 3, 31)) {
		t.Errorf("expected 2024-03-31, got %s", got)
	}
	if got := addMonths(date(2024, 11, 15), 3); !got.Equal(date(2025, 2, 15)) {
		t.Errorf("expected 2025-02-15, got %s", got)
	}
}

func sum(events []Installment) (total int64) {
	for _, e := range events {
		total += e.Shares
	}
	return
}
