package state

import (
	"fmt"
	"time"

	"equitydesk/engine/library"
	"github.com/shopspring/decimal"
)

type VestingTrigger string

const (
	TriggerScheduled   VestingTrigger = "scheduled"
	TriggerInvoicePaid VestingTrigger = "invoice_paid"
)

// VestedSharesClass is the pseudo share class investors bid vested options under.
const VestedSharesClass library.ShareClass = "vested_shares"

type VestingSchedule struct {
	ID                         library.ScheduleID `json:"id" yaml:"id"`
	CliffDurationMonths        int                `json:"cliff_duration_months" yaml:"cliffDurationMonths"`
	VestingFrequencyMonths     int                `json:"vesting_frequency_months" yaml:"vestingFrequencyMonths"`
	TotalVestingDurationMonths int                `json:"total_vesting_duration_months" yaml:"totalVestingDurationMonths"`
}

type EquityGrant struct {
	ID                library.GrantID      `json:"id"`
	CompanyID         library.CompanyID    `json:"company_id"`
	InvestorID        library.InvestorID   `json:"investor_id"`
	OptionPoolID      library.OptionPoolID `json:"option_pool_id"`
	NumberOfShares    int64                `json:"number_of_shares"`
	VestedShares      int64                `json:"vested_shares"`
	UnvestedShares    int64                `json:"unvested_shares"`
	ExercisedShares   int64                `json:"exercised_shares"`
	ForfeitedShares   int64                `json:"forfeited_shares"`
	ExercisePriceUsd  decimal.Decimal      `json:"exercise_price_usd"`
	PeriodStartedAt   time.Time            `json:"period_started_at"`
	PeriodEndedAt     time.Time            `json:"period_ended_at"`
	VestingTrigger    VestingTrigger       `json:"vesting_trigger"`
	VestingScheduleID library.ScheduleID   `json:"vesting_schedule_id,omitempty"`
	IssuedAt          time.Time            `json:"issued_at"`
	CancelledAt       *time.Time           `json:"cancelled_at,omitempty"`
}

type VestingEventStatus string

const (
	EventUnprocessed VestingEventStatus = "unprocessed"
	EventProcessed   VestingEventStatus = "processed"
	EventCancelled   VestingEventStatus = "cancelled"
)

const (
	ReasonNotEnoughShares = "not_enough_shares_available"
	ReasonGrantCancelled  = "grant_cancelled"
)

type VestingEvent struct {
	ID                 library.EventID    `json:"id"`
	GrantID            library.GrantID    `json:"grant_id"`
	VestingDate        time.Time          `json:"vesting_date"`
	VestedShares       int64              `json:"vested_shares"`
	Status             VestingEventStatus `json:"status"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	InvoiceID          string             `json:"invoice_id,omitempty"`
	ProcessedAt        *time.Time         `json:"processed_at,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
}

// Terminal reports whether the event can no longer change status.
func (e VestingEvent) Terminal() bool {
	return e.Status == EventProcessed || e.Status == EventCancelled
}

// MarkProcessed moves an unprocessed event to processed.
func (e *VestingEvent) MarkProcessed(now time.Time) error {
	if e.Status != EventUnprocessed {
		return fmt.Errorf("vesting event %s is %s: %w", e.ID, e.Status, ErrTerminalEvent)
	}
	e.Status = EventProcessed
	e.ProcessedAt = &now
	return nil
}

// MarkCancelled moves an unprocessed event to cancelled with reason.
func (e *VestingEvent) MarkCancelled(reason string, now time.Time) error {
	if e.Status != EventUnprocessed {
		return fmt.Errorf("vesting event %s is %s: %w", e.ID, e.Status, ErrTerminalEvent)
	}
	e.Status = EventCancelled
	e.CancellationReason = reason
	e.CancelledAt = &now
	return nil
}

// EquityGrantTransaction is the audit row written once per processed vesting event.
type EquityGrantTransaction struct {
	ID                  string             `json:"id"`
	GrantID             library.GrantID    `json:"grant_id"`
	InvestorID          library.InvestorID `json:"investor_id"`
	VestingEventID      library.EventID    `json:"vesting_event_id"`
	InvoiceID           string             `json:"invoice_id,omitempty"`
	VestedShares        int64              `json:"vested_shares"`
	TotalVestedShares   int64              `json:"total_vested_shares"`
	TotalUnvestedShares int64              `json:"total_unvested_shares"`
	CreatedAt           time.Time          `json:"created_at"`
}

type ShareHolding struct {
	ID                   library.HoldingID  `json:"id"`
	CompanyID            library.CompanyID  `json:"company_id"`
	InvestorID           library.InvestorID `json:"investor_id"`
	ShareClass           library.ShareClass `json:"share_class"`
	NumberOfShares       int64              `json:"number_of_shares"`
	OriginallyAcquiredAt time.Time          `json:"originally_acquired_at"`
	IssuedAt             time.Time          `json:"issued_at"`
}

type Company struct {
	ID                 library.CompanyID `json:"id" yaml:"id"`
	Name               string            `json:"name" yaml:"name"`
	FullyDilutedShares int64             `json:"fully_diluted_shares" yaml:"fullyDilutedShares"`
}

type OptionPool struct {
	ID               library.OptionPoolID `json:"id"`
	CompanyID        library.CompanyID    `json:"company_id"`
	AuthorizedShares int64                `json:"authorized_shares"`
	IssuedShares     int64                `json:"issued_shares"`
}

type TenderOffer struct {
	ID                 library.TenderOfferID `json:"id"`
	CompanyID          library.CompanyID     `json:"company_id"`
	StartsAt           time.Time             `json:"starts_at"`
	EndsAt             time.Time             `json:"ends_at"`
	NumberOfShares     int64                 `json:"number_of_shares"`
	TotalAmountInCents int64                 `json:"total_amount_in_cents"`
	AcceptedPriceCents *int64                `json:"accepted_price_cents,omitempty"`
	SolvedAt           *time.Time            `json:"solved_at,omitempty"`
	// SettlementError parks the offer for an operator after a non-retryable failure.
	SettlementError string `json:"settlement_error,omitempty"`
}

// Closed reports whether bidding has ended at now.
func (o TenderOffer) Closed(now time.Time) bool {
	return now.After(o.EndsAt)
}

type TenderOfferBid struct {
	ID                library.BidID         `json:"id"`
	TenderOfferID     library.TenderOfferID `json:"tender_offer_id"`
	CompanyInvestorID library.InvestorID    `json:"company_investor_id"`
	ShareClass        library.ShareClass    `json:"share_class"`
	NumberOfShares    int64                 `json:"number_of_shares"`
	SharePriceCents   int64                 `json:"share_price_cents"`
	AcceptedShares    int64                 `json:"accepted_shares"`
	CreatedAt         time.Time             `json:"created_at"`
}

type RoundStatus string

const (
	RoundIssued    RoundStatus = "issued"
	RoundFinalized RoundStatus = "finalized"
	RoundApplied   RoundStatus = "applied"
)

type EquityBuybackRound struct {
	ID                   library.RoundID       `json:"id"`
	CompanyID            library.CompanyID     `json:"company_id"`
	TenderOfferID        library.TenderOfferID `json:"tender_offer_id"`
	NumberOfShares       int64                 `json:"number_of_shares"`
	NumberOfShareholders int64                 `json:"number_of_shareholders"`
	TotalAmountCents     int64                 `json:"total_amount_cents"`
	Status               RoundStatus           `json:"status"`
	IssuedAt             time.Time             `json:"issued_at"`
	FinalizedAt          *time.Time            `json:"finalized_at,omitempty"`
	AppliedAt            *time.Time            `json:"applied_at,omitempty"`
}

type SecurityKind string

const (
	SecurityEquityGrant  SecurityKind = "equity_grant"
	SecurityShareHolding SecurityKind = "share_holding"
)

// SecurityRef points at the lot a buyback draws from.
type SecurityRef struct {
	Kind SecurityKind `json:"kind"`
	ID   string       `json:"id"`
}

func (r SecurityRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

type EquityBuyback struct {
	ID                 string             `json:"id"`
	RoundID            library.RoundID    `json:"round_id"`
	Sequence           int                `json:"sequence"`
	CompanyID          library.CompanyID  `json:"company_id"`
	InvestorID         library.InvestorID `json:"investor_id"`
	Security           SecurityRef        `json:"security"`
	ShareClass         library.ShareClass `json:"share_class"`
	NumberOfShares     int64              `json:"number_of_shares"`
	ExercisePriceCents int64              `json:"exercise_price_cents"`
	SharePriceCents    int64              `json:"share_price_cents"`
	TotalAmountCents   int64              `json:"total_amount_cents"`
	CreatedAt          time.Time          `json:"created_at"`
}
