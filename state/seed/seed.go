package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"equitydesk/engine/library"
	"equitydesk/state"
	"equitydesk/state/vesting"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File is a cap table fixture loaded on startup.
type File struct {
	Companies    []state.Company         `yaml:"companies"`
	OptionPools  []OptionPool            `yaml:"optionPools"`
	Schedules    []state.VestingSchedule `yaml:"schedules"`
	Grants       []Grant                 `yaml:"grants"`
	Holdings     []Holding               `yaml:"holdings"`
	TenderOffers []TenderOffer           `yaml:"tenderOffers"`
}

type OptionPool struct {
	ID               library.OptionPoolID `yaml:"id"`
	CompanyID        library.CompanyID    `yaml:"companyId"`
	AuthorizedShares int64                `yaml:"authorizedShares"`
}

type Grant struct {
	ID               library.GrantID      `yaml:"id"`
	CompanyID        library.CompanyID    `yaml:"companyId"`
	InvestorID       library.InvestorID   `yaml:"investorId"`
	OptionPoolID     library.OptionPoolID `yaml:"optionPoolId"`
	NumberOfShares   int64                `yaml:"numberOfShares"`
	ExercisePriceUsd string               `yaml:"exercisePriceUsd"`
	PeriodStartedAt  time.Time            `yaml:"periodStartedAt"`
	PeriodEndedAt    time.Time            `yaml:"periodEndedAt"`
	VestingTrigger   state.VestingTrigger `yaml:"vestingTrigger"`
	ScheduleID       library.ScheduleID   `yaml:"scheduleId"`
}

type Holding struct {
	ID                   library.HoldingID  `yaml:"id"`
	CompanyID            library.CompanyID  `yaml:"companyId"`
	InvestorID           library.InvestorID `yaml:"investorId"`
	ShareClass           library.ShareClass `yaml:"shareClass"`
	NumberOfShares       int64              `yaml:"numberOfShares"`
	OriginallyAcquiredAt time.Time          `yaml:"originallyAcquiredAt"`
	IssuedAt             time.Time          `yaml:"issuedAt"`
}

type TenderOffer struct {
	ID                 library.TenderOfferID `yaml:"id"`
	CompanyID          library.CompanyID     `yaml:"companyId"`
	StartsAt           time.Time             `yaml:"startsAt"`
	EndsAt             time.Time             `yaml:"endsAt"`
	NumberOfShares     int64                 `yaml:"numberOfShares"`
	TotalAmountInCents int64                 `yaml:"totalAmountInCents"`
	Bids               []Bid                 `yaml:"bids"`
}

type Bid struct {
	ID              library.BidID      `yaml:"id"`
	InvestorID      library.InvestorID `yaml:"investorId"`
	ShareClass      library.ShareClass `yaml:"shareClass"`
	NumberOfShares  int64              `yaml:"numberOfShares"`
	SharePriceCents int64              `yaml:"sharePriceCents"`
	CreatedAt       time.Time          `yaml:"createdAt"`
}

func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &f, nil
}

// Summary counts what Apply added. Rows already in the store are skipped.
type Summary struct {
	Rows   int
	Grants int
}

// Apply inserts the fixture's rows that are not already present. Grants are issued
// through the ledger so their vesting events are calculated.
func (f *File) Apply(ctx context.Context, store *state.Store, ledger *vesting.Ledger, now time.Time) (Summary, error) {
	var sum Summary
	err := store.Update(ctx, func(tx *state.Tx) error {
		sum = Summary{}
		insert := func(err error) error {
			if errors.Is(err, state.ErrDuplicate) {
				return nil
			}
			if err == nil {
				sum.Rows++
			}
			return err
		}
		for _, c := range f.Companies {
			if err := insert(tx.InsertCompany(c)); err != nil {
				return err
			}
		}
		for _, p := range f.OptionPools {
			if err := insert(tx.InsertOptionPool(state.OptionPool{ID: p.ID, CompanyID: p.CompanyID, AuthorizedShares: p.AuthorizedShares})); err != nil {
				return err
			}
		}
		for _, s := range f.Schedules {
			if err := insert(tx.InsertSchedule(s)); err != nil {
				return err
			}
		}
		for _, h := range f.Holdings {
			if err := insert(tx.InsertHolding(state.ShareHolding(h))); err != nil {
				return err
			}
		}
		for _, o := range f.TenderOffers {
			err := insert(tx.InsertOffer(state.TenderOffer{
				ID:                 o.ID,
				CompanyID:          o.CompanyID,
				StartsAt:           o.StartsAt,
				EndsAt:             o.EndsAt,
				NumberOfShares:     o.NumberOfShares,
				TotalAmountInCents: o.TotalAmountInCents,
			}))
			if err != nil {
				return err
			}
			for _, b := range o.Bids {
				created := b.CreatedAt
				if created.IsZero() {
					created = now
				}
				err := insert(tx.InsertBid(state.TenderOfferBid{
					ID:                b.ID,
					TenderOfferID:     o.ID,
					CompanyInvestorID: b.InvestorID,
					ShareClass:        b.ShareClass,
					NumberOfShares:    b.NumberOfShares,
					SharePriceCents:   b.SharePriceCents,
					CreatedAt:         created,
				}))
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("applying seed rows: %w", err)
	}
	for _, g := range f.Grants {
		if exists(store, g.ID) {
			continue
		}
		price := decimal.Zero
		if g.ExercisePriceUsd != "" {
			if price, err = decimal.NewFromString(g.ExercisePriceUsd); err != nil {
				return sum, fmt.Errorf("grant %s exercise price %q: %w", g.ID, g.ExercisePriceUsd, err)
			}
		}
		params := vesting.GrantParams{
			ID:               g.ID,
			CompanyID:        g.CompanyID,
			InvestorID:       g.InvestorID,
			OptionPoolID:     g.OptionPoolID,
			NumberOfShares:   g.NumberOfShares,
			ExercisePriceUsd: price,
			PeriodStartedAt:  g.PeriodStartedAt,
			PeriodEndedAt:    g.PeriodEndedAt,
			VestingTrigger:   g.VestingTrigger,
		}
		if g.ScheduleID != "" {
			params.Schedule = &state.VestingSchedule{ID: g.ScheduleID}
		}
		if _, err := ledger.IssueGrant(ctx, params, now); err != nil {
			return sum, err
		}
		sum.Grants++
	}
	library.LogCLI(fmt.Sprintf("seed applied: %d rows, %d grants", sum.Rows, sum.Grants), 4)
	return sum, nil
}

func exists(store *state.Store, id library.GrantID) bool {
	err := store.View(func(tx *state.Tx) error {
		_, err := tx.Grant(id)
		return err
	})
	return err == nil
}
