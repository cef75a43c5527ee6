package captable

import (
	"fmt"

	"equitydesk/state"
)

// Security is the part of a grant or holding a buyback can draw down.
type Security interface {
	Ref() state.SecurityRef
	CurrentQuantity() int64
	ReduceBy(n int64) error
	save(tx *state.Tx)
}

// grantSecurity sells vested options. Bought back options are forfeited, not exercised.
type grantSecurity struct {
	grant state.EquityGrant
}

func (g *grantSecurity) Ref() state.SecurityRef {
	return state.SecurityRef{Kind: state.SecurityEquityGrant, ID: g.grant.ID}
}

func (g *grantSecurity) CurrentQuantity() int64 { return g.grant.VestedShares }

func (g *grantSecurity) ReduceBy(n int64) error {
	if n > g.grant.VestedShares {
		return fmt.Errorf("grant %s has %d vested shares, %d requested: %w", g.grant.ID, g.grant.VestedShares, n, ErrInsufficientQuantity)
	}
	g.grant.VestedShares -= n
	g.grant.ForfeitedShares += n
	return nil
}

func (g *grantSecurity) save(tx *state.Tx) { tx.PutGrant(g.grant) }

type holdingSecurity struct {
	holding state.ShareHolding
}

func (h *holdingSecurity) Ref() state.SecurityRef {
	return state.SecurityRef{Kind: state.SecurityShareHolding, ID: h.holding.ID}
}

func (h *holdingSecurity) CurrentQuantity() int64 { return h.holding.NumberOfShares }

func (h *holdingSecurity) ReduceBy(n int64) error {
	if n > h.holding.NumberOfShares {
		return fmt.Errorf("holding %s has %d shares, %d requested: %w", h.holding.ID, h.holding.NumberOfShares, n, ErrInsufficientQuantity)
	}
	h.holding.NumberOfShares -= n
	return nil
}

func (h *holdingSecurity) save(tx *state.Tx) { tx.PutHolding(h.holding) }

func lockKey(ref state.SecurityRef) (string, error) {
	switch ref.Kind {
	case state.SecurityEquityGrant:
		return state.GrantKey(ref.ID), nil
	case state.SecurityShareHolding:
		return state.HoldingKey(ref.ID), nil
	}
	return "", fmt.Errorf("security %s: %w", ref, ErrUnsupportedSecurity)
}

func load(tx *state.Tx, ref state.SecurityRef) (Security, error) {
	switch ref.Kind {
	case state.SecurityEquityGrant:
		g, err := tx.Grant(ref.ID)
		if err != nil {
			return nil, err
		}
		return &grantSecurity{grant: g}, nil
	case state.SecurityShareHolding:
		h, err := tx.Holding(ref.ID)
		if err != nil {
			return nil, err
		}
		return &holdingSecurity{holding: h}, nil
	}
	return nil, fmt.Errorf("security %s: %w", ref, ErrUnsupportedSecurity)
}
