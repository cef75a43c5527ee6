package library

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestUsdToCents(t *testing.T) {
	cases := map[string]int64{
		"1":      100,
		"2.5":    250,
		"0.015":  2,
		"12.344": 1234,
	}
	for in, want := range cases {
		if got := UsdToCents(decimal.RequireFromString(in)); got != want {
			t.Errorf("UsdToCents(%s) = %d, want %d", in, got, want)
		}
	}
	if !CentsToUsd(1050).Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("expected 10.5, got %s", CentsToUsd(1050))
	}
}
