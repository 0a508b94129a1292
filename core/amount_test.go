package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"34.00", "BGN", 3400},
		{"34", "bgn", 3400},
		{"0.01", "EUR", 1},
		{"1500", "JPY", 1500},
		{"1.234", "KWD", 1234},
		{"12.5", "XXX", 1250},
	}
	for _, tc := range cases {
		got, err := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.amount, tc.currency, err)
		}
		if got != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.amount, tc.currency, tc.want, got)
		}
	}
}

func TestToMinorUnits_RejectsInvalidAmounts(t *testing.T) {
	for _, tc := range []struct {
		amount   string
		currency string
	}{
		{"0", "BGN"},
		{"-1.00", "BGN"},
		{"1.001", "BGN"},
		{"1.5", "JPY"},
		{"99999999999999999999", "BGN"},
	} {
		if _, err := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s %s: expected invalid input, got %v", tc.amount, tc.currency, err)
		}
	}
}

func TestFromMinorUnits(t *testing.T) {
	if got := FromMinorUnits(3400, "BGN"); !got.Equal(decimal.RequireFromString("34")) {
		t.Fatalf("expected 34, got %s", got)
	}
	if got := FromMinorUnits(1234, "KWD"); got.String() != "1.234" {
		t.Fatalf("expected 1.234, got %s", got)
	}
}
