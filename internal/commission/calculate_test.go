package commission

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculate(t *testing.T) {
	cases := []struct {
		name       string
		subtotal   int64
		fee        int64
		delivered  bool
		rate       string
		commission int64
		credit     int64
	}{
		{name: "rounds down in the cook's favor", subtotal: 3333, rate: "7.5", commission: 249, credit: 3084},
		{name: "delivery fee is credited untaxed", subtotal: 5000, fee: 500, delivered: true, rate: "10", commission: 500, credit: 5000},
		{name: "pickup ignores delivery fee", subtotal: 5000, fee: 500, delivered: false, rate: "10", commission: 500, credit: 4500},
		{name: "zero rate", subtotal: 1999, rate: "0", commission: 0, credit: 1999},
		{name: "full rate", subtotal: 1999, rate: "100", commission: 1999, credit: 0},
		{name: "zero subtotal", subtotal: 0, fee: 300, delivered: true, rate: "10", commission: 0, credit: 300},
		{name: "sub-cent commission", subtotal: 9, rate: "10", commission: 0, credit: 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Calculate(tc.subtotal, tc.fee, tc.delivered, decimal.RequireFromString(tc.rate))
			if got.CommissionCents != tc.commission || got.CookCreditCents != tc.credit {
				t.Fatalf("Calculate(%d, %d, %v, %s) = %+v, want commission %d credit %d",
					tc.subtotal, tc.fee, tc.delivered, tc.rate, got, tc.commission, tc.credit)
			}
		})
	}
}

func TestCalculateConservesSubtotal(t *testing.T) {
	for subtotal := int64(0); subtotal <= 2500; subtotal += 7 {
		for _, rate := range []string{"0", "2.5", "7.5", "10", "12.25", "33.33", "100"} {
			got := Calculate(subtotal, 0, false, decimal.RequireFromString(rate))
			if got.CommissionCents+got.CookCreditCents != subtotal {
				t.Fatalf("subtotal %d rate %s split into %+v", subtotal, rate, got)
			}
			exact := decimal.NewFromInt(subtotal).Mul(decimal.RequireFromString(rate)).Div(hundred)
			if decimal.NewFromInt(got.CommissionCents).GreaterThan(exact) {
				t.Fatalf("commission %d exceeds exact %s", got.CommissionCents, exact)
			}
		}
	}
}
