package commission

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Breakdown splits an order's money between the platform and the cook.
type Breakdown struct {
	CommissionCents int64
	CookCreditCents int64
}

// Calculate takes floor(subtotal * rate / 100) as commission, so fractional
// cents always fall to the cook. The delivery fee is never commissioned and is
// credited only when the order was delivered.
func Calculate(subtotalCents, deliveryFeeCents int64, delivered bool, rate decimal.Decimal) Breakdown {
	commission := decimal.NewFromInt(subtotalCents).Mul(rate).Div(hundred).Floor().IntPart()
	credit := subtotalCents - commission
	if delivered {
		credit += deliveryFeeCents
	}
	return Breakdown{CommissionCents: commission, CookCreditCents: credit}
}
