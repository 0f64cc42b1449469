package enums

import (
	"fmt"
	"slices"
)

// DeductionReason classifies why money is being clawed back from a seller.
type DeductionReason string

const (
	DeductionReasonRefund     DeductionReason = "refund"
	DeductionReasonChargeback DeductionReason = "chargeback"
	DeductionReasonAdjustment DeductionReason = "adjustment"
)

var validDeductionReasons = []DeductionReason{
	DeductionReasonRefund,
	DeductionReasonChargeback,
	DeductionReasonAdjustment,
}

func (r DeductionReason) IsValid() bool {
	return slices.Contains(validDeductionReasons, r)
}

// ParseDeductionReason converts raw input into DeductionReason.
func ParseDeductionReason(value string) (DeductionReason, error) {
	r := DeductionReason(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid deduction reason %q", value)
	}
	return r, nil
}
