package enums

import "fmt"

// Currency is the denomination stamped on ledger entries. Wallets are single-currency.
type Currency string

const CurrencyUSD Currency = "USD"

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	return c == CurrencyUSD
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(value)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}
