package payments

import "github.com/shopspring/decimal"

var minorUnitFactor = decimal.NewFromInt(100)

// MinorUnits converts a currency-exact decimal amount into the
// processor's integer minor-unit representation, rounding to the
// nearest whole unit. 123.45 becomes 12345; never truncated.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitFactor).Round(0).IntPart()
}
