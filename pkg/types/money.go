package types

import "github.com/shopspring/decimal"

// CentsToDecimal converts an integer cents amount into a two-place decimal.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

// DecimalToCents converts a decimal amount into integer cents, rounding
// half away from zero at two places.
func DecimalToCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// FormatCents renders a cents amount as a fixed two-place string, e.g. "40.00".
func FormatCents(cents int64) string {
	return CentsToDecimal(cents).StringFixed(2)
}
