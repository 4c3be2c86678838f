package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	feeOne   = decimal.NewFromInt(1)
	feeScale = int32(8)
	feeZero  = decimal.Zero
)

// FeeFraction converts a percentage (0.25 meaning 0.25%) into a fraction with
// eight decimal places, rounding half up. Results outside [0,1] are rejected.
func FeeFraction(percent decimal.Decimal) (decimal.Decimal, error) {
	f := percent.DivRound(hundred, feeScale)
	if f.LessThan(feeZero) || f.GreaterThan(feeOne) {
		return decimal.Zero, fmt.Errorf("fee percentage %s outside [0,100]", percent)
	}
	return f, nil
}
