package exchange

import "github.com/shopspring/decimal"

// RoundingMode selects how prices and amounts are cut to an exchange's precision.
type RoundingMode int

const (
	Truncate RoundingMode = iota
	HalfEven
)

// Precision is an exchange's decimal-place rule for order submission.
type Precision struct {
	PricePlaces  int32
	AmountPlaces int32
	Mode         RoundingMode
}

// DefaultPrecision is the common two places for price and eight for amount.
var DefaultPrecision = Precision{PricePlaces: 2, AmountPlaces: 8, Mode: Truncate}

// Price cuts p to the exchange's price precision.
func (p Precision) Price(v decimal.Decimal) decimal.Decimal {
	return p.apply(v, p.PricePlaces)
}

// Amount cuts v to the exchange's amount precision.
func (p Precision) Amount(v decimal.Decimal) decimal.Decimal {
	return p.apply(v, p.AmountPlaces)
}

func (p Precision) apply(v decimal.Decimal, places int32) decimal.Decimal {
	if p.Mode == HalfEven {
		return v.RoundBank(places)
	}
	return v.Truncate(places)
}

// FormatPrice renders a quantised price with a fixed number of places.
func (p Precision) FormatPrice(v decimal.Decimal) string {
	return p.Price(v).StringFixed(p.PricePlaces)
}

// FormatAmount renders a quantised amount with a fixed number of places.
func (p Precision) FormatAmount(v decimal.Decimal) string {
	return p.Amount(v).StringFixed(p.AmountPlaces)
}
