package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BalanceInfo holds the account's balances keyed by upper-case currency code.
// Either map may be empty when the exchange does not report that figure.
type BalanceInfo struct {
	Available map[string]decimal.Decimal `json:"available"`
	OnHold    map[string]decimal.Decimal `json:"on_hold"`
}

// NewBalanceInfo returns a BalanceInfo with both maps allocated.
func NewBalanceInfo() BalanceInfo {
	return BalanceInfo{
		Available: make(map[string]decimal.Decimal),
		OnHold:    make(map[string]decimal.Decimal),
	}
}

// SetAvailable records an available amount, normalising the currency code.
func (b BalanceInfo) SetAvailable(currency string, amount decimal.Decimal) {
	b.Available[strings.ToUpper(currency)] = amount
}

// SetOnHold records an amount reserved by open orders.
func (b BalanceInfo) SetOnHold(currency string, amount decimal.Decimal) {
	b.OnHold[strings.ToUpper(currency)] = amount
}

// AvailableFor returns the available amount for currency, zero when absent.
func (b BalanceInfo) AvailableFor(currency string) decimal.Decimal {
	if v, ok := b.Available[strings.ToUpper(currency)]; ok {
		return v
	}
	return decimal.Zero
}
