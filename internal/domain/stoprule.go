package domain

import "github.com/shopspring/decimal"

// StopRule halts trading when the available balance of Currency falls
// below Floor. A zero Floor disables the rule.
type StopRule struct {
	Currency string          `json:"currency"`
	Floor    decimal.Decimal `json:"floor"`
}

// Enabled reports whether the rule can ever trip.
func (r StopRule) Enabled() bool {
	return r.Currency != "" && r.Floor.IsPositive()
}

// CheckCondition returns true when the rule is breached.
// A currency missing from the balance counts as zero.
func (r StopRule) CheckCondition(info BalanceInfo) bool {
	if !r.Enabled() {
		return false
	}
	return info.AvailableFor(r.Currency).LessThan(r.Floor)
}
