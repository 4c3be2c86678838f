package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is the latest view of one market on one exchange,
// refreshed once per monitor cycle.
type MarketSnapshot struct {
	Exchange   string          `json:"exchange"`
	MarketID   string          `json:"market_id"`
	LastPrice  decimal.Decimal `json:"last_price"`
	BestBid    *MarketOrder    `json:"best_bid,omitempty"`
	BestAsk    *MarketOrder    `json:"best_ask,omitempty"`
	OpenOrders int             `json:"open_orders"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Key identifies the snapshot across exchanges.
func (s *MarketSnapshot) Key() string {
	return s.Exchange + "/" + s.MarketID
}

// SpreadPct calculates 100 * (ask - bid) / bid
func (s *MarketSnapshot) SpreadPct() *decimal.Decimal {
	if s.BestBid == nil || s.BestAsk == nil {
		return nil
	}
	if s.BestBid.Price.IsZero() {
		return nil
	}

	spread := s.BestAsk.Price.Sub(s.BestBid.Price).Div(s.BestBid.Price).Mul(decimal.NewFromInt(100))
	return &spread
}

// IsCrossed returns true if the best bid is at or above the best ask.
func (s *MarketSnapshot) IsCrossed() bool {
	if s.BestBid == nil || s.BestAsk == nil {
		return false
	}
	return s.BestBid.Price.GreaterThanOrEqual(s.BestAsk.Price)
}

// PriceState returns "above-ask", "below-bid", "inside" or "unknown"
// for the last trade relative to the book.
func (s *MarketSnapshot) PriceState() string {
	if s.BestBid == nil || s.BestAsk == nil || s.LastPrice.IsZero() {
		return "unknown"
	}
	if s.LastPrice.GreaterThan(s.BestAsk.Price) {
		return "above-ask"
	}
	if s.LastPrice.LessThan(s.BestBid.Price) {
		return "below-bid"
	}
	return "inside"
}
