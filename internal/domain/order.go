package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the side of an order.
type OrderType int

const (
	OrderTypeBuy OrderType = iota + 1
	OrderTypeSell
)

// String returns "BUY" or "SELL".
func (t OrderType) String() string {
	switch t {
	case OrderTypeBuy:
		return "BUY"
	case OrderTypeSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseOrderType accepts BUY/SELL in any case.
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return OrderTypeBuy, nil
	case "SELL":
		return OrderTypeSell, nil
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

// MarketOrder is one price level of an order book.
// Total is always Price * Quantity and is never taken from the exchange.
type MarketOrder struct {
	Type     OrderType       `json:"type"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

// NewMarketOrder builds a MarketOrder and derives its total.
func NewMarketOrder(t OrderType, price, quantity decimal.Decimal) MarketOrder {
	return MarketOrder{
		Type:     t,
		Price:    price,
		Quantity: quantity,
		Total:    price.Mul(quantity),
	}
}

// OpenOrder is an order of ours still resting on the exchange.
type OpenOrder struct {
	ID                string           `json:"id"`
	CreatedAt         time.Time        `json:"created_at"`
	MarketID          string           `json:"market_id"`
	Type              OrderType        `json:"type"`
	Price             decimal.Decimal  `json:"price"`
	QuantityRemaining decimal.Decimal  `json:"quantity_remaining"`
	OriginalQuantity  *decimal.Decimal `json:"original_quantity,omitempty"` // nil when the exchange does not expose it
	Total             decimal.Decimal  `json:"total"`
}

// NewOpenOrder builds an OpenOrder. A nil total falls back to price * remaining.
func NewOpenOrder(id string, created time.Time, marketID string, t OrderType,
	price, remaining decimal.Decimal, original, total *decimal.Decimal) OpenOrder {
	o := OpenOrder{
		ID:                id,
		CreatedAt:         created,
		MarketID:          marketID,
		Type:              t,
		Price:             price,
		QuantityRemaining: remaining,
		OriginalQuantity:  original,
	}
	if total != nil {
		o.Total = *total
	} else {
		o.Total = price.Mul(remaining)
	}
	return o
}

// PlaceholderOrderIDPrefix marks order ids synthesized for orders that filled
// before the exchange could report an id.
const PlaceholderOrderIDPrefix = "FILLED-"

// IsPlaceholderOrderID reports whether id was synthesized locally.
func IsPlaceholderOrderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderOrderIDPrefix)
}
