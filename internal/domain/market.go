package domain

import "sort"

// MarketOrderBook is a snapshot of one market's resting orders.
// SellOrders are ascending by price once they leave an adapter.
type MarketOrderBook struct {
	MarketID   string        `json:"market_id"`
	SellOrders []MarketOrder `json:"sell_orders"`
	BuyOrders  []MarketOrder `json:"buy_orders"`
}

// SortSellOrders puts the sell side in ascending price order.
// Equal prices keep the exchange's order.
func (b *MarketOrderBook) SortSellOrders() {
	sort.SliceStable(b.SellOrders, func(i, j int) bool {
		return b.SellOrders[i].Price.LessThan(b.SellOrders[j].Price)
	})
}

// SellOrdersAscending reports whether the sell side is non-decreasing.
func (b *MarketOrderBook) SellOrdersAscending() bool {
	for i := 1; i < len(b.SellOrders); i++ {
		if b.SellOrders[i].Price.LessThan(b.SellOrders[i-1].Price) {
			return false
		}
	}
	return true
}

// BestAsk returns the lowest sell order, if any.
func (b *MarketOrderBook) BestAsk() (MarketOrder, bool) {
	if len(b.SellOrders) == 0 {
		return MarketOrder{}, false
	}
	return b.SellOrders[0], true
}

// BestBid returns the first buy order, if any.
func (b *MarketOrderBook) BestBid() (MarketOrder, bool) {
	if len(b.BuyOrders) == 0 {
		return MarketOrder{}, false
	}
	return b.BuyOrders[0], true
}
