package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// TradingAPI is the uniform trading contract every exchange adapter offers.
// Implementations are driven by a single goroutine; calls block for at most
// the configured connection timeout. Errors are either *NetworkTimeoutError
// (retry on a later cycle) or *TradingAPIError (this operation failed).
type TradingAPI interface {
	// ImplName identifies the adapter for diagnostics.
	ImplName() string

	// MarketOrders returns the public order book. Sell orders are ascending by price.
	MarketOrders(ctx context.Context, marketID string) (MarketOrderBook, error)

	// YourOpenOrders returns this account's open orders on marketID.
	YourOpenOrders(ctx context.Context, marketID string) ([]OpenOrder, error)

	// CreateOrder places a limit order and returns its id.
	CreateOrder(ctx context.Context, marketID string, orderType OrderType, quantity, price decimal.Decimal) (string, error)

	// CancelOrder returns false when the exchange does not recognise orderID.
	CancelOrder(ctx context.Context, orderID, marketID string) (bool, error)

	// LatestMarketPrice returns the last traded price.
	LatestMarketPrice(ctx context.Context, marketID string) (decimal.Decimal, error)

	// BalanceInfo returns available and on-hold balances.
	BalanceInfo(ctx context.Context) (BalanceInfo, error)

	// BuyFeeFraction returns the taker fee for buys as a fraction in [0,1].
	BuyFeeFraction(ctx context.Context, marketID string) (decimal.Decimal, error)

	// SellFeeFraction returns the taker fee for sells as a fraction in [0,1].
	SellFeeFraction(ctx context.Context, marketID string) (decimal.Decimal, error)
}

// OrderJournal persists order lifecycle events outside the adapter layer.
type OrderJournal interface {
	RecordCreated(exchange, marketID, orderID string, orderType OrderType, quantity, price decimal.Decimal) error
	RecordCancelled(exchange, marketID, orderID string, recognised bool) error
}

// StateStore persists small pieces of bot state across restarts.
type StateStore interface {
	SaveState(key, value string) error
	LoadState(key string) (value string, ok bool, err error)
}
