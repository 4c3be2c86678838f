package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// OrderCounter counts journaled orders by status.
type OrderCounter interface {
	RecordOrder(exchange, status string)
}

// JournalingAPI wraps a TradingAPI and journals every order it places or
// cancels. All other operations pass straight through.
type JournalingAPI struct {
	domain.TradingAPI
	exchange string
	journal  domain.OrderJournal
	counter  OrderCounter
	logger   *slog.Logger
}

var _ domain.TradingAPI = (*JournalingAPI)(nil)

// NewJournalingAPI decorates api. counter may be nil.
func NewJournalingAPI(api domain.TradingAPI, exchange string, journal domain.OrderJournal, counter OrderCounter) *JournalingAPI {
	return &JournalingAPI{
		TradingAPI: api,
		exchange:   exchange,
		journal:    journal,
		counter:    counter,
		logger:     slog.Default().With("module", "journal", "exchange", exchange),
	}
}

// CreateOrder is the hook strategies call to place an order. It places the
// order, then journals it. A journal failure is logged and does not fail the
// call: the order exists on the exchange.
func (j *JournalingAPI) CreateOrder(ctx context.Context, marketID string, orderType domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	id, err := j.TradingAPI.CreateOrder(ctx, marketID, orderType, quantity, price)
	if err != nil {
		return "", err
	}

	if jerr := j.journal.RecordCreated(j.exchange, marketID, id, orderType, quantity, price); jerr != nil {
		j.logger.Error("Failed to journal created order",
			slog.String("order_id", id),
			slog.String("market", marketID),
			slog.Any("error", jerr),
		)
		return id, nil
	}
	j.count(domain.OrderStatusPlaced)
	return id, nil
}

// CancelOrder cancels the order, then journals the outcome.
func (j *JournalingAPI) CancelOrder(ctx context.Context, orderID, marketID string) (bool, error) {
	ok, err := j.TradingAPI.CancelOrder(ctx, orderID, marketID)
	if err != nil {
		return false, err
	}

	if jerr := j.journal.RecordCancelled(j.exchange, marketID, orderID, ok); jerr != nil {
		j.logger.Error("Failed to journal cancelled order",
			slog.String("order_id", orderID),
			slog.String("market", marketID),
			slog.Any("error", jerr),
		)
		return ok, nil
	}
	if ok {
		j.count(domain.OrderStatusCancelled)
	} else {
		j.count(domain.OrderStatusCancelMissed)
	}
	return ok, nil
}

func (j *JournalingAPI) count(status string) {
	if j.counter != nil {
		j.counter.RecordOrder(j.exchange, status)
	}
}
