package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/infra/transport"
)

// Profile is the per-exchange half of an adapter: where the exchange lives
// and how it wants numbers formatted. What it can do is declared by which of
// the reader/creator interfaces below the profile also implements.
type Profile interface {
	Name() string
	BaseURL() string
	Precision() Precision
}

// KeyLoader is implemented by profiles that sign requests. LoadKeys runs once
// at adapter construction when credentials carry a key.
type KeyLoader interface {
	LoadKeys(creds domain.AdapterCredentials) error
}

type OrderBookReader interface {
	MarketOrders(ctx context.Context, s *Session, marketID string) (domain.MarketOrderBook, error)
}

type OpenOrdersReader interface {
	OpenOrders(ctx context.Context, s *Session, marketID string) ([]domain.OpenOrder, error)
}

// OrderCreator receives quantity and price already cut to the profile's Precision.
type OrderCreator interface {
	CreateOrder(ctx context.Context, s *Session, marketID string, t domain.OrderType, quantity, price decimal.Decimal) (string, error)
}

// OrderCanceller returns false, nil when the exchange does not know orderID.
type OrderCanceller interface {
	CancelOrder(ctx context.Context, s *Session, orderID, marketID string) (bool, error)
}

type PriceReader interface {
	LatestPrice(ctx context.Context, s *Session, marketID string) (decimal.Decimal, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, s *Session) (domain.BalanceInfo, error)
}

// FeeReader returns live taker fees as percentages.
type FeeReader interface {
	BuyFeePercent(ctx context.Context, s *Session, marketID string) (decimal.Decimal, error)
	SellFeePercent(ctx context.Context, s *Session, marketID string) (decimal.Decimal, error)
}

// ErrFilledImmediately is returned by CreateOrder when the exchange filled the
// order on arrival and has no id to report for it.
var ErrFilledImmediately = errors.New("order filled immediately")

// RejectError is a business refusal from the exchange; Message is its raw text.
type RejectError struct {
	Message string
}

func (e *RejectError) Error() string {
	return e.Message
}

// Rejectf builds a RejectError.
func Rejectf(format string, args ...any) error {
	return &RejectError{Message: fmt.Sprintf(format, args...)}
}

// CapabilitiesOf derives a profile's capability set from the interfaces it implements.
func CapabilitiesOf(p Profile) domain.Capabilities {
	var c domain.Capabilities
	if _, ok := p.(OrderBookReader); ok {
		c |= domain.CapMarketOrders
	}
	if _, ok := p.(OpenOrdersReader); ok {
		c |= domain.CapOpenOrders
	}
	if _, ok := p.(OrderCreator); ok {
		c |= domain.CapCreateOrder
	}
	if _, ok := p.(OrderCanceller); ok {
		c |= domain.CapCancelOrder
	}
	if _, ok := p.(PriceReader); ok {
		c |= domain.CapLatestPrice
	}
	if _, ok := p.(BalanceReader); ok {
		c |= domain.CapBalance
	}
	if _, ok := p.(FeeReader); ok {
		c |= domain.CapFees
	}
	return c
}

// KeysNotLoaded is the error signers return before LoadKeys succeeded.
func KeysNotLoaded(exchange string) error {
	return &domain.ConfigError{Field: exchange + ".keys", Err: domain.ErrKeysNotLoaded}
}

// MissingKey reports a credential field the exchange needs but did not get.
func MissingKey(exchange, field string) error {
	return &domain.ConfigError{Field: exchange + "." + field, Err: errors.New("required for signing")}
}

// FailureOrderID is the id some exchanges echo instead of an error envelope
// when they refuse an order.
const FailureOrderID = "0"

// OrderIDFromReply returns id, or a RejectError quoting the raw reply when id
// is the failure sentinel.
func OrderIDFromReply(id string, payload []byte) (string, error) {
	if strings.TrimSpace(id) == FailureOrderID {
		return "", Rejectf("exchange returned failure order id 0: %s", Truncated(payload, 256))
	}
	return id, nil
}

// CheckStatus rejects a non-2xx reply, quoting the start of the exchange's text.
func CheckStatus(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return Rejectf("%d %s: %s", resp.StatusCode, resp.Reason, Truncated(resp.Payload, 256))
}
