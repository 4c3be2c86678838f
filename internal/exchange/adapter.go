package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/infra/transport"
)

// Call outcomes reported to an Observer.
const (
	OutcomeOK          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeRejected    = "rejected"
	OutcomeError       = "error"
	OutcomeUnsupported = "unsupported"
)

// Observer receives one observation per adapter call.
type Observer interface {
	ObserveCall(exchange, op, outcome string, elapsed time.Duration)
}

// Adapter implements domain.TradingAPI over an exchange Profile. It is not
// safe for concurrent use: one goroutine drives it so that orders keep their
// submission order.
type Adapter struct {
	profile  Profile
	session  *Session
	caps     domain.Capabilities
	buyFee   *decimal.Decimal
	sellFee  *decimal.Decimal
	observer Observer
	logger   *slog.Logger
	newID    func() string
}

var _ domain.TradingAPI = (*Adapter)(nil)

// Option customises an Adapter.
type Option func(*Adapter)

// WithObserver reports every call to o.
func WithObserver(o Observer) Option {
	return func(a *Adapter) {
		a.observer = o
	}
}

// WithTransport replaces the transport built from the credentials.
func WithTransport(c *transport.Client) Option {
	return func(a *Adapter) {
		a.session.transport = c
	}
}

// New builds an adapter. Keys are loaded when the credentials carry one;
// without keys only public operations will succeed.
func New(p Profile, creds domain.AdapterCredentials, opts ...Option) (*Adapter, error) {
	name := p.Name()
	logger := slog.Default().With("module", "exchange", "exchange", name)

	baseURL := p.BaseURL()
	if creds.BaseURL != "" {
		baseURL = creds.BaseURL
	}

	a := &Adapter{
		profile: p,
		caps:    CapabilitiesOf(p),
		logger:  logger,
		newID:   uuid.NewString,
		session: &Session{
			exchange: name,
			baseURL:  baseURL,
			creds:    creds,
			nonce:    NewNonce(),
			logger:   logger,
		},
	}

	for _, fee := range []*decimal.Decimal{creds.BuyFeePercent, creds.SellFeePercent} {
		if fee == nil {
			continue
		}
		if _, err := FeeFraction(*fee); err != nil {
			return nil, &domain.ConfigError{Field: name + ".fees", Err: err}
		}
	}
	if _, live := p.(FeeReader); !live && creds.BuyFeePercent != nil && creds.SellFeePercent != nil {
		a.buyFee = creds.BuyFeePercent
		a.sellFee = creds.SellFeePercent
		a.caps |= domain.CapFees
	}

	if kl, ok := p.(KeyLoader); ok && creds.Key != "" {
		if err := kl.LoadKeys(creds); err != nil {
			var ce *domain.ConfigError
			if errors.As(err, &ce) {
				return nil, err
			}
			return nil, &domain.ConfigError{Field: name + ".keys", Err: err}
		}
	}

	for _, opt := range opts {
		opt(a)
	}
	if a.session.transport == nil {
		var topts []transport.Option
		if creds.UserAgent != "" {
			topts = append(topts, transport.WithHeader("User-Agent", creds.UserAgent))
		}
		a.session.transport = transport.NewClient(creds.ConnectionTimeout, topts...)
	}

	logger.Info("adapter ready",
		slog.Any("credentials", creds),
		slog.String("capabilities", a.caps.String()),
	)
	return a, nil
}

// ImplName identifies the adapter.
func (a *Adapter) ImplName() string {
	return a.profile.Name() + " REST API adapter"
}

// Capabilities returns the operations this adapter supports.
func (a *Adapter) Capabilities() domain.Capabilities {
	return a.caps
}

// Require fails with a ConfigError unless every capability in want is supported.
func (a *Adapter) Require(want domain.Capabilities) error {
	if missing := a.caps.Missing(want); missing != 0 {
		return &domain.ConfigError{
			Field: a.profile.Name(),
			Err:   fmt.Errorf("%w: %s", domain.ErrNotSupported, missing),
		}
	}
	return nil
}

// PeekNonce returns the nonce the next authenticated call will use.
func (a *Adapter) PeekNonce() int64 {
	return a.session.nonce.Peek()
}

// MarketOrders returns the order book with sell orders ascending.
func (a *Adapter) MarketOrders(ctx context.Context, marketID string) (book domain.MarketOrderBook, err error) {
	err = a.call("MarketOrders", domain.CapMarketOrders, marketID, func() error {
		book, err = a.profile.(OrderBookReader).MarketOrders(ctx, a.session, marketID)
		if err != nil {
			return err
		}
		if book.MarketID == "" {
			book.MarketID = marketID
		}
		book.SortSellOrders()
		return nil
	})
	return book, err
}

// YourOpenOrders returns this account's open orders on marketID.
func (a *Adapter) YourOpenOrders(ctx context.Context, marketID string) (orders []domain.OpenOrder, err error) {
	err = a.call("YourOpenOrders", domain.CapOpenOrders, marketID, func() error {
		orders, err = a.profile.(OpenOrdersReader).OpenOrders(ctx, a.session, marketID)
		if orders == nil && err == nil {
			orders = []domain.OpenOrder{}
		}
		return err
	})
	return orders, err
}

// CreateOrder cuts quantity and price to the exchange's precision and places
// the order. An order the exchange filled on arrival gets a placeholder id.
func (a *Adapter) CreateOrder(ctx context.Context, marketID string, orderType domain.OrderType, quantity, price decimal.Decimal) (id string, err error) {
	err = a.call("CreateOrder", domain.CapCreateOrder, marketID, func() error {
		if orderType != domain.OrderTypeBuy && orderType != domain.OrderTypeSell {
			return Rejectf("invalid order type %d", orderType)
		}

		prec := a.profile.Precision()
		q := prec.Amount(quantity)
		p := prec.Price(price)
		if !q.IsPositive() || !p.IsPositive() {
			return Rejectf("quantity %s and price %s must be positive at %d/%d places",
				quantity, price, prec.AmountPlaces, prec.PricePlaces)
		}

		id, err = a.profile.(OrderCreator).CreateOrder(ctx, a.session, marketID, orderType, q, p)
		if errors.Is(err, ErrFilledImmediately) {
			id = domain.PlaceholderOrderIDPrefix + a.newID()
			a.logger.Info("order filled on arrival, using placeholder id",
				slog.String("market", marketID),
				slog.String("type", orderType.String()),
				slog.String("id", id),
			)
			return nil
		}
		if err != nil {
			return err
		}
		if id == "" {
			return Decodef(a.profile.Name(), "exchange returned an empty order id")
		}
		if strings.TrimSpace(id) == FailureOrderID {
			return Rejectf("exchange returned failure order id 0")
		}
		return nil
	})
	if err != nil {
		id = ""
	}
	return id, err
}

// CancelOrder returns false when the exchange does not recognise orderID.
// Placeholder ids are never sent; their orders no longer exist.
func (a *Adapter) CancelOrder(ctx context.Context, orderID, marketID string) (ok bool, err error) {
	err = a.call("CancelOrder", domain.CapCancelOrder, "", func() error {
		if domain.IsPlaceholderOrderID(orderID) {
			a.logger.Debug("cancel of placeholder id skipped", slog.String("id", orderID))
			ok = false
			return nil
		}
		if strings.TrimSpace(orderID) == "" {
			return Rejectf("order id is empty")
		}
		ok, err = a.profile.(OrderCanceller).CancelOrder(ctx, a.session, orderID, marketID)
		return err
	})
	if err != nil {
		ok = false
	}
	return ok, err
}

// LatestMarketPrice returns the last traded price.
func (a *Adapter) LatestMarketPrice(ctx context.Context, marketID string) (price decimal.Decimal, err error) {
	err = a.call("LatestMarketPrice", domain.CapLatestPrice, marketID, func() error {
		price, err = a.profile.(PriceReader).LatestPrice(ctx, a.session, marketID)
		return err
	})
	return price, err
}

// BalanceInfo returns available and on-hold balances.
func (a *Adapter) BalanceInfo(ctx context.Context) (info domain.BalanceInfo, err error) {
	err = a.call("BalanceInfo", domain.CapBalance, "", func() error {
		info, err = a.profile.(BalanceReader).Balance(ctx, a.session)
		if err != nil {
			return err
		}
		if info.Available == nil {
			info.Available = make(map[string]decimal.Decimal)
		}
		if info.OnHold == nil {
			info.OnHold = make(map[string]decimal.Decimal)
		}
		return nil
	})
	return info, err
}

// BuyFeeFraction returns the buy taker fee as a fraction in [0,1].
func (a *Adapter) BuyFeeFraction(ctx context.Context, marketID string) (decimal.Decimal, error) {
	return a.fee(ctx, "BuyFeeFraction", marketID, a.buyFee, func(r FeeReader) (decimal.Decimal, error) {
		return r.BuyFeePercent(ctx, a.session, marketID)
	})
}

// SellFeeFraction returns the sell taker fee as a fraction in [0,1].
func (a *Adapter) SellFeeFraction(ctx context.Context, marketID string) (decimal.Decimal, error) {
	return a.fee(ctx, "SellFeeFraction", marketID, a.sellFee, func(r FeeReader) (decimal.Decimal, error) {
		return r.SellFeePercent(ctx, a.session, marketID)
	})
}

func (a *Adapter) fee(ctx context.Context, op, marketID string, static *decimal.Decimal,
	live func(FeeReader) (decimal.Decimal, error)) (fraction decimal.Decimal, err error) {
	err = a.call(op, domain.CapFees, marketID, func() error {
		var percent decimal.Decimal
		if r, ok := a.profile.(FeeReader); ok {
			percent, err = live(r)
			if err != nil {
				return err
			}
		} else {
			percent = *static
		}
		fraction, err = FeeFraction(percent)
		return err
	})
	if err != nil {
		fraction = decimal.Zero
	}
	return fraction, err
}

// call runs fn behind the adapter boundary: capability check, panic
// recovery, error classification and observation.
func (a *Adapter) call(op string, need domain.Capabilities, marketID string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		err = a.boundary(op, err)
		a.observe(op, err, time.Since(start))
	}()

	if !a.caps.Has(need) {
		return &domain.TradingAPIError{
			Exchange: a.profile.Name(),
			Op:       op,
			Message:  a.profile.Name() + " does not support " + need.String(),
			Err:      domain.ErrNotSupported,
		}
	}
	if need != domain.CapCancelOrder && need != domain.CapBalance && strings.TrimSpace(marketID) == "" {
		return &domain.TradingAPIError{
			Exchange: a.profile.Name(),
			Op:       op,
			Message:  "market id is required",
			Err:      domain.ErrInvalidMarket,
		}
	}
	return fn()
}

// boundary collapses every failure into the two kinds callers handle.
func (a *Adapter) boundary(op string, err error) error {
	if err == nil {
		return nil
	}
	name := a.profile.Name()

	var te *domain.NetworkTimeoutError
	if errors.As(err, &te) {
		return te
	}

	var ae *domain.TradingAPIError
	if errors.As(err, &ae) {
		if ae.Exchange == "" {
			ae.Exchange = name
		}
		if ae.Op == "" {
			ae.Op = op
		}
		return ae
	}

	var re *RejectError
	if errors.As(err, &re) {
		return &domain.TradingAPIError{Exchange: name, Op: op, Message: re.Message, Err: re}
	}

	if errors.Is(err, context.Canceled) {
		a.logger.Debug("call cancelled", slog.String("op", op))
		return &domain.TradingAPIError{Exchange: name, Op: op, Message: domain.CallCancelledMessage, Err: err}
	}

	a.logger.Error("unexpected adapter failure", slog.String("op", op), slog.Any("error", err))
	return &domain.TradingAPIError{
		Exchange: name,
		Op:       op,
		Message:  domain.UnexpectedErrorMessage(name),
		Err:      err,
	}
}

func (a *Adapter) observe(op string, err error, elapsed time.Duration) {
	if a.observer == nil {
		return
	}
	outcome := OutcomeOK
	var te *domain.NetworkTimeoutError
	var ae *domain.TradingAPIError
	switch {
	case err == nil:
	case errors.As(err, &te):
		outcome = OutcomeTimeout
	case errors.Is(err, domain.ErrNotSupported):
		outcome = OutcomeUnsupported
	case errors.As(err, &ae) && ae.Message != domain.UnexpectedErrorMessage(a.profile.Name()):
		outcome = OutcomeRejected
	default:
		outcome = OutcomeError
	}
	a.observer.ObserveCall(a.profile.Name(), op, outcome, elapsed)
}
