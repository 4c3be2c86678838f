package exchange

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/infra/transport"
)

// publicProfile only reads public data.
type publicProfile struct {
	book domain.MarketOrderBook
	err  error
}

func (p *publicProfile) Name() string         { return "Public" }
func (p *publicProfile) BaseURL() string      { return "https://public.test" }
func (p *publicProfile) Precision() Precision { return DefaultPrecision }

func (p *publicProfile) MarketOrders(ctx context.Context, s *Session, marketID string) (domain.MarketOrderBook, error) {
	return p.book, p.err
}

func (p *publicProfile) LatestPrice(ctx context.Context, s *Session, marketID string) (decimal.Decimal, error) {
	panic("nil map dereference")
}

// tradingProfile supports every operation with scripted results.
type tradingProfile struct {
	publicProfile
	createErr   error
	createID    string
	gotQty      decimal.Decimal
	gotPrice    decimal.Decimal
	cancelCalls int
	cancelOK    bool
	feePercent  decimal.Decimal
}

func (p *tradingProfile) Name() string { return "Trading" }

func (p *tradingProfile) OpenOrders(ctx context.Context, s *Session, marketID string) ([]domain.OpenOrder, error) {
	return nil, nil
}

func (p *tradingProfile) CreateOrder(ctx context.Context, s *Session, marketID string, t domain.OrderType, q, pr decimal.Decimal) (string, error) {
	p.gotQty, p.gotPrice = q, pr
	return p.createID, p.createErr
}

func (p *tradingProfile) CancelOrder(ctx context.Context, s *Session, orderID, marketID string) (bool, error) {
	p.cancelCalls++
	return p.cancelOK, nil
}

func (p *tradingProfile) Balance(ctx context.Context, s *Session) (domain.BalanceInfo, error) {
	return domain.BalanceInfo{}, nil
}

func (p *tradingProfile) BuyFeePercent(ctx context.Context, s *Session, marketID string) (decimal.Decimal, error) {
	return p.feePercent, nil
}

func (p *tradingProfile) SellFeePercent(ctx context.Context, s *Session, marketID string) (decimal.Decimal, error) {
	return p.feePercent, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveCall(exchange, op, outcome string, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, op+"="+outcome)
}

func newTestAdapter(t *testing.T, p Profile, creds domain.AdapterCredentials, opts ...Option) *Adapter {
	t.Helper()
	a, err := New(p, creds, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAdapter_Capabilities(t *testing.T) {
	a := newTestAdapter(t, &publicProfile{}, domain.AdapterCredentials{})

	if a.Capabilities() != domain.CapPublic {
		t.Fatalf("Capabilities = %s, want public", a.Capabilities())
	}
	if a.ImplName() != "Public REST API adapter" {
		t.Errorf("ImplName = %q", a.ImplName())
	}
	if err := a.Require(domain.CapTrading); err == nil {
		t.Error("Require(trading) should fail for a public-only profile")
	}

	_, err := a.CreateOrder(context.Background(), "btcusd", domain.OrderTypeBuy, d("1"), d("1"))
	var ae *domain.TradingAPIError
	if !errors.As(err, &ae) || !errors.Is(err, domain.ErrNotSupported) {
		t.Fatalf("expected unsupported TradingAPIError, got %v", err)
	}
}

func TestAdapter_MarketOrders_SortsSellSide(t *testing.T) {
	p := &publicProfile{book: domain.MarketOrderBook{
		SellOrders: []domain.MarketOrder{
			domain.NewMarketOrder(domain.OrderTypeSell, d("522.13"), d("1")),
			domain.NewMarketOrder(domain.OrderTypeSell, d("521.88"), d("2")),
		},
	}}
	a := newTestAdapter(t, p, domain.AdapterCredentials{})

	book, err := a.MarketOrders(context.Background(), "btcusd")
	if err != nil {
		t.Fatalf("MarketOrders failed: %v", err)
	}
	if book.MarketID != "btcusd" {
		t.Errorf("MarketID = %q", book.MarketID)
	}
	if !book.SellOrders[0].Price.Equal(d("521.88")) || !book.SellOrdersAscending() {
		t.Errorf("sell side not ascending: %v", book.SellOrders)
	}
}

func TestAdapter_Boundary(t *testing.T) {
	ctx := context.Background()

	t.Run("panic becomes TradingAPIError", func(t *testing.T) {
		a := newTestAdapter(t, &publicProfile{}, domain.AdapterCredentials{})
		_, err := a.LatestMarketPrice(ctx, "btcusd")
		var ae *domain.TradingAPIError
		if !errors.As(err, &ae) {
			t.Fatalf("expected TradingAPIError, got %T %v", err, err)
		}
		if ae.Message != "unexpected error in Public adapter" {
			t.Errorf("Message = %q", ae.Message)
		}
	})

	t.Run("decode error keeps cause", func(t *testing.T) {
		a := newTestAdapter(t, &publicProfile{err: Decodef("Public", "bad json")}, domain.AdapterCredentials{})
		_, err := a.MarketOrders(ctx, "btcusd")
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("DecodeError should stay reachable, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), "MarketOrders: unexpected error in Public adapter") {
			t.Errorf("Error() = %q", err.Error())
		}
	})

	t.Run("timeout passes through", func(t *testing.T) {
		timeout := domain.NewNetworkTimeoutError("GET x", errors.New("i/o timeout"))
		a := newTestAdapter(t, &publicProfile{err: timeout}, domain.AdapterCredentials{})
		_, err := a.MarketOrders(ctx, "btcusd")
		if err != timeout {
			t.Fatalf("expected the same NetworkTimeoutError, got %v", err)
		}
	})

	t.Run("unexpected network error is wrapped", func(t *testing.T) {
		a := newTestAdapter(t, &publicProfile{err: domain.NewUnexpectedNetworkError("GET x", errors.New("tls"))}, domain.AdapterCredentials{})
		_, err := a.MarketOrders(ctx, "btcusd")
		var ae *domain.TradingAPIError
		if !errors.As(err, &ae) || domain.IsRetriable(err) {
			t.Fatalf("expected fatal TradingAPIError, got %v", err)
		}
	})

	t.Run("reject keeps exchange text", func(t *testing.T) {
		p := &tradingProfile{createErr: Rejectf("Insufficient funds")}
		a := newTestAdapter(t, p, domain.AdapterCredentials{})
		_, err := a.CreateOrder(ctx, "btcusd", domain.OrderTypeBuy, d("1"), d("100"))
		var ae *domain.TradingAPIError
		if !errors.As(err, &ae) || ae.Message != "Insufficient funds" {
			t.Fatalf("expected raw rejection text, got %v", err)
		}
	})

	t.Run("empty market id", func(t *testing.T) {
		a := newTestAdapter(t, &publicProfile{}, domain.AdapterCredentials{})
		_, err := a.MarketOrders(ctx, " ")
		if !errors.Is(err, domain.ErrInvalidMarket) {
			t.Fatalf("expected ErrInvalidMarket, got %v", err)
		}
	})
}

func TestAdapter_CreateOrder_Quantises(t *testing.T) {
	p := &tradingProfile{createID: "42"}
	a := newTestAdapter(t, p, domain.AdapterCredentials{})

	id, err := a.CreateOrder(context.Background(), "btcusd", domain.OrderTypeSell, d("0.123456789"), d("521.889"))
	if err != nil || id != "42" {
		t.Fatalf("CreateOrder = %q, %v", id, err)
	}
	if !p.gotQty.Equal(d("0.12345678")) || !p.gotPrice.Equal(d("521.88")) {
		t.Errorf("profile got qty=%s price=%s", p.gotQty, p.gotPrice)
	}

	_, err = a.CreateOrder(context.Background(), "btcusd", domain.OrderTypeSell, d("0.000000001"), d("1"))
	if err == nil {
		t.Error("quantity that truncates to zero should be rejected")
	}
}

func TestAdapter_InstantFillPlaceholder(t *testing.T) {
	ctx := context.Background()
	p := &tradingProfile{createErr: ErrFilledImmediately, cancelOK: true}
	a := newTestAdapter(t, p, domain.AdapterCredentials{})
	a.newID = func() string { return "fixed" }

	id, err := a.CreateOrder(ctx, "btcusd", domain.OrderTypeBuy, d("1"), d("100"))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if id != "FILLED-fixed" || !domain.IsPlaceholderOrderID(id) {
		t.Fatalf("id = %q", id)
	}

	ok, err := a.CancelOrder(ctx, id, "btcusd")
	if err != nil || ok {
		t.Fatalf("CancelOrder(placeholder) = %v, %v; want false, nil", ok, err)
	}
	if p.cancelCalls != 0 {
		t.Error("placeholder ids must not reach the exchange")
	}
}

func TestAdapter_FailureOrderIDRejected(t *testing.T) {
	for _, id := range []string{"0", " 0 "} {
		a := newTestAdapter(t, &tradingProfile{createID: id}, domain.AdapterCredentials{})
		got, err := a.CreateOrder(context.Background(), "btcusd", domain.OrderTypeBuy, d("1"), d("100"))
		var ae *domain.TradingAPIError
		if !errors.As(err, &ae) || got != "" {
			t.Fatalf("CreateOrder(id %q) = %q, %v; want TradingAPIError", id, got, err)
		}
		if domain.IsPlaceholderOrderID(got) {
			t.Errorf("failure id must not become a placeholder")
		}
	}
}

func TestAdapter_CancelledCallNotReportedUnexpected(t *testing.T) {
	cancelled := domain.NewUnexpectedNetworkError("POST https://exchange.test", context.Canceled)
	a := newTestAdapter(t, &tradingProfile{createErr: cancelled}, domain.AdapterCredentials{})
	var logs bytes.Buffer
	a.logger = slog.New(slog.NewTextHandler(&logs, nil))

	_, err := a.CreateOrder(context.Background(), "btcusd", domain.OrderTypeBuy, d("1"), d("100"))
	var ae *domain.TradingAPIError
	if !errors.As(err, &ae) {
		t.Fatalf("expected TradingAPIError, got %v", err)
	}
	if ae.Message != domain.CallCancelledMessage {
		t.Errorf("Message = %q", ae.Message)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("cause must stay inspectable")
	}
	if strings.Contains(logs.String(), "level=ERROR") {
		t.Errorf("cancellation logged as an error: %s", logs.String())
	}
}

func TestAdapter_Fees(t *testing.T) {
	ctx := context.Background()

	t.Run("live", func(t *testing.T) {
		for _, pct := range []string{"0", "0.2", "25", "100"} {
			a := newTestAdapter(t, &tradingProfile{feePercent: d(pct)}, domain.AdapterCredentials{})
			f, err := a.BuyFeeFraction(ctx, "btcusd")
			if err != nil {
				t.Fatalf("%s: %v", pct, err)
			}
			if f.IsNegative() || f.GreaterThan(decimal.NewFromInt(1)) {
				t.Errorf("%s%% -> %s outside [0,1]", pct, f)
			}
		}
	})

	t.Run("live out of range", func(t *testing.T) {
		a := newTestAdapter(t, &tradingProfile{feePercent: d("150")}, domain.AdapterCredentials{})
		if _, err := a.SellFeeFraction(ctx, "btcusd"); err == nil {
			t.Error("150% should be rejected")
		}
	})

	t.Run("static", func(t *testing.T) {
		buy, sell := d("0.25"), d("0.3")
		a := newTestAdapter(t, &publicProfile{}, domain.AdapterCredentials{BuyFeePercent: &buy, SellFeePercent: &sell})
		if !a.Capabilities().Has(domain.CapFees) {
			t.Fatal("static fees should add the fees capability")
		}
		f, err := a.BuyFeeFraction(ctx, "btcusd")
		if err != nil || !f.Equal(d("0.0025")) {
			t.Errorf("BuyFeeFraction = %s, %v", f, err)
		}
		f, err = a.SellFeeFraction(ctx, "btcusd")
		if err != nil || !f.Equal(d("0.003")) {
			t.Errorf("SellFeeFraction = %s, %v", f, err)
		}
	})

	t.Run("static out of range", func(t *testing.T) {
		bad := d("-1")
		_, err := New(&publicProfile{}, domain.AdapterCredentials{BuyFeePercent: &bad, SellFeePercent: &bad})
		var ce *domain.ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConfigError, got %v", err)
		}
	})
}

// nonceProfile signs one private call per BalanceInfo with the session nonce.
type nonceProfile struct {
	publicProfile
	seen int64
}

func (p *nonceProfile) Balance(ctx context.Context, s *Session) (domain.BalanceInfo, error) {
	_, err := s.Private(ctx, func(nonce int64) (*transport.Request, error) {
		p.seen = nonce
		return &transport.Request{Method: http.MethodPost, URL: s.URL("/balance", nil),
			Body: []byte("nonce=" + strconv.FormatInt(nonce, 10))}, nil
	})
	return domain.NewBalanceInfo(), err
}

func TestAdapter_NonceAdvancesOncePerCall(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	p := &nonceProfile{}
	a := newTestAdapter(t, p, domain.AdapterCredentials{BaseURL: server.URL},
		WithTransport(transport.NewClient(time.Second)))

	start := a.PeekNonce()
	if diff := time.Now().Unix() - start; diff < 0 || diff > 5 {
		t.Fatalf("nonce should be seeded from wall clock, got %d", start)
	}

	if _, err := a.BalanceInfo(context.Background()); err != nil {
		t.Fatalf("BalanceInfo failed: %v", err)
	}
	if p.seen != start || a.PeekNonce() != start+1 {
		t.Fatalf("used %d, now %d; want %d then %d", p.seen, a.PeekNonce(), start, start+1)
	}

	status.Store(http.StatusServiceUnavailable)
	if _, err := a.BalanceInfo(context.Background()); !domain.IsRetriable(err) {
		t.Fatalf("expected retriable failure, got %v", err)
	}
	if p.seen != start+1 || a.PeekNonce() != start+2 {
		t.Fatalf("failed call must still consume exactly one nonce: used %d, now %d", p.seen, a.PeekNonce())
	}
}

func TestAdapter_Observer(t *testing.T) {
	obs := &recordingObserver{}
	p := &tradingProfile{createErr: Rejectf("no"), publicProfile: publicProfile{err: Decodef("x", "y")}}
	a := newTestAdapter(t, p, domain.AdapterCredentials{}, WithObserver(obs))
	ctx := context.Background()

	a.MarketOrders(ctx, "m")
	a.CreateOrder(ctx, "m", domain.OrderTypeBuy, d("1"), d("1"))
	a.CancelOrder(ctx, "7", "m")

	want := []string{"MarketOrders=error", "CreateOrder=rejected", "CancelOrder=ok"}
	if strings.Join(obs.outcomes, " ") != strings.Join(want, " ") {
		t.Errorf("outcomes = %v, want %v", obs.outcomes, want)
	}
}
