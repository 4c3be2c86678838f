package okcoin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/exchange"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *exchange.Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fee := decimal.RequireFromString("0.2")
	a, err := exchange.New(New(), domain.AdapterCredentials{
		Key:               "key",
		Secret:            "secret",
		ConnectionTimeout: time.Second,
		BaseURL:           server.URL,
		BuyFeePercent:     &fee,
		SellFeePercent:    &fee,
	})
	if err != nil {
		t.Fatalf("exchange.New: %v", err)
	}
	return a
}

func TestOKCoin_DescendingAsksResorted(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/depth.do" || r.URL.Query().Get("symbol") != "btc_usd" {
			t.Errorf("request = %s", r.URL)
		}
		w.Write([]byte(`{"asks":[[522.13,0.5],[521.88,1.25]],"bids":[[521.86,2]]}`))
	})

	book, err := a.MarketOrders(context.Background(), "btc_usd")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"521.88", "522.13"}
	if len(book.SellOrders) != len(want) {
		t.Fatalf("sells = %+v", book.SellOrders)
	}
	for i, price := range want {
		o := book.SellOrders[i]
		if !o.Price.Equal(decimal.RequireFromString(price)) {
			t.Errorf("sell[%d] = %s, want %s", i, o.Price, price)
		}
		if !o.Total.Equal(o.Price.Mul(o.Quantity)) {
			t.Errorf("sell[%d] total = %s", i, o.Total)
		}
	}
	if !book.SellOrders[0].Total.Equal(decimal.RequireFromString("652.35")) {
		t.Errorf("total = %s, want 652.35", book.SellOrders[0].Total)
	}

	if len(book.BuyOrders) != 1 || !book.BuyOrders[0].Price.Equal(decimal.RequireFromString("521.86")) {
		t.Errorf("buys = %+v", book.BuyOrders)
	}
	if !book.BuyOrders[0].Total.Equal(decimal.RequireFromString("1043.72")) {
		t.Errorf("buy total = %s", book.BuyOrders[0].Total)
	}
}

func TestOKCoin_Signature(t *testing.T) {
	forms := make(chan url.Values, 1)
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		forms <- r.PostForm
		w.Write([]byte(`{"result":true,"order_id":123456}`))
	})

	id, err := a.CreateOrder(context.Background(), "btc_usd", domain.OrderTypeBuy,
		decimal.RequireFromString("0.5"), decimal.RequireFromString("521.999"))
	if err != nil || id != "123456" {
		t.Fatalf("CreateOrder = %q, %v", id, err)
	}

	form := <-forms
	sign := form.Get("sign")
	form.Del("sign")
	want := exchange.MD5Upper("amount=0.50000000&api_key=key&price=521.99&symbol=btc_usd&type=buy&secret_key=secret")
	if sign != want {
		t.Errorf("sign = %s, want %s", sign, want)
	}
}

func TestOKCoin_CancelUnknown(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":false,"error_code":10009}`))
	})

	ok, err := a.CancelOrder(context.Background(), "42", "btc_usd")
	if err != nil || ok {
		t.Errorf("CancelOrder = %v, %v", ok, err)
	}
}

func TestOKCoin_CancelNeedsExplicitResult(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    bool
		wantErr bool
	}{
		{"empty object", `{}`, false, false},
		{"result false", `{"result":false}`, false, true},
		{"result true", `{"result":true,"order_id":42}`, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			ok, err := a.CancelOrder(context.Background(), "42", "btc_usd")
			if ok != tt.want || (err != nil) != tt.wantErr {
				t.Errorf("CancelOrder = %v, %v, want %v", ok, err, tt.want)
			}
		})
	}
}

func TestOKCoin_FailureOrderID(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":true,"order_id":0}`))
	})

	id, err := a.CreateOrder(context.Background(), "btc_usd", domain.OrderTypeBuy, decimal.NewFromInt(1), decimal.NewFromInt(500))
	var ae *domain.TradingAPIError
	if !errors.As(err, &ae) {
		t.Fatalf("CreateOrder = %q, %v", id, err)
	}
	if !strings.Contains(ae.Message, "failure order id 0") || !strings.Contains(ae.Message, `"order_id":0`) {
		t.Errorf("message = %q", ae.Message)
	}
}

func TestOKCoin_ErrorCode(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":false,"error_code":10010}`))
	})

	_, err := a.CreateOrder(context.Background(), "btc_usd", domain.OrderTypeSell, decimal.NewFromInt(1), decimal.NewFromInt(1))
	var ae *domain.TradingAPIError
	if !errors.As(err, &ae) || ae.Message != "error code 10010: insufficient funds" {
		t.Fatalf("got %v", err)
	}
}

func TestOKCoin_OpenOrdersAndBalance(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/order_info.do":
			r.ParseForm()
			if r.PostForm.Get("order_id") != "-1" {
				t.Errorf("order_id = %s", r.PostForm.Get("order_id"))
			}
			w.Write([]byte(`{"result":true,"orders":[{"order_id":15088,"create_date":1418113081000,"price":500,"amount":0.1,"deal_amount":0.04,"type":"sell","status":1,"symbol":"btc_usd"}]}`))
		case "/userinfo.do":
			w.Write([]byte(`{"result":true,"info":{"funds":{"free":{"btc":"0.5","usd":"100"},"freezed":{"btc":"0.1","usd":"0"}}}}`))
		}
	})

	orders, err := a.YourOpenOrders(context.Background(), "btc_usd")
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 || orders[0].ID != "15088" || !orders[0].CreatedAt.Equal(time.UnixMilli(1418113081000)) {
		t.Fatalf("orders = %+v", orders)
	}
	if !orders[0].QuantityRemaining.Equal(decimal.RequireFromString("0.06")) {
		t.Errorf("remaining = %s", orders[0].QuantityRemaining)
	}

	info, err := a.BalanceInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !info.Available["BTC"].Equal(decimal.RequireFromString("0.5")) || !info.OnHold["BTC"].Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("info = %+v", info)
	}
}

func TestOKCoin_MalformedJSON(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"asks":[[522.13,0.5],[521.88`))
	})

	_, err := a.MarketOrders(context.Background(), "btc_usd")
	var ae *domain.TradingAPIError
	if !errors.As(err, &ae) || ae.Message != domain.UnexpectedErrorMessage(Name) {
		t.Fatalf("expected single fatal TradingAPIError, got %T %v", err, err)
	}
	var de *exchange.DecodeError
	if !errors.As(err, &de) {
		t.Error("decode cause should be preserved")
	}
}
