// Package gemini is the Gemini profile. Fees are not exposed and come from config.
package gemini

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/exchange"
	"tradebot/internal/infra/transport"
)

const (
	Name    = "Gemini"
	BaseURL = "https://api.gemini.com"
)

type Profile struct {
	key    string
	secret []byte
}

func New() *Profile {
	return &Profile{}
}

func (p *Profile) Name() string                  { return Name }
func (p *Profile) BaseURL() string               { return BaseURL }
func (p *Profile) Precision() exchange.Precision { return exchange.DefaultPrecision }

func (p *Profile) LoadKeys(creds domain.AdapterCredentials) error {
	if creds.Secret == "" {
		return exchange.MissingKey(Name, "secret")
	}
	p.key = creds.Key
	p.secret = []byte(creds.Secret)
	return nil
}

// headers carries the whole request in X-GEMINI-PAYLOAD; the body stays empty.
func (p *Profile) headers(path string, nonce int64, params map[string]any) (http.Header, error) {
	if p.secret == nil {
		return nil, exchange.KeysNotLoaded(Name)
	}
	fields := map[string]any{"request": path, "nonce": nonce}
	for k, v := range params {
		fields[k] = v
	}
	_, payload, err := exchange.EncodePayload(fields)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("Content-Type", "text/plain")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-GEMINI-APIKEY", p.key)
	h.Set("X-GEMINI-PAYLOAD", payload)
	h.Set("X-GEMINI-SIGNATURE", exchange.HMACHex(sha512.New384, p.secret, payload, false))
	return h, nil
}

type level struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

func (p *Profile) MarketOrders(ctx context.Context, s *exchange.Session, marketID string) (domain.MarketOrderBook, error) {
	var book struct {
		Bids []level `json:"bids"`
		Asks []level `json:"asks"`
	}
	if err := p.public(ctx, s, "/v1/book/"+marketID, &book); err != nil {
		return domain.MarketOrderBook{}, err
	}
	out := domain.MarketOrderBook{MarketID: marketID}
	for _, l := range book.Asks {
		out.SellOrders = append(out.SellOrders, domain.NewMarketOrder(domain.OrderTypeSell, l.Price, l.Amount))
	}
	for _, l := range book.Bids {
		out.BuyOrders = append(out.BuyOrders, domain.NewMarketOrder(domain.OrderTypeBuy, l.Price, l.Amount))
	}
	return out, nil
}

func (p *Profile) LatestPrice(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	var ticker struct {
		Last *decimal.Decimal `json:"last"`
	}
	if err := p.public(ctx, s, "/v1/pubticker/"+marketID, &ticker); err != nil {
		return decimal.Zero, err
	}
	if ticker.Last == nil {
		return decimal.Zero, exchange.Decodef(Name, "ticker without last")
	}
	return *ticker.Last, nil
}

func (p *Profile) OpenOrders(ctx context.Context, s *exchange.Session, marketID string) ([]domain.OpenOrder, error) {
	var raw []struct {
		OrderID         exchange.FlexString `json:"order_id"`
		Symbol          string              `json:"symbol"`
		Price           decimal.Decimal     `json:"price"`
		Side            string              `json:"side"`
		TimestampMS     int64               `json:"timestampms"`
		OriginalAmount  decimal.Decimal     `json:"original_amount"`
		RemainingAmount decimal.Decimal     `json:"remaining_amount"`
	}
	if err := p.private(ctx, s, "/v1/orders", nil, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.OpenOrder, 0, len(raw))
	for _, o := range raw {
		if !strings.EqualFold(o.Symbol, marketID) {
			continue
		}
		created, err := exchange.ParseUnixMillis(Name, o.TimestampMS)
		if err != nil {
			return nil, err
		}
		t, err := exchange.Side(Name, o.Side)
		if err != nil {
			return nil, err
		}
		original := o.OriginalAmount
		orders = append(orders, domain.NewOpenOrder(o.OrderID.String(), created, marketID, t, o.Price, o.RemainingAmount, &original, nil))
	}
	return orders, nil
}

func (p *Profile) CreateOrder(ctx context.Context, s *exchange.Session, marketID string, t domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	prec := p.Precision()
	params := map[string]any{
		"symbol": marketID,
		"amount": prec.FormatAmount(quantity),
		"price":  prec.FormatPrice(price),
		"side":   strings.ToLower(t.String()),
		"type":   "exchange limit",
	}
	var raw json.RawMessage
	if err := p.private(ctx, s, "/v1/order/new", params, &raw); err != nil {
		return "", err
	}
	var created struct {
		OrderID exchange.FlexString `json:"order_id"`
	}
	if err := exchange.DecodeJSON(Name, raw, &created); err != nil {
		return "", err
	}
	return exchange.OrderIDFromReply(created.OrderID.String(), raw)
}

func (p *Profile) CancelOrder(ctx context.Context, s *exchange.Session, orderID, _ string) (bool, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return false, nil
	}
	var cancelled struct {
		IsCancelled bool `json:"is_cancelled"`
	}
	err = p.private(ctx, s, "/v1/order/cancel", map[string]any{"order_id": id}, &cancelled)
	var re *reasonError
	if errors.As(err, &re) && re.reason == "OrderNotFound" {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cancelled.IsCancelled, nil
}

// Balance derives the hold figure as amount minus available.
func (p *Profile) Balance(ctx context.Context, s *exchange.Session) (domain.BalanceInfo, error) {
	var balances []struct {
		Type      string          `json:"type"`
		Currency  string          `json:"currency"`
		Amount    decimal.Decimal `json:"amount"`
		Available decimal.Decimal `json:"available"`
	}
	if err := p.private(ctx, s, "/v1/balances", nil, &balances); err != nil {
		return domain.BalanceInfo{}, err
	}
	info := domain.NewBalanceInfo()
	for _, b := range balances {
		if b.Type != "" && b.Type != "exchange" {
			continue
		}
		info.SetAvailable(b.Currency, b.Available)
		info.SetOnHold(b.Currency, b.Amount.Sub(b.Available))
	}
	return info, nil
}

func (p *Profile) public(ctx context.Context, s *exchange.Session, path string, v any) error {
	resp, err := s.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	return decode(resp, v)
}

func (p *Profile) private(ctx context.Context, s *exchange.Session, path string, params map[string]any, v any) error {
	resp, err := s.Private(ctx, func(nonce int64) (*transport.Request, error) {
		header, err := p.headers(path, nonce, params)
		if err != nil {
			return nil, err
		}
		return &transport.Request{Method: http.MethodPost, URL: s.URL(path, nil), Header: header}, nil
	})
	if err != nil {
		return err
	}
	return decode(resp, v)
}

// reasonError is a {"result": "error", "reason": ..., "message": ...} reply.
type reasonError struct {
	*exchange.RejectError
	reason string
}

func (e *reasonError) Unwrap() error {
	return e.RejectError
}

func decode(resp *transport.Response, v any) error {
	var env struct {
		Result  string `json:"result"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Payload, &env) == nil && env.Result == "error" {
		msg := env.Reason
		if env.Message != "" {
			msg += ": " + env.Message
		}
		return &reasonError{RejectError: &exchange.RejectError{Message: msg}, reason: env.Reason}
	}
	if err := exchange.CheckStatus(resp); err != nil {
		return err
	}
	return exchange.DecodeJSON(Name, resp.Payload, v)
}
