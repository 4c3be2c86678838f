// Package bitfinex is the Bitfinex v1 profile.
package bitfinex

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
	Name    = "Bitfinex"
	BaseURL = "https://api.bitfinex.com"

	// only exchange wallets can trade; deposit and margin wallets are ignored
	tradingWallet = "exchange"
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

// sign builds the X-BFX headers: the base64 JSON payload carrying the
// request path and nonce, and its HMAC-SHA384 in lower-case hex.
func (p *Profile) sign(path string, nonce int64, params map[string]any) (http.Header, []byte, error) {
	if p.secret == nil {
		return nil, nil, exchange.KeysNotLoaded(Name)
	}
	fields := map[string]any{
		"request": path,
		"nonce":   strconv.FormatInt(nonce, 10),
	}
	for k, v := range params {
		fields[k] = v
	}
	raw, payload, err := exchange.EncodePayload(fields)
	if err != nil {
		return nil, nil, err
	}

	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("X-BFX-APIKEY", p.key)
	h.Set("X-BFX-PAYLOAD", payload)
	h.Set("X-BFX-SIGNATURE", exchange.HMACHex(sha512.New384, p.secret, payload, false))
	return h, raw, nil
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
		LastPrice *decimal.Decimal `json:"last_price"`
	}
	if err := p.public(ctx, s, "/v1/pubticker/"+marketID, &ticker); err != nil {
		return decimal.Zero, err
	}
	if ticker.LastPrice == nil {
		return decimal.Zero, exchange.Decodef(Name, "ticker without last_price")
	}
	return *ticker.LastPrice, nil
}

type order struct {
	ID              exchange.FlexString `json:"id"`
	Symbol          string              `json:"symbol"`
	Price           decimal.Decimal     `json:"price"`
	Side            string              `json:"side"`
	Timestamp       string              `json:"timestamp"`
	OriginalAmount  decimal.Decimal     `json:"original_amount"`
	RemainingAmount decimal.Decimal     `json:"remaining_amount"`
}

// OpenOrders lists every live order and keeps those on marketID.
func (p *Profile) OpenOrders(ctx context.Context, s *exchange.Session, marketID string) ([]domain.OpenOrder, error) {
	var raw []order
	if err := p.private(ctx, s, "/v1/orders", nil, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.OpenOrder, 0, len(raw))
	for _, o := range raw {
		if !strings.EqualFold(o.Symbol, marketID) {
			continue
		}
		created, err := exchange.ParseUnixSeconds(Name, o.Timestamp)
		if err != nil {
			return nil, err
		}
		t, err := exchange.Side(Name, o.Side)
		if err != nil {
			return nil, err
		}
		original := o.OriginalAmount
		orders = append(orders, domain.NewOpenOrder(o.ID.String(), created, marketID, t, o.Price, o.RemainingAmount, &original, nil))
	}
	return orders, nil
}

func (p *Profile) CreateOrder(ctx context.Context, s *exchange.Session, marketID string, t domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	prec := p.Precision()
	params := map[string]any{
		"symbol":   marketID,
		"amount":   prec.FormatAmount(quantity),
		"price":    prec.FormatPrice(price),
		"exchange": "bitfinex",
		"side":     strings.ToLower(t.String()),
		"type":     "exchange limit",
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

// CancelOrder returns false when Bitfinex cannot cancel the id, which it
// reports for both unknown and already closed orders.
func (p *Profile) CancelOrder(ctx context.Context, s *exchange.Session, orderID, _ string) (bool, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return false, nil
	}
	var cancelled struct {
		ID exchange.FlexString `json:"id"`
	}
	err = p.private(ctx, s, "/v1/order/cancel", map[string]any{"order_id": id}, &cancelled)
	var re *exchange.RejectError
	if errors.As(err, &re) && strings.Contains(strings.ToLower(re.Message), "could not be cancelled") {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cancelled.ID.String() == orderID, nil
}

// Balance reports exchange wallets only. Bitfinex has no on-hold figure,
// so OnHold stays empty.
func (p *Profile) Balance(ctx context.Context, s *exchange.Session) (domain.BalanceInfo, error) {
	var wallets []struct {
		Type      string          `json:"type"`
		Currency  string          `json:"currency"`
		Available decimal.Decimal `json:"available"`
	}
	if err := p.private(ctx, s, "/v1/balances", nil, &wallets); err != nil {
		return domain.BalanceInfo{}, err
	}

	info := domain.NewBalanceInfo()
	for _, w := range wallets {
		if w.Type != tradingWallet {
			continue
		}
		info.SetAvailable(w.Currency, w.Available)
	}
	return info, nil
}

func (p *Profile) BuyFeePercent(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	return p.takerFee(ctx, s)
}

func (p *Profile) SellFeePercent(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	return p.takerFee(ctx, s)
}

func (p *Profile) takerFee(ctx context.Context, s *exchange.Session) (decimal.Decimal, error) {
	var infos []struct {
		TakerFees *decimal.Decimal `json:"taker_fees"`
	}
	if err := p.private(ctx, s, "/v1/account_infos", nil, &infos); err != nil {
		return decimal.Zero, err
	}
	if len(infos) == 0 || infos[0].TakerFees == nil {
		return decimal.Zero, exchange.Decodef(Name, "account_infos without taker_fees")
	}
	return *infos[0].TakerFees, nil
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
		header, body, err := p.sign(path, nonce, params)
		if err != nil {
			return nil, err
		}
		return &transport.Request{Method: http.MethodPost, URL: s.URL(path, nil), Body: body, Header: header}, nil
	})
	if err != nil {
		return err
	}
	return decode(resp, v)
}

// decode unwraps {"message": ...} rejections, then the payload.
func decode(resp *transport.Response, v any) error {
	if !resp.IsSuccess() {
		var env struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(resp.Payload, &env) == nil && env.Message != "" {
			return exchange.Rejectf("%s", env.Message)
		}
		return exchange.CheckStatus(resp)
	}
	return exchange.DecodeJSON(Name, resp.Payload, v)
}
