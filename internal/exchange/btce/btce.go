// Package btce is the BTC-e profile. Private replies use the
// {"success": 1, "return": ...} / {"success": 0, "error": "..."} envelope.
package btce

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/exchange"
	"tradebot/internal/infra/transport"
)

const (
	Name    = "BTC-e"
	BaseURL = "https://btc-e.com"

	noOrdersSentinel = "no orders"
)

type Profile struct {
	key    string
	secret []byte
}

func New() *Profile {
	return &Profile{}
}

func (p *Profile) Name() string    { return Name }
func (p *Profile) BaseURL() string { return BaseURL }

func (p *Profile) Precision() exchange.Precision {
	return exchange.Precision{PricePlaces: 3, AmountPlaces: 8, Mode: exchange.Truncate}
}

func (p *Profile) LoadKeys(creds domain.AdapterCredentials) error {
	if creds.Secret == "" {
		return exchange.MissingKey(Name, "secret")
	}
	p.key = creds.Key
	p.secret = []byte(creds.Secret)
	return nil
}

func (p *Profile) MarketOrders(ctx context.Context, s *exchange.Session, marketID string) (domain.MarketOrderBook, error) {
	var result map[string]struct {
		Asks [][]decimal.Decimal `json:"asks"`
		Bids [][]decimal.Decimal `json:"bids"`
	}
	if err := p.public(ctx, s, "depth", marketID, &result); err != nil {
		return domain.MarketOrderBook{}, err
	}
	d, ok := result[marketID]
	if !ok {
		return domain.MarketOrderBook{}, exchange.Decodef(Name, "depth without %s", marketID)
	}
	sells, err := exchange.PriceLevels(Name, domain.OrderTypeSell, d.Asks)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	buys, err := exchange.PriceLevels(Name, domain.OrderTypeBuy, d.Bids)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	return domain.MarketOrderBook{MarketID: marketID, SellOrders: sells, BuyOrders: buys}, nil
}

func (p *Profile) LatestPrice(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	var result map[string]struct {
		Last decimal.Decimal `json:"last"`
	}
	if err := p.public(ctx, s, "ticker", marketID, &result); err != nil {
		return decimal.Zero, err
	}
	t, ok := result[marketID]
	if !ok {
		return decimal.Zero, exchange.Decodef(Name, "ticker without %s", marketID)
	}
	return t.Last, nil
}

func (p *Profile) BuyFeePercent(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	return p.fee(ctx, s, marketID)
}

func (p *Profile) SellFeePercent(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	return p.fee(ctx, s, marketID)
}

func (p *Profile) fee(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	var result map[string]struct {
		Fee decimal.Decimal `json:"fee"`
	}
	if err := p.public(ctx, s, "fee", marketID, &result); err != nil {
		return decimal.Zero, err
	}
	f, ok := result[marketID]
	if !ok {
		return decimal.Zero, exchange.Decodef(Name, "fee without %s", marketID)
	}
	return f.Fee, nil
}

// OpenOrders maps the "no orders" error to an empty list.
func (p *Profile) OpenOrders(ctx context.Context, s *exchange.Session, marketID string) ([]domain.OpenOrder, error) {
	form := url.Values{}
	form.Set("pair", marketID)

	var result map[string]struct {
		Pair             string          `json:"pair"`
		Type             string          `json:"type"`
		Amount           decimal.Decimal `json:"amount"`
		Rate             decimal.Decimal `json:"rate"`
		TimestampCreated json.Number     `json:"timestamp_created"`
	}
	err := p.private(ctx, s, "ActiveOrders", form, &result)
	var re *exchange.RejectError
	if errors.As(err, &re) && re.Message == noOrdersSentinel {
		return []domain.OpenOrder{}, nil
	}
	if err != nil {
		return nil, err
	}

	orders := make([]domain.OpenOrder, 0, len(result))
	for id, o := range result {
		if o.Pair != marketID {
			continue
		}
		created, err := exchange.ParseUnixSeconds(Name, o.TimestampCreated.String())
		if err != nil {
			return nil, err
		}
		t, err := exchange.Side(Name, o.Type)
		if err != nil {
			return nil, err
		}
		orders = append(orders, domain.NewOpenOrder(id, created, marketID, t, o.Rate, o.Amount, nil, nil))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// CreateOrder returns ErrFilledImmediately when BTC-e matched the whole
// order on arrival; it reports order_id 0 for those.
func (p *Profile) CreateOrder(ctx context.Context, s *exchange.Session, marketID string, t domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	prec := p.Precision()
	form := url.Values{}
	form.Set("pair", marketID)
	form.Set("type", strings.ToLower(t.String()))
	form.Set("rate", prec.FormatPrice(price))
	form.Set("amount", prec.FormatAmount(quantity))

	var result struct {
		Received decimal.Decimal     `json:"received"`
		Remains  decimal.Decimal     `json:"remains"`
		OrderID  exchange.FlexString `json:"order_id"`
	}
	if err := p.private(ctx, s, "Trade", form, &result); err != nil {
		return "", err
	}
	if result.OrderID == "0" {
		return "", exchange.ErrFilledImmediately
	}
	return result.OrderID.String(), nil
}

func (p *Profile) CancelOrder(ctx context.Context, s *exchange.Session, orderID, _ string) (bool, error) {
	form := url.Values{}
	form.Set("order_id", orderID)
	var result struct {
		OrderID exchange.FlexString `json:"order_id"`
	}
	err := p.private(ctx, s, "CancelOrder", form, &result)
	var re *exchange.RejectError
	if errors.As(err, &re) && isUnknownOrder(re.Message) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result.OrderID.String() == orderID, nil
}

func isUnknownOrder(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "bad status") || strings.Contains(msg, "order not found") || strings.Contains(msg, "invalid order")
}

// Balance reports funds as available. BTC-e has no hold figure.
func (p *Profile) Balance(ctx context.Context, s *exchange.Session) (domain.BalanceInfo, error) {
	var result struct {
		Funds map[string]decimal.Decimal `json:"funds"`
	}
	if err := p.private(ctx, s, "getInfo", url.Values{}, &result); err != nil {
		return domain.BalanceInfo{}, err
	}
	info := domain.NewBalanceInfo()
	for c, v := range result.Funds {
		info.SetAvailable(c, v)
	}
	return info, nil
}

func (p *Profile) public(ctx context.Context, s *exchange.Session, method, pair string, v any) error {
	resp, err := s.Get(ctx, "/api/3/"+method+"/"+pair, nil)
	if err != nil {
		return err
	}
	if err := exchange.CheckStatus(resp); err != nil {
		return err
	}
	var env struct {
		Success *int   `json:"success"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(resp.Payload, &env) == nil && env.Success != nil && *env.Success == 0 {
		return exchange.Rejectf("%s", env.Error)
	}
	return exchange.DecodeJSON(Name, resp.Payload, v)
}

// private posts to the trade API; the body carries method and nonce and is
// signed as a whole with HMAC-SHA512.
func (p *Profile) private(ctx context.Context, s *exchange.Session, method string, form url.Values, v any) error {
	resp, err := s.Private(ctx, func(nonce int64) (*transport.Request, error) {
		if p.secret == nil {
			return nil, exchange.KeysNotLoaded(Name)
		}
		form.Set("method", method)
		form.Set("nonce", strconv.FormatInt(nonce, 10))
		h := make(http.Header)
		h.Set("Key", p.key)
		h.Set("Sign", exchange.HMACHex(sha512.New, p.secret, form.Encode(), false))
		return exchange.FormRequest(s.URL("/tapi", nil), form, h), nil
	})
	if err != nil {
		return err
	}
	if err := exchange.CheckStatus(resp); err != nil {
		return err
	}

	var env struct {
		Success int             `json:"success"`
		Error   string          `json:"error"`
		Return  json.RawMessage `json:"return"`
	}
	if err := exchange.DecodeJSON(Name, resp.Payload, &env); err != nil {
		return err
	}
	if env.Success != 1 {
		return exchange.Rejectf("%s", env.Error)
	}
	return exchange.DecodeJSON(Name, env.Return, v)
}
