// Package bitstamp is the Bitstamp profile. Private calls are form posts
// signed with HMAC-SHA256 over nonce, customer id and API key.
package bitstamp

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
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
	Name    = "Bitstamp"
	BaseURL = "https://www.bitstamp.net/api/"

	datetimeLayout = "2006-01-02 15:04:05"
)

// Profile implements every capability; fees come from the balance endpoint.
type Profile struct {
	signer *signer
}

// New returns a Bitstamp profile without keys.
func New() *Profile {
	return &Profile{signer: &signer{}}
}

func (p *Profile) Name() string    { return Name }
func (p *Profile) BaseURL() string { return BaseURL }

func (p *Profile) Precision() exchange.Precision {
	return exchange.Precision{PricePlaces: 2, AmountPlaces: 8, Mode: exchange.HalfEven}
}

func (p *Profile) LoadKeys(creds domain.AdapterCredentials) error {
	return p.signer.load(creds)
}

type signer struct {
	key      string
	secret   []byte
	clientID string
	loaded   bool
}

func (s *signer) load(creds domain.AdapterCredentials) error {
	switch {
	case creds.Secret == "":
		return exchange.MissingKey(Name, "secret")
	case creds.ClientID == "":
		return exchange.MissingKey(Name, "client_id")
	}
	s.key = creds.Key
	s.secret = []byte(creds.Secret)
	s.clientID = creds.ClientID
	s.loaded = true
	return nil
}

// sign adds key, signature and nonce to form.
func (s *signer) sign(form url.Values, nonce int64) error {
	if !s.loaded {
		return exchange.KeysNotLoaded(Name)
	}
	n := strconv.FormatInt(nonce, 10)
	form.Set("key", s.key)
	form.Set("signature", exchange.HMACHex(sha256.New, s.secret, n+s.clientID+s.key, true))
	form.Set("nonce", n)
	return nil
}

type orderBook struct {
	Bids [][]decimal.Decimal `json:"bids"`
	Asks [][]decimal.Decimal `json:"asks"`
}

func (p *Profile) MarketOrders(ctx context.Context, s *exchange.Session, marketID string) (domain.MarketOrderBook, error) {
	payload, err := p.public(ctx, s, "v2/order_book/"+marketID+"/")
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	var ob orderBook
	if err := exchange.DecodeJSON(Name, payload, &ob); err != nil {
		return domain.MarketOrderBook{}, err
	}
	return book(marketID, ob)
}

func book(marketID string, ob orderBook) (domain.MarketOrderBook, error) {
	sells, err := exchange.PriceLevels(Name, domain.OrderTypeSell, ob.Asks)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	buys, err := exchange.PriceLevels(Name, domain.OrderTypeBuy, ob.Bids)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	return domain.MarketOrderBook{MarketID: marketID, SellOrders: sells, BuyOrders: buys}, nil
}

func (p *Profile) LatestPrice(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	payload, err := p.public(ctx, s, "v2/ticker/"+marketID+"/")
	if err != nil {
		return decimal.Zero, err
	}
	var ticker struct {
		Last *decimal.Decimal `json:"last"`
	}
	if err := exchange.DecodeJSON(Name, payload, &ticker); err != nil {
		return decimal.Zero, err
	}
	if ticker.Last == nil {
		return decimal.Zero, exchange.Decodef(Name, "ticker without last price: %s", exchange.Truncated(payload, 128))
	}
	return *ticker.Last, nil
}

type openOrder struct {
	ID       exchange.FlexString `json:"id"`
	Datetime string              `json:"datetime"`
	Type     exchange.FlexString `json:"type"`
	Price    decimal.Decimal     `json:"price"`
	Amount   decimal.Decimal     `json:"amount"`
}

func (p *Profile) OpenOrders(ctx context.Context, s *exchange.Session, marketID string) ([]domain.OpenOrder, error) {
	payload, err := p.private(ctx, s, "v2/open_orders/"+marketID+"/", url.Values{})
	if err != nil {
		return nil, err
	}
	var raw []openOrder
	if err := exchange.DecodeJSON(Name, payload, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.OpenOrder, 0, len(raw))
	for _, o := range raw {
		created, err := exchange.ParseLayout(Name, datetimeLayout, o.Datetime)
		if err != nil {
			return nil, err
		}
		t, err := side(o.Type.String())
		if err != nil {
			return nil, err
		}
		// original amount is not reported
		orders = append(orders, domain.NewOpenOrder(o.ID.String(), created, marketID, t, o.Price, o.Amount, nil, nil))
	}
	return orders, nil
}

func side(code string) (domain.OrderType, error) {
	switch code {
	case "0":
		return domain.OrderTypeBuy, nil
	case "1":
		return domain.OrderTypeSell, nil
	}
	return 0, exchange.Decodef(Name, "unknown order type %q", code)
}

func (p *Profile) CreateOrder(ctx context.Context, s *exchange.Session, marketID string, t domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	path := "v2/buy/" + marketID + "/"
	if t == domain.OrderTypeSell {
		path = "v2/sell/" + marketID + "/"
	}
	prec := p.Precision()
	form := url.Values{}
	form.Set("amount", prec.FormatAmount(quantity))
	form.Set("price", prec.FormatPrice(price))

	payload, err := p.private(ctx, s, path, form)
	if err != nil {
		return "", err
	}
	var created struct {
		ID exchange.FlexString `json:"id"`
	}
	if err := exchange.DecodeJSON(Name, payload, &created); err != nil {
		return "", err
	}
	return exchange.OrderIDFromReply(created.ID.String(), payload)
}

// CancelOrder uses the v1 endpoint, which answers a bare true.
func (p *Profile) CancelOrder(ctx context.Context, s *exchange.Session, orderID, _ string) (bool, error) {
	form := url.Values{}
	form.Set("id", orderID)
	payload, err := p.private(ctx, s, "cancel_order/", form)
	if err != nil {
		if isOrderNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(string(payload)) == "true", nil
}

func isOrderNotFound(err error) bool {
	var re *exchange.RejectError
	return errors.As(err, &re) && strings.Contains(strings.ToLower(re.Message), "order not found")
}

func (p *Profile) Balance(ctx context.Context, s *exchange.Session) (domain.BalanceInfo, error) {
	payload, err := p.private(ctx, s, "v2/balance/", url.Values{})
	if err != nil {
		return domain.BalanceInfo{}, err
	}
	var fields map[string]json.RawMessage
	if err := exchange.DecodeJSON(Name, payload, &fields); err != nil {
		return domain.BalanceInfo{}, err
	}

	info := domain.NewBalanceInfo()
	for k, raw := range fields {
		currency, kind, ok := strings.Cut(k, "_")
		if !ok || (kind != "available" && kind != "reserved") {
			continue
		}
		var amount decimal.Decimal
		if err := exchange.DecodeJSON(Name, raw, &amount); err != nil {
			return domain.BalanceInfo{}, err
		}
		if kind == "available" {
			info.SetAvailable(currency, amount)
		} else {
			info.SetOnHold(currency, amount)
		}
	}
	return info, nil
}

func (p *Profile) BuyFeePercent(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	return p.fee(ctx, s, marketID)
}

// SellFeePercent is the same figure; Bitstamp has one taker fee per pair.
func (p *Profile) SellFeePercent(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	return p.fee(ctx, s, marketID)
}

func (p *Profile) fee(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	payload, err := p.private(ctx, s, "v2/balance/"+marketID+"/", url.Values{})
	if err != nil {
		return decimal.Zero, err
	}
	var bal struct {
		Fee *decimal.Decimal `json:"fee"`
	}
	if err := exchange.DecodeJSON(Name, payload, &bal); err != nil {
		return decimal.Zero, err
	}
	if bal.Fee == nil {
		return decimal.Zero, exchange.Decodef(Name, "balance without fee field")
	}
	return *bal.Fee, nil
}

func (p *Profile) public(ctx context.Context, s *exchange.Session, path string) ([]byte, error) {
	resp, err := s.Get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	if err := exchange.CheckStatus(resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (p *Profile) private(ctx context.Context, s *exchange.Session, path string, form url.Values) ([]byte, error) {
	resp, err := s.Private(ctx, func(nonce int64) (*transport.Request, error) {
		if err := p.signer.sign(form, nonce); err != nil {
			return nil, err
		}
		return exchange.FormRequest(s.URL(path, nil), form, nil), nil
	})
	if err != nil {
		return nil, err
	}
	if err := rejection(resp.Payload); err != nil {
		return nil, err
	}
	if err := exchange.CheckStatus(resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// rejection unwraps the two error envelopes: {"error": ...} and
// {"status": "error", "reason": ...}. Reason is a string or a field map.
func rejection(payload []byte) error {
	var env struct {
		Error  json.RawMessage `json:"error"`
		Status string          `json:"status"`
		Reason json.RawMessage `json:"reason"`
	}
	trimmed := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(trimmed, "{") || json.Unmarshal(payload, &env) != nil {
		return nil
	}
	switch {
	case len(env.Error) > 0:
		return exchange.Rejectf("%s", message(env.Error))
	case env.Status == "error":
		return exchange.Rejectf("%s", message(env.Reason))
	}
	return nil
}

func message(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var fields map[string][]string
	if json.Unmarshal(raw, &fields) == nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+strings.Join(fields[k], ", "))
		}
		return strings.Join(parts, "; ")
	}
	return string(raw)
}
