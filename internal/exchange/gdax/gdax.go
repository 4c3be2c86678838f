// Package gdax is the GDAX profile. Fees are not exposed by the API and must
// be configured statically.
package gdax

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/exchange"
	"tradebot/internal/infra/transport"
)

const (
	Name    = "GDAX"
	BaseURL = "https://api.gdax.com"
)

type Profile struct {
	signer *signer
}

func New() *Profile {
	return &Profile{signer: &signer{now: time.Now}}
}

func (p *Profile) Name() string                  { return Name }
func (p *Profile) BaseURL() string               { return BaseURL }
func (p *Profile) Precision() exchange.Precision { return exchange.DefaultPrecision }

func (p *Profile) LoadKeys(creds domain.AdapterCredentials) error {
	return p.signer.load(creds)
}

// signer produces the CB-ACCESS-* headers.
type signer struct {
	key        string
	secret     []byte
	passphrase string
	now        func() time.Time
}

func (s *signer) load(creds domain.AdapterCredentials) error {
	if creds.Passphrase == "" {
		return exchange.MissingKey(Name, "passphrase")
	}
	secret, err := base64.StdEncoding.DecodeString(creds.Secret)
	if err != nil || len(secret) == 0 {
		return exchange.MissingKey(Name, "secret (base64)")
	}
	s.key = creds.Key
	s.secret = secret
	s.passphrase = creds.Passphrase
	return nil
}

// headers signs timestamp + method + requestPath + body. GDAX checks the
// timestamp against its clock, so wall time is used rather than the nonce.
func (s *signer) headers(method, requestPath string, body []byte) (http.Header, error) {
	if s.secret == nil {
		return nil, exchange.KeysNotLoaded(Name)
	}
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	payload := timestamp + method + requestPath + string(body)

	h := make(http.Header)
	h.Set("CB-ACCESS-KEY", s.key)
	h.Set("CB-ACCESS-SIGN", exchange.HMACBase64(sha256.New, s.secret, []byte(payload)))
	h.Set("CB-ACCESS-TIMESTAMP", timestamp)
	h.Set("CB-ACCESS-PASSPHRASE", s.passphrase)
	h.Set("Content-Type", "application/json")
	return h, nil
}

func (p *Profile) MarketOrders(ctx context.Context, s *exchange.Session, marketID string) (domain.MarketOrderBook, error) {
	var book struct {
		Bids [][]decimal.Decimal `json:"bids"`
		Asks [][]decimal.Decimal `json:"asks"`
	}
	if err := p.public(ctx, s, "/products/"+marketID+"/book", url.Values{"level": {"2"}}, &book); err != nil {
		return domain.MarketOrderBook{}, err
	}
	sells, err := exchange.PriceLevels(Name, domain.OrderTypeSell, book.Asks)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	buys, err := exchange.PriceLevels(Name, domain.OrderTypeBuy, book.Bids)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	return domain.MarketOrderBook{MarketID: marketID, SellOrders: sells, BuyOrders: buys}, nil
}

func (p *Profile) LatestPrice(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	var ticker struct {
		Price *decimal.Decimal `json:"price"`
	}
	if err := p.public(ctx, s, "/products/"+marketID+"/ticker", nil, &ticker); err != nil {
		return decimal.Zero, err
	}
	if ticker.Price == nil {
		return decimal.Zero, exchange.Decodef(Name, "ticker without price")
	}
	return *ticker.Price, nil
}

func (p *Profile) OpenOrders(ctx context.Context, s *exchange.Session, marketID string) ([]domain.OpenOrder, error) {
	var raw []struct {
		ID         string          `json:"id"`
		Price      decimal.Decimal `json:"price"`
		Size       decimal.Decimal `json:"size"`
		FilledSize decimal.Decimal `json:"filled_size"`
		ProductID  string          `json:"product_id"`
		Side       string          `json:"side"`
		CreatedAt  string          `json:"created_at"`
	}
	query := url.Values{"status": {"open"}, "product_id": {marketID}}
	if err := p.private(ctx, s, http.MethodGet, "/orders", query, nil, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.OpenOrder, 0, len(raw))
	for _, o := range raw {
		if o.ProductID != marketID {
			continue
		}
		created, err := exchange.ParseLayout(Name, time.RFC3339Nano, o.CreatedAt)
		if err != nil {
			return nil, err
		}
		t, err := exchange.Side(Name, o.Side)
		if err != nil {
			return nil, err
		}
		size := o.Size
		orders = append(orders, domain.NewOpenOrder(o.ID, created, marketID, t, o.Price, o.Size.Sub(o.FilledSize), &size, nil))
	}
	return orders, nil
}

func (p *Profile) CreateOrder(ctx context.Context, s *exchange.Session, marketID string, t domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	prec := p.Precision()
	body, err := json.Marshal(map[string]string{
		"type":       "limit",
		"side":       strings.ToLower(t.String()),
		"product_id": marketID,
		"size":       prec.FormatAmount(quantity),
		"price":      prec.FormatPrice(price),
	})
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := p.private(ctx, s, http.MethodPost, "/orders", nil, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (p *Profile) CancelOrder(ctx context.Context, s *exchange.Session, orderID, _ string) (bool, error) {
	err := p.private(ctx, s, http.MethodDelete, "/orders/"+url.PathEscape(orderID), nil, nil, nil)
	var re *exchange.RejectError
	if errors.As(err, &re) && isUnknownOrder(re.Message) {
		return false, nil
	}
	return err == nil, err
}

func isUnknownOrder(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "order already done")
}

func (p *Profile) Balance(ctx context.Context, s *exchange.Session) (domain.BalanceInfo, error) {
	var accounts []struct {
		Currency  string          `json:"currency"`
		Available decimal.Decimal `json:"available"`
		Hold      decimal.Decimal `json:"hold"`
	}
	if err := p.private(ctx, s, http.MethodGet, "/accounts", nil, nil, &accounts); err != nil {
		return domain.BalanceInfo{}, err
	}
	info := domain.NewBalanceInfo()
	for _, a := range accounts {
		info.SetAvailable(a.Currency, a.Available)
		info.SetOnHold(a.Currency, a.Hold)
	}
	return info, nil
}

func (p *Profile) public(ctx context.Context, s *exchange.Session, path string, query url.Values, v any) error {
	resp, err := s.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return decode(resp, v)
}

func (p *Profile) private(ctx context.Context, s *exchange.Session, method, path string, query url.Values, body []byte, v any) error {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}
	resp, err := s.Private(ctx, func(int64) (*transport.Request, error) {
		header, err := p.signer.headers(method, requestPath, body)
		if err != nil {
			return nil, err
		}
		return &transport.Request{Method: method, URL: s.URL(path, query), Body: body, Header: header}, nil
	})
	if err != nil {
		return err
	}
	return decode(resp, v)
}

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
	if v == nil {
		return nil
	}
	return exchange.DecodeJSON(Name, resp.Payload, v)
}
