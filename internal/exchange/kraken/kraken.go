// Package kraken is the Kraken profile. Every reply is wrapped in
// {"error": [...], "result": ...}.
package kraken

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
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
	Name    = "Kraken"
	BaseURL = "https://api.kraken.com"

	apiVersion = "/0"
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
	secret, err := base64.StdEncoding.DecodeString(creds.Secret)
	if err != nil || len(secret) == 0 {
		return exchange.MissingKey(Name, "secret (base64)")
	}
	p.key = creds.Key
	p.secret = secret
	return nil
}

// sign returns API-Sign: HMAC-SHA512 of path + SHA256(nonce + postdata),
// keyed with the decoded secret, in base64.
func (p *Profile) sign(path string, nonce string, postData string) (string, error) {
	if p.secret == nil {
		return "", exchange.KeysNotLoaded(Name)
	}
	msg := append([]byte(path), exchange.SHA256(nonce+postData)...)
	return exchange.HMACBase64(sha512.New, p.secret, msg), nil
}

type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

type depth struct {
	Asks [][]json.RawMessage `json:"asks"`
	Bids [][]json.RawMessage `json:"bids"`
}

// MarketOrders reads the first pair in the result; Kraken answers with its
// own pair spelling, which need not match marketID.
func (p *Profile) MarketOrders(ctx context.Context, s *exchange.Session, marketID string) (domain.MarketOrderBook, error) {
	var result map[string]depth
	if err := p.public(ctx, s, "Depth", marketID, &result); err != nil {
		return domain.MarketOrderBook{}, err
	}
	d, err := single(result)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}

	sells, err := levels(domain.OrderTypeSell, d.Asks)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	buys, err := levels(domain.OrderTypeBuy, d.Bids)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	return domain.MarketOrderBook{MarketID: marketID, SellOrders: sells, BuyOrders: buys}, nil
}

// levels decodes [price, volume, timestamp] rows; the timestamp is ignored.
func levels(t domain.OrderType, rows [][]json.RawMessage) ([]domain.MarketOrder, error) {
	out := make([][]decimal.Decimal, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, exchange.Decodef(Name, "%s level: want [price, volume, time]", t)
		}
		var price, volume decimal.Decimal
		if err := exchange.DecodeJSON(Name, row[0], &price); err != nil {
			return nil, err
		}
		if err := exchange.DecodeJSON(Name, row[1], &volume); err != nil {
			return nil, err
		}
		out = append(out, []decimal.Decimal{price, volume})
	}
	return exchange.PriceLevels(Name, t, out)
}

func single[T any](result map[string]T) (T, error) {
	var zero T
	if len(result) != 1 {
		return zero, exchange.Decodef(Name, "expected one pair in result, got %d", len(result))
	}
	for _, v := range result {
		return v, nil
	}
	return zero, nil
}

func (p *Profile) LatestPrice(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	var result map[string]struct {
		Close []decimal.Decimal `json:"c"`
	}
	if err := p.public(ctx, s, "Ticker", marketID, &result); err != nil {
		return decimal.Zero, err
	}
	ticker, err := single(result)
	if err != nil {
		return decimal.Zero, err
	}
	if len(ticker.Close) == 0 {
		return decimal.Zero, exchange.Decodef(Name, "ticker without last trade")
	}
	return ticker.Close[0], nil
}

func (p *Profile) OpenOrders(ctx context.Context, s *exchange.Session, marketID string) ([]domain.OpenOrder, error) {
	var result struct {
		Open map[string]struct {
			OpenTime json.Number `json:"opentm"`
			Descr    struct {
				Pair  string          `json:"pair"`
				Type  string          `json:"type"`
				Price decimal.Decimal `json:"price"`
			} `json:"descr"`
			Volume     decimal.Decimal `json:"vol"`
			VolumeExec decimal.Decimal `json:"vol_exec"`
		} `json:"open"`
	}
	if err := p.private(ctx, s, "OpenOrders", url.Values{}, &result); err != nil {
		return nil, err
	}

	orders := make([]domain.OpenOrder, 0, len(result.Open))
	for txid, o := range result.Open {
		if !strings.EqualFold(o.Descr.Pair, marketID) {
			continue
		}
		created, err := exchange.ParseUnixSeconds(Name, o.OpenTime.String())
		if err != nil {
			return nil, err
		}
		t, err := exchange.Side(Name, o.Descr.Type)
		if err != nil {
			return nil, err
		}
		volume := o.Volume
		orders = append(orders, domain.NewOpenOrder(txid, created, marketID, t, o.Descr.Price, o.Volume.Sub(o.VolumeExec), &volume, nil))
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

func (p *Profile) CreateOrder(ctx context.Context, s *exchange.Session, marketID string, t domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	prec := p.Precision()
	form := url.Values{}
	form.Set("pair", marketID)
	form.Set("type", strings.ToLower(t.String()))
	form.Set("ordertype", "limit")
	form.Set("price", prec.FormatPrice(price))
	form.Set("volume", prec.FormatAmount(quantity))

	var result struct {
		TxID []string `json:"txid"`
	}
	if err := p.private(ctx, s, "AddOrder", form, &result); err != nil {
		return "", err
	}
	if len(result.TxID) == 0 {
		return "", exchange.Decodef(Name, "AddOrder returned no txid")
	}
	return result.TxID[0], nil
}

func (p *Profile) CancelOrder(ctx context.Context, s *exchange.Session, orderID, _ string) (bool, error) {
	form := url.Values{}
	form.Set("txid", orderID)
	var result struct {
		Count int `json:"count"`
	}
	err := p.private(ctx, s, "CancelOrder", form, &result)
	var re *exchange.RejectError
	if errors.As(err, &re) && strings.Contains(re.Message, "EOrder:Unknown order") {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result.Count > 0, nil
}

// Balance reports totals as available; Kraken's Balance call has no hold figure.
func (p *Profile) Balance(ctx context.Context, s *exchange.Session) (domain.BalanceInfo, error) {
	var result map[string]decimal.Decimal
	if err := p.private(ctx, s, "Balance", url.Values{}, &result); err != nil {
		return domain.BalanceInfo{}, err
	}
	info := domain.NewBalanceInfo()
	for currency, amount := range result {
		info.SetAvailable(currency, amount)
	}
	return info, nil
}

func (p *Profile) BuyFeePercent(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	return p.takerFee(ctx, s, marketID)
}

func (p *Profile) SellFeePercent(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	return p.takerFee(ctx, s, marketID)
}

func (p *Profile) takerFee(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	form := url.Values{}
	form.Set("pair", marketID)
	var result struct {
		Fees map[string]struct {
			Fee decimal.Decimal `json:"fee"`
		} `json:"fees"`
	}
	if err := p.private(ctx, s, "TradeVolume", form, &result); err != nil {
		return decimal.Zero, err
	}
	fee, err := single(result.Fees)
	if err != nil {
		return decimal.Zero, err
	}
	return fee.Fee, nil
}

func (p *Profile) public(ctx context.Context, s *exchange.Session, method, pair string, v any) error {
	resp, err := s.Get(ctx, apiVersion+"/public/"+method, url.Values{"pair": {pair}})
	if err != nil {
		return err
	}
	return decode(resp, v)
}

func (p *Profile) private(ctx context.Context, s *exchange.Session, method string, form url.Values, v any) error {
	path := apiVersion + "/private/" + method
	resp, err := s.Private(ctx, func(nonce int64) (*transport.Request, error) {
		n := strconv.FormatInt(nonce, 10)
		form.Set("nonce", n)
		signature, err := p.sign(path, n, form.Encode())
		if err != nil {
			return nil, err
		}
		h := make(http.Header)
		h.Set("API-Key", p.key)
		h.Set("API-Sign", signature)
		return exchange.FormRequest(s.URL(path, nil), form, h), nil
	})
	if err != nil {
		return err
	}
	return decode(resp, v)
}

// decode unwraps the envelope. A non-empty error list is a rejection even
// on a 200 reply.
func decode(resp *transport.Response, v any) error {
	var env envelope
	if err := exchange.DecodeJSON(Name, resp.Payload, &env); err != nil {
		if !resp.IsSuccess() {
			return exchange.CheckStatus(resp)
		}
		return err
	}
	if len(env.Error) > 0 {
		return exchange.Rejectf("%s", strings.Join(env.Error, "; "))
	}
	if err := exchange.CheckStatus(resp); err != nil {
		return err
	}
	if len(env.Result) == 0 {
		return exchange.Decodef(Name, "reply without result")
	}
	return exchange.DecodeJSON(Name, env.Result, v)
}
