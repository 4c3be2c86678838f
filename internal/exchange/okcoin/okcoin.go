// Package okcoin is the OKCoin v1 profile. Requests are signed with an
// upper-case MD5 over the sorted parameters; there is no nonce on the wire.
package okcoin

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/exchange"
	"tradebot/internal/infra/transport"
)

const (
	Name    = "OKCoin"
	BaseURL = "https://www.okcoin.com/api/v1/"

	errOrderNotExist = 10009
)

var errorText = map[int]string{
	10005: "secret key does not exist",
	10007: "signature does not match",
	10009: "order does not exist",
	10010: "insufficient funds",
	10016: "insufficient coins balance",
	10024: "balance not sufficient",
	1002:  "the transaction amount exceed the balance",
}

// Profile has no fee endpoint; fees come from config.
type Profile struct {
	key    string
	secret string
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
	p.secret = creds.Secret
	return nil
}

// sign adds api_key and sign to params.
func (p *Profile) sign(params url.Values) error {
	if p.secret == "" {
		return exchange.KeysNotLoaded(Name)
	}
	params.Set("api_key", p.key)
	params.Del("sign")
	params.Set("sign", exchange.MD5Upper(exchange.SortedQuery(params)+"&secret_key="+p.secret))
	return nil
}

// MarketOrders: OKCoin sends asks highest first. The adapter re-sorts them.
func (p *Profile) MarketOrders(ctx context.Context, s *exchange.Session, marketID string) (domain.MarketOrderBook, error) {
	var depth struct {
		Asks [][]decimal.Decimal `json:"asks"`
		Bids [][]decimal.Decimal `json:"bids"`
	}
	if err := p.public(ctx, s, "depth.do", marketID, &depth); err != nil {
		return domain.MarketOrderBook{}, err
	}
	sells, err := exchange.PriceLevels(Name, domain.OrderTypeSell, depth.Asks)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	buys, err := exchange.PriceLevels(Name, domain.OrderTypeBuy, depth.Bids)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	return domain.MarketOrderBook{MarketID: marketID, SellOrders: sells, BuyOrders: buys}, nil
}

func (p *Profile) LatestPrice(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	var reply struct {
		Ticker *struct {
			Last decimal.Decimal `json:"last"`
		} `json:"ticker"`
	}
	if err := p.public(ctx, s, "ticker.do", marketID, &reply); err != nil {
		return decimal.Zero, err
	}
	if reply.Ticker == nil {
		return decimal.Zero, exchange.Decodef(Name, "reply without ticker")
	}
	return reply.Ticker.Last, nil
}

func (p *Profile) OpenOrders(ctx context.Context, s *exchange.Session, marketID string) ([]domain.OpenOrder, error) {
	params := url.Values{}
	params.Set("symbol", marketID)
	params.Set("order_id", "-1") // all unfilled orders

	var reply struct {
		Orders []struct {
			OrderID    exchange.FlexString `json:"order_id"`
			CreateDate int64               `json:"create_date"`
			Price      decimal.Decimal     `json:"price"`
			Amount     decimal.Decimal     `json:"amount"`
			DealAmount decimal.Decimal     `json:"deal_amount"`
			Type       string              `json:"type"`
			Symbol     string              `json:"symbol"`
		} `json:"orders"`
	}
	if err := p.private(ctx, s, "order_info.do", params, &reply); err != nil {
		return nil, err
	}

	orders := make([]domain.OpenOrder, 0, len(reply.Orders))
	for _, o := range reply.Orders {
		if o.Symbol != "" && o.Symbol != marketID {
			continue
		}
		created, err := exchange.ParseUnixMillis(Name, o.CreateDate)
		if err != nil {
			return nil, err
		}
		t, err := exchange.Side(Name, o.Type)
		if err != nil {
			return nil, err
		}
		amount := o.Amount
		orders = append(orders, domain.NewOpenOrder(o.OrderID.String(), created, marketID, t, o.Price, o.Amount.Sub(o.DealAmount), &amount, nil))
	}
	return orders, nil
}

func (p *Profile) CreateOrder(ctx context.Context, s *exchange.Session, marketID string, t domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	prec := p.Precision()
	params := url.Values{}
	params.Set("symbol", marketID)
	params.Set("type", strings.ToLower(t.String()))
	params.Set("price", prec.FormatPrice(price))
	params.Set("amount", prec.FormatAmount(quantity))

	var raw json.RawMessage
	if err := p.private(ctx, s, "trade.do", params, &raw); err != nil {
		return "", err
	}
	var reply struct {
		OrderID exchange.FlexString `json:"order_id"`
	}
	if err := exchange.DecodeJSON(Name, raw, &reply); err != nil {
		return "", err
	}
	return exchange.OrderIDFromReply(reply.OrderID.String(), raw)
}

func (p *Profile) CancelOrder(ctx context.Context, s *exchange.Session, orderID, marketID string) (bool, error) {
	params := url.Values{}
	params.Set("symbol", marketID)
	params.Set("order_id", orderID)

	var reply struct {
		Result  bool                `json:"result"`
		OrderID exchange.FlexString `json:"order_id"`
	}
	err := p.private(ctx, s, "cancel_order.do", params, &reply)
	if ce, ok := err.(*codeError); ok && ce.code == errOrderNotExist {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// only an explicit result:true counts as cancelled
	return reply.Result, nil
}

func (p *Profile) Balance(ctx context.Context, s *exchange.Session) (domain.BalanceInfo, error) {
	var reply struct {
		Info struct {
			Funds struct {
				Free    map[string]decimal.Decimal `json:"free"`
				Freezed map[string]decimal.Decimal `json:"freezed"`
			} `json:"funds"`
		} `json:"info"`
	}
	if err := p.private(ctx, s, "userinfo.do", url.Values{}, &reply); err != nil {
		return domain.BalanceInfo{}, err
	}
	info := domain.NewBalanceInfo()
	for c, v := range reply.Info.Funds.Free {
		info.SetAvailable(c, v)
	}
	for c, v := range reply.Info.Funds.Freezed {
		info.SetOnHold(c, v)
	}
	return info, nil
}

func (p *Profile) public(ctx context.Context, s *exchange.Session, path, symbol string, v any) error {
	resp, err := s.Get(ctx, path, url.Values{"symbol": {symbol}})
	if err != nil {
		return err
	}
	return decode(resp, v)
}

func (p *Profile) private(ctx context.Context, s *exchange.Session, path string, params url.Values, v any) error {
	resp, err := s.Private(ctx, func(int64) (*transport.Request, error) {
		if err := p.sign(params); err != nil {
			return nil, err
		}
		return exchange.FormRequest(s.URL(path, nil), params, nil), nil
	})
	if err != nil {
		return err
	}
	return decode(resp, v)
}

// codeError is a {"result": false, "error_code": N} reply.
type codeError struct {
	*exchange.RejectError
	code int
}

func (e *codeError) Unwrap() error {
	return e.RejectError
}

func decode(resp *transport.Response, v any) error {
	if err := exchange.CheckStatus(resp); err != nil {
		return err
	}
	var env struct {
		Result    *bool `json:"result"`
		ErrorCode int   `json:"error_code"`
	}
	// depth and ticker replies carry no envelope
	if json.Unmarshal(resp.Payload, &env) == nil && env.Result != nil && !*env.Result {
		msg := "error code " + strconv.Itoa(env.ErrorCode)
		if text, ok := errorText[env.ErrorCode]; ok {
			msg += ": " + text
		}
		return &codeError{RejectError: &exchange.RejectError{Message: msg}, code: env.ErrorCode}
	}
	return exchange.DecodeJSON(Name, resp.Payload, v)
}
