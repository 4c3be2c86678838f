// Package huobi is a public-data Huobi profile: order book and last price only.
package huobi

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/exchange"
)

const (
	Name    = "Huobi"
	BaseURL = "https://api.huobi.pro"
)

type Profile struct{}

func New() *Profile {
	return &Profile{}
}

func (p *Profile) Name() string                  { return Name }
func (p *Profile) BaseURL() string               { return BaseURL }
func (p *Profile) Precision() exchange.Precision { return exchange.DefaultPrecision }

func (p *Profile) MarketOrders(ctx context.Context, s *exchange.Session, marketID string) (domain.MarketOrderBook, error) {
	var tick struct {
		Bids [][]decimal.Decimal `json:"bids"`
		Asks [][]decimal.Decimal `json:"asks"`
	}
	if err := get(ctx, s, "/market/depth", url.Values{"symbol": {marketID}, "type": {"step0"}}, &tick); err != nil {
		return domain.MarketOrderBook{}, err
	}
	sells, err := exchange.PriceLevels(Name, domain.OrderTypeSell, tick.Asks)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	buys, err := exchange.PriceLevels(Name, domain.OrderTypeBuy, tick.Bids)
	if err != nil {
		return domain.MarketOrderBook{}, err
	}
	return domain.MarketOrderBook{MarketID: marketID, SellOrders: sells, BuyOrders: buys}, nil
}

func (p *Profile) LatestPrice(ctx context.Context, s *exchange.Session, marketID string) (decimal.Decimal, error) {
	var tick struct {
		Close *decimal.Decimal `json:"close"`
	}
	if err := get(ctx, s, "/market/detail/merged", url.Values{"symbol": {marketID}}, &tick); err != nil {
		return decimal.Zero, err
	}
	if tick.Close == nil {
		return decimal.Zero, exchange.Decodef(Name, "tick without close")
	}
	return *tick.Close, nil
}

// get unwraps {"status": "ok", "tick": ...}.
func get(ctx context.Context, s *exchange.Session, path string, query url.Values, v any) error {
	resp, err := s.Get(ctx, path, query)
	if err != nil {
		return err
	}
	var env struct {
		Status string          `json:"status"`
		ErrMsg string          `json:"err-msg"`
		Tick   json.RawMessage `json:"tick"`
	}
	if err := exchange.DecodeJSON(Name, resp.Payload, &env); err != nil {
		if !resp.IsSuccess() {
			return exchange.CheckStatus(resp)
		}
		return err
	}
	if env.Status != "ok" {
		return exchange.Rejectf("%s", env.ErrMsg)
	}
	if len(env.Tick) == 0 {
		return exchange.Decodef(Name, "reply without tick")
	}
	return exchange.DecodeJSON(Name, env.Tick, v)
}
