package domain

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// AdapterCredentials is the construction-time input of an adapter.
// Key material is sensitive; LogValue keeps it out of logs.
type AdapterCredentials struct {
	Key               string
	Secret            string
	Passphrase        string
	ClientID          string
	ConnectionTimeout time.Duration
	BuyFeePercent     *decimal.Decimal // static fee, used when the exchange API has none
	SellFeePercent    *decimal.Decimal
	BaseURL           string // overrides the exchange's fixed URL when set
	UserAgent         string
}

// LogValue implements slog.LogValuer.
func (c AdapterCredentials) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Duration("connection_timeout", c.ConnectionTimeout),
		slog.Bool("has_key", c.Key != ""),
		slog.Bool("has_secret", c.Secret != ""),
	}
	if c.BaseURL != "" {
		attrs = append(attrs, slog.String("base_url", c.BaseURL))
	}
	if c.BuyFeePercent != nil {
		attrs = append(attrs, slog.String("buy_fee_percent", c.BuyFeePercent.String()))
	}
	if c.SellFeePercent != nil {
		attrs = append(attrs, slog.String("sell_fee_percent", c.SellFeePercent.String()))
	}
	return slog.GroupValue(attrs...)
}

// OrderRecord is one journaled order.
type OrderRecord struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Exchange    string          `gorm:"index:idx_order,unique" json:"exchange"`
	OrderID     string          `gorm:"index:idx_order,unique" json:"order_id"`
	MarketID    string          `gorm:"index" json:"market_id"`
	Side        string          `json:"side"`
	Quantity    decimal.Decimal `gorm:"type:text" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:text" json:"price"`
	Placeholder bool            `gorm:"index" json:"placeholder"` // id was synthesized for an instant fill
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

const (
	OrderStatusPlaced       = "PLACED"
	OrderStatusCancelled    = "CANCELLED"
	OrderStatusCancelMissed = "CANCEL_MISSED" // exchange did not recognise the id
)

// BotState is a persisted key/value pair, such as an emergency stop latch.
type BotState struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
