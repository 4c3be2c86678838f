package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// DecodeError is a malformed or unexpected exchange payload.
type DecodeError struct {
	Exchange string
	Err      error
}

func (e *DecodeError) Error() string {
	return e.Exchange + ": decode: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decodef builds a DecodeError from a format string.
func Decodef(exchange, format string, args ...any) error {
	return &DecodeError{Exchange: exchange, Err: fmt.Errorf(format, args...)}
}

// DecodeJSON unmarshals payload into v, wrapping failures in a DecodeError.
func DecodeJSON(exchange string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return &DecodeError{Exchange: exchange, Err: err}
	}
	return nil
}

// ParseDecimal parses an exchange number, wrapping failures in a DecodeError.
func ParseDecimal(exchange, field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, Decodef(exchange, "%s: %v", field, err)
	}
	return d, nil
}

// ParseUnixSeconds parses a UNIX timestamp in seconds. A fractional part, such
// as the spurious ".0" some exchanges append, is accepted.
func ParseUnixSeconds(exchange, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, Decodef(exchange, "timestamp %q: %v", s, err)
	}
	var nanos int64
	if hasFrac && frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, Decodef(exchange, "timestamp %q: %v", s, err)
		}
		for i := len(frac); i < 9; i++ {
			n *= 10
		}
		nanos = n
	}
	return time.Unix(sec, nanos).UTC(), nil
}

// ParseUnixMillis parses a UNIX timestamp in milliseconds.
func ParseUnixMillis(exchange string, ms int64) (time.Time, error) {
	if ms <= 0 {
		return time.Time{}, Decodef(exchange, "timestamp %d out of range", ms)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// ParseLayout parses s with a Go time layout, in UTC.
func ParseLayout(exchange, layout, s string) (time.Time, error) {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, Decodef(exchange, "time %q: %v", s, err)
	}
	return t, nil
}

// PriceLevels turns [[price, amount, ...], ...] rows into market orders.
func PriceLevels(exchange string, t domain.OrderType, rows [][]decimal.Decimal) ([]domain.MarketOrder, error) {
	out := make([]domain.MarketOrder, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, Decodef(exchange, "%s level %d: want [price, amount], got %d fields", t, i, len(row))
		}
		out = append(out, domain.NewMarketOrder(t, row[0], row[1]))
	}
	return out, nil
}

// Side maps an exchange's buy/sell spelling to an OrderType.
func Side(exchange, s string) (domain.OrderType, error) {
	t, err := domain.ParseOrderType(s)
	if err != nil {
		return 0, Decodef(exchange, "%v", err)
	}
	return t, nil
}

// Truncated returns the first n bytes of a payload for error messages.
func Truncated(payload []byte, n int) string {
	if len(payload) <= n {
		return string(payload)
	}
	return string(payload[:n]) + "..."
}

// FlexString decodes a JSON string or number as its text. Exchanges are not
// consistent about quoting ids and amounts.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = FlexString(b)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}
