// Package registry maps configured exchange names to their profiles.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"tradebot/internal/domain"
	"tradebot/internal/exchange"
	"tradebot/internal/exchange/bitfinex"
	"tradebot/internal/exchange/bitstamp"
	"tradebot/internal/exchange/btce"
	"tradebot/internal/exchange/gdax"
	"tradebot/internal/exchange/gemini"
	"tradebot/internal/exchange/huobi"
	"tradebot/internal/exchange/kraken"
	"tradebot/internal/exchange/okcoin"
)

// ErrUnknownExchange is returned for names with no profile.
var ErrUnknownExchange = errors.New("unknown exchange")

var profiles = map[string]func() exchange.Profile{
	"bitfinex": func() exchange.Profile { return bitfinex.New() },
	"bitstamp": func() exchange.Profile { return bitstamp.New() },
	"btce":     func() exchange.Profile { return btce.New() },
	"gdax":     func() exchange.Profile { return gdax.New() },
	"gemini":   func() exchange.Profile { return gemini.New() },
	"huobi":    func() exchange.Profile { return huobi.New() },
	"kraken":   func() exchange.Profile { return kraken.New() },
	"okcoin":   func() exchange.Profile { return okcoin.New() },
}

// normalize folds case and drops separators, so "BTC-e" finds btce.
func normalize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '.', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

// Profile returns a fresh profile for name.
func Profile(name string) (exchange.Profile, error) {
	ctor, ok := profiles[normalize(name)]
	if !ok {
		return nil, &domain.ConfigError{Field: "exchanges.name", Err: fmt.Errorf("%w: %q", ErrUnknownExchange, name)}
	}
	return ctor(), nil
}

// Build creates an adapter for name.
func Build(name string, creds domain.AdapterCredentials, opts ...exchange.Option) (*exchange.Adapter, error) {
	p, err := Profile(name)
	if err != nil {
		return nil, err
	}
	return exchange.New(p, creds, opts...)
}

// Names lists the registered profile keys, sorted.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
