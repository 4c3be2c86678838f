package registry

import (
	"errors"
	"testing"

	"tradebot/internal/domain"
)

func TestProfile_Lookup(t *testing.T) {
	cases := map[string]string{
		"bitstamp": "Bitstamp",
		"Kraken":   "Kraken",
		"BTC-e":    "BTC-e",
		"btc_e":    "BTC-e",
		" gdax ":   "GDAX",
		"OKCoin":   "OKCoin",
		"bitfinex": "Bitfinex",
		"gemini":   "Gemini",
		"huobi":    "Huobi",
	}

	for in, want := range cases {
		p, err := Profile(in)
		if err != nil {
			t.Errorf("%q: %v", in, err)
			continue
		}
		if p.Name() != want {
			t.Errorf("%q: Name = %s, want %s", in, p.Name(), want)
		}
	}
}

func TestProfile_Unknown(t *testing.T) {
	_, err := Profile("mtgox")

	var ce *domain.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownExchange) {
		t.Errorf("expected ErrUnknownExchange, got %v", err)
	}
}

func TestProfile_FreshInstance(t *testing.T) {
	a, _ := Profile("kraken")
	b, _ := Profile("kraken")
	if a == b {
		t.Error("each lookup must return its own profile")
	}
}

func TestBuild_Capabilities(t *testing.T) {
	huobi, err := Build("huobi", domain.AdapterCredentials{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if huobi.Capabilities() != domain.CapPublic {
		t.Errorf("huobi capabilities = %s", huobi.Capabilities())
	}
	if err := huobi.Require(domain.CapTrading); err == nil {
		t.Error("huobi cannot trade")
	}

	kraken, err := Build("kraken", domain.AdapterCredentials{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := kraken.Require(domain.CapTrading); err != nil {
		t.Errorf("kraken should support trading: %v", err)
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 8 {
		t.Fatalf("got %d names", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("not sorted: %v", names)
		}
	}
}
