package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
	"tradebot/internal/infra/storage"
)

func usdRule(floor string) domain.StopRule {
	return domain.StopRule{Currency: "USD", Floor: decimal.RequireFromString(floor)}
}

func TestEmergencyStop_Check(t *testing.T) {
	t.Run("above floor", func(t *testing.T) {
		api := newFakeAPI()
		api.balance.SetAvailable("USD", decimal.NewFromInt(500))
		c := newCounters()

		stop, err := NewEmergencyStop("Bitstamp", usdRule("100"), nil, c)
		if err != nil {
			t.Fatalf("NewEmergencyStop failed: %v", err)
		}
		halted, err := stop.Check(context.Background(), api)
		if err != nil || halted {
			t.Errorf("got (%v, %v), want (false, nil)", halted, err)
		}
		if c.halted["Bitstamp"] {
			t.Error("gauge should read not halted")
		}
	})

	t.Run("below floor latches", func(t *testing.T) {
		api := newFakeAPI()
		api.balance.SetAvailable("USD", decimal.NewFromInt(50))
		api.balance.SetOnHold("USD", decimal.NewFromInt(1000))
		c := newCounters()

		stop, _ := NewEmergencyStop("Bitstamp", usdRule("100"), nil, c)
		halted, err := stop.Check(context.Background(), api)
		if err != nil || !halted {
			t.Fatalf("got (%v, %v), want (true, nil)", halted, err)
		}
		if !c.halted["Bitstamp"] {
			t.Error("gauge should read halted")
		}

		// Balance recovers, latch holds without asking the exchange.
		api.balance.SetAvailable("USD", decimal.NewFromInt(5000))
		before := api.count("BalanceInfo")
		if halted, _ := stop.Check(context.Background(), api); !halted {
			t.Error("latch released without Reset")
		}
		if api.count("BalanceInfo") != before {
			t.Error("latched stop should not call the exchange")
		}

		stop.Reset()
		if halted, _ := stop.Check(context.Background(), api); halted {
			t.Error("Reset did not release the latch")
		}
		if c.halted["Bitstamp"] {
			t.Error("gauge should read not halted after Reset")
		}
	})

	t.Run("disabled rule", func(t *testing.T) {
		api := newFakeAPI()
		stop, _ := NewEmergencyStop("Kraken", domain.StopRule{}, nil, nil)
		halted, err := stop.Check(context.Background(), api)
		if err != nil || halted {
			t.Errorf("got (%v, %v)", halted, err)
		}
		if api.count("BalanceInfo") != 0 {
			t.Error("disabled rule should not fetch balances")
		}
	})

	t.Run("balance error returned", func(t *testing.T) {
		api := newFakeAPI()
		api.errs["BalanceInfo"] = timeoutErr()

		stop, _ := NewEmergencyStop("Kraken", usdRule("1"), nil, nil)
		halted, err := stop.Check(context.Background(), api)
		if halted {
			t.Error("unknown balance must not latch")
		}
		if !domain.IsRetriable(err) {
			t.Errorf("expected the timeout, got %v", err)
		}
	})
}

func TestEmergencyStop_LatchSurvivesRestart(t *testing.T) {
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer store.Close()

	api := newFakeAPI()
	api.balance.SetAvailable("USD", decimal.NewFromInt(10))

	first, err := NewEmergencyStop("GDAX", usdRule("100"), store, nil)
	if err != nil {
		t.Fatalf("NewEmergencyStop failed: %v", err)
	}
	if halted, _ := first.Check(context.Background(), api); !halted {
		t.Fatal("expected halt")
	}

	second, err := NewEmergencyStop("GDAX", usdRule("100"), store, nil)
	if err != nil {
		t.Fatalf("NewEmergencyStop failed: %v", err)
	}
	if !second.Halted() {
		t.Error("latch was not restored")
	}

	other, _ := NewEmergencyStop("Kraken", usdRule("100"), store, nil)
	if other.Halted() {
		t.Error("latch is per exchange")
	}

	second.Reset()
	third, _ := NewEmergencyStop("GDAX", usdRule("100"), store, nil)
	if third.Halted() {
		t.Error("Reset was not persisted")
	}
}

type brokenStore struct{}

func (brokenStore) SaveState(key, value string) error { return errJournalDown }
func (brokenStore) LoadState(key string) (string, bool, error) {
	return "", false, errJournalDown
}

func TestEmergencyStop_StoreLoadFailure(t *testing.T) {
	_, err := NewEmergencyStop("Gemini", usdRule("1"), brokenStore{}, nil)
	if !errors.Is(err, errJournalDown) {
		t.Errorf("expected store error, got %v", err)
	}
}
