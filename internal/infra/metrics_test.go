package infra

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveCall(t *testing.T) {
	m := NewMetrics()

	m.ObserveCall("Bitstamp", "MarketOrders", "ok", 120*time.Millisecond)
	m.ObserveCall("Bitstamp", "MarketOrders", "ok", 80*time.Millisecond)
	m.ObserveCall("Bitstamp", "MarketOrders", "timeout", time.Second)

	if got := testutil.ToFloat64(m.calls.WithLabelValues("Bitstamp", "MarketOrders", "ok")); got != 2 {
		t.Errorf("ok calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("Bitstamp", "MarketOrders", "timeout")); got != 1 {
		t.Errorf("timeout calls = %v, want 1", got)
	}
}

func TestMetrics_HaltedAndCycles(t *testing.T) {
	m := NewMetrics()

	m.SetHalted("GDAX", true)
	if testutil.ToFloat64(m.halted.WithLabelValues("GDAX")) != 1 {
		t.Error("expected halted gauge 1")
	}
	m.SetHalted("GDAX", false)
	if testutil.ToFloat64(m.halted.WithLabelValues("GDAX")) != 0 {
		t.Error("expected halted gauge 0")
	}

	m.RecordCycle("GDAX", "skipped")
	m.RecordOrder("GDAX", "PLACED")
	if testutil.ToFloat64(m.cycles.WithLabelValues("GDAX", "skipped")) != 1 {
		t.Error("cycle not counted")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveCall("Kraken", "BalanceInfo", "rejected", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `tradebot_exchange_calls_total{exchange="Kraken"`) {
		t.Errorf("exposition missing call counter:\n%s", body)
	}
}
