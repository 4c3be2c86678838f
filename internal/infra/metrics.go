package infra

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tradebot"

// Metrics exports adapter calls and monitor cycles to Prometheus. Each
// instance owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	cycles   *prometheus.CounterVec
	halted   *prometheus.GaugeVec
	orders   *prometheus.CounterVec
}

// NewMetrics registers the bot's collectors on a fresh registry.
func NewMetrics() *Metrics {
	hostname, _ := os.Hostname()
	constLabels := prometheus.Labels{"hostname": hostname}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "exchange_calls_total",
			Help:        "Adapter calls by exchange, operation and outcome.",
			ConstLabels: constLabels,
		}, []string{"exchange", "op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Name:        "exchange_call_duration_ms",
			Help:        "Adapter call latency in milliseconds.",
			ConstLabels: constLabels,
			Buckets:     []float64{10, 25, 50, 100, 200, 300, 400, 500, 750, 1000, 2000, 5000, 10000},
		}, []string{"exchange", "op"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "cycles_total",
			Help:        "Monitor cycles by exchange and result.",
			ConstLabels: constLabels,
		}, []string{"exchange", "result"}),
		halted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "emergency_stop",
			Help:        "1 while the emergency stop holds trading on an exchange.",
			ConstLabels: constLabels,
		}, []string{"exchange"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "orders_journaled_total",
			Help:        "Orders written to the journal by exchange and status.",
			ConstLabels: constLabels,
		}, []string{"exchange", "status"}),
	}
	m.registry.MustRegister(m.calls, m.latency, m.cycles, m.halted, m.orders)
	return m
}

// ObserveCall records one adapter call.
func (m *Metrics) ObserveCall(exchange, op, outcome string, elapsed time.Duration) {
	m.calls.WithLabelValues(exchange, op, outcome).Inc()
	m.latency.WithLabelValues(exchange, op).Observe(float64(elapsed) / float64(time.Millisecond))
}

// RecordCycle records the result of one monitor cycle.
func (m *Metrics) RecordCycle(exchange, result string) {
	m.cycles.WithLabelValues(exchange, result).Inc()
}

// SetHalted sets the emergency stop state (true = trading held).
func (m *Metrics) SetHalted(exchange string, halted bool) {
	v := 0.0
	if halted {
		v = 1
	}
	m.halted.WithLabelValues(exchange).Set(v)
}

// RecordOrder counts a journaled order.
func (m *Metrics) RecordOrder(exchange, status string) {
	m.orders.WithLabelValues(exchange, status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Serve runs the /metrics endpoint on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Default().With("module", "metrics").Info("metrics server started", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
