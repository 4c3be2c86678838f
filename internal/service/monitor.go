package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tradebot/internal/domain"
)

// Cycle results reported to a CycleRecorder.
const (
	CycleOK      = "ok"
	CycleSkipped = "skipped" // network timeout, retried next cycle
	CycleFailed  = "failed"
	CycleHalted  = "halted"
)

// CycleRecorder counts monitor cycles by result.
type CycleRecorder interface {
	RecordCycle(exchange, result string)
}

// MonitorConfig wires a Monitor. Stop, Snapshots and Cycles may be nil.
type MonitorConfig struct {
	Exchange     string
	API          domain.TradingAPI
	Capabilities domain.Capabilities
	Markets      []string
	Stop         *EmergencyStop

	// CancelOnHalt cancels our open orders on every market when the
	// emergency stop trips.
	CancelOnHalt bool

	Snapshots *SnapshotService
	Cycles    CycleRecorder
}

// Monitor runs the per-exchange cycle: emergency stop first, then order book,
// latest price and open orders for each market. It drives its TradingAPI
// from a single goroutine.
type Monitor struct {
	cfg    MonitorConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		cfg:    cfg,
		logger: slog.Default().With("module", "monitor", "exchange", cfg.Exchange),
		now:    time.Now,
	}
}

// Run executes a cycle immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle executes one cycle and returns its result.
func (m *Monitor) RunCycle(ctx context.Context) string {
	result := m.cycle(ctx)
	if m.cfg.Cycles != nil {
		m.cfg.Cycles.RecordCycle(m.cfg.Exchange, result)
	}
	return result
}

func (m *Monitor) cycle(ctx context.Context) string {
	// 1. Emergency stop
	if m.cfg.Stop != nil {
		wasHalted := m.cfg.Stop.Halted()
		if wasHalted || m.cfg.Capabilities.Has(domain.CapBalance) {
			halted, err := m.cfg.Stop.Check(ctx, m.cfg.API)
			if err != nil {
				return m.handleError("emergency stop check", "", err)
			}
			if halted {
				if !wasHalted && m.cfg.CancelOnHalt {
					m.cancelOpenOrders(ctx)
				}
				m.logger.Warn("Trading halted, cycle skipped")
				return CycleHalted
			}
		}
	}

	// 2. Markets
	result := CycleOK
	for _, market := range m.cfg.Markets {
		if ctx.Err() != nil {
			return CycleSkipped
		}
		snap, err := m.observe(ctx, market)
		if err != nil {
			if r := m.handleError("market observation", market, err); r == CycleSkipped {
				return r
			}
			result = CycleFailed
			continue
		}
		if m.cfg.Snapshots != nil {
			m.cfg.Snapshots.Process(snap)
		}
		m.logger.Debug("Market observed",
			slog.String("market", market),
			slog.String("last_price", snap.LastPrice.String()),
			slog.Int("open_orders", snap.OpenOrders),
		)
	}
	return result
}

func (m *Monitor) observe(ctx context.Context, market string) (*domain.MarketSnapshot, error) {
	snap := &domain.MarketSnapshot{Exchange: m.cfg.Exchange, MarketID: market}
	caps := m.cfg.Capabilities

	if caps.Has(domain.CapMarketOrders) {
		book, err := m.cfg.API.MarketOrders(ctx, market)
		if err != nil {
			return nil, err
		}
		if bid, ok := book.BestBid(); ok {
			snap.BestBid = &bid
		}
		if ask, ok := book.BestAsk(); ok {
			snap.BestAsk = &ask
		}
	}

	if caps.Has(domain.CapLatestPrice) {
		price, err := m.cfg.API.LatestMarketPrice(ctx, market)
		if err != nil {
			return nil, err
		}
		snap.LastPrice = price
	}

	if caps.Has(domain.CapOpenOrders) {
		orders, err := m.cfg.API.YourOpenOrders(ctx, market)
		if err != nil {
			return nil, err
		}
		snap.OpenOrders = len(orders)
	}

	snap.UpdatedAt = m.now()
	return snap, nil
}

// cancelOpenOrders is best effort: failures are logged and the halt stands.
func (m *Monitor) cancelOpenOrders(ctx context.Context) {
	if !m.cfg.Capabilities.Has(domain.CapOpenOrders | domain.CapCancelOrder) {
		return
	}
	for _, market := range m.cfg.Markets {
		orders, err := m.cfg.API.YourOpenOrders(ctx, market)
		if err != nil {
			m.handleError("listing orders to cancel", market, err)
			continue
		}
		for _, o := range orders {
			ok, err := m.cfg.API.CancelOrder(ctx, o.ID, market)
			if err != nil {
				m.handleError("cancel on halt", market, err)
				continue
			}
			m.logger.Info("Order cancelled on halt",
				slog.String("market", market),
				slog.String("order_id", o.ID),
				slog.Bool("recognised", ok),
			)
		}
	}
}

// handleError logs err and maps it to a cycle result.
func (m *Monitor) handleError(what, market string, err error) string {
	attrs := []any{slog.String("step", what), slog.Any("error", err)}
	if market != "" {
		attrs = append(attrs, slog.String("market", market))
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Info("Cycle interrupted by shutdown", attrs...)
		return CycleSkipped
	}
	var timeout *domain.NetworkTimeoutError
	if errors.As(err, &timeout) {
		m.logger.Warn("Exchange unreachable, skipping cycle", attrs...)
		return CycleSkipped
	}
	m.logger.Error("Exchange call failed", attrs...)
	return CycleFailed
}
