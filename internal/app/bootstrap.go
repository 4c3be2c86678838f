package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"tradebot/internal/domain"
	"tradebot/internal/exchange"
	"tradebot/internal/exchange/registry"
	"tradebot/internal/infra"
	"tradebot/internal/infra/storage"
	"tradebot/internal/service"
)

// Exchange is one configured exchange with everything wired around its adapter.
type Exchange struct {
	Name    string
	Adapter *exchange.Adapter
	API     domain.TradingAPI // adapter behind the order journal
	Stop    *service.EmergencyStop
	Monitor *service.Monitor
}

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string
	Config     *infra.Config
	Metrics    *infra.Metrics
	Storage    *storage.Storage
	Snapshots  *service.SnapshotService
	Exchanges  []*Exchange
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	if configPath == "" {
		configPath = infra.DefaultConfigPath
	}
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize loads configuration and builds every enabled exchange.
// Any error here is fatal: the bot must not start half-configured.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping tradebot...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Metrics
	b.Metrics = infra.NewMetrics()

	// 4. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))
	if latched, err := store.LoadStateMap("emergency_stop."); err == nil {
		for key, v := range latched {
			if v != "" {
				slog.Warn("🛑 Emergency stop latched", slog.String("key", key))
			}
		}
	}

	// 5. Exchanges
	b.Snapshots = service.NewSnapshotService()
	for _, ec := range cfg.EnabledExchanges() {
		ex, err := b.buildExchange(ec)
		if err != nil {
			b.Close()
			return err
		}
		b.Exchanges = append(b.Exchanges, ex)
		slog.Info("✅ Exchange ready",
			slog.String("exchange", ex.Name),
			slog.String("capabilities", ex.Adapter.Capabilities().String()),
			slog.Int("markets", len(cfg.MarketsFor(ec.Name))),
		)
	}
	if len(b.Exchanges) == 0 {
		slog.Warn("No exchange enabled, nothing to monitor")
	}

	return nil
}

func (b *Bootstrap) buildExchange(ec infra.ExchangeConfig) (*Exchange, error) {
	profile, err := registry.Profile(ec.Name)
	if err != nil {
		return nil, err
	}
	name := profile.Name()

	adapter, err := exchange.New(profile, ec.Credentials(), exchange.WithObserver(b.Metrics))
	if err != nil {
		return nil, err
	}
	if err := adapter.Require(ec.RequiredCapabilities()); err != nil {
		return nil, err
	}

	api := service.NewJournalingAPI(adapter, name, b.Storage, b.Metrics)

	stop, err := service.NewEmergencyStop(name, b.Config.Engine.EmergencyStop.Rule(), b.Storage, b.Metrics)
	if err != nil {
		return nil, err
	}

	monitor := service.NewMonitor(service.MonitorConfig{
		Exchange:     name,
		API:          api,
		Capabilities: adapter.Capabilities(),
		Markets:      b.Config.MarketsFor(ec.Name),
		Stop:         stop,
		CancelOnHalt: b.Config.Engine.EmergencyStop.CancelOpenOrders,
		Snapshots:    b.Snapshots,
		Cycles:       b.Metrics,
	})

	return &Exchange{
		Name:    name,
		Adapter: adapter,
		API:     api,
		Stop:    stop,
		Monitor: monitor,
	}, nil
}

// Run starts one monitor goroutine per exchange and blocks until ctx is done.
// Each adapter is driven by its own monitor only.
func (b *Bootstrap) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ex := range b.Exchanges {
		wg.Add(1)
		go func(ex *Exchange) {
			defer wg.Done()
			ex.Monitor.Run(ctx, b.Config.Engine.CycleInterval)
		}(ex)
	}
	slog.Info("🔄 Monitors started",
		slog.Int("exchanges", len(b.Exchanges)),
		slog.Duration("interval", b.Config.Engine.CycleInterval),
	)
	wg.Wait()
}

// LogSummary writes the latest snapshot of every market and the journal totals.
func (b *Bootstrap) LogSummary() {
	for _, snap := range b.Snapshots.GetAllData() {
		attrs := []any{
			slog.String("market", snap.Key()),
			slog.String("last_price", snap.LastPrice.String()),
			slog.Int("open_orders", snap.OpenOrders),
			slog.String("state", snap.PriceState()),
		}
		if spread := snap.SpreadPct(); spread != nil {
			attrs = append(attrs, slog.String("spread_pct", spread.StringFixed(4)))
		}
		slog.Info("📊 Market", attrs...)
	}

	if b.Storage == nil {
		return
	}
	for _, ex := range b.Exchanges {
		placeholders, err := b.Storage.Placeholders(ex.Name)
		if err != nil {
			slog.Error("Failed to read order journal", slog.String("exchange", ex.Name), slog.Any("error", err))
			continue
		}
		recent, _ := b.Storage.ListOrders(ex.Name, "", 10)
		slog.Info("📒 Order journal",
			slog.String("exchange", ex.Name),
			slog.Int("recent", len(recent)),
			slog.Int("placeholders", len(placeholders)),
		)
	}
}

// Close releases storage.
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Storage != nil {
		errs = append(errs, b.Storage.Close())
		b.Storage = nil
	}
	return errors.Join(errs...)
}
