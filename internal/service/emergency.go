package service

import (
	"context"
	"log/slog"

	"tradebot/internal/domain"
)

const haltedValue = "halted"

// HaltGauge publishes the emergency stop state.
type HaltGauge interface {
	SetHalted(exchange string, halted bool)
}

// EmergencyStop checks the capital floor before each cycle. Once tripped it
// stays tripped, across restarts, until Reset is called.
type EmergencyStop struct {
	exchange string
	rule     domain.StopRule
	store    domain.StateStore
	gauge    HaltGauge
	halted   bool
	logger   *slog.Logger
}

// NewEmergencyStop restores the latch from store. store and gauge may be nil.
func NewEmergencyStop(exchange string, rule domain.StopRule, store domain.StateStore, gauge HaltGauge) (*EmergencyStop, error) {
	e := &EmergencyStop{
		exchange: exchange,
		rule:     rule,
		store:    store,
		gauge:    gauge,
		logger:   slog.Default().With("module", "emergency_stop", "exchange", exchange),
	}

	if store != nil {
		v, ok, err := store.LoadState(e.stateKey())
		if err != nil {
			return nil, err
		}
		e.halted = ok && v == haltedValue
	}
	if e.halted {
		e.logger.Warn("🛑 Emergency stop still latched from a previous run")
	}
	e.publish()
	return e, nil
}

// Halted reports whether trading is held.
func (e *EmergencyStop) Halted() bool {
	return e.halted
}

// Check returns true when trading must not continue. Balance errors are
// returned unchanged; the caller cannot verify the floor this cycle.
func (e *EmergencyStop) Check(ctx context.Context, api domain.TradingAPI) (bool, error) {
	if e.halted {
		return true, nil
	}
	if !e.rule.Enabled() {
		return false, nil
	}

	info, err := api.BalanceInfo(ctx)
	if err != nil {
		return false, err
	}
	if !e.rule.CheckCondition(info) {
		return false, nil
	}

	e.logger.Error("🛑 Emergency stop triggered",
		slog.String("currency", e.rule.Currency),
		slog.String("available", info.AvailableFor(e.rule.Currency).String()),
		slog.String("floor", e.rule.Floor.String()),
	)
	e.halted = true
	e.persist(haltedValue)
	e.publish()
	return true, nil
}

// Reset releases the latch.
func (e *EmergencyStop) Reset() {
	e.halted = false
	e.persist("")
	e.publish()
	e.logger.Info("Emergency stop reset")
}

func (e *EmergencyStop) stateKey() string {
	return "emergency_stop." + e.exchange
}

func (e *EmergencyStop) persist(v string) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveState(e.stateKey(), v); err != nil {
		e.logger.Error("Failed to persist emergency stop state", slog.Any("error", err))
	}
}

func (e *EmergencyStop) publish() {
	if e.gauge != nil {
		e.gauge.SetHalted(e.exchange, e.halted)
	}
}
