package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"tradebot/internal/domain"
)

// Storage is the order journal and bot state store, backed by SQLite.
type Storage struct {
	db *gorm.DB
}

var (
	_ domain.OrderJournal = (*Storage)(nil)
	_ domain.StateStore   = (*Storage)(nil)
)

// NewStorage opens (or creates) the database at dbPath and migrates it.
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.OrderRecord{}, &domain.BotState{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Order Journal
// ======================================================================================

// RecordCreated journals a placed order. Placeholder ids are flagged so that
// reconciliation can tell them from exchange ids.
func (s *Storage) RecordCreated(exchange, marketID, orderID string, orderType domain.OrderType, quantity, price decimal.Decimal) error {
	rec := domain.OrderRecord{
		Exchange:    exchange,
		OrderID:     orderID,
		MarketID:    marketID,
		Side:        orderType.String(),
		Quantity:    quantity,
		Price:       price,
		Placeholder: domain.IsPlaceholderOrderID(orderID),
		Status:      domain.OrderStatusPlaced,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "exchange"}, {Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"market_id", "side", "quantity", "price", "status", "updated_at"}),
	}).Create(&rec).Error
}

// RecordCancelled marks an order cancelled, or cancel-missed when the
// exchange did not recognise the id. Unknown orders get a row of their own.
func (s *Storage) RecordCancelled(exchange, marketID, orderID string, recognised bool) error {
	status := domain.OrderStatusCancelled
	if !recognised {
		status = domain.OrderStatusCancelMissed
	}

	res := s.db.Model(&domain.OrderRecord{}).
		Where("exchange = ? AND order_id = ?", exchange, orderID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	return s.db.Create(&domain.OrderRecord{
		Exchange:    exchange,
		OrderID:     orderID,
		MarketID:    marketID,
		Placeholder: domain.IsPlaceholderOrderID(orderID),
		Status:      status,
	}).Error
}

// GetOrder retrieves a journaled order
func (s *Storage) GetOrder(exchange, orderID string) (*domain.OrderRecord, error) {
	var rec domain.OrderRecord
	err := s.db.First(&rec, "exchange = ? AND order_id = ?", exchange, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &rec, err
}

// ListOrders returns the newest orders for a market, at most limit of them.
func (s *Storage) ListOrders(exchange, marketID string, limit int) ([]domain.OrderRecord, error) {
	var recs []domain.OrderRecord
	q := s.db.Where("exchange = ?", exchange)
	if marketID != "" {
		q = q.Where("market_id = ?", marketID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("id DESC").Find(&recs).Error
	return recs, err
}

// Placeholders returns orders that were filled on arrival and never got an
// exchange id.
func (s *Storage) Placeholders(exchange string) ([]domain.OrderRecord, error) {
	var recs []domain.OrderRecord
	err := s.db.Where("exchange = ? AND placeholder = ?", exchange, true).Order("id").Find(&recs).Error
	return recs, err
}

// ======================================================================================
// State Operations
// ======================================================================================

// SaveState saves a bot state value
func (s *Storage) SaveState(key, value string) error {
	return s.db.Save(&domain.BotState{Key: key, Value: value}).Error
}

// LoadState loads a bot state value; ok is false when the key was never saved.
func (s *Storage) LoadState(key string) (string, bool, error) {
	var st domain.BotState
	err := s.db.First(&st, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return st.Value, true, nil
}

// LoadStateMap loads all saved state whose key starts with prefix.
func (s *Storage) LoadStateMap(prefix string) (map[string]string, error) {
	var states []domain.BotState
	if err := s.db.Find(&states).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, st := range states {
		if strings.HasPrefix(st.Key, prefix) {
			result[st.Key] = st.Value
		}
	}
	return result, nil
}
