package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"etodesk/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage journals completed orders, fills, staking positions, and faucet
// claims to SQLite. It satisfies the orders and staking journal interfaces.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the journal database at the given path.
// An empty path selects in-memory storage, which tests use.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Pure-Go SQLite driver, no cgo.
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.OrderRecord{},
		&domain.FillRecord{},
		&domain.PositionRecord{},
		&domain.FaucetClaim{},
		&domain.AppConfig{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Order Journal
// ======================================================================================

// ArchiveOrder records a terminal order. Upsert semantics: an order that
// re-terminalizes (partial archive then final) overwrites its own row.
func (s *Storage) ArchiveOrder(rec domain.OrderRecord) error {
	return s.db.Save(&rec).Error
}

// SaveFill records one execution.
func (s *Storage) SaveFill(rec domain.FillRecord) error {
	return s.db.Save(&rec).Error
}

// OrderHistory returns archived orders, newest first.
func (s *Storage) OrderHistory(limit int) ([]domain.OrderRecord, error) {
	var recs []domain.OrderRecord
	q := s.db.Order("closed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&recs).Error
	return recs, err
}

// FillsForOrder returns the executions of one order in time order.
func (s *Storage) FillsForOrder(orderID string) ([]domain.FillRecord, error) {
	var recs []domain.FillRecord
	err := s.db.Where("order_id = ?", orderID).Order("timestamp ASC").Find(&recs).Error
	return recs, err
}

// ======================================================================================
// Staking Journal
// ======================================================================================

// SavePosition records a staking position snapshot.
func (s *Storage) SavePosition(rec domain.PositionRecord) error {
	return s.db.Save(&rec).Error
}

// PositionHistory returns archived staking positions.
func (s *Storage) PositionHistory() ([]domain.PositionRecord, error) {
	var recs []domain.PositionRecord
	err := s.db.Order("staked_at DESC").Find(&recs).Error
	return recs, err
}

// ======================================================================================
// Faucet Claims
// ======================================================================================

// GetClaim retrieves the claim state for an address. Not found is not an
// error; the faucet treats a nil claim as a fresh address.
func (s *Storage) GetClaim(address string) (*domain.FaucetClaim, error) {
	var claim domain.FaucetClaim
	err := s.db.First(&claim, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// UpsertClaim creates or updates the claim state for an address.
func (s *Storage) UpsertClaim(claim *domain.FaucetClaim) error {
	return s.db.Save(claim).Error
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a user configuration value.
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfigMap loads all user configurations as a map.
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
