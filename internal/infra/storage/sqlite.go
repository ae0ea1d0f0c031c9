package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dex_go/internal/domain"
)

// SQLiteStorage persists custom markets, token asset metadata and
// user preferences in a local database file.
type SQLiteStorage struct {
	db *gorm.DB
}

// NewSQLiteStorage creates the storage in the default per-user location.
func NewSQLiteStorage() (*SQLiteStorage, error) {
	dbPath, err := getDatabasePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	return NewSQLiteStorageAt(dbPath)
}

// NewSQLiteStorageAt opens (or creates) the database at an explicit path.
func NewSQLiteStorageAt(dbPath string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.CustomMarketRecord{},
		&domain.TokenAssetRecord{},
		&domain.AppConfig{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// SaveCustomMarket inserts or updates a user-added market.
func (s *SQLiteStorage) SaveCustomMarket(m *domain.CustomMarketRecord) error {
	m.UpdatedAt = time.Now()
	return s.db.Save(m).Error
}

// DeleteCustomMarket removes a user-added market by address.
func (s *SQLiteStorage) DeleteCustomMarket(address string) error {
	return s.db.Delete(&domain.CustomMarketRecord{}, "address = ?", address).Error
}

// GetCustomMarkets returns all user-added markets.
func (s *SQLiteStorage) GetCustomMarkets() ([]domain.CustomMarketRecord, error) {
	var records []domain.CustomMarketRecord
	if err := s.db.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SaveTokenAsset inserts or updates token asset metadata.
func (s *SQLiteStorage) SaveTokenAsset(t *domain.TokenAssetRecord) error {
	t.UpdatedAt = time.Now()
	return s.db.Save(t).Error
}

// GetTokenAssets returns all known token assets.
func (s *SQLiteStorage) GetTokenAssets() ([]domain.TokenAssetRecord, error) {
	var records []domain.TokenAssetRecord
	if err := s.db.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SetPreference stores a key/value preference.
func (s *SQLiteStorage) SetPreference(key, value string) error {
	cfg := domain.AppConfig{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return s.db.Save(&cfg).Error
}

// GetPreference retrieves a preference value. Returns an empty string when
// the key has never been set.
func (s *SQLiteStorage) GetPreference(key string) (string, error) {
	var cfg domain.AppConfig
	err := s.db.First(&cfg, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cfg.Value, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func getDatabasePath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "DexGo", "dex.db"), nil
}
