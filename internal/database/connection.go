// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stackdrive/stackdrive-backend/internal/config"
	"github.com/stackdrive/stackdrive-backend/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var gormConfig *gorm.Config

	// Configure GORM logger. TranslateError maps driver duplicate-key
	// errors to gorm.ErrDuplicatedKey, which the services dispatch on.
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		}
	} else {
		gormConfig = &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Info),
			TranslateError: true,
		}
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established")
	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Item{},
		&models.Listing{},
		&models.SharedLink{},
		&models.SharedLinkPaidUser{},
		&models.Transaction{},
		&models.Affiliate{},
		&models.AffiliateTransaction{},
		&models.AuditLog{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// At-most-once purchase guard: two concurrent purchases of the same
		// item by the same buyer cannot both insert a completed row.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_buyer_item_completed ON transactions(buyer_id, item_id) WHERE status = 'completed'",

		// Transaction lookups
		"CREATE INDEX IF NOT EXISTS idx_transactions_buyer_created ON transactions(buyer_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_seller_created ON transactions(seller_id, created_at DESC)",

		// Commission settlement scans
		"CREATE INDEX IF NOT EXISTS idx_affiliate_tx_owner_status ON affiliate_transactions(owner_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_affiliate_tx_user_status ON affiliate_transactions(affiliate_user_id, status)",

		// Drive tree traversal
		"CREATE INDEX IF NOT EXISTS idx_items_owner_parent ON items(owner_id, parent_id)",

		// Sibling-name uniqueness. COALESCE folds the NULL parent of root
		// items so duplicates collide there too.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_items_owner_parent_name ON items(owner_id, COALESCE(parent_id, '00000000-0000-0000-0000-000000000000'), name)",

		// Shared-link expiry sweep
		"CREATE INDEX IF NOT EXISTS idx_shared_links_active_expires ON shared_links(is_active, expires_at)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index %q: %w", index, err)
		}
	}

	return nil
}
