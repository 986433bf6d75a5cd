package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/config"
)

// NewConnection creates a new PostgreSQL connection pool
func NewConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connection pooler compatibility (Supavisor, pgbouncer)
	connectionURL := cfg.URL
	if !strings.Contains(connectionURL, "prefer_simple_protocol") {
		separator := "?"
		if strings.Contains(connectionURL, "?") {
			separator = "&"
		}
		connectionURL = connectionURL + separator + "prefer_simple_protocol=true"
	}

	db, err := sqlx.Connect("postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// OpenStore opens the storage backend selected by cfg.Driver
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(db)
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
			logger.Info("✓ Database schema up to date")
		}
		logger.Info("✓ Connected to PostgreSQL")
		return store, nil

	case "badger":
		store, err := OpenBadgerStore(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		if cfg.BadgerPath == "" {
			logger.Warn("⚠️  Using in-memory badger store - data is lost on restart")
		} else {
			logger.WithField("path", cfg.BadgerPath).Info("✓ Opened badger store")
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
