// Command sweep-holds closes every active hold whose TTL has run out.
// The server reclaims holds of loaded trips on its own; this covers the
// rest of the store, e.g. after a crash or when run from an external cron.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/config"
	"github.com/smarttransit/seat-inventory/internal/database"
)

func main() {
	timeout := flag.Duration("timeout", time.Minute, "maximum time for the sweep")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := database.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	start := time.Now()
	expired, err := store.ExpireStaleHolds(ctx, start)
	if err != nil {
		logger.WithError(err).Error("❌ Hold sweep failed")
		store.Close()
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"expired":  expired,
		"duration": time.Since(start).String(),
	}).Info("✓ Hold sweep complete")
}
