package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Database:  DatabaseConfig{Driver: "badger"},
		JWT:       JWTConfig{Secret: "secret"},
		Inventory: InventoryConfig{HoldTTL: 10 * time.Minute, MaxSeatsPerHold: 10},
		Payment:   PaymentConfig{Environment: "sandbox"},
		SMS:       SMSConfig{Mode: "dev"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("HOLD_TTL", "")
	t.Setenv("HOLD_SWEEP_SCHEDULE", "")
	t.Setenv("SMS_MODE", "")
	t.Setenv("PAYMENT_ENVIRONMENT", "")
	t.Setenv("EVENTS_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Database.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Inventory.HoldTTL)
	assert.Equal(t, "@every 30s", cfg.Inventory.SweepSchedule)
	assert.Equal(t, "sandbox", cfg.Payment.Environment)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "inventory.", cfg.Events.TopicPrefix)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "badger")
	t.Setenv("HOLD_TTL", "300")
	t.Setenv("INVENTORY_EVICT_AFTER", "48h")
	t.Setenv("INVENTORY_MAX_SEATS_PER_HOLD", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Inventory.HoldTTL)
	assert.Equal(t, 48*time.Hour, cfg.Inventory.EvictAfter)
	assert.Equal(t, 10, cfg.Inventory.MaxSeatsPerHold)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "badger")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }, "DATABASE_URL"},
		{"postgres with url", func(c *Config) {
			c.Database.Driver = "postgres"
			c.Database.URL = "postgres://localhost/inventory"
		}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "invalid DB_DRIVER"},
		{"zero ttl", func(c *Config) { c.Inventory.HoldTTL = 0 }, "HOLD_TTL"},
		{"zero max seats", func(c *Config) { c.Inventory.MaxSeatsPerHold = 0 }, "INVENTORY_MAX_SEATS_PER_HOLD"},
		{"production payments without keys", func(c *Config) {
			c.Payment.Environment = "production"
			c.Payment.BaseURL = "https://payable.example"
		}, "PAYMENT_MERCHANT_KEY"},
		{"production sms url without key", func(c *Config) {
			c.SMS.Mode = "production"
			c.SMS.Method = "url"
		}, "DIALOG_SMS_ESMSQK"},
		{"production sms bad method", func(c *Config) {
			c.SMS.Mode = "production"
			c.SMS.Method = "carrier-pigeon"
		}, "invalid SMS method"},
		{"events without redis", func(c *Config) { c.Events.Enabled = true }, "REDIS_ADDR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
