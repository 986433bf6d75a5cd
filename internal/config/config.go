package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage backend configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Seat inventory configuration (hold TTL, sweeps)
	Inventory InventoryConfig

	// Payment collaborator configuration
	Payment PaymentConfig

	// SMS configuration
	SMS SMSConfig

	// Booking event stream configuration
	Events EventsConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port             string
	Environment      string // development, staging, production
	LogLevel         string // debug, info, warn, error
	EnableRequestLog bool
}

// DatabaseConfig holds storage-related configuration.
// Driver selects the ledger store: "postgres" or "badger".
type DatabaseConfig struct {
	Driver             string
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	BadgerPath         string // empty = in-memory badger
	AutoMigrate        bool
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// InventoryConfig holds seat hold settings
type InventoryConfig struct {
	HoldTTL         time.Duration
	MaxSeatsPerHold int
	SweepSchedule   string        // robfig/cron spec, e.g. "@every 30s"
	EvictSchedule   string        // cron spec for ledger eviction
	EvictAfter      time.Duration // evict ledgers of trips departed longer ago than this

	MaxHoldsPerOwner int // holds one session may take per hold TTL, 0 = unlimited
	MaxHoldsPerIP    int // holds one IP may take per hour, 0 = unlimited
}

// PaymentConfig holds the payment gateway configuration
type PaymentConfig struct {
	Environment   string // "sandbox" or "production"
	BaseURL       string
	MerchantKey   string
	MerchantToken string // SECRET - never expose to client
	Currency      string
	Timeout       time.Duration
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode     string // "dev" logs tickets instead of sending, "production" sends
	Method   string // "url" or "api_v2"
	APIURL   string
	ESMSQK   string // Dialog URL message key (for URL method)
	Username string
	Password string
	Mask     string // Dialog SMS mask/source address
}

// EventsConfig holds the redis stream used for booking events
type EventsConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TopicPrefix   string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Environment:      getEnv("ENVIRONMENT", "development"),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", "badger"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			BadgerPath:         getEnv("BADGER_PATH", ""),
			AutoMigrate:        getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "smarttransit-seat-inventory"),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_TOKEN_EXPIRY", time.Hour),
		},
		Inventory: InventoryConfig{
			HoldTTL:         getEnvAsDuration("HOLD_TTL", 10*time.Minute),
			MaxSeatsPerHold: getEnvAsInt("INVENTORY_MAX_SEATS_PER_HOLD", 10),
			SweepSchedule:   getEnv("HOLD_SWEEP_SCHEDULE", "@every 30s"),
			EvictSchedule:   getEnv("LEDGER_EVICT_SCHEDULE", "0 0 3 * * *"),
			EvictAfter:      getEnvAsDuration("INVENTORY_EVICT_AFTER", 24*time.Hour),

			MaxHoldsPerOwner: getEnvAsInt("HOLD_RATE_LIMIT_PER_SESSION", 5),
			MaxHoldsPerIP:    getEnvAsInt("HOLD_RATE_LIMIT_PER_IP", 30),
		},
		Payment: PaymentConfig{
			Environment:   getEnv("PAYMENT_ENVIRONMENT", "sandbox"),
			BaseURL:       getEnv("PAYMENT_BASE_URL", ""),
			MerchantKey:   getEnv("PAYMENT_MERCHANT_KEY", ""),
			MerchantToken: getEnv("PAYMENT_MERCHANT_TOKEN", ""),
			Currency:      getEnv("PAYMENT_CURRENCY", "LKR"),
			Timeout:       getEnvAsDuration("PAYMENT_TIMEOUT", 30*time.Second),
		},
		SMS: SMSConfig{
			Mode:     getEnv("SMS_MODE", "dev"),
			Method:   getEnv("DIALOG_SMS_METHOD", "url"),
			APIURL:   getEnv("DIALOG_SMS_API_URL", "https://e-sms.dialog.lk/api/v2"),
			ESMSQK:   getEnv("DIALOG_SMS_ESMSQK", ""),
			Username: getEnv("DIALOG_SMS_USERNAME", ""),
			Password: getEnv("DIALOG_SMS_PASSWORD", ""),
			Mask:     getEnv("DIALOG_SMS_MASK", ""),
		},
		Events: EventsConfig{
			Enabled:       getEnvAsBool("EVENTS_ENABLED", false),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			TopicPrefix:   getEnv("EVENTS_TOPIC_PREFIX", "inventory."),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case "badger":
	default:
		return fmt.Errorf("invalid DB_DRIVER: %s (must be 'postgres' or 'badger')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Inventory.HoldTTL <= 0 {
		return fmt.Errorf("HOLD_TTL must be positive")
	}

	if c.Inventory.MaxSeatsPerHold <= 0 {
		return fmt.Errorf("INVENTORY_MAX_SEATS_PER_HOLD must be positive")
	}

	if c.Payment.Environment == "production" {
		if c.Payment.BaseURL == "" {
			return fmt.Errorf("PAYMENT_BASE_URL is required in production")
		}
		if c.Payment.MerchantKey == "" || c.Payment.MerchantToken == "" {
			return fmt.Errorf("PAYMENT_MERCHANT_KEY and PAYMENT_MERCHANT_TOKEN are required in production")
		}
	}

	// Validate SMS configuration only in production mode
	if c.SMS.Mode == "production" {
		switch c.SMS.Method {
		case "url":
			if c.SMS.ESMSQK == "" {
				return fmt.Errorf("DIALOG_SMS_ESMSQK is required for URL method in production mode")
			}
		case "api_v2":
			if c.SMS.Username == "" || c.SMS.Password == "" {
				return fmt.Errorf("DIALOG_SMS_USERNAME and DIALOG_SMS_PASSWORD are required for API v2 method in production mode")
			}
		default:
			return fmt.Errorf("invalid SMS method: %s (must be 'url' or 'api_v2')", c.SMS.Method)
		}
	}

	if c.Events.Enabled && c.Events.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when EVENTS_ENABLED=true")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("10m") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
