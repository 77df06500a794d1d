package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // SHOW_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; envconfig fills them and applies the defaults.
type Config struct {
	Env      string `envconfig:"APP_ENV" default:"dev"`
	Port     string `envconfig:"APP_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DBUser string `envconfig:"DB_USER" required:"true"`
	DBPass string `envconfig:"DB_PASS"` // empty allowed
	DBHost string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort string `envconfig:"DB_PORT" default:"3306"`
	DBName string `envconfig:"DB_NAME" required:"true"`

	// JWTSecret signs and verifies operator tokens for the sync endpoints.
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	DefaultVenueID    string        `envconfig:"DEFAULT_VENUE_ID" default:"charlotte-theater"`
	DefaultCapacity   int           `envconfig:"DEFAULT_CAPACITY" default:"1240"`
	VenueCapacityFile string        `envconfig:"VENUE_CAPACITY_FILE"`
	CapacityCacheTTL  time.Duration `envconfig:"CAPACITY_CACHE_TTL" default:"5m"`

	// ShowTimezone places wall-clock show times on the timeline for calendar feeds.
	ShowTimezone string        `envconfig:"SHOW_TIMEZONE" default:"Asia/Seoul"`
	ShowDuration time.Duration `envconfig:"SHOW_DURATION" default:"150m"`

	StrictRules     bool   `envconfig:"STRICT_RULES" default:"false"`
	SyncConcurrency int    `envconfig:"SYNC_CONCURRENCY" default:"1"`
	SyncCron        string `envconfig:"SYNC_CRON"` // empty disables the periodic full sync

	RabbitMQURL string `envconfig:"RABBITMQ_URL"`
	AMQPURL     string `envconfig:"AMQP_URL"`
}

// Load reads a .env file when present and then the process environment.
// Missing required variables and malformed values are returned as errors.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot express as tags.
func (c Config) Validate() error {
	if c.DefaultCapacity <= 0 {
		return fmt.Errorf("DEFAULT_CAPACITY must be positive, got %d", c.DefaultCapacity)
	}
	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1, got %d", c.SyncConcurrency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.CapacityCacheTTL < 0 {
		return fmt.Errorf("CAPACITY_CACHE_TTL must not be negative, got %s", c.CapacityCacheTTL)
	}
	return nil
}

// Location loads ShowTimezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ShowTimezone)
	if err != nil {
		return nil, fmt.Errorf("SHOW_TIMEZONE: %w", err)
	}
	return loc, nil
}

// BrokerURL returns RABBITMQ_URL, falling back to AMQP_URL.  Empty means
// the local default broker.
func (c Config) BrokerURL() string {
	if c.RabbitMQURL != "" {
		return c.RabbitMQURL
	}
	return c.AMQPURL
}
