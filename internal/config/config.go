package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server      ServerConfig
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Sync        SyncConfig
	Marketplace MarketplaceConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"dropsync-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// DatabaseConfig holds MySQL connection settings (accounts, feeds, job ledger).
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"dropsync"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

// RedisConfig holds Redis settings (listing index cache, sync locks).
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// SyncConfig holds engine timing and retry budgets.
type SyncConfig struct {
	FetchTimeout     time.Duration `envconfig:"SYNC_FETCH_TIMEOUT" default:"30s"`
	FetchRetries     int           `envconfig:"SYNC_FETCH_RETRIES" default:"3"`
	FetchBackoffBase time.Duration `envconfig:"SYNC_FETCH_BACKOFF_BASE" default:"2s"`

	MaxRunDuration   time.Duration `envconfig:"SYNC_MAX_RUN_DURATION" default:"15m"`
	WatchdogInterval time.Duration `envconfig:"SYNC_WATCHDOG_INTERVAL" default:"1m"`
	SchedulerTick    time.Duration `envconfig:"SYNC_SCHEDULER_TICK" default:"1m"`
}

// MarketplaceConfig holds marketplace API client settings.
type MarketplaceConfig struct {
	APIURL         string        `envconfig:"MARKETPLACE_API_URL" default:"https://api.ebay.com/ws/api.dll"`
	SiteID         string        `envconfig:"MARKETPLACE_SITE_ID" default:"0"`
	CallTimeout    time.Duration `envconfig:"MARKETPLACE_CALL_TIMEOUT" default:"60s"`
	RatePerSecond  float64       `envconfig:"MARKETPLACE_RATE_PER_SECOND" default:"2"`
	RateBurst      int           `envconfig:"MARKETPLACE_RATE_BURST" default:"1"`
	UpdateRetries  int           `envconfig:"MARKETPLACE_UPDATE_RETRIES" default:"3"`
	RetryBackoff   time.Duration `envconfig:"MARKETPLACE_RETRY_BACKOFF" default:"2s"`
	BatchSize      int           `envconfig:"MARKETPLACE_BATCH_SIZE" default:"4"`
	ListingPageCap int           `envconfig:"MARKETPLACE_LISTING_PAGE_CAP" default:"500"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
