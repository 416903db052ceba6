package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type Config struct {
	// Secrets (from .env)
	AlphaVantageAPIKey string `toml:"alphavantage_api_key"`
	APIKey             string `toml:"api_key"`
	WebhookURL         string `toml:"webhook_url"`
	AppName            string `toml:"app_name"`
	CORSAllowOrigin    string `toml:"cors_allow_origin"`

	// Database
	DBHost     string `toml:"db_host"`
	DBPort     int    `toml:"db_port"`
	DBName     string `toml:"db_name"`
	DBUser     string `toml:"db_user"`
	DBPassword string `toml:"db_password"`

	// Providers
	AlphaVantageBaseURL           string `toml:"alphavantage_base_url"`
	AlphaVantageRequestsPerMinute int    `toml:"alphavantage_requests_per_minute"`
	YahooBaseURL                  string `toml:"yahoo_base_url"`
	ProviderTimeoutSeconds        int    `toml:"provider_timeout_seconds"`
	ProviderMaxAttempts           int    `toml:"provider_max_attempts"`

	// Sync
	SyncStartDate   string `toml:"sync_start_date"`
	SyncScheduleAt  string `toml:"sync_schedule_at"`
	SyncRunTimeout  int    `toml:"sync_run_timeout_minutes"`
	InstrumentsFile string `toml:"instruments_file"`
	ExportDir       string `toml:"export_dir"`
	DBAutoMigrate   bool   `toml:"db_auto_migrate"`

	// Analytics defaults
	SMAWindow        int     `toml:"sma_window"`
	EMASpan          int     `toml:"ema_span"`
	VolatilityWindow int     `toml:"volatility_window"`
	AbruptThreshold  float64 `toml:"abrupt_threshold"`

	// Observability
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	PushgatewayURL string `toml:"pushgateway_url"`

	// API
	APIPort int `toml:"api_port"`
}

func Defaults() *Config {
	return &Config{
		AppName:         "stocksync",
		CORSAllowOrigin: "*",

		DBHost: "localhost",
		DBPort: 5432,
		DBName: "stocksync",

		AlphaVantageBaseURL:           "https://www.alphavantage.co",
		AlphaVantageRequestsPerMinute: 5,
		YahooBaseURL:                  "https://query1.finance.yahoo.com",
		ProviderTimeoutSeconds:        30,
		ProviderMaxAttempts:           1,

		SyncStartDate:   "2015-01-01",
		SyncScheduleAt:  "16:30",
		SyncRunTimeout:  120,
		InstrumentsFile: "configs/instruments.yaml",
		ExportDir:       "exports",
		DBAutoMigrate:   true,

		SMAWindow:        20,
		EMASpan:          20,
		VolatilityWindow: 20,
		AbruptThreshold:  0.05,

		LogLevel:  "info",
		LogFormat: "console",

		APIPort: 3001,
	}
}

// Load builds the configuration from defaults, an optional TOML file and the
// environment (including .env), in that order of precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	// Secrets
	c.AlphaVantageAPIKey = envStr("ALPHAVANTAGE_API_KEY", c.AlphaVantageAPIKey)
	c.APIKey = envStr("API_KEY", c.APIKey)
	c.WebhookURL = envStr("WEBHOOK_URL", c.WebhookURL)
	c.AppName = envStr("APP_NAME", c.AppName)
	c.CORSAllowOrigin = envStr("CORS_ALLOW_ORIGIN", c.CORSAllowOrigin)

	// Database
	c.DBHost = envStr("DB_HOST", c.DBHost)
	c.DBPort = envInt("DB_PORT", c.DBPort)
	c.DBName = envStr("DB_NAME", c.DBName)
	c.DBUser = envStr("DB_USER", c.DBUser)
	c.DBPassword = envStr("DB_PASSWORD", c.DBPassword)

	// Providers
	c.AlphaVantageBaseURL = envStr("ALPHAVANTAGE_BASE_URL", c.AlphaVantageBaseURL)
	c.AlphaVantageRequestsPerMinute = envInt("ALPHAVANTAGE_REQUESTS_PER_MINUTE", c.AlphaVantageRequestsPerMinute)
	c.YahooBaseURL = envStr("YAHOO_BASE_URL", c.YahooBaseURL)
	c.ProviderTimeoutSeconds = envInt("PROVIDER_TIMEOUT_SECONDS", c.ProviderTimeoutSeconds)
	c.ProviderMaxAttempts = envInt("PROVIDER_MAX_ATTEMPTS", c.ProviderMaxAttempts)

	// Sync
	c.SyncStartDate = envStr("SYNC_START_DATE", c.SyncStartDate)
	c.SyncScheduleAt = envStr("SYNC_SCHEDULE_AT", c.SyncScheduleAt)
	c.SyncRunTimeout = envInt("SYNC_RUN_TIMEOUT_MINUTES", c.SyncRunTimeout)
	c.InstrumentsFile = envStr("INSTRUMENTS_FILE", c.InstrumentsFile)
	c.ExportDir = envStr("EXPORT_DIR", c.ExportDir)
	c.DBAutoMigrate = envBool("DB_AUTO_MIGRATE", c.DBAutoMigrate)

	// Analytics
	c.SMAWindow = envInt("SMA_WINDOW", c.SMAWindow)
	c.EMASpan = envInt("EMA_SPAN", c.EMASpan)
	c.VolatilityWindow = envInt("VOLATILITY_WINDOW", c.VolatilityWindow)
	c.AbruptThreshold = envFloat("ABRUPT_THRESHOLD", c.AbruptThreshold)

	// Observability
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)
	c.PushgatewayURL = envStr("PUSHGATEWAY_URL", c.PushgatewayURL)

	c.APIPort = envInt("API_PORT", c.APIPort)
}

// Validate reports hard errors. Soft problems are returned as warnings so the
// caller can log them once a logger exists.
func (c *Config) Validate() (warnings []string, err error) {
	var errs []string

	if _, perr := time.Parse(dateLayout, c.SyncStartDate); perr != nil {
		errs = append(errs, fmt.Sprintf("SYNC_START_DATE %q is not YYYY-MM-DD", c.SyncStartDate))
	}
	if _, perr := time.Parse("15:04", c.SyncScheduleAt); perr != nil {
		errs = append(errs, fmt.Sprintf("SYNC_SCHEDULE_AT %q is not HH:MM", c.SyncScheduleAt))
	}
	if c.ProviderTimeoutSeconds <= 0 {
		errs = append(errs, "PROVIDER_TIMEOUT_SECONDS must be positive")
	}
	if c.ProviderMaxAttempts <= 0 {
		errs = append(errs, "PROVIDER_MAX_ATTEMPTS must be positive")
	}
	if c.SyncRunTimeout < 0 {
		errs = append(errs, "SYNC_RUN_TIMEOUT_MINUTES must not be negative")
	}
	if c.SMAWindow <= 0 || c.EMASpan <= 0 || c.VolatilityWindow <= 0 {
		errs = append(errs, "SMA_WINDOW, EMA_SPAN and VOLATILITY_WINDOW must be positive")
	}
	if c.AbruptThreshold <= 0 {
		errs = append(errs, "ABRUPT_THRESHOLD must be positive")
	}
	if c.DBUser == "" {
		errs = append(errs, "DB_USER is required")
	}

	if c.AlphaVantageAPIKey == "" {
		warnings = append(warnings, "ALPHAVANTAGE_API_KEY not set, every instrument will go straight to the fallback provider")
	}
	if c.APIKey == "" {
		warnings = append(warnings, "API_KEY not set, REST API has no authentication")
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return warnings, nil
}

// StartDate is the inclusive floor used when an instrument has no stored bars.
func (c *Config) StartDate() time.Time {
	t, err := time.Parse(dateLayout, c.SyncStartDate)
	if err != nil {
		return time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// RunTimeout bounds one batch run; zero means no deadline.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.SyncRunTimeout) * time.Minute
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

func (c *Config) Print(logger *zap.Logger) {
	logger.Info("configuration",
		zap.String("app", c.AppName),
		zap.String("db", fmt.Sprintf("%s:%d/%s", c.DBHost, c.DBPort, c.DBName)),
		zap.String("alphavantage", boolLabel(c.AlphaVantageAPIKey != "", "configured", "not set (fallback only)")),
		zap.Int("alphavantage_rpm", c.AlphaVantageRequestsPerMinute),
		zap.String("yahoo", c.YahooBaseURL),
		zap.Duration("provider_timeout", c.ProviderTimeout()),
		zap.Int("provider_max_attempts", c.ProviderMaxAttempts),
		zap.String("start_date", c.SyncStartDate),
		zap.String("schedule_at", c.SyncScheduleAt),
		zap.Duration("run_timeout", c.RunTimeout()),
		zap.String("webhook", boolLabel(c.WebhookURL != "", "configured", "not set")),
		zap.String("pushgateway", boolLabel(c.PushgatewayURL != "", c.PushgatewayURL, "not set")),
	)
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
