package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Dispatch  DispatchConfig  `yaml:"dispatch" mapstructure:"dispatch"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`             // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`                 // sqlite file
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"` // postgres DSN
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeocodeConfig holds geocoding oracle settings.
type GeocodeConfig struct {
	GoogleKey     string  `yaml:"google_key" mapstructure:"google_key"`
	RateLimitRPS  float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// NotionConfig holds Notion API credentials and the review database ID.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// BrowserConfig configures the chromedp driver.
type BrowserConfig struct {
	Headless         bool    `yaml:"headless" mapstructure:"headless"`
	NavTimeoutSecs   int     `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	MaxImages        int     `yaml:"max_images" mapstructure:"max_images"`
	FetchImages      bool    `yaml:"fetch_images" mapstructure:"fetch_images"`
	ViewportFraction float64 `yaml:"viewport_fraction" mapstructure:"viewport_fraction"`
	MaxScrolls       int     `yaml:"max_scrolls" mapstructure:"max_scrolls"`
	StableScrolls    int     `yaml:"stable_scrolls" mapstructure:"stable_scrolls"`
	SettleWaitMS     int     `yaml:"settle_wait_ms" mapstructure:"settle_wait_ms"`
	FinalWaitSecs    int     `yaml:"final_wait_secs" mapstructure:"final_wait_secs"`
}

// DispatchConfig configures the extraction worker pool.
type DispatchConfig struct {
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	JobTimeoutSecs int `yaml:"job_timeout_secs" mapstructure:"job_timeout_secs"`
	BatchDelayMS   int `yaml:"batch_delay_ms" mapstructure:"batch_delay_ms"`
}

// ReconcileConfig configures the reconciliation pass.
type ReconcileConfig struct {
	AdjacencyM     float64 `yaml:"adjacency_m" mapstructure:"adjacency_m"`
	GeneralM       float64 `yaml:"general_m" mapstructure:"general_m"`
	ConfidenceGate float64 `yaml:"confidence_gate" mapstructure:"confidence_gate"`
	SkipOracle     bool    `yaml:"skip_oracle" mapstructure:"skip_oracle"`
}

// RetryConfig configures the model-call backoff policy.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffSecs   int     `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// NavTimeout returns the navigation timeout as a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSecs) * time.Second
}

// JobTimeout returns the per-job timeout as a duration.
func (c DispatchConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSecs) * time.Second
}

// BatchDelay returns the inter-batch delay as a duration.
func (c DispatchConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "scout.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("geocode.rate_limit_rps", 10)
	v.SetDefault("geocode.cache_ttl_hours", 720)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_secs", 60)
	v.SetDefault("browser.max_images", 40)
	v.SetDefault("browser.fetch_images", true)
	v.SetDefault("browser.viewport_fraction", 0.8)
	v.SetDefault("browser.max_scrolls", 30)
	v.SetDefault("browser.stable_scrolls", 3)
	v.SetDefault("browser.settle_wait_ms", 1500)
	v.SetDefault("browser.final_wait_secs", 5)
	v.SetDefault("dispatch.concurrency", 3)
	v.SetDefault("dispatch.job_timeout_secs", 30)
	v.SetDefault("dispatch.batch_delay_ms", 1000)
	v.SetDefault("reconcile.adjacency_m", 50)
	v.SetDefault("reconcile.general_m", 800)
	v.SetDefault("reconcile.confidence_gate", 0.85)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_secs", 30)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
