// Package config loads and validates contact-crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Browser BrowserConfig `mapstructure:"browser"`
	Solver  SolverConfig  `mapstructure:"solver"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Search  SearchConfig  `mapstructure:"search"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the HTTP query surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the shared Postgres backlog.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// BrowserConfig configures the chromedp-backed browser capability.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	UserAgent     string `mapstructure:"user_agent"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	OpTimeoutSec  int    `mapstructure:"op_timeout_seconds"`
}

// SolverConfig configures the external challenge-solving service client.
type SolverConfig struct {
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	WarmupSec     int    `mapstructure:"warmup_seconds"`
	PollSec       int    `mapstructure:"poll_seconds"`
	MaxPolls      int    `mapstructure:"max_polls"`
	SubmitTimeout int    `mapstructure:"submit_timeout_seconds"`
}

// WorkerConfig governs the employer worker loop.
type WorkerConfig struct {
	Mode              string `mapstructure:"mode"`
	BatchSize         int    `mapstructure:"batch_size"`
	InterItemDelaySec int    `mapstructure:"inter_item_delay_seconds"`
	IdleDelaySec      int    `mapstructure:"idle_delay_seconds"`
	ClaimWindow       int    `mapstructure:"claim_window"`
	ListingBaseURL    string `mapstructure:"listing_base_url"`
	KeywordFallback   bool   `mapstructure:"keyword_fallback"`
	MinPagesPerSolve  int    `mapstructure:"min_pages_per_solve"`
}

// RetryConfig governs the domain retry sub-queue.
type RetryConfig struct {
	BatchSize       int     `mapstructure:"batch_size"`
	BackoffBaseHrs  int     `mapstructure:"backoff_base_hours"`
	BackoffCapHrs   int     `mapstructure:"backoff_cap_hours"`
	MaxAttempts     int     `mapstructure:"max_attempts"` // 0 = unbounded
	DomainRatePerS  float64 `mapstructure:"domain_rate_per_second"`
	FetchTimeoutSec int     `mapstructure:"fetch_timeout_seconds"`
}

// SearchConfig governs the budget-limited search sub-queue and its
// external search API client.
type SearchConfig struct {
	APIKey           string  `mapstructure:"api_key"`
	EngineID         string  `mapstructure:"engine_id"`
	BatchSize        int     `mapstructure:"batch_size"`
	CostPerThousand  float64 `mapstructure:"cost_per_thousand"`
	DailyCap         float64 `mapstructure:"daily_cap"`
	WarningThreshold float64 `mapstructure:"warning_threshold"`
}

// SessionConfig sets where per-worker browser session blobs live.
type SessionConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KONTAKT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.op_timeout_seconds", 10)
	v.SetDefault("solver.base_url", "http://2captcha.com")
	v.SetDefault("solver.warmup_seconds", 20)
	v.SetDefault("solver.poll_seconds", 5)
	v.SetDefault("solver.max_polls", 10)
	v.SetDefault("solver.submit_timeout_seconds", 15)
	v.SetDefault("worker.mode", "batch")
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.inter_item_delay_seconds", 3)
	v.SetDefault("worker.idle_delay_seconds", 30)
	v.SetDefault("worker.claim_window", 100)
	v.SetDefault("worker.listing_base_url", "https://www.arbeitsagentur.de/jobsuche/jobdetail/")
	v.SetDefault("worker.keyword_fallback", false)
	v.SetDefault("worker.min_pages_per_solve", 15)
	v.SetDefault("retry.batch_size", 25)
	v.SetDefault("retry.backoff_base_hours", 1)
	v.SetDefault("retry.backoff_cap_hours", 24)
	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.domain_rate_per_second", 0.5)
	v.SetDefault("retry.fetch_timeout_seconds", 15)
	v.SetDefault("search.batch_size", 10)
	v.SetDefault("search.cost_per_thousand", 5.0)
	v.SetDefault("search.daily_cap", 100.0)
	v.SetDefault("search.warning_threshold", 0.8)
	v.SetDefault("session.base_dir", "data/sessions")
	v.SetDefault("logging.development", true)
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Worker.Mode {
	case "batch", "continuous":
	default:
		return fmt.Errorf("worker.mode must be batch or continuous, got %q", c.Worker.Mode)
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker.batch_size must be positive")
	}
	if c.Worker.ClaimWindow <= 0 {
		return fmt.Errorf("worker.claim_window must be positive")
	}
	if c.Retry.BackoffCapHrs < c.Retry.BackoffBaseHrs {
		return fmt.Errorf("retry.backoff_cap_hours must be >= retry.backoff_base_hours")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0")
	}
	if c.Search.CostPerThousand < 0 || c.Search.DailyCap < 0 {
		return fmt.Errorf("search cost settings must be >= 0")
	}
	if c.Search.WarningThreshold <= 0 || c.Search.WarningThreshold > 1 {
		return fmt.Errorf("search.warning_threshold must be in (0,1]")
	}
	return nil
}
