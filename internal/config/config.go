package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/retry"
)

// Pacing controls how a job walks the universe.
type Pacing struct {
	BatchSize       int           `yaml:"batch_size"`
	Concurrency     int           `yaml:"concurrency"`
	InterBatchPause time.Duration `yaml:"inter_batch_pause"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
}

// Config holds all application configuration.
type Config struct {
	Source struct {
		Provider          string            `yaml:"provider"` // yahoo or polygon
		BaseURL           string            `yaml:"base_url"`
		APIKey            string            `yaml:"api_key"`
		Timeout           time.Duration     `yaml:"timeout"`
		UserAgent         string            `yaml:"user_agent"`
		RequestsPerSecond float64           `yaml:"requests_per_second"`
		Burst             int               `yaml:"burst"`
		SymbolMap         map[string]string `yaml:"symbol_map"`
	} `yaml:"source"`
	Database struct {
		Driver       string `yaml:"driver"` // sqlite or postgres
		SQLitePath   string `yaml:"sqlite_path"`
		PostgresURL  string `yaml:"postgres_url"`
		RecorderPath string `yaml:"recorder_path"`
	} `yaml:"database"`
	Universe struct {
		Kind    string   `yaml:"kind"` // static, file or registry
		Tickers []string `yaml:"tickers"`
		File    string   `yaml:"file"`
		Query   string   `yaml:"query"`
	} `yaml:"universe"`
	Retry struct {
		MaxDelay    time.Duration `yaml:"max_delay"`
		RateLimited retry.Rule    `yaml:"rate_limited"`
		Transport   retry.Rule    `yaml:"transport"`
		Malformed   retry.Rule    `yaml:"malformed"`
	} `yaml:"retry"`
	Backfill struct {
		Pacing       `yaml:",inline"`
		LookbackDays int  `yaml:"lookback_days"`
		Incremental  bool `yaml:"incremental"`
	} `yaml:"backfill"`
	Daily    Pacing `yaml:"daily"`
	Schedule struct {
		DailyCron    string `yaml:"daily_cron"`
		BackfillCron string `yaml:"backfill_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		APIBase  string `yaml:"api_base"`
	} `yaml:"telegram"`
	Archive struct {
		Enabled         bool   `yaml:"enabled"`
		Endpoint        string `yaml:"endpoint"`
		AccessKeyID     string `yaml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key"`
		Bucket          string `yaml:"bucket"`
		Region          string `yaml:"region"`
		UseSSL          bool   `yaml:"use_ssl"`
		Prefix          string `yaml:"prefix"`
	} `yaml:"archive"`
	Server struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Server.Enabled = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("QUOTE_PROVIDER", &c.Source.Provider)
	envString("QUOTE_BASE_URL", &c.Source.BaseURL)
	envString("POLYGON_API_KEY", &c.Source.APIKey)
	envString("DATABASE_DRIVER", &c.Database.Driver)
	envString("SQLITE_PATH", &c.Database.SQLitePath)
	envString("POSTGRES_URL", &c.Database.PostgresURL)
	envString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	envString("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	envString("HTTPS_PROXY", &c.Proxy)
	envString("HTTP_ADDR", &c.Server.Addr)
	envString("LOG_LEVEL", &c.Log.Level)
	envString("CRON_DAILY", &c.Schedule.DailyCron)
	envString("CRON_BACKFILL", &c.Schedule.BackfillCron)
	envString("S3_ENDPOINT", &c.Archive.Endpoint)
	envString("S3_ACCESS_KEY_ID", &c.Archive.AccessKeyID)
	envString("S3_SECRET_ACCESS_KEY", &c.Archive.SecretAccessKey)
	envString("S3_BUCKET", &c.Archive.Bucket)
	if v := os.Getenv("BACKFILL_LOOKBACK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backfill.LookbackDays = n
		}
	}
	if c.Archive.Endpoint != "" && c.Archive.Bucket != "" {
		c.Archive.Enabled = true
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	def := retry.DefaultPolicy()

	if c.Source.Provider == "" {
		c.Source.Provider = "yahoo"
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.RequestsPerSecond == 0 {
		c.Source.RequestsPerSecond = 2
	}
	if c.Source.Burst == 0 {
		c.Source.Burst = 4
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/portfolio_pulse.db"
	}
	if c.Database.RecorderPath == "" {
		c.Database.RecorderPath = c.Database.SQLitePath
	}
	if c.Universe.Kind == "" {
		c.Universe.Kind = "static"
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.MaxDelay
	}
	defaultRule(&c.Retry.RateLimited, def.Rules[model.KindRateLimited])
	defaultRule(&c.Retry.Transport, def.Rules[model.KindTransport])
	defaultRule(&c.Retry.Malformed, def.Rules[model.KindMalformed])
	if c.Backfill.LookbackDays == 0 {
		c.Backfill.LookbackDays = 1095
	}
	defaultPacing(&c.Backfill.Pacing, Pacing{BatchSize: 20, Concurrency: 2, InterBatchPause: 30 * time.Second, AttemptTimeout: 2 * time.Minute})
	defaultPacing(&c.Daily, Pacing{BatchSize: 100, Concurrency: 8, InterBatchPause: 2 * time.Second, AttemptTimeout: 30 * time.Second})
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 30 22 * * 1-5"
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "reports"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func defaultRule(r *retry.Rule, def retry.Rule) {
	if r.Base == 0 {
		r.Base = def.Base
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = def.MaxAttempts
	}
}

func defaultPacing(p *Pacing, def Pacing) {
	if p.BatchSize == 0 {
		p.BatchSize = def.BatchSize
	}
	if p.Concurrency == 0 {
		p.Concurrency = def.Concurrency
	}
	if p.InterBatchPause == 0 {
		p.InterBatchPause = def.InterBatchPause
	}
	if p.AttemptTimeout == 0 {
		p.AttemptTimeout = def.AttemptTimeout
	}
}

// RetryPolicy builds the ingestion retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Rules: map[model.ErrorKind]retry.Rule{
			model.KindRateLimited: c.Retry.RateLimited,
			model.KindTransport:   c.Retry.Transport,
			model.KindMalformed:   c.Retry.Malformed,
		},
		MaxDelay: c.Retry.MaxDelay,
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Source.Provider {
	case "yahoo":
	case "polygon":
		if c.Source.APIKey == "" {
			return fmt.Errorf("source.api_key is required for polygon")
		}
	default:
		return fmt.Errorf("source.provider %q is not one of yahoo, polygon", c.Source.Provider)
	}
	if c.Source.RequestsPerSecond < 0 {
		return fmt.Errorf("source.requests_per_second must not be negative")
	}

	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.PostgresURL == "" {
			return fmt.Errorf("database.postgres_url is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, postgres", c.Database.Driver)
	}

	switch c.Universe.Kind {
	case "static":
		if len(c.Universe.Tickers) == 0 {
			return fmt.Errorf("universe.tickers is required for a static universe")
		}
	case "file":
		if c.Universe.File == "" {
			return fmt.Errorf("universe.file is required for a file universe")
		}
	case "registry":
	default:
		return fmt.Errorf("universe.kind %q is not one of static, file, registry", c.Universe.Kind)
	}

	for name, r := range map[string]retry.Rule{"rate_limited": c.Retry.RateLimited, "transport": c.Retry.Transport, "malformed": c.Retry.Malformed} {
		if r.MaxAttempts < 1 || r.Base < 0 {
			return fmt.Errorf("retry.%s must allow at least one attempt with a non-negative base", name)
		}
	}
	if c.Backfill.LookbackDays < 1 {
		return fmt.Errorf("backfill.lookback_days must be positive")
	}
	if c.Backfill.Concurrency < 1 || c.Backfill.BatchSize < 1 {
		return fmt.Errorf("backfill.concurrency and backfill.batch_size must be positive")
	}
	if c.Daily.Concurrency < 1 || c.Daily.BatchSize < 1 {
		return fmt.Errorf("daily.concurrency and daily.batch_size must be positive")
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.Bucket == "") {
		return fmt.Errorf("archive.endpoint and archive.bucket are required when archiving is enabled")
	}
	return nil
}
