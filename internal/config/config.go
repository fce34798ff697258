package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"polywhales/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig          `mapstructure:"app"`
	Logging     logging.Config     `mapstructure:"logging"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Poller      PollerConfig       `mapstructure:"poller"`
	Fetcher     FetcherConfig      `mapstructure:"fetcher"`
	Dedup       DedupConfig        `mapstructure:"dedup"`
	Aggregator  AggregatorConfig   `mapstructure:"aggregator"`
	Alerting    AlertingConfig     `mapstructure:"alerting"`
	Dispatch    DispatchConfig     `mapstructure:"dispatch"`
	Subscribers []SubscriberConfig `mapstructure:"subscribers"`
	Export      ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the durable store backend. A
// PostgreSQL DSN takes precedence; otherwise a local SQLite file is
// used.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// PollerConfig governs polling cadence and pagination bounds.
type PollerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	PageLimit  int           `mapstructure:"page_limit"`
	MaxPages   int           `mapstructure:"max_pages"`
	StatsEvery int           `mapstructure:"stats_every"`
}

// FetcherConfig covers Data API access.
type FetcherConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	MinFillUSD     float64       `mapstructure:"min_fill_usd"`
	TakerOnly      bool          `mapstructure:"taker_only"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DedupConfig tunes the recency cache and durable retention.
type DedupConfig struct {
	CacheSize     int           `mapstructure:"cache_size"`
	RetentionTTL  time.Duration `mapstructure:"retention_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// AggregatorConfig tunes series accumulation.
type AggregatorConfig struct {
	Window      time.Duration `mapstructure:"window"`
	Grace       time.Duration `mapstructure:"grace"`
	MinAlertUSD float64       `mapstructure:"min_alert_usd"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

// DispatchConfig tunes the alert handoff queue.
type DispatchConfig struct {
	QueueSize   int           `mapstructure:"queue_size"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// SubscriberConfig is one configured alert recipient.
type SubscriberConfig struct {
	ChatID     string   `mapstructure:"chat_id"`
	MinUSD     float64  `mapstructure:"min_usd"`
	Categories []string `mapstructure:"categories"`
	ProbMin    float64  `mapstructure:"prob_min"`
	ProbMax    float64  `mapstructure:"prob_max"`
	Paused     bool     `mapstructure:"paused"`
	Language   string   `mapstructure:"language"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POLYWHALES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "polywhales")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.path", "polywhales.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("poller.interval", "5s")
	v.SetDefault("poller.page_limit", 500)
	v.SetDefault("poller.max_pages", 5)
	v.SetDefault("poller.stats_every", 60)

	v.SetDefault("fetcher.base_url", "https://data-api.polymarket.com")
	v.SetDefault("fetcher.min_fill_usd", 10.0)
	v.SetDefault("fetcher.taker_only", true)
	v.SetDefault("fetcher.request_timeout", "10s")
	v.SetDefault("fetcher.user_agent", "polywhales/1.0")

	v.SetDefault("dedup.cache_size", 10000)
	v.SetDefault("dedup.retention_ttl", "72h")
	v.SetDefault("dedup.sweep_interval", "1h")

	v.SetDefault("aggregator.window", "60s")
	v.SetDefault("aggregator.grace", "10s")
	v.SetDefault("aggregator.min_alert_usd", 500.0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("dispatch.queue_size", 256)
	v.SetDefault("dispatch.send_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be greater than zero")
	}
	if c.Poller.PageLimit <= 0 {
		return fmt.Errorf("poller.page_limit must be greater than zero")
	}
	if c.Poller.MaxPages <= 0 {
		return fmt.Errorf("poller.max_pages must be greater than zero")
	}
	if c.Fetcher.MinFillUSD < 0 {
		return fmt.Errorf("fetcher.min_fill_usd cannot be negative")
	}
	if c.Aggregator.MinAlertUSD <= 0 {
		return fmt.Errorf("aggregator.min_alert_usd must be greater than zero")
	}
	if c.Aggregator.Window <= 0 {
		return fmt.Errorf("aggregator.window must be greater than zero")
	}
	if c.Dedup.RetentionTTL <= 0 {
		return fmt.Errorf("dedup.retention_ttl must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
	}
	for i, sub := range c.Subscribers {
		if sub.ChatID == "" {
			return fmt.Errorf("subscribers[%d].chat_id is required", i)
		}
		if sub.ProbMin < 0 || sub.ProbMax > 1 || sub.ProbMin > sub.ProbMax {
			return fmt.Errorf("subscribers[%d] probability range is invalid", i)
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
