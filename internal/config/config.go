package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Marketplaces map[string]MarketplaceConfig `mapstructure:"marketplaces"`

	Detector  DetectorConfig  `mapstructure:"detector"`
	Drift     DriftConfig     `mapstructure:"drift"`
	FX        FXConfig        `mapstructure:"fx"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DetectionPass  string `mapstructure:"detection_pass"`
	FXRefresh      string `mapstructure:"fx_refresh"`
	StaleSweep     string `mapstructure:"stale_sweep"`
	HistoryCleanup string `mapstructure:"history_cleanup"`
}

// MarketplaceConfig describes one marketplace: its settlement currency and the
// versioned fee schedule applied when selling there.
type MarketplaceConfig struct {
	Currency    string            `mapstructure:"currency"`
	FeeSchedule FeeScheduleConfig `mapstructure:"fee_schedule"`
}

type FeeScheduleConfig struct {
	Version    string               `mapstructure:"version"`
	Components []FeeComponentConfig `mapstructure:"components"`
}

// FeeComponentConfig is one fee component. Kind is "percent", "flat" or
// "tiered"; tiered components use marginal bands ordered by upper bound, with
// up_to=0 on the last band meaning unbounded.
type FeeComponentConfig struct {
	Name   string          `mapstructure:"name"`
	Kind   string          `mapstructure:"kind"`
	Rate   float64         `mapstructure:"rate"`
	Amount float64         `mapstructure:"amount"`
	Bands  []FeeBandConfig `mapstructure:"bands"`
}

type FeeBandConfig struct {
	UpTo float64 `mapstructure:"up_to"`
	Rate float64 `mapstructure:"rate"`
}

type DetectorConfig struct {
	SourceMarketplaces []string      `mapstructure:"source_marketplaces"`
	TargetMarketplaces []string      `mapstructure:"target_marketplaces"`
	MinMarginAbsolute  float64       `mapstructure:"min_margin_absolute"`
	MinMarginRatio     float64       `mapstructure:"min_margin_ratio"`
	MaxSourcePrice     float64       `mapstructure:"max_source_price"`
	StalenessWindow    time.Duration `mapstructure:"staleness_window"`
	UnknownStockFactor float64       `mapstructure:"unknown_stock_factor"`
	PassBudget         time.Duration `mapstructure:"pass_budget"`
	BatchLimit         int           `mapstructure:"batch_limit"`
}

type DriftConfig struct {
	NoiseRatio  float64 `mapstructure:"noise_ratio"`
	MinAbsDelta float64 `mapstructure:"min_abs_delta"`
}

type FXConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	Base         string        `mapstructure:"base"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type FeedConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type PublisherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Stream  string `mapstructure:"stream"`
	MaxLen  int64  `mapstructure:"max_len"`
}

type RetentionConfig struct {
	HistoryWindow time.Duration `mapstructure:"history_window"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.detection_pass", "@every 5m")
	v.SetDefault("cron.fx_refresh", "@every 1h")
	v.SetDefault("cron.stale_sweep", "@every 10m")
	v.SetDefault("cron.history_cleanup", "@every 6h")

	v.SetDefault("detector.source_marketplaces", []string{"aliexpress", "walmart"})
	v.SetDefault("detector.target_marketplaces", []string{"ebay", "amazon"})
	v.SetDefault("detector.min_margin_absolute", 5.0)
	v.SetDefault("detector.min_margin_ratio", 0.2)
	v.SetDefault("detector.max_source_price", 100.0)
	v.SetDefault("detector.staleness_window", "24h")
	v.SetDefault("detector.unknown_stock_factor", 0.8)
	v.SetDefault("detector.pass_budget", "2m")
	v.SetDefault("detector.batch_limit", 500)

	v.SetDefault("drift.noise_ratio", 0.005)
	v.SetDefault("drift.min_abs_delta", 0.01)

	v.SetDefault("fx.endpoint", "")
	v.SetDefault("fx.base", "USD")
	v.SetDefault("fx.poll_interval", "1h")
	v.SetDefault("fx.max_age", "6h")
	v.SetDefault("fx.timeout", "15s")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.reconnect_delay", "5s")

	v.SetDefault("publisher.enabled", false)
	v.SetDefault("publisher.addr", "localhost:6379")
	v.SetDefault("publisher.stream", "arbtrack:events")
	v.SetDefault("publisher.max_len", 10000)

	v.SetDefault("retention.history_window", "720h")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if len(cfg.Marketplaces) == 0 {
		cfg.Marketplaces = DefaultMarketplaces()
	}

	return cfg, nil
}

// DefaultMarketplaces carries the stock fee schedules used when the config
// file does not define any. Rates follow each platform's published seller fee
// structure.
func DefaultMarketplaces() map[string]MarketplaceConfig {
	return map[string]MarketplaceConfig{
		"amazon": {
			Currency: "USD",
			FeeSchedule: FeeScheduleConfig{
				Version: "2025-01",
				Components: []FeeComponentConfig{
					{Name: "referral", Kind: "percent", Rate: 0.15},
					{Name: "payment", Kind: "percent", Rate: 0.029},
					{Name: "payment_fixed", Kind: "flat", Amount: 0.30},
				},
			},
		},
		"ebay": {
			Currency: "USD",
			FeeSchedule: FeeScheduleConfig{
				Version: "2025-01",
				Components: []FeeComponentConfig{
					{Name: "final_value", Kind: "percent", Rate: 0.1255},
					{Name: "payment", Kind: "percent", Rate: 0.029},
					{Name: "payment_fixed", Kind: "flat", Amount: 0.30},
				},
			},
		},
		"walmart": {
			Currency: "USD",
			FeeSchedule: FeeScheduleConfig{
				Version: "2025-01",
				Components: []FeeComponentConfig{
					{Name: "referral", Kind: "percent", Rate: 0.15},
					{Name: "payment", Kind: "percent", Rate: 0.029},
					{Name: "payment_fixed", Kind: "flat", Amount: 0.30},
				},
			},
		},
		"aliexpress": {
			Currency: "USD",
			FeeSchedule: FeeScheduleConfig{
				Version: "2025-01",
				// Buy-side marketplace: nothing is sold there, so no components.
				Components: nil,
			},
		},
	}
}
