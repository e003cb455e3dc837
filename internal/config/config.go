package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"xololegend-market/internal/listings"
	"xololegend-market/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Chronik    ChronikConfig    `mapstructure:"chronik"`
	RMZ        RMZConfig        `mapstructure:"rmz"`
	Wallet     WalletConfig     `mapstructure:"wallet"`
	Database   listings.Config  `mapstructure:"database"`
	LiveOffers LiveOffersConfig `mapstructure:"live_offers"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ChronikConfig covers indexer connectivity.
type ChronikConfig struct {
	URL            string        `mapstructure:"url"`
	WSURL          string        `mapstructure:"ws_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// RMZConfig names the marketplace's token ids.
type RMZConfig struct {
	TokenID      string `mapstructure:"token_id"`
	StateTokenID string `mapstructure:"state_token_id"`
}

// WalletConfig captures the Tonalli pairing channel.
type WalletConfig struct {
	BridgeURL      string        `mapstructure:"bridge_url"`
	WebURL         string        `mapstructure:"web_url"`
	Topic          string        `mapstructure:"topic"`
	RequestTTL     time.Duration `mapstructure:"request_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LiveOffersConfig governs the in-memory offer registry.
type LiveOffersConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// WatchConfig governs the live tx-stream watcher.
type WatchConfig struct {
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepLimit     int           `mapstructure:"sweep_limit"`
}

// AlertingConfig defines retraction alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("XOLOMARKET")
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
	v.SetDefault("app.name", "xolomarket")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("chronik.url", "https://chronik.e.cash")
	v.SetDefault("chronik.ws_url", "wss://chronik.e.cash/ws")
	v.SetDefault("chronik.request_timeout", "10s")
	v.SetDefault("chronik.user_agent", "xolomarket/1.0")

	v.SetDefault("wallet.request_ttl", "300s")
	v.SetDefault("wallet.request_timeout", "30s")

	v.SetDefault("live_offers.ttl", "24h")

	v.SetDefault("watch.reconnect_delay", "5s")
	v.SetDefault("watch.sweep_interval", "0s")
	v.SetDefault("watch.sweep_limit", 100)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Chronik.URL == "" {
		return fmt.Errorf("chronik.url must be configured")
	}
	if c.Chronik.RequestTimeout <= 0 {
		return fmt.Errorf("chronik.request_timeout must be greater than zero")
	}
	if c.LiveOffers.TTL <= 0 {
		return fmt.Errorf("live_offers.ttl must be greater than zero")
	}
	if c.Watch.ReconnectDelay <= 0 {
		return fmt.Errorf("watch.reconnect_delay must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}
