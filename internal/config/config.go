package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Strategy StrategyConfig `mapstructure:"strategy"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	Timezone string `mapstructure:"timezone"`
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
	Enabled    bool   `mapstructure:"enabled"`
	MarketOpen string `mapstructure:"market_open"`
	SquareOff  string `mapstructure:"square_off"`
}

type BrokerConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	OrderBaseURL  string        `mapstructure:"order_base_url"`
	AccessToken   string        `mapstructure:"access_token"`
	InstrumentKey string        `mapstructure:"instrument_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type FeedConfig struct {
	URL                  string        `mapstructure:"url"`
	ReconnectBase        time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax         time.Duration `mapstructure:"reconnect_max"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	TickBuffer           int           `mapstructure:"tick_buffer"`
}

type StrategyConfig struct {
	CallEntryPercent    float64 `mapstructure:"call_entry_percent"`
	PutEntryPercent     float64 `mapstructure:"put_entry_percent"`
	CallStopLossPercent float64 `mapstructure:"call_stop_loss_percent"`
	PutStopLossPercent  float64 `mapstructure:"put_stop_loss_percent"`
	Quantity            int     `mapstructure:"quantity"`
	MaxExecutionsPerDay int     `mapstructure:"max_executions_per_day"`
	ReentryEntryPercent float64 `mapstructure:"reentry_entry_percent"`
	ReentryStopPercent  float64 `mapstructure:"reentry_stop_percent"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.timezone", "Asia/Kolkata")
	v.SetDefault("server.http_addr", ":3000")
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
	v.SetDefault("db.timezone", "Asia/Kolkata")
	v.SetDefault("cron.enabled", true)
	// Exchange-local (IST) market boundaries: entries at 09:15, forced square-off at 15:15.
	v.SetDefault("cron.market_open", "0 15 9 * * 1-5")
	v.SetDefault("cron.square_off", "0 15 15 * * 1-5")
	v.SetDefault("broker.base_url", "https://api.upstox.com/v2")
	v.SetDefault("broker.order_base_url", "https://api-hft.upstox.com/v2")
	v.SetDefault("broker.instrument_key", "NSE_INDEX|Nifty Bank")
	v.SetDefault("broker.timeout", "5s")
	v.SetDefault("feed.url", "wss://api.upstox.com/v2/feed/market-data-feed")
	v.SetDefault("feed.reconnect_base", "1s")
	v.SetDefault("feed.reconnect_max", "30s")
	v.SetDefault("feed.max_reconnect_attempts", 5)
	v.SetDefault("feed.tick_buffer", 128)
	v.SetDefault("strategy.call_entry_percent", 1.0)
	v.SetDefault("strategy.put_entry_percent", 1.0)
	v.SetDefault("strategy.call_stop_loss_percent", 1.3)
	v.SetDefault("strategy.put_stop_loss_percent", 1.3)
	v.SetDefault("strategy.quantity", 25)
	v.SetDefault("strategy.max_executions_per_day", 2)
	v.SetDefault("strategy.reentry_entry_percent", 1.0)
	v.SetDefault("strategy.reentry_stop_percent", 1.3)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
