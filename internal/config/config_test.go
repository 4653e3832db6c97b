package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("does-not-exist.yaml", true)
	if err != nil {
		t.Fatalf("env-only load: %v", err)
	}

	if cfg.App.Timezone != "Asia/Kolkata" {
		t.Fatalf("app timezone = %q", cfg.App.Timezone)
	}
	if cfg.Cron.MarketOpen != "0 15 9 * * 1-5" {
		t.Fatalf("market open spec = %q", cfg.Cron.MarketOpen)
	}
	if cfg.Cron.SquareOff != "0 15 15 * * 1-5" {
		t.Fatalf("square off spec = %q", cfg.Cron.SquareOff)
	}
	if cfg.Feed.ReconnectBase != time.Second || cfg.Feed.ReconnectMax != 30*time.Second {
		t.Fatalf("reconnect window = %v..%v", cfg.Feed.ReconnectBase, cfg.Feed.ReconnectMax)
	}
	if cfg.Feed.MaxReconnectAttempts != 5 {
		t.Fatalf("max reconnect attempts = %d", cfg.Feed.MaxReconnectAttempts)
	}
	if cfg.Strategy.Quantity != 25 {
		t.Fatalf("quantity = %d", cfg.Strategy.Quantity)
	}
	if cfg.Strategy.MaxExecutionsPerDay != 2 {
		t.Fatalf("max executions per day = %d", cfg.Strategy.MaxExecutionsPerDay)
	}
	if cfg.Strategy.CallStopLossPercent != 1.3 || cfg.Strategy.PutStopLossPercent != 1.3 {
		t.Fatalf("stop loss percents = %v/%v", cfg.Strategy.CallStopLossPercent, cfg.Strategy.PutStopLossPercent)
	}
	if cfg.Broker.BaseURL != "https://api.upstox.com/v2" {
		t.Fatalf("broker base url = %q", cfg.Broker.BaseURL)
	}
	if cfg.Broker.OrderBaseURL != "https://api-hft.upstox.com/v2" {
		t.Fatalf("order base url = %q", cfg.Broker.OrderBaseURL)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("BN_STRATEGY_QUANTITY", "50")
	t.Setenv("BN_APP_TIMEZONE", "UTC")

	cfg, err := Load("does-not-exist.yaml", true)
	if err != nil {
		t.Fatalf("env-only load: %v", err)
	}
	if cfg.Strategy.Quantity != 50 {
		t.Fatalf("quantity = %d, want env override 50", cfg.Strategy.Quantity)
	}
	if cfg.App.Timezone != "UTC" {
		t.Fatalf("timezone = %q, want env override UTC", cfg.App.Timezone)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("does-not-exist.yaml", false); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
