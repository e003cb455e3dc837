package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("默认配置应可加载: %v", err)
	}

	if cfg.App.Name != "xolomarket" {
		t.Fatalf("app.name 默认值不符: %s", cfg.App.Name)
	}
	if cfg.Chronik.URL != "https://chronik.e.cash" {
		t.Fatalf("chronik.url 默认值不符: %s", cfg.Chronik.URL)
	}
	if cfg.Chronik.RequestTimeout != 10*time.Second {
		t.Fatalf("chronik.request_timeout 默认值不符: %s", cfg.Chronik.RequestTimeout)
	}
	if cfg.LiveOffers.TTL != 24*time.Hour {
		t.Fatalf("live_offers.ttl 默认值不符: %s", cfg.LiveOffers.TTL)
	}
	if cfg.Watch.ReconnectDelay != 5*time.Second {
		t.Fatalf("watch.reconnect_delay 默认值不符: %s", cfg.Watch.ReconnectDelay)
	}
	if cfg.Wallet.RequestTTL != 300*time.Second {
		t.Fatalf("wallet.request_ttl 默认值不符: %s", cfg.Wallet.RequestTTL)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Fatalf("database.max_open_conns 默认值不符: %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
chronik:
  url: https://indexer.internal
  request_timeout: 3s
rmz:
  token_id: aabb
  state_token_id: ccdd
live_offers:
  ttl: 1h
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("配置文件应可加载: %v", err)
	}
	if cfg.Chronik.URL != "https://indexer.internal" {
		t.Fatalf("chronik.url 不符: %s", cfg.Chronik.URL)
	}
	if cfg.Chronik.RequestTimeout != 3*time.Second {
		t.Fatalf("duration 解析不符: %s", cfg.Chronik.RequestTimeout)
	}
	if cfg.RMZ.TokenID != "aabb" || cfg.RMZ.StateTokenID != "ccdd" {
		t.Fatalf("rmz 配置不符: %#v", cfg.RMZ)
	}
	if cfg.LiveOffers.TTL != time.Hour {
		t.Fatalf("live_offers.ttl 不符: %s", cfg.LiveOffers.TTL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("默认配置应可加载: %v", err)
	}

	cfg.Chronik.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("空 chronik.url 应校验失败")
	}

	cfg, _ = Load("")
	cfg.LiveOffers.TTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("零 TTL 应校验失败")
	}

	cfg, _ = Load("")
	cfg.Alerting.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("缺少 Telegram 凭据应校验失败")
	}
}
