package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
storage:
  driver: memory
monetization:
  default_coins: 250
  ad_session_max_age: 30m
  ad_units:
    web:
      rewarded:
        ad_unit_id: web-001
        provider: custom
        duration: 12s
        reward_type: unlock
  packages:
    - id: pack_10
      name: Tiny
      coins: 10
      price: "0.19"
      currency: EUR
      product_id: com.test.coins.10
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Storage.Driver != StorageDriverMemory {
		t.Fatalf("unexpected storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.Monetization.DefaultCoins != 250 {
		t.Fatalf("unexpected default coins: %d", cfg.Monetization.DefaultCoins)
	}
	if cfg.Monetization.AdSessionMaxAge != 30*time.Minute {
		t.Fatalf("unexpected ad session max age: %s", cfg.Monetization.AdSessionMaxAge)
	}
	unit, ok := cfg.Monetization.AdUnits["web"]["rewarded"]
	if !ok || unit.Duration != 12*time.Second {
		t.Fatalf("unexpected web rewarded unit: %+v", unit)
	}
	if _, ok := cfg.Monetization.AdUnits["android"]["rewarded"]; !ok {
		t.Fatalf("yaml map merge should keep default android units")
	}
	if len(cfg.Monetization.Packages) != 1 || cfg.Monetization.Packages[0].Price.String() != "0.19" {
		t.Fatalf("unexpected packages override: %+v", cfg.Monetization.Packages)
	}
	if cfg.Monetization.PurchaseRetention != 30*24*time.Hour {
		t.Fatalf("purchase retention default should stay 30 days")
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config with missing file: %v", err)
	}

	if cfg.Monetization.DefaultCoins != 1000 {
		t.Fatalf("unexpected default coins: %d", cfg.Monetization.DefaultCoins)
	}
	if cfg.Monetization.AdSessionMaxAge != time.Hour {
		t.Fatalf("unexpected ad session max age: %s", cfg.Monetization.AdSessionMaxAge)
	}
	if got := cfg.Monetization.AdUnits["windows"]["rewarded"].Duration; got != 5*time.Second {
		t.Fatalf("unexpected windows rewarded duration: %s", got)
	}
	if got := cfg.Monetization.AdUnits["android"]["rewarded"].Duration; got != 30*time.Second {
		t.Fatalf("unexpected android rewarded duration: %s", got)
	}
	if len(cfg.Monetization.Packages) != 4 {
		t.Fatalf("unexpected default package count: %d", len(cfg.Monetization.Packages))
	}
	if cfg.StoreProvider.Mode != StoreProviderStub {
		t.Fatalf("unexpected store provider mode: %s", cfg.StoreProvider.Mode)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("MONETIZATION_DEFAULT_COINS", "42")
	t.Setenv("MONETIZATION_AD_SWEEP_INTERVAL", "90s")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.HTTP.Addr != ":9999" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTP.Addr)
	}
	if cfg.Monetization.DefaultCoins != 42 {
		t.Fatalf("unexpected default coins: %d", cfg.Monetization.DefaultCoins)
	}
	if cfg.Monetization.AdSweepInterval != 90*time.Second {
		t.Fatalf("unexpected sweep interval: %s", cfg.Monetization.AdSweepInterval)
	}
	if !cfg.Redis.Enabled {
		t.Fatalf("expected redis enabled from env")
	}
}

func TestLoadRejectsStubProviderInProduction(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("ADMIN_TOKEN", "secret")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for stub store provider in production")
	}
}

func TestLoadRejectsMissingAdminTokenInProduction(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_PROVIDER_MODE", "http")
	t.Setenv("STORE_PROVIDER_ENDPOINT", "https://verify.example.com/receipts")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error when admin.token is empty in production")
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV",
		"HTTP_ADDR",
		"HTTP_READ_TIMEOUT",
		"HTTP_WRITE_TIMEOUT",
		"HTTP_IDLE_TIMEOUT",
		"LOG_LEVEL",
		"STORAGE_DRIVER",
		"POSTGRES_DSN",
		"POSTGRES_MIGRATE",
		"SQLITE_PATH",
		"REDIS_ENABLED",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"MONETIZATION_DEFAULT_COINS",
		"MONETIZATION_STORY_PATH",
		"MONETIZATION_AD_SESSION_MAX_AGE",
		"MONETIZATION_AD_SWEEP_INTERVAL",
		"MONETIZATION_PURCHASE_RETENTION",
		"MONETIZATION_LEDGER_COMPACTION_INTERVAL",
		"MONETIZATION_PROVIDER_TIMEOUT",
		"MONETIZATION_AD_REQUESTS_PER_MINUTE",
		"MONETIZATION_FALLBACK_AD_DURATION",
		"STORE_PROVIDER_MODE",
		"STORE_PROVIDER_ENDPOINT",
		"STORE_PROVIDER_RATE_PER_SECOND",
		"STORE_PROVIDER_BURST",
		"STORE_PROVIDER_SHARED_SECRET",
		"STORE_PROVIDER_SANDBOX",
		"ADMIN_TOKEN",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
