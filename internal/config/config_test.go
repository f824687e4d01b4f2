//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestMaxAttempts(t *testing.T) {
	cases := []struct {
		interval, wait time.Duration
		want           int
	}{
		{10 * time.Second, 6 * time.Minute, 36},
		{7 * time.Second, time.Minute, 8},
		{time.Minute, 10 * time.Second, 1},
		{0, time.Minute, 1},
	}
	for _, c := range cases {
		p := PaymentConfig{CheckInterval: c.interval, MaxWait: c.wait}
		if got := p.MaxAttempts(); got != c.want {
			t.Errorf("MaxAttempts(%s, %s) = %d, want %d", c.interval, c.wait, got, c.want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Run("should override file values from the environment", func(t *testing.T) {
		cfg := &Config{Bot: BotConfig{Token: "from-file"}}
		err := applyEnv(cfg, envFrom(map[string]string{
			"BOT_TOKEN":              "from-env",
			"BAKONG_ACCOUNT":         "shop@aclb",
			"MERCHANT_NAME":          "Coffee",
			"CHECK_INTERVAL_SECONDS": "5",
			"MAX_WAIT_MINUTES":       "2",
			"PORT":                   "8080",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Bot.Token != "from-env" {
			t.Errorf("expected env token, got %q", cfg.Bot.Token)
		}
		if cfg.Payment.CheckInterval != 5*time.Second || cfg.Payment.MaxWait != 2*time.Minute {
			t.Errorf("unexpected payment timing %+v", cfg.Payment)
		}
		if cfg.Proxy.Port != 8080 {
			t.Errorf("expected proxy port 8080, got %d", cfg.Proxy.Port)
		}
	})

	t.Run("should give the bot the proxy key from PROXY_API_KEY", func(t *testing.T) {
		cfg := &Config{}
		err := applyEnv(cfg, envFrom(map[string]string{
			"PROXY_API_KEY":  "secret-key-123",
			"BAKONG_API_URL": "https://my-proxy.example",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		applyDefaults(cfg)
		if cfg.Bakong.ProxyAPIKey != "secret-key-123" {
			t.Errorf("expected bakong client to send the proxy key, got %q", cfg.Bakong.ProxyAPIKey)
		}
		if cfg.Proxy.APIKey != "secret-key-123" {
			t.Errorf("expected proxy api key, got %q", cfg.Proxy.APIKey)
		}
	})

	t.Run("should reject a non-numeric interval", func(t *testing.T) {
		cfg := &Config{}
		err := applyEnv(cfg, envFrom(map[string]string{"CHECK_INTERVAL_SECONDS": "ten"}))
		if err == nil || !strings.Contains(err.Error(), "CHECK_INTERVAL_SECONDS") {
			t.Fatalf("expected interval error, got %v", err)
		}
	})
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Bakong: BakongConfig{Token: "tok", BaseURL: "http://proxy.local/"}}
	applyDefaults(cfg)

	if cfg.Payment.CheckInterval != 10*time.Second || cfg.Payment.MaxWait != 6*time.Minute {
		t.Errorf("unexpected payment defaults %+v", cfg.Payment)
	}
	if cfg.Bakong.BaseURL != "http://proxy.local" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Bakong.BaseURL)
	}
	if cfg.Bakong.Merchant.City != "Phnom Penh" || cfg.Bakong.Merchant.TerminalLabel != "Terminal01" {
		t.Errorf("unexpected merchant defaults %+v", cfg.Bakong.Merchant)
	}
	if cfg.Proxy.BakongToken != "tok" {
		t.Errorf("expected proxy to inherit bakong token, got %q", cfg.Proxy.BakongToken)
	}

	withKey := &Config{Proxy: ProxyConfig{APIKey: "file-key"}}
	applyDefaults(withKey)
	if withKey.Bakong.ProxyAPIKey != "file-key" {
		t.Errorf("expected bakong proxy key to default from proxy.api_key, got %q", withKey.Bakong.ProxyAPIKey)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("should parse yaml file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bot.yaml")
		data := `
bot:
  token: "123:abc"
bakong:
  token: "bk"
  account_id: "shop@aclb"
  merchant:
    name: "Coffee"
payment:
  check_interval: 15s
  max_wait: 3m
`
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := cfg.ValidateBot(); err != nil {
			t.Fatalf("expected valid config, got %v", err)
		}
		if cfg.Payment.MaxAttempts() != 12 {
			t.Errorf("expected 12 attempts, got %d", cfg.Payment.MaxAttempts())
		}
	})

	t.Run("should fail on a missing explicit file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), false); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	err := cfg.ValidateBot()
	if err == nil {
		t.Fatal("expected missing settings error")
	}
	for _, want := range []string{"BOT_TOKEN", "BAKONG_TOKEN", "BAKONG_ACCOUNT", "MERCHANT_NAME"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in %q", want, err.Error())
		}
	}
	if err := cfg.ValidateProxy(); err == nil {
		t.Fatal("expected proxy api key error")
	}
}
