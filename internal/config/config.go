// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Mode     string  `yaml:"mode"`     // polling | noop
	Workers  int     `yaml:"workers"`  // update handler goroutines
	Language string  `yaml:"language"` // locale file name, e.g. en | km
	AdminIDs []int64 `yaml:"admin_ids"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type MerchantConfig struct {
	Name          string `yaml:"name"`
	City          string `yaml:"city"`
	StoreLabel    string `yaml:"store_label"`
	PhoneNumber   string `yaml:"phone_number"`
	TerminalLabel string `yaml:"terminal_label"`
}

type BakongConfig struct {
	Token       string         `yaml:"token"`
	AccountID   string         `yaml:"account_id"` // e.g. merchant@bank
	BaseURL     string         `yaml:"base_url"`
	ProxyAPIKey string         `yaml:"proxy_api_key"` // sent as X-API-KEY when base_url points at the proxy
	Timeout     time.Duration  `yaml:"timeout"`
	Merchant    MerchantConfig `yaml:"merchant"`
}

type PaymentConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	MaxWait       time.Duration `yaml:"max_wait"`
	Workers       int           `yaml:"workers"` // status-check worker pool size
	// SimulatePaidAfter makes the dev provider report a payment after N checks.
	SimulatePaidAfter int `yaml:"simulate_paid_after"`
}

// MaxAttempts is how many status checks fit into the payment window.
func (p PaymentConfig) MaxAttempts() int {
	if p.CheckInterval <= 0 {
		return 1
	}
	n := int(p.MaxWait / p.CheckInterval)
	if n < 1 {
		return 1
	}
	return n
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type HTTPConfig struct {
	Port int `yaml:"port"` // ops server: /health, /metrics
}

type ProxyConfig struct {
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"`
	Upstream    string `yaml:"upstream"`
	BakongToken string `yaml:"bakong_token"`
	PublicIPURL string `yaml:"public_ip_url"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Bakong   BakongConfig   `yaml:"bakong"`
	Payment  PaymentConfig  `yaml:"payment"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Proxy    ProxyConfig    `yaml:"proxy"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies environment overrides and defaults.
// A missing file at the default path is not an error so env-only deployments work.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		// env only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("BOT_TOKEN", &cfg.Bot.Token)
	str("BAKONG_TOKEN", &cfg.Bakong.Token)
	str("BAKONG_ACCOUNT", &cfg.Bakong.AccountID)
	str("BAKONG_API_URL", &cfg.Bakong.BaseURL)
	str("MERCHANT_NAME", &cfg.Bakong.Merchant.Name)
	str("MERCHANT_CITY", &cfg.Bakong.Merchant.City)
	str("PROXY_API_KEY", &cfg.Proxy.APIKey)
	str("PROXY_API_KEY", &cfg.Bakong.ProxyAPIKey)
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("CHECK_INTERVAL_SECONDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("CHECK_INTERVAL_SECONDS: invalid value %q", v)
		}
		cfg.Payment.CheckInterval = time.Duration(n) * time.Second
	}
	if v, ok := lookup("MAX_WAIT_MINUTES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("MAX_WAIT_MINUTES: invalid value %q", v)
		}
		cfg.Payment.MaxWait = time.Duration(n) * time.Minute
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: invalid value %q", v)
		}
		cfg.Proxy.Port = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "en"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Bakong.BaseURL == "" {
		cfg.Bakong.BaseURL = "https://api-bakong.nbc.gov.kh"
	}
	cfg.Bakong.BaseURL = strings.TrimRight(cfg.Bakong.BaseURL, "/")
	if cfg.Bakong.Timeout <= 0 {
		cfg.Bakong.Timeout = 15 * time.Second
	}
	m := &cfg.Bakong.Merchant
	if m.City == "" {
		m.City = "Phnom Penh"
	}
	if m.StoreLabel == "" {
		m.StoreLabel = "Store"
	}
	if m.PhoneNumber == "" {
		m.PhoneNumber = "012345678"
	}
	if m.TerminalLabel == "" {
		m.TerminalLabel = "Terminal01"
	}
	if cfg.Payment.CheckInterval <= 0 {
		cfg.Payment.CheckInterval = 10 * time.Second
	}
	if cfg.Payment.MaxWait <= 0 {
		cfg.Payment.MaxWait = 6 * time.Minute
	}
	if cfg.Payment.Workers <= 0 {
		cfg.Payment.Workers = 4
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9090
	}
	if cfg.Proxy.Port == 0 {
		cfg.Proxy.Port = 3000
	}
	if cfg.Proxy.Upstream == "" {
		cfg.Proxy.Upstream = "https://api-bakong.nbc.gov.kh"
	}
	if cfg.Bakong.ProxyAPIKey == "" {
		cfg.Bakong.ProxyAPIKey = cfg.Proxy.APIKey
	}
	if cfg.Proxy.BakongToken == "" {
		cfg.Proxy.BakongToken = cfg.Bakong.Token
	}
	if cfg.Proxy.PublicIPURL == "" {
		cfg.Proxy.PublicIPURL = "https://api.ipify.org?format=json"
	}
}

// ValidateBot checks the settings the bot cannot start without.
func (c *Config) ValidateBot() error {
	var missing []string
	if c.Bot.Token == "" && c.Bot.Mode != "noop" {
		missing = append(missing, "bot.token (BOT_TOKEN)")
	}
	if c.Bakong.Token == "" && !c.Runtime.Dev {
		missing = append(missing, "bakong.token (BAKONG_TOKEN)")
	}
	if c.Bakong.AccountID == "" {
		missing = append(missing, "bakong.account_id (BAKONG_ACCOUNT)")
	}
	if c.Bakong.Merchant.Name == "" {
		missing = append(missing, "bakong.merchant.name (MERCHANT_NAME)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateProxy checks the settings the Bakong proxy cannot start without.
func (c *Config) ValidateProxy() error {
	if c.Proxy.APIKey == "" {
		return errors.New("proxy.api_key (PROXY_API_KEY) is required")
	}
	if c.Proxy.Upstream == "" {
		return errors.New("proxy.upstream is required")
	}
	return nil
}
