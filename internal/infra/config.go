package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr       string `yaml:"addr"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"server"`

	API struct {
		Upbit struct {
			RestURL   string `yaml:"rest_url"`
			WSURL     string `yaml:"ws_url"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
			// TickerSymbols are streamed over the websocket into the price
			// cache. Empty disables the stream; REST quotes still work.
			TickerSymbols []string `yaml:"ticker_symbols"`
		} `yaml:"upbit"`

		KIS struct {
			BaseURL       string `yaml:"base_url"`
			AppKey        string `yaml:"app_key"`
			AppSecret     string `yaml:"app_secret"`
			AccountPrefix string `yaml:"account_prefix"`
			AccountSuffix string `yaml:"account_suffix"`
			TokenFile     string `yaml:"token_file"`
		} `yaml:"kis"`

		Yahoo struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"yahoo"`

		Notion struct {
			BaseURL    string `yaml:"base_url"`
			APIKey     string `yaml:"api_key"`
			DatabaseID string `yaml:"database_id"`
		} `yaml:"notion"`
	} `yaml:"api"`

	Trading struct {
		AllowDuplicateBuy bool   `yaml:"allow_duplicate_buy"`
		MinCryptoOrderKRW int64  `yaml:"min_crypto_order_krw"`
		MinEquityOrderKRW int64  `yaml:"min_equity_order_krw"`
		Timezone          string `yaml:"timezone"`
	} `yaml:"trading"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.API.Upbit.RestURL == "" {
		c.API.Upbit.RestURL = "https://api.upbit.com"
	}
	if c.API.Upbit.WSURL == "" {
		c.API.Upbit.WSURL = "wss://api.upbit.com/websocket/v1"
	}
	if c.API.KIS.BaseURL == "" {
		c.API.KIS.BaseURL = "https://openapi.koreainvestment.com:9443"
	}
	if c.API.KIS.TokenFile == "" {
		c.API.KIS.TokenFile = "kis_token_prod.json"
	}
	if c.API.Yahoo.BaseURL == "" {
		c.API.Yahoo.BaseURL = "https://query1.finance.yahoo.com"
	}
	if c.API.Notion.BaseURL == "" {
		c.API.Notion.BaseURL = "https://api.notion.com"
	}
	if c.Trading.MinCryptoOrderKRW == 0 {
		c.Trading.MinCryptoOrderKRW = 5_000
	}
	if c.Trading.MinEquityOrderKRW == 0 {
		c.Trading.MinEquityOrderKRW = 10_000
	}
	if c.Trading.Timezone == "" {
		c.Trading.Timezone = "Asia/Seoul"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/trades.db"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Passphrase == "" {
		return fmt.Errorf("webhook passphrase is required (PASSPHRASE env or server.passphrase)")
	}
	if !hasPrefix(c.API.Upbit.WSURL, "ws://") && !hasPrefix(c.API.Upbit.WSURL, "wss://") {
		return fmt.Errorf("invalid Upbit WS URL: %s", c.API.Upbit.WSURL)
	}
	if (c.API.Upbit.AccessKey == "") != (c.API.Upbit.SecretKey == "") {
		return fmt.Errorf("Upbit access key and secret key must be set together")
	}
	if (c.API.KIS.AppKey == "") != (c.API.KIS.AppSecret == "") {
		return fmt.Errorf("KIS app key and app secret must be set together")
	}
	if c.API.KIS.AppKey != "" && (c.API.KIS.AccountPrefix == "" || c.API.KIS.AccountSuffix == "") {
		return fmt.Errorf("KIS account prefix and suffix are required when KIS keys are set")
	}
	if c.Trading.MinCryptoOrderKRW <= 0 || c.Trading.MinEquityOrderKRW <= 0 {
		return fmt.Errorf("minimum order sizes must be positive")
	}
	return nil
}

// UpbitConfigured reports whether the Upbit adapter can be built.
func (c *Config) UpbitConfigured() bool {
	return c.API.Upbit.AccessKey != "" && c.API.Upbit.SecretKey != ""
}

// KISConfigured reports whether the KIS adapter can be built.
func (c *Config) KISConfigured() bool {
	return c.API.KIS.AppKey != "" && c.API.KIS.AppSecret != ""
}

// NotionConfigured reports whether the journal can be built.
func (c *Config) NotionConfigured() bool {
	return c.API.Notion.APIKey != "" && c.API.Notion.DatabaseID != ""
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("UPBIT_ACCESS_KEY"); v != "" {
		cfg.API.Upbit.AccessKey = v
	}
	if v := os.Getenv("UPBIT_SECRET_KEY"); v != "" {
		cfg.API.Upbit.SecretKey = v
	}
	if v := os.Getenv("KIS_APPKEY"); v != "" {
		cfg.API.KIS.AppKey = v
	}
	if v := os.Getenv("KIS_APPSECRET"); v != "" {
		cfg.API.KIS.AppSecret = v
	}
	if v := os.Getenv("KIS_ACCOUNT_PREFIX"); v != "" {
		cfg.API.KIS.AccountPrefix = v
	}
	if v := os.Getenv("KIS_ACCOUNT_SUFFIX"); v != "" {
		cfg.API.KIS.AccountSuffix = v
	}
	if v := os.Getenv("NOTION_API_KEY"); v != "" {
		cfg.API.Notion.APIKey = v
	}
	if v := os.Getenv("NOTION_DATABASE_ID"); v != "" {
		cfg.API.Notion.DatabaseID = v
	}
	if v := os.Getenv("PASSPHRASE"); v != "" {
		cfg.Server.Passphrase = v
	}
	if v := os.Getenv("ALLOW_DUPLICATE_BUY"); v != "" {
		cfg.Trading.AllowDuplicateBuy = truthy(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Trading.Timezone = v
	}
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
