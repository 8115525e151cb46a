// Package config handles configuration loading for coinscan.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Market   MarketConfig   `mapstructure:"market"   yaml:"market"`
	Exchange ExchangeConfig `mapstructure:"exchange" yaml:"exchange"`
	News     NewsConfig     `mapstructure:"news"     yaml:"news"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// MarketConfig holds CoinGecko market data settings.
type MarketConfig struct {
	CoinGeckoKey string `mapstructure:"coingecko_key" yaml:"coingecko_key"`
	Pages        int    `mapstructure:"pages"          yaml:"pages"`
	PerPage      int    `mapstructure:"per_page"       yaml:"per_page"`
}

// ExchangeConfig holds Binance availability check settings.
type ExchangeConfig struct {
	QuoteAsset       string `mapstructure:"quote_asset"         yaml:"quote_asset"`       // e.g. "USDT"
	PairsCacheTTLSec int    `mapstructure:"pairs_cache_ttl_sec" yaml:"pairs_cache_ttl_sec"`
}

// NewsConfig holds news enrichment settings.
type NewsConfig struct {
	BraveKey    string `mapstructure:"brave_key"     yaml:"brave_key"`
	Count       int    `mapstructure:"count"         yaml:"count"`          // items per coin
	PaceMillis  int    `mapstructure:"pace_millis"   yaml:"pace_millis"`    // delay between coin lookups
	RSSFallback bool   `mapstructure:"rss_fallback"  yaml:"rss_fallback"`   // use RSS feeds when no key
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.coinscan/config.yaml (home directory)
//  3. /etc/coinscan/config.yaml (system)
//
// Environment variables override config file values.
// Format: COINSCAN_<SECTION>_<KEY>, e.g., COINSCAN_MARKET_COINGECKO_KEY.
// The plain COINGECKO_API_KEY and BRAVE_API_KEY variables are also honored
// so a dotenv file works without the prefix.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".coinscan"))
	v.AddConfigPath("/etc/coinscan")

	v.SetEnvPrefix("COINSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("COINSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Market defaults: two pages of 100 coins ordered by market cap.
	v.SetDefault("market.pages", 2)
	v.SetDefault("market.per_page", 100)

	// Exchange defaults
	v.SetDefault("exchange.quote_asset", "USDT")
	v.SetDefault("exchange.pairs_cache_ttl_sec", 3600) // 1 hour

	// News defaults
	v.SetDefault("news.count", 3)
	v.SetDefault("news.pace_millis", 1100) // Brave free tier: ~1 req/s
	v.SetDefault("news.rss_fallback", true)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
// The unprefixed names match the dotenv convention.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("COINSCAN_MARKET_COINGECKO_KEY"); key != "" {
		cfg.Market.CoinGeckoKey = key
	} else if key := os.Getenv("COINGECKO_API_KEY"); key != "" {
		cfg.Market.CoinGeckoKey = key
	}
	if key := os.Getenv("COINSCAN_NEWS_BRAVE_KEY"); key != "" {
		cfg.News.BraveKey = key
	} else if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		cfg.News.BraveKey = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
