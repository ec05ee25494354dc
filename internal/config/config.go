// Package config handles configuration loading for MacroDesk.
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
	COT     COTConfig     `mapstructure:"cot"     yaml:"cot"`
	Prices  PricesConfig  `mapstructure:"prices"  yaml:"prices"`
	Macro   MacroConfig   `mapstructure:"macro"   yaml:"macro"`
	News    NewsConfig    `mapstructure:"news"    yaml:"news"`
	Store   StoreConfig   `mapstructure:"store"   yaml:"store"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// COTConfig holds the CFTC pipeline settings.
type COTConfig struct {
	// ReportType selects the report family: "legacy" (Non-Commercial
	// positioning) or "disaggregated" (Managed Money).
	ReportType string `mapstructure:"report_type" yaml:"report_type"`

	// Window is the trailing number of weekly observations retained.
	Window int `mapstructure:"window" yaml:"window"`

	// StalenessDays is the threshold beyond which a series is LAGGING.
	StalenessDays int `mapstructure:"staleness_days" yaml:"staleness_days"`

	// Instruments overrides the default tracked roster.
	Instruments []InstrumentConfig `mapstructure:"instruments" yaml:"instruments"`

	// CacheTTL bounds how long fetched report tables are reused, in
	// seconds. The source publishes weekly, so hours are fine.
	CacheTTL int `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// InstrumentConfig is one tracked contract.
type InstrumentConfig struct {
	ID       string   `mapstructure:"id"       yaml:"id"`
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
}

// PricesConfig holds the live price panel settings.
type PricesConfig struct {
	// Tickers maps display names to Yahoo Finance symbols.
	Tickers  map[string]string `mapstructure:"tickers"   yaml:"tickers"`
	CacheTTL int               `mapstructure:"cache_ttl" yaml:"cache_ttl"` // seconds
}

// MacroConfig holds the FRED macro panel settings.
type MacroConfig struct {
	FREDAPIKey string `mapstructure:"fred_api_key" yaml:"fred_api_key"`
	CacheTTL   int    `mapstructure:"cache_ttl"    yaml:"cache_ttl"` // seconds
}

// NewsConfig holds the news panel settings.
type NewsConfig struct {
	Feeds    []string `mapstructure:"feeds"     yaml:"feeds"`
	Keywords []string `mapstructure:"keywords"  yaml:"keywords"`
	Limit    int      `mapstructure:"limit"     yaml:"limit"`
	CacheTTL int      `mapstructure:"cache_ttl" yaml:"cache_ttl"` // seconds
}

// StoreConfig holds the optional SQLite persistence settings.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
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
//  2. ~/.macrodesk/config.yaml (home directory)
//  3. /etc/macrodesk/config.yaml (system)
//
// Environment variables override config file values.
// Format: MACRODESK_<SECTION>_<KEY>, e.g., MACRODESK_MACRO_FRED_API_KEY
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".macrodesk"))
	v.AddConfigPath("/etc/macrodesk")

	v.SetEnvPrefix("MACRODESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file is optional; defaults plus env vars suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
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
	v.SetEnvPrefix("MACRODESK")
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
	// COT defaults
	v.SetDefault("cot.report_type", "legacy")
	v.SetDefault("cot.window", 156) // ~3 years of weekly reports
	v.SetDefault("cot.staleness_days", 14)
	v.SetDefault("cot.cache_ttl", 6*3600)

	// Prices defaults (the dashboard's headline tape)
	v.SetDefault("prices.tickers", map[string]string{
		"Gold Spot": "XAUUSD=X",
		"DXY":       "DX-Y.NYB",
		"EUR/USD":   "EURUSD=X",
		"GBP/USD":   "GBPUSD=X",
	})
	v.SetDefault("prices.cache_ttl", 60)

	// Macro defaults
	v.SetDefault("macro.cache_ttl", 3600)

	// News defaults
	v.SetDefault("news.feeds", []string{
		"https://www.investing.com/rss/news_11.rss",
	})
	v.SetDefault("news.limit", 6)
	v.SetDefault("news.cache_ttl", 300)

	// Store defaults
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "macrodesk.db")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("MACRODESK_MACRO_FRED_API_KEY"); key != "" {
		cfg.Macro.FREDAPIKey = key
	}
	// Accept the conventional name too.
	if key := os.Getenv("FRED_API_KEY"); key != "" && cfg.Macro.FREDAPIKey == "" {
		cfg.Macro.FREDAPIKey = key
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
