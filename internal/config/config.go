//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for cstore-insights.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Data source types.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

// Memo backends for Census API responses.
const (
	MemoMemory = "memory"
	MemoRedis  = "redis"
	MemoNone   = "none"
)

// Config holds all configuration for cstore-insights.
type Config struct {
	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogFormat selects console ("pretty") or JSON ("json") log output.
	LogFormat string `mapstructure:"log_format"`

	// Data holds dataset source configuration.
	Data DataConfig `mapstructure:"data"`

	// Filters holds the default global filters.
	Filters FilterConfig `mapstructure:"filters"`

	// Reports holds default page parameters.
	Reports ReportsConfig `mapstructure:"reports"`

	// Census holds external API settings.
	Census CensusConfig `mapstructure:"census"`

	// Enrich holds enrichment pipeline settings.
	Enrich EnrichConfig `mapstructure:"enrich"`

	// Server holds configuration for the serve subcommand.
	Server ServerConfig `mapstructure:"server"`

	// Generate holds configuration for synthetic dataset generation.
	Generate GenerateConfig `mapstructure:"generate"`
}

// DataConfig describes where the reference and fact tables are read from.
type DataConfig struct {
	// Source is "csv" or "postgres".
	Source string `mapstructure:"source"`

	// Dir is the CSV dataset directory (csv source).
	Dir string `mapstructure:"dir"`

	// Connection is the PostgreSQL connection string (postgres source).
	Connection string `mapstructure:"connection"`
}

// FilterConfig holds the default global filter values.
type FilterConfig struct {
	// Year restricts reports to one calendar year; 0 means all years.
	Year int `mapstructure:"year"`

	// Months restricts reports to the listed calendar months.
	Months []int `mapstructure:"months"`
}

// ReportsConfig holds default page parameters.
type ReportsConfig struct {
	// MinTransactions is the beverage brand transaction-count floor.
	MinTransactions int `mapstructure:"min_transactions"`

	// RevenueThreshold is the drop-candidate revenue line.
	RevenueThreshold float64 `mapstructure:"revenue_threshold"`

	// PaymentTypes are the payment types compared by default.
	PaymentTypes []string `mapstructure:"payment_types"`
}

// CensusConfig holds Census geocoder and ACS settings.
type CensusConfig struct {
	// APIKey is the Census data API key.
	APIKey string `mapstructure:"api_key"`

	// GeocoderURL is the coordinates-to-geographies endpoint.
	GeocoderURL string `mapstructure:"geocoder_url"`

	// ACSURL is the ACS 5-year dataset endpoint.
	ACSURL string `mapstructure:"acs_url"`

	// Benchmark and Vintage select the geocoder reference data.
	Benchmark string `mapstructure:"benchmark"`
	Vintage   string `mapstructure:"vintage"`

	// Timeouts in seconds for each call type.
	GeocodeTimeout int `mapstructure:"geocode_timeout"`
	TractTimeout   int `mapstructure:"tract_timeout"`
	CountyTimeout  int `mapstructure:"county_timeout"`
}

// EnrichConfig holds enrichment pipeline settings.
type EnrichConfig struct {
	// CacheDir holds the three stage cache files.
	CacheDir string `mapstructure:"cache_dir"`

	// Workers is the number of concurrent per-item requests.
	Workers int `mapstructure:"workers"`

	// RequestDelay is the minimum gap between request starts in milliseconds.
	RequestDelay int `mapstructure:"request_delay"`

	// Memo selects the response memo backend: memory, redis or none.
	Memo string `mapstructure:"memo"`

	// MemoTTL is how long memoized responses live, in seconds.
	MemoTTL int `mapstructure:"memo_ttl"`

	// Redis configures the redis memo backend.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	// Listen is the address to bind, e.g. ":8080".
	Listen string `mapstructure:"listen"`
}

// GenerateConfig holds synthetic dataset settings.
type GenerateConfig struct {
	// Stores is the number of stores to generate.
	Stores int `mapstructure:"stores"`

	// Products is the number of GTINs to generate.
	Products int `mapstructure:"products"`

	// StartYear and Days define the generated calendar span.
	StartYear int `mapstructure:"start_year"`
	Days      int `mapstructure:"days"`

	// TransactionsPerDay is the mean number of checkouts per store per day.
	TransactionsPerDay int `mapstructure:"transactions_per_day"`

	// Seed makes generation reproducible; 0 picks a random seed.
	Seed uint64 `mapstructure:"seed"`

	// DropExisting drops existing tables before seeding Postgres.
	DropExisting bool `mapstructure:"drop_existing"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	cfg := baseConfig()
	cfg.normalize()
	return cfg
}

// baseConfig returns the scalar defaults; slice defaults come from normalize.
func baseConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "pretty",
		Data: DataConfig{
			Source: SourceCSV,
			Dir:    "data",
		},
		Reports: ReportsConfig{
			MinTransactions:  18,
			RevenueThreshold: 10000,
		},
		Census: CensusConfig{
			GeocoderURL:    "https://geocoding.geo.census.gov/geocoder/geographies/coordinates",
			ACSURL:         "https://api.census.gov/data/2023/acs/acs5",
			Benchmark:      "Public_AR_Census2020",
			Vintage:        "Census2020_Census2020",
			GeocodeTimeout: 10,
			TractTimeout:   15,
			CountyTimeout:  60,
		},
		Enrich: EnrichConfig{
			CacheDir:     "data",
			Workers:      4,
			RequestDelay: 50,
			Memo:         MemoMemory,
			MemoTTL:      7200, // 2 hours
			Redis: RedisConfig{
				Address: "localhost:6379",
			},
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
		Generate: GenerateConfig{
			Stores:             25,
			Products:           400,
			StartYear:          2022,
			Days:               365 * 3,
			TransactionsPerDay: 12,
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./cstore-insights.yaml
// 3. ~/.config/cstore-insights/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("cstore-insights")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "cstore-insights"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := baseConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// Slice defaults are applied after unmarshalling so a file value replaces
// them instead of being merged element-wise.
var (
	defaultMonths       = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	defaultPaymentTypes = []string{"CASH", "CREDIT"}
)

// normalize fills slice defaults, upper-cases payment types and
// lower-cases enum fields.
func (c *Config) normalize() {
	if len(c.Filters.Months) == 0 {
		c.Filters.Months = append([]int(nil), defaultMonths...)
	}
	if len(c.Reports.PaymentTypes) == 0 {
		c.Reports.PaymentTypes = append([]string(nil), defaultPaymentTypes...)
	}
	for i, pt := range c.Reports.PaymentTypes {
		c.Reports.PaymentTypes[i] = strings.ToUpper(strings.TrimSpace(pt))
	}
	c.Data.Source = strings.ToLower(strings.TrimSpace(c.Data.Source))
	c.Enrich.Memo = strings.ToLower(strings.TrimSpace(c.Enrich.Memo))
}

// Validate checks that the dataset source is usable.
func (c *Config) Validate() error {
	switch c.Data.Source {
	case SourceCSV:
		if c.Data.Dir == "" {
			return fmt.Errorf("data directory is required for the csv source")
		}
	case SourcePostgres:
		if c.Data.Connection == "" {
			return fmt.Errorf("connection string is required for the postgres source")
		}
	default:
		return fmt.Errorf("data source must be 'csv' or 'postgres'")
	}
	if len(c.Filters.Months) == 0 {
		return fmt.Errorf("at least one month must be selected")
	}
	for _, m := range c.Filters.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("month %d is out of range 1-12", m)
		}
	}
	return nil
}

// ValidateEnrich checks configuration required for the enrichment pipeline.
func (c *Config) ValidateEnrich() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Enrich.CacheDir == "" {
		return fmt.Errorf("enrich cache_dir is required")
	}
	if c.Enrich.Workers < 1 {
		return fmt.Errorf("enrich workers must be at least 1")
	}
	if c.Enrich.RequestDelay < 0 {
		return fmt.Errorf("enrich request_delay must be non-negative")
	}
	if c.Census.GeocoderURL == "" || c.Census.ACSURL == "" {
		return fmt.Errorf("census geocoder_url and acs_url are required")
	}
	switch c.Enrich.Memo {
	case MemoMemory, MemoNone:
	case MemoRedis:
		if c.Enrich.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis memo")
		}
	default:
		return fmt.Errorf("enrich memo must be 'memory', 'redis' or 'none'")
	}
	return nil
}

// ValidateServe checks configuration required for the serve command.
func (c *Config) ValidateServe() error {
	if err := c.ValidateEnrich(); err != nil {
		return err
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server listen address is required")
	}
	return nil
}

// ValidateGenerate checks configuration required for dataset generation.
func (c *Config) ValidateGenerate() error {
	if c.Generate.Stores < 1 {
		return fmt.Errorf("generate stores must be at least 1")
	}
	if c.Generate.Products < 10 {
		return fmt.Errorf("generate products must be at least 10")
	}
	if c.Generate.Days < 1 {
		return fmt.Errorf("generate days must be at least 1")
	}
	if c.Generate.TransactionsPerDay < 1 {
		return fmt.Errorf("generate transactions_per_day must be at least 1")
	}
	return nil
}

// ValidateInit checks configuration required for seeding a Postgres database.
func (c *Config) ValidateInit() error {
	if c.Data.Connection == "" {
		return fmt.Errorf("connection string is required for init")
	}
	return c.ValidateGenerate()
}
