// Package config provides configuration management.
package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"sda-calculator/core/output"
	"sda-calculator/core/pricing"
	"sda-calculator/db"
	"sda-calculator/internal/errors"
	"sda-calculator/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. SDA_SERVER_ADDR
const EnvPrefix = "SDA"

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version" mapstructure:"version"`

	// Server contains HTTP server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Database contains table store settings
	Database db.Config `json:"database" mapstructure:"database"`

	// Pricing contains pricing engine settings
	Pricing PricingConfig `json:"pricing" mapstructure:"pricing"`

	// Refresh controls periodic snapshot reloads
	Refresh RefreshConfig `json:"refresh" mapstructure:"refresh"`

	// Client contains remote API settings for the CLI
	Client ClientConfig `json:"client" mapstructure:"client"`

	// Output contains output configuration
	Output OutputConfig `json:"output" mapstructure:"output"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	CORSOrigins     []string      `json:"cors_origins" mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// AmbiguityPolicy is strict or first
	AmbiguityPolicy string `json:"ambiguity_policy" mapstructure:"ambiguity_policy"`

	// SeedFile is an HCL reference data file; empty uses the built-in seed
	SeedFile string `json:"seed_file,omitempty" mapstructure:"seed_file"`

	// SeedOnStart loads the reference seed when the tables are empty
	SeedOnStart bool `json:"seed_on_start" mapstructure:"seed_on_start"`

	// HistoryDays keeps rows retired within this many days; 0 keeps all
	HistoryDays int `json:"history_days" mapstructure:"history_days"`
}

// RefreshConfig controls periodic snapshot reloads
type RefreshConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"`
}

// ClientConfig contains remote API settings
type ClientConfig struct {
	BaseURL string        `json:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// DefaultFormat is the default output format
	DefaultFormat string `json:"default_format" mapstructure:"default_format"`

	// ShowLineage prints the formula steps
	ShowLineage bool `json:"show_lineage" mapstructure:"show_lineage"`
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	database := db.DefaultConfig()
	database.Path = filepath.Join(homeDir, ".sda-calculator", "sda.db")

	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			Addr:            ":8000",
			CORSOrigins:     []string{"*"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: database,
		Pricing: PricingConfig{
			AmbiguityPolicy: string(pricing.PolicyStrict),
			SeedOnStart:     true,
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Schedule: "@every 10m",
		},
		Client: ClientConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Output: OutputConfig{
			DefaultFormat: string(output.FormatCLI),
			ShowLineage:   false,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if _, err := pricing.ParseAmbiguityPolicy(c.Pricing.AmbiguityPolicy); err != nil {
		return errors.Config("pricing.ambiguity_policy", err)
	}
	if err := c.Database.Validate(); err != nil {
		return errors.Config("database", err)
	}
	if c.Refresh.Enabled && strings.TrimSpace(c.Refresh.Schedule) == "" {
		return errors.Config("refresh.schedule is required when refresh is enabled", nil)
	}
	switch output.Format(c.Output.DefaultFormat) {
	case output.FormatCLI, output.FormatJSON:
	default:
		return errors.Config(fmt.Sprintf("output.default_format %q is not cli or json", c.Output.DefaultFormat), nil)
	}
	return nil
}

// Load reads configuration from an optional file, then applies .env and
// SDA_* environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(os.Getenv("SDA_ENV_FILE")); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !stderrors.Is(err, os.ErrNotExist) {
				return nil, errors.Config(fmt.Sprintf("read config %s", path), err)
			}
		}
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.Config("decode config", err)
	}

	// DATABASE_URL is honoured as-is, like most hosting platforms set it
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
		if driver := db.DriverFromURL(url); driver != "" {
			config.Database.Driver = driver
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadDotEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !stderrors.Is(err, os.ErrNotExist) {
			return errors.Config(fmt.Sprintf("load env file %s", envFile), err)
		}
		return nil
	}
	// a missing .env is fine
	_ = godotenv.Load()
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.log_level", d.Database.LogLevel)

	v.SetDefault("pricing.ambiguity_policy", d.Pricing.AmbiguityPolicy)
	v.SetDefault("pricing.seed_file", d.Pricing.SeedFile)
	v.SetDefault("pricing.seed_on_start", d.Pricing.SeedOnStart)
	v.SetDefault("pricing.history_days", d.Pricing.HistoryDays)

	v.SetDefault("refresh.enabled", d.Refresh.Enabled)
	v.SetDefault("refresh.schedule", d.Refresh.Schedule)

	v.SetDefault("client.base_url", d.Client.BaseURL)
	v.SetDefault("client.timeout", d.Client.Timeout)

	v.SetDefault("output.default_format", d.Output.DefaultFormat)
	v.SetDefault("output.show_lineage", d.Output.ShowLineage)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.rotation.max_size_mb", d.Logging.Rotation.MaxSizeMB)
	v.SetDefault("logging.rotation.max_backups", d.Logging.Rotation.MaxBackups)
	v.SetDefault("logging.rotation.max_age_days", d.Logging.Rotation.MaxAgeDays)
	v.SetDefault("logging.rotation.compress", d.Logging.Rotation.Compress)
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
