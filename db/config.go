// Package db provides the table store backing the pricing snapshots.
package db

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains database connection settings
type Config struct {
	// Driver selects the backend (postgres, sqlite)
	Driver string `json:"driver" mapstructure:"driver"`

	// URL is a full connection string; it wins over the discrete fields
	URL string `json:"url,omitempty" mapstructure:"url"`

	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password,omitempty" mapstructure:"password"`
	Name     string `json:"name" mapstructure:"name"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`

	// Path is the SQLite database file
	Path string `json:"path" mapstructure:"path"`

	MaxOpenConns    int           `json:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`

	// LogLevel is the SQL log level (silent, error, warn, info)
	LogLevel string `json:"log_level" mapstructure:"log_level"`
}

// DefaultConfig returns a local SQLite configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		Host:            "localhost",
		Port:            5432,
		User:            "sda",
		Name:            "sda_calculator",
		SSLMode:         "disable",
		Path:            "sda.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		LogLevel:        "silent",
	}
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.URL == "" && (c.Host == "" || c.Name == "") {
			return fmt.Errorf("postgres requires url or host and name")
		}
	case DriverSQLite:
		if c.URL == "" && c.Path == "" {
			return fmt.Errorf("sqlite requires url or path")
		}
	default:
		return fmt.Errorf("unsupported database driver %q (expected %s or %s)", c.Driver, DriverPostgres, DriverSQLite)
	}
	return nil
}

// DSN returns the driver connection string
func (c Config) DSN() string {
	if c.URL != "" {
		if c.Driver == DriverSQLite {
			return strings.TrimPrefix(c.URL, "sqlite://")
		}
		return c.URL
	}
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Redacted returns the DSN with any password masked, for logging
func (c Config) Redacted() string {
	if c.Driver == DriverSQLite {
		return c.DSN()
	}
	if c.URL != "" {
		if u, err := url.Parse(c.URL); err == nil {
			return u.Redacted()
		}
		return "<unparseable url>"
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Name, c.SSLMode)
}

// DriverFromURL infers a driver from a DATABASE_URL style string
func DriverFromURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(raw, "sqlite://"), strings.HasSuffix(raw, ".db"), strings.HasPrefix(raw, "file:"):
		return DriverSQLite
	default:
		return ""
	}
}
