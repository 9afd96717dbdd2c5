package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/zerocache/auth"
	"github.com/jonwraymond/zerocache/cache"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultAddr            = ":8080"
	DefaultMaxBodyBytes    = 8 << 20
	DefaultMaxRows         = 10000
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultJanitorInterval = time.Minute
	DefaultSlowPing        = 250 * time.Millisecond
)

// Config configures a Server.
type Config struct {
	Addr string `mapstructure:"addr"`

	// DBPath is the SQLite file. Empty or ":memory:" keeps the database in
	// memory for the life of the Server.
	DBPath string `mapstructure:"db_path"`

	// Table is the cache table migrated on start. Default: "cache"
	Table string `mapstructure:"table"`

	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	MaxRows         int           `mapstructure:"max_rows"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// JanitorInterval is the prune period. Negative disables the janitor.
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`

	// SlowPing marks the database check degraded above this latency.
	SlowPing time.Duration `mapstructure:"slow_ping"`

	LogLevel string `mapstructure:"log_level"`

	Auth auth.Config `mapstructure:"auth"`
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Table != "" && !cache.ValidTableName(c.Table) {
		errs = append(errs, fmt.Errorf("table %q is not a plain identifier", c.Table))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("max_body_bytes must not be negative"))
	}
	if c.MaxRows < 0 {
		errs = append(errs, errors.New("max_rows must not be negative"))
	}
	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 || c.SlowPing < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Table == "" {
		c.Table = cache.DefaultTable
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.MaxRows == 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.JanitorInterval == 0 {
		c.JanitorInterval = DefaultJanitorInterval
	}
	if c.SlowPing == 0 {
		c.SlowPing = DefaultSlowPing
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}
