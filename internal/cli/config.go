package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/jonwraymond/zerocache/cache"
	"github.com/jonwraymond/zerocache/dzero"
	"github.com/jonwraymond/zerocache/observe"
	"github.com/jonwraymond/zerocache/server"
)

// EnvPrefix prefixes environment overrides: ZEROCACHE_CLIENT_BASE_URL
// sets client.base_url.
const EnvPrefix = "ZEROCACHE"

// Config is the CLI configuration file.
type Config struct {
	Client    ClientConfig    `mapstructure:"client"`
	Server    server.Config   `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// TelemetryConfig selects OpenTelemetry exporters. An empty exporter name
// leaves that signal off.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	Tracing     string  `mapstructure:"tracing"` // otlp|jaeger|stdout|none
	SamplePct   float64 `mapstructure:"sample_pct"`
	Metrics     string  `mapstructure:"metrics"` // otlp|prometheus|stdout|none
}

// Enabled reports whether any signal is exported.
func (t TelemetryConfig) Enabled() bool {
	return t.Tracing != "" || t.Metrics != ""
}

func (t TelemetryConfig) observeConfig(version, level string, w io.Writer) observe.Config {
	return observe.Config{
		ServiceName: t.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   t.Tracing != "",
			Exporter:  t.Tracing,
			SamplePct: t.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  t.Metrics != "",
			Exporter: t.Metrics,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   level,
			Writer:  w,
		},
	}
}

// ClientConfig configures the cache commands.
type ClientConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	TokenHeader string        `mapstructure:"token_header"`
	Table       string        `mapstructure:"table"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Attempts    int           `mapstructure:"attempts"`
	Debug       bool          `mapstructure:"debug"`

	// Match is the tag match mode for invalidate: substring or exact.
	Match string `mapstructure:"match"`
}

// cacheConfig maps the client section onto cache.Config.
func (c ClientConfig) cacheConfig() (cache.Config, error) {
	cfg := cache.Config{
		Token:       c.Token,
		BaseURL:     c.BaseURL,
		TokenHeader: c.TokenHeader,
		Debug:       c.Debug,
		Table:       c.Table,
		Timeout:     c.Timeout,
		Attempts:    c.Attempts,
	}
	switch strings.ToLower(c.Match) {
	case "", "substring":
		cfg.Policy.Match = cache.MatchSubstring
	case "exact":
		cfg.Policy.Match = cache.MatchExact
	default:
		return cfg, fmt.Errorf("client.match: unknown mode %q", c.Match)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("client.base_url", dzero.DefaultBaseURL)
	v.SetDefault("client.token", "")
	v.SetDefault("client.token_header", dzero.DefaultTokenHeader)
	v.SetDefault("client.table", cache.DefaultTable)
	v.SetDefault("client.timeout", dzero.DefaultTimeout)
	v.SetDefault("client.attempts", 3)
	v.SetDefault("client.debug", false)
	v.SetDefault("client.match", "substring")

	v.SetDefault("telemetry.service_name", "zerocache")
	v.SetDefault("telemetry.tracing", "")
	v.SetDefault("telemetry.sample_pct", 1.0)
	v.SetDefault("telemetry.metrics", "")

	v.SetDefault("server.addr", server.DefaultAddr)
	v.SetDefault("server.db_path", "zerocache.db")
	v.SetDefault("server.table", cache.DefaultTable)
	v.SetDefault("server.max_body_bytes", server.DefaultMaxBodyBytes)
	v.SetDefault("server.max_rows", server.DefaultMaxRows)
	v.SetDefault("server.request_timeout", server.DefaultRequestTimeout)
	v.SetDefault("server.shutdown_timeout", server.DefaultShutdownTimeout)
	v.SetDefault("server.janitor_interval", server.DefaultJanitorInterval)
	v.SetDefault("server.slow_ping", server.DefaultSlowPing)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.auth.token_header", dzero.DefaultTokenHeader)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.jwt_issuer", "zerocache")
	v.SetDefault("server.auth.jwt_audience", "")
	v.SetDefault("server.auth.jwt_leeway", 30*time.Second)
}

// loadConfig reads path (when set) and decodes the merged configuration.
func loadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
