package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonwraymond/zerocache/cache"
	"github.com/jonwraymond/zerocache/observe"
)

// shutdownTimeout bounds the final telemetry flush.
const shutdownTimeout = 5 * time.Second

// app carries the configuration shared by every subcommand.
type app struct {
	v          *viper.Viper
	version    string
	configPath string
	cfg        *Config
}

// NewRootCmd creates the zerocache command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{v: newViper(), version: version}

	cmd := &cobra.Command{
		Use:           "zerocache",
		Short:         "Tag-aware result cache over a dzero SQL endpoint",
		Long:          "zerocache serves a dzero-compatible SQL endpoint and manages the cache rows stored behind it.",
		Version:       version,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig(a.v, a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (yaml, toml or json)")
	flags.String("base-url", "", "dzero endpoint")
	flags.String("token", "", "endpoint credential; ${VAR} and secretref: values are resolved")
	flags.String("table", "", "cache table")
	flags.Bool("debug", false, "enable debug logging")
	bindFlags(a.v, flags, map[string]string{
		"client.base_url": "base-url",
		"client.token":    "token",
		"client.table":    "table",
		"client.debug":    "debug",
	})

	cmd.AddCommand(
		newServeCmd(a),
		newInvalidateCmd(a),
		newClearCmd(a),
		newPruneCmd(a),
		newGetCmd(a),
		newPingCmd(a),
		newKeyCmd(),
		newTokenCmd(a),
	)
	return cmd
}

// openCache connects to the configured endpoint. done flushes telemetry
// and must be called once the command has finished with the cache.
func (a *app) openCache(cmd *cobra.Command) (*cache.Cache, func(), error) {
	cfg, err := a.cfg.Client.cacheConfig()
	if err != nil {
		return nil, nil, err
	}
	level := "warn"
	if cfg.Debug {
		level = "debug"
	}
	obs, done, err := a.observer(cmd, level)
	if err != nil {
		return nil, nil, err
	}
	var opts []cache.Option
	if obs != nil {
		opts = append(opts, cache.WithObserver(obs))
	}
	c, err := cache.Open(cmd.Context(), cfg, opts...)
	if err != nil {
		done()
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	return c, done, nil
}

// observer builds the configured telemetry. It returns a nil Observer when
// no exporter is configured.
func (a *app) observer(cmd *cobra.Command, level string) (observe.Observer, func(), error) {
	t := a.cfg.Telemetry
	if !t.Enabled() {
		return nil, func() {}, nil
	}
	obs, err := observe.NewObserver(cmd.Context(), t.observeConfig(a.version, level, cmd.ErrOrStderr()))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: %w", err)
	}
	done := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
		defer cancel()
		if err := obs.Shutdown(ctx); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "telemetry shutdown:", err)
		}
	}
	return obs, done, nil
}

const rootCmdExample = `  # Serve the endpoint on :8080 backed by ./zerocache.db
  zerocache serve --db zerocache.db

  # Drop every cached result tagged user:42
  zerocache invalidate --tag user:42

  # Inspect a stored result
  zerocache get "$(zerocache key profile --tag user:42)"

  # Issue a JWT for a client
  zerocache token --subject worker --ttl 24h`
