package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/zerocache/observe"
	"github.com/jonwraymond/zerocache/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the SQL endpoint",
		Long: `Serve the dzero-compatible SQL endpoint over a SQLite database.

The endpoint accepts single statements and batches on POST /, dumps on
POST /dump, and exposes /healthz, /readyz and /metrics. Expired rows are
pruned in the background. With telemetry.metrics set to "prometheus"
the OpenTelemetry series are served on /metrics as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := a.cfg.Server
			obs, done, err := a.observer(cmd, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer done()

			logger := observe.NewLoggerWithWriter(cfg.LogLevel, cmd.ErrOrStderr())
			var tracer observe.Tracer
			if obs != nil {
				logger = obs.Logger()
				tracer = observe.NewTracer(obs.Tracer())
			}
			s, err := server.New(ctx, cfg, server.WithLogger(logger), server.WithTracer(tracer))
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			return s.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", "", "listen address (default "+server.DefaultAddr+")")
	flags.String("db", "", "SQLite database path; empty keeps the data in memory")
	flags.String("log-level", "", "debug, info, warn or error")
	bindFlags(a.v, flags, map[string]string{
		"server.addr":      "addr",
		"server.db_path":   "db",
		"server.log_level": "log-level",
	})
	return cmd
}
