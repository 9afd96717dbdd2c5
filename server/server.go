package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/jonwraymond/zerocache/auth"
	"github.com/jonwraymond/zerocache/health"
	"github.com/jonwraymond/zerocache/observe"
	"github.com/jonwraymond/zerocache/secret"
)

// Server is the substitute backend.
type Server struct {
	cfg     Config
	db      *gorm.DB
	ownDB   bool
	exec    *Executor
	logger  observe.Logger
	tracer  observe.Tracer
	metrics *Metrics
	health  *health.Aggregator
	authn   auth.Authenticator
	authz   auth.Authorizer
	janitor *Janitor
	router  chi.Router
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger   observe.Logger
	tracer   observe.Tracer
	db       *gorm.DB
	resolver *secret.Resolver
}

// WithLogger overrides the logger built from Config.LogLevel.
func WithLogger(l observe.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithTracer records a span per statement, batch and dump.
func WithTracer(t observe.Tracer) Option {
	return func(o *serverOptions) { o.tracer = t }
}

// WithDB serves an existing database instead of opening Config.DBPath.
// Close leaves it open.
func WithDB(db *gorm.DB) Option {
	return func(o *serverOptions) { o.db = db }
}

// WithSecretResolver resolves auth secrets. Default:
// secret.NewDefaultResolver.
func WithSecretResolver(r *secret.Resolver) Option {
	return func(o *serverOptions) { o.resolver = r }
}

// New opens the database, migrates the cache table and builds the router.
func New(ctx context.Context, cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observe.NewLogger(cfg.LogLevel)
	}
	if o.tracer == nil {
		o.tracer = observe.NopTracer()
	}
	if o.resolver == nil {
		r, err := secret.NewDefaultResolver()
		if err != nil {
			return nil, err
		}
		defer func() { _ = r.Close() }()
		o.resolver = r
	}

	authn, err := auth.Build(ctx, cfg.Auth, o.resolver)
	if err != nil {
		return nil, fmt.Errorf("%w: auth: %w", ErrInvalidConfig, err)
	}

	s := &Server{
		cfg:    cfg,
		db:     o.db,
		logger: o.logger,
		tracer: o.tracer,
		authn:  authn,
		authz:  cfg.Auth.Authorizer(),
	}
	if s.db == nil {
		if s.db, err = OpenDB(cfg.DBPath); err != nil {
			return nil, err
		}
		s.ownDB = true
	}
	if err := Migrate(ctx, s.db, cfg.Table); err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.metrics, err = NewMetrics(); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.exec = NewExecutor(s.db, cfg.MaxRows)
	s.janitor = NewJanitor(s.db, cfg.Table, cfg.JanitorInterval, s.logger, s.metrics)
	s.health = health.NewAggregator(0)
	s.health.Register(health.NewPingChecker("sqlite", dbPinger{s.db}, cfg.SlowPing))
	s.router = s.routes()

	if authn == nil {
		s.logger.Warn(ctx, "authentication disabled; every request is anonymous")
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID, middleware.RealIP, s.metrics.Middleware, logRequests(s.logger), middleware.Recoverer)

	health.Routes(r, s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.authn, s.logger), deadline(s.cfg.RequestTimeout))
		r.Post("/", s.handleStatements)
		r.With(auth.Require(s.authz, auth.ActionDump)).Post("/dump", s.handleDump)
		r.With(auth.Require(s.authz, auth.ActionAsk)).Post("/ask", s.handleAsk)
	})
	return r
}

// deadline bounds the request context.
func deadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// DB returns the database handle.
func (s *Server) DB() *gorm.DB { return s.db }

// Janitor returns the expired-row janitor.
func (s *Server) Janitor() *Janitor { return s.janitor }

// Metrics returns the Prometheus collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Run serves on Config.Addr and runs the janitor until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info(gctx, "server listening", observe.F("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.janitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		s.logger.Info(shutdownCtx, "server stopped")
		return nil
	})
	return g.Wait()
}

// Close releases the database when New opened it.
func (s *Server) Close() error {
	if !s.ownDB || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
