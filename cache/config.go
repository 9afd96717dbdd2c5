package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/jonwraymond/zerocache/dzero"
	"github.com/jonwraymond/zerocache/observe"
	"github.com/jonwraymond/zerocache/secret"
)

// TokenEnv is read when Config.Token is empty.
const TokenEnv = "DZERO_TOKEN"

// Config configures a Cache backed by a dzero endpoint.
type Config struct {
	// Token authenticates against the endpoint. It may use ${VAR} expansion
	// or a secret reference such as "secretref:file:/run/secrets/dzero".
	// Empty means the DZERO_TOKEN environment variable.
	Token string

	// BaseURL of the endpoint. Default: dzero.DefaultBaseURL
	BaseURL string

	// TokenHeader names the credential header. Default: "token"
	TokenHeader string

	// Debug logs every outcome at debug level; otherwise only warnings.
	Debug bool

	// Table overrides the table name. Default: "cache"
	Table string

	// Timeout bounds each attempt. Default: dzero.DefaultTimeout
	Timeout time.Duration

	// Attempts is the number of tries per transport call. Default: 3
	Attempts int

	// Migrate creates the table on Open when it does not exist.
	Migrate bool

	// Policy overrides admission and expiry. Zero fields take defaults.
	Policy Policy
}

// Validate checks the configuration without resolving the token.
func (c *Config) Validate() error {
	var errs []error
	if c.Table != "" && !identPattern.MatchString(c.Table) {
		errs = append(errs, fmt.Errorf("table %q is not a plain identifier", c.Table))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.Attempts < 0 {
		errs = append(errs, errors.New("attempts must not be negative"))
	}
	if c.Policy.MaxRevalidate > MaxRevalidate {
		errs = append(errs, fmt.Errorf("max revalidate exceeds %s", MaxRevalidate))
	}
	if p := c.Policy.normalized(); p.DefaultRevalidate > p.MaxRevalidate {
		errs = append(errs, fmt.Errorf("default revalidate %s exceeds max revalidate %s", p.DefaultRevalidate, p.MaxRevalidate))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

// ResolveToken returns the credential after environment expansion and
// secret resolution.
func (c *Config) ResolveToken(ctx context.Context, r *secret.Resolver) (string, error) {
	raw := c.Token
	if raw == "" {
		raw = "${" + TokenEnv + "}"
	}
	token, err := r.ResolveValue(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", dzero.ErrMissingToken, err)
	}
	if token == "" {
		return "", dzero.ErrMissingToken
	}
	return token, nil
}

// Open builds a Cache over a dzero client. opts are applied after the
// defaults Open derives from cfg. Transport spans go to the global
// OpenTelemetry tracer provider.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolver, err := secret.NewDefaultResolver()
	if err != nil {
		return nil, err
	}
	defer func() { _ = resolver.Close() }()

	token, err := cfg.ResolveToken(ctx, resolver)
	if err != nil {
		return nil, err
	}

	level := "warn"
	if cfg.Debug {
		level = "debug"
	}
	logger := observe.NewLogger(level)

	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 3
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = dzero.DefaultTimeout
	}

	client, err := dzero.New(dzero.Config{
		BaseURL:     cfg.BaseURL,
		Token:       token,
		TokenHeader: cfg.TokenHeader,
		Timeout:     timeout,
		Executor:    dzero.DefaultExecutor(attempts, timeout),
		Logger:      logger,
		Tracer:      otel.Tracer("github.com/jonwraymond/zerocache/dzero"),
	})
	if err != nil {
		return nil, err
	}

	var sqlOpts []SQLOption
	if cfg.Table != "" {
		sqlOpts = append(sqlOpts, WithTable(cfg.Table))
	}
	store, err := NewSQLStore(client, sqlOpts...)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	all := append([]Option{WithLogger(logger), WithPolicy(cfg.Policy)}, opts...)
	return New(store, all...)
}
