package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/zerocache/observe"
)

// Cache owns a store gateway and the policy applied to cached calls.
// It is safe for concurrent use.
type Cache struct {
	store   Store
	keyer   Keyer
	codec   Codec
	policy  Policy
	logger  observe.Logger
	metrics observe.Metrics
	tracer  observe.Tracer
	now     func() time.Time
	flight  *singleflight.Group

	observer   observe.Observer
	instrument bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithKeyer overrides the key deriver. Default: DefaultKeyer.
func WithKeyer(k Keyer) Option {
	return func(c *Cache) {
		if k != nil {
			c.keyer = k
		}
	}
}

// WithCodec overrides the payload codec. Default: DeflateCodec.
func WithCodec(codec Codec) Option {
	return func(c *Cache) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithPolicy sets the admission and expiry policy. Zero fields take their
// defaults.
func WithPolicy(p Policy) Option {
	return func(c *Cache) { c.policy = p.normalized() }
}

// WithLogger sets the logger for fallbacks and outcomes.
func WithLogger(l observe.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observe.Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracer sets the tracer for call spans.
func WithTracer(t observe.Tracer) Option {
	return func(c *Cache) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithObserver takes logger, metrics and tracer from obs, and instruments
// the store with them.
func WithObserver(obs observe.Observer) Option {
	return func(c *Cache) { c.observer = obs }
}

// WithStoreInstrumentation wraps the store with the configured telemetry
// (see InstrumentStore).
func WithStoreInstrumentation() Option {
	return func(c *Cache) { c.instrument = true }
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSingleFlight collapses concurrent calls for the same key into one
// execution whose result every caller shares. Callers after the first
// share the first caller's context.
func WithSingleFlight() Option {
	return func(c *Cache) { c.flight = &singleflight.Group{} }
}

// New creates a Cache over store.
func New(store Store, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	c := &Cache{
		store:   store,
		keyer:   NewDefaultKeyer(),
		codec:   NewDeflateCodec(),
		policy:  DefaultPolicy(),
		logger:  observe.NopLogger(),
		metrics: observe.NopMetrics(),
		tracer:  observe.NopTracer(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.observer != nil {
		m, err := observe.NewMetrics(c.observer.Meter())
		if err != nil {
			return nil, fmt.Errorf("cache: metrics: %w", err)
		}
		c.metrics = m
		c.tracer = observe.NewTracer(c.observer.Tracer())
		c.logger = c.observer.Logger()
		c.instrument = true
	}
	if c.instrument {
		c.store = InstrumentStore(c.store, observe.NewMiddleware(c.tracer, c.metrics, c.logger))
	}
	return c, nil
}

// Store returns the store gateway in use.
func (c *Cache) Store() Store { return c.store }

// Policy returns the policy in use.
func (c *Cache) Policy() Policy { return c.policy }

// Key derives the storage key for id, tags and opts, validating tags the
// same way a cached call does.
func (c *Cache) Key(id string, tags []string, opts *KeyOptions) (string, error) {
	ts, err := NewTagSet(tags...)
	if err != nil {
		return "", err
	}
	return c.keyer.Key(id, ts, opts)
}

// InvalidateByTag deletes every row carrying all of tags, matched with the
// policy's TagMatch. Store errors are returned, not swallowed.
func (c *Cache) InvalidateByTag(ctx context.Context, tags ...string) error {
	return c.InvalidateByTagMatch(ctx, c.policy.Match, tags...)
}

// InvalidateByTagMatch is InvalidateByTag with an explicit match mode.
func (c *Cache) InvalidateByTagMatch(ctx context.Context, match TagMatch, tags ...string) error {
	ts, err := NewTagSet(tags...)
	if err != nil {
		return err
	}
	if ts.Len() == 0 {
		return fmt.Errorf("%w: no tags to invalidate", ErrInvalidArgument)
	}
	if err := c.store.DeleteByTags(ctx, ts, match); err != nil {
		return err
	}
	c.logger.Debug(ctx, "cache invalidated",
		observe.F("tags", ts.Tags()), observe.F("match", match.String()))
	return nil
}

// Clear deletes every row.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.DeleteAll(ctx); err != nil {
		return err
	}
	c.logger.Debug(ctx, "cache cleared")
	return nil
}

// Delete removes the row stored under key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Prune deletes every expired row.
func (c *Cache) Prune(ctx context.Context) error {
	return c.store.DeleteExpired(ctx, c.now().UnixMilli())
}

// Ping reports whether the store is reachable. Stores that cannot be
// probed always succeed.
func (c *Cache) Ping(ctx context.Context) error {
	if p, ok := c.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// fallback logs and counts a swallowed failure.
func (c *Cache) fallback(ctx context.Context, meta observe.CallMeta, stage string, err error) {
	c.metrics.RecordFallback(ctx, meta, err)
	c.logger.WithCall(meta).Warn(ctx, "cache fallback",
		observe.F("stage", stage), observe.F("error", err))
}
