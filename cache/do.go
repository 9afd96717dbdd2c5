package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/zerocache/observe"
)

// Lookup outcomes reported to metrics and spans.
const (
	OutcomeHit   = "hit"
	OutcomeStale = "stale"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// Func is a cacheable computation.
type Func[T any] func(ctx context.Context) (T, error)

// Options are the per-call options.
//
// A nil *Options and a non-nil one with no fields set derive different
// keys; Revalidate is part of the key, the other fields are not.
type Options[T any] struct {
	// Revalidate is the lifetime of a stored result. Nil selects the
	// policy default; values outside (0, MaxRevalidate] are rejected.
	Revalidate *time.Duration

	// WaitUntil defers the stale-row delete and the admission write.
	// Without it both run before the call returns.
	WaitUntil WaitUntil

	// Parser decodes a stored payload. Default: json.Unmarshal.
	Parser func(data string) (T, error)

	// ShouldCache vetoes admission of a computed result.
	ShouldCache func(v T) bool
}

// Do runs fn through c.
//
// A fresh stored result is returned without calling fn. Otherwise fn runs
// and an admissible result is stored. Failures of the cache itself are
// logged and swallowed: the call then returns fn's result, calling fn if it
// has not run yet. Errors from fn are returned unchanged and are never
// cached. Only ErrInvalidArgument originates from the cache.
func Do[T any](ctx context.Context, c *Cache, id string, fn Func[T], tags []string, opts *Options[T]) (T, error) {
	var zero T
	if c == nil {
		return zero, fmt.Errorf("%w: cache is nil", ErrInvalidArgument)
	}
	p, err := c.prepare(id, tags, revalidateOf(opts))
	if err != nil {
		return zero, err
	}
	return run(ctx, c, p, fn, opts)
}

// Wrap validates and derives the key once and returns a Func that runs fn
// through c on every invocation.
func Wrap[T any](c *Cache, id string, fn Func[T], tags []string, opts *Options[T]) (Func[T], error) {
	if c == nil {
		return nil, fmt.Errorf("%w: cache is nil", ErrInvalidArgument)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: func is nil", ErrInvalidArgument)
	}
	p, err := c.prepare(id, tags, revalidateOf(opts))
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (T, error) {
		return run(ctx, c, p, fn, opts)
	}, nil
}

// prepared is a validated call: its key, tags and lifetime.
type prepared struct {
	id   string
	key  string
	tags TagSet
	ttl  time.Duration
}

func revalidateOf[T any](opts *Options[T]) *KeyOptions {
	if opts == nil {
		return nil
	}
	return &KeyOptions{Revalidate: opts.Revalidate}
}

func (c *Cache) prepare(id string, tags []string, ko *KeyOptions) (prepared, error) {
	ts, err := NewTagSet(tags...)
	if err != nil {
		return prepared{}, err
	}
	var override *time.Duration
	if ko != nil {
		override = ko.Revalidate
	}
	ttl, err := c.policy.EffectiveTTL(override)
	if err != nil {
		return prepared{}, err
	}
	key, err := c.keyer.Key(id, ts, ko)
	if err != nil {
		return prepared{}, err
	}
	return prepared{id: id, key: key, tags: ts, ttl: ttl}, nil
}

func run[T any](ctx context.Context, c *Cache, p prepared, fn Func[T], opts *Options[T]) (T, error) {
	if fn == nil {
		var zero T
		return zero, fmt.Errorf("%w: func is nil", ErrInvalidArgument)
	}
	var o Options[T]
	if opts != nil {
		o = *opts
	}

	if c.flight == nil {
		return execute(ctx, c, p, fn, o)
	}
	v, err, _ := c.flight.Do(p.key, func() (any, error) {
		return execute(ctx, c, p, fn, o)
	})
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, err
	}
	return t, err
}

func execute[T any](ctx context.Context, c *Cache, p prepared, fn Func[T], o Options[T]) (result T, err error) {
	meta := observe.CallMeta{Op: "call", ID: p.id, Key: p.key, Tags: p.tags.Tags()}
	ctx, span := c.tracer.StartSpan(ctx, meta)
	defer func() { c.tracer.EndSpan(span, err) }()

	log := c.logger.WithCall(meta)
	outcome := func(name string) {
		span.SetAttributes(attribute.String("cache.outcome", name))
		c.metrics.RecordLookup(ctx, meta, name)
		log.Debug(ctx, "cache lookup", observe.F("outcome", name))
	}

	entry, err := c.store.Get(ctx, p.key)
	if errors.Is(err, ErrMalformedEntry) {
		// The replacing write below overwrites the bad row.
		log.Warn(ctx, "malformed row treated as miss", observe.F("error", err.Error()))
		entry, err = nil, nil
	}
	if err != nil {
		outcome(OutcomeError)
		c.fallback(ctx, meta, "lookup", err)
		return fn(ctx)
	}

	stale := false
	// A row without data counts as absent.
	if entry != nil && entry.Data != "" {
		if entry.Fresh(c.now()) {
			v, derr := decode(c.codec, entry.Data, o.Parser)
			if derr == nil {
				outcome(OutcomeHit)
				return v, nil
			}
			outcome(OutcomeError)
			c.fallback(ctx, meta, "decode", derr)
			return fn(ctx)
		}

		outcome(OutcomeStale)
		if o.WaitUntil == nil {
			if derr := c.store.Delete(ctx, p.key); derr != nil {
				c.fallback(ctx, meta, "expire", derr)
				return fn(ctx)
			}
		} else {
			// Deferred: a replacing write makes the delete unnecessary,
			// and running it after that write would remove the new row.
			stale = true
		}
	} else {
		outcome(OutcomeMiss)
	}

	start := time.Now()
	result, err = fn(ctx)
	if err != nil {
		if stale {
			c.expireLater(ctx, meta, p.key, o.WaitUntil)
		}
		return result, err
	}
	log.Debug(ctx, "computed", observe.F("duration_ms", float64(time.Since(start).Microseconds())/1000))

	if !admit(ctx, c, meta, span, p, result, o) && stale {
		c.expireLater(ctx, meta, p.key, o.WaitUntil)
	}
	return result, nil
}

// decode turns a stored data column back into a result.
func decode[T any](codec Codec, data string, parser func(string) (T, error)) (T, error) {
	var v T
	raw, err := DecodeBinary(data)
	if err != nil {
		return v, err
	}
	text, err := codec.Decompress(raw)
	if err != nil {
		return v, err
	}
	if parser != nil {
		v, err = parser(text)
	} else {
		err = json.Unmarshal([]byte(text), &v)
	}
	if err != nil {
		return v, fmt.Errorf("%w: parse: %w", ErrCodecFailure, err)
	}
	return v, nil
}

// expireLater schedules the delete of a stale row.
func (c *Cache) expireLater(ctx context.Context, meta observe.CallMeta, key string, waitUntil WaitUntil) {
	dctx := context.WithoutCancel(ctx)
	waitUntil(func() error {
		err := c.store.Delete(dctx, key)
		if err != nil {
			c.fallback(dctx, meta, "expire", err)
		}
		return err
	})
}

// admit stores v when the policy and ShouldCache allow it, and reports
// whether a write was issued. Failures are swallowed.
func admit[T any](ctx context.Context, c *Cache, meta observe.CallMeta, span trace.Span, p prepared, v T, o Options[T]) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.fallback(ctx, meta, "encode", fmt.Errorf("%w: %w", ErrCodecFailure, err))
		return false
	}
	ok := c.policy.Admit(payload) && (o.ShouldCache == nil || o.ShouldCache(v))
	span.SetAttributes(attribute.Bool("cache.admitted", ok))
	c.metrics.RecordAdmission(ctx, meta, ok, len(payload))
	if !ok {
		c.logger.WithCall(meta).Debug(ctx, "result not admitted", observe.F("bytes", len(payload)))
		return false
	}
	return c.write(ctx, meta, p, payload, o.WaitUntil)
}

func (c *Cache) write(ctx context.Context, meta observe.CallMeta, p prepared, payload []byte, waitUntil WaitUntil) bool {
	compressed, err := c.codec.Compress(payload)
	if err != nil {
		c.fallback(ctx, meta, "compress", err)
		return false
	}
	entry := Entry{
		Key:  p.key,
		Data: EncodeBinary(compressed),
		Tags: p.tags.String(),
		TTL:  Expiry(c.now(), p.ttl),
	}

	if waitUntil == nil {
		if err := c.store.Put(ctx, entry); err != nil {
			c.fallback(ctx, meta, "write", err)
		}
		return true
	}
	wctx := context.WithoutCancel(ctx)
	waitUntil(func() error {
		err := c.store.Put(wctx, entry)
		if err != nil {
			c.fallback(wctx, meta, "write", err)
		}
		return err
	})
	return true
}
