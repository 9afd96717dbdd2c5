package cache

import (
	"context"

	"github.com/jonwraymond/zerocache/observe"
)

// InstrumentStore wraps every operation of store with mw: a span, an
// operation-duration metric and a log line. A nil mw returns store as is.
func InstrumentStore(store Store, mw *observe.Middleware) Store {
	if store == nil || mw == nil {
		return store
	}
	if is, ok := store.(*instrumentedStore); ok {
		store = is.next
	}
	return &instrumentedStore{next: store, mw: mw}
}

type instrumentedStore struct {
	next Store
	mw   *observe.Middleware
}

func (s *instrumentedStore) Get(ctx context.Context, key string) (*Entry, error) {
	var e *Entry
	err := s.mw.Wrap(observe.CallMeta{Op: "get", Key: key}, func(ctx context.Context) error {
		var err error
		e, err = s.next.Get(ctx, key)
		return err
	})(ctx)
	return e, err
}

func (s *instrumentedStore) Put(ctx context.Context, e Entry) error {
	return s.mw.Wrap(observe.CallMeta{Op: "put", Key: e.Key}, func(ctx context.Context) error {
		return s.next.Put(ctx, e)
	})(ctx)
}

func (s *instrumentedStore) Delete(ctx context.Context, key string) error {
	return s.mw.Wrap(observe.CallMeta{Op: "delete", Key: key}, func(ctx context.Context) error {
		return s.next.Delete(ctx, key)
	})(ctx)
}

func (s *instrumentedStore) DeleteByTags(ctx context.Context, tags TagSet, match TagMatch) error {
	meta := observe.CallMeta{Op: "invalidate", Tags: tags.Tags()}
	return s.mw.Wrap(meta, func(ctx context.Context) error {
		return s.next.DeleteByTags(ctx, tags, match)
	})(ctx)
}

func (s *instrumentedStore) DeleteAll(ctx context.Context) error {
	return s.mw.Wrap(observe.CallMeta{Op: "clear"}, s.next.DeleteAll)(ctx)
}

func (s *instrumentedStore) DeleteExpired(ctx context.Context, now int64) error {
	return s.mw.Wrap(observe.CallMeta{Op: "prune"}, func(ctx context.Context) error {
		return s.next.DeleteExpired(ctx, now)
	})(ctx)
}

// Ping passes through uninstrumented.
func (s *instrumentedStore) Ping(ctx context.Context) error {
	if p, ok := s.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

var (
	_ Store  = (*instrumentedStore)(nil)
	_ Pinger = (*instrumentedStore)(nil)
)
