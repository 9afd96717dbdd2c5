package cache

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store with the same matching semantics as
// SQLStore. It backs tests and examples; it is not a local cache tier.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Get returns the row for key, or (nil, nil) when absent. Expired rows are
// returned as stored; expiry is the caller's decision.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Put stores e, replacing any row with the same key.
func (s *MemoryStore) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	s.mu.Lock()
	s.entries[e.Key] = e
	s.mu.Unlock()
	return nil
}

// Delete removes the row for key. Idempotent - no error on miss.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// DeleteByTags removes rows whose tags match every tag in tags.
func (s *MemoryStore) DeleteByTags(ctx context.Context, tags TagSet, match TagMatch) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	if tags.Len() == 0 {
		return fmt.Errorf("%w: no tags to invalidate", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if match.Matches(e.Tags, tags) {
			delete(s.entries, k)
		}
	}
	return nil
}

// DeleteAll removes every row.
func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	s.mu.Lock()
	clear(s.entries)
	s.mu.Unlock()
	return nil
}

// DeleteExpired removes rows with TTL before now.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now int64) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.TTL < now {
			delete(s.entries, k)
		}
	}
	return nil
}

// canceled reports a done context the way other stores report transport
// failures.
func canceled(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Pinger = (*MemoryStore)(nil)
)
