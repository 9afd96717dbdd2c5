package cache

import (
	"context"
	"time"
)

// Entry is one stored row.
type Entry struct {
	Key  string `json:"key"`
	Data string `json:"data"`
	Tags string `json:"tags"`
	TTL  int64  `json:"ttl"` // absolute expiry, epoch milliseconds
}

// Fresh reports whether the entry has not yet expired at now.
func (e Entry) Fresh(now time.Time) bool {
	return e.TTL >= now.UnixMilli()
}

// Store is the gateway to the backing store.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods must honor cancellation and deadlines.
// - Get returns (nil, nil) when the key is absent.
// - Put replaces any existing row for the key; a row is never partially written.
// - Backend failures wrap ErrStoreUnavailable.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error

	// DeleteByTags removes every row whose stored tags match all of tags.
	DeleteByTags(ctx context.Context, tags TagSet, match TagMatch) error

	DeleteAll(ctx context.Context) error

	// DeleteExpired removes every row with TTL before now (epoch ms).
	DeleteExpired(ctx context.Context, now int64) error
}

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
