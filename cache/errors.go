package cache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrInvalidArgument reports a caller error: too many tags, tags too
	// long, revalidate out of bounds, or an empty identity. It is the only
	// cache-originated error returned from Do and Wrap.
	ErrInvalidArgument = errors.New("cache: invalid argument")

	// ErrStoreUnavailable wraps transport and backend failures.
	ErrStoreUnavailable = errors.New("cache: store unavailable")

	// ErrCodecFailure reports a payload that could not be compressed,
	// decompressed or parsed.
	ErrCodecFailure = errors.New("cache: codec failure")

	// ErrMalformedEntry reports a stored row that does not have the
	// key/data/tags/ttl shape.
	ErrMalformedEntry = errors.New("cache: malformed entry")

	// ErrNilStore is returned by New when no Store is given.
	ErrNilStore = errors.New("cache: store is nil")
)
