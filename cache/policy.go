package cache

import (
	"fmt"
	"time"
)

// Policy defaults.
const (
	DefaultRevalidate = 7 * 24 * time.Hour
	MaxRevalidate     = 2629746 * time.Second
	MaxPayloadBytes   = 4 << 20
)

// Policy configures admission and expiry.
type Policy struct {
	// DefaultRevalidate is the lifetime used when a call sets none.
	DefaultRevalidate time.Duration

	// MaxRevalidate is the largest lifetime a call may request.
	MaxRevalidate time.Duration

	// MaxPayloadBytes is the largest serialized result that is admitted.
	MaxPayloadBytes int

	// Match selects how InvalidateByTag matches stored rows.
	Match TagMatch
}

// DefaultPolicy returns the default policy.
// DefaultRevalidate: 7 days, MaxRevalidate: 2629746s, MaxPayloadBytes: 4 MiB,
// Match: MatchSubstring
func DefaultPolicy() Policy {
	return Policy{
		DefaultRevalidate: DefaultRevalidate,
		MaxRevalidate:     MaxRevalidate,
		MaxPayloadBytes:   MaxPayloadBytes,
		Match:             MatchSubstring,
	}
}

func (p Policy) normalized() Policy {
	if p.DefaultRevalidate <= 0 {
		p.DefaultRevalidate = DefaultRevalidate
	}
	if p.MaxRevalidate <= 0 {
		p.MaxRevalidate = MaxRevalidate
	}
	if p.MaxPayloadBytes <= 0 {
		p.MaxPayloadBytes = MaxPayloadBytes
	}
	return p
}

// EffectiveTTL returns the lifetime to use. A nil override selects
// DefaultRevalidate; an override outside (0, MaxRevalidate] is an
// ErrInvalidArgument. Unlike a clamp, out-of-range values are rejected.
func (p Policy) EffectiveTTL(override *time.Duration) (time.Duration, error) {
	p = p.normalized()
	if override == nil {
		return p.DefaultRevalidate, nil
	}
	ttl := *override
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: revalidate must be positive, got %s", ErrInvalidArgument, ttl)
	}
	if ttl > p.MaxRevalidate {
		return 0, fmt.Errorf("%w: revalidate %s exceeds %s", ErrInvalidArgument, ttl, p.MaxRevalidate)
	}
	return ttl, nil
}

// Expiry returns the absolute expiry in epoch milliseconds.
func Expiry(now time.Time, ttl time.Duration) int64 {
	return now.Add(ttl).UnixMilli()
}

// Admit reports whether a serialized result may be stored: it must be a JSON
// object, string, number or boolean, and no larger than MaxPayloadBytes.
// Arrays and null are never admitted.
func (p Policy) Admit(payload []byte) bool {
	p = p.normalized()
	if len(payload) == 0 || len(payload) > p.MaxPayloadBytes {
		return false
	}
	return admissibleShape(payload)
}

func admissibleShape(payload []byte) bool {
	for _, c := range payload {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '"', 't', 'f', '-':
			return true
		case '[', 'n':
			return false
		default:
			return c >= '0' && c <= '9'
		}
	}
	return false
}
