package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// KeyOptions are the per-call options that participate in the key.
// A nil *KeyOptions and an empty KeyOptions produce different keys.
type KeyOptions struct {
	Revalidate *time.Duration
}

// Keyer derives storage keys for cached computations.
//
// Contract:
// - Determinism: same inputs must produce the same key.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(id string, tags TagSet, opts *KeyOptions) (string, error)
}

// DefaultKeyer produces keys of the form
//
//	<id>_<'t1','t2'>_<options>
//
// with all whitespace removed. Options encode as {"revalidate":<seconds>},
// {} when no revalidate is set, or the literal undefined when absent.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key derives the key. An id that is empty after whitespace removal is an
// ErrInvalidArgument.
func (k *DefaultKeyer) Key(id string, tags TagSet, opts *KeyOptions) (string, error) {
	return rawKey(id, tags, opts)
}

// HashKeyer produces fixed-length keys for stores with key-length limits.
// Format: cache:<id>:<hash>
// where hash is the first 16 hex characters of SHA-256 over the default key.
type HashKeyer struct{}

// NewHashKeyer creates a new hashing keyer.
func NewHashKeyer() *HashKeyer {
	return &HashKeyer{}
}

// Key derives the hashed key.
func (k *HashKeyer) Key(id string, tags TagSet, opts *KeyOptions) (string, error) {
	raw, err := rawKey(id, tags, opts)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("cache:%s:%s", stripSpace(id), hex.EncodeToString(hash[:8])), nil
}

func rawKey(id string, tags TagSet, opts *KeyOptions) (string, error) {
	id = stripSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: identity is empty", ErrInvalidArgument)
	}
	return stripSpace(id + "_" + tags.String() + "_" + encodeKeyOptions(opts)), nil
}

func encodeKeyOptions(opts *KeyOptions) string {
	if opts == nil {
		return "undefined"
	}
	if opts.Revalidate == nil {
		return "{}"
	}
	secs := strconv.FormatFloat(opts.Revalidate.Seconds(), 'f', -1, 64)
	return `{"revalidate":` + secs + `}`
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

var (
	_ Keyer = (*DefaultKeyer)(nil)
	_ Keyer = (*HashKeyer)(nil)
)
