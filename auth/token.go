package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTokenHeader is the header a dzero client sends its token in.
const DefaultTokenHeader = "token"

// TokenInfo describes one accepted static token.
type TokenInfo struct {
	// ID names the token in logs; it never contains the token itself.
	ID string

	// Hash is the lowercase hex SHA-256 of the token.
	Hash string

	Principal string
	Roles     []string

	// ExpiresAt is zero for tokens that never expire.
	ExpiresAt time.Time
}

// TokenStore looks up static tokens by hash.
type TokenStore interface {
	// Lookup returns nil, nil when no token has hash.
	Lookup(ctx context.Context, hash string) (*TokenInfo, error)
}

// HashToken returns the hex SHA-256 of a token, the form TokenStore keeps.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryTokenStore keeps tokens in memory. Lookup compares against every
// stored hash in constant time.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens []*TokenInfo
}

// NewMemoryTokenStore creates an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Add stores info, replacing any token with the same hash.
func (s *MemoryTokenStore) Add(info *TokenInfo) error {
	if info == nil || len(info.Hash) != sha256.Size*2 {
		return fmt.Errorf("%w: token hash must be %d hex characters", ErrInvalidConfig, sha256.Size*2)
	}
	if _, err := hex.DecodeString(info.Hash); err != nil {
		return fmt.Errorf("%w: token hash: %w", ErrInvalidConfig, err)
	}
	cp := *info
	cp.Hash = strings.ToLower(cp.Hash)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tokens {
		if t.Hash == cp.Hash {
			s.tokens[i] = &cp
			return nil
		}
	}
	s.tokens = append(s.tokens, &cp)
	return nil
}

// Remove deletes the token with hash.
func (s *MemoryTokenStore) Remove(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tokens {
		if t.Hash == hash {
			s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
			return
		}
	}
}

// Len returns the number of stored tokens.
func (s *MemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Lookup finds the token whose hash equals hash.
func (s *MemoryTokenStore) Lookup(_ context.Context, hash string) (*TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *TokenInfo
	for _, t := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(t.Hash), []byte(hash)) == 1 {
			found = t
		}
	}
	return found, nil
}

// TokenAuthenticator accepts the static tokens held by a TokenStore.
type TokenAuthenticator struct {
	header string
	store  TokenStore
	now    func() time.Time
}

// NewTokenAuthenticator reads tokens from header (DefaultTokenHeader when
// empty).
func NewTokenAuthenticator(header string, store TokenStore) *TokenAuthenticator {
	if header == "" {
		header = DefaultTokenHeader
	}
	return &TokenAuthenticator{header: header, store: store, now: time.Now}
}

func (a *TokenAuthenticator) Name() string { return string(AuthMethodToken) }

func (a *TokenAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	return req.GetHeader(a.header) != ""
}

// Authenticate hashes the presented token and looks it up.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	token := strings.TrimSpace(req.GetHeader(a.header))
	if token == "" {
		return AuthFailure(ErrMissingCredentials, AuthMethodToken), nil
	}

	info, err := a.store.Lookup(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if info == nil {
		return AuthFailure(ErrInvalidCredentials, AuthMethodToken), nil
	}
	if !info.ExpiresAt.IsZero() && a.now().After(info.ExpiresAt) {
		return AuthFailure(ErrTokenExpired, AuthMethodToken), nil
	}

	return AuthSuccess(&Identity{
		Principal: info.Principal,
		Roles:     info.Roles,
		Method:    AuthMethodToken,
		ExpiresAt: info.ExpiresAt,
		Claims:    map[string]any{"token_id": info.ID},
	}), nil
}

var (
	_ Authenticator = (*TokenAuthenticator)(nil)
	_ TokenStore    = (*MemoryTokenStore)(nil)
)
