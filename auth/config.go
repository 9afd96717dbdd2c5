package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/zerocache/secret"
)

// TokenConfig declares one accepted static token. Exactly one of Token and
// Hash is set.
type TokenConfig struct {
	ID        string    `mapstructure:"id"`
	Principal string    `mapstructure:"principal"`
	Roles     []string  `mapstructure:"roles"`
	ExpiresAt time.Time `mapstructure:"expires_at"`

	// Token is the plaintext token; it may be a ${VAR} or secretref value.
	Token string `mapstructure:"token"`

	// Hash is the hex SHA-256 of the token.
	Hash string `mapstructure:"hash"`
}

// Config selects the authenticators of the substitute backend.
type Config struct {
	// TokenHeader carries static tokens. Default: "token"
	TokenHeader string        `mapstructure:"token_header"`
	Tokens      []TokenConfig `mapstructure:"tokens"`

	// JWTSecret enables HS256 bearer tokens. It may be a ${VAR} or
	// secretref value.
	JWTSecret   string        `mapstructure:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience"`
	JWTLeeway   time.Duration `mapstructure:"jwt_leeway"`

	// Roles restricts actions to identities holding one of the roles.
	Roles map[string][]string `mapstructure:"roles"`
}

// Enabled reports whether any credential is configured.
func (c Config) Enabled() bool {
	return len(c.Tokens) > 0 || c.JWTSecret != ""
}

// Build resolves secrets through r and assembles the authenticators c
// enables. It returns nil, nil when nothing is enabled.
func Build(ctx context.Context, c Config, r *secret.Resolver) (Authenticator, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var auths []Authenticator

	if len(c.Tokens) > 0 {
		store := NewMemoryTokenStore()
		for i, tc := range c.Tokens {
			info, err := tokenInfo(ctx, tc, r)
			if err != nil {
				return nil, fmt.Errorf("tokens[%d]: %w", i, err)
			}
			if err := store.Add(info); err != nil {
				return nil, fmt.Errorf("tokens[%d]: %w", i, err)
			}
		}
		auths = append(auths, NewTokenAuthenticator(c.TokenHeader, store))
	}

	if c.JWTSecret != "" {
		key, err := r.ResolveValue(ctx, c.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("jwt_secret: %w", err)
		}
		ja, err := NewJWTAuthenticator(JWTConfig{
			Secret:   []byte(key),
			Issuer:   c.JWTIssuer,
			Audience: c.JWTAudience,
			Leeway:   c.JWTLeeway,
		})
		if err != nil {
			return nil, err
		}
		auths = append(auths, ja)
	}

	if len(auths) == 1 {
		return auths[0], nil
	}
	return NewCompositeAuthenticator(auths...), nil
}

// Authorizer returns the RoleAuthorizer for c.Roles, or nil without rules.
func (c Config) Authorizer() Authorizer {
	if len(c.Roles) == 0 {
		return nil
	}
	return NewRoleAuthorizer(c.Roles)
}

func tokenInfo(ctx context.Context, tc TokenConfig, r *secret.Resolver) (*TokenInfo, error) {
	if tc.Principal == "" {
		return nil, fmt.Errorf("%w: principal is required", ErrInvalidConfig)
	}
	if (tc.Token == "") == (tc.Hash == "") {
		return nil, fmt.Errorf("%w: set exactly one of token and hash", ErrInvalidConfig)
	}
	hash := tc.Hash
	if tc.Token != "" {
		plain, err := r.ResolveValue(ctx, tc.Token)
		if err != nil {
			return nil, err
		}
		if plain == "" {
			return nil, errors.Join(ErrInvalidConfig, ErrMissingCredentials)
		}
		hash = HashToken(plain)
	}
	id := tc.ID
	if id == "" {
		id = tc.Principal
	}
	return &TokenInfo{
		ID:        id,
		Hash:      hash,
		Principal: tc.Principal,
		Roles:     tc.Roles,
		ExpiresAt: tc.ExpiresAt,
	}, nil
}
