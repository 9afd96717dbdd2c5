package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte(strings.Repeat("k", MinSecretBytes))

func bearer(token string) *AuthRequest {
	return &AuthRequest{Headers: headers("Authorization", "Bearer "+token)}
}

func TestNewJWTAuthenticator_WeakSecret(t *testing.T) {
	if _, err := NewJWTAuthenticator(JWTConfig{Secret: []byte("short")}); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("error = %v, want ErrWeakSecret", err)
	}
	if _, err := NewSigner([]byte("short"), "", ""); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("NewSigner error = %v, want ErrWeakSecret", err)
	}
}

func TestJWT_SignAndAuthenticate(t *testing.T) {
	signer, err := NewSigner(testSecret, "zerocache", "backend")
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewJWTAuthenticator(JWTConfig{Secret: testSecret, Issuer: "zerocache", Audience: "backend"})
	if err != nil {
		t.Fatal(err)
	}

	token, err := signer.Sign("worker-1", time.Hour, "admin")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	req := bearer(token)
	if !a.Supports(context.Background(), req) {
		t.Fatalf("Supports() = false for bearer token")
	}
	res, err := a.Authenticate(context.Background(), req)
	if err != nil || !res.Authenticated {
		t.Fatalf("Authenticate = %+v, %v", res, err)
	}
	id := res.Identity
	if id.Principal != "worker-1" || !id.HasRole("admin") || id.Method != AuthMethodJWT {
		t.Errorf("Identity = %+v", id)
	}
	if id.ExpiresAt.Before(time.Now()) || id.Claims["jti"] == "" {
		t.Errorf("ExpiresAt = %v, jti = %v", id.ExpiresAt, id.Claims["jti"])
	}
}

func TestJWT_Rejections(t *testing.T) {
	a, _ := NewJWTAuthenticator(JWTConfig{Secret: testSecret, Issuer: "zerocache"})

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := func() Claims {
		return Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "s",
			Issuer:    "zerocache",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongIss := valid()
	wrongIss.Issuer = "other"
	noExp := valid()
	noExp.ExpiresAt = nil
	noSub := valid()
	noSub.Subject = ""

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", sign(expired, jwt.SigningMethodHS256, testSecret), ErrTokenExpired},
		{"malformed", "not-a-jwt", ErrTokenMalformed},
		{"wrong secret", sign(valid(), jwt.SigningMethodHS256, []byte(strings.Repeat("x", 32))), ErrInvalidCredentials},
		{"wrong issuer", sign(wrongIss, jwt.SigningMethodHS256, testSecret), ErrInvalidCredentials},
		{"no expiry", sign(noExp, jwt.SigningMethodHS256, testSecret), ErrInvalidCredentials},
		{"no subject", sign(noSub, jwt.SigningMethodHS256, testSecret), ErrInvalidCredentials},
		{"HS512", sign(valid(), jwt.SigningMethodHS512, testSecret), ErrInvalidCredentials},
		{"empty", "", ErrMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Authenticate(context.Background(), bearer(tt.token))
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if res.Authenticated || !errors.Is(res.Error, tt.want) {
				t.Errorf("result = %+v, want failure %v", res, tt.want)
			}
		})
	}
}

func TestSigner_InvalidArguments(t *testing.T) {
	s, _ := NewSigner(testSecret, "", "")
	if _, err := s.Sign("", time.Hour); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty subject error = %v", err)
	}
	if _, err := s.Sign("s", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero ttl error = %v", err)
	}
}
