package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/zerocache/auth"
	"github.com/jonwraymond/zerocache/cache"
	"github.com/jonwraymond/zerocache/observe"
	"github.com/jonwraymond/zerocache/server"
)

const backendToken = "t0ken"

// execute runs the command tree and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	root := NewRootCmd("test")
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

// startBackend serves an in-memory endpoint and returns a cache on it.
func startBackend(t *testing.T) (string, *cache.Cache) {
	t.Helper()
	ctx := context.Background()
	s, err := server.New(ctx, server.Config{
		JanitorInterval: -1,
		Auth: auth.Config{
			Tokens: []auth.TokenConfig{{Principal: "cli", Token: backendToken}},
		},
	}, server.WithLogger(observe.NopLogger()))
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	c, err := cache.Open(ctx, cache.Config{BaseURL: ts.URL, Token: backendToken})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	return ts.URL, c
}

type profile struct {
	Name string `json:"name"`
}

func seedProfile(t *testing.T, c *cache.Cache) string {
	t.Helper()
	_, err := cache.Do(context.Background(), c, "profile", func(context.Context) (profile, error) {
		return profile{Name: "ada"}, nil
	}, []string{"user:1", "team:7"}, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	key, err := c.Key("profile", []string{"user:1", "team:7"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestKeyCmd(t *testing.T) {
	c, err := cache.New(cache.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	day := 24 * time.Hour
	withTTL, _ := c.Key("report", []string{"a", "b"}, &cache.KeyOptions{Revalidate: &day})
	plain, _ := c.Key("report", []string{"a", "b"}, nil)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"tags", []string{"key", "report", "--tag", "a", "--tag", "b"}, plain},
		{"comma tags", []string{"key", "report", "--tag", "a,b"}, plain},
		{"revalidate", []string{"key", "report", "--tag", "a,b", "--revalidate", "24h"}, withTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if got := strings.TrimSpace(out); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
	if plain == withTTL {
		t.Error("revalidate did not change the key")
	}
}

func TestGetCmd(t *testing.T) {
	url, c := startBackend(t)
	key := seedProfile(t, c)
	conn := []string{"--base-url", url, "--token", backendToken}

	out, err := execute(t, append([]string{"get", key}, conn...)...)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(out) != `{"name":"ada"}` {
		t.Errorf("get = %q", out)
	}

	out, err = execute(t, append([]string{"get", key, "--meta"}, conn...)...)
	if err != nil {
		t.Fatalf("get --meta: %v", err)
	}
	var view entryView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if view.Key != key || !view.Fresh || !strings.Contains(view.Tags, "'user:1'") {
		t.Errorf("view = %+v", view)
	}
	var got profile
	if err := json.Unmarshal(view.Value, &got); err != nil || got.Name != "ada" {
		t.Errorf("value = %s (%v)", view.Value, err)
	}
	if view.ExpiresAt.Before(time.Now()) {
		t.Errorf("ExpiresAt = %v in the past", view.ExpiresAt)
	}

	if _, err := execute(t, append([]string{"get", "nope"}, conn...)...); err == nil ||
		!strings.Contains(err.Error(), "no entry") {
		t.Errorf("get missing key err = %v", err)
	}
}

func TestInvalidateCmd(t *testing.T) {
	url, c := startBackend(t)
	key := seedProfile(t, c)
	conn := []string{"--base-url", url, "--token", backendToken}

	// "team" is a substring of "team:7" but not a whole tag.
	out, err := execute(t, append([]string{"invalidate", "--tag", "team", "--exact"}, conn...)...)
	if err != nil {
		t.Fatalf("invalidate --exact: %v", err)
	}
	if !strings.Contains(out, "exact") {
		t.Errorf("output = %q", out)
	}
	if e, _ := c.Store().Get(context.Background(), key); e == nil {
		t.Fatal("exact match removed a row it should not")
	}

	if _, err := execute(t, append([]string{"invalidate", "--tag", "team"}, conn...)...); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if e, _ := c.Store().Get(context.Background(), key); e != nil {
		t.Errorf("row still present after invalidate: %+v", e)
	}

	if _, err := execute(t, append([]string{"invalidate"}, conn...)...); err == nil {
		t.Error("invalidate without --tag should fail")
	}
}

func TestClearAndPruneCmd(t *testing.T) {
	url, c := startBackend(t)
	key := seedProfile(t, c)
	conn := []string{"--base-url", url, "--token", backendToken}

	if _, err := execute(t, append([]string{"prune"}, conn...)...); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if e, _ := c.Store().Get(context.Background(), key); e == nil {
		t.Fatal("prune removed a fresh row")
	}

	if _, err := execute(t, append([]string{"clear"}, conn...)...); err == nil ||
		!strings.Contains(err.Error(), "--yes") {
		t.Fatalf("clear without --yes err = %v", err)
	}
	if _, err := execute(t, append([]string{"clear", "--yes"}, conn...)...); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if e, _ := c.Store().Get(context.Background(), key); e != nil {
		t.Errorf("row still present after clear: %+v", e)
	}
}

func TestCacheCmd_Unauthorized(t *testing.T) {
	url, _ := startBackend(t)
	if _, err := execute(t, "prune", "--base-url", url, "--token", "wrong"); err == nil {
		t.Fatal("expected an error with a rejected token")
	}
}

func TestTokenCmd(t *testing.T) {
	secret := strings.Repeat("k", auth.MinSecretBytes)
	t.Setenv("ZEROCACHE_SERVER_AUTH_JWT_SECRET", "${CLI_JWT_KEY}")
	t.Setenv("CLI_JWT_KEY", secret)

	out, err := execute(t, "token", "--subject", "worker", "--role", "admin", "--ttl", "10m")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	authn, err := auth.NewJWTAuthenticator(auth.JWTConfig{Secret: []byte(secret), Issuer: "zerocache"})
	if err != nil {
		t.Fatal(err)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+strings.TrimSpace(out))
	res, err := authn.Authenticate(context.Background(), &auth.AuthRequest{Headers: h})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !res.Authenticated {
		t.Fatalf("token rejected: %v", res.Error)
	}
	if res.Identity.Principal != "worker" || !res.Identity.HasRole("admin") {
		t.Errorf("identity = %+v", res.Identity)
	}
}

func TestTokenCmd_Errors(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		args   []string
	}{
		{"no secret", "", []string{"token", "--subject", "worker"}},
		{"weak secret", "short", []string{"token", "--subject", "worker"}},
		{"no subject", strings.Repeat("k", auth.MinSecretBytes), []string{"token"}},
		{"bad ttl", strings.Repeat("k", auth.MinSecretBytes), []string{"token", "--subject", "w", "--ttl", "-1m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ZEROCACHE_SERVER_AUTH_JWT_SECRET", tt.secret)
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestServeCmd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	root := NewRootCmd("test")
	var logs bytes.Buffer
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&logs)
	root.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--db", "", "--log-level", "info"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	time.Sleep(300 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	if !strings.Contains(logs.String(), "server listening") {
		t.Errorf("logs = %q", logs.String())
	}
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	t.Setenv("ZEROCACHE_SERVER_TABLE", "bad-name")
	if _, err := execute(t, "serve", "--addr", "127.0.0.1:0", "--db", ""); err == nil {
		t.Fatal("expected invalid table error")
	}
}

func TestCacheCmd_WithTelemetry(t *testing.T) {
	url, c := startBackend(t)
	key := seedProfile(t, c)
	t.Setenv("ZEROCACHE_TELEMETRY_TRACING", "none")
	t.Setenv("ZEROCACHE_TELEMETRY_METRICS", "none")

	out, err := execute(t, "get", key, "--base-url", url, "--token", backendToken)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(out) != `{"name":"ada"}` {
		t.Errorf("get = %q", out)
	}

	t.Setenv("ZEROCACHE_TELEMETRY_TRACING", "carrier-pigeon")
	if _, err := execute(t, "prune", "--base-url", url, "--token", backendToken); err == nil ||
		!strings.Contains(err.Error(), "telemetry") {
		t.Errorf("unknown exporter err = %v", err)
	}
}

func TestPingCmd(t *testing.T) {
	url, _ := startBackend(t)

	out, err := execute(t, "ping", "--base-url", url, "--token", backendToken, "--slow", "0")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !strings.HasPrefix(out, "healthy: dzero reachable") {
		t.Errorf("ping = %q", out)
	}

	out, err = execute(t, "ping", "--base-url", url, "--token", "wrong")
	if err == nil {
		t.Fatal("expected ping to fail with a rejected token")
	}
	if !strings.HasPrefix(out, "unhealthy") {
		t.Errorf("ping = %q", out)
	}
}
