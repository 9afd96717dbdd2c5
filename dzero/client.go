package dzero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/zerocache/observe"
	"github.com/jonwraymond/zerocache/resilience"
)

// Defaults.
const (
	DefaultBaseURL     = "https://db.dzero.dev"
	DefaultTokenHeader = "token"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxInFlight = 32

	maxResponseBytes = 32 << 20
	maxMessageBytes  = 512
)

// Config configures a Client.
type Config struct {
	// BaseURL of the endpoint. Default: DefaultBaseURL
	BaseURL string

	// Token is sent in the TokenHeader request header. Required.
	Token string

	// TokenHeader names the credential header. Default: "token"
	TokenHeader string

	// HTTPClient is the HTTP client to use. If nil, a client with Timeout is used.
	HTTPClient *http.Client

	// Timeout bounds each HTTP exchange of the default client.
	// Default: 30 seconds
	Timeout time.Duration

	// Executor wraps each call with retry, circuit breaking and rate limiting.
	Executor *resilience.Executor

	// Tracer records a client span per call.
	Tracer trace.Tracer

	// Logger receives debug lines per call and warnings on failure.
	Logger observe.Logger
}

// Client talks to a dzero endpoint. It is safe for concurrent use.
type Client struct {
	baseURL     string
	token       string
	tokenHeader string
	http        *http.Client
	exec        *resilience.Executor
	tracer      trace.Tracer
	logger      observe.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = DefaultTokenHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("dzero")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		tokenHeader: cfg.TokenHeader,
		http:        httpClient,
		exec:        cfg.Executor,
		tracer:      tracer,
		logger:      logger,
	}, nil
}

// DefaultExecutor returns the resilience stack used by the cache: a
// waiting rate limiter, at most DefaultMaxInFlight concurrent calls, a
// circuit breaker that counts only transient failures, jittered
// exponential backoff over attempts tries, and a per-attempt timeout.
func DefaultExecutor(attempts int, timeout time.Duration) *resilience.Executor {
	return resilience.NewExecutor(
		resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:        50,
			Burst:       20,
			WaitOnLimit: true,
		})),
		resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: DefaultMaxInFlight,
			MaxWait:       timeout,
		})),
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:      "dzero",
			IsFailure: Retryable,
		})),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts: attempts,
			Jitter:      true,
			RetryIf:     Retryable,
		})),
		resilience.WithTimeout(timeout),
	)
}

// Query runs one statement.
func (c *Client) Query(ctx context.Context, sql string, params []any, mode Mode) (*Result, error) {
	if mode == "" {
		mode = ModeAll
	}
	var out Result
	if err := c.post(ctx, "/", "query", QueryRequest{SQL: sql, Params: params, Method: mode}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Batch runs statements as one unit and returns one Result per statement.
func (c *Client) Batch(ctx context.Context, stmts []Statement) ([]Result, error) {
	var out []Result
	if err := c.post(ctx, "/", "batch", BatchRequest{Batch: stmts}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ask sends a natural-language question and returns the raw answer.
func (c *Client) Ask(ctx context.Context, question string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.post(ctx, "/ask", "ask", AskRequest{Q: question}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dump returns the raw dump document.
func (c *Client) Dump(ctx context.Context, opts DumpOptions) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.post(ctx, "/dump", "dump", opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping runs SELECT 1.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Query(ctx, "SELECT 1", nil, ModeAll)
	return err
}

func (c *Client) post(ctx context.Context, path, op string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode request: %w", ErrRequestFailed, err)
	}

	ctx, span := c.tracer.Start(ctx, "dzero."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("dzero.path", path)),
	)
	start := time.Now()

	attempt := func(ctx context.Context) error {
		return c.roundTrip(ctx, path, payload, out)
	}
	if c.exec != nil {
		err = c.exec.Execute(ctx, attempt)
	} else {
		err = attempt(ctx)
	}

	duration := time.Since(start)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		c.logger.Warn(ctx, "dzero call failed",
			observe.F("op", op),
			observe.F("duration_ms", duration.Milliseconds()),
			observe.F("error", err),
		)
	} else {
		span.SetStatus(codes.Ok, "")
		c.logger.Debug(ctx, "dzero call completed",
			observe.F("op", op),
			observe.F("duration_ms", duration.Milliseconds()),
		)
	}
	span.End()
	return err
}

func (c *Client) roundTrip(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.tokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

// errorMessage extracts "message" from a JSON error body, falling back to
// the body text.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}
	return msg
}
