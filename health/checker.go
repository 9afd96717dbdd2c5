package health

import (
	"context"
	"fmt"
	"time"
)

// Status represents the health status of a component.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result contains the outcome of a health check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails adds details to a result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker reports the health of one component.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Check must return promptly once ctx is done.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a new CheckerFunc.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (f *CheckerFunc) Name() string { return f.name }

func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// Pinger is implemented by anything with a liveness probe: the cache, its
// store, the dzero client or the server's database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker turns a Pinger into a Checker. A failed ping is unhealthy;
// a ping slower than SlowAfter is degraded.
type PingChecker struct {
	name      string
	pinger    Pinger
	slowAfter time.Duration
}

// NewPingChecker creates a PingChecker. A slowAfter of zero disables the
// degraded state.
func NewPingChecker(name string, p Pinger, slowAfter time.Duration) *PingChecker {
	return &PingChecker{name: name, pinger: p, slowAfter: slowAfter}
}

func (c *PingChecker) Name() string { return c.name }

// Check pings once.
func (c *PingChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.pinger.Ping(ctx)
	elapsed := time.Since(start)
	details := map[string]any{"latency_ms": elapsed.Milliseconds()}

	switch {
	case err != nil:
		return Unhealthy(c.name+" unreachable", fmt.Errorf("%w: %w", ErrCheckFailed, err)).WithDetails(details)
	case c.slowAfter > 0 && elapsed > c.slowAfter:
		return Degraded(fmt.Sprintf("%s slow: %s", c.name, elapsed.Round(time.Millisecond))).WithDetails(details)
	default:
		return Healthy(c.name + " reachable").WithDetails(details)
	}
}

var (
	_ Checker = (*CheckerFunc)(nil)
	_ Checker = (*PingChecker)(nil)
)
