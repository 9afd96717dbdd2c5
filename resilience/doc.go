// Package resilience provides the failure-handling patterns applied to
// remote store calls.
//
//   - Retry: re-runs transient failures with exponential, linear or
//     constant backoff. Errors wrapped with Permanent are returned at once.
//   - Circuit breaker: stops calling an endpoint after consecutive failures
//     and probes it again after a reset timeout.
//   - Rate limiter: token bucket on golang.org/x/time/rate.
//   - Bulkhead: caps in-flight calls with a golang.org/x/sync semaphore.
//   - Timeout: bounds each attempt with a context deadline.
//
// Patterns compose through an Executor:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 50, WaitOnLimit: true})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "dzero"})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3, Jitter: true})),
//	    resilience.WithTimeout(5*time.Second),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return post(ctx, body)
//	})
package resilience
