// Package health runs liveness and readiness checks for the cache server.
//
// A Checker reports one component as healthy, degraded or unhealthy.
// PingChecker adapts anything with a Ping method, such as the server's
// database or a cache.Cache. An Aggregator runs its checkers concurrently
// under a timeout and folds the results into one Report; Routes exposes the
// report on a chi router:
//
//	agg := health.NewAggregator(2 * time.Second)
//	agg.Register(health.NewPingChecker("sqlite", db, 250*time.Millisecond))
//	health.Routes(router, agg)
package health
