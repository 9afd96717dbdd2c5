// Package cache provides a remote, tag-addressable result cache for
// expensive computations.
//
// A computation is wrapped with [Do] or [Wrap]. Each invocation derives a
// deterministic storage key from the caller-supplied identity, the tag set
// and the per-call options, looks the key up in a [Store], and either
// returns the stored result or runs the computation and admits its result
// for later calls. Stored results are JSON, DEFLATE-compressed and kept as a
// byte-preserving Latin-1 string so they survive a JSON transport.
//
// Rows carry an absolute expiry (epoch milliseconds). Stale rows are deleted
// on read. Rows are invalidated by tag with [Cache.InvalidateByTag], which by
// default uses substring matching over the stored tag string; see [TagMatch].
//
// Failures of the cache subsystem never surface to callers: lookup, decode
// and write errors are logged, counted and degraded to calling the
// computation directly. Only [ErrInvalidArgument] and errors returned by the
// computation itself reach the caller.
//
// The remote store is usually a dzero-compatible SQL endpoint reached through
// [SQLStore]; [MemoryStore] provides the same semantics in-process.
package cache
