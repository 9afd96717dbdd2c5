// Package observe provides observability primitives for cached calls.
//
// It is a pure instrumentation library: no caching, no transport, no I/O
// beyond exporter setup. The cache package wires the logger, metrics and
// tracer into its lookup/compute/admit path and into store operations.
package observe
