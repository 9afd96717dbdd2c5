// Package dzero is a client for dzero-compatible SQL-over-HTTP endpoints.
//
// Every call is a JSON POST to the base URL carrying the credential in a
// request header (named "token" by default):
//
//	POST /      {"sql": "...", "params": [...], "method": "all"|"exec"}  -> {"results": [...]}
//	POST /      {"batch": [{"sql": "...", "params": [...]}, ...]}          -> [{"results": [...]}, ...]
//	POST /ask   {"q": "..."}
//	POST /dump  {"tables": [...], "schema": true, "data": true}
//
// A non-2xx response is returned as an *APIError carrying the server's
// message. Transient failures (network errors, 429, 5xx) can be retried by
// supplying a resilience.Executor; see DefaultExecutor.
package dzero
