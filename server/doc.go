// Package server is a self-hosted backend speaking the dzero wire protocol
// over SQLite.
//
// It accepts the statements a cache.SQLStore issues (POST / with
// {sql, params, method} or {batch}), serves POST /dump, and answers
// POST /ask with 501. Around that it mounts health probes, Prometheus
// metrics on /metrics, token and JWT authentication, and a janitor that
// prunes expired rows.
//
// Usage:
//
//	srv, err := server.New(ctx, server.Config{DBPath: "zerocache.db"})
//	if err != nil {
//	    return err
//	}
//	defer srv.Close()
//	return srv.Run(ctx)
package server
