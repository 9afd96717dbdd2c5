package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jonwraymond/zerocache/auth"
	"github.com/jonwraymond/zerocache/dzero"
	"github.com/jonwraymond/zerocache/observe"
)

// wireRequest is the body of POST /: either one statement or a batch.
type wireRequest struct {
	SQL    string            `json:"sql"`
	Params []any             `json:"params"`
	Method dzero.Mode        `json:"method"`
	Batch  []dzero.Statement `json:"batch"`
}

func (s *Server) handleStatements(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[wireRequest](w, r, s.cfg.MaxBodyBytes)
	if !ok {
		return
	}
	switch {
	case req.Batch != nil && req.SQL != "":
		writeError(w, http.StatusBadRequest, "send either sql or batch, not both")
	case req.Batch != nil:
		if !s.authorize(w, r, auth.ActionBatch) {
			return
		}
		out, err := traced(r.Context(), s, "batch", func(ctx context.Context) ([]ResultSet, error) {
			return s.exec.Batch(ctx, req.Batch)
		})
		if err != nil {
			s.writeExecError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	default:
		if !s.authorize(w, r, auth.ActionQuery) {
			return
		}
		kind := string(req.Method)
		if kind == "" {
			kind = string(dzero.ModeAll)
		}
		out, err := traced(r.Context(), s, kind, func(ctx context.Context) (*ResultSet, error) {
			return s.exec.Query(ctx, req.SQL, req.Params, req.Method)
		})
		if err != nil {
			s.writeExecError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	opts, ok := readJSON[dzero.DumpOptions](w, r, s.cfg.MaxBodyBytes)
	if !ok {
		return
	}
	out, err := traced(r.Context(), s, "dump", func(ctx context.Context) (*Dump, error) {
		return s.exec.Dump(ctx, opts)
	})
	if err != nil {
		s.writeExecError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// traced runs fn inside a statement span and counts its outcome.
func traced[T any](ctx context.Context, s *Server, kind string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.StartSpan(ctx, observe.CallMeta{Op: "statement", ID: kind})
	out, err := fn(ctx)
	s.tracer.EndSpan(span, err)
	s.metrics.statement(kind, err)
	return out, err
}

func (s *Server) handleAsk(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotImplemented, "ask is not supported by this backend")
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, action string) bool {
	if s.authz == nil {
		return true
	}
	if err := s.authz.Authorize(r.Context(), auth.IdentityFromContext(r.Context()), action); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return false
	}
	return true
}

// writeExecError maps executor errors to status codes. Statement errors
// are 400 so clients do not retry them.
func (s *Server) writeExecError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrStatement), errors.Is(err, ErrTooManyRows):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			observe.F("request_id", middleware.GetReqID(r.Context())),
			observe.F("error", err))
	}
	writeError(w, status, err.Error())
}

// requestID tags every request with the client's X-Request-Id or a new
// UUID, readable through middleware.GetReqID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logRequests logs one line per request at debug, or warn for 5xx.
func logRequests(logger observe.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			fields := []observe.Field{
				observe.F("method", r.Method),
				observe.F("path", r.URL.Path),
				observe.F("status", rw.status),
				observe.F("duration_ms", time.Since(start).Milliseconds()),
				observe.F("request_id", middleware.GetReqID(r.Context())),
				observe.F("principal", auth.PrincipalFromContext(r.Context())),
			}
			if rw.status >= http.StatusInternalServerError {
				logger.Warn(r.Context(), "http request", fields...)
				return
			}
			logger.Debug(r.Context(), "http request", fields...)
		})
	}
}

// readJSON decodes a size-limited JSON body with numbers kept as
// json.Number.
func readJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return v, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
