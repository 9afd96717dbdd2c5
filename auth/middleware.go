package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/zerocache/observe"
)

// Middleware authenticates every request with authn and attaches the
// identity to the request context. Rejected requests get 401, internal
// errors 500, both with a JSON {"error": ...} body.
//
// A nil authn attaches AnonymousIdentity and lets every request through.
func Middleware(authn Authenticator, logger observe.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if authn == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, AnonymousIdentity())))
				return
			}

			req := &AuthRequest{Headers: r.Header}
			if !authn.Supports(ctx, req) {
				writeError(w, http.StatusUnauthorized, ErrMissingCredentials)
				return
			}
			result, err := authn.Authenticate(ctx, req)
			if err != nil {
				logger.Error(ctx, "authentication failed", observe.F("error", err))
				writeError(w, http.StatusInternalServerError, errors.New("auth: authentication unavailable"))
				return
			}
			if !result.Authenticated {
				logger.Warn(ctx, "request rejected",
					observe.F("method", result.Method),
					observe.F("error", result.Error),
					observe.F("remote", r.RemoteAddr))
				writeError(w, http.StatusUnauthorized, result.Error)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, result.Identity)))
		})
	}
}

// Require answers 403 unless authz permits the context identity to
// perform action. A nil authz permits everything.
func Require(authz Authorizer, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authz == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := authz.Authorize(r.Context(), IdentityFromContext(r.Context()), action); err != nil {
				writeError(w, http.StatusForbidden, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
