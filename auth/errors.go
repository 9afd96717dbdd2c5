package auth

import "errors"

// Sentinel errors for authentication and authorization.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrWeakSecret         = errors.New("auth: signing secret too short")
	ErrInvalidConfig      = errors.New("auth: invalid config")

	ErrForbidden = errors.New("auth: access denied")
)
