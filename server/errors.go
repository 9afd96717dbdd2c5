package server

import "errors"

var (
	ErrInvalidConfig = errors.New("server: invalid config")

	// ErrInvalidRequest marks a request body the server cannot execute.
	ErrInvalidRequest = errors.New("server: invalid request")

	// ErrStatement marks a statement SQLite rejected.
	ErrStatement = errors.New("server: statement failed")

	// ErrTooManyRows marks a result larger than Config.MaxRows.
	ErrTooManyRows = errors.New("server: too many rows")
)
