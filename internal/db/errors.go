package db

import "errors"

// Sentinel errors for backend operations.
var (
	// ErrUnavailable signals the backend could not be reached at all,
	// as opposed to a query that ran and failed.
	ErrUnavailable = errors.New("db: backend unavailable")
	ErrKeyNotFound = errors.New("db: key not found")
)

// Op constants map to Redis command names for error context.
const (
	OpSearch = "FT.SEARCH"
	OpPing   = "PING"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
