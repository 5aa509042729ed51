package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates the request carries no valid principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired indicates the bearer session is no longer stored.
	ErrSessionExpired = errors.New("session expired")
)
