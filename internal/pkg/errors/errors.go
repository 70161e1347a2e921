package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBusy is returned when a single-flight resource already has a holder.
	ErrBusy = errors.New("pipeline busy")
	// ErrRateLimited is returned when a caller exceeds its request window.
	ErrRateLimited = errors.New("rate limited")
)
