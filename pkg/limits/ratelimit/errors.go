package ratelimit

import "errors"

var (
	// ErrInvalidConfiguration is returned when a limiter is constructed with
	// a non-positive limit or an interval outside [1ns, MaxInterval].
	ErrInvalidConfiguration = errors.New("invalid rate limiter configuration")

	// ErrCancelled is returned when a blocked acquisition is interrupted by
	// its context. The returned error also wraps the context's error.
	ErrCancelled = errors.New("rate limiter wait cancelled")
)
