package detection

import "errors"

var (
	// ErrInvalidInput is returned when the submitted URL is empty, too long,
	// or cannot be parsed. Callers should report it as a client error.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClassifierUnavailable is returned when a request reaches the
	// classification step but the model artifact failed to load at startup.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
)
