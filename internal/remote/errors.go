package remote

import "errors"

var (
	// ErrTimeout is returned when a target does not answer within the call timeout.
	ErrTimeout = errors.New("remote: timeout")

	// ErrRequestFailed is returned for transport errors and non-2xx responses.
	ErrRequestFailed = errors.New("remote: request failed")

	// ErrTLSConfig is returned when certificate files cannot be loaded.
	ErrTLSConfig = errors.New("remote: invalid TLS configuration")
)
