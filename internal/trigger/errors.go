package trigger

import "errors"

// Domain errors for the trigger package.
var (
	// ErrNotReady is returned when a trigger arrives before the first table load.
	ErrNotReady = errors.New("trigger: no bindings loaded")

	// ErrNoReloader is returned by Reload when the service has no table source.
	ErrNoReloader = errors.New("trigger: reload not configured")
)
