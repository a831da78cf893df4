package binding

import "errors"

// Domain errors for the binding package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, binding.ErrBindingNotFound) {
//	    // handle not found case
//	}
var (
	// ErrBindingNotFound is returned when no binding matches a name or shortcut.
	ErrBindingNotFound = errors.New("binding: not found")

	// ErrInvalidTable is returned when a bindings file fails validation.
	ErrInvalidTable = errors.New("binding: invalid table")

	// ErrInvalidCommand is returned when a command entry matches no command kind,
	// or more than one.
	ErrInvalidCommand = errors.New("binding: invalid command")

	// ErrTypeMismatch is returned when a value cannot be bound to a typed field.
	ErrTypeMismatch = errors.New("binding: type mismatch")

	// ErrNotLoaded is returned when the registry is used before the first load.
	ErrNotLoaded = errors.New("binding: table not loaded")
)
