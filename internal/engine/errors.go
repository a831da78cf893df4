package engine

import "errors"

// Domain errors for the engine package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, engine.ErrUnknownDestination) {
//	    // a command named a destination the table does not know
//	}
var (
	// ErrUnknownDestination is returned when a destination is neither a target nor an alias.
	ErrUnknownDestination = errors.New("engine: unknown destination")

	// ErrMissingVariable is returned when a required macro variable is not supplied.
	ErrMissingVariable = errors.New("engine: missing variable")

	// ErrVariableTypeMismatch is returned when a value does not fit its declared
	// type or the field it is substituted into.
	ErrVariableTypeMismatch = errors.New("engine: variable type mismatch")

	// ErrUnresolvedToken is returned when a {{name}} token has no value at the
	// layer that must resolve it.
	ErrUnresolvedToken = errors.New("engine: unresolved token")

	// ErrUnroutableCommand is returned when no dispatcher handler accepts a command.
	ErrUnroutableCommand = errors.New("engine: unroutable command")

	// ErrRemoteCallFailed wraps every failure reported by the remote client.
	ErrRemoteCallFailed = errors.New("engine: remote call failed")

	// ErrAliasCycle is returned when alias expansion exceeds the depth limit.
	ErrAliasCycle = errors.New("engine: alias cycle")

	// ErrUnknownMacro is returned when a macro call names an undefined macro.
	ErrUnknownMacro = errors.New("engine: unknown macro")

	// ErrMacroDepth is returned when macro calls nest beyond the depth limit.
	ErrMacroDepth = errors.New("engine: macro nesting too deep")

	// ErrNoCandidates is returned when a rotation is asked to pick from nothing.
	ErrNoCandidates = errors.New("engine: no candidates")

	// ErrInvalidBinding is returned when a binding has no runnable shape.
	ErrInvalidBinding = errors.New("engine: invalid binding")
)
