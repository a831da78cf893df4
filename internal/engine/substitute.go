package engine

import (
	"fmt"
	"sort"

	"github.com/nerrad567/relay-core/internal/binding"
)

// lookupFunc resolves one token. It returns:
//   - (v, true, nil) to substitute v (v may itself be a token, deferring it)
//   - (_, false, nil) to clear the field, as for an omitted optional variable
//   - (_, _, err) to fail
type lookupFunc func(name string) (binding.Value, bool, error)

// VariableSource is where final commands look up {{name}} tokens.
type VariableSource interface {
	Lookup(name string) (binding.Value, bool)
}

// keepToken leaves a token for a later layer.
func keepToken(name string) (binding.Value, bool, error) {
	return binding.String(binding.FormatToken(name)), true, nil
}

// macroScope builds the lookup for one macro invocation: declared
// variables come from the call-site arguments, undeclared tokens are left
// for the store and environment.
func macroScope(macro string, decls map[string]binding.VariableDecl, args map[string]binding.Value) lookupFunc {
	return func(name string) (binding.Value, bool, error) {
		decl, declared := decls[name]
		if !declared {
			return keepToken(name)
		}
		arg, supplied := args[name]
		if !supplied {
			if decl.Optional {
				return binding.Value{}, false, nil
			}
			return binding.Value{}, false, fmt.Errorf("%w: macro %s requires %s", ErrMissingVariable, macro, name)
		}
		if err := checkArgType(macro, name, decl, arg); err != nil {
			return binding.Value{}, false, err
		}
		return arg, true, nil
	}
}

// checkArgType rejects a supplied value whose type differs from the
// declaration. Token values are exempt: their type is only known once the
// outer layer resolves them.
func checkArgType(macro, name string, decl binding.VariableDecl, arg binding.Value) error {
	if _, isToken := arg.TokenName(); isToken {
		return nil
	}
	if arg.Type != decl.Type {
		return fmt.Errorf("%w: macro %s variable %s is %s, expected %s",
			ErrVariableTypeMismatch, macro, name, arg.Type, decl.Type)
	}
	return nil
}

// checkCall validates call-site arguments against the declarations up front,
// so a required variable is reported even if no sub-step mentions it.
func checkCall(call *binding.MacroCall, decls map[string]binding.VariableDecl) error {
	for _, name := range sortedNames(decls) {
		decl := decls[name]
		arg, ok := call.Variables[name]
		if !ok {
			if !decl.Optional {
				return fmt.Errorf("%w: macro %s requires %s", ErrMissingVariable, call.Name, name)
			}
			continue
		}
		if err := checkArgType(call.Name, name, decl, arg); err != nil {
			return err
		}
	}
	return nil
}

// storeScope resolves tokens in a final command from the variable store,
// which itself falls back to the process environment. Nothing may remain.
func storeScope(src VariableSource) lookupFunc {
	return func(name string) (binding.Value, bool, error) {
		v, ok := src.Lookup(name)
		if !ok {
			return binding.Value{}, false, fmt.Errorf("%w: %s", ErrUnresolvedToken, binding.FormatToken(name))
		}
		if inner, isToken := v.TokenName(); isToken {
			return binding.Value{}, false, fmt.Errorf("%w: %s resolves to another token {{%s}}",
				ErrUnresolvedToken, binding.FormatToken(name), inner)
		}
		return v, true, nil
	}
}

func bindField[T any](field string, f *binding.Template[T], lookup lookupFunc) error {
	if !f.IsToken() {
		return nil
	}
	v, ok, err := lookup(f.TokenName())
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if !ok {
		*f = binding.Template[T]{}
		return nil
	}
	bound, err := f.Bind(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrVariableTypeMismatch, field, err)
	}
	*f = bound
	return nil
}

// substituteCommand returns a copy of c with every token passed through lookup.
func substituteCommand(c binding.Command, lookup lookupFunc) (binding.Command, error) {
	fields := []func() error{
		func() error { return bindField("destination", &c.Destination, lookup) },
		func() error { return bindField("delayBefore", &c.DelayBefore, lookup) },
		func() error { return bindField("delayAfter", &c.DelayAfter, lookup) },
		func() error { return bindField("keySend", &c.Keys, lookup) },
		func() error { return bindField("holdKeys", &c.HoldKeys, lookup) },
		func() error { return bindField("duration", &c.Duration, lookup) },
		func() error { return bindField("typeText", &c.Text, lookup) },
		func() error { return bindField("keyDelay", &c.KeyDelay, lookup) },
		func() error { return bindField("keyDelayDeviation", &c.KeyDelayDeviation, lookup) },
		func() error { return bindField("mouseMoveX", &c.X, lookup) },
		func() error { return bindField("mouseMoveY", &c.Y, lookup) },
		func() error { return bindField("launch", &c.Path, lookup) },
		func() error { return bindField("waitTillFinish", &c.WaitTillFinish, lookup) },
		func() error { return bindField("killByName", &c.ProcessName, lookup) },
		func() error { return bindField("pid", &c.PID, lookup) },
	}
	for _, bind := range fields {
		if err := bind(); err != nil {
			return c, err
		}
	}
	return c, nil
}

// substituteCall passes a nested macro call's arguments through lookup.
// Arguments whose optional source variable was omitted are dropped.
func substituteCall(call binding.MacroCall, lookup lookupFunc) (binding.MacroCall, error) {
	if len(call.Variables) == 0 {
		return call, nil
	}
	args := make(map[string]binding.Value, len(call.Variables))
	for _, name := range sortedNames(call.Variables) {
		v := call.Variables[name]
		tok, isToken := v.TokenName()
		if !isToken {
			args[name] = v
			continue
		}
		resolved, ok, err := lookup(tok)
		if err != nil {
			return call, fmt.Errorf("macro %s variable %s: %w", call.Name, name, err)
		}
		if ok {
			args[name] = resolved
		}
	}
	call.Variables = args
	return call, nil
}

// substituteStep applies lookup to whichever half of the step is set.
func substituteStep(s binding.Step, lookup lookupFunc) (binding.Step, error) {
	if s.Macro != nil {
		call, err := substituteCall(*s.Macro, lookup)
		if err != nil {
			return s, err
		}
		return binding.MacroStep(call), nil
	}
	c, err := substituteCommand(*s.Command, lookup)
	if err != nil {
		return s, err
	}
	return binding.CommandStep(c), nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
