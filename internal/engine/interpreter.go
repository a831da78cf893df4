package engine

import (
	"context"
	"fmt"

	"github.com/nerrad567/relay-core/internal/binding"
)

// maxMacroDepth bounds nested macro calls.
const maxMacroDepth = 16

// VariableStore is the shared variable map: tokens are read from it and
// Launch commands with assignId write the returned pid back.
type VariableStore interface {
	VariableSource
	Set(ctx context.Context, name string, value binding.Value) error
}

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Interpreter walks macro and alias layers down to dispatchable commands.
//
// It holds no state of its own; rotation state lives in the Index and
// variables in the VariableStore.
type Interpreter struct {
	table      *binding.Table
	aliases    *AliasResolver
	dispatcher *Dispatcher
	delays     *DelayPolicy
	store      VariableStore
	logger     Logger
}

// NewInterpreter wires an interpreter for one bindings table.
func NewInterpreter(table *binding.Table, aliases *AliasResolver, dispatcher *Dispatcher, delays *DelayPolicy, store VariableStore) *Interpreter {
	return &Interpreter{
		table:      table,
		aliases:    aliases,
		dispatcher: dispatcher,
		delays:     delays,
		store:      store,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger.
func (in *Interpreter) SetLogger(logger Logger) {
	if logger != nil {
		in.logger = logger
	}
}

// Resolve runs one step.
//
//   - a macro call awaits its own literal delayBefore, runs each sub-step with
//     the macro's variables substituted and alias resolution enabled, then
//     awaits its literal delayAfter
//   - a command with resolveAlias expands its destination and runs every
//     concrete copy in order
//   - a concrete command has store and environment tokens substituted, then
//     waits, dispatches and waits again
//
// Parameters:
//   - ctx: cancels pending delays and remote calls
//   - step: the command or macro call to run
//   - resolveAlias: false when the caller already expanded the destination
//   - level: delays inherited from the enclosing scope
//
// Errors propagate unchanged; nothing is retried.
func (in *Interpreter) Resolve(ctx context.Context, step binding.Step, resolveAlias bool, level Level) error {
	return in.resolve(ctx, step, resolveAlias, level, 0)
}

func (in *Interpreter) resolve(ctx context.Context, step binding.Step, resolveAlias bool, level Level, depth int) error {
	switch {
	case step.Macro != nil:
		return in.macro(ctx, step.Macro, level, depth)
	case step.Command == nil:
		return fmt.Errorf("%w: empty step", ErrInvalidBinding)
	case resolveAlias:
		concrete, err := in.aliases.Resolve(*step.Command)
		if err != nil {
			return err
		}
		for _, c := range concrete {
			if err := in.run(ctx, c, level); err != nil {
				return err
			}
		}
		return nil
	default:
		return in.run(ctx, *step.Command, level)
	}
}

func (in *Interpreter) macro(ctx context.Context, call *binding.MacroCall, level Level, depth int) error {
	if depth >= maxMacroDepth {
		return fmt.Errorf("%w: %s at depth %d", ErrMacroDepth, call.Name, depth)
	}
	m, ok := in.table.Macros[call.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMacro, call.Name)
	}
	if err := checkCall(call, m.Variables); err != nil {
		return err
	}

	if err := in.delays.Literal(ctx, call.DelayBefore); err != nil {
		return err
	}

	scope := macroScope(call.Name, m.Variables, call.Variables)
	for _, sub := range m.Steps {
		prepared, err := substituteStep(sub, scope)
		if err != nil {
			return err
		}
		if err := in.resolve(ctx, prepared, true, subLevel(level, prepared), depth+1); err != nil {
			return err
		}
	}

	return in.delays.Literal(ctx, call.DelayAfter)
}

// subLevel lets a sub-command's own literal delays replace the inherited ones.
// A nested macro call's delays apply to the call itself, not its body.
func subLevel(level Level, s binding.Step) Level {
	if s.Command == nil {
		return level
	}
	return level.Override(s.Command.DelayBefore, s.Command.DelayAfter)
}

// run executes one concrete command.
func (in *Interpreter) run(ctx context.Context, cmd binding.Command, level Level) error {
	cmd, err := substituteCommand(cmd, storeScope(in.store))
	if err != nil {
		return err
	}

	dest, _ := cmd.Destination.Value()
	addr, ok := in.table.Targets[dest]
	if !ok {
		return fmt.Errorf("%w: %s is not a target", ErrUnknownDestination, dest)
	}

	if err := in.delays.Before(ctx, level, &cmd); err != nil {
		return err
	}

	trace := TraceFrom(ctx)
	in.logger.Debug("dispatching command", "trace", trace, "kind", cmd.Kind, "target", dest, "command", cmd.String())

	res, err := in.dispatcher.Dispatch(ctx, Target{Name: dest, Address: addr}, cmd)
	if err != nil {
		return err
	}

	if cmd.AssignID != "" && res.HasPID {
		if err := in.store.Set(ctx, cmd.AssignID, binding.Number(float64(res.PID))); err != nil {
			return fmt.Errorf("assigning %s: %w", cmd.AssignID, err)
		}
		in.logger.Debug("pid assigned", "trace", trace, "variable", cmd.AssignID, "pid", res.PID)
	}

	return in.delays.After(ctx, level, &cmd)
}
