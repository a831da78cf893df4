package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/relay-core/internal/binding"
)

type traceKey struct{}

// WithTrace attaches a trace id that engine log lines carry.
func WithTrace(ctx context.Context, trace string) context.Context {
	return context.WithValue(ctx, traceKey{}, trace)
}

// TraceFrom returns the trace id attached to ctx, or "".
func TraceFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

// Deps are the long-lived collaborators shared by every Processor built
// from successive bindings tables.
type Deps struct {
	Index  Index
	Store  VariableStore
	Client RemoteClient

	// Observer is optional.
	Observer DispatchObserver

	// Logger is optional.
	Logger Logger
}

// Processor runs bindings from one table.
//
// Thread Safety: Process is safe for concurrent use. Concurrent triggers of
// the same binding share its rotation cursor.
type Processor struct {
	table       *binding.Table
	index       Index
	aliases     *AliasResolver
	interpreter *Interpreter
	logger      Logger

	shuffle func(n int, swap func(i, j int))
}

// NewProcessor wires the engine for table.
func NewProcessor(table *binding.Table, deps Deps) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	aliases := NewAliasResolver(table, deps.Index, deps.Store)
	interp := NewInterpreter(
		table,
		aliases,
		NewDispatcher(deps.Client, deps.Observer),
		NewDelayPolicy(table.DelayBefore, table.Delay),
		deps.Store,
	)
	interp.SetLogger(logger)

	return &Processor{
		table:       table,
		index:       deps.Index,
		aliases:     aliases,
		interpreter: interp,
		logger:      logger,
		shuffle:     rand.Shuffle,
	}
}

// Table returns the bindings table this processor runs.
func (p *Processor) Table() *binding.Table {
	return p.table
}

// Process runs one activation of b and returns when every command it
// started has finished, or with the first error.
//
// Shapes:
//   - threads: every thread runs concurrently; the first error is
//     returned after all threads settle
//   - threadsCircular: one thread per activation, rotating
//   - circular: aliases are expanded up front and one command runs per
//     activation, rotating
//   - shuffle: aliases are expanded up front and the commands run in a
//     random order
//   - sequential: commands run in order with full alias and macro expansion
func (p *Processor) Process(ctx context.Context, b *binding.Binding) error {
	level := LevelOf(b)
	trace := TraceFrom(ctx)
	p.logger.Info("binding triggered", "trace", trace, "binding", b.Name, "shortcut", b.ShortCut, "shape", b.Shape().String())

	switch b.Shape() {
	case binding.ShapeThreads:
		return p.threads(ctx, b.Threads, level)
	case binding.ShapeThreadsCircular:
		return p.threadsCircular(ctx, b, level)
	case binding.ShapeCircular:
		return p.circular(ctx, b, level)
	case binding.ShapeShuffle:
		return p.shuffled(ctx, b, level)
	default:
		if len(b.Commands) == 0 {
			return fmt.Errorf("%w: %s has no commands", ErrInvalidBinding, b.Name)
		}
		return p.sequence(ctx, b.Commands, level)
	}
}

func (p *Processor) sequence(ctx context.Context, steps []binding.Step, level Level) error {
	for _, s := range steps {
		if err := p.interpreter.Resolve(ctx, s, true, level); err != nil {
			return err
		}
	}
	return nil
}

// threads runs each list in its own goroutine. There is no shared
// cancellation: a failing thread does not stop its siblings.
func (p *Processor) threads(ctx context.Context, lists [][]binding.Step, level Level) error {
	trace := TraceFrom(ctx)
	var g errgroup.Group
	for i, steps := range lists {
		threadCtx := WithTrace(ctx, trace+"-"+strconv.Itoa(i+1))
		g.Go(func() error {
			return p.sequence(threadCtx, steps, level)
		})
	}
	return g.Wait()
}

func (p *Processor) threadsCircular(ctx context.Context, b *binding.Binding, level Level) error {
	i, err := p.index.Next(bindingKey(b.Name), len(b.ThreadsCircular))
	if err != nil {
		return err
	}
	commands, err := p.expand(b.ThreadsCircular[i])
	if err != nil {
		return err
	}
	return p.concrete(ctx, commands, level)
}

func (p *Processor) circular(ctx context.Context, b *binding.Binding, level Level) error {
	commands, err := p.expand(b.Commands)
	if err != nil {
		return err
	}
	i, err := p.index.Next(bindingKey(b.Name), len(commands))
	if err != nil {
		return err
	}
	return p.interpreter.Resolve(ctx, binding.CommandStep(commands[i]), false, level)
}

func (p *Processor) shuffled(ctx context.Context, b *binding.Binding, level Level) error {
	commands, err := p.expand(b.Commands)
	if err != nil {
		return err
	}
	p.shuffle(len(commands), func(i, j int) {
		commands[i], commands[j] = commands[j], commands[i]
	})
	return p.concrete(ctx, commands, level)
}

// expand resolves the aliases of a flat command list. Flat lists never
// contain macro calls.
func (p *Processor) expand(steps []binding.Step) ([]binding.Command, error) {
	var out []binding.Command
	for _, s := range steps {
		if s.Command == nil {
			return nil, fmt.Errorf("%w: macro call in a flat command list", ErrInvalidBinding)
		}
		concrete, err := p.aliases.Resolve(*s.Command)
		if err != nil {
			return nil, err
		}
		out = append(out, concrete...)
	}
	return out, nil
}

func (p *Processor) concrete(ctx context.Context, commands []binding.Command, level Level) error {
	for _, c := range commands {
		if err := p.interpreter.Resolve(ctx, binding.CommandStep(c), false, level); err != nil {
			return err
		}
	}
	return nil
}
