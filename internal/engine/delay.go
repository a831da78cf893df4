package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nerrad567/relay-core/internal/binding"
)

// Level carries the delays inherited from an enclosing scope: the binding,
// a thread, or a macro call's sub-step. Nil means the scope sets nothing.
type Level struct {
	Before *int
	After  *int
}

// LevelOf returns the level set by a binding.
func LevelOf(b *binding.Binding) Level {
	return Level{Before: b.DelayBefore, After: b.DelayAfter}
}

// Override returns l with any literal delay in before/after taking its place.
func (l Level) Override(before, after binding.Template[int]) Level {
	if v, ok := before.Value(); ok {
		l.Before = &v
	}
	if v, ok := after.Value(); ok {
		l.After = &v
	}
	return l
}

// DelayPolicy picks and awaits delays.
//
// The delay for a command is, in order: the command's own value, the
// inherited level, a uniform random draw from [0, default] milliseconds,
// or nothing when the default is zero. Before and after are chosen
// independently.
type DelayPolicy struct {
	// DefaultBefore and DefaultAfter are the random upper bounds (ms).
	DefaultBefore int
	DefaultAfter  int

	intN  func(n int) int
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDelayPolicy creates a policy with the given random upper bounds.
func NewDelayPolicy(defaultBefore, defaultAfter int) *DelayPolicy {
	return &DelayPolicy{
		DefaultBefore: defaultBefore,
		DefaultAfter:  defaultAfter,
		intN:          rand.IntN,
		sleep:         sleepFull,
	}
}

// Choose resolves the delay without waiting.
func (p *DelayPolicy) Choose(level *int, command binding.Template[int], def int) (time.Duration, error) {
	if command.IsToken() {
		return 0, fmt.Errorf("%w: delay %s", ErrUnresolvedToken, binding.FormatToken(command.TokenName()))
	}
	if v, ok := command.Value(); ok {
		return ms(v), nil
	}
	if level != nil {
		return ms(*level), nil
	}
	if def > 0 {
		return ms(p.intN(def + 1)), nil
	}
	return 0, nil
}

// Before awaits the delay before a command.
func (p *DelayPolicy) Before(ctx context.Context, level Level, c *binding.Command) error {
	return p.Await(ctx, level.Before, c.DelayBefore, p.DefaultBefore)
}

// After awaits the delay after a command.
func (p *DelayPolicy) After(ctx context.Context, level Level, c *binding.Command) error {
	return p.Await(ctx, level.After, c.DelayAfter, p.DefaultAfter)
}

// Await chooses a delay and waits for it.
func (p *DelayPolicy) Await(ctx context.Context, level *int, command binding.Template[int], def int) error {
	d, err := p.Choose(level, command, def)
	if err != nil {
		return err
	}
	return p.wait(ctx, d)
}

// Literal waits for a delay only when t holds a literal number. Macro call
// delays use this: they never inherit and never draw a random default.
func (p *DelayPolicy) Literal(ctx context.Context, t binding.Template[int]) error {
	if t.IsToken() {
		return fmt.Errorf("%w: macro call delay %s", ErrUnresolvedToken, binding.FormatToken(t.TokenName()))
	}
	v, ok := t.Value()
	if !ok {
		return nil
	}
	return p.wait(ctx, ms(v))
}

func (p *DelayPolicy) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return p.sleep(ctx, d)
}

// sleepFull waits out d even when ctx is done. A started delay always
// completes; only remote calls observe cancellation.
func sleepFull(_ context.Context, d time.Duration) error {
	time.Sleep(d)
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
