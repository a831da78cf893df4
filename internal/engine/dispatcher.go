package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/relay-core/internal/binding"
	"github.com/nerrad567/relay-core/internal/remote"
)

// RemoteClient is the outbound surface of a target agent.
type RemoteClient interface {
	KeyPress(ctx context.Context, host string, req remote.KeyPressRequest) error
	MouseClick(ctx context.Context, host string, req remote.MouseClickRequest) error
	LeftMouseClick(ctx context.Context, host string) error
	Launch(ctx context.Context, host string, req remote.LaunchRequest) (remote.LaunchResult, error)
	KillByName(ctx context.Context, host string, req remote.KillByNameRequest) error
	KillByPid(ctx context.Context, host string, req remote.PIDRequest) error
	TypeText(ctx context.Context, host string, req remote.TypeTextRequest) error
	FocusWindow(ctx context.Context, host string, req remote.PIDRequest) error
}

// DispatchObserver is told about every remote call. Implementations must
// not block.
type DispatchObserver interface {
	ObserveDispatch(kind binding.Kind, target string, elapsed time.Duration, err error)
}

// Target is a concrete destination: its name in the table and its address.
type Target struct {
	Name    string
	Address string
}

// Result carries what a remote call returned, if anything.
type Result struct {
	PID    int
	HasPID bool
}

// handler turns one accepted command shape into one remote call.
type handler struct {
	kind    binding.Kind
	accepts func(c *binding.Command) bool
	run     func(ctx context.Context, rc RemoteClient, host string, c *binding.Command) (Result, error)
}

// handlers is the fixed dispatch chain. Order matters only when two
// handlers could accept the same command; the first match wins.
var handlers = []handler{
	{
		kind: binding.KindKeyPress,
		accepts: func(c *binding.Command) bool {
			keys, ok := c.Keys.Value()
			return ok && len(keys) > 0 && literalOrUnset(c.HoldKeys) && literalOrUnset(c.Duration)
		},
		run: func(ctx context.Context, rc RemoteClient, host string, c *binding.Command) (Result, error) {
			req := remote.KeyPressRequest{
				Keys:     c.Keys.Or(nil),
				HoldKeys: c.HoldKeys.Or(nil),
				Duration: optional(c.Duration),
			}
			return Result{}, rc.KeyPress(ctx, host, req)
		},
	},
	{
		kind:    binding.KindFocusWindow,
		accepts: func(c *binding.Command) bool { return isLiteral(c.PID) },
		run: func(ctx context.Context, rc RemoteClient, host string, c *binding.Command) (Result, error) {
			return Result{}, rc.FocusWindow(ctx, host, remote.PIDRequest{PID: c.PID.Or(0)})
		},
	},
	{
		kind:    binding.KindMouseClick,
		accepts: func(c *binding.Command) bool { return isLiteral(c.X) && isLiteral(c.Y) },
		run: func(ctx context.Context, rc RemoteClient, host string, c *binding.Command) (Result, error) {
			return Result{}, rc.MouseClick(ctx, host, remote.MouseClickRequest{X: c.X.Or(0), Y: c.Y.Or(0)})
		},
	},
	{
		kind:    binding.KindLeftMouseClick,
		accepts: func(*binding.Command) bool { return true },
		run: func(ctx context.Context, rc RemoteClient, host string, _ *binding.Command) (Result, error) {
			return Result{}, rc.LeftMouseClick(ctx, host)
		},
	},
	{
		kind: binding.KindLaunch,
		accepts: func(c *binding.Command) bool {
			return isLiteral(c.Path) && literalOrUnset(c.WaitTillFinish)
		},
		run: func(ctx context.Context, rc RemoteClient, host string, c *binding.Command) (Result, error) {
			res, err := rc.Launch(ctx, host, remote.LaunchRequest{
				Path:           c.Path.Or(""),
				Arguments:      c.Arguments,
				WaitTillFinish: c.WaitTillFinish.Or(false),
			})
			return Result{PID: res.PID, HasPID: res.HasPID}, err
		},
	},
	{
		kind: binding.KindTypeText,
		accepts: func(c *binding.Command) bool {
			return isLiteral(c.Text) && literalOrUnset(c.KeyDelay) && literalOrUnset(c.KeyDelayDeviation)
		},
		run: func(ctx context.Context, rc RemoteClient, host string, c *binding.Command) (Result, error) {
			return Result{}, rc.TypeText(ctx, host, remote.TypeTextRequest{
				Text:              c.Text.Or(""),
				KeyDelay:          optional(c.KeyDelay),
				KeyDelayDeviation: optional(c.KeyDelayDeviation),
			})
		},
	},
	{
		kind:    binding.KindKillByName,
		accepts: func(c *binding.Command) bool { return isLiteral(c.ProcessName) },
		run: func(ctx context.Context, rc RemoteClient, host string, c *binding.Command) (Result, error) {
			return Result{}, rc.KillByName(ctx, host, remote.KillByNameRequest{Name: c.ProcessName.Or("")})
		},
	},
	{
		kind:    binding.KindKillByPid,
		accepts: func(c *binding.Command) bool { return isLiteral(c.PID) },
		run: func(ctx context.Context, rc RemoteClient, host string, c *binding.Command) (Result, error) {
			return Result{}, rc.KillByPid(ctx, host, remote.PIDRequest{PID: c.PID.Or(0)})
		},
	},
}

// Dispatcher routes resolved commands to the remote client.
//
// Thread Safety: Dispatch is safe for concurrent use.
type Dispatcher struct {
	client   RemoteClient
	observer DispatchObserver
}

// NewDispatcher creates a dispatcher. observer may be nil.
func NewDispatcher(client RemoteClient, observer DispatchObserver) *Dispatcher {
	return &Dispatcher{client: client, observer: observer}
}

// Dispatch issues exactly one remote call for cmd, using the first handler
// that accepts it.
//
// Returns:
//   - Result: the pid for Launch commands when the agent reported one
//   - error: ErrUnroutableCommand if no handler accepts the command, or
//     ErrRemoteCallFailed wrapping the client's error
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, cmd binding.Command) (Result, error) {
	for i := range handlers {
		h := &handlers[i]
		if h.kind != cmd.Kind || !h.accepts(&cmd) {
			continue
		}

		start := time.Now()
		res, err := h.run(ctx, d.client, target.Address, &cmd)
		if d.observer != nil {
			d.observer.ObserveDispatch(cmd.Kind, target.Name, time.Since(start), err)
		}
		if err != nil {
			return Result{}, fmt.Errorf("%w: %s to %s: %w", ErrRemoteCallFailed, cmd.Kind, target.Name, err)
		}
		return res, nil
	}
	return Result{}, fmt.Errorf("%w: %s", ErrUnroutableCommand, cmd)
}

func isLiteral[T any](t binding.Template[T]) bool {
	_, ok := t.Value()
	return ok
}

func literalOrUnset[T any](t binding.Template[T]) bool {
	return !t.IsToken()
}

func optional(t binding.Template[int]) *int {
	v, ok := t.Value()
	if !ok {
		return nil
	}
	return &v
}
