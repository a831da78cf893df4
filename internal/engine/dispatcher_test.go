package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/relay-core/internal/binding"
	"github.com/nerrad567/relay-core/internal/remote"
)

type observed struct {
	kind   binding.Kind
	target string
	err    error
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (o *recordingObserver) ObserveDispatch(kind binding.Kind, target string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observed{kind: kind, target: target, err: err})
}

func TestDispatcher_Routes(t *testing.T) {
	desk := Target{Name: "desk", Address: "10.0.0.1"}
	four := 4

	tests := []struct {
		name     string
		cmd      binding.Command
		wantKind string
		wantReq  any
	}{
		{
			name: "key press with hold keys",
			cmd: binding.Command{
				Kind:     binding.KindKeyPress,
				Keys:     binding.Literal(binding.Keys{"c"}),
				HoldKeys: binding.Literal(binding.Keys{"ctrl"}),
				Duration: binding.Literal(4),
			},
			wantKind: "keyPress",
			wantReq:  remote.KeyPressRequest{Keys: []string{"c"}, HoldKeys: []string{"ctrl"}, Duration: &four},
		},
		{
			name:     "mouse click",
			cmd:      binding.Command{Kind: binding.KindMouseClick, X: binding.Literal(3), Y: binding.Literal(9)},
			wantKind: "mouseClick",
			wantReq:  remote.MouseClickRequest{X: 3, Y: 9},
		},
		{
			name:     "left mouse click",
			cmd:      binding.Command{Kind: binding.KindLeftMouseClick},
			wantKind: "leftMouseClick",
		},
		{
			name:     "kill by name",
			cmd:      binding.Command{Kind: binding.KindKillByName, ProcessName: binding.Literal("notepad.exe")},
			wantKind: "killByName",
			wantReq:  remote.KillByNameRequest{Name: "notepad.exe"},
		},
		{
			name:     "focus window",
			cmd:      binding.Command{Kind: binding.KindFocusWindow, PID: binding.Literal(12)},
			wantKind: "focusWindow",
			wantReq:  remote.PIDRequest{PID: 12},
		},
		{
			name:     "type text",
			cmd:      binding.Command{Kind: binding.KindTypeText, Text: binding.Literal("hello"), KeyDelay: binding.Literal(4)},
			wantKind: "typeText",
			wantReq:  remote.TypeTextRequest{Text: "hello", KeyDelay: &four},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &fakeRemote{}
			obs := &recordingObserver{}
			d := NewDispatcher(rc, obs)

			_, err := d.Dispatch(context.Background(), desk, tt.cmd)
			require.NoError(t, err)

			calls := rc.snapshot()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantKind, calls[0].Kind)
			assert.Equal(t, "10.0.0.1", calls[0].Host)
			assert.Equal(t, tt.wantReq, calls[0].Req)

			require.Len(t, obs.seen, 1)
			assert.Equal(t, tt.cmd.Kind, obs.seen[0].kind)
			assert.Equal(t, "desk", obs.seen[0].target)
		})
	}
}

func TestDispatcher_Unroutable(t *testing.T) {
	rc := &fakeRemote{}
	obs := &recordingObserver{}
	d := NewDispatcher(rc, obs)
	desk := Target{Name: "desk", Address: "10.0.0.1"}

	cases := []binding.Command{
		{Kind: binding.KindKeyPress},
		{Kind: binding.KindKeyPress, Keys: binding.Token[binding.Keys]("k")},
		{Kind: binding.KindTypeText, Text: binding.Literal("x"), KeyDelay: binding.Token[int]("d")},
		{Kind: binding.KindMouseClick, X: binding.Literal(1)},
		{Kind: binding.KindKillByPid},
		{Kind: "teleport"},
	}
	for _, c := range cases {
		_, err := d.Dispatch(context.Background(), desk, c)
		assert.ErrorIs(t, err, ErrUnroutableCommand, "command %s", c)
	}
	assert.Empty(t, rc.snapshot())
	assert.Empty(t, obs.seen, "unroutable commands make no call")
}

func TestDispatcher_RemoteFailure(t *testing.T) {
	agentErr := errors.New("connection refused")
	rc := &fakeRemote{fail: map[string]error{"10.0.0.1": agentErr}}
	obs := &recordingObserver{}
	d := NewDispatcher(rc, obs)

	_, err := d.Dispatch(context.Background(), Target{Name: "desk", Address: "10.0.0.1"},
		binding.Command{Kind: binding.KindKillByPid, PID: binding.Literal(7)})

	require.ErrorIs(t, err, ErrRemoteCallFailed)
	assert.ErrorIs(t, err, agentErr)
	assert.Contains(t, err.Error(), "killByPid to desk")
	require.Len(t, obs.seen, 1)
	assert.ErrorIs(t, obs.seen[0].err, agentErr)
}

func TestDispatcher_LaunchResult(t *testing.T) {
	rc := &fakeRemote{pid: 99}
	d := NewDispatcher(rc, nil)

	res, err := d.Dispatch(context.Background(), Target{Name: "desk", Address: "h"}, binding.Command{
		Kind:           binding.KindLaunch,
		Path:           binding.Literal("C:/tools/app.exe"),
		WaitTillFinish: binding.Literal(true),
	})
	require.NoError(t, err)
	assert.Equal(t, Result{PID: 99, HasPID: true}, res)
	assert.Equal(t, remote.LaunchRequest{Path: "C:/tools/app.exe", WaitTillFinish: true}, rc.snapshot()[0].Req)
}
