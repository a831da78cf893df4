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
	"github.com/nerrad567/relay-core/internal/variables"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// remoteCall is one call received by fakeRemote.
type remoteCall struct {
	Kind string
	Host string
	Req  any
}

// fakeRemote records every call. Calls to hosts in fail return that error.
type fakeRemote struct {
	mu    sync.Mutex
	calls []remoteCall
	fail  map[string]error
	pid   int
}

func (f *fakeRemote) record(kind, host string, req any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, remoteCall{Kind: kind, Host: host, Req: req})
	if err, ok := f.fail[host]; ok {
		return err
	}
	return nil
}

func (f *fakeRemote) KeyPress(_ context.Context, host string, req remote.KeyPressRequest) error {
	return f.record("keyPress", host, req)
}

func (f *fakeRemote) MouseClick(_ context.Context, host string, req remote.MouseClickRequest) error {
	return f.record("mouseClick", host, req)
}

func (f *fakeRemote) LeftMouseClick(_ context.Context, host string) error {
	return f.record("leftMouseClick", host, nil)
}

func (f *fakeRemote) Launch(_ context.Context, host string, req remote.LaunchRequest) (remote.LaunchResult, error) {
	if err := f.record("launch", host, req); err != nil {
		return remote.LaunchResult{}, err
	}
	return remote.LaunchResult{PID: f.pid, HasPID: f.pid != 0}, nil
}

func (f *fakeRemote) KillByName(_ context.Context, host string, req remote.KillByNameRequest) error {
	return f.record("killByName", host, req)
}

func (f *fakeRemote) KillByPid(_ context.Context, host string, req remote.PIDRequest) error {
	return f.record("killByPid", host, req)
}

func (f *fakeRemote) TypeText(_ context.Context, host string, req remote.TypeTextRequest) error {
	return f.record("typeText", host, req)
}

func (f *fakeRemote) FocusWindow(_ context.Context, host string, req remote.PIDRequest) error {
	return f.record("focusWindow", host, req)
}

func (f *fakeRemote) snapshot() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remoteCall(nil), f.calls...)
}

func (f *fakeRemote) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// keysSent lists the first key of every keyPress, in order.
func (f *fakeRemote) keysSent() []string {
	var out []string
	for _, c := range f.snapshot() {
		if req, ok := c.Req.(remote.KeyPressRequest); ok {
			out = append(out, req.Keys[0])
		}
	}
	return out
}

// harness wires a Processor with fakes and records every delay.
type harness struct {
	t      *testing.T
	table  *binding.Table
	remote *fakeRemote
	store  *variables.Store
	proc   *Processor

	mu     sync.Mutex
	sleeps []time.Duration
}

func newHarness(t *testing.T, doc string) *harness {
	t.Helper()
	table, err := binding.Parse([]byte(doc))
	require.NoError(t, err)
	return newHarnessForTable(t, table)
}

func newHarnessForTable(t *testing.T, table *binding.Table) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		table:  table,
		remote: &fakeRemote{fail: map[string]error{}},
		store:  variables.NewStore(nil, nil),
	}
	h.store.Seed(table.Variables)
	h.proc = NewProcessor(table, Deps{
		Index:  NewMemoryIndex(),
		Store:  h.store,
		Client: h.remote,
	})
	h.proc.interpreter.delays.sleep = func(_ context.Context, d time.Duration) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func (h *harness) trigger(name string) error {
	h.t.Helper()
	b, ok := h.table.Binding(name)
	require.True(h.t, ok, "binding %s", name)
	return h.proc.Process(WithTrace(context.Background(), "test"), b)
}

func (h *harness) recordedSleeps() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

const targets = `
ips:
  desk: 10.0.0.1
  tv: 10.0.0.2
  lamp: 10.0.0.3
delay: 0
`

// ─── End to end ─────────────────────────────────────────────────────────────

func TestProcess_WaveMacro(t *testing.T) {
	h := newHarness(t, targets+`
macros:
  wave:
    commands:
      - keySend: "{{n}}"
        destination: desk
    variables:
      n: {type: string}
combinations:
  - name: t
    shortCut: Alt+1
    commands:
      - macro: wave
        variables: {n: "3"}
`)

	require.NoError(t, h.trigger("t"))

	calls := h.remote.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "keyPress", calls[0].Kind)
	assert.Equal(t, "10.0.0.1", calls[0].Host)
	assert.Equal(t, remote.KeyPressRequest{Keys: []string{"3"}}, calls[0].Req)
}

func TestProcess_SequentialAbortsOnFailure(t *testing.T) {
	h := newHarness(t, targets+`
combinations:
  - name: s
    shortCut: Alt+s
    commands:
      - {keySend: a, destination: desk}
      - {keySend: b, destination: tv}
      - {keySend: c, destination: desk}
`)
	h.remote.fail["10.0.0.2"] = remote.ErrTimeout

	err := h.trigger("s")
	require.ErrorIs(t, err, ErrRemoteCallFailed)
	require.ErrorIs(t, err, remote.ErrTimeout)
	assert.Equal(t, []string{"a", "b"}, h.remote.keysSent())
}

func TestProcess_AliasGroupRunsEveryMember(t *testing.T) {
	h := newHarness(t, targets+`
aliases:
  screens: [desk, pair]
  pair: [tv, lamp]
combinations:
  - name: all
    shortCut: Alt+a
    commands:
      - {typeText: hi, destination: screens}
`)

	require.NoError(t, h.trigger("all"))

	var hosts []string
	for _, c := range h.remote.snapshot() {
		hosts = append(hosts, c.Host)
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, hosts)
}

// ─── Shapes ─────────────────────────────────────────────────────────────────

func TestProcess_CircularRotatesOverExpandedList(t *testing.T) {
	h := newHarness(t, targets+`
aliases:
  pair: [desk, tv]
combinations:
  - name: rot
    shortCut: Alt+r
    circular: true
    commands:
      - {keySend: a, destination: lamp}
      - {keySend: b, destination: pair}
`)

	for range 4 {
		require.NoError(t, h.trigger("rot"))
	}

	calls := h.remote.snapshot()
	require.Len(t, calls, 4)
	got := make([]string, 0, len(calls))
	for _, c := range calls {
		got = append(got, c.Req.(remote.KeyPressRequest).Keys[0]+"@"+c.Host)
	}
	assert.Equal(t, []string{"a@10.0.0.3", "b@10.0.0.1", "b@10.0.0.2", "a@10.0.0.3"}, got)
}

func TestProcess_CircularWinsOverShuffle(t *testing.T) {
	h := newHarness(t, targets+`
combinations:
  - name: both
    shortCut: Alt+b
    circular: true
    shuffle: true
    commands:
      - {keySend: a, destination: desk}
      - {keySend: b, destination: desk}
`)
	h.proc.shuffle = func(int, func(i, j int)) { t.Fatal("shuffle must not run for circular bindings") }

	require.NoError(t, h.trigger("both"))
	require.NoError(t, h.trigger("both"))
	assert.Equal(t, []string{"a", "b"}, h.remote.keysSent())
}

func TestProcess_ThreadsCircular(t *testing.T) {
	h := newHarness(t, targets+`
combinations:
  - name: tc
    shortCut: Alt+t
    threadsCircular:
      - [{keySend: a, destination: desk}, {keySend: b, destination: desk}]
      - [{keySend: c, destination: desk}]
`)

	for range 3 {
		require.NoError(t, h.trigger("tc"))
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b"}, h.remote.keysSent())
}

func TestProcess_ShuffleUsesPermutation(t *testing.T) {
	h := newHarness(t, targets+`
combinations:
  - name: mix
    shortCut: Alt+m
    shuffle: true
    commands:
      - {keySend: a, destination: desk}
      - {keySend: b, destination: desk}
      - {keySend: c, destination: desk}
`)
	h.proc.shuffle = func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}

	require.NoError(t, h.trigger("mix"))
	assert.Equal(t, []string{"c", "b", "a"}, h.remote.keysSent())
}

func TestProcess_ShuffleIsRoughlyUniform(t *testing.T) {
	h := newHarness(t, targets+`
combinations:
  - name: mix
    shortCut: Alt+m
    shuffle: true
    commands:
      - {keySend: a, destination: desk}
      - {keySend: b, destination: desk}
      - {keySend: c, destination: desk}
`)

	const trials = 6000
	counts := map[string]int{}
	for range trials {
		h.remote.reset()
		require.NoError(t, h.trigger("mix"))
		keys := h.remote.keysSent()
		counts[keys[0]+keys[1]+keys[2]]++
	}

	require.Len(t, counts, 6, "every permutation should appear")
	expected := float64(trials) / 6
	chi := 0.0
	for _, n := range counts {
		d := float64(n) - expected
		chi += d * d / expected
	}
	// 99.9th percentile of chi-square with 5 degrees of freedom.
	assert.Less(t, chi, 20.52, "permutation counts %v", counts)
}

func TestProcess_ThreadsSettleBeforeError(t *testing.T) {
	h := newHarness(t, targets+`
combinations:
  - name: par
    shortCut: Alt+p
    threads:
      - [{keySend: x, destination: tv}]
      - [{keySend: a, destination: desk}, {keySend: b, destination: desk}, {keySend: c, destination: desk}]
`)
	h.remote.fail["10.0.0.2"] = errors.New("agent down")

	err := h.trigger("par")
	require.ErrorIs(t, err, ErrRemoteCallFailed)

	var desk []string
	for _, c := range h.remote.snapshot() {
		if c.Host == "10.0.0.1" {
			desk = append(desk, c.Req.(remote.KeyPressRequest).Keys[0])
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, desk, "sibling thread must run to completion")
}

// ─── Variables ──────────────────────────────────────────────────────────────

func TestProcess_LaunchAssignsPID(t *testing.T) {
	h := newHarness(t, targets+`
combinations:
  - name: app
    shortCut: Alt+l
    commands:
      - {launch: /usr/bin/editor, arguments: [--new], assignId: editorPid, destination: desk}
      - {focusPid: "{{editorPid}}", destination: desk}
`)
	h.remote.pid = 4242

	require.NoError(t, h.trigger("app"))

	v, ok := h.store.Get("editorPid")
	require.True(t, ok)
	assert.Equal(t, binding.Number(4242), v)

	calls := h.remote.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, remote.LaunchRequest{Path: "/usr/bin/editor", Arguments: []string{"--new"}}, calls[0].Req)
	assert.Equal(t, remote.PIDRequest{PID: 4242}, calls[1].Req)
}

func TestProcess_StoreThenEnvironment(t *testing.T) {
	t.Setenv("RELAY_TEST_GREETING", "from-env")
	h := newHarness(t, targets+`
variables:
  x: 15
combinations:
  - name: v
    shortCut: Alt+v
    commands:
      - {mouseMoveX: "{{x}}", mouseMoveY: "{{RELAY_TEST_Y}}", destination: desk}
      - {typeText: "{{RELAY_TEST_GREETING}}", destination: desk}
  - name: missing
    shortCut: Alt+n
    commands:
      - {typeText: "{{RELAY_TEST_UNSET_VARIABLE}}", destination: desk}
`)
	t.Setenv("RELAY_TEST_Y", "25")

	require.NoError(t, h.trigger("v"))
	calls := h.remote.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, remote.MouseClickRequest{X: 15, Y: 25}, calls[0].Req)
	assert.Equal(t, remote.TypeTextRequest{Text: "from-env"}, calls[1].Req)

	err := h.trigger("missing")
	assert.ErrorIs(t, err, ErrUnresolvedToken)
}

func TestInterpreter_MacroVariableErrors(t *testing.T) {
	h := newHarness(t, targets+`
macros:
  move:
    commands:
      - {mouseMoveX: "{{x}}", mouseMoveY: 1, destination: desk}
    variables:
      x: {type: number}
  greet:
    commands:
      - {typeText: "{{text}}", destination: desk}
      - {keySend: enter, holdKeys: "{{mod}}", destination: desk}
    variables:
      text: {type: string, optional: true}
      mod: {type: string, optional: true}
combinations:
  - name: ok
    shortCut: Alt+o
    commands:
      - {macro: move, variables: {x: 5}}
`)
	ctx := context.Background()
	run := func(call binding.MacroCall) error {
		return h.proc.interpreter.Resolve(ctx, binding.MacroStep(call), true, Level{})
	}

	err := run(binding.MacroCall{Name: "move"})
	assert.ErrorIs(t, err, ErrMissingVariable)

	err = run(binding.MacroCall{Name: "move", Variables: map[string]binding.Value{"x": binding.String("left")}})
	assert.ErrorIs(t, err, ErrVariableTypeMismatch)

	// A token value is passed through and resolved from the store.
	require.NoError(t, h.store.Set(ctx, "savedX", binding.Number(7)))
	h.remote.reset()
	require.NoError(t, run(binding.MacroCall{
		Name:      "move",
		Variables: map[string]binding.Value{"x": binding.String("{{savedX}}")},
	}))
	assert.Equal(t, remote.MouseClickRequest{X: 7, Y: 1}, h.remote.snapshot()[0].Req)

	// Omitted optional variables clear their field; typeText without text
	// has nowhere to go.
	err = run(binding.MacroCall{Name: "greet"})
	assert.ErrorIs(t, err, ErrUnroutableCommand)

	h.remote.reset()
	require.NoError(t, run(binding.MacroCall{
		Name:      "greet",
		Variables: map[string]binding.Value{"text": binding.String("hi")},
	}))
	calls := h.remote.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, remote.KeyPressRequest{Keys: []string{"enter"}}, calls[1].Req)

	err = run(binding.MacroCall{Name: "nope"})
	assert.ErrorIs(t, err, ErrUnknownMacro)
}

func TestInterpreter_NestedMacroArguments(t *testing.T) {
	h := newHarness(t, targets+`
aliases:
  screens: {ipNames: [desk, tv], circular: true}
macros:
  inner:
    commands:
      - {killByPid: "{{pid}}", destination: "{{where}}"}
    variables:
      pid: {type: number}
      where: {type: string}
  outer:
    commands:
      - {macro: inner, variables: {pid: "{{p}}", where: screens}}
    variables:
      p: {type: number}
combinations:
  - name: k
    shortCut: Ctrl+Alt+k
    commands:
      - {macro: outer, variables: {p: "{{appPid}}"}}
`)
	require.NoError(t, h.store.Set(context.Background(), "appPid", binding.Number(31)))

	require.NoError(t, h.trigger("k"))
	require.NoError(t, h.trigger("k"))

	calls := h.remote.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, remote.PIDRequest{PID: 31}, calls[0].Req)
	assert.Equal(t, "10.0.0.1", calls[0].Host)
	assert.Equal(t, "10.0.0.2", calls[1].Host, "circular alias rotates per activation")
}

func TestInterpreter_MacroDepthGuard(t *testing.T) {
	// Built by hand: validation would reject the recursion.
	table := &binding.Table{
		Targets: map[string]string{"desk": "10.0.0.1"},
		Macros: map[string]binding.Macro{
			"loop": {Steps: []binding.Step{binding.MacroStep(binding.MacroCall{Name: "loop"})}},
		},
	}
	h := newHarnessForTable(t, table)

	err := h.proc.interpreter.Resolve(context.Background(), binding.MacroStep(binding.MacroCall{Name: "loop"}), true, Level{})
	assert.ErrorIs(t, err, ErrMacroDepth)
}

// ─── Delays ─────────────────────────────────────────────────────────────────

func TestProcess_DelayLayers(t *testing.T) {
	h := newHarness(t, targets+`
macros:
  pause:
    commands:
      - {keySend: m, destination: desk}
      - {keySend: n, destination: desk, delayAfter: 5}
combinations:
  - name: d
    shortCut: Alt+d
    delayAfter: 200
    commands:
      - {keySend: a, destination: desk, delayAfter: 50}
      - {keySend: b, destination: desk, delayBefore: 10}
      - {macro: pause, delayBefore: 30, delayAfter: 40}
`)

	require.NoError(t, h.trigger("d"))

	want := []time.Duration{
		50 * time.Millisecond,  // a: command wins over binding
		10 * time.Millisecond,  // b: its own before
		200 * time.Millisecond, // b: binding after
		30 * time.Millisecond,  // macro call before
		200 * time.Millisecond, // m: inherits binding after
		5 * time.Millisecond,   // n: own after
		40 * time.Millisecond,  // macro call after
	}
	assert.Equal(t, want, h.recordedSleeps())
}

func TestDelayPolicy_Precedence(t *testing.T) {
	p := NewDelayPolicy(0, 1000)
	level := 200

	d, err := p.Choose(&level, binding.Literal(50), 1000)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, d)

	d, err = p.Choose(&level, binding.Template[int]{}, 1000)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, d)

	for range 500 {
		d, err = p.Choose(nil, binding.Template[int]{}, 1000)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}

	p.intN = func(n int) int { return n - 1 }
	d, _ = p.Choose(nil, binding.Template[int]{}, 1000)
	assert.Equal(t, time.Second, d, "upper bound is inclusive")

	d, err = p.Choose(nil, binding.Template[int]{}, 0)
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = p.Choose(nil, binding.Token[int]("later"), 0)
	assert.ErrorIs(t, err, ErrUnresolvedToken)
}

func TestDelayPolicy_WaitOutlivesCancellation(t *testing.T) {
	p := NewDelayPolicy(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Await(ctx, nil, binding.Literal(40), 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
