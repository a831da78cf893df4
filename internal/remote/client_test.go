package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/relay-core/internal/infrastructure/config"
)

// ─── Test Agent ─────────────────────────────────────────────────────────────

type recordedCall struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeAgent struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(w http.ResponseWriter, r *http.Request)
}

func (a *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	if len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	a.mu.Lock()
	a.calls = append(a.calls, recordedCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	respond := a.respond
	a.mu.Unlock()

	if respond != nil {
		respond(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (a *fakeAgent) last(t *testing.T) recordedCall {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.calls) == 0 {
		t.Fatal("agent received no calls")
	}
	return a.calls[len(a.calls)-1]
}

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func newTestClient(t *testing.T, agent http.Handler, timeoutMS int) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(agent)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	c, err := New(config.RemoteConfig{
		Protocol:          "http",
		Port:              port,
		TimeoutMS:         timeoutMS,
		TypeTextTimeoutMS: timeoutMS * 3,
	}, staticToken("tok-123"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, host
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestClient_KeyPress(t *testing.T) {
	agent := &fakeAgent{}
	c, host := newTestClient(t, agent, 1000)

	err := c.KeyPress(context.Background(), host, KeyPressRequest{Keys: []string{"ctrl", "c"}})
	if err != nil {
		t.Fatalf("KeyPress() error = %v", err)
	}

	call := agent.last(t)
	if call.Method != http.MethodPost || call.Path != "/key-press" {
		t.Errorf("call = %s %s, want POST /key-press", call.Method, call.Path)
	}
	if call.Auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want %q", call.Auth, "Bearer tok-123")
	}
	keys, _ := call.Body["keys"].([]any)
	if len(keys) != 2 || keys[0] != "ctrl" || keys[1] != "c" {
		t.Errorf("keys = %v, want [ctrl c]", call.Body["keys"])
	}
	if hold, ok := call.Body["holdKeys"].([]any); !ok || len(hold) != 0 {
		t.Errorf("holdKeys = %v, want empty list", call.Body["holdKeys"])
	}
}

func TestClient_EndpointsAndBodies(t *testing.T) {
	agent := &fakeAgent{}
	c, host := newTestClient(t, agent, 1000)
	ctx := context.Background()

	tests := []struct {
		name     string
		call     func() error
		wantPath string
		wantKey  string
		wantVal  any
	}{
		{"mouse click", func() error { return c.MouseClick(ctx, host, MouseClickRequest{X: 10, Y: 20}) }, "/mouse-click", "y", float64(20)},
		{"left click", func() error { return c.LeftMouseClick(ctx, host) }, "/left-mouse-click", "", nil},
		{"kill by name", func() error { return c.KillByName(ctx, host, KillByNameRequest{Name: "notepad.exe"}) }, "/kill-exe-by-name", "name", "notepad.exe"},
		{"kill by pid", func() error { return c.KillByPid(ctx, host, PIDRequest{PID: 42}) }, "/kill-exe-by-pid", "pid", float64(42)},
		{"type text", func() error { return c.TypeText(ctx, host, TypeTextRequest{Text: "hello"}) }, "/type-text", "text", "hello"},
		{"focus", func() error { return c.FocusWindow(ctx, host, PIDRequest{PID: 7}) }, "/focus-exe", "pid", float64(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err != nil {
				t.Fatalf("call error = %v", err)
			}
			got := agent.last(t)
			if got.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", got.Path, tt.wantPath)
			}
			if tt.wantKey != "" && got.Body[tt.wantKey] != tt.wantVal {
				t.Errorf("body[%s] = %v, want %v", tt.wantKey, got.Body[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestClient_Ping(t *testing.T) {
	agent := &fakeAgent{}
	c, host := newTestClient(t, agent, 1000)

	if err := c.Ping(context.Background(), host); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	call := agent.last(t)
	if call.Method != http.MethodGet || call.Path != "/ping" {
		t.Errorf("call = %s %s, want GET /ping", call.Method, call.Path)
	}
}

func TestClient_LaunchReturnsPID(t *testing.T) {
	agent := &fakeAgent{respond: func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"pid":4242,"parentPid":1,"path":"C:\\app.exe","wids":[]}`))
	}}
	c, host := newTestClient(t, agent, 1000)

	res, err := c.Launch(context.Background(), host, LaunchRequest{Path: "C:\\app.exe"})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !res.HasPID || res.PID != 4242 {
		t.Errorf("Launch() = %+v, want pid 4242", res)
	}

	body := agent.last(t).Body
	if args, ok := body["arguments"].([]any); !ok || len(args) != 0 {
		t.Errorf("arguments = %v, want empty list", body["arguments"])
	}
	if body["waitTillFinish"] != false {
		t.Errorf("waitTillFinish = %v, want false", body["waitTillFinish"])
	}
}

func TestClient_LaunchWithoutPID(t *testing.T) {
	c, host := newTestClient(t, &fakeAgent{}, 1000)

	res, err := c.Launch(context.Background(), host, LaunchRequest{Path: "/bin/true"})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if res.HasPID {
		t.Errorf("HasPID = true, want false for %+v", res)
	}
}

func TestClient_NonSuccessStatus(t *testing.T) {
	agent := &fakeAgent{respond: func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "window not found", http.StatusNotFound)
	}}
	c, host := newTestClient(t, agent, 1000)

	err := c.FocusWindow(context.Background(), host, PIDRequest{PID: 1})
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("error = %v, want ErrRequestFailed", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	agent := &fakeAgent{respond: func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}}
	c, host := newTestClient(t, agent, 50)
	defer close(release)

	start := time.Now()
	err := c.KeyPress(context.Background(), host, KeyPressRequest{Keys: []string{"a"}})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestClient_ParentDeadlineIsNotCallTimeout(t *testing.T) {
	release := make(chan struct{})
	agent := &fakeAgent{respond: func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}}
	c, host := newTestClient(t, agent, 5000)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.KeyPress(ctx, host, KeyPressRequest{Keys: []string{"a"}})
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, call timeout did not fire", err)
	}
	if !errors.Is(err, ErrRequestFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want ErrRequestFailed wrapping the parent deadline", err)
	}
}

func TestClient_ParentCancelled(t *testing.T) {
	agent := &fakeAgent{}
	c, host := newTestClient(t, agent, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.KeyPress(ctx, host, KeyPressRequest{Keys: []string{"a"}})
	if !errors.Is(err, ErrRequestFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want ErrRequestFailed wrapping context.Canceled", err)
	}
}

func TestNew_BadTLSFiles(t *testing.T) {
	_, err := New(config.RemoteConfig{
		Protocol: "https",
		Port:     5000,
		TLS:      config.RemoteTLSConfig{CAFile: "/nonexistent/ca.pem"},
	}, nil, nil)
	if !errors.Is(err, ErrTLSConfig) {
		t.Errorf("New() error = %v, want ErrTLSConfig", err)
	}
}
