package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/relay-core/internal/binding"
	"github.com/nerrad567/relay-core/internal/infrastructure/config"
	"github.com/nerrad567/relay-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and captures line protocol sent to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu      sync.Mutex
	lines   []string
	healthy bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{healthy: true}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			f.mu.Lock()
			healthy := f.healthy
			f.mu.Unlock()
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("X-Influxdb-Version", "v2.7.1")
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			f.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) setHealthy(v bool) {
	f.mu.Lock()
	f.healthy = v
	f.mu.Unlock()
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "relay-test-token",
		Org:           "relay",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig(f.URL), "desk-controller")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// findLine returns the first captured line for measurement.
func findLine(lines []string, measurement string) string {
	for _, l := range lines {
		if strings.HasPrefix(l, measurement+",") || strings.HasPrefix(l, measurement+" ") {
			return l
		}
	}
	return ""
}

// ─── Connection ─────────────────────────────────────────────────────────────

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	client, err := influxdb.Connect(cfg, "desk")
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() returned a client while disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := influxdb.Connect(testConfig("http://127.0.0.1:1"), "desk")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeInflux(t)
	f.setHealthy(false)

	_, err := influxdb.Connect(testConfig(f.URL), "desk")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(cfg, "")
	if err != nil {
		t.Fatalf("Connect() with zero batch settings error = %v", err)
	}
	client.Close()
}

func TestHealthCheck_AfterClose(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestHealthCheck_ServerDown(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	f.setHealthy(false)

	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() error = nil for an unhealthy server")
	}
}

func TestClose_Nil(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	var nilClient *influxdb.Client
	if nilClient.IsConnected() {
		t.Error("IsConnected() on nil client = true")
	}
}

// ─── Writes ─────────────────────────────────────────────────────────────────

func TestObserveDispatch(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.ObserveDispatch(binding.KindKeyPress, "10.0.0.1", 1500*time.Microsecond, nil)
	client.ObserveDispatch(binding.KindLaunch, "10.0.0.2", time.Millisecond, errors.New("refused"))
	client.Flush()

	lines := f.written()
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2: %v", len(lines), lines)
	}
	wantParts := [][]string{
		{"dispatch,", "controller=desk-controller", "kind=keyPress", "outcome=ok", "target=10.0.0.1", " duration_ms=1.5 "},
		{"dispatch,", "controller=desk-controller", "kind=launch", "outcome=error", "target=10.0.0.2", " duration_ms=1 "},
	}
	for i, parts := range wantParts {
		for _, part := range parts {
			if !strings.Contains(lines[i], part) {
				t.Errorf("line %d = %q, missing %q", i, lines[i], part)
			}
		}
	}
}

func TestWriteTrigger(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteTrigger("open-editor", "api", "sequential", 20*time.Millisecond, nil)
	client.Flush()

	line := findLine(f.written(), influxdb.MeasurementTrigger)
	for _, part := range []string{"binding=open-editor", "source=api", "shape=sequential", "outcome=ok", "duration_ms=20"} {
		if !strings.Contains(line, part) {
			t.Errorf("trigger line %q missing %q", line, part)
		}
	}
}

func TestWriteReload(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteReload(12, nil)
	client.Flush()

	line := findLine(f.written(), influxdb.MeasurementReload)
	if !strings.Contains(line, "outcome=ok") || !strings.Contains(line, "bindings=12i") {
		t.Errorf("reload line = %q", line)
	}
}

func TestWritePointWithTime(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	client.WritePointWithTime("variables", map[string]string{"backend": "sqlite"}, map[string]any{"count": 3}, ts)
	client.Flush()

	line := findLine(f.written(), "variables")
	for _, part := range []string{"backend=sqlite", "controller=desk-controller", " count=3i "} {
		if !strings.Contains(line, part) {
			t.Errorf("line %q missing %q", line, part)
		}
	}
	if !strings.HasSuffix(line, " 1772355600000000000") {
		t.Errorf("line %q does not end with the nanosecond timestamp", line)
	}
}

func TestWrite_AfterCloseIsDropped(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	client.Close()

	client.WriteReload(1, nil)
	client.Flush()

	if got := f.written(); len(got) != 0 {
		t.Errorf("wrote %v after Close()", got)
	}
}

func TestConcurrentWrites(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				client.ObserveDispatch(binding.KindMouseClick, "10.0.0.3", time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()
	client.Flush()

	if got := len(f.written()); got != 100 {
		t.Errorf("wrote %d lines, want 100", got)
	}
}
