package binding

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func mustParse(t *testing.T, doc string) *Table {
	t.Helper()
	table, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return table
}

const registryDoc = `
ips: {desk: 10.0.0.1}
delay: 0
combinations:
  - {name: zeta, shortCut: Alt+z, commands: [{keySend: z, destination: desk}]}
  - {name: alpha, shortCut: Alt+a, commands: [{keySend: a, destination: desk}]}
`

func TestRegistry_NotLoaded(t *testing.T) {
	r := NewRegistry(func() (*Table, error) { return nil, errors.New("unused") })

	if _, err := r.GetBinding("alpha"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("GetBinding() error = %v, want ErrNotLoaded", err)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	table := mustParse(t, registryDoc)
	r := NewRegistry(func() (*Table, error) { return table, nil })
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	b, err := r.GetBinding("alpha")
	if err != nil {
		t.Fatalf("GetBinding() error = %v", err)
	}
	if b.ShortCut != "Alt+a" {
		t.Errorf("ShortCut = %q, want Alt+a", b.ShortCut)
	}

	b, err = r.GetBindingByShortCut("ALT+Z")
	if err != nil {
		t.Fatalf("GetBindingByShortCut() error = %v", err)
	}
	if b.Name != "zeta" {
		t.Errorf("Name = %q, want zeta", b.Name)
	}

	if _, err := r.GetBinding("missing"); !errors.Is(err, ErrBindingNotFound) {
		t.Errorf("GetBinding(missing) error = %v, want ErrBindingNotFound", err)
	}

	list, err := r.ListBindings()
	if err != nil {
		t.Fatalf("ListBindings() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("ListBindings() order = %v, want [alpha zeta]", []string{list[0].Name, list[1].Name})
	}

	targets, _ := r.Targets()
	targets["desk"] = "changed"
	again, _ := r.Targets()
	if again["desk"] != "10.0.0.1" {
		t.Error("Targets() must return a copy")
	}
}

func TestRegistry_FailedReloadKeepsTable(t *testing.T) {
	table := mustParse(t, registryDoc)
	var fail atomic.Bool
	r := NewRegistry(func() (*Table, error) {
		if fail.Load() {
			return nil, ErrInvalidTable
		}
		return table, nil
	})

	var hooks atomic.Int32
	r.OnReload(func(*Table) { hooks.Add(1) })

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	fail.Store(true)
	if err := r.Reload(context.Background()); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("Reload() error = %v, want ErrInvalidTable", err)
	}

	if _, err := r.GetBinding("alpha"); err != nil {
		t.Errorf("previous table lost: %v", err)
	}
	if hooks.Load() != 1 {
		t.Errorf("OnReload hooks ran %d times, want 1", hooks.Load())
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bindings.yaml")
	if err := os.WriteFile(path, []byte(registryDoc), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	r := NewRegistry(FileLoader(path))
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(path, r, 20*time.Millisecond, nil)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Close()

	updated := registryDoc + "  - {name: beta, shortCut: Alt+b, commands: [{keySend: b, destination: desk}]}\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.GetBinding("beta"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher did not reload the bindings file")
}
