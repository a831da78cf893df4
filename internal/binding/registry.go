package binding

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry and Watcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Loader produces a validated table. LoadFile bound to a path is the usual one.
type Loader func() (*Table, error)

// FileLoader returns a Loader reading path.
func FileLoader(path string) Loader {
	return func() (*Table, error) { return LoadFile(path) }
}

// Registry holds the current bindings table and swaps it atomically on reload.
//
// A failed reload keeps the previous table, so a bad edit to the bindings
// file never leaves the controller without bindings.
//
// All public methods are thread-safe.
type Registry struct {
	load     Loader
	table    *Table
	mu       sync.RWMutex
	logger   Logger
	onReload []func(*Table)
}

// NewRegistry creates a registry that loads tables with load.
func NewRegistry(load Loader) *Registry {
	return &Registry{
		load:   load,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// OnReload registers fn to run after every successful load.
func (r *Registry) OnReload(fn func(*Table)) {
	r.mu.Lock()
	r.onReload = append(r.onReload, fn)
	r.mu.Unlock()
}

// Reload loads a fresh table and replaces the current one.
func (r *Registry) Reload(_ context.Context) error {
	t, err := r.load()
	if err != nil {
		r.logger.Error("bindings reload failed", "error", err)
		return err
	}

	r.mu.Lock()
	r.table = t
	hooks := append([]func(*Table){}, r.onReload...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(t)
	}

	r.logger.Info("bindings loaded",
		"bindings", len(t.Bindings),
		"targets", len(t.Targets),
		"aliases", len(t.Aliases),
		"macros", len(t.Macros),
	)
	for _, b := range sortedBindings(t.Bindings) {
		r.logger.Debug("binding registered", "shortcut", b.ShortCut, "name", b.Name, "shape", b.Shape().String())
	}
	return nil
}

// Table returns the current table.
func (r *Registry) Table() (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.table == nil {
		return nil, ErrNotLoaded
	}
	return r.table, nil
}

// GetBinding returns the binding with the given name.
func (r *Registry) GetBinding(name string) (*Binding, error) {
	t, err := r.Table()
	if err != nil {
		return nil, err
	}
	b, ok := t.Binding(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBindingNotFound, name)
	}
	return b, nil
}

// GetBindingByShortCut returns the binding for a key combination.
func (r *Registry) GetBindingByShortCut(shortCut string) (*Binding, error) {
	t, err := r.Table()
	if err != nil {
		return nil, err
	}
	b, ok := t.BindingByShortCut(shortCut)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBindingNotFound, shortCut)
	}
	return b, nil
}

// ListBindings returns all bindings sorted by shortcut then name.
func (r *Registry) ListBindings() ([]Binding, error) {
	t, err := r.Table()
	if err != nil {
		return nil, err
	}
	return sortedBindings(t.Bindings), nil
}

// Targets returns a copy of the target name to address map.
func (r *Registry) Targets() (map[string]string, error) {
	t, err := r.Table()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(t.Targets))
	for k, v := range t.Targets {
		out[k] = v
	}
	return out, nil
}

func sortedBindings(in []Binding) []Binding {
	out := append([]Binding(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShortCut != out[j].ShortCut {
			return out[i].ShortCut < out[j].ShortCut
		}
		return out[i].Name < out[j].Name
	})
	return out
}
