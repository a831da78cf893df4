// Package variables holds the run-time variable store used for {{name}}
// substitution in final commands.
//
// Values come from three places: the bindings file's variables section
// (seeded at load), Launch commands with assignId (the returned pid), and
// the HTTP API. Lookups that miss the store fall back to the process
// environment.
//
// Writes are persisted with a coalescing protocol: each Set stamps an
// increasing iteration, waits for any persist already in flight, and then
// persists only if it is still the most recent write. Rapid bursts of
// writes therefore cost as few as two persists, and the last persisted
// snapshot always matches the final in-memory state.
package variables

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"sort"
	"sync"

	"github.com/nerrad567/relay-core/internal/binding"
)

// ErrInvalidName is returned when a variable name is empty or not a word.
var ErrInvalidName = errors.New("variables: invalid name")

// Logger defines the logging interface used by the Store.
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

// Persister stores the full variable map durably.
type Persister interface {
	Load(ctx context.Context) (map[string]binding.Value, error)
	Save(ctx context.Context, snapshot map[string]binding.Value) error
}

// Store is the shared variable map.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu        sync.Mutex // guards values and iteration
	values    map[string]binding.Value
	iteration uint64

	persistMu sync.Mutex // held for the duration of one persist
	persister Persister

	lookupEnv func(string) (string, bool)
	logger    Logger
}

// NewStore creates a store backed by p. A nil persister keeps values in memory only.
func NewStore(p Persister, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{
		values:    make(map[string]binding.Value),
		persister: p,
		lookupEnv: os.LookupEnv,
		logger:    logger,
	}
}

// Open loads previously persisted values, replacing the in-memory map.
func (s *Store) Open(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading variables: %w", err)
	}
	s.mu.Lock()
	s.values = make(map[string]binding.Value, len(loaded))
	maps.Copy(s.values, loaded)
	s.mu.Unlock()

	s.logger.Info("variables loaded", "count", len(loaded))
	return nil
}

// Seed sets initial values for names not already present. Seeded values
// are not persisted until the next Set.
func (s *Store) Seed(initial map[string]binding.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range initial {
		if _, ok := s.values[name]; !ok {
			s.values[name] = v
		}
	}
}

// Get returns a stored value without consulting the environment.
func (s *Store) Get(name string) (binding.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// Lookup resolves a token name: the store first, then the process environment.
func (s *Store) Lookup(name string) (binding.Value, bool) {
	if v, ok := s.Get(name); ok {
		return v, true
	}
	if env, ok := s.lookupEnv(name); ok {
		return binding.String(env), true
	}
	return binding.Value{}, false
}

// Snapshot returns a copy of all stored values.
func (s *Store) Snapshot() map[string]binding.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Names returns the stored names in order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Set stores a value and persists it, coalescing with concurrent writes.
func (s *Store) Set(ctx context.Context, name string, value binding.Value) error {
	if err := validateName(name); err != nil {
		return err
	}
	return s.commit(ctx, func(m map[string]binding.Value) { m[name] = value })
}

// Delete removes a value and persists the change.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.commit(ctx, func(m map[string]binding.Value) { delete(m, name) })
}

// commit applies mutate, then persists unless a newer commit has superseded it.
func (s *Store) commit(ctx context.Context, mutate func(map[string]binding.Value)) error {
	s.mu.Lock()
	mutate(s.values)
	s.iteration++
	mine := s.iteration
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if mine != s.iteration {
		s.mu.Unlock()
		s.logger.Debug("variable persist coalesced", "iteration", mine)
		return nil
	}
	snapshot := maps.Clone(s.values)
	s.mu.Unlock()

	if err := s.persister.Save(ctx, snapshot); err != nil {
		s.logger.Error("persisting variables failed", "iteration", mine, "error", err)
		return fmt.Errorf("persisting variables: %w", err)
	}
	return nil
}

// currentIteration is used by tests to sequence concurrent writers.
func (s *Store) currentIteration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iteration
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if _, ok := binding.ParseToken(binding.FormatToken(name)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
