package engine

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/nerrad567/relay-core/internal/binding"
)

// Index hands out round-robin positions per key.
type Index interface {
	// Next returns the position to use for this call out of n candidates
	// and advances the cursor for key.
	Next(key string, n int) (int, error)
}

// MemoryIndex is the process-lifetime Index.
//
// Cursors are created lazily at zero. When n shrinks between calls (for
// example after a bindings reload) the cursor is taken modulo n.
//
// Thread Safety: Next is serialised, so concurrent triggers for the same
// key never skip or repeat a slot.
type MemoryIndex struct {
	mu      sync.Mutex
	cursors map[string]int
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{cursors: make(map[string]int)}
}

// Next implements Index.
func (m *MemoryIndex) Next(key string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoCandidates, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.cursors[key] % n
	m.cursors[key] = (pos + 1) % n
	return pos, nil
}

// Rotation keys. Bindings rotate by name; alias groups rotate by the
// structure of the command being expanded.
func bindingKey(name string) string {
	return "binding:" + name
}

// StructuralKey identifies a command by its canonical encoding.
func StructuralKey(c binding.Command) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.String()))
	return "command:" + strconv.FormatUint(h.Sum64(), 16)
}
