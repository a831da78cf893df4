package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/relay-core/internal/binding"
)

func TestMemoryIndex_Next(t *testing.T) {
	idx := NewMemoryIndex()

	var got []int
	for range 5 {
		i, err := idx.Next("k", 3)
		require.NoError(t, err)
		got = append(got, i)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1}, got)

	// Shrinking the candidate list wraps the cursor.
	i, err := idx.Next("k", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	first, err := idx.Next("other", 4)
	require.NoError(t, err)
	assert.Equal(t, 0, first, "keys are independent")

	_, err = idx.Next("empty", 0)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestMemoryIndex_Concurrent(t *testing.T) {
	const (
		workers = 8
		perWork = 300
		n       = 4
	)
	idx := NewMemoryIndex()

	var (
		mu     sync.Mutex
		counts = make([]int, n)
		wg     sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWork {
				i, err := idx.Next("shared", n)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				counts[i]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for i, c := range counts {
		if c != workers*perWork/n {
			t.Errorf("counts[%d] = %d, want %d", i, c, workers*perWork/n)
		}
	}
}

func TestStructuralKey(t *testing.T) {
	a := keyPressTo("screens")
	b := keyPressTo("screens")
	c := keyPressTo("screens")
	c.DelayAfter = binding.Literal(10)

	assert.Equal(t, StructuralKey(a), StructuralKey(b))
	assert.NotEqual(t, StructuralKey(a), StructuralKey(c))
	assert.NotEqual(t, StructuralKey(a), bindingKey("screens"))
}
