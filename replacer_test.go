package bptreedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_LRUKReplacer_BelowKAlwaysEvictsLRUFirst(t *testing.T) {
	r := NewLRUKReplacer(8, 2)

	for _, f := range []int{1, 2, 3, 4, 5} {
		r.RecordAccess(f)
		r.SetEvictable(f, true)
	}
	assert.Equal(t, 5, r.Size())

	// none has reached k=2 accesses yet, so eviction is plain LRU.
	frame, ok := r.Evict()
	assert.True(t, ok)
	assert.Equal(t, 1, frame)

	frame, ok = r.Evict()
	assert.True(t, ok)
	assert.Equal(t, 2, frame)
}

func Test_LRUKReplacer_FewerAccessFramesOutrankKAccessFrames(t *testing.T) {
	r := NewLRUKReplacer(8, 2)

	r.RecordAccess(1)
	r.RecordAccess(1)
	r.SetEvictable(1, true) // frame 1 now has 2 accesses (k-distance is finite)

	r.RecordAccess(2)
	r.SetEvictable(2, true) // frame 2 has 1 access (k-distance is +inf)

	// frame 2 has fewer than k accesses, so it is always evicted before a
	// frame that has reached k accesses, regardless of recency.
	frame, ok := r.Evict()
	assert.True(t, ok)
	assert.Equal(t, 2, frame)

	frame, ok = r.Evict()
	assert.True(t, ok)
	assert.Equal(t, 1, frame)
}

func Test_LRUKReplacer_NonEvictableFramesAreSkipped(t *testing.T) {
	r := NewLRUKReplacer(8, 2)
	r.RecordAccess(1)
	r.SetEvictable(1, true)
	r.RecordAccess(2)
	r.SetEvictable(2, false)

	assert.Equal(t, 1, r.Size())
	frame, ok := r.Evict()
	assert.True(t, ok)
	assert.Equal(t, 1, frame)

	_, ok = r.Evict()
	assert.False(t, ok)
}

func Test_LRUKReplacer_RemoveIsIdempotentOnUntrackedFrames(t *testing.T) {
	r := NewLRUKReplacer(8, 2)
	r.Remove(99) // never recorded; must not panic
	r.RecordAccess(1)
	r.SetEvictable(1, true)
	r.Remove(1)
	assert.Equal(t, 0, r.Size())
	r.Remove(1) // already removed; must not panic
}

func Test_LRUKReplacer_EmptyReplacerHasNothingToEvict(t *testing.T) {
	r := NewLRUKReplacer(4, 2)
	_, ok := r.Evict()
	assert.False(t, ok)
}
