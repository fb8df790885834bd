package index

import (
	"path/filepath"
	"testing"

	"bptreedb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTree(t *testing.T, maxLeaf, maxInternal int32) *BPlusTree {
	t.Helper()
	disk, err := bptreedb.NewDiskManager(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	bpm := bptreedb.NewBufferPoolManager(bptreedb.Config{PoolSize: 64, ReplacerK: 2}, disk, zap.NewNop())
	tree, err := NewBPlusTree(bpm, DefaultComparator, maxLeaf, maxInternal, zap.NewNop())
	require.NoError(t, err)
	return tree
}

func Test_BPlusTree_EmptyTreeHasNoValues(t *testing.T) {
	tree := newTestTree(t, 8, 8)
	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	_, found, err := tree.GetValue(IntKey(1))
	require.NoError(t, err)
	assert.False(t, found)
}

func Test_BPlusTree_InsertThenGetValue(t *testing.T) {
	tree := newTestTree(t, 8, 8)
	ok, err := tree.Insert(IntKey(42), NewRID(1, 7))
	require.NoError(t, err)
	assert.True(t, ok)

	v, found, err := tree.GetValue(IntKey(42))
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 1, v.PageID())
	assert.EqualValues(t, 7, v.Slot())
}

func Test_BPlusTree_DuplicateInsertIsRejected(t *testing.T) {
	tree := newTestTree(t, 8, 8)
	ok, err := tree.Insert(IntKey(1), NewRID(0, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tree.Insert(IntKey(1), NewRID(0, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_BPlusTree_SplitsSurviveManyInserts(t *testing.T) {
	tree := newTestTree(t, 4, 4) // small fanout forces repeated splits
	const n = 200
	for i := 0; i < n; i++ {
		ok, err := tree.Insert(IntKey(uint64(i)), NewRID(0, uint32(i)))
		require.NoError(t, err)
		require.True(t, ok, "insert %d", i)
	}
	for i := 0; i < n; i++ {
		v, found, err := tree.GetValue(IntKey(uint64(i)))
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		assert.EqualValues(t, i, v.Slot())
	}
}

func Test_BPlusTree_RemoveDeletesKeyAndMergesUnderflow(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	const n = 100
	for i := 0; i < n; i++ {
		_, err := tree.Insert(IntKey(uint64(i)), NewRID(0, uint32(i)))
		require.NoError(t, err)
	}
	for i := 0; i < n; i += 2 {
		ok, err := tree.Remove(IntKey(uint64(i)))
		require.NoError(t, err)
		require.True(t, ok, "remove %d", i)
	}
	for i := 0; i < n; i++ {
		_, found, err := tree.GetValue(IntKey(uint64(i)))
		require.NoError(t, err)
		if i%2 == 0 {
			assert.False(t, found, "key %d should be gone", i)
		} else {
			assert.True(t, found, "key %d should remain", i)
		}
	}
}

func Test_BPlusTree_RemoveUnknownKeyReturnsFalse(t *testing.T) {
	tree := newTestTree(t, 8, 8)
	_, err := tree.Insert(IntKey(1), NewRID(0, 0))
	require.NoError(t, err)
	ok, err := tree.Remove(IntKey(999))
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_BPlusTree_RemovingEverythingEmptiesTheTree(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	const n = 50
	for i := 0; i < n; i++ {
		_, err := tree.Insert(IntKey(uint64(i)), NewRID(0, uint32(i)))
		require.NoError(t, err)
	}
	for i := 0; i < n; i++ {
		ok, err := tree.Remove(IntKey(uint64(i)))
		require.NoError(t, err)
		require.True(t, ok)
	}
	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}
