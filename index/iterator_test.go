package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Iterator_ScansAllEntriesInAscendingOrder(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	inserted := []uint64{7, 3, 19, 1, 42, 8, 15, 0, 100, 23}
	for _, k := range inserted {
		_, err := tree.Insert(IntKey(k), NewRID(0, uint32(k)))
		require.NoError(t, err)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	var got []uint64
	for !it.IsEnd() {
		got = append(got, it.Key().Uint64())
		it.Next()
	}
	it.Close()

	require.Len(t, got, len(inserted))
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
}

func Test_Iterator_OnEmptyTreeIsImmediatelyDone(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	it, err := tree.Begin()
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
}

func Test_Iterator_SeekPositionsAtFirstKeyGreaterOrEqual(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for _, k := range []uint64{10, 20, 30, 40, 50} {
		_, err := tree.Insert(IntKey(k), NewRID(0, uint32(k)))
		require.NoError(t, err)
	}

	it, err := tree.Seek(IntKey(25))
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	assert.EqualValues(t, 30, it.Key().Uint64())
	it.Close()

	it, err = tree.Seek(IntKey(1000))
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
}
