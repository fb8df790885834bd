package bptreedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_WritePageGuard_ReaderBlocksUntilWriteGuardDropped(t *testing.T) {
	bpm := newTestBPM(t, 4)
	g, pageID, err := bpm.NewPageGuarded()
	require.NoError(t, err)
	g.Drop()

	wg, err := bpm.FetchPageWrite(pageID)
	require.NoError(t, err)
	wg.DataMut()

	unlocked := make(chan struct{})
	go func() {
		// Blocks on the page's read latch until wg.Drop() releases it. A
		// Drop that never released the write latch would leave this
		// goroutine blocked for good.
		rg, err := bpm.FetchPageRead(pageID)
		if err == nil {
			rg.Drop()
		}
		close(unlocked)
	}()

	select {
	case <-unlocked:
		t.Fatal("reader proceeded before writer dropped its guard")
	default:
	}

	wg.Drop()
	<-unlocked
}

func Test_BasicPageGuard_DropIsIdempotent(t *testing.T) {
	bpm := newTestBPM(t, 4)
	g, pageID, err := bpm.NewPageGuarded()
	require.NoError(t, err)
	g.Drop()
	g.Drop()
	g.Drop()

	wg, err := bpm.FetchPageWrite(pageID)
	require.NoError(t, err)
	assert.Equal(t, 1, wg.guard.page.PinCount())
	wg.Drop()
}

func Test_BasicPageGuard_DataMutMarksPageDirty(t *testing.T) {
	bpm := newTestBPM(t, 2)
	g, pageID, err := bpm.NewPageGuarded()
	require.NoError(t, err)
	g.DataMut()[0] = 1
	g.Drop()

	wg, err := bpm.FetchPageWrite(pageID)
	require.NoError(t, err)
	assert.True(t, wg.guard.page.IsDirty())
	wg.Drop()
}
