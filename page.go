package bptreedb

import "sync"

// PageSize is the fixed size, in bytes, of every page transferred between
// disk and the buffer pool. Mirrors the teacher's buff.PageSize.
const PageSize = 4096

// InvalidPageID marks the absence of a page (an empty tree's root, a leaf
// with no successor, a not-yet-allocated frame).
const InvalidPageID = -1

// Page is one frame's worth of buffer-pool state: the raw bytes plus the
// metadata the BufferPoolManager needs to broker pins and I/O. Frames are
// allocated once, in a contiguous slice, and reused for the lifetime of the
// pool (see NewBufferPoolManager) so that frame identity (the &pages[i]
// address) never changes underneath a held pin.
type Page struct {
	// mu is the page's reader-writer latch. It is also the lock
	// BufferPoolManager holds across a disk I/O performed while installing a
	// fresh mapping for this frame (see bufferpool.go), so that a concurrent
	// FetchPageRead/FetchPageWrite cannot observe a half-initialized page. A
	// bare FetchPage takes no latch and may return the page before that I/O
	// completes.
	mu sync.RWMutex

	frameID  int
	pageID   int
	pinCount int
	dirty    bool
	data     [PageSize]byte
}

// GetPageID returns the logical page id currently resident in this frame, or
// InvalidPageID if the frame is unmapped.
func (p *Page) GetPageID() int { return p.pageID }

// GetData returns the frame's byte buffer. The slice aliases the page's
// backing array: writes through it are writes to the page, matching the
// teacher's Page.GetData contract and the guard layer's "as/as_mut return typed
// views of the same underlying page buffer".
func (p *Page) GetData() []byte { return p.data[:] }

// PinCount reports the current pin count. Used by tests.
func (p *Page) PinCount() int { return p.pinCount }

// IsDirty reports the page's dirty bit.
func (p *Page) IsDirty() bool { return p.dirty }

func (p *Page) pin() { p.pinCount++ }

// reset clears the frame back to its unmapped state: zeroed buffer, no page
// id, clean. Per a design note from the original implementation ("its new_page
// occasionally leaves the dirty bit uncleared... implementations must
// always write back before clearing metadata and zeroing the buffer"),
// callers MUST have already flushed a dirty page's old contents to disk
// before calling reset.
func (p *Page) reset() {
	p.data = [PageSize]byte{}
	p.dirty = false
	p.pageID = InvalidPageID
	p.pinCount = 0
}

// installAsNew rewrites the frame's identity after eviction/free-list reuse:
// new page id, clean, zeroed buffer. Does not touch pinCount: the caller's
// page.pin(), done under BufferPoolManager.mu before the frame's old mapping
// is replaced, is the sole pin increment — reassigning it here would race a
// second pin taken against the new mapping while this install (and any disk
// I/O preceding it) is still in flight under only the page latch. Callers
// must have already written back the previous occupant if it was dirty.
func (p *Page) installAsNew(pageID, frameID int) {
	p.data = [PageSize]byte{}
	p.pageID = pageID
	p.frameID = frameID
	p.dirty = false
}

// installFetched is like installAsNew but leaves the buffer alone: the
// caller reads the page content from disk into p.data itself right after
// calling this (or, on the already-mapped fast path, never calls it at all).
// Like installAsNew, it leaves pinCount untouched for the same reason.
func (p *Page) installFetched(pageID, frameID int) {
	p.pageID = pageID
	p.frameID = frameID
	p.dirty = false
}
