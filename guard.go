package bptreedb

// BasicPageGuard is a scoped handle on a pinned page: it guarantees
// UnpinPage is called exactly once, on Drop, with whatever dirty flag the
// holder has accumulated. Grounded on
// original_source/src/storage/page/page_guard.cpp's BasicPageGuard.
//
// Guards are movable, not copyable: copying a guard by value and dropping
// both copies would unpin twice. Drop is idempotent (a guard zeroed by a
// prior Drop does nothing on a second call), so the common defer-at-every-
// return-path pattern is safe even when a guard is also dropped explicitly
// earlier on some paths.
type BasicPageGuard struct {
	bpm   *BufferPoolManager
	page  *Page
	dirty bool
}

// IsValid reports whether the guard still owns a pinned page.
func (g *BasicPageGuard) IsValid() bool { return g.page != nil }

// PageID returns the wrapped page's id, or InvalidPageID if the guard has
// been dropped.
func (g *BasicPageGuard) PageID() int {
	if g.page == nil {
		return InvalidPageID
	}
	return g.page.GetPageID()
}

// Data returns a read-only view of the page's bytes.
func (g *BasicPageGuard) Data() []byte { return g.page.GetData() }

// DataMut returns a mutable view of the page's bytes and marks the page
// dirty, matching the convention that a mutable view implicitly marks the page dirty.
func (g *BasicPageGuard) DataMut() []byte {
	g.dirty = true
	return g.page.GetData()
}

// SetDirty marks the page dirty without requiring a DataMut call, for
// callers that mutate through a cached slice.
func (g *BasicPageGuard) SetDirty() { g.dirty = true }

// Drop unpins the page, passing along the guard's accumulated dirty flag,
// and voids the guard. Safe to call multiple times.
func (g *BasicPageGuard) Drop() {
	if g.bpm == nil {
		return
	}
	g.bpm.UnpinPage(g.page.GetPageID(), g.dirty)
	g.bpm = nil
	g.page = nil
	g.dirty = false
}

// ReadPageGuard wraps a BasicPageGuard whose page read latch the caller
// has already acquired (via BufferPoolManager.FetchPageRead). Drop releases
// the read latch before unpinning.
type ReadPageGuard struct {
	guard BasicPageGuard
}

func (g *ReadPageGuard) IsValid() bool { return g.guard.IsValid() }
func (g *ReadPageGuard) PageID() int   { return g.guard.PageID() }
func (g *ReadPageGuard) Data() []byte  { return g.guard.Data() }

// Drop releases the read latch then drops the underlying basic guard. Idempotent.
func (g *ReadPageGuard) Drop() {
	if g.guard.page == nil {
		return
	}
	g.guard.page.mu.RUnlock()
	g.guard.Drop()
}

// WritePageGuard wraps a BasicPageGuard whose page write latch the caller
// has already acquired (via BufferPoolManager.FetchPageWrite). Drop releases
// the write latch before unpinning.
type WritePageGuard struct {
	guard BasicPageGuard
}

func (g *WritePageGuard) IsValid() bool   { return g.guard.IsValid() }
func (g *WritePageGuard) PageID() int     { return g.guard.PageID() }
func (g *WritePageGuard) Data() []byte    { return g.guard.Data() }
func (g *WritePageGuard) DataMut() []byte { return g.guard.DataMut() }
func (g *WritePageGuard) SetDirty()       { g.guard.SetDirty() }

// Drop releases the write latch then drops the underlying basic guard. Idempotent.
func (g *WritePageGuard) Drop() {
	if g.guard.page == nil {
		return
	}
	g.guard.page.mu.Unlock()
	g.guard.Drop()
}
