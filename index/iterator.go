package index

import "bptreedb"

// Iterator walks leaf entries in key order, following next-page links
// across leaf boundaries. It holds a read latch on exactly one leaf page at
// a time, released when the iterator advances past it or is closed.
type Iterator struct {
	tree  *BPlusTree
	guard bptreedb.ReadPageGuard
	idx   int32
	done  bool
}

// Begin returns an iterator positioned at the first entry in the tree.
func (t *BPlusTree) Begin() (*Iterator, error) {
	return t.seek(nil)
}

// Seek returns an iterator positioned at the first entry with a key >= key.
func (t *BPlusTree) Seek(key Key) (*Iterator, error) {
	return t.seek(&key)
}

// End returns an iterator in the exhausted state, matching the sentinel
// "one past the last entry" position.
func (t *BPlusTree) End() *Iterator {
	return &Iterator{tree: t, done: true}
}

func (t *BPlusTree) seek(key *Key) (*Iterator, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}
	hdr := castHeaderPage(headerGuard.Data())
	if hdr.rootPageID == InvalidPageID32 {
		headerGuard.Drop()
		return &Iterator{tree: t, done: true}, nil
	}
	pageID := int(hdr.rootPageID)

	curGuard, err := t.bpm.FetchPageRead(pageID)
	headerGuard.Drop()
	if err != nil {
		return nil, err
	}
	for {
		nv := viewNode(curGuard.Data())
		if nv.isLeaf() {
			break
		}
		var childID int
		if key == nil {
			childID = int(nv.children[0])
		} else {
			childID = int(nv.children[internalChildIndex(nv, *key, t.cmp)])
		}
		childGuard, err := t.bpm.FetchPageRead(childID)
		curGuard.Drop()
		if err != nil {
			return nil, err
		}
		curGuard = childGuard
	}

	nv := viewNode(curGuard.Data())
	var idx int32
	if key != nil {
		idx, _ = leafLowerBound(nv, *key, t.cmp)
	}
	it := &Iterator{tree: t, guard: curGuard, idx: idx}
	it.skipToValidOrAdvance()
	return it, nil
}

// skipToValidOrAdvance moves past an exhausted leaf onto the next one in
// the sibling chain, possibly repeatedly for an empty trailing leaf,
// until a valid entry is found or the chain ends.
func (it *Iterator) skipToValidOrAdvance() {
	for {
		if it.done {
			return
		}
		nv := viewNode(it.guard.Data())
		if it.idx < nv.hdr.size {
			return
		}
		next := nv.hdr.next
		it.guard.Drop()
		if next == InvalidPageID32 {
			it.done = true
			return
		}
		nextGuard, err := it.tree.bpm.FetchPageRead(int(next))
		if err != nil {
			it.done = true
			return
		}
		it.guard = nextGuard
		it.idx = 0
	}
}

// IsEnd reports whether the iterator has been exhausted.
func (it *Iterator) IsEnd() bool { return it.done }

// Key returns the current entry's key. Undefined if IsEnd.
func (it *Iterator) Key() Key {
	nv := viewNode(it.guard.Data())
	return nv.entries[it.idx].key
}

// Value returns the current entry's value. Undefined if IsEnd.
func (it *Iterator) Value() Value {
	nv := viewNode(it.guard.Data())
	return nv.entries[it.idx].value
}

// Next advances the iterator by one entry.
func (it *Iterator) Next() {
	if it.done {
		return
	}
	it.idx++
	it.skipToValidOrAdvance()
}

// Close releases the iterator's held latch, if any. Safe to call more than
// once, and safe to skip if the iterator was already driven to IsEnd.
func (it *Iterator) Close() {
	if it.done {
		return
	}
	it.guard.Drop()
	it.done = true
}
