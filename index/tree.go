package index

import (
	"bptreedb"

	"go.uber.org/zap"
)

// BPlusTree is a disk-resident B+Tree: every node is a page owned by a
// bptreedb.BufferPoolManager, and every operation crabs root-to-leaf through
// page guards, releasing ancestors as soon as a node is proven safe for the
// operation. One well-known page (headerPageID) holds the current root page
// id so the root can change (split, collapse) without the tree's identity
// (its header page) ever moving.
//
// Built against the teacher's bt2 descent style, generalized from its
// fixed int64 key to the Key/Value pair in key.go and from its eager,
// permanently-held root to a lazily created one per the root_page_id
// indirection above.
type BPlusTree struct {
	bpm             *bptreedb.BufferPoolManager
	headerPageID    int
	cmp             Comparator
	maxLeafSize     int32
	maxInternalSize int32
	log             *zap.Logger
}

// NewBPlusTree allocates the tree's header page (marking it empty) and
// returns a tree bound to it. cmp defaults to DefaultComparator if nil.
// maxLeafSize and maxInternalSize must be small enough that a node's slot
// arrays, plus one spare slot for a transient pre-split overflow, fit
// within a single page.
func NewBPlusTree(bpm *bptreedb.BufferPoolManager, cmp Comparator, maxLeafSize, maxInternalSize int32, log *zap.Logger) (*BPlusTree, error) {
	if cmp == nil {
		cmp = DefaultComparator
	}
	if log == nil {
		log = zap.NewNop()
	}
	guard, pageID, err := bpm.NewPageWrite()
	if err != nil {
		return nil, err
	}
	hdr := castHeaderPage(guard.DataMut())
	*hdr = headerPageData{flags: headerFlagInit, rootPageID: InvalidPageID32}
	guard.Drop()
	return &BPlusTree{
		bpm:             bpm,
		headerPageID:    pageID,
		cmp:             cmp,
		maxLeafSize:     maxLeafSize,
		maxInternalSize: maxInternalSize,
		log:             log,
	}, nil
}

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree) IsEmpty() (bool, error) {
	g, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return false, err
	}
	defer g.Drop()
	return castHeaderPage(g.Data()).rootPageID == InvalidPageID32, nil
}

// internalChildIndex returns the index of the child that owns key: the
// largest i in [1, size) with keys[i] <= key, or 0 if no such i exists.
// Slot 0's child covers everything below keys[1].
func internalChildIndex(nv *nodeView, key Key, cmp Comparator) int32 {
	lo, hi := int32(1), nv.hdr.size
	res := int32(0)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(nv.keys[mid], key) <= 0 {
			res = mid
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return res
}

// leafLowerBound returns the smallest index in [0, size) whose entry key is
// >= key, and whether that entry's key equals key exactly.
func leafLowerBound(nv *nodeView, key Key, cmp Comparator) (int32, bool) {
	lo, hi := int32(0), nv.hdr.size
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(nv.entries[mid].key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < nv.hdr.size && cmp(nv.entries[lo].key, key) == 0
}

// GetValue performs a point lookup, returning the associated value and true
// if key is present. Read crabbing: each child is latched before its parent
// (including the header page) is released, so a concurrent split can never
// be observed half-applied.
func (t *BPlusTree) GetValue(key Key) (Value, bool, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return Value{}, false, err
	}
	hdr := castHeaderPage(headerGuard.Data())
	if hdr.rootPageID == InvalidPageID32 {
		headerGuard.Drop()
		return Value{}, false, nil
	}
	pageID := int(hdr.rootPageID)

	curGuard, err := t.bpm.FetchPageRead(pageID)
	headerGuard.Drop()
	if err != nil {
		return Value{}, false, err
	}
	for {
		nv := viewNode(curGuard.Data())
		if nv.isLeaf() {
			break
		}
		idx := internalChildIndex(nv, key, t.cmp)
		childID := int(nv.children[idx])
		childGuard, err := t.bpm.FetchPageRead(childID)
		curGuard.Drop()
		if err != nil {
			return Value{}, false, err
		}
		curGuard = childGuard
	}
	nv := viewNode(curGuard.Data())
	idx, found := leafLowerBound(nv, key, t.cmp)
	var v Value
	if found {
		v = nv.entries[idx].value
	}
	curGuard.Drop()
	return v, found, nil
}

// crumb is one write-latched page on the path from the root to the node
// currently being operated on.
type crumb struct {
	pageID int
	guard  bptreedb.WritePageGuard
}

// Insert adds key/value to the tree. Returns false without modifying the
// tree if key is already present (unique keys only).
func (t *BPlusTree) Insert(key Key, value Value) (bool, error) {
	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	headerHeld := true
	defer func() {
		if headerHeld {
			headerGuard.Drop()
		}
	}()

	hdr := castHeaderPage(headerGuard.Data())
	if hdr.rootPageID == InvalidPageID32 {
		leafGuard, leafPageID, err := t.bpm.NewPageWrite()
		if err != nil {
			return false, err
		}
		nv := initLeaf(leafGuard.DataMut(), t.maxLeafSize)
		nv.entries[0] = leafEntry{key: key, value: value}
		nv.hdr.size = 1
		leafGuard.Drop()
		castHeaderPage(headerGuard.DataMut()).rootPageID = int32(leafPageID)
		return true, nil
	}

	var nodeCrumbs []crumb
	defer func() {
		for _, c := range nodeCrumbs {
			c.guard.Drop()
		}
	}()
	releaseAncestors := func() {
		if headerHeld {
			headerGuard.Drop()
			headerHeld = false
		}
		for _, c := range nodeCrumbs[:len(nodeCrumbs)-1] {
			c.guard.Drop()
		}
		nodeCrumbs = nodeCrumbs[len(nodeCrumbs)-1:]
	}

	rootPageIDBefore := int(hdr.rootPageID)
	curPageID := rootPageIDBefore
	for {
		guard, err := t.bpm.FetchPageWrite(curPageID)
		if err != nil {
			return false, err
		}
		nodeCrumbs = append(nodeCrumbs, crumb{pageID: curPageID, guard: guard})
		nv := viewNode(guard.Data())
		if nv.isSafeForInsert() {
			releaseAncestors()
		}
		if nv.isLeaf() {
			break
		}
		curPageID = int(nv.children[internalChildIndex(nv, key, t.cmp)])
	}

	// Pointers into nodeCrumbs, not copies: SetDirty must land on the guard
	// the deferred cleanup above will actually Drop, not on a value copy of
	// it (a copy's bpm/page fields alias the same pinned Page, but its own
	// dirty bit is a separate bool that Drop on the original would never see).
	leaf := &nodeCrumbs[len(nodeCrumbs)-1]
	leafNV := viewNode(leaf.guard.Data())
	idx, found := leafLowerBound(leafNV, key, t.cmp)
	if found {
		return false, nil
	}
	insertLeafEntryAt(leafNV, idx, leafEntry{key: key, value: value})
	leaf.guard.SetDirty()

	if leafNV.hdr.size < leafNV.hdr.maxSize {
		return true, nil
	}

	sepKey, newPageID, err := t.splitLeaf(leafNV)
	if err != nil {
		return false, err
	}
	leaf.guard.SetDirty()

	i := len(nodeCrumbs) - 2
	for i >= 0 {
		parent := &nodeCrumbs[i]
		parentNV := viewNode(parent.guard.Data())
		insertInternalEntry(parentNV, sepKey, int32(newPageID), t.cmp)
		parent.guard.SetDirty()
		if parentNV.hdr.size <= parentNV.hdr.maxSize {
			return true, nil
		}
		sepKey, newPageID, err = t.splitInternal(parentNV)
		if err != nil {
			return false, err
		}
		i--
	}

	// The root itself overflowed: wrap the old root and its new sibling in
	// a fresh root page.
	newRootGuard, newRootPageID, err := t.bpm.NewPageWrite()
	if err != nil {
		return false, err
	}
	rootNV := initInternal(newRootGuard.DataMut(), t.maxInternalSize)
	rootNV.children[0] = int32(rootPageIDBefore)
	rootNV.keys[1] = sepKey
	rootNV.children[1] = int32(newPageID)
	rootNV.hdr.size = 2
	newRootGuard.Drop()
	castHeaderPage(headerGuard.DataMut()).rootPageID = int32(newRootPageID)
	t.log.Debug("new_root", zap.Int("old_root_page_id", rootPageIDBefore), zap.Int("new_root_page_id", newRootPageID))
	return true, nil
}

// splitLeaf moves the upper half of a full leaf's entries into a new right
// sibling, splicing it into the leaf chain, and returns the separator key
// (the new sibling's first key) and its page id.
func (t *BPlusTree) splitLeaf(nv *nodeView) (Key, int, error) {
	newGuard, newPageID, err := t.bpm.NewPageWrite()
	if err != nil {
		return Key{}, 0, err
	}
	newNV := initLeaf(newGuard.DataMut(), t.maxLeafSize)
	total := nv.hdr.size
	splitAt := total / 2
	moveCount := total - splitAt
	copy(newNV.entries[:moveCount], nv.entries[splitAt:total])
	newNV.hdr.size = moveCount
	newNV.hdr.next = nv.hdr.next
	nv.hdr.next = int32(newPageID)
	nv.hdr.size = splitAt
	newGuard.SetDirty()
	sepKey := newNV.entries[0].key
	newGuard.Drop()
	t.log.Debug("split_leaf", zap.Int("new_page_id", newPageID), zap.Int32("moved", moveCount))
	return sepKey, newPageID, nil
}

// splitInternal moves the upper half of a full internal node's children
// into a new right sibling. The middle key moves up to become the
// separator rather than being duplicated into both halves.
func (t *BPlusTree) splitInternal(nv *nodeView) (Key, int, error) {
	newGuard, newPageID, err := t.bpm.NewPageWrite()
	if err != nil {
		return Key{}, 0, err
	}
	newNV := initInternal(newGuard.DataMut(), t.maxInternalSize)
	total := nv.hdr.size
	splitAt := total / 2
	upKey := nv.keys[splitAt]
	moveCount := total - splitAt
	copy(newNV.children[:moveCount], nv.children[splitAt:total])
	copy(newNV.keys[1:moveCount], nv.keys[splitAt+1:total])
	newNV.hdr.size = moveCount
	nv.hdr.size = splitAt
	newGuard.SetDirty()
	newGuard.Drop()
	t.log.Debug("split_internal", zap.Int("new_page_id", newPageID), zap.Int32("moved", moveCount))
	return upKey, newPageID, nil
}

// Remove deletes key from the tree. Returns false if key is not present.
func (t *BPlusTree) Remove(key Key) (bool, error) {
	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	headerHeld := true
	defer func() {
		if headerHeld {
			headerGuard.Drop()
		}
	}()

	hdr := castHeaderPage(headerGuard.Data())
	if hdr.rootPageID == InvalidPageID32 {
		return false, nil
	}

	var nodeCrumbs []crumb
	defer func() {
		for _, c := range nodeCrumbs {
			c.guard.Drop()
		}
	}()
	releaseAncestors := func() {
		if headerHeld {
			headerGuard.Drop()
			headerHeld = false
		}
		for _, c := range nodeCrumbs[:len(nodeCrumbs)-1] {
			c.guard.Drop()
		}
		nodeCrumbs = nodeCrumbs[len(nodeCrumbs)-1:]
	}

	curPageID := int(hdr.rootPageID)
	for {
		guard, err := t.bpm.FetchPageWrite(curPageID)
		if err != nil {
			return false, err
		}
		nodeCrumbs = append(nodeCrumbs, crumb{pageID: curPageID, guard: guard})
		nv := viewNode(guard.Data())
		// The root has no parent to borrow from or merge with: underflow
		// there means collapse or emptying the tree, which rewrites the
		// header page. So unlike every other level, reaching the root never
		// licenses releasing the header guard — it (and the root's own
		// crumb) stay held until a true descendant proves safe, or until
		// Remove finishes.
		if len(nodeCrumbs) > 1 && nv.isSafeForDelete() {
			releaseAncestors()
		}
		if nv.isLeaf() {
			break
		}
		curPageID = int(nv.children[internalChildIndex(nv, key, t.cmp)])
	}

	// Pointer into nodeCrumbs, for the same reason as in Insert: SetDirty
	// must reach the guard the deferred cleanup will Drop, not a value copy.
	leaf := &nodeCrumbs[len(nodeCrumbs)-1]
	leafNV := viewNode(leaf.guard.Data())
	idx, found := leafLowerBound(leafNV, key, t.cmp)
	if !found {
		return false, nil
	}
	removeLeafEntryAt(leafNV, idx)
	leaf.guard.SetDirty()

	if len(nodeCrumbs) == 1 {
		// Leaf is the only crumb held: either it is the root, which may go
		// arbitrarily low, including to zero, at which point the tree
		// becomes empty; or it proved safe on descent and stays at or above
		// its minimum.
		if leafNV.hdr.size == 0 {
			pageID := leaf.pageID
			leaf.guard.Drop()
			nodeCrumbs = nil
			t.bpm.DeletePage(pageID)
			castHeaderPage(headerGuard.DataMut()).rootPageID = InvalidPageID32
		}
		return true, nil
	}

	if leafNV.hdr.size >= leafNV.minSize() {
		return true, nil
	}

	i := len(nodeCrumbs) - 1
	for i > 0 {
		childNV := viewNode(nodeCrumbs[i].guard.Data())
		parentNV := viewNode(nodeCrumbs[i-1].guard.Data())
		childIdx := findChildIndex(parentNV, int32(nodeCrumbs[i].pageID))
		merged, childRemoved, err := t.rebalance(parentNV, &nodeCrumbs[i-1].guard, childNV, &nodeCrumbs[i].guard, childIdx)
		if err != nil {
			return false, err
		}
		if !merged {
			return true, nil
		}
		if childRemoved {
			// child's page was absorbed into its left sibling and deleted;
			// rebalance already dropped its guard in place. Excise the crumb
			// so the deferred cleanup at the top of Remove doesn't drop it
			// a second time.
			nodeCrumbs = append(nodeCrumbs[:i], nodeCrumbs[i+1:]...)
		}
		if i-1 == 0 || parentNV.hdr.size >= parentNV.minSize() {
			break
		}
		i--
	}

	// Root collapse: if the root is still held (meaning rebalancing reached
	// all the way up to it) and it now has a single child, that child
	// becomes the new root.
	if len(nodeCrumbs) > 0 {
		root := &nodeCrumbs[0]
		rootNV := viewNode(root.guard.Data())
		if rootNV.isInternal() && rootNV.hdr.size == 1 {
			newRoot := rootNV.children[0]
			pageID := root.pageID
			root.guard.Drop()
			nodeCrumbs = nodeCrumbs[1:]
			t.bpm.DeletePage(pageID)
			castHeaderPage(headerGuard.DataMut()).rootPageID = newRoot
			t.log.Debug("collapse_root", zap.Int("old_root_page_id", pageID), zap.Int32("new_root_page_id", newRoot))
		}
	}
	return true, nil
}

// rebalance restores child's minimum occupancy. If child has a left sibling,
// it borrows a slot from it when it has slack and otherwise merges child into
// it; the right sibling is not consulted in that case. Only a leftmost child
// uses its right sibling, borrowing from it or merging it in. parentGuard
// and childGuard are passed by pointer to the caller's own crumb guards, so a
// merge that drops one of them is visible to the caller rather than voiding
// only a local copy. Reports whether a merge occurred (which may have left
// parent itself underflowed) and, if so, whether child's own crumb was the
// one consumed (merged left into its sibling and dropped here) as opposed to
// surviving with a sibling's contents merged into it.
func (t *BPlusTree) rebalance(parentNV *nodeView, parentGuard *bptreedb.WritePageGuard, childNV *nodeView, childGuard *bptreedb.WritePageGuard, childIdx int32) (merged bool, childRemoved bool, err error) {
	leaf := childNV.isLeaf()

	if childIdx > 0 {
		leftGuard, err := t.bpm.FetchPageWrite(int(parentNV.children[childIdx-1]))
		if err != nil {
			return false, false, err
		}
		leftNV := viewNode(leftGuard.Data())
		if leftNV.hdr.size > leftNV.minSize() {
			borrowFromLeft(parentNV, childIdx, leftNV, childNV, leaf)
			leftGuard.SetDirty()
			childGuard.SetDirty()
			parentGuard.SetDirty()
			leftGuard.Drop()
			return false, false, nil
		}
		if leaf {
			mergeLeaf(leftNV, childNV)
		} else {
			mergeInternal(leftNV, childNV, parentNV.keys[childIdx])
		}
		leftGuard.SetDirty()
		removeInternalEntry(parentNV, childIdx)
		parentGuard.SetDirty()
		doomed := childGuard.PageID()
		leftGuard.Drop()
		childGuard.Drop()
		t.bpm.DeletePage(doomed)
		t.log.Debug("merge_left", zap.Int("absorbed_page_id", doomed))
		return true, true, nil
	}

	rightGuard, err := t.bpm.FetchPageWrite(int(parentNV.children[childIdx+1]))
	if err != nil {
		return false, false, err
	}
	rightNV := viewNode(rightGuard.Data())
	if rightNV.hdr.size > rightNV.minSize() {
		borrowFromRight(parentNV, childIdx, childNV, rightNV, leaf)
		rightGuard.SetDirty()
		childGuard.SetDirty()
		parentGuard.SetDirty()
		rightGuard.Drop()
		return false, false, nil
	}
	if leaf {
		mergeLeaf(childNV, rightNV)
	} else {
		mergeInternal(childNV, rightNV, parentNV.keys[childIdx+1])
	}
	childGuard.SetDirty()
	removeInternalEntry(parentNV, childIdx+1)
	parentGuard.SetDirty()
	doomed := rightGuard.PageID()
	rightGuard.Drop()
	t.bpm.DeletePage(doomed)
	t.log.Debug("merge_right", zap.Int("absorbed_page_id", doomed))
	return true, false, nil
}

// borrowFromLeft moves left's last slot onto the front of child, updating
// the parent separator at childIdx to match.
func borrowFromLeft(parentNV *nodeView, childIdx int32, leftNV, childNV *nodeView, leaf bool) {
	if leaf {
		moved := leftNV.entries[leftNV.hdr.size-1]
		insertLeafEntryAt(childNV, 0, moved)
		leftNV.hdr.size--
		parentNV.keys[childIdx] = childNV.entries[0].key
		return
	}
	movedChild := leftNV.children[leftNV.hdr.size-1]
	movedSeparator := parentNV.keys[childIdx]
	shiftInternalRight(childNV)
	childNV.children[0] = movedChild
	childNV.keys[1] = movedSeparator
	childNV.hdr.size++
	parentNV.keys[childIdx] = leftNV.keys[leftNV.hdr.size-1]
	leftNV.hdr.size--
}

// borrowFromRight moves right's first slot onto the end of child, updating
// the parent separator at childIdx+1 to match.
func borrowFromRight(parentNV *nodeView, childIdx int32, childNV, rightNV *nodeView, leaf bool) {
	if leaf {
		moved := rightNV.entries[0]
		removeLeafEntryAt(rightNV, 0)
		childNV.entries[childNV.hdr.size] = moved
		childNV.hdr.size++
		parentNV.keys[childIdx+1] = rightNV.entries[0].key
		return
	}
	movedChild := rightNV.children[0]
	movedSeparator := parentNV.keys[childIdx+1]
	childNV.keys[childNV.hdr.size] = movedSeparator
	childNV.children[childNV.hdr.size] = movedChild
	childNV.hdr.size++
	parentNV.keys[childIdx+1] = rightNV.keys[1]
	copy(rightNV.keys[0:rightNV.hdr.size-1], rightNV.keys[1:rightNV.hdr.size])
	copy(rightNV.children[0:rightNV.hdr.size-1], rightNV.children[1:rightNV.hdr.size])
	rightNV.hdr.size--
}
