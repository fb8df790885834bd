package index

import "unsafe"

// pageType tags a node page as internal or leaf. Stored as the
// first field of every node page's header so a page can be reinterpreted
// without external bookkeeping, matching the teacher's bt2 package (its
// pageHeader.isLeafNode field, generalized to a tri-state enum with an
// explicit "unset" zero value so a freshly-zeroed page is distinguishable
// from an initialized leaf).
type pageType int32

const (
	pageTypeInvalid pageType = iota
	pageTypeLeaf
	pageTypeInternal
)

// nodeHeader is the common header every node page starts with:
// page_type, current size, and capacity. next is meaningful for leaves only
// (the leaf-only "sibling link"); internal pages leave it unused
// rather than carry two differently-shaped header structs, so a page can be
// reinterpreted by page_type alone without first knowing which kind it is —
// the same trick the teacher's bt2.pageHeader plays.
type nodeHeader struct {
	pageType pageType
	size     int32
	maxSize  int32
	next     int32 // leaf only; InvalidPageID32 when absent
}

// InvalidPageID32 is the on-disk (int32) spelling of bptreedb.InvalidPageID.
// Node pages store page/child ids as int32 (matching original_source's
// page_id_t, a 32-bit type) for compactness; the BufferPoolManager's page
// ids are plain Go ints, so tree.go converts at the boundary.
const InvalidPageID32 int32 = -1

var headerSize = int(unsafe.Sizeof(nodeHeader{}))

// leafEntry is one (key, value) slot in a leaf's slot array.
type leafEntry struct {
	key   Key
	value Value
}

// internalEntry-equivalent storage is split into two parallel arrays
// (keys, children) rather than an array of structs, so that children can be
// an int32 array without padding from Key's potentially larger alignment —
// mirrors the teacher's bt2 branchData{keys, children} split.

// nodeView is a typed window over a page's raw bytes: the header plus
// whichever slot array applies. It aliases the guard's underlying buffer, so
// writes through entries/keys/children mutate the page directly.
type nodeView struct {
	hdr *nodeHeader

	entries  []leafEntry // valid when hdr.pageType == pageTypeLeaf
	keys     []Key       // valid when hdr.pageType == pageTypeInternal
	children []int32     // valid when hdr.pageType == pageTypeInternal
}

func castHeader(data []byte) *nodeHeader {
	return (*nodeHeader)(unsafe.Pointer(&data[0]))
}

// viewNode reinterprets an already-initialized page's bytes according to its
// stored page_type. Slot arrays are allocated one element larger than
// hdr.maxSize: an insert briefly grows a node to maxSize+1 entries before
// the caller splits it back down, and that transient entry needs somewhere
// to live.
func viewNode(data []byte) *nodeView {
	hdr := castHeader(data)
	body := unsafe.Add(unsafe.Pointer(&data[0]), headerSize)
	slots := int(hdr.maxSize) + 1
	nv := &nodeView{hdr: hdr}
	switch hdr.pageType {
	case pageTypeLeaf:
		nv.entries = unsafe.Slice((*leafEntry)(body), slots)
	case pageTypeInternal:
		nv.keys = unsafe.Slice((*Key)(body), slots)
		childBase := unsafe.Add(body, uintptr(slots)*unsafe.Sizeof(Key{}))
		nv.children = unsafe.Slice((*int32)(childBase), slots)
	default:
		panic("index: viewNode called on a page with no recognized page_type")
	}
	return nv
}

// initLeaf stamps data as a brand-new, empty leaf page with the given
// capacity and returns its view.
func initLeaf(data []byte, maxSize int32) *nodeView {
	hdr := castHeader(data)
	*hdr = nodeHeader{pageType: pageTypeLeaf, size: 0, maxSize: maxSize, next: InvalidPageID32}
	return viewNode(data)
}

// initInternal stamps data as a brand-new, empty internal page with the
// given capacity and returns its view. Slot 0 is populated with
// a sentinel key and a lone child by the caller immediately after (an
// internal node is never left with size 0).
func initInternal(data []byte, maxSize int32) *nodeView {
	hdr := castHeader(data)
	*hdr = nodeHeader{pageType: pageTypeInternal, size: 0, maxSize: maxSize}
	return viewNode(data)
}

// isLeaf/isInternal are convenience predicates on a view's header.
func (nv *nodeView) isLeaf() bool     { return nv.hdr.pageType == pageTypeLeaf }
func (nv *nodeView) isInternal() bool { return nv.hdr.pageType == pageTypeInternal }

// minSize computes ceil(max/2) for internal nodes, ceil((max-1)/2)
// for leaves (which lack the internal sentinel slot).
func minSize(maxSize int32, leaf bool) int32 {
	if leaf {
		return (maxSize - 1 + 1) / 2
	}
	return (maxSize + 1) / 2
}

func (nv *nodeView) minSize() int32 { return minSize(nv.hdr.maxSize, nv.isLeaf()) }

// isSafeForInsert reports whether this node can absorb one more entry
// without reaching max_size, the "write crab" safety test used during insert:
// on acquiring a node this safe, all earlier guards in the descent may be
// released because this operation is now guaranteed never to touch an
// ancestor.
func (nv *nodeView) isSafeForInsert() bool { return nv.hdr.size < nv.hdr.maxSize-1 }

// isSafeForDelete reports whether this node has slack above its minimum
// occupancy, the equivalent safety test for deletion.
func (nv *nodeView) isSafeForDelete() bool { return nv.hdr.size > nv.minSize() }

// headerPageData is the well-known header page's layout: an init flag and
// the tree's root page id. The tree is empty exactly when rootPageID ==
// InvalidPageID32.
type headerPageData struct {
	flags      int32
	rootPageID int32
}

const headerFlagInit int32 = 1

func castHeaderPage(data []byte) *headerPageData {
	return (*headerPageData)(unsafe.Pointer(&data[0]))
}

// insertLeafEntryAt shifts entries[idx:size) right by one slot and stores e
// at idx, growing size by one. Caller guarantees room (size < maxSize).
func insertLeafEntryAt(nv *nodeView, idx int32, e leafEntry) {
	copy(nv.entries[idx+1:nv.hdr.size+1], nv.entries[idx:nv.hdr.size])
	nv.entries[idx] = e
	nv.hdr.size++
}

// removeLeafEntryAt removes entries[idx], shifting the remainder left.
func removeLeafEntryAt(nv *nodeView, idx int32) {
	copy(nv.entries[idx:nv.hdr.size-1], nv.entries[idx+1:nv.hdr.size])
	nv.hdr.size--
}

// insertInternalEntry inserts a new (separator key, right child) pair,
// locating the insertion point by scanning for the first key greater than
// the new one. Caller guarantees room (size <= maxSize).
func insertInternalEntry(nv *nodeView, key Key, childPageID int32, cmp Comparator) {
	idx := int32(1)
	for idx < nv.hdr.size && cmp(nv.keys[idx], key) <= 0 {
		idx++
	}
	copy(nv.keys[idx+1:nv.hdr.size+1], nv.keys[idx:nv.hdr.size])
	copy(nv.children[idx+1:nv.hdr.size+1], nv.children[idx:nv.hdr.size])
	nv.keys[idx] = key
	nv.children[idx] = childPageID
	nv.hdr.size++
}

// removeInternalEntry removes the key/child pair at idx, shifting the
// remainder left. idx must be >= 1 (slot 0 carries no key, only a child).
func removeInternalEntry(nv *nodeView, idx int32) {
	copy(nv.keys[idx:nv.hdr.size-1], nv.keys[idx+1:nv.hdr.size])
	copy(nv.children[idx:nv.hdr.size-1], nv.children[idx+1:nv.hdr.size])
	nv.hdr.size--
}

// shiftInternalRight makes room at slot 0 by shifting every key and child
// right by one. Used when an internal node borrows a child from its left
// sibling: the borrowed child becomes the new children[0], and the old
// children[0] edge's separator (previously implicit) is supplied by the
// caller at keys[1].
func shiftInternalRight(nv *nodeView) {
	copy(nv.keys[1:nv.hdr.size+1], nv.keys[0:nv.hdr.size])
	copy(nv.children[1:nv.hdr.size+1], nv.children[0:nv.hdr.size])
}

// mergeLeaf appends right's entries onto left and adopts right's sibling
// link. Only valid when left.size+right.size <= left.maxSize.
func mergeLeaf(left, right *nodeView) {
	n := right.hdr.size
	copy(left.entries[left.hdr.size:left.hdr.size+n], right.entries[:n])
	left.hdr.size += n
	left.hdr.next = right.hdr.next
}

// mergeInternal appends right's children onto left, reintroducing separator
// as the key that used to sit between them in their shared parent (an
// internal merge loses no keys: the parent's separator becomes live data).
func mergeInternal(left, right *nodeView, separator Key) {
	n := right.hdr.size
	base := left.hdr.size
	left.keys[base] = separator
	copy(left.children[base:base+n], right.children[:n])
	copy(left.keys[base+1:base+n], right.keys[1:n])
	left.hdr.size += n
}

// findChildIndex returns the slot in parent whose child pointer equals
// pageID, or -1 if not found.
func findChildIndex(parent *nodeView, pageID int32) int32 {
	for i := int32(0); i < parent.hdr.size; i++ {
		if parent.children[i] == pageID {
			return i
		}
	}
	return -1
}
