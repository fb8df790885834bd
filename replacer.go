package bptreedb

import (
	"container/list"
	"fmt"
	"sync"
)

// lruKNode is one frame's access history. history holds up to k timestamps,
// most recent first.
type lruKNode struct {
	frameID   int
	evictable bool
	history   []int64
	// owner points at whichever of the replacer's two lists currently holds
	// this node's list.Element, so Evict/Remove/SetEvictable don't need to
	// search both lists to find it.
	owner *list.List
	elem  *list.Element
}

func (n *lruKNode) addHistory(ts int64, k int) {
	n.history = append([]int64{ts}, n.history...)
	if len(n.history) > k {
		n.history = n.history[:k]
	}
}

// kDistanceTimestamp returns the k-th most recent access timestamp (the
// oldest entry in a full k-length history), used to compare two frames both
// past the k-access threshold: a smaller value here means a larger backward
// K-distance, i.e. a better eviction candidate.
func (n *lruKNode) kDistanceTimestamp() int64 {
	return n.history[len(n.history)-1]
}

// LRUKReplacer selects an evictable frame using backward K-distance.
// Grounded on original_source/src/buffer/lru_k_replacer.cpp: frames
// with fewer than K recorded accesses (infinite K-distance) always outrank
// frames with K or more, and are kept in their own list so that branch is
// O(1) instead of a linear scan with a fallback comparison.
type LRUKReplacer struct {
	mu        sync.Mutex
	k         int
	size      int
	clock     int64
	nodes     map[int]*lruKNode
	lessK     *list.List // front = most recently touched, back = oldest (LRU order)
	moreK     *list.List // unordered; Evict scans for the smallest kDistanceTimestamp
	numFrames int
}

// NewLRUKReplacer constructs a replacer tracking up to numFrames distinct
// frame ids, evicting by K-distance with the given k.
func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	if k < 1 {
		k = 1
	}
	return &LRUKReplacer{
		k:         k,
		numFrames: numFrames,
		nodes:     make(map[int]*lruKNode, numFrames),
		lessK:     list.New(),
		moreK:     list.New(),
	}
}

// RecordAccess appends the current logical timestamp to frameID's history,
// creating the record (initially non-evictable) if absent.
func (r *LRUKReplacer) RecordAccess(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordAccessLocked(frameID, nil)
}

// RecordAccessAndSetEvictable records an access and sets the evictable flag
// in one critical section (grounded on the original's
// RecordAccessAndSetEvictable — the BPM's actual call site on every
// NewPage/FetchPage).
func (r *LRUKReplacer) RecordAccessAndSetEvictable(frameID int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordAccessLocked(frameID, &evictable)
}

func (r *LRUKReplacer) recordAccessLocked(frameID int, setEvictable *bool) {
	n, ok := r.nodes[frameID]
	if !ok {
		n = &lruKNode{frameID: frameID}
		if setEvictable != nil && *setEvictable {
			n.evictable = true
			r.size++
		}
		n.owner = r.lessK
		n.elem = r.lessK.PushFront(n)
		r.nodes[frameID] = n
		n.addHistory(r.clock, r.k)
		r.clock++
		return
	}

	wasLessThanK := len(n.history) < r.k
	n.addHistory(r.clock, r.k)
	r.clock++

	if wasLessThanK && len(n.history) >= r.k {
		// crossed the k-access threshold: move from the less-than-k list
		// (LRU ordered) into the unordered at-or-above-k list.
		n.owner.Remove(n.elem)
		n.owner = r.moreK
		n.elem = r.moreK.PushBack(n)
	} else if n.owner == r.lessK {
		// still below k: bump to front to keep LRU order within the list.
		n.owner.MoveToFront(n.elem)
	}

	if setEvictable != nil {
		r.setEvictableLocked(n, *setEvictable)
	}
}

// SetEvictable toggles whether frameID may be chosen by Evict.
func (r *LRUKReplacer) SetEvictable(frameID int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[frameID]
	if !ok {
		return
	}
	r.setEvictableLocked(n, evictable)
}

func (r *LRUKReplacer) setEvictableLocked(n *lruKNode, evictable bool) {
	if n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		r.size++
	} else {
		r.size--
	}
}

// Evict selects and removes the record of an evictable frame: largest
// backward K-distance first (frames below the k-access threshold always
// win, as their distance is +∞), ties broken by oldest access.
func (r *LRUKReplacer) Evict() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return 0, false
	}

	for e := r.lessK.Back(); e != nil; e = e.Prev() {
		n := e.Value.(*lruKNode)
		if n.evictable {
			r.lessK.Remove(e)
			delete(r.nodes, n.frameID)
			r.size--
			return n.frameID, true
		}
	}

	var victim *lruKNode
	var victimElem *list.Element
	for e := r.moreK.Front(); e != nil; e = e.Next() {
		n := e.Value.(*lruKNode)
		if !n.evictable {
			continue
		}
		if victim == nil || n.kDistanceTimestamp() < victim.kDistanceTimestamp() {
			victim, victimElem = n, e
		}
	}
	if victim == nil {
		return 0, false
	}
	r.moreK.Remove(victimElem)
	delete(r.nodes, victim.frameID)
	r.size--
	return victim.frameID, true
}

// Remove forcibly drops frameID's record. Only valid to call on an
// evictable frame; removing an untracked frame (never recorded, or already
// evicted or removed) is a silent no-op.
func (r *LRUKReplacer) Remove(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[frameID]
	if !ok {
		return
	}
	assertf(n.evictable, "replacer: Remove called on non-evictable frame %d", frameID)
	n.owner.Remove(n.elem)
	delete(r.nodes, frameID)
	r.size--
}

// Size returns the number of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
