// Package index implements a concurrent, crabbing-latched B+Tree: unique-key
// point lookup, insertion with splits, deletion with borrow/merge, and a
// forward leaf-level range iterator. Every node is a page resident in a
// bptreedb.BufferPoolManager; every operation crabs root-to-leaf through
// page guards.
package index

import (
	"bytes"
	"encoding/binary"
)

// KeySize is the fixed width, in bytes, of every key in this instantiation.
// This module is built against an 8-byte (uint64-sized) key, the width the
// teacher's bt2 package hardcodes as a single int64.
const KeySize = 8

// Key is a fixed-size, memcmp-comparable key. Stored verbatim in node page
// slot arrays (see node.go). The all-zero key (IntKey(0)) is an ordinary
// value here, not a sentinel: an internal node's slot-0 key is never
// compared, so no key value is reserved.
type Key [KeySize]byte

// IntKey builds a Key from a uint64 using big-endian encoding, so that
// byte-wise comparison (DefaultComparator) agrees with numeric order.
func IntKey(n uint64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[:], n)
	return k
}

// Uint64 decodes a Key built by IntKey back to its numeric value.
func (k Key) Uint64() uint64 { return binary.BigEndian.Uint64(k[:]) }

// Comparator is a strict three-way compare: negative if a < b, zero if
// equal, positive if a > b. Widened from the teacher's bool-returning
// Comparator (btree.Comparator) because borrow/merge and upper_bound need a
// three-way result.
type Comparator func(a, b Key) int

// DefaultComparator compares keys byte-wise, which agrees with numeric order
// for keys built via IntKey.
func DefaultComparator(a, b Key) int { return bytes.Compare(a[:], b[:]) }

// ValueSize is the fixed width, in bytes, of a Value (record id bundle).
const ValueSize = 8

// Value is the fixed-size opaque payload, commonly called "a record
// identifier". NewRID/PageID/Slot give it RID-like semantics (a page id plus
// a slot number within that page), the common instantiation in the
// retrieval pack's storage engines, without baking in a specific tuple
// layout (out of scope for this package).
type Value [ValueSize]byte

// NewRID packs a page id and slot number into a Value.
func NewRID(pageID int32, slot uint32) Value {
	var v Value
	binary.BigEndian.PutUint32(v[0:4], uint32(pageID))
	binary.BigEndian.PutUint32(v[4:8], slot)
	return v
}

// PageID unpacks the page id half of a Value built by NewRID.
func (v Value) PageID() int32 { return int32(binary.BigEndian.Uint32(v[0:4])) }

// Slot unpacks the slot half of a Value built by NewRID.
func (v Value) Slot() uint32 { return binary.BigEndian.Uint32(v[4:8]) }
