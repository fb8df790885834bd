package bptreedb

import "errors"

// Errors returned by BufferPoolManager and DiskManager operations. These are
// expected, recoverable conditions: capacity exhaustion and disk
// failures are surfaced this way rather than via panic, which is reserved
// for invariant violations (programmer bugs).
var (
	// ErrBufferPoolFull is returned when no frame can be freed for a
	// NewPage/FetchPage call: every frame is pinned and the free list is
	// empty.
	ErrBufferPoolFull = errors.New("bptreedb: buffer pool full, no evictable frame")
)
