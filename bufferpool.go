package bptreedb

import (
	"container/list"
	"sync"

	"go.uber.org/zap"
)

// BufferPoolManager maps logical page ids to a fixed set of in-memory
// frames, brokers disk I/O, and coordinates frame reuse via an LRU-K
// replacer. Grounded on the teacher's buff.BufferPool, with the
// page table widened to page_id -> frame_id instead of the
// teacher's page_id -> *Page, and the BPM-mutex/page-latch handoff during
// I/O made explicit.
type BufferPoolManager struct {
	mu         sync.Mutex
	pages      []Page
	pageTable  map[int]int // page_id -> frame_id
	freeList   *list.List  // of int frame_id
	replacer   *LRUKReplacer
	disk       *DiskManager
	nextPageID int
	log        *zap.Logger
}

// NewBufferPoolManager constructs a pool of cfg.PoolSize frames backed by
// disk, replacing frames via LRU-K with cfg.ReplacerK.
func NewBufferPoolManager(cfg Config, disk *DiskManager, log *zap.Logger) *BufferPoolManager {
	if log == nil {
		log = zap.NewNop()
	}
	freeList := list.New()
	pages := make([]Page, cfg.PoolSize)
	for i := range pages {
		pages[i].pageID = InvalidPageID
		pages[i].frameID = i
		freeList.PushBack(i)
	}
	return &BufferPoolManager{
		pages:     pages,
		pageTable: make(map[int]int, cfg.PoolSize),
		freeList:  freeList,
		replacer:  NewLRUKReplacer(cfg.PoolSize, cfg.ReplacerK),
		disk:      disk,
		log:       log,
	}
}

func (b *BufferPoolManager) allocatePageLocked() int {
	id := b.nextPageID
	b.nextPageID++
	return id
}

// getFreeFrameLocked returns a frame ready for reuse, preferring the free
// list over evicting via the replacer. If the frame comes from
// the replacer, its previous page-table mapping is removed here, under the
// lock, before I/O for the new occupant begins.
func (b *BufferPoolManager) getFreeFrameLocked() (int, bool) {
	if b.freeList.Len() > 0 {
		e := b.freeList.Front()
		b.freeList.Remove(e)
		return e.Value.(int), true
	}
	frameID, ok := b.replacer.Evict()
	if !ok {
		return 0, false
	}
	old := &b.pages[frameID]
	delete(b.pageTable, old.GetPageID())
	return frameID, true
}

// NewPage allocates a fresh page id, binds it to a free or evicted frame,
// and returns the zeroed, pinned page. Returns ErrBufferPoolFull if no frame
// can be freed.
func (b *BufferPoolManager) NewPage() (*Page, error) {
	b.mu.Lock()
	frameID, ok := b.getFreeFrameLocked()
	if !ok {
		b.mu.Unlock()
		return nil, ErrBufferPoolFull
	}
	pageID := b.allocatePageLocked()
	page := &b.pages[frameID]

	// Reserve the frame (pin=1) and take its latch before releasing the BPM
	// mutex for I/O: no other thread can reuse this frame once pinned, and
	// no other thread can observe half-written content once latched, even
	// though the new mapping is installed before the I/O completes.
	wasDirty := page.IsDirty()
	oldPageID := page.GetPageID()
	page.mu.Lock()
	page.pin()
	b.pageTable[pageID] = frameID
	b.replacer.RecordAccessAndSetEvictable(frameID, false)
	b.mu.Unlock()

	if wasDirty {
		if err := b.disk.WritePage(oldPageID, page.GetData()); err != nil {
			page.mu.Unlock()
			b.log.Error("write-back before new_page failed", zap.Int("page_id", oldPageID), zap.Error(err))
			return nil, err
		}
	}
	page.installAsNew(pageID, frameID)
	page.mu.Unlock()
	b.log.Debug("new_page", zap.Int("page_id", pageID), zap.Int("frame_id", frameID))
	return page, nil
}

// FetchPage returns the page for pageID, pinning it and marking it
// non-evictable. If the page is not resident, it is loaded from disk into a
// free or evicted frame. Returns ErrBufferPoolFull if no frame is available.
func (b *BufferPoolManager) FetchPage(pageID int) (*Page, error) {
	b.mu.Lock()
	if frameID, ok := b.pageTable[pageID]; ok {
		page := &b.pages[frameID]
		page.pin()
		b.replacer.RecordAccessAndSetEvictable(frameID, false)
		b.mu.Unlock()
		return page, nil
	}

	frameID, ok := b.getFreeFrameLocked()
	if !ok {
		b.mu.Unlock()
		return nil, ErrBufferPoolFull
	}
	page := &b.pages[frameID]
	wasDirty := page.IsDirty()
	oldPageID := page.GetPageID()
	page.mu.Lock()
	page.pin()
	b.pageTable[pageID] = frameID
	b.replacer.RecordAccessAndSetEvictable(frameID, false)
	b.mu.Unlock()

	if wasDirty {
		if err := b.disk.WritePage(oldPageID, page.GetData()); err != nil {
			page.mu.Unlock()
			b.log.Error("write-back before fetch_page failed", zap.Int("page_id", oldPageID), zap.Error(err))
			return nil, err
		}
	}
	if err := b.disk.ReadPage(pageID, page.GetData()); err != nil {
		page.mu.Unlock()
		b.log.Error("read_page failed", zap.Int("page_id", pageID), zap.Error(err))
		return nil, err
	}
	page.installFetched(pageID, frameID)
	page.mu.Unlock()
	b.log.Debug("fetch_page", zap.Int("page_id", pageID), zap.Int("frame_id", frameID))
	return page, nil
}

// UnpinPage decrements pageID's pin count, marking its frame evictable once
// the count reaches zero, and ORs dirtyHint into the dirty bit. Returns
// false if the page is unmapped or already unpinned.
func (b *BufferPoolManager) UnpinPage(pageID int, dirtyHint bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	frameID, ok := b.pageTable[pageID]
	if !ok {
		return false
	}
	page := &b.pages[frameID]
	if page.pinCount == 0 {
		return false
	}
	page.pinCount--
	if dirtyHint {
		page.dirty = true
	}
	if page.pinCount == 0 {
		b.replacer.SetEvictable(frameID, true)
	}
	return true
}

// FlushPage writes pageID to disk unconditionally and clears its dirty bit.
func (b *BufferPoolManager) FlushPage(pageID int) bool {
	b.mu.Lock()
	frameID, ok := b.pageTable[pageID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	page := &b.pages[frameID]
	b.mu.Unlock()

	if err := b.disk.WritePage(pageID, page.GetData()); err != nil {
		b.log.Error("flush_page failed", zap.Int("page_id", pageID), zap.Error(err))
		return false
	}
	page.dirty = false
	return true
}

// FlushAllPages flushes every currently mapped page.
func (b *BufferPoolManager) FlushAllPages() {
	b.mu.Lock()
	pageIDs := make([]int, 0, len(b.pageTable))
	for pid := range b.pageTable {
		pageIDs = append(pageIDs, pid)
	}
	b.mu.Unlock()
	for _, pid := range pageIDs {
		b.FlushPage(pid)
	}
}

// DeletePage frees pageID's frame back to the free list, writing it back
// first if dirty. Idempotent: deleting an unmapped page returns true.
// Returns false if the page is still pinned.
func (b *BufferPoolManager) DeletePage(pageID int) bool {
	b.mu.Lock()
	frameID, ok := b.pageTable[pageID]
	if !ok {
		b.mu.Unlock()
		return true
	}
	page := &b.pages[frameID]
	if page.pinCount > 0 {
		b.mu.Unlock()
		return false
	}
	delete(b.pageTable, pageID)
	b.replacer.Remove(frameID)
	b.mu.Unlock()

	page.mu.Lock()
	if page.IsDirty() {
		if err := b.disk.WritePage(pageID, page.GetData()); err != nil {
			b.log.Error("write-back before delete_page failed", zap.Int("page_id", pageID), zap.Error(err))
		}
	}
	page.reset()
	page.mu.Unlock()

	b.mu.Lock()
	b.freeList.PushBack(frameID)
	b.mu.Unlock()
	b.log.Debug("delete_page", zap.Int("page_id", pageID), zap.Int("frame_id", frameID))
	return true
}

// FetchPageBasic fetches pageID and wraps it in a BasicPageGuard.
func (b *BufferPoolManager) FetchPageBasic(pageID int) (BasicPageGuard, error) {
	page, err := b.FetchPage(pageID)
	if err != nil {
		return BasicPageGuard{}, err
	}
	return BasicPageGuard{bpm: b, page: page}, nil
}

// FetchPageRead fetches pageID and returns it wrapped in a ReadPageGuard,
// having already taken the page's read latch.
func (b *BufferPoolManager) FetchPageRead(pageID int) (ReadPageGuard, error) {
	page, err := b.FetchPage(pageID)
	if err != nil {
		return ReadPageGuard{}, err
	}
	page.mu.RLock()
	return ReadPageGuard{guard: BasicPageGuard{bpm: b, page: page}}, nil
}

// FetchPageWrite fetches pageID and returns it wrapped in a WritePageGuard,
// having already taken the page's write latch.
func (b *BufferPoolManager) FetchPageWrite(pageID int) (WritePageGuard, error) {
	page, err := b.FetchPage(pageID)
	if err != nil {
		return WritePageGuard{}, err
	}
	page.mu.Lock()
	return WritePageGuard{guard: BasicPageGuard{bpm: b, page: page}}, nil
}

// NewPageGuarded allocates a fresh page and wraps it in a BasicPageGuard,
// also returning its page id.
func (b *BufferPoolManager) NewPageGuarded() (BasicPageGuard, int, error) {
	page, err := b.NewPage()
	if err != nil {
		return BasicPageGuard{}, InvalidPageID, err
	}
	return BasicPageGuard{bpm: b, page: page}, page.GetPageID(), nil
}

// NewPageWrite allocates a fresh page, already write-latched, wrapped in a
// WritePageGuard. Callers that build structured content on a brand-new page
// (an index node, a header page) use this instead of NewPageGuarded so the
// page can never be observed half-initialized even though nothing else can
// reach its id yet.
func (b *BufferPoolManager) NewPageWrite() (WritePageGuard, int, error) {
	page, err := b.NewPage()
	if err != nil {
		return WritePageGuard{}, InvalidPageID, err
	}
	page.mu.Lock()
	return WritePageGuard{guard: BasicPageGuard{bpm: b, page: page}}, page.GetPageID(), nil
}
