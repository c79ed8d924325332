package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/abhiw/storagePrototype/internal/alias/bx"
	"github.com/abhiw/storagePrototype/internal/logx"
	"github.com/abhiw/storagePrototype/internal/page"
)

const (
	fsmMagic uint32 = 0x46534D00

	// MaxCategory is the bucket for a completely empty page.
	MaxCategory = 255
)

// BytesToCategory buckets a free-byte count into one byte:
// (bytes * 255) / 8192, clamped at a full page.
func BytesToCategory(availableBytes int) uint8 {
	if availableBytes > page.PageSize {
		availableBytes = page.PageSize
	}
	if availableBytes < 0 {
		availableBytes = 0
	}
	return uint8(availableBytes * MaxCategory / page.PageSize)
}

// CategoryToBytes is the inverse approximation of BytesToCategory.
func CategoryToBytes(category uint8) int {
	return int(category) * page.PageSize / MaxCategory
}

// FreeSpaceMap tracks an approximate free-byte category per page so tuple
// inserts can pick a target page without touching it first. Categories are
// a lossy bucket (about 32 bytes per step), so callers retry when a
// candidate page turns out to be too full.
//
// On disk: magic, page_count, allocated_count, allocated page ids, then one
// category byte per page. In memory: a dense category array plus a set of
// allocated page ids; only allocated pages are scanned on lookup.
type FreeSpaceMap struct {
	path string
	file *os.File

	mu          sync.Mutex
	cache       []uint8
	allocated   map[uint32]struct{}
	pageCount   uint32
	dirty       bool
	initialized bool
}

func NewFreeSpaceMap(path string) *FreeSpaceMap {
	return &FreeSpaceMap{
		path:      path,
		allocated: make(map[uint32]struct{}),
	}
}

// Initialize opens or creates the backing file and loads any persisted
// state. A short or unreadable file starts the map empty.
func (f *FreeSpaceMap) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}

	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open fsm file %s: %w", f.path, err)
	}
	f.file = file

	if err := f.loadFromDisk(); err != nil {
		logx.L().WithField("path", f.path).WithError(err).Debug("starting with empty free-space map")
		f.pageCount = 0
		f.cache = nil
		f.allocated = make(map[uint32]struct{})
		f.dirty = true
	}

	f.initialized = true
	return nil
}

// UpdatePageFreeSpace records the current free-byte count of a page.
func (f *FreeSpaceMap) UpdatePageFreeSpace(id uint32, availableBytes int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ensureCapacity(id)
	f.cache[id] = BytesToCategory(availableBytes)
	f.allocated[id] = struct{}{}
	f.dirty = true
	if id >= f.pageCount {
		f.pageCount = id + 1
	}
}

// FindPageWithSpace returns some allocated page whose category suggests at
// least requiredBytes free, or InvalidPageID. Map iteration order makes the
// pick arbitrary, and the category is an approximation: the caller must be
// prepared for the page to refuse the insert.
func (f *FreeSpaceMap) FindPageWithSpace(requiredBytes int) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	minCategory := BytesToCategory(requiredBytes)

	for id := range f.allocated {
		if int(id) >= len(f.cache) {
			continue
		}
		category := f.cache[id]
		if category > minCategory {
			return id
		}
		if category == minCategory && category > 0 {
			return id
		}
	}

	return page.InvalidPageID
}

// Category returns the stored bucket for a page; unallocated pages are 0.
func (f *FreeSpaceMap) Category(id uint32) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.allocated[id]; !ok {
		return 0
	}
	if int(id) < len(f.cache) {
		return f.cache[id]
	}
	return 0
}

// SetCategory stores a bucket directly, marking the page allocated.
func (f *FreeSpaceMap) SetCategory(id uint32, category uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ensureCapacity(id)
	f.cache[id] = category
	f.allocated[id] = struct{}{}
	f.dirty = true
	if id >= f.pageCount {
		f.pageCount = id + 1
	}
}

// PageCount is the size of the dense category array (highest page id + 1),
// not the number of allocated pages.
func (f *FreeSpaceMap) PageCount() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCount
}

// AllocatedPages returns the ids currently tracked, in no particular order.
func (f *FreeSpaceMap) AllocatedPages() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]uint32, 0, len(f.allocated))
	for id := range f.allocated {
		ids = append(ids, id)
	}
	return ids
}

// Flush persists the map when dirty.
func (f *FreeSpaceMap) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirty {
		return nil
	}
	if err := f.writeToDisk(); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Close flushes pending changes and releases the file.
func (f *FreeSpaceMap) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	if f.dirty {
		if err := f.writeToDisk(); err != nil {
			f.file.Close()
			f.file = nil
			return err
		}
		f.dirty = false
	}
	err := f.file.Close()
	f.file = nil
	f.initialized = false
	return err
}

func (f *FreeSpaceMap) ensureCapacity(id uint32) {
	if int(id) < len(f.cache) {
		return
	}
	newSize := int(id) + 1
	if doubled := len(f.cache) * 2; doubled > newSize {
		newSize = doubled
	}
	grown := make([]uint8, newSize)
	copy(grown, f.cache)
	f.cache = grown
}

func (f *FreeSpaceMap) loadFromDisk() error {
	info, err := f.file.Stat()
	if err != nil {
		return err
	}
	// Needs at least magic + page_count + allocated_count.
	if info.Size() < 12 {
		return fmt.Errorf("%w: fsm file too short", ErrInvalidFormat)
	}

	raw := make([]byte, info.Size())
	if _, err := f.file.ReadAt(raw, 0); err != nil {
		return err
	}

	if bx.U32(raw) != fsmMagic {
		return fmt.Errorf("%w: bad fsm magic %#x", ErrInvalidFormat, bx.U32(raw))
	}
	pageCount := bx.U32At(raw, 4)
	allocatedCount := bx.U32At(raw, 8)

	need := 12 + int64(allocatedCount)*4 + int64(pageCount)
	if info.Size() < need {
		return fmt.Errorf("%w: fsm file truncated", ErrInvalidFormat)
	}

	allocated := make(map[uint32]struct{}, allocatedCount)
	off := 12
	for i := uint32(0); i < allocatedCount; i++ {
		allocated[bx.U32At(raw, off)] = struct{}{}
		off += 4
	}

	cache := make([]uint8, pageCount)
	copy(cache, raw[off:off+int(pageCount)])

	f.pageCount = pageCount
	f.allocated = allocated
	f.cache = cache
	f.dirty = false
	return nil
}

func (f *FreeSpaceMap) writeToDisk() error {
	size := 12 + len(f.allocated)*4 + int(f.pageCount)
	raw := make([]byte, size)

	bx.PutU32(raw, fsmMagic)
	bx.PutU32At(raw, 4, f.pageCount)
	bx.PutU32At(raw, 8, uint32(len(f.allocated)))

	off := 12
	for id := range f.allocated {
		bx.PutU32At(raw, off, id)
		off += 4
	}

	n := int(f.pageCount)
	if n > len(f.cache) {
		n = len(f.cache)
	}
	copy(raw[off:], f.cache[:n])

	if _, err := f.file.WriteAt(raw, 0); err != nil {
		return fmt.Errorf("write fsm: %w", err)
	}
	// Drop any stale tail from a previous, larger map.
	if err := f.file.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate fsm: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync fsm: %w", err)
	}
	return nil
}
