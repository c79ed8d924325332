package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"

	"github.com/abhiw/storagePrototype/internal/logx"
	"github.com/abhiw/storagePrototype/internal/page"
)

// MaxCacheSize caps the number of pages held in memory.
const MaxCacheSize = 100

const insertAttempts = 3

// PageManager coordinates tuple-level CRUD across the page cache, the disk
// manager and the free-space map. One coarse mutex serializes every public
// operation, including the disk I/O it triggers.
type PageManager struct {
	disk *DiskManager
	fsm  *FreeSpaceMap

	mu    sync.Mutex
	cache map[uint32]*page.Page

	// Payloads of at least compressMin bytes are stored snappy-encoded
	// with the slot's compressed flag set; 0 disables compression.
	compressMin int

	log *logrus.Logger
}

func NewPageManager(disk *DiskManager, fsm *FreeSpaceMap) (*PageManager, error) {
	if disk == nil || fsm == nil {
		return nil, fmt.Errorf("%w: page manager needs a disk manager and a free-space map", ErrBadInput)
	}
	if err := fsm.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize free-space map: %w", err)
	}
	return &PageManager{
		disk:  disk,
		fsm:   fsm,
		cache: make(map[uint32]*page.Page),
		log:   logx.L(),
	}, nil
}

// EnableCompression turns on transparent snappy compression for payloads
// of at least minSize bytes.
func (pm *PageManager) EnableCompression(minSize int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.compressMin = minSize
}

// encodePayload applies the compression policy. Compression is skipped
// when it does not actually shrink the payload.
func (pm *PageManager) encodePayload(data []byte) ([]byte, bool) {
	if pm.compressMin <= 0 || len(data) < pm.compressMin {
		return data, false
	}
	encoded := snappy.Encode(nil, data)
	if len(encoded) >= len(data) {
		return data, false
	}
	return encoded, true
}

// InsertTuple stores a tuple on some page with room for it and returns its
// id. The free-space map is approximate, so up to three candidate pages are
// tried, compacting fragmented ones along the way, before giving up.
func (pm *PageManager) InsertTuple(data []byte) (page.TupleID, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(data) == 0 {
		return page.TupleID{}, fmt.Errorf("%w: empty tuple", ErrBadInput)
	}
	if len(data) > page.MaxTupleSize {
		return page.TupleID{}, fmt.Errorf("%w: tuple of %d bytes exceeds page capacity", ErrBadInput, len(data))
	}

	payload, compressed := pm.encodePayload(data)
	required := len(payload) + page.SlotEntrySize

	for attempt := 0; attempt < insertAttempts; attempt++ {
		pageID := pm.fsm.FindPageWithSpace(required)
		if pageID == page.InvalidPageID {
			var err error
			pageID, err = pm.allocateNewPage()
			if err != nil {
				return page.TupleID{}, err
			}
		}

		p, err := pm.getPage(pageID)
		if err != nil {
			return page.TupleID{}, err
		}

		slot, err := p.InsertTuple(payload)
		if errors.Is(err, page.ErrNoSpace) && p.ShouldCompact() {
			pm.log.WithField("page_id", pageID).Debug("compacting page to reclaim fragmented space")
			p.CompactPage()
			slot, err = p.InsertTuple(payload)
		}
		if err != nil {
			if errors.Is(err, page.ErrNoSpace) {
				// The category lied; take the page out of rotation and retry.
				pm.fsm.UpdatePageFreeSpace(pageID, 0)
				continue
			}
			return page.TupleID{}, err
		}

		if compressed {
			if err := p.SetSlotCompressed(slot, true); err != nil {
				return page.TupleID{}, err
			}
		}

		pm.updateFSM(pageID, p)
		return page.TupleID{PageID: pageID, SlotID: slot}, nil
	}

	return page.TupleID{}, ErrOutOfSpace
}

// ReadTuple resolves a tuple id through any forwarding stubs and returns a
// copy of its payload, decompressed if needed.
func (pm *PageManager) ReadTuple(id page.TupleID) ([]byte, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.readTupleLocked(id)
}

// GetTuple copies the resolved payload into buf and returns its length.
// ErrBufferTooSmall reports a buf shorter than the payload.
func (pm *PageManager) GetTuple(id page.TupleID, buf []byte) (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	data, err := pm.readTupleLocked(id)
	if err != nil {
		return 0, err
	}
	if len(buf) < len(data) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, len(data), len(buf))
	}
	copy(buf, data)
	return len(data), nil
}

func (pm *PageManager) readTupleLocked(id page.TupleID) ([]byte, error) {
	dest, err := pm.resolveLocked(id)
	if err != nil {
		return nil, err
	}

	p, err := pm.getPage(dest.PageID)
	if err != nil {
		return nil, err
	}
	if !p.IsSlotValid(dest.SlotID) {
		return nil, fmt.Errorf("%w: page %d slot %d", ErrTupleNotFound, dest.PageID, dest.SlotID)
	}

	raw, err := p.TupleData(dest.SlotID)
	if err != nil {
		return nil, err
	}

	if p.IsSlotCompressed(dest.SlotID) {
		decoded, err := snappy.Decode(nil, raw)
		if err != nil {
			return nil, fmt.Errorf("decompress tuple at page %d slot %d: %w", dest.PageID, dest.SlotID, err)
		}
		return decoded, nil
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// UpdateTuple replaces a tuple's payload. When the new version fits in the
// resolved slot it is updated in place and the tuple id stays put;
// otherwise the new version is inserted elsewhere and the ORIGINAL slot
// becomes a forwarding stub, so ids handed out earlier keep resolving.
func (pm *PageManager) UpdateTuple(id page.TupleID, data []byte) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(data) == 0 {
		return fmt.Errorf("%w: empty tuple", ErrBadInput)
	}
	if len(data) > page.MaxTupleSize {
		return fmt.Errorf("%w: tuple of %d bytes exceeds page capacity", ErrBadInput, len(data))
	}

	current, err := pm.resolveLocked(id)
	if err != nil {
		return err
	}

	currentPage, err := pm.getPage(current.PageID)
	if err != nil {
		return err
	}

	payload, compressed := pm.encodePayload(data)

	err = currentPage.UpdateTupleInPlace(current.SlotID, payload)
	if err == nil {
		if cerr := currentPage.SetSlotCompressed(current.SlotID, compressed); cerr != nil {
			return cerr
		}
		pm.updateFSM(current.PageID, currentPage)
		return nil
	}
	if !errors.Is(err, page.ErrTupleTooLarge) && !errors.Is(err, page.ErrSlotForwarded) {
		return err
	}

	// Build out a forwarding chain: new version first, then the stub.
	required := len(payload) + page.SlotEntrySize
	newPageID := pm.fsm.FindPageWithSpace(required)
	if newPageID == page.InvalidPageID {
		newPageID, err = pm.allocateNewPage()
		if err != nil {
			return err
		}
	}

	newPage, err := pm.getPage(newPageID)
	if err != nil {
		return err
	}

	newSlot, err := newPage.InsertTuple(payload)
	if errors.Is(err, page.ErrNoSpace) && newPage.ShouldCompact() {
		newPage.CompactPage()
		newSlot, err = newPage.InsertTuple(payload)
	}
	if err != nil {
		return fmt.Errorf("insert new tuple version: %w", err)
	}
	if compressed {
		if err := newPage.SetSlotCompressed(newSlot, true); err != nil {
			return err
		}
	}

	// The stub lives on the page of the id the caller holds, not on the
	// resolved page, so earlier references stay valid.
	originalPage, err := pm.getPage(id.PageID)
	if err != nil {
		return err
	}
	if err := originalPage.MarkSlotForwarded(id.SlotID, newPageID, newSlot); err != nil {
		return fmt.Errorf("mark slot forwarded: %w", err)
	}

	// A version reached through an earlier stub is no longer referenced.
	if current != id {
		superseded, err := pm.getPage(current.PageID)
		if err != nil {
			return err
		}
		if err := superseded.DeleteTuple(current.SlotID); err != nil {
			return fmt.Errorf("delete superseded tuple version: %w", err)
		}
		pm.updateFSM(current.PageID, superseded)
	}

	pm.updateFSM(id.PageID, originalPage)
	pm.updateFSM(newPageID, newPage)

	pm.log.WithFields(logrus.Fields{
		"from_page": id.PageID,
		"from_slot": id.SlotID,
		"to_page":   newPageID,
		"to_slot":   newSlot,
	}).Debug("created forwarding chain")
	return nil
}

// DeleteTuple removes the tuple a (possibly forwarded) id resolves to.
// Forwarding stubs along the way are left in place. Once the target is
// gone, ids that resolve through the stub fail with ErrInvalidTuple when
// the target shares the stub's page (the chain walk lands on an invalid
// slot), and reads fail with ErrTupleNotFound when it lives on another page.
func (pm *PageManager) DeleteTuple(id page.TupleID) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	dest, err := pm.resolveLocked(id)
	if err != nil {
		return err
	}

	p, err := pm.getPage(dest.PageID)
	if err != nil {
		return err
	}
	if err := p.DeleteTuple(dest.SlotID); err != nil {
		return err
	}

	pm.updateFSM(dest.PageID, p)
	return nil
}

// FollowForwardingChainFull resolves a tuple id to its physical location.
func (pm *PageManager) FollowForwardingChainFull(id page.TupleID) (page.TupleID, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.resolveLocked(id)
}

func (pm *PageManager) resolveLocked(id page.TupleID) (page.TupleID, error) {
	if id.PageID == page.InvalidPageID || id.SlotID == page.InvalidSlotID {
		return page.TupleID{}, fmt.Errorf("%w: (%d, %d)", ErrInvalidTuple, id.PageID, id.SlotID)
	}

	p, err := pm.getPage(id.PageID)
	if err != nil {
		return page.TupleID{}, err
	}
	if id.SlotID >= p.SlotCount() {
		return page.TupleID{}, fmt.Errorf("%w: slot %d out of range", ErrInvalidTuple, id.SlotID)
	}

	dest := p.FollowForwardingChain(id.SlotID, page.DefaultMaxHops)
	if !dest.IsValid() {
		return page.TupleID{}, fmt.Errorf("%w: (%d, %d)", ErrInvalidTuple, id.PageID, id.SlotID)
	}
	return dest, nil
}

// FindPageWithSpace passes through to the free-space map.
func (pm *PageManager) FindPageWithSpace(requiredBytes int) uint32 {
	return pm.fsm.FindPageWithSpace(requiredBytes)
}

// CompactPage compacts one page if it looks worth it.
func (pm *PageManager) CompactPage(pageID uint32) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	p, err := pm.getPage(pageID)
	if err != nil {
		return err
	}
	if !p.ShouldCompact() {
		return nil
	}
	p.CompactPage()
	pm.updateFSM(pageID, p)
	return nil
}

// FlushAllPages writes every dirty cached page and persists the free-space
// map.
func (pm *PageManager) FlushAllPages() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.flushAllLocked()
}

func (pm *PageManager) flushAllLocked() error {
	for id, p := range pm.cache {
		if p == nil || !p.IsDirty() {
			continue
		}
		if err := pm.flushPageLocked(id, p); err != nil {
			return err
		}
	}
	if err := pm.fsm.Flush(); err != nil {
		return fmt.Errorf("flush free-space map: %w", err)
	}
	return nil
}

func (pm *PageManager) flushPageLocked(id uint32, p *page.Page) error {
	if err := pm.disk.WritePage(id, p.Buffer()); err != nil {
		return err
	}
	p.ClearDirty()
	return nil
}

// ClearCache flushes everything and drops all cached pages.
func (pm *PageManager) ClearCache() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.flushAllLocked(); err != nil {
		return err
	}
	pm.cache = make(map[uint32]*page.Page)
	return nil
}

func (pm *PageManager) GetCacheSize() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.cache)
}

// ForEachTuple visits every live, non-forwarded tuple in page-id order,
// handing the callback a decompressed copy of each payload.
func (pm *PageManager) ForEachTuple(fn func(id page.TupleID, data []byte) error) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	last := pm.disk.NextPageID()
	for pageID := uint32(1); pageID < last; pageID++ {
		p, err := pm.getPage(pageID)
		if err != nil {
			return err
		}

		for slot := uint16(0); slot < p.SlotCount(); slot++ {
			if !p.IsSlotValid(slot) || p.IsSlotForwarded(slot) {
				continue
			}
			id := page.TupleID{PageID: pageID, SlotID: slot}
			data, err := pm.readTupleLocked(id)
			if err != nil {
				return err
			}
			if err := fn(id, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes all state and releases the underlying files.
func (pm *PageManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	flushErr := pm.flushAllLocked()
	fsmErr := pm.fsm.Close()
	diskErr := pm.disk.Close()

	if flushErr != nil {
		return flushErr
	}
	if fsmErr != nil {
		return fsmErr
	}
	return diskErr
}

func (pm *PageManager) getPage(id uint32) (*page.Page, error) {
	if p, ok := pm.cache[id]; ok {
		return p, nil
	}

	buf := make([]byte, page.PageSize)
	if err := pm.disk.ReadPage(id, buf); err != nil {
		return nil, err
	}
	p, err := page.FromBuffer(buf)
	if err != nil {
		return nil, err
	}

	pm.evictPageIfNeeded()
	pm.cache[id] = p
	return p, nil
}

func (pm *PageManager) allocateNewPage() (uint32, error) {
	id, err := pm.disk.AllocatePage()
	if err != nil {
		return page.InvalidPageID, err
	}

	p := page.NewPage()
	p.SetPageID(uint16(id))

	pm.evictPageIfNeeded()
	pm.cache[id] = p
	pm.updateFSM(id, p)
	return id, nil
}

// evictPageIfNeeded makes room when the cache is full: a clean page is
// dropped outright, otherwise the first page found is flushed and dropped.
func (pm *PageManager) evictPageIfNeeded() {
	if len(pm.cache) < MaxCacheSize {
		return
	}

	for id, p := range pm.cache {
		if p != nil && !p.IsDirty() {
			delete(pm.cache, id)
			return
		}
	}

	for id, p := range pm.cache {
		if p == nil {
			delete(pm.cache, id)
			return
		}
		if err := pm.flushPageLocked(id, p); err != nil {
			pm.log.WithField("page_id", id).WithError(err).Error("failed to flush page during eviction")
			return
		}
		delete(pm.cache, id)
		return
	}
}

func (pm *PageManager) updateFSM(id uint32, p *page.Page) {
	pm.fsm.UpdatePageFreeSpace(id, p.AvailableFreeSpace())
}
