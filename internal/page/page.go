// Package page implements the 8 KiB slotted page: a 40-byte header, tuple
// data growing up from the header, and a directory of 8-byte slot entries
// growing down from the end of the page.
package page

import (
	"errors"
	"fmt"

	"github.com/abhiw/storagePrototype/internal/alias/bx"
	"github.com/abhiw/storagePrototype/internal/checksum"
)

const (
	PageSize      = 8192
	HeaderSize    = 40
	SlotEntrySize = 8

	// MaxTupleSize is the largest payload a single page can hold:
	// everything after the header minus one slot entry.
	MaxTupleSize = PageSize - HeaderSize - SlotEntrySize

	// DefaultMaxHops bounds forwarding-chain resolution.
	DefaultMaxHops = 10
)

const (
	InvalidPageID uint32 = 0
	InvalidSlotID uint16 = 0xFFFF
)

// Persistent header layout. Bytes 16-39 are reserved for runtime metadata
// and are always zero on disk; the live values are kept on the Page struct.
const (
	offPageID    = 0 // u16, low 16 bits of the page id
	offReserved  = 2 // u16, unused, kept for layout stability
	offFreeStart = 4 // u16, first byte of the free region
	offFreeEnd   = 6 // u16, one past the last byte of the free region
	offSlotCount = 8 // u16, directory entries ever allocated
	offPageType  = 10
	offFlags     = 11
	offChecksum  = 12 // u32
)

// Slot entry flags.
const (
	SlotValid      uint8 = 0x01
	SlotForwarded  uint8 = 0x02
	SlotCompressed uint8 = 0x04
)

// PageType tags what a page stores.
type PageType uint8

const (
	DataPage PageType = iota
	IndexPage
	FSMPage
)

var (
	ErrBadInput       = errors.New("page: bad input")
	ErrNoSpace        = errors.New("page: not enough free space")
	ErrBadSlot        = errors.New("page: invalid slot id")
	ErrSlotNotValid   = errors.New("page: slot is not valid")
	ErrAlreadyDeleted = errors.New("page: tuple already deleted")
	ErrSlotForwarded  = errors.New("page: slot is forwarded")
	ErrTupleTooLarge  = errors.New("page: new size exceeds current size")
)

// TupleID names a tuple's logical location. The zero value doubles as the
// sentinel returned by forwarding-chain resolution on failure.
type TupleID struct {
	PageID uint32
	SlotID uint16
}

func (id TupleID) IsValid() bool {
	return id.PageID != InvalidPageID && id.SlotID != InvalidSlotID
}

// SlotEntry is the decoded form of one 8-byte directory entry. Next packs a
// 24-bit forwarding pointer: page id low byte, page id high byte, slot id.
type SlotEntry struct {
	Offset uint16
	Length uint16
	Flags  uint8
	Next   [3]byte
}

// Page owns one 8 KiB buffer. Deleted-tuple and fragmentation counters plus
// the dirty flag live on the struct, not in the buffer, so the on-disk image
// never carries runtime state.
type Page struct {
	buf []byte

	deletedTuples   int
	fragmentedBytes int
	dirty           bool
}

// NewPage allocates a zeroed page with an empty slot directory. A fresh
// page is dirty until it reaches disk.
func NewPage() *Page {
	p := &Page{
		buf:   make([]byte, PageSize),
		dirty: true,
	}
	p.setFreeStart(HeaderSize)
	p.setFreeEnd(PageSize)
	p.storeChecksum()
	return p
}

// FromBuffer wraps a buffer read from disk, rebuilding the runtime counters
// by scanning the slot directory. The page starts clean.
func FromBuffer(buf []byte) (*Page, error) {
	if len(buf) != PageSize {
		return nil, fmt.Errorf("%w: buffer must be exactly %d bytes", ErrBadInput, PageSize)
	}
	p := &Page{buf: buf}
	p.RecomputeFragmentationStats()
	return p, nil
}

func (p *Page) Buffer() []byte { return p.buf }

// ---- header accessors ----

func (p *Page) PageID() uint16         { return bx.U16At(p.buf, offPageID) }
func (p *Page) SetPageID(id uint16)    { bx.PutU16At(p.buf, offPageID, id) }
func (p *Page) FreeStart() uint16      { return bx.U16At(p.buf, offFreeStart) }
func (p *Page) FreeEnd() uint16        { return bx.U16At(p.buf, offFreeEnd) }
func (p *Page) SlotCount() uint16      { return bx.U16At(p.buf, offSlotCount) }
func (p *Page) Type() PageType         { return PageType(p.buf[offPageType]) }
func (p *Page) SetType(t PageType)     { p.buf[offPageType] = byte(t) }
func (p *Page) Flags() uint8           { return p.buf[offFlags] }
func (p *Page) Checksum() uint32       { return bx.U32At(p.buf, offChecksum) }

func (p *Page) setFreeStart(v uint16) { bx.PutU16At(p.buf, offFreeStart, v) }
func (p *Page) setFreeEnd(v uint16)   { bx.PutU16At(p.buf, offFreeEnd, v) }
func (p *Page) setSlotCount(v uint16) { bx.PutU16At(p.buf, offSlotCount, v) }

func (p *Page) IsDirty() bool    { return p.dirty }
func (p *Page) MarkDirty()       { p.dirty = true }
func (p *Page) ClearDirty()      { p.dirty = false }

func (p *Page) DeletedTupleCount() int { return p.deletedTuples }
func (p *Page) FragmentedBytes() int   { return p.fragmentedBytes }

// ---- checksum ----

// ChecksumOf computes the page checksum over a raw buffer: the persistent
// header prefix with four zero bytes standing in for the checksum field,
// then the whole data and directory region. The runtime header bytes are
// not covered.
func ChecksumOf(buf []byte) uint32 {
	var zero [4]byte
	crc := checksum.Init()
	crc = checksum.Update(crc, buf[:offChecksum])
	crc = checksum.Update(crc, zero[:])
	crc = checksum.Update(crc, buf[HeaderSize:PageSize])
	return checksum.Finalize(crc)
}

// StoredChecksum reads the checksum field out of a raw buffer.
func StoredChecksum(buf []byte) uint32 { return bx.U32At(buf, offChecksum) }

// SetStoredChecksum writes the checksum field of a raw buffer.
func SetStoredChecksum(buf []byte, sum uint32) { bx.PutU32At(buf, offChecksum, sum) }

// VerifyBuffer recomputes a raw buffer's checksum and compares it with the
// stored field.
func VerifyBuffer(buf []byte) bool { return ChecksumOf(buf) == StoredChecksum(buf) }

func (p *Page) ComputeChecksum() uint32 { return ChecksumOf(p.buf) }

func (p *Page) storeChecksum() { SetStoredChecksum(p.buf, p.ComputeChecksum()) }

func (p *Page) VerifyChecksum() bool { return VerifyBuffer(p.buf) }

// ---- slot directory ----

// Slot N occupies bytes [PageSize-(N+1)*8, PageSize-N*8).
func slotOffset(slot uint16) int {
	return PageSize - (int(slot)+1)*SlotEntrySize
}

func (p *Page) slot(slot uint16) SlotEntry {
	o := slotOffset(slot)
	e := SlotEntry{
		Offset: bx.U16At(p.buf, o),
		Length: bx.U16At(p.buf, o+2),
		Flags:  p.buf[o+4],
	}
	copy(e.Next[:], p.buf[o+5:o+8])
	return e
}

func (p *Page) writeSlot(slot uint16, e SlotEntry) {
	o := slotOffset(slot)
	bx.PutU16At(p.buf, o, e.Offset)
	bx.PutU16At(p.buf, o+2, e.Length)
	p.buf[o+4] = e.Flags
	copy(p.buf[o+5:o+8], e.Next[:])
}

// Slot returns the decoded directory entry for a slot.
func (p *Page) Slot(slot uint16) (SlotEntry, error) {
	if slot >= p.SlotCount() {
		return SlotEntry{}, ErrBadSlot
	}
	return p.slot(slot), nil
}

func (p *Page) addSlot(offset, length uint16) (uint16, error) {
	newSlot := p.SlotCount()
	newSlotOffset := slotOffset(newSlot)
	if newSlotOffset <= int(p.FreeStart()) {
		return InvalidSlotID, ErrNoSpace
	}

	p.writeSlot(newSlot, SlotEntry{Offset: offset, Length: length, Flags: SlotValid})
	p.setSlotCount(newSlot + 1)
	p.setFreeEnd(uint16(newSlotOffset))
	return newSlot, nil
}

func (p *Page) IsSlotValid(slot uint16) bool {
	if slot >= p.SlotCount() {
		return false
	}
	return p.slot(slot).Flags&SlotValid != 0
}

func (p *Page) IsSlotForwarded(slot uint16) bool {
	if slot >= p.SlotCount() {
		return false
	}
	return p.slot(slot).Flags&SlotForwarded != 0
}

func (p *Page) IsSlotCompressed(slot uint16) bool {
	if slot >= p.SlotCount() {
		return false
	}
	return p.slot(slot).Flags&SlotCompressed != 0
}

// SetSlotCompressed flips the compressed flag on a valid slot.
func (p *Page) SetSlotCompressed(slot uint16, compressed bool) error {
	if slot >= p.SlotCount() {
		return ErrBadSlot
	}
	e := p.slot(slot)
	if e.Flags&SlotValid == 0 {
		return ErrSlotNotValid
	}
	if compressed {
		e.Flags |= SlotCompressed
	} else {
		e.Flags &^= SlotCompressed
	}
	p.writeSlot(slot, e)
	p.dirty = true
	p.storeChecksum()
	return nil
}

// ForwardingPointer decodes a slot's 24-bit redirect target.
func (p *Page) ForwardingPointer(slot uint16) TupleID {
	if slot >= p.SlotCount() {
		return TupleID{}
	}
	e := p.slot(slot)
	return TupleID{
		PageID: uint32(e.Next[0]) | uint32(e.Next[1])<<8,
		SlotID: uint16(e.Next[2]),
	}
}

// FindDeletedSlot scans the directory for an invalid slot to reuse.
func (p *Page) FindDeletedSlot() uint16 {
	for slot := uint16(0); slot < p.SlotCount(); slot++ {
		if !p.IsSlotValid(slot) {
			return slot
		}
	}
	return InvalidSlotID
}

// AvailableFreeSpace is the contiguous gap between data and directory.
func (p *Page) AvailableFreeSpace() int {
	start, end := p.FreeStart(), p.FreeEnd()
	if end < start {
		return 0
	}
	return int(end - start)
}

// ---- tuple operations ----

// InsertTuple places data on the page, reusing a deleted slot when one
// exists. Returns ErrNoSpace when the contiguous free region cannot hold
// the payload (plus a slot entry, if a new one is needed).
func (p *Page) InsertTuple(data []byte) (uint16, error) {
	if len(data) == 0 {
		return InvalidSlotID, fmt.Errorf("%w: empty tuple", ErrBadInput)
	}
	if len(data) > MaxTupleSize {
		return InvalidSlotID, fmt.Errorf("%w: tuple of %d bytes exceeds page capacity", ErrBadInput, len(data))
	}

	reuse := p.FindDeletedSlot()
	required := len(data)
	if reuse == InvalidSlotID {
		required += SlotEntrySize
	}
	if p.AvailableFreeSpace() < required {
		return InvalidSlotID, ErrNoSpace
	}

	tupleOffset := p.FreeStart()

	var slot uint16
	if reuse == InvalidSlotID {
		var err error
		slot, err = p.addSlot(tupleOffset, uint16(len(data)))
		if err != nil {
			return InvalidSlotID, err
		}
	} else {
		slot = reuse
		old := p.slot(slot)
		p.writeSlot(slot, SlotEntry{
			Offset: tupleOffset,
			Length: uint16(len(data)),
			Flags:  SlotValid,
		})
		p.deletedTuples--
		p.fragmentedBytes -= int(old.Length)
	}

	copy(p.buf[tupleOffset:], data)
	p.setFreeStart(tupleOffset + uint16(len(data)))

	p.dirty = true
	p.storeChecksum()
	return slot, nil
}

// TupleData returns the payload bytes of a valid slot. The slice aliases
// the page buffer.
func (p *Page) TupleData(slot uint16) ([]byte, error) {
	if slot >= p.SlotCount() {
		return nil, ErrBadSlot
	}
	e := p.slot(slot)
	if e.Flags&SlotValid == 0 {
		return nil, ErrSlotNotValid
	}
	return p.buf[e.Offset : int(e.Offset)+int(e.Length)], nil
}

// DeleteTuple invalidates a slot, leaving its bytes behind as fragmentation.
func (p *Page) DeleteTuple(slot uint16) error {
	if slot >= p.SlotCount() {
		return ErrBadSlot
	}
	e := p.slot(slot)
	if e.Flags&SlotValid == 0 {
		return ErrAlreadyDeleted
	}

	e.Flags &^= SlotValid
	p.writeSlot(slot, e)
	p.deletedTuples++
	p.fragmentedBytes += int(e.Length)

	p.dirty = true
	p.storeChecksum()
	return nil
}

// UpdateTupleInPlace overwrites a tuple whose new form fits in its current
// slot. Growth is the caller's problem (forwarding).
func (p *Page) UpdateTupleInPlace(slot uint16, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty tuple", ErrBadInput)
	}
	if slot >= p.SlotCount() {
		return ErrBadSlot
	}
	e := p.slot(slot)
	if e.Flags&SlotValid == 0 {
		return ErrSlotNotValid
	}
	if e.Flags&SlotForwarded != 0 {
		return ErrSlotForwarded
	}
	if len(data) > int(e.Length) {
		return ErrTupleTooLarge
	}

	copy(p.buf[e.Offset:], data)
	e.Length = uint16(len(data))
	p.writeSlot(slot, e)

	p.dirty = true
	p.storeChecksum()
	return nil
}

// MarkSlotForwarded turns a valid slot into a redirect to (targetPage,
// targetSlot). The old payload length is surrendered to fragmentation so
// compaction can reclaim the bytes.
func (p *Page) MarkSlotForwarded(slot uint16, targetPage uint32, targetSlot uint16) error {
	if targetPage > 0xFFFF || targetSlot > 0xFF {
		return fmt.Errorf("%w: forwarding target (%d, %d) does not fit a 24-bit pointer",
			ErrBadInput, targetPage, targetSlot)
	}
	if slot >= p.SlotCount() {
		return ErrBadSlot
	}
	e := p.slot(slot)
	if e.Flags&SlotValid == 0 {
		return ErrSlotNotValid
	}

	oldLength := e.Length
	e.Length = 0
	e.Flags |= SlotForwarded
	e.Next[0] = byte(targetPage)
	e.Next[1] = byte(targetPage >> 8)
	e.Next[2] = byte(targetSlot)
	p.writeSlot(slot, e)
	p.fragmentedBytes += int(oldLength)

	p.dirty = true
	p.storeChecksum()
	return nil
}

// FollowForwardingChain walks redirects starting at slot. It stops when the
// chain leaves this page (the caller resolves further), when it reaches a
// slot that is not forwarded, or with the zero TupleID on a cycle, an
// invalid slot, or more than maxHops hops.
func (p *Page) FollowForwardingChain(slot uint16, maxHops int) TupleID {
	if p.SlotCount() == 0 || slot >= p.SlotCount() {
		return TupleID{}
	}

	type visit struct {
		pageID uint32
		slotID uint16
	}
	visited := make([]visit, 0, maxHops)

	currentPage := uint32(p.PageID())
	currentSlot := slot

	for hop := 0; hop <= maxHops; hop++ {
		cur := visit{currentPage, currentSlot}
		for _, v := range visited {
			if v == cur {
				return TupleID{} // circular chain
			}
		}
		visited = append(visited, cur)

		if currentPage != uint32(p.PageID()) {
			return TupleID{PageID: currentPage, SlotID: currentSlot}
		}

		if currentSlot >= p.SlotCount() {
			return TupleID{}
		}
		e := p.slot(currentSlot)
		if e.Flags&SlotValid == 0 {
			return TupleID{}
		}
		if e.Flags&SlotForwarded == 0 {
			return TupleID{PageID: currentPage, SlotID: currentSlot}
		}
		if hop >= maxHops {
			return TupleID{}
		}

		next := p.ForwardingPointer(currentSlot)
		currentPage = next.PageID
		currentSlot = next.SlotID
	}

	return TupleID{}
}

// ---- fragmentation & compaction ----

// RecomputeFragmentationStats rebuilds the runtime counters from the slot
// directory, as done after loading a page from disk.
func (p *Page) RecomputeFragmentationStats() {
	p.deletedTuples = 0
	p.fragmentedBytes = 0
	for slot := uint16(0); slot < p.SlotCount(); slot++ {
		if e := p.slot(slot); e.Flags&SlotValid == 0 {
			p.deletedTuples++
			p.fragmentedBytes += int(e.Length)
		}
	}
}

// ShouldCompact reports whether compaction is worth doing: heavy byte
// fragmentation, many dead slots, or a near-full page that compaction
// would open up.
func (p *Page) ShouldCompact() bool {
	if p.deletedTuples == 0 {
		return false
	}

	if used := int(p.FreeStart()) - HeaderSize; used > 0 && p.fragmentedBytes*100/used >= 50 {
		return true
	}

	if p.deletedTuples*2 >= int(p.SlotCount()) {
		return true
	}

	available := p.AvailableFreeSpace()
	if available < 100 && available+p.fragmentedBytes >= 100 {
		return true
	}

	return false
}

// CompactPage rewrites live tuple data densely after the header and zeroes
// dead slot entries. Slot ids are never renumbered: forwarding pointers
// from other pages stay valid.
func (p *Page) CompactPage() {
	if p.deletedTuples == 0 {
		return
	}

	slotCount := p.SlotCount()

	if p.deletedTuples == int(slotCount) {
		// Everything is dead: reset to an empty page.
		clear(p.buf[HeaderSize:])
		p.setFreeStart(HeaderSize)
		p.setFreeEnd(PageSize)
		p.setSlotCount(0)
		p.deletedTuples = 0
		p.fragmentedBytes = 0
		p.dirty = true
		p.storeChecksum()
		return
	}

	type tupleInfo struct {
		slot  uint16
		entry SlotEntry
	}
	live := make([]tupleInfo, 0, int(slotCount)-p.deletedTuples)
	for slot := uint16(0); slot < slotCount; slot++ {
		if e := p.slot(slot); e.Flags&SlotValid != 0 {
			live = append(live, tupleInfo{slot: slot, entry: e})
		}
	}

	scratch := make([]byte, int(p.FreeStart())-HeaderSize)
	newOffset := 0
	for i := range live {
		e := &live[i].entry
		copy(scratch[newOffset:], p.buf[e.Offset:int(e.Offset)+int(e.Length)])
		e.Offset = uint16(HeaderSize + newOffset)
		newOffset += int(e.Length)
	}

	copy(p.buf[HeaderSize:], scratch[:newOffset])

	for _, info := range live {
		p.writeSlot(info.slot, info.entry)
	}
	for slot := uint16(0); slot < slotCount; slot++ {
		if e := p.slot(slot); e.Flags&SlotValid == 0 {
			p.writeSlot(slot, SlotEntry{})
		}
	}

	p.setFreeStart(uint16(HeaderSize + newOffset))
	// Dead slots stay in the directory (zeroed), so they still count as
	// deleted; their bytes are gone, so fragmentation drops to zero.
	p.deletedTuples = int(slotCount) - len(live)
	p.fragmentedBytes = 0

	p.dirty = true
	p.storeChecksum()
}

func (p *Page) String() string {
	return fmt.Sprintf("page %d: slots=%d free=[%d,%d) deleted=%d fragmented=%d dirty=%t",
		p.PageID(), p.SlotCount(), p.FreeStart(), p.FreeEnd(), p.deletedTuples, p.fragmentedBytes, p.dirty)
}
