package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/abhiw/storagePrototype/internal/alias/bx"
	"github.com/abhiw/storagePrototype/internal/logx"
	"github.com/abhiw/storagePrototype/internal/page"
)

const (
	// FileHeaderSize is the fixed size of the database file header; page N
	// lives at offset FileHeaderSize + N*PageSize.
	FileHeaderSize = 512

	fileMagic   = "STOR"
	fileVersion = 1
)

// File header field offsets within the 512-byte block.
const (
	fhMagic        = 0  // u32 "STOR"
	fhVersion      = 4  // u32
	fhNextPageID   = 8  // u32
	fhTableID      = 12 // u32
	fhPageSize     = 16 // u32
	fhPageCount    = 20 // u32
	fhTableName    = 24 // 64 bytes, zero padded
	fhSchemaLength = 88 // u32, reserved
	fhSchemaOffset = 92 // u32, reserved
)

const tableNameSize = 64

// FileHeader mirrors the persistent header of a database file.
type FileHeader struct {
	Version    uint32
	NextPageID uint32
	TableID    uint32
	PageSize   uint32
	PageCount  uint32
	TableName  string
}

// DiskManager owns the database file and moves whole pages between memory
// and disk. Page reads and writes use ReadAt/WriteAt, which are
// position-independent and safe to issue concurrently on one descriptor;
// the mutex guards only the header metadata (allocation, open/close).
type DiskManager struct {
	path string
	file *os.File

	mu         sync.Mutex
	header     FileHeader
	nextPageID uint32
	open       bool

	log *logrus.Logger
}

// NewDiskManager opens or creates the database file at path. A new file
// gets a fresh header with the given table identity; an existing file must
// carry the expected magic.
func NewDiskManager(path, tableName string, tableID uint32) (*DiskManager, error) {
	d := &DiskManager{path: path, log: logx.L()}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open database file %s: %w", path, err)
	}
	d.file = f

	if !exists {
		d.header = FileHeader{
			Version:    fileVersion,
			NextPageID: 1, // page id 0 is the invalid id
			TableID:    tableID,
			PageSize:   page.PageSize,
			TableName:  tableName,
		}
		d.nextPageID = 1
		if err := d.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("sync new database file: %w", err)
		}
		d.log.WithField("path", path).Debug("created database file")
	} else {
		if err := d.readHeader(); err != nil {
			f.Close()
			return nil, err
		}
		d.nextPageID = d.header.NextPageID
		d.log.WithFields(logrus.Fields{
			"path":         path,
			"next_page_id": d.nextPageID,
			"page_count":   d.header.PageCount,
		}).Debug("opened database file")
	}

	d.open = true
	return d, nil
}

func (d *DiskManager) writeHeader() error {
	buf := make([]byte, FileHeaderSize)
	copy(buf[fhMagic:], fileMagic)
	bx.PutU32At(buf, fhVersion, d.header.Version)
	bx.PutU32At(buf, fhNextPageID, d.nextPageID)
	bx.PutU32At(buf, fhTableID, d.header.TableID)
	bx.PutU32At(buf, fhPageSize, d.header.PageSize)
	bx.PutU32At(buf, fhPageCount, d.header.PageCount)
	name := d.header.TableName
	if len(name) > tableNameSize-1 {
		name = name[:tableNameSize-1]
	}
	copy(buf[fhTableName:fhTableName+tableNameSize], name)
	bx.PutU32At(buf, fhSchemaLength, 0)
	bx.PutU32At(buf, fhSchemaOffset, 0)

	if _, err := d.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write file header: %w", err)
	}
	return nil
}

func (d *DiskManager) readHeader() error {
	buf := make([]byte, FileHeaderSize)
	if _, err := d.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("read file header: %w", err)
	}
	if string(buf[fhMagic:fhMagic+4]) != fileMagic {
		return fmt.Errorf("%w: bad magic in %s", ErrInvalidFormat, d.path)
	}

	d.header.Version = bx.U32At(buf, fhVersion)
	d.header.NextPageID = bx.U32At(buf, fhNextPageID)
	d.header.TableID = bx.U32At(buf, fhTableID)
	d.header.PageSize = bx.U32At(buf, fhPageSize)
	d.header.PageCount = bx.U32At(buf, fhPageCount)

	name := buf[fhTableName : fhTableName+tableNameSize]
	end := 0
	for end < len(name) && name[end] != 0 {
		end++
	}
	d.header.TableName = string(name[:end])

	if d.header.PageSize != page.PageSize {
		return fmt.Errorf("%w: page size %d, want %d", ErrInvalidFormat, d.header.PageSize, page.PageSize)
	}
	return nil
}

func pageOffset(id uint32) int64 {
	return FileHeaderSize + int64(id)*page.PageSize
}

// ReadPage fills buf with page id's on-disk image. The runtime header
// region is zeroed and the checksum is verified before the bytes are
// handed back.
func (d *DiskManager) ReadPage(id uint32, buf []byte) error {
	if !d.open {
		return ErrClosed
	}
	if len(buf) != page.PageSize {
		return fmt.Errorf("%w: page buffer must be %d bytes", ErrBadInput, page.PageSize)
	}

	if _, err := d.file.ReadAt(buf, pageOffset(id)); err != nil {
		return fmt.Errorf("read page %d: %w", id, err)
	}

	// Runtime metadata never survives a round trip.
	clear(buf[16:page.HeaderSize])

	if !page.VerifyBuffer(buf) {
		d.log.WithFields(logrus.Fields{
			"page_id":  id,
			"stored":   fmt.Sprintf("%08x", page.StoredChecksum(buf)),
			"computed": fmt.Sprintf("%08x", page.ChecksumOf(buf)),
		}).Error("page checksum verification failed")
		return fmt.Errorf("%w: page %d", ErrChecksumMismatch, id)
	}

	return nil
}

// WritePage persists buf as page id: runtime header bytes are cleared, the
// checksum is refreshed, and the write is synced.
func (d *DiskManager) WritePage(id uint32, buf []byte) error {
	if !d.open {
		return ErrClosed
	}
	if len(buf) != page.PageSize {
		return fmt.Errorf("%w: page buffer must be %d bytes", ErrBadInput, page.PageSize)
	}

	clear(buf[16:page.HeaderSize])
	page.SetStoredChecksum(buf, page.ChecksumOf(buf))

	if _, err := d.file.WriteAt(buf, pageOffset(id)); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("sync page %d: %w", id, err)
	}

	d.log.WithField("page_id", id).Debug("wrote page")
	return nil
}

// AllocatePage hands out the next page id and grows the page count.
func (d *DiskManager) AllocatePage() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return page.InvalidPageID, ErrClosed
	}

	id := d.nextPageID
	d.nextPageID++
	d.header.PageCount++

	d.log.WithField("page_id", id).Debug("allocated page")
	return id, nil
}

// DeallocatePage records the intent to free a page. Page ids are never
// reused, so this is a no-op beyond the log line.
func (d *DiskManager) DeallocatePage(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.WithField("page_id", id).Debug("deallocate page (no-op)")
}

// Header returns a snapshot of the file header.
func (d *DiskManager) Header() FileHeader {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.header
	h.NextPageID = d.nextPageID
	return h
}

// NextPageID peeks at the next id AllocatePage would hand out.
func (d *DiskManager) NextPageID() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextPageID
}

func (d *DiskManager) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Close persists the header (with the current next page id) and releases
// the file.
func (d *DiskManager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil
	}
	d.open = false

	if err := d.writeHeader(); err != nil {
		d.file.Close()
		return err
	}
	if err := d.file.Sync(); err != nil {
		d.file.Close()
		return err
	}
	return d.file.Close()
}
