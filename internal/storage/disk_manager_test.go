package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhiw/storagePrototype/internal/page"
)

func newTestDiskManager(t *testing.T) (*DiskManager, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	d, err := NewDiskManager(path, "users", 1)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, path
}

func TestDiskManager_CreateNewFile(t *testing.T) {
	d, _ := newTestDiskManager(t)

	h := d.Header()
	assert.Equal(t, uint32(fileVersion), h.Version)
	assert.Equal(t, uint32(1), h.NextPageID)
	assert.Equal(t, uint32(page.PageSize), h.PageSize)
	assert.Equal(t, uint32(0), h.PageCount)
	assert.Equal(t, "users", h.TableName)
	assert.True(t, d.IsOpen())
}

func TestDiskManager_ReopenExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	d, err := NewDiskManager(path, "users", 1)
	require.NoError(t, err)

	id1, err := d.AllocatePage()
	require.NoError(t, err)
	id2, err := d.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id1)
	assert.Equal(t, uint32(2), id2)
	require.NoError(t, d.Close())

	// Reopening resumes the id sequence where it left off.
	d2, err := NewDiskManager(path, "users", 1)
	require.NoError(t, err)
	defer d2.Close()

	id3, err := d2.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), id3)
	assert.Equal(t, "users", d2.Header().TableName)
}

func TestDiskManager_RejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.db")
	require.NoError(t, writeFile(path, make([]byte, FileHeaderSize)))

	_, err := NewDiskManager(path, "users", 1)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestDiskManager_WriteReadRoundTrip(t *testing.T) {
	d, _ := newTestDiskManager(t)

	id, err := d.AllocatePage()
	require.NoError(t, err)

	p := page.NewPage()
	p.SetPageID(uint16(id))
	_, err = p.InsertTuple([]byte("durable bytes"))
	require.NoError(t, err)

	require.NoError(t, d.WritePage(id, p.Buffer()))

	buf := make([]byte, page.PageSize)
	require.NoError(t, d.ReadPage(id, buf))

	// The persisted image is bit-identical and self-consistent.
	assert.Equal(t, p.Buffer(), buf)
	assert.True(t, page.VerifyBuffer(buf))

	loaded, err := page.FromBuffer(buf)
	require.NoError(t, err)
	data, err := loaded.TupleData(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable bytes"), data)
}

func TestDiskManager_ChecksumMismatch(t *testing.T) {
	d, path := newTestDiskManager(t)

	id, err := d.AllocatePage()
	require.NoError(t, err)
	p := page.NewPage()
	p.SetPageID(uint16(id))
	require.NoError(t, d.WritePage(id, p.Buffer()))

	// Flip one byte of the stored page behind the manager's back.
	corruptFileAt(t, path, FileHeaderSize+int64(id)*page.PageSize+page.HeaderSize+10)

	buf := make([]byte, page.PageSize)
	err = d.ReadPage(id, buf)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDiskManager_BadBufferSize(t *testing.T) {
	d, _ := newTestDiskManager(t)

	assert.ErrorIs(t, d.ReadPage(1, make([]byte, 16)), ErrBadInput)
	assert.ErrorIs(t, d.WritePage(1, make([]byte, 16)), ErrBadInput)
}

func TestDiskManager_ClosedOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.db")
	d, err := NewDiskManager(path, "users", 1)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	buf := make([]byte, page.PageSize)
	assert.ErrorIs(t, d.ReadPage(1, buf), ErrClosed)
	assert.ErrorIs(t, d.WritePage(1, buf), ErrClosed)
	_, err = d.AllocatePage()
	assert.ErrorIs(t, err, ErrClosed)
}
