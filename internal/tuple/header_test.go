package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSize(t *testing.T) {
	// 8 bytes of bitmap plus 2 per var offset, rounded up to 8.
	assert.Equal(t, 8, HeaderSize(0))
	assert.Equal(t, 16, HeaderSize(1))
	assert.Equal(t, 16, HeaderSize(3))
	assert.Equal(t, 16, HeaderSize(4))
	assert.Equal(t, 24, HeaderSize(5))
}

func TestHeader_NullBits(t *testing.T) {
	h := NewHeader(0)

	h.SetFieldNull(3, true)
	h.SetFieldNull(63, true)

	assert.True(t, h.IsFieldNull(3))
	assert.True(t, h.IsFieldNull(63))
	assert.False(t, h.IsFieldNull(0))

	h.SetFieldNull(3, false)
	assert.False(t, h.IsFieldNull(3))
	assert.True(t, h.IsFieldNull(63))
}

func TestHeader_SerializeRoundTrip(t *testing.T) {
	h := NewHeader(3)
	h.SetFieldNull(1, true)
	h.SetVarOffset(0, 40)
	h.SetVarOffset(1, NullVarOffset)
	h.SetVarOffset(2, 72)

	buf := make([]byte, h.Size())
	h.SerializeTo(buf)

	got := DeserializeHeader(buf, 3)
	require.Equal(t, h.NullBitmap, got.NullBitmap)
	assert.Equal(t, uint16(40), got.VarOffset(0))
	assert.Equal(t, uint16(NullVarOffset), got.VarOffset(1))
	assert.Equal(t, uint16(72), got.VarOffset(2))
}
