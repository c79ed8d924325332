package tuple

import (
	"github.com/abhiw/storagePrototype/internal/alias/bx"
)

// NullVarOffset marks a null variable-length field in the offset table.
const NullVarOffset = 0xFFFF

// Header is the in-row prefix of every serialized tuple: a 64-bit null
// bitmap (bit i == field i) followed by one u16 absolute offset per
// variable-length field, padded to an 8-byte boundary.
type Header struct {
	NullBitmap uint64
	VarOffsets []uint16
}

func NewHeader(varFieldCount int) Header {
	h := Header{}
	if varFieldCount > 0 {
		h.VarOffsets = make([]uint16, varFieldCount)
	}
	return h
}

func (h *Header) SetFieldNull(fieldIndex int, isNull bool) {
	if isNull {
		h.NullBitmap |= 1 << uint(fieldIndex)
	} else {
		h.NullBitmap &^= 1 << uint(fieldIndex)
	}
}

func (h *Header) IsFieldNull(fieldIndex int) bool {
	return h.NullBitmap&(1<<uint(fieldIndex)) != 0
}

func (h *Header) SetVarOffset(varFieldIndex int, offset uint16) {
	h.VarOffsets[varFieldIndex] = offset
}

func (h *Header) VarOffset(varFieldIndex int) uint16 {
	return h.VarOffsets[varFieldIndex]
}

// HeaderSize returns the serialized header size for a tuple with the given
// number of variable-length fields: 8 bytes of bitmap plus 2 bytes per
// offset, rounded up to a multiple of 8.
func HeaderSize(varFieldCount int) int {
	size := 8 + 2*varFieldCount
	return (size + 7) / 8 * 8
}

func (h Header) Size() int {
	return HeaderSize(len(h.VarOffsets))
}

// SerializeTo writes the header at the start of buf. The caller guarantees
// len(buf) >= h.Size().
func (h Header) SerializeTo(buf []byte) {
	bx.PutU64(buf, h.NullBitmap)
	for i, off := range h.VarOffsets {
		bx.PutU16At(buf, 8+2*i, off)
	}
}

// DeserializeHeader reads a header written by SerializeTo.
func DeserializeHeader(buf []byte, varFieldCount int) Header {
	h := NewHeader(varFieldCount)
	h.NullBitmap = bx.U64(buf)
	for i := 0; i < varFieldCount; i++ {
		h.VarOffsets[i] = bx.U16At(buf, 8+2*i)
	}
	return h
}
