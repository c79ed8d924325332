package tuple

import (
	"fmt"
	"math"
	"strings"

	"github.com/abhiw/storagePrototype/internal/alias/bx"
	"github.com/abhiw/storagePrototype/internal/schema"
)

// Serialize encodes values into buf using the mode the schema calls for and
// returns the number of bytes written.
func Serialize(s *schema.Schema, values []FieldValue, buf []byte) (int, error) {
	if s.IsFixedLength() {
		return SerializeFixed(s, values, buf)
	}
	return SerializeVariable(s, values, buf)
}

// Deserialize decodes a tuple written by Serialize.
func Deserialize(s *schema.Schema, buf []byte) ([]FieldValue, error) {
	if s.IsFixedLength() {
		return DeserializeFixed(s, buf)
	}
	return DeserializeVariable(s, buf)
}

// SerializeFixed encodes a row for a schema whose columns are all
// fixed-length. Layout: tuple header, then each column at its aligned
// offset. Returns the total encoded size.
func SerializeFixed(s *schema.Schema, values []FieldValue, buf []byte) (int, error) {
	if !s.IsFinalized() {
		return 0, fmt.Errorf("%w: schema not finalized", ErrSerialization)
	}
	if !s.IsFixedLength() {
		return 0, fmt.Errorf("%w: schema has variable-length columns, use SerializeVariable", ErrSerialization)
	}
	if len(values) != s.ColumnCount() {
		return 0, fmt.Errorf("%w: value count %d does not match column count %d",
			ErrSerialization, len(values), s.ColumnCount())
	}

	header := NewHeader(0)
	headerSize := header.Size()
	if len(buf) < headerSize {
		return 0, fmt.Errorf("%w: buffer too small for tuple header", ErrSerialization)
	}

	clear(buf)

	cursor := headerSize
	for i := 0; i < s.ColumnCount(); i++ {
		col := s.Column(i)
		cursor = schema.AlignOffset(cursor, col.Type)

		if cursor+col.FixedSize > len(buf) {
			return 0, fmt.Errorf("%w: buffer too small for field %q", ErrSerialization, col.Name)
		}

		if values[i].IsNull() {
			header.SetFieldNull(i, true)
		} else if err := writeFixedField(buf[cursor:], col, values[i]); err != nil {
			return 0, err
		}

		cursor += col.FixedSize
	}

	header.SerializeTo(buf)
	return cursor, nil
}

// DeserializeFixed is the inverse of SerializeFixed.
func DeserializeFixed(s *schema.Schema, buf []byte) ([]FieldValue, error) {
	if !s.IsFinalized() {
		return nil, fmt.Errorf("%w: schema not finalized", ErrSerialization)
	}
	if !s.IsFixedLength() {
		return nil, fmt.Errorf("%w: schema has variable-length columns, use DeserializeVariable", ErrSerialization)
	}

	header := NewHeader(0)
	if len(buf) < header.Size() {
		return nil, fmt.Errorf("%w: buffer too small for tuple header", ErrSerialization)
	}
	header = DeserializeHeader(buf, 0)

	result := make([]FieldValue, 0, s.ColumnCount())
	cursor := HeaderSize(0)

	for i := 0; i < s.ColumnCount(); i++ {
		col := s.Column(i)
		cursor = schema.AlignOffset(cursor, col.Type)

		if cursor+col.FixedSize > len(buf) {
			return nil, fmt.Errorf("%w: buffer too small for field %q", ErrSerialization, col.Name)
		}

		if header.IsFieldNull(i) {
			result = append(result, Null(col.Type))
		} else {
			result = append(result, readFixedField(buf[cursor:], col))
		}

		cursor += col.FixedSize
	}

	return result, nil
}

// SerializeVariable encodes a row for a schema with variable-length
// columns. The fixed columns are written first at aligned offsets, then the
// cursor rounds up to 8 and each variable field follows as a u16 length
// plus payload, with its absolute offset recorded in the header.
func SerializeVariable(s *schema.Schema, values []FieldValue, buf []byte) (int, error) {
	if !s.IsFinalized() {
		return 0, fmt.Errorf("%w: schema not finalized", ErrSerialization)
	}
	if len(values) != s.ColumnCount() {
		return 0, fmt.Errorf("%w: value count %d does not match column count %d",
			ErrSerialization, len(values), s.ColumnCount())
	}

	header := NewHeader(s.VarFieldCount())
	headerSize := header.Size()
	if len(buf) < headerSize {
		return 0, fmt.Errorf("%w: buffer too small for tuple header", ErrSerialization)
	}

	clear(buf)

	// First pass: fixed-length columns only.
	cursor := headerSize
	for i := 0; i < s.ColumnCount(); i++ {
		col := s.Column(i)
		if !col.IsFixedLength() {
			continue
		}
		cursor = schema.AlignOffset(cursor, col.Type)

		if cursor+col.FixedSize > len(buf) {
			return 0, fmt.Errorf("%w: buffer too small for field %q", ErrSerialization, col.Name)
		}

		if values[i].IsNull() {
			header.SetFieldNull(i, true)
		} else if err := writeFixedField(buf[cursor:], col, values[i]); err != nil {
			return 0, err
		}

		cursor += col.FixedSize
	}

	// Variable-length area starts on an 8-byte boundary.
	cursor = (cursor + 7) / 8 * 8

	// Second pass: variable-length columns in schema order.
	varIdx := 0
	for i := 0; i < s.ColumnCount(); i++ {
		col := s.Column(i)
		if col.IsFixedLength() {
			continue
		}

		if values[i].IsNull() {
			header.SetFieldNull(i, true)
			header.SetVarOffset(varIdx, NullVarOffset)
			varIdx++
			continue
		}

		data, err := varFieldBytes(col, values[i])
		if err != nil {
			return 0, err
		}
		if len(data) > math.MaxUint16 {
			return 0, fmt.Errorf("%w: field %q exceeds u16 length", ErrSerialization, col.Name)
		}
		if cursor+2+len(data) > len(buf) {
			return 0, fmt.Errorf("%w: buffer too small for variable-length field %q", ErrSerialization, col.Name)
		}

		header.SetVarOffset(varIdx, uint16(cursor))
		bx.PutU16At(buf, cursor, uint16(len(data)))
		cursor += 2
		copy(buf[cursor:], data)
		cursor += len(data)
		varIdx++
	}

	header.SerializeTo(buf)
	return cursor, nil
}

// DeserializeVariable is the inverse of SerializeVariable.
func DeserializeVariable(s *schema.Schema, buf []byte) ([]FieldValue, error) {
	if !s.IsFinalized() {
		return nil, fmt.Errorf("%w: schema not finalized", ErrSerialization)
	}

	varFieldCount := s.VarFieldCount()
	if len(buf) < HeaderSize(varFieldCount) {
		return nil, fmt.Errorf("%w: buffer too small for tuple header", ErrSerialization)
	}
	header := DeserializeHeader(buf, varFieldCount)

	result := make([]FieldValue, 0, s.ColumnCount())
	cursor := header.Size()
	varIdx := 0

	for i := 0; i < s.ColumnCount(); i++ {
		col := s.Column(i)

		if col.IsFixedLength() {
			cursor = schema.AlignOffset(cursor, col.Type)
			if cursor+col.FixedSize > len(buf) {
				return nil, fmt.Errorf("%w: buffer too small for field %q", ErrSerialization, col.Name)
			}
			if header.IsFieldNull(i) {
				result = append(result, Null(col.Type))
			} else {
				result = append(result, readFixedField(buf[cursor:], col))
			}
			cursor += col.FixedSize
			continue
		}

		if header.IsFieldNull(i) || header.VarOffset(varIdx) == NullVarOffset {
			result = append(result, Null(col.Type))
			varIdx++
			continue
		}

		off := int(header.VarOffset(varIdx))
		if off+2 > len(buf) {
			return nil, fmt.Errorf("%w: variable offset out of range for field %q", ErrSerialization, col.Name)
		}
		length := int(bx.U16At(buf, off))
		if off+2+length > len(buf) {
			return nil, fmt.Errorf("%w: variable length out of range for field %q", ErrSerialization, col.Name)
		}
		data := buf[off+2 : off+2+length]

		switch col.Type {
		case schema.Char:
			result = append(result, NewChar(string(data)))
		case schema.VarChar:
			result = append(result, NewVarChar(string(data)))
		case schema.Text:
			result = append(result, NewText(string(data)))
		case schema.Blob:
			cp := make([]byte, length)
			copy(cp, data)
			result = append(result, NewBlob(cp))
		default:
			return nil, fmt.Errorf("%w: unexpected variable-length type %v", ErrSerialization, col.Type)
		}
		varIdx++
	}

	return result, nil
}

// CalculateSize returns the exact number of bytes Serialize will produce
// for the given row, including header and alignment padding.
func CalculateSize(s *schema.Schema, values []FieldValue) (int, error) {
	if !s.IsFinalized() {
		return 0, fmt.Errorf("%w: schema not finalized", ErrSerialization)
	}
	if len(values) != s.ColumnCount() {
		return 0, fmt.Errorf("%w: value count %d does not match column count %d",
			ErrSerialization, len(values), s.ColumnCount())
	}

	varFieldCount := s.VarFieldCount()
	size := HeaderSize(varFieldCount)

	for i := 0; i < s.ColumnCount(); i++ {
		col := s.Column(i)
		if col.IsFixedLength() {
			size = schema.AlignOffset(size, col.Type)
			size += col.FixedSize
		}
	}

	if varFieldCount > 0 {
		size = (size + 7) / 8 * 8
		for i := 0; i < s.ColumnCount(); i++ {
			col := s.Column(i)
			if !col.IsFixedLength() && !values[i].IsNull() {
				size += values[i].SerializedSize()
			}
		}
	}

	return size, nil
}

func writeFixedField(dst []byte, col schema.ColumnDefinition, v FieldValue) error {
	if v.Type() != col.Type {
		return fmt.Errorf("%w: field %q holds %v, column is %v",
			ErrSerialization, col.Name, v.Type(), col.Type)
	}

	switch col.Type {
	case schema.Boolean:
		b, _ := v.Boolean()
		if b {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case schema.TinyInt:
		n, _ := v.TinyInt()
		dst[0] = byte(n)
	case schema.SmallInt:
		n, _ := v.SmallInt()
		bx.PutU16(dst, uint16(n))
	case schema.Integer:
		n, _ := v.Integer()
		bx.PutU32(dst, uint32(n))
	case schema.BigInt:
		n, _ := v.BigInt()
		bx.PutU64(dst, uint64(n))
	case schema.Float:
		f, _ := v.Float()
		bx.PutU32(dst, math.Float32bits(f))
	case schema.Double:
		f, _ := v.Double()
		bx.PutU64(dst, math.Float64bits(f))
	case schema.Char:
		str, _ := v.String()
		if len(str) > col.FixedSize {
			return fmt.Errorf("%w: CHAR value exceeds fixed size %d", ErrSerialization, col.FixedSize)
		}
		// Shorter values leave the tail zero-padded.
		copy(dst[:col.FixedSize], str)
	default:
		return fmt.Errorf("%w: unexpected variable-length type %v in fixed position",
			ErrSerialization, col.Type)
	}
	return nil
}

func readFixedField(src []byte, col schema.ColumnDefinition) FieldValue {
	switch col.Type {
	case schema.Boolean:
		return NewBoolean(src[0] != 0)
	case schema.TinyInt:
		return NewTinyInt(int8(src[0]))
	case schema.SmallInt:
		return NewSmallInt(int16(bx.U16(src)))
	case schema.Integer:
		return NewInteger(int32(bx.U32(src)))
	case schema.BigInt:
		return NewBigInt(int64(bx.U64(src)))
	case schema.Float:
		return NewFloat(math.Float32frombits(bx.U32(src)))
	case schema.Double:
		return NewDouble(math.Float64frombits(bx.U64(src)))
	case schema.Char:
		// Fixed CHAR trims at the first zero byte.
		str := string(src[:col.FixedSize])
		if i := strings.IndexByte(str, 0); i >= 0 {
			str = str[:i]
		}
		return NewChar(str)
	}
	return Null(col.Type)
}

func varFieldBytes(col schema.ColumnDefinition, v FieldValue) ([]byte, error) {
	if v.Type() != col.Type {
		return nil, fmt.Errorf("%w: field %q holds %v, column is %v",
			ErrSerialization, col.Name, v.Type(), col.Type)
	}
	switch col.Type {
	case schema.Char, schema.VarChar, schema.Text:
		str, _ := v.String()
		return []byte(str), nil
	case schema.Blob:
		b, _ := v.Blob()
		return b, nil
	}
	return nil, fmt.Errorf("%w: unexpected type %v in variable position", ErrSerialization, col.Type)
}
