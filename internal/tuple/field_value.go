// Package tuple implements the row byte format: a tagged field value, the
// in-row header (null bitmap + variable-length offsets) and the serializer
// that lays fields out with per-type alignment.
package tuple

import (
	"errors"

	"github.com/abhiw/storagePrototype/internal/schema"
)

var (
	ErrTypeMismatch  = errors.New("tuple: type mismatch")
	ErrNullAccess    = errors.New("tuple: cannot read null value")
	ErrSerialization = errors.New("tuple: serialization error")
)

// FieldValue carries one typed value or an explicit, typed null.
// The zero FieldValue is a non-null BOOLEAN holding false.
type FieldValue struct {
	typ    schema.DataType
	isNull bool

	boolVal  bool
	intVal   int64
	floatVal float64
	strVal   string
	blobVal  []byte
}

func Null(t schema.DataType) FieldValue { return FieldValue{typ: t, isNull: true} }

func NewBoolean(v bool) FieldValue    { return FieldValue{typ: schema.Boolean, boolVal: v} }
func NewTinyInt(v int8) FieldValue    { return FieldValue{typ: schema.TinyInt, intVal: int64(v)} }
func NewSmallInt(v int16) FieldValue  { return FieldValue{typ: schema.SmallInt, intVal: int64(v)} }
func NewInteger(v int32) FieldValue   { return FieldValue{typ: schema.Integer, intVal: int64(v)} }
func NewBigInt(v int64) FieldValue    { return FieldValue{typ: schema.BigInt, intVal: v} }
func NewFloat(v float32) FieldValue   { return FieldValue{typ: schema.Float, floatVal: float64(v)} }
func NewDouble(v float64) FieldValue  { return FieldValue{typ: schema.Double, floatVal: v} }
func NewChar(v string) FieldValue     { return FieldValue{typ: schema.Char, strVal: v} }
func NewVarChar(v string) FieldValue  { return FieldValue{typ: schema.VarChar, strVal: v} }
func NewText(v string) FieldValue     { return FieldValue{typ: schema.Text, strVal: v} }
func NewBlob(v []byte) FieldValue     { return FieldValue{typ: schema.Blob, blobVal: v} }

func (f FieldValue) Type() schema.DataType { return f.typ }
func (f FieldValue) IsNull() bool          { return f.isNull }

func (f FieldValue) check(want schema.DataType) error {
	if f.isNull {
		return ErrNullAccess
	}
	if f.typ != want {
		return ErrTypeMismatch
	}
	return nil
}

func (f FieldValue) Boolean() (bool, error) {
	if err := f.check(schema.Boolean); err != nil {
		return false, err
	}
	return f.boolVal, nil
}

func (f FieldValue) TinyInt() (int8, error) {
	if err := f.check(schema.TinyInt); err != nil {
		return 0, err
	}
	return int8(f.intVal), nil
}

func (f FieldValue) SmallInt() (int16, error) {
	if err := f.check(schema.SmallInt); err != nil {
		return 0, err
	}
	return int16(f.intVal), nil
}

func (f FieldValue) Integer() (int32, error) {
	if err := f.check(schema.Integer); err != nil {
		return 0, err
	}
	return int32(f.intVal), nil
}

func (f FieldValue) BigInt() (int64, error) {
	if err := f.check(schema.BigInt); err != nil {
		return 0, err
	}
	return f.intVal, nil
}

func (f FieldValue) Float() (float32, error) {
	if err := f.check(schema.Float); err != nil {
		return 0, err
	}
	return float32(f.floatVal), nil
}

func (f FieldValue) Double() (float64, error) {
	if err := f.check(schema.Double); err != nil {
		return 0, err
	}
	return f.floatVal, nil
}

// String reads a CHAR, VARCHAR or TEXT value.
func (f FieldValue) String() (string, error) {
	if f.isNull {
		return "", ErrNullAccess
	}
	if !f.typ.IsStringType() {
		return "", ErrTypeMismatch
	}
	return f.strVal, nil
}

func (f FieldValue) Blob() ([]byte, error) {
	if err := f.check(schema.Blob); err != nil {
		return nil, err
	}
	return f.blobVal, nil
}

// SerializedSize is the number of payload bytes the value occupies in a
// tuple: 0 for null, the fixed width for fixed types, and a 2-byte length
// prefix plus the data for strings and blobs.
func (f FieldValue) SerializedSize() int {
	if f.isNull {
		return 0
	}
	if n := schema.FixedSize(f.typ, 0); n > 0 {
		return n
	}
	switch f.typ {
	case schema.Char, schema.VarChar, schema.Text:
		return 2 + len(f.strVal)
	case schema.Blob:
		return 2 + len(f.blobVal)
	}
	return 0
}
