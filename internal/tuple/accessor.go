package tuple

import (
	"fmt"

	"github.com/abhiw/storagePrototype/internal/schema"
)

// Accessor reads typed column values out of a serialized tuple. It borrows
// the buffer it is constructed over and must not outlive it. The header is
// decoded eagerly so IsNull never materializes the row; the field values
// themselves are decoded lazily on first typed read.
type Accessor struct {
	schema *schema.Schema
	buf    []byte
	header Header

	values       []FieldValue
	materialized bool
}

func NewAccessor(s *schema.Schema, buf []byte) (*Accessor, error) {
	if !s.IsFinalized() {
		return nil, schema.ErrNotFinalized
	}
	varFieldCount := s.VarFieldCount()
	if len(buf) < HeaderSize(varFieldCount) {
		return nil, fmt.Errorf("%w: buffer too small for tuple header", ErrSerialization)
	}
	return &Accessor{
		schema: s,
		buf:    buf,
		header: DeserializeHeader(buf, varFieldCount),
	}, nil
}

func (a *Accessor) materialize() error {
	if a.materialized {
		return nil
	}
	values, err := Deserialize(a.schema, a.buf)
	if err != nil {
		return err
	}
	a.values = values
	a.materialized = true
	return nil
}

// IsNull reports whether the named column is null, straight off the header.
func (a *Accessor) IsNull(name string) (bool, error) {
	i, err := a.schema.FieldIndex(name)
	if err != nil {
		return false, err
	}
	return a.header.IsFieldNull(i), nil
}

// IsNullAt is the index form of IsNull.
func (a *Accessor) IsNullAt(fieldIndex int) (bool, error) {
	if fieldIndex < 0 || fieldIndex >= a.schema.ColumnCount() {
		return false, fmt.Errorf("%w: field index %d out of bounds", ErrTypeMismatch, fieldIndex)
	}
	return a.header.IsFieldNull(fieldIndex), nil
}

func (a *Accessor) field(name string, want schema.DataType) (FieldValue, error) {
	col, err := a.schema.ColumnByName(name)
	if err != nil {
		return FieldValue{}, err
	}
	if want != col.Type && !(want == schema.VarChar && col.Type.IsStringType()) {
		return FieldValue{}, fmt.Errorf("%w: column %q is %v, not %v",
			ErrTypeMismatch, name, col.Type, want)
	}
	if err := a.materialize(); err != nil {
		return FieldValue{}, err
	}
	return a.values[col.FieldIndex], nil
}

func (a *Accessor) Boolean(name string) (bool, error) {
	v, err := a.field(name, schema.Boolean)
	if err != nil {
		return false, err
	}
	return v.Boolean()
}

func (a *Accessor) TinyInt(name string) (int8, error) {
	v, err := a.field(name, schema.TinyInt)
	if err != nil {
		return 0, err
	}
	return v.TinyInt()
}

func (a *Accessor) SmallInt(name string) (int16, error) {
	v, err := a.field(name, schema.SmallInt)
	if err != nil {
		return 0, err
	}
	return v.SmallInt()
}

func (a *Accessor) Integer(name string) (int32, error) {
	v, err := a.field(name, schema.Integer)
	if err != nil {
		return 0, err
	}
	return v.Integer()
}

func (a *Accessor) BigInt(name string) (int64, error) {
	v, err := a.field(name, schema.BigInt)
	if err != nil {
		return 0, err
	}
	return v.BigInt()
}

func (a *Accessor) Float(name string) (float32, error) {
	v, err := a.field(name, schema.Float)
	if err != nil {
		return 0, err
	}
	return v.Float()
}

func (a *Accessor) Double(name string) (float64, error) {
	v, err := a.field(name, schema.Double)
	if err != nil {
		return 0, err
	}
	return v.Double()
}

// String reads any of CHAR, VARCHAR or TEXT.
func (a *Accessor) String(name string) (string, error) {
	v, err := a.field(name, schema.VarChar)
	if err != nil {
		return "", err
	}
	return v.String()
}

func (a *Accessor) Blob(name string) ([]byte, error) {
	v, err := a.field(name, schema.Blob)
	if err != nil {
		return nil, err
	}
	return v.Blob()
}

// Value returns the raw FieldValue for a column.
func (a *Accessor) Value(name string) (FieldValue, error) {
	col, err := a.schema.ColumnByName(name)
	if err != nil {
		return FieldValue{}, err
	}
	return a.ValueAt(col.FieldIndex)
}

// ValueAt returns the raw FieldValue at a field index.
func (a *Accessor) ValueAt(fieldIndex int) (FieldValue, error) {
	if fieldIndex < 0 || fieldIndex >= a.schema.ColumnCount() {
		return FieldValue{}, fmt.Errorf("%w: field index %d out of bounds", ErrTypeMismatch, fieldIndex)
	}
	if err := a.materialize(); err != nil {
		return FieldValue{}, err
	}
	return a.values[fieldIndex], nil
}
