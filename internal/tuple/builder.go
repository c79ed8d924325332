package tuple

import (
	"fmt"

	"github.com/abhiw/storagePrototype/internal/schema"
)

// Builder stages field values by column name before serialization. Setters
// chain; the first error sticks and is reported by Build.
type Builder struct {
	schema *schema.Schema
	values []*FieldValue
	err    error
}

// NewBuilder returns a builder for a finalized schema.
func NewBuilder(s *schema.Schema) (*Builder, error) {
	if !s.IsFinalized() {
		return nil, schema.ErrNotFinalized
	}
	return &Builder{
		schema: s,
		values: make([]*FieldValue, s.ColumnCount()),
	}, nil
}

func (b *Builder) set(name string, want schema.DataType, v FieldValue) *Builder {
	if b.err != nil {
		return b
	}
	col, err := b.schema.ColumnByName(name)
	if err != nil {
		b.err = err
		return b
	}
	if col.Type != want {
		b.err = fmt.Errorf("%w: column %q is %v, not %v", ErrTypeMismatch, name, col.Type, want)
		return b
	}
	b.values[col.FieldIndex] = &v
	return b
}

// SetNull stages an explicit null; the column must be nullable.
func (b *Builder) SetNull(name string) *Builder {
	if b.err != nil {
		return b
	}
	col, err := b.schema.ColumnByName(name)
	if err != nil {
		b.err = err
		return b
	}
	if !col.Nullable {
		b.err = fmt.Errorf("tuple: cannot set null on non-nullable column %q", name)
		return b
	}
	v := Null(col.Type)
	b.values[col.FieldIndex] = &v
	return b
}

func (b *Builder) SetBoolean(name string, v bool) *Builder {
	return b.set(name, schema.Boolean, NewBoolean(v))
}

func (b *Builder) SetTinyInt(name string, v int8) *Builder {
	return b.set(name, schema.TinyInt, NewTinyInt(v))
}

func (b *Builder) SetSmallInt(name string, v int16) *Builder {
	return b.set(name, schema.SmallInt, NewSmallInt(v))
}

func (b *Builder) SetInteger(name string, v int32) *Builder {
	return b.set(name, schema.Integer, NewInteger(v))
}

func (b *Builder) SetBigInt(name string, v int64) *Builder {
	return b.set(name, schema.BigInt, NewBigInt(v))
}

func (b *Builder) SetFloat(name string, v float32) *Builder {
	return b.set(name, schema.Float, NewFloat(v))
}

func (b *Builder) SetDouble(name string, v float64) *Builder {
	return b.set(name, schema.Double, NewDouble(v))
}

func (b *Builder) SetChar(name string, v string) *Builder {
	return b.set(name, schema.Char, NewChar(v))
}

func (b *Builder) SetVarChar(name string, v string) *Builder {
	return b.set(name, schema.VarChar, NewVarChar(v))
}

func (b *Builder) SetText(name string, v string) *Builder {
	return b.set(name, schema.Text, NewText(v))
}

func (b *Builder) SetBlob(name string, v []byte) *Builder {
	return b.set(name, schema.Blob, NewBlob(v))
}

// Build returns the staged row in schema order. Unset nullable columns
// become nulls; an unset non-nullable column is an error.
func (b *Builder) Build() ([]FieldValue, error) {
	if b.err != nil {
		return nil, b.err
	}

	result := make([]FieldValue, len(b.values))
	for i, v := range b.values {
		col := b.schema.Column(i)
		if v == nil {
			if !col.Nullable {
				return nil, fmt.Errorf("tuple: non-nullable column %q not set", col.Name)
			}
			result[i] = Null(col.Type)
			continue
		}
		result[i] = *v
	}
	return result, nil
}

// Reset clears all staged values and any sticky error.
func (b *Builder) Reset() {
	b.values = make([]*FieldValue, b.schema.ColumnCount())
	b.err = nil
}
