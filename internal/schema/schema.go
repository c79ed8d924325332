package schema

import (
	"errors"
	"fmt"
)

// A tuple's null bitmap is a single uint64, which caps the column count.
const MaxColumns = 64

var (
	ErrNotFinalized   = errors.New("schema: schema must be finalized before use")
	ErrFinalized      = errors.New("schema: schema is finalized and immutable")
	ErrTooManyColumns = errors.New("schema: column count exceeds null bitmap capacity")
	ErrColumnNotFound = errors.New("schema: column not found")
)

// ColumnDefinition describes one column of a table schema. FieldIndex is
// set by AddColumn; Offset is filled in by Finalize.
type ColumnDefinition struct {
	Name       string
	Type       DataType
	Nullable   bool
	FixedSize  int
	MaxSize    int
	Offset     int
	FieldIndex int
}

// IsFixedLength reports whether the column occupies a fixed number of bytes
// in the tuple's fixed region.
func (c ColumnDefinition) IsFixedLength() bool { return c.FixedSize > 0 }

// Schema is an ordered list of column definitions. Columns are added first,
// then Finalize computes the physical layout; after that the schema is
// immutable and safe to share.
type Schema struct {
	columns     []ColumnDefinition
	nameToIndex map[string]int

	nullableCount  int
	nullBitmapSize int
	tupleSize      int
	fixedLength    bool
	finalized      bool
	tableID        uint32
}

func New() *Schema {
	return &Schema{nameToIndex: make(map[string]int)}
}

// AddColumn appends a column. sizeParam is only meaningful for CHAR, where
// it fixes the byte width; pass the max length for VARCHAR as documentation
// (it does not affect layout).
func (s *Schema) AddColumn(name string, t DataType, nullable bool, sizeParam int) error {
	if s.finalized {
		return ErrFinalized
	}
	if len(s.columns) >= MaxColumns {
		return ErrTooManyColumns
	}
	if _, ok := s.nameToIndex[name]; ok {
		return fmt.Errorf("schema: duplicate column %q", name)
	}

	col := ColumnDefinition{
		Name:       name,
		Type:       t,
		Nullable:   nullable,
		FixedSize:  FixedSize(t, sizeParam),
		MaxSize:    sizeParam,
		FieldIndex: len(s.columns),
	}
	s.columns = append(s.columns, col)
	s.nameToIndex[name] = col.FieldIndex
	if nullable {
		s.nullableCount++
	}
	return nil
}

// Finalize computes aligned column offsets and the fixed tuple size.
// Idempotent; must be called before the schema is handed to a serializer,
// builder or accessor.
func (s *Schema) Finalize() {
	if s.finalized {
		return
	}

	s.nullBitmapSize = (s.nullableCount + 7) / 8

	offset := s.nullBitmapSize
	allFixed := true
	for i := range s.columns {
		col := &s.columns[i]
		offset = AlignOffset(offset, col.Type)
		col.Offset = offset
		if col.FixedSize == 0 {
			allFixed = false
		}
		offset += col.FixedSize
	}

	s.fixedLength = allFixed
	s.tupleSize = offset
	s.finalized = true
}

func (s *Schema) ColumnCount() int { return len(s.columns) }

func (s *Schema) Column(i int) ColumnDefinition { return s.columns[i] }

func (s *Schema) ColumnByName(name string) (ColumnDefinition, error) {
	i, ok := s.nameToIndex[name]
	if !ok {
		return ColumnDefinition{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return s.columns[i], nil
}

func (s *Schema) HasColumn(name string) bool {
	_, ok := s.nameToIndex[name]
	return ok
}

// FieldIndex resolves a column name to its position in the tuple.
func (s *Schema) FieldIndex(name string) (int, error) {
	i, ok := s.nameToIndex[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return i, nil
}

// VarFieldCount returns the number of variable-length columns.
func (s *Schema) VarFieldCount() int {
	n := 0
	for i := range s.columns {
		if !s.columns[i].IsFixedLength() {
			n++
		}
	}
	return n
}

func (s *Schema) IsFixedLength() bool { return s.fixedLength }
func (s *Schema) IsFinalized() bool   { return s.finalized }

// TupleSize is the fixed-region size computed by Finalize. Variable-length
// columns contribute nothing to it.
func (s *Schema) TupleSize() int { return s.tupleSize }

// NullBitmapSize is kept for layout bookkeeping; the serialized tuple
// carries its own 8-byte bitmap in the tuple header, which is authoritative.
func (s *Schema) NullBitmapSize() int { return s.nullBitmapSize }

func (s *Schema) TableID() uint32       { return s.tableID }
func (s *Schema) SetTableID(id uint32)  { s.tableID = id }
