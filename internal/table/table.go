// Package table is the row-level facade: it binds a finalized schema and a
// page manager so callers work with field values instead of raw tuple
// bytes.
package table

import (
	"fmt"

	"github.com/abhiw/storagePrototype/internal/page"
	"github.com/abhiw/storagePrototype/internal/schema"
	"github.com/abhiw/storagePrototype/internal/storage"
	"github.com/abhiw/storagePrototype/internal/tuple"
)

type Table struct {
	Name   string
	Schema *schema.Schema
	PM     *storage.PageManager
}

func NewTable(name string, s *schema.Schema, pm *storage.PageManager) (*Table, error) {
	if !s.IsFinalized() {
		return nil, schema.ErrNotFinalized
	}
	if pm == nil {
		return nil, fmt.Errorf("table: nil page manager")
	}
	return &Table{Name: name, Schema: s, PM: pm}, nil
}

// NewBuilder returns a staged-value builder for this table's schema.
func (t *Table) NewBuilder() (*tuple.Builder, error) {
	return tuple.NewBuilder(t.Schema)
}

func (t *Table) serialize(values []tuple.FieldValue) ([]byte, error) {
	size, err := tuple.CalculateSize(t.Schema, values)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := tuple.Serialize(t.Schema, values, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Insert serializes a row and stores it, returning its tuple id.
func (t *Table) Insert(values []tuple.FieldValue) (page.TupleID, error) {
	data, err := t.serialize(values)
	if err != nil {
		return page.TupleID{}, err
	}
	return t.PM.InsertTuple(data)
}

// Get returns an accessor over a private copy of the row, so it stays
// usable regardless of what happens to the page cache afterwards.
func (t *Table) Get(id page.TupleID) (*tuple.Accessor, error) {
	data, err := t.PM.ReadTuple(id)
	if err != nil {
		return nil, err
	}
	return tuple.NewAccessor(t.Schema, data)
}

// Update replaces the row behind id. The id stays valid: either the update
// lands in place or a forwarding stub is left behind.
func (t *Table) Update(id page.TupleID, values []tuple.FieldValue) error {
	data, err := t.serialize(values)
	if err != nil {
		return err
	}
	return t.PM.UpdateTuple(id, data)
}

// Delete removes the row behind id.
func (t *Table) Delete(id page.TupleID) error {
	return t.PM.DeleteTuple(id)
}

// Scan visits every live row exactly once. Forwarded stubs are skipped, so
// a moved row is seen only at its current location.
func (t *Table) Scan(fn func(id page.TupleID, row *tuple.Accessor) error) error {
	return t.PM.ForEachTuple(func(id page.TupleID, data []byte) error {
		acc, err := tuple.NewAccessor(t.Schema, data)
		if err != nil {
			return err
		}
		return fn(id, acc)
	})
}

// Flush forces all dirty state to disk.
func (t *Table) Flush() error {
	return t.PM.FlushAllPages()
}
