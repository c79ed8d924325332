package table

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhiw/storagePrototype/internal/page"
	"github.com/abhiw/storagePrototype/internal/schema"
	"github.com/abhiw/storagePrototype/internal/storage"
	"github.com/abhiw/storagePrototype/internal/tuple"
)

// newEmployeeTable builds a table over a temp-dir engine with the schema
// (id INTEGER, name VARCHAR(100), salary DOUBLE, department VARCHAR(50) NULL).
func newEmployeeTable(t *testing.T) *Table {
	t.Helper()

	dir := t.TempDir()
	d, err := storage.NewDiskManager(filepath.Join(dir, "employees.db"), "employees", 1)
	require.NoError(t, err)
	fsm := storage.NewFreeSpaceMap(filepath.Join(dir, "employees.fsm"))
	pm, err := storage.NewPageManager(d, fsm)
	require.NoError(t, err)
	t.Cleanup(func() { pm.Close() })

	s := schema.New()
	require.NoError(t, s.AddColumn("id", schema.Integer, false, 0))
	require.NoError(t, s.AddColumn("name", schema.VarChar, false, 100))
	require.NoError(t, s.AddColumn("salary", schema.Double, false, 0))
	require.NoError(t, s.AddColumn("department", schema.VarChar, true, 50))
	s.Finalize()

	tbl, err := NewTable("employees", s, pm)
	require.NoError(t, err)
	return tbl
}

func insertEmployee(t *testing.T, tbl *Table, id int32, name string, salary float64, dept string) page.TupleID {
	t.Helper()

	b, err := tbl.NewBuilder()
	require.NoError(t, err)
	b.SetInteger("id", id).SetVarChar("name", name).SetDouble("salary", salary)
	if dept != "" {
		b.SetVarChar("department", dept)
	}
	values, err := b.Build()
	require.NoError(t, err)

	tid, err := tbl.Insert(values)
	require.NoError(t, err)
	return tid
}

func TestTable_InsertAndRead(t *testing.T) {
	tbl := newEmployeeTable(t)

	tid := insertEmployee(t, tbl, 1001, "Alice Johnson", 75000.50, "Engineering")

	row, err := tbl.Get(tid)
	require.NoError(t, err)

	id, err := row.Integer("id")
	require.NoError(t, err)
	assert.Equal(t, int32(1001), id)

	name, err := row.String("name")
	require.NoError(t, err)
	assert.Equal(t, "Alice Johnson", name)

	salary, err := row.Double("salary")
	require.NoError(t, err)
	assert.Equal(t, 75000.50, salary)

	dept, err := row.String("department")
	require.NoError(t, err)
	assert.Equal(t, "Engineering", dept)

	isNull, err := row.IsNull("department")
	require.NoError(t, err)
	assert.False(t, isNull)
}

func TestTable_InPlaceUpdateKeepsID(t *testing.T) {
	tbl := newEmployeeTable(t)

	tid := insertEmployee(t, tbl, 1001, "Alice Johnson", 75000.50, "Engineering")

	// Same-or-smaller serialized size: the update stays in place.
	b, err := tbl.NewBuilder()
	require.NoError(t, err)
	values, err := b.
		SetInteger("id", 1001).
		SetVarChar("name", "Alice Smith").
		SetDouble("salary", 85000.75).
		SetVarChar("department", "Engineering").
		Build()
	require.NoError(t, err)
	require.NoError(t, tbl.Update(tid, values))

	resolved, err := tbl.PM.FollowForwardingChainFull(tid)
	require.NoError(t, err)
	assert.Equal(t, tid, resolved, "tuple id unchanged by in-place update")

	row, err := tbl.Get(tid)
	require.NoError(t, err)
	name, err := row.String("name")
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", name)
	salary, err := row.Double("salary")
	require.NoError(t, err)
	assert.Equal(t, 85000.75, salary)
}

func TestTable_NullColumn(t *testing.T) {
	tbl := newEmployeeTable(t)

	tid := insertEmployee(t, tbl, 2, "Bob", 50000, "")

	row, err := tbl.Get(tid)
	require.NoError(t, err)

	isNull, err := row.IsNull("department")
	require.NoError(t, err)
	assert.True(t, isNull)

	_, err = row.String("department")
	assert.ErrorIs(t, err, tuple.ErrNullAccess)
}

func TestTable_Delete(t *testing.T) {
	tbl := newEmployeeTable(t)

	tid := insertEmployee(t, tbl, 3, "Carol", 60000, "Sales")
	require.NoError(t, tbl.Delete(tid))

	_, err := tbl.Get(tid)
	assert.ErrorIs(t, err, storage.ErrInvalidTuple)
}

func TestTable_ScanVisitsEachRowOnce(t *testing.T) {
	tbl := newEmployeeTable(t)

	const numRows = 25
	expected := make(map[int32]string, numRows)
	for i := int32(1); i <= numRows; i++ {
		name := fmt.Sprintf("user-%d", i)
		insertEmployee(t, tbl, i, name, float64(i)*1000, "Ops")
		expected[i] = name
	}

	seen := make(map[int32]string)
	err := tbl.Scan(func(_ page.TupleID, row *tuple.Accessor) error {
		id, err := row.Integer("id")
		if err != nil {
			return err
		}
		name, err := row.String("name")
		if err != nil {
			return err
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("row %d visited twice", id)
		}
		seen[id] = name
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, expected, seen)
}

func TestTable_ScanSkipsForwardedStubs(t *testing.T) {
	tbl := newEmployeeTable(t)

	tid := insertEmployee(t, tbl, 1, "A", 1, "")
	insertEmployee(t, tbl, 2, "B", 2, "")

	// Grow row 1 so it forwards to a new location.
	b, err := tbl.NewBuilder()
	require.NoError(t, err)
	values, err := b.
		SetInteger("id", 1).
		SetVarChar("name", "A very much longer name that will not fit in the original slot").
		SetDouble("salary", 1).
		Build()
	require.NoError(t, err)
	require.NoError(t, tbl.Update(tid, values))

	count := 0
	err = tbl.Scan(func(_ page.TupleID, _ *tuple.Accessor) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count, "the moved row is visited once, its stub never")
}

func TestTable_PersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "p.db")
	fsmPath := filepath.Join(dir, "p.fsm")

	s := schema.New()
	require.NoError(t, s.AddColumn("id", schema.Integer, false, 0))
	require.NoError(t, s.AddColumn("name", schema.VarChar, false, 100))
	require.NoError(t, s.AddColumn("salary", schema.Double, false, 0))
	require.NoError(t, s.AddColumn("department", schema.VarChar, true, 50))
	s.Finalize()

	d, err := storage.NewDiskManager(dbPath, "employees", 1)
	require.NoError(t, err)
	pm, err := storage.NewPageManager(d, storage.NewFreeSpaceMap(fsmPath))
	require.NoError(t, err)
	tbl, err := NewTable("employees", s, pm)
	require.NoError(t, err)

	tid := insertEmployee(t, tbl, 77, "Durable Dana", 123.5, "Storage")
	require.NoError(t, pm.Close())

	// Reopen with fresh managers over the same files.
	d2, err := storage.NewDiskManager(dbPath, "employees", 1)
	require.NoError(t, err)
	pm2, err := storage.NewPageManager(d2, storage.NewFreeSpaceMap(fsmPath))
	require.NoError(t, err)
	defer pm2.Close()
	tbl2, err := NewTable("employees", s, pm2)
	require.NoError(t, err)

	row, err := tbl2.Get(tid)
	require.NoError(t, err)
	name, err := row.String("name")
	require.NoError(t, err)
	assert.Equal(t, "Durable Dana", name)
}
