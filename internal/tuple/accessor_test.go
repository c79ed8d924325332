package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhiw/storagePrototype/internal/schema"
)

func serializeEmployee(t *testing.T, s *schema.Schema, values []FieldValue) []byte {
	t.Helper()

	size, err := CalculateSize(s, values)
	require.NoError(t, err)
	buf := make([]byte, size)
	n, err := Serialize(s, values, buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestAccessor_TypedReads(t *testing.T) {
	s := employeeSchema(t)
	data := serializeEmployee(t, s, []FieldValue{
		NewInteger(1001),
		NewVarChar("Alice Johnson"),
		NewDouble(75000.50),
		NewVarChar("Engineering"),
	})

	a, err := NewAccessor(s, data)
	require.NoError(t, err)

	id, err := a.Integer("id")
	require.NoError(t, err)
	assert.Equal(t, int32(1001), id)

	name, err := a.String("name")
	require.NoError(t, err)
	assert.Equal(t, "Alice Johnson", name)

	salary, err := a.Double("salary")
	require.NoError(t, err)
	assert.Equal(t, 75000.50, salary)

	isNull, err := a.IsNull("department")
	require.NoError(t, err)
	assert.False(t, isNull)
}

func TestAccessor_IsNullWithoutMaterializing(t *testing.T) {
	s := employeeSchema(t)
	data := serializeEmployee(t, s, []FieldValue{
		NewInteger(2),
		NewVarChar("Bob"),
		NewDouble(1),
		Null(schema.VarChar),
	})

	a, err := NewAccessor(s, data)
	require.NoError(t, err)

	// Null check comes from the eagerly-read header.
	isNull, err := a.IsNull("department")
	require.NoError(t, err)
	assert.True(t, isNull)
	assert.False(t, a.materialized)

	// The first typed read materializes the row.
	_, err = a.Integer("id")
	require.NoError(t, err)
	assert.True(t, a.materialized)
}

func TestAccessor_TypeMismatch(t *testing.T) {
	s := employeeSchema(t)
	data := serializeEmployee(t, s, []FieldValue{
		NewInteger(1),
		NewVarChar("n"),
		NewDouble(1),
		Null(schema.VarChar),
	})

	a, err := NewAccessor(s, data)
	require.NoError(t, err)

	_, err = a.BigInt("id")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = a.Integer("name")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = a.Integer("missing")
	assert.ErrorIs(t, err, schema.ErrColumnNotFound)
}

func TestAccessor_ValueAt(t *testing.T) {
	s := employeeSchema(t)
	data := serializeEmployee(t, s, []FieldValue{
		NewInteger(5),
		NewVarChar("n"),
		NewDouble(2.5),
		Null(schema.VarChar),
	})

	a, err := NewAccessor(s, data)
	require.NoError(t, err)

	v, err := a.ValueAt(2)
	require.NoError(t, err)
	d, err := v.Double()
	require.NoError(t, err)
	assert.Equal(t, 2.5, d)

	_, err = a.ValueAt(9)
	require.Error(t, err)
}
