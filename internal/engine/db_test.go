package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhiw/storagePrototype/internal"
	"github.com/abhiw/storagePrototype/internal/schema"
)

func testConfig(t *testing.T) *internal.StorageEngineConfig {
	t.Helper()

	cfg := internal.DefaultConfig()
	cfg.Storage.Workdir = t.TempDir()
	cfg.Storage.TableName = "events"
	return cfg
}

func eventSchema(t *testing.T) *schema.Schema {
	t.Helper()

	s := schema.New()
	require.NoError(t, s.AddColumn("id", schema.BigInt, false, 0))
	require.NoError(t, s.AddColumn("kind", schema.VarChar, false, 32))
	require.NoError(t, s.AddColumn("note", schema.VarChar, true, 200))
	s.Finalize()
	return s
}

func TestEngine_OpenCloseReopen(t *testing.T) {
	cfg := testConfig(t)
	s := eventSchema(t)

	e, err := Open(cfg, s)
	require.NoError(t, err)

	b, err := e.Table().NewBuilder()
	require.NoError(t, err)
	values, err := b.SetBigInt("id", 1).SetVarChar("kind", "created").Build()
	require.NoError(t, err)
	tid, err := e.Table().Insert(values)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	// Close twice is fine.
	require.NoError(t, e.Close())

	// A fresh engine over the same workdir sees the row.
	e2, err := Open(cfg, s)
	require.NoError(t, err)
	defer e2.Close()

	row, err := e2.Table().Get(tid)
	require.NoError(t, err)
	kind, err := row.String("kind")
	require.NoError(t, err)
	assert.Equal(t, "created", kind)

	isNull, err := row.IsNull("note")
	require.NoError(t, err)
	assert.True(t, isNull)
}

func TestEngine_RequiresFinalizedSchema(t *testing.T) {
	cfg := testConfig(t)

	s := schema.New()
	require.NoError(t, s.AddColumn("id", schema.Integer, false, 0))

	_, err := Open(cfg, s)
	assert.ErrorIs(t, err, schema.ErrNotFinalized)
}
