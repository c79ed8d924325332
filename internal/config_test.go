package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app_name: demo
storage:
  workdir: /tmp/demo-data
  table_name: employees
  table_id: 7
  compression_min: 256
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.AppName)
	assert.Equal(t, "/tmp/demo-data", cfg.Storage.Workdir)
	assert.Equal(t, "employees", cfg.Storage.TableName)
	assert.Equal(t, uint32(7), cfg.Storage.TableID)
	assert.Equal(t, 256, cfg.Storage.CompressionMin)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_DefaultsFillGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: sparse\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sparse", cfg.AppName)
	assert.Equal(t, "table", cfg.Storage.TableName)
	assert.Equal(t, uint32(1), cfg.Storage.TableID)
	assert.Equal(t, 0, cfg.Storage.CompressionMin)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
