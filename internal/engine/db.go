package engine

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/abhiw/storagePrototype/internal"
	"github.com/abhiw/storagePrototype/internal/logx"
	"github.com/abhiw/storagePrototype/internal/schema"
	"github.com/abhiw/storagePrototype/internal/storage"
	"github.com/abhiw/storagePrototype/internal/table"
)

var ErrEngineClosed = errors.New("engine: engine is closed")

// Engine owns one table's storage stack: the database file, its free-space
// map and the page manager coordinating them. The table facade on top
// speaks rows instead of tuple bytes.
//
// On disk the engine uses two files under the configured workdir:
// <table>.db (file header + pages) and <table>.fsm (free-space map).
type Engine struct {
	cfg *internal.StorageEngineConfig

	disk *storage.DiskManager
	fsm  *storage.FreeSpaceMap
	pm   *storage.PageManager
	tbl  *table.Table

	closed bool
}

// Open builds the storage stack described by cfg for the given schema.
// The schema must be finalized.
func Open(cfg *internal.StorageEngineConfig, s *schema.Schema) (*Engine, error) {
	if !s.IsFinalized() {
		return nil, schema.ErrNotFinalized
	}

	logx.SetLevel(cfg.Log.Level)

	if err := os.MkdirAll(cfg.Storage.Workdir, 0o755); err != nil {
		return nil, err
	}

	name := cfg.Storage.TableName
	dbPath := filepath.Join(cfg.Storage.Workdir, name+".db")
	fsmPath := filepath.Join(cfg.Storage.Workdir, name+".fsm")

	disk, err := storage.NewDiskManager(dbPath, name, cfg.Storage.TableID)
	if err != nil {
		return nil, err
	}

	fsm := storage.NewFreeSpaceMap(fsmPath)

	pm, err := storage.NewPageManager(disk, fsm)
	if err != nil {
		disk.Close()
		return nil, err
	}
	if cfg.Storage.CompressionMin > 0 {
		pm.EnableCompression(cfg.Storage.CompressionMin)
	}

	tbl, err := table.NewTable(name, s, pm)
	if err != nil {
		pm.Close()
		return nil, err
	}

	return &Engine{cfg: cfg, disk: disk, fsm: fsm, pm: pm, tbl: tbl}, nil
}

// Table returns the row-level facade.
func (e *Engine) Table() *table.Table {
	return e.tbl
}

// PageManager exposes the tuple-level layer for callers that bring their
// own serialized bytes.
func (e *Engine) PageManager() *storage.PageManager {
	return e.pm
}

// Flush writes all dirty pages and the free-space map.
func (e *Engine) Flush() error {
	if e.closed {
		return ErrEngineClosed
	}
	return e.pm.FlushAllPages()
}

// Close flushes and releases every resource. Safe to call twice.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.pm.Close()
}
