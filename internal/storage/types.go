package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process only, nothing survives a restart
//   - "file": journal + snapshot files under Path (a directory)
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL database at DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver       string
	Path         string
	DSN          string        // postgres only
	BusyTimeout  time.Duration // sqlite only; 0 means default
	CompactEvery int           // file only; journal writes between compactions (default 1000)
}

// Row is one stored record in its serialized form.
type Row struct {
	Index int64
	Data  string
}

// Backend persists rows for named tables. Implementations must be safe for
// concurrent use.
type Backend interface {
	Load(ctx context.Context, table string) ([]Row, error)
	Put(ctx context.Context, table string, r Row) error
	Delete(ctx context.Context, table string, index int64) error
	Close() error
}

// Record is a value a Table can persist.
//
// Index 0 means "not persisted yet"; the table assigns a new index on first write.
type Record[T any] interface {
	Index() int64
	WithIndex(index int64) T
	Serialize() string
}
