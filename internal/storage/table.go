package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

var reTableName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// Table is a named collection of records of one type, keyed by index.
//
// Every read goes to the backend, so rows written or deleted through another
// Table on the same store (another process included) are seen on the next
// call. Safe for concurrent use.
type Table[T Record[T]] struct {
	name    string
	backend Backend
	decode  func(string) (T, error)

	mu   sync.Mutex
	last int64
}

// OpenTable checks that every stored row of the named table decodes.
func OpenTable[T Record[T]](ctx context.Context, b Backend, name string, decode func(string) (T, error)) (*Table[T], error) {
	if b == nil {
		return nil, ErrDisabled
	}
	if !reTableName.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	if decode == nil {
		return nil, errors.New("table decoder is required")
	}

	t := &Table[T]{name: name, backend: b, decode: decode}
	if _, err := t.loadLocked(ctx); err != nil {
		return nil, fmt.Errorf("open table %s: %w", name, err)
	}
	return t, nil
}

func (t *Table[T]) Name() string { return t.name }

// loadLocked reads and decodes the stored rows. t.last only grows, so an
// index freed by a delete is never handed out again by this table.
func (t *Table[T]) loadLocked(ctx context.Context) (map[int64]T, error) {
	stored, err := t.backend.Load(ctx, t.name)
	if err != nil {
		return nil, err
	}
	rows := make(map[int64]T, len(stored))
	for _, r := range stored {
		v, err := t.decode(r.Data)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r.Index, err)
		}
		// The row key is authoritative.
		if v.Index() != r.Index {
			v = v.WithIndex(r.Index)
		}
		rows[r.Index] = v
		if r.Index > t.last {
			t.last = r.Index
		}
	}
	return rows, nil
}

// Values returns a snapshot of all records, in no particular order.
func (t *Table[T]) Values(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rows, err := t.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, v := range rows {
		out = append(out, v)
	}
	return out, nil
}

func (t *Table[T]) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rows, err := t.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Write inserts v, assigning a fresh index when v.Index() is 0, or replaces
// the record with the same index. It returns the stored value.
func (t *Table[T]) Write(ctx context.Context, v T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	idx := v.Index()
	if idx == 0 {
		if _, err := t.loadLocked(ctx); err != nil {
			return zero, err
		}
		idx = t.last + 1
		v = v.WithIndex(idx)
	}
	if err := t.backend.Put(ctx, t.name, Row{Index: idx, Data: v.Serialize()}); err != nil {
		return zero, err
	}
	if idx > t.last {
		t.last = idx
	}
	return v, nil
}

// Delete removes the record with v's index. Deleting an absent record is a no-op.
func (t *Table[T]) Delete(ctx context.Context, v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.backend.Delete(ctx, t.name, v.Index())
}

// Clear deletes every record and returns how many were removed.
func (t *Table[T]) Clear(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for idx := range rows {
		if err := t.backend.Delete(ctx, t.name, idx); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
