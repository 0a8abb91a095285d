package storage

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	tables map[string]map[int64]string
	closed bool
}

// NewMemory returns a Backend that keeps rows in process memory.
func NewMemory() Backend {
	return &memoryStore{tables: map[string]map[int64]string{}}
}

func (s *memoryStore) Load(ctx context.Context, table string) ([]Row, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	rows := make([]Row, 0, len(s.tables[table]))
	for idx, data := range s.tables[table] {
		rows = append(rows, Row{Index: idx, Data: data})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })
	return rows, nil
}

func (s *memoryStore) Put(ctx context.Context, table string, r Row) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	t := s.tables[table]
	if t == nil {
		t = map[int64]string{}
		s.tables[table] = t
	}
	t[r.Index] = r.Data
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, table string, index int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.tables[table], index)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
