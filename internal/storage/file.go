package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "dailyrun/pkg/logx"

	"golang.org/x/sys/unix"
)

// fileStore is a dependency-light persistence backend.
//
// Files per table, under cfg.Path:
//   - <table>.snapshot.json (periodic snapshot)
//   - <table>.journal.jsonl (append-only journal)
//   - <table>.lock (flock held around every read and write)
//
// Nothing is cached: every call replays snapshot + journal from disk, so
// several processes can share one directory. The journal is compacted into
// the snapshot every CompactEvery writes and on Close.
type fileStore struct {
	log logx.Logger
	dir string

	compactEvery int

	mu     sync.Mutex
	tables map[string]*fileTable
	closed bool
}

type fileTable struct {
	snapshotPath string
	journalPath  string
	lock         *os.File
	journal      *os.File
	writes       int
}

type journalRecord struct {
	Op    string `json:"op"` // "put" | "del"
	Index int64  `json:"idx"`
	Data  string `json:"data,omitempty"`
}

type snapshotFile struct {
	Rows map[int64]string `json:"rows"`
}

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	every := cfg.CompactEvery
	if every <= 0 {
		every = 1000
	}
	return &fileStore{
		log:          log,
		dir:          dir,
		compactEvery: every,
		tables:       map[string]*fileTable{},
	}, nil
}

// tableLocked lazily opens the lock and journal files for table.
func (s *fileStore) tableLocked(table string) (*fileTable, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if t := s.tables[table]; t != nil {
		return t, nil
	}

	lf, err := os.OpenFile(filepath.Join(s.dir, table+".lock"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	journalPath := filepath.Join(s.dir, table+".journal.jsonl")
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = lf.Close()
		return nil, err
	}
	t := &fileTable{
		snapshotPath: filepath.Join(s.dir, table+".snapshot.json"),
		journalPath:  journalPath,
		lock:         lf,
		journal:      jf,
	}
	s.tables[table] = t
	return t, nil
}

// flock runs fn while holding the table's advisory lock in mode how.
func (t *fileTable) flock(how int, fn func() error) error {
	fd := int(t.lock.Fd())
	for {
		err := unix.Flock(fd, how)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("lock %s: %w", t.lock.Name(), err)
		}
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()
	return fn()
}

// read replays the on-disk state. The caller holds the flock.
func (t *fileTable) read() (map[int64]string, error) {
	rows := map[int64]string{}
	if err := loadSnapshot(t.snapshotPath, rows); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot %s: %w", t.snapshotPath, err)
	}
	if err := replayJournal(t.journalPath, rows); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal %s: %w", t.journalPath, err)
	}
	return rows, nil
}

func (s *fileStore) Load(ctx context.Context, table string) ([]Row, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tableLocked(table)
	if err != nil {
		return nil, err
	}
	var rows []Row
	err = t.flock(unix.LOCK_SH, func() error {
		stored, err := t.read()
		if err != nil {
			return err
		}
		rows = make([]Row, 0, len(stored))
		for idx, data := range stored {
			rows = append(rows, Row{Index: idx, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })
	return rows, nil
}

func (s *fileStore) Put(ctx context.Context, table string, r Row) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tableLocked(table)
	if err != nil {
		return err
	}
	return t.flock(unix.LOCK_EX, func() error {
		return s.appendLocked(t, journalRecord{Op: "put", Index: r.Index, Data: r.Data})
	})
}

func (s *fileStore) Delete(ctx context.Context, table string, index int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tableLocked(table)
	if err != nil {
		return err
	}
	return t.flock(unix.LOCK_EX, func() error {
		rows, err := t.read()
		if err != nil {
			return err
		}
		if _, ok := rows[index]; !ok {
			return nil
		}
		return s.appendLocked(t, journalRecord{Op: "del", Index: index})
	})
}

func (s *fileStore) appendLocked(t *fileTable, rec journalRecord) error {
	if err := json.NewEncoder(t.journal).Encode(rec); err != nil {
		return err
	}
	if err := t.journal.Sync(); err != nil {
		return err
	}
	t.writes++
	if t.writes%s.compactEvery == 0 {
		// Best-effort compact; the journal alone is still a complete record.
		if err := compactLocked(t); err != nil {
			s.log.Debug("journal compact failed", logx.String("snapshot", t.snapshotPath), logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for name, t := range s.tables {
		if err := t.flock(unix.LOCK_EX, func() error { return compactLocked(t) }); err != nil {
			s.log.Warn("journal compact on close failed", logx.String("table", name), logx.Err(err))
		}
		if err := t.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := t.lock.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.tables = nil
	return firstErr
}

// compactLocked folds the on-disk journal into a new snapshot. The caller
// holds the exclusive flock.
func compactLocked(t *fileTable) error {
	rows, err := t.read()
	if err != nil {
		return err
	}
	tmp := t.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snapshotFile{Rows: rows}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, t.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := t.journal.Truncate(0); err != nil {
		return err
	}
	_, err = t.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[int64]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshotFile
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for k, v := range snap.Rows {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[int64]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r journalRecord
		// A torn last line after a crash is skipped.
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case "put":
			out[r.Index] = r.Data
		case "del":
			delete(out, r.Index)
		}
	}
	return sc.Err()
}
