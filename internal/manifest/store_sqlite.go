package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/gridsync/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_manifest (
    owner TEXT NOT NULL,
    path TEXT NOT NULL,
    hash TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    PRIMARY KEY (owner, path)
);
`

type dbEntry struct {
	Owner     string `db:"owner"`
	Path      string `db:"path"`
	Hash      string `db:"hash"`
	Timestamp int64  `db:"timestamp"`
}

// SQLiteStore is the local manifest store.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sqlx.DB
	dbPath string
}

func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{dbPath: dbPath}
}

// Open opens the database. A file that cannot hold the schema is moved aside
// and replaced, since the manifest only saves work.
func (s *SQLiteStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return fmt.Errorf("manifest store already open")
	}

	conn, err := s.open()
	if err != nil && s.dbPath != db.MemoryPath {
		backup := fmt.Sprintf("%s.corrupt.%d", s.dbPath, time.Now().Unix())
		slog.Warn("manifest db unusable, recreating", "path", s.dbPath, "backup", backup, "error", err)
		if rerr := os.Rename(s.dbPath, backup); rerr != nil && !os.IsNotExist(rerr) {
			return fmt.Errorf("move aside corrupt manifest db: %w", rerr)
		}
		os.Remove(s.dbPath + "-wal")
		os.Remove(s.dbPath + "-shm")
		conn, err = s.open()
	}
	if err != nil {
		return err
	}

	s.db = conn
	return nil
}

func (s *SQLiteStore) open() (*sqlx.DB, error) {
	conn, err := db.NewSqliteDB(db.WithPath(s.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open manifest db: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize manifest schema: %w", err)
	}
	return conn, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) conn() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("manifest store not open")
	}
	return s.db, nil
}

func (s *SQLiteStore) Load(ctx context.Context, owner string) (*Manifest, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}

	var rows []dbEntry
	if err := conn.SelectContext(ctx, &rows,
		"SELECT owner, path, hash, timestamp FROM sync_manifest WHERE owner = ?", owner); err != nil {
		return nil, fmt.Errorf("load manifest for %s: %w", owner, err)
	}

	m := New()
	for _, r := range rows {
		m.entries[r.Path] = Entry{Hash: r.Hash, Timestamp: r.Timestamp}
	}
	return m, nil
}

// Save replaces owner's rows with the manifest contents in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, owner string, m *Manifest) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin manifest save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_manifest WHERE owner = ?", owner); err != nil {
		return fmt.Errorf("clear manifest for %s: %w", owner, err)
	}

	const insert = `INSERT INTO sync_manifest (owner, path, hash, timestamp)
	                VALUES (:owner, :path, :hash, :timestamp)`
	for path, e := range m.Entries() {
		row := dbEntry{Owner: owner, Path: path, Hash: e.Hash, Timestamp: e.Timestamp}
		if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
			return fmt.Errorf("save manifest entry %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit manifest save: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
