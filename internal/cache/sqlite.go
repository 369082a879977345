package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based cache store.
// Use ":memory:" for an in-memory database, or a file path for persistence.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers, which modernc.org/sqlite requires anyway.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wiki_cache (
		owner TEXT NOT NULL,
		repo TEXT NOT NULL,
		host_type TEXT NOT NULL,
		language TEXT NOT NULL,
		record BLOB NOT NULL,
		saved_at INTEGER NOT NULL,
		PRIMARY KEY (owner, repo, host_type, language)
	);
	CREATE INDEX IF NOT EXISTS idx_wiki_cache_saved_at ON wiki_cache(saved_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get retrieves a record by key.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT record FROM wiki_cache WHERE owner = ? AND repo = ? AND host_type = ? AND language = ?",
		key.Owner, key.Repo, key.HostType, key.Language,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(blob, &record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &record, nil
}

// Put stores a record, replacing any existing one.
func (s *SQLiteStore) Put(ctx context.Context, key Key, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO wiki_cache (owner, repo, host_type, language, record, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner, repo, host_type, language) DO UPDATE SET record = excluded.record, saved_at = excluded.saved_at`,
		key.Owner, key.Repo, key.HostType, key.Language, blob, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Delete removes a record. Deleting an absent key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM wiki_cache WHERE owner = ? AND repo = ? AND host_type = ? AND language = ?",
		key.Owner, key.Repo, key.HostType, key.Language,
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
