// Package sqlite provides a SQLite-backed document store for applications
// that keep settings inside a database instead of a standalone file.
// Documents are stored one row per path, so several stores can share one
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver (pure Go)
	_ "github.com/ncruces/go-sqlite3/embed"  // Embed SQLite WASM binary

	"github.com/bnema/prefstore/codec"
	"github.com/bnema/prefstore/internal/logging"
)

const dbDirPerm = 0o750

const schema = `
CREATE TABLE IF NOT EXISTS settings_documents (
	path       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Store keeps settings documents in SQLite. It implements
// codec.DocumentStore.
type Store struct {
	db    *sql.DB
	owned bool
}

// New opens (or creates) the database at dbPath and prepares the document
// table. The database directory is created if it doesn't exist.
func New(ctx context.Context, dbPath string) (*Store, error) {
	ctx = logging.WithComponent(ctx, "settings-db")
	log := logging.FromContext(ctx)

	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dbDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer; keep one connection alive for the process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, owned: true}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug().Str("path", dbPath).Msg("settings database opened")
	return s, nil
}

// NewFromDB wraps an existing database connection, preparing the document
// table. The caller keeps ownership of db; Close will not touch it.
func NewFromDB(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent access
		"PRAGMA synchronous = NORMAL", // Safe in WAL mode
		"PRAGMA busy_timeout = 5000",  // Wait 5 seconds on lock contention
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// Exists reports whether a document row is present for path.
func (s *Store) Exists(path string) bool {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM settings_documents WHERE path = ?", path).Scan(&one)
	return err == nil
}

// ReadDocument loads the document stored for path. Missing rows satisfy
// errors.Is(err, fs.ErrNotExist) so callers treat file and database
// backends uniformly.
func (s *Store) ReadDocument(ctx context.Context, path string) (codec.Document, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM settings_documents WHERE path = ?", path).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no document for %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	var doc codec.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return doc, nil
}

// WriteDocument stores doc for path. The upsert runs as one statement, so
// readers never observe a partial document.
func (s *Store) WriteDocument(ctx context.Context, path string, doc codec.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", path, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings_documents (path, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		path, data, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return nil
}

// LastWriteTime reports when the document for path was last written.
func (s *Store) LastWriteTime(path string) (time.Time, bool) {
	var nanos int64
	err := s.db.QueryRow("SELECT updated_at FROM settings_documents WHERE path = ?", path).Scan(&nanos)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// Remove deletes the document row for path, reporting whether one existed.
func (s *Store) Remove(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM settings_documents WHERE path = ?", path)
	if err != nil {
		return false, fmt.Errorf("failed to remove document %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the database connection when this store opened it.
// Stores created with NewFromDB leave the connection to its owner.
func (s *Store) Close() error {
	if !s.owned || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ codec.DocumentStore = (*Store)(nil)
