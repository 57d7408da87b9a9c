// Package store persists conversations in an embedded key-value engine
// backed by SQLite. Buckets are namespaces inside one kv table; values are
// opaque blobs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // "sqlite3" driver (cgo)
	_ "modernc.org/sqlite"          // "sqlite" driver (pure Go)

	"github.com/zaporter/jake/internal/logging"
)

// Driver names accepted by Open.
const (
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"
)

// ErrNotFound is returned for missing keys.
var ErrNotFound = errors.New("key not found")

// KV is the embedded key-value engine.
type KV struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	driver string
}

// Open opens (creating if needed) the database at path with driver.
func Open(path, driver string) (*KV, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if driver == "" {
		driver = DriverCGO
	}
	if driver != DriverCGO && driver != DriverPureGo {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	logging.Store("Opening kv store at %s (driver=%s)", path, driver)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		bucket TEXT NOT NULL,
		key    TEXT NOT NULL,
		value  BLOB NOT NULL,
		PRIMARY KEY (bucket, key)
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		logging.StoreError("Failed to initialize schema: %v", err)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &KV{db: db, path: path, driver: driver}, nil
}

// Path returns the database file path.
func (s *KV) Path() string {
	return s.path
}

// Close closes the database.
func (s *KV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Get returns the value stored under bucket/key, or ErrNotFound.
func (s *KV) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := s.View(ctx, func(tx *Tx) error {
		v, err := tx.Get(bucket, key)
		value = v
		return err
	})
	return value, err
}

// Put stores value under bucket/key, replacing any existing value.
func (s *KV) Put(ctx context.Context, bucket, key string, value []byte) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Put(bucket, key, value)
	})
}

// Delete removes bucket/key. Missing keys are not an error.
func (s *KV) Delete(ctx context.Context, bucket, key string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Delete(bucket, key)
	})
}

// Iterate calls fn for every entry of bucket in key order. Returning an
// error from fn stops the walk and is returned.
func (s *KV) Iterate(ctx context.Context, bucket string, fn func(key string, value []byte) error) error {
	return s.View(ctx, func(tx *Tx) error {
		return tx.Iterate(bucket, fn)
	})
}

// View runs fn in a transaction that is always rolled back.
func (s *KV) View(ctx context.Context, fn func(*Tx) error) error {
	return s.run(ctx, false, fn)
}

// Update runs fn in a transaction committed when fn returns nil.
func (s *KV) Update(ctx context.Context, fn func(*Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *KV) run(ctx context.Context, commit bool, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("store is closed")
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{ctx: ctx, tx: sqlTx}); err != nil || !commit {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Backup writes a consistent copy of the database to dest.
func (s *KV) Backup(ctx context.Context, dest string) error {
	timer := logging.StartTimer(logging.CategoryStore, "Backup")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup %s already exists", dest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("store is closed")
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		logging.StoreError("Backup to %s failed: %v", dest, err)
		return fmt.Errorf("backup to %s: %w", dest, err)
	}
	logging.Store("Backed up %s to %s", s.path, dest)
	return nil
}

// Tx is a transaction handle passed to View and Update callbacks.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Get returns the value under bucket/key, or ErrNotFound.
func (t *Tx) Get(bucket, key string) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT value FROM kv WHERE bucket = ? AND key = ?", bucket, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

// Put stores value under bucket/key.
func (t *Tx) Put(bucket, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := t.tx.ExecContext(t.ctx,
		"INSERT INTO kv (bucket, key, value) VALUES (?, ?, ?) ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value",
		bucket, key, value)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Delete removes bucket/key.
func (t *Tx) Delete(bucket, key string) error {
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM kv WHERE bucket = ? AND key = ?", bucket, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Iterate walks bucket in key order.
func (t *Tx) Iterate(bucket string, fn func(key string, value []byte) error) error {
	rows, err := t.tx.QueryContext(t.ctx, "SELECT key, value FROM kv WHERE bucket = ? ORDER BY key", bucket)
	if err != nil {
		return fmt.Errorf("iterate %s: %w", bucket, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("iterate %s: %w", bucket, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}
