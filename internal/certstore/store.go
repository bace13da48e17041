// Package certstore persists ACME certificates and locks in SQLite so the
// redirect service can terminate TLS without a writable certificate directory.
package certstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/caddyserver/certmagic"
	_ "github.com/mattn/go-sqlite3"
)

// Lock timings
const (
	DefaultLockTTL      = 2 * time.Minute
	DefaultPollInterval = 250 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS certificates (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS locks (
	name       TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
`

// Store implements certmagic.Storage on a SQLite database.
// Keys are slash separated; a key prefix followed by "/" acts as a directory.
type Store struct {
	db           *sql.DB
	lockTTL      time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

var _ certmagic.Storage = (*Store)(nil)

// Open opens (or creates) the certificate database at path with WAL mode
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{
		db:           db,
		lockTTL:      DefaultLockTTL,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database connection is working
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Store saves value under key, replacing any previous value
func (s *Store) Store(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO certificates (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Load retrieves the value stored under key
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM certificates WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fs.ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

// Delete removes key and everything beneath it
func (s *Store) Delete(ctx context.Context, key string) error {
	lo, hi := childRange(key)
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM certificates WHERE key = ? OR (key >= ? AND key < ?)",
		key, lo, hi,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is stored or has anything beneath it
func (s *Store) Exists(ctx context.Context, key string) bool {
	lo, hi := childRange(key)
	var found int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM certificates WHERE key = ? OR (key >= ? AND key < ?) LIMIT 1",
		key, lo, hi,
	).Scan(&found)
	return err == nil
}

// List returns the keys beneath prefix. Without recursive only the
// immediate children are returned, directories included.
func (s *Store) List(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	var (
		dir  string
		rows *sql.Rows
		err  error
	)
	if base := strings.TrimSuffix(prefix, "/"); base != "" {
		var hi string
		dir, hi = childRange(base)
		rows, err = s.db.QueryContext(ctx,
			"SELECT key FROM certificates WHERE key >= ? AND key < ? ORDER BY key",
			dir, hi,
		)
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT key FROM certificates ORDER BY key")
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}

		if !recursive {
			rel := strings.TrimPrefix(key, dir)
			if idx := strings.Index(rel, "/"); idx != -1 {
				key = dir + rel[:idx]
			}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return nil, fs.ErrNotExist
	}
	sort.Strings(keys)
	return keys, nil
}

// Stat describes key. A key that only exists as a prefix of other keys is
// reported as a non-terminal directory.
func (s *Store) Stat(ctx context.Context, key string) (certmagic.KeyInfo, error) {
	var size int64
	var updated int64

	err := s.db.QueryRowContext(ctx,
		"SELECT length(value), updated_at FROM certificates WHERE key = ?", key,
	).Scan(&size, &updated)
	if err == nil {
		return certmagic.KeyInfo{
			Key:        key,
			Modified:   time.UnixMilli(updated),
			Size:       size,
			IsTerminal: true,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return certmagic.KeyInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}

	lo, hi := childRange(key)
	var newest sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		"SELECT MAX(updated_at) FROM certificates WHERE key >= ? AND key < ?",
		lo, hi,
	).Scan(&newest)
	if err != nil {
		return certmagic.KeyInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if !newest.Valid {
		return certmagic.KeyInfo{}, fs.ErrNotExist
	}

	return certmagic.KeyInfo{
		Key:        key,
		Modified:   time.UnixMilli(newest.Int64),
		IsTerminal: false,
	}, nil
}

// childRange returns the half-open range [key+"/", key+"0") that holds every
// key beneath key. SQLite compares TEXT bytewise and '0' follows '/'.
func childRange(key string) (string, string) {
	return key + "/", key + "0"
}

// Lock blocks until the named lock is acquired or ctx is done. A lock whose
// lease has expired is taken over, so a crashed holder cannot wedge renewals.
func (s *Store) Lock(ctx context.Context, name string) error {
	for {
		acquired, err := s.tryLock(ctx, name)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Store) tryLock(ctx context.Context, name string) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO locks (name, expires_at)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= ?
	`, name, now.Add(s.lockTTL).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", name, err)
	}
	return n == 1, nil
}

// Unlock releases the named lock
func (s *Store) Unlock(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM locks WHERE name = ?", name); err != nil {
		return fmt.Errorf("unlock %s: %w", name, err)
	}
	return nil
}

func (s *Store) String() string {
	return "SQLiteCertStorage"
}
