package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"photoTracker/iplookup"
)

// DB wraps sql.DB to add custom methods
type DB struct {
	*sql.DB
	now func() time.Time
}

func openAndInitDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// SQLite works best with single connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	db := &DB{DB: sqlDB, now: time.Now}

	schema := `
CREATE TABLE IF NOT EXISTS ip_lookup_cache (
	ip TEXT PRIMARY KEY,
	result JSON NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	cached_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);`
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, err
	}

	// Ensure source column exists for caches created before it was added
	var sourceCol int
	_ = sqlDB.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('ip_lookup_cache') WHERE name='source'`).Scan(&sourceCol)
	if sourceCol == 0 {
		_, _ = sqlDB.Exec(`ALTER TABLE ip_lookup_cache ADD COLUMN source TEXT NOT NULL DEFAULT ''`)
	}
	_, _ = sqlDB.Exec(`CREATE INDEX IF NOT EXISTS idx_ip_lookup_cache_expires ON ip_lookup_cache(expires_at)`)

	return db, nil
}

func (db *DB) clearDBTables() error {
	if _, err := db.Exec(`DELETE FROM ip_lookup_cache`); err != nil {
		return err
	}
	return nil
}

// Get returns an unexpired cached result for ip.
func (db *DB) Get(ctx context.Context, ip string) (*iplookup.Result, bool, error) {
	var raw string
	now := db.now().UTC().Format(time.RFC3339)
	err := db.QueryRowContext(ctx, `SELECT result FROM ip_lookup_cache WHERE ip = ? AND expires_at > ?`, ip, now).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get lookup cache: query ip_lookup_cache: %w", err)
	}

	var r iplookup.Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, false, fmt.Errorf("get lookup cache: decode %q: %w", ip, err)
	}
	return &r, true, nil
}

// Put upserts the result for ip, valid for ttl.
func (db *DB) Put(ctx context.Context, ip string, r *iplookup.Result, ttl time.Duration) error {
	if strings.TrimSpace(ip) == "" {
		return fmt.Errorf("insert lookup cache: empty ip key")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("insert lookup cache: encode %q: %w", ip, err)
	}

	now := db.now().UTC()
	_, err = db.ExecContext(ctx,
		`INSERT INTO ip_lookup_cache (ip, result, source, cached_at, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(ip) DO UPDATE SET
  result=excluded.result,
  source=excluded.source,
  cached_at=excluded.cached_at,
  expires_at=excluded.expires_at`,
		ip,
		string(b),
		r.Source,
		now.Format(time.RFC3339),
		now.Add(ttl).Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert lookup cache ip=%q: %w", ip, err)
	}
	return nil
}

// pruneExpired deletes rows whose expiry has passed.
func (db *DB) pruneExpired(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM ip_lookup_cache WHERE expires_at <= ?`, db.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
