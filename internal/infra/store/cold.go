package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// coldTier is the SQLite-backed bottom tier of the store.
type coldTier struct {
	db *sql.DB
}

// openCold opens (or creates) the cold tier's database at path. An empty
// path opens an in-memory database, useful for tests.
func openCold(path string) (*coldTier, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create cold tier directory: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	c := &coldTier{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

func (c *coldTier) migrate() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS cold_entries (
		key    TEXT PRIMARY KEY,
		value  BLOB NOT NULL,
		access INTEGER NOT NULL DEFAULT 0
	)`)
	return err
}

func (c *coldTier) close() error {
	return c.db.Close()
}

func (c *coldTier) put(key string, value []byte, access int) error {
	_, err := c.db.Exec(
		`INSERT INTO cold_entries (key, value, access) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, access=excluded.access`,
		key, value, access,
	)
	return err
}

func (c *coldTier) getWithAccess(key string) (value []byte, access int, ok bool, err error) {
	row := c.db.QueryRow(`SELECT value, access FROM cold_entries WHERE key = ?`, key)
	err = row.Scan(&value, &access)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	return value, access, true, nil
}

func (c *coldTier) bumpAccess(key string, access int) error {
	_, err := c.db.Exec(`UPDATE cold_entries SET access = ? WHERE key = ?`, access, key)
	return err
}

func (c *coldTier) delete(key string) error {
	_, err := c.db.Exec(`DELETE FROM cold_entries WHERE key = ?`, key)
	return err
}

func (c *coldTier) keys() ([]string, error) {
	rows, err := c.db.Query(`SELECT key FROM cold_entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (c *coldTier) count() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM cold_entries`).Scan(&n)
	return n, err
}
