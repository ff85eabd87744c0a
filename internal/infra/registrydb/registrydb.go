// Package registrydb gives the Capability Registry durability: a SQLite
// table of registered capabilities' metadata, written alongside every
// registration so a restarted node can see what existed before it died
// and reacquire external capabilities without an operator re-registering
// them by hand.
package registrydb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Record is the durable shape of one capability registration. Handler
// functions aren't data and can't survive a restart this way — local
// capabilities are re-registered by the code that built them in the
// first place; Record exists so the daemon can audit what was present
// and reacquire external capabilities automatically.
type Record struct {
	ID           string
	Name         string
	Kind         string
	SourceType   string
	SourceServer string
	Schema       map[string]any
	Metadata     map[string]string
	ServerDesc   string
}

// DB is the registry's durability layer.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at path. An empty path
// opens an in-memory database, useful for tests.
func Open(path string) (*DB, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create registry db directory: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *DB) migrate() error {
	_, err := d.db.Exec(`CREATE TABLE IF NOT EXISTS capabilities (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		kind          TEXT NOT NULL,
		source_type   TEXT NOT NULL,
		source_server TEXT NOT NULL DEFAULT '',
		schema_json   TEXT NOT NULL DEFAULT '',
		metadata_json TEXT NOT NULL DEFAULT '',
		server_desc   TEXT NOT NULL DEFAULT ''
	)`)
	return err
}

// Close releases the database handle.
func (d *DB) Close() error { return d.db.Close() }

// SaveRecord upserts r by id.
func (d *DB) SaveRecord(r Record) error {
	schemaJSON, err := marshalOrEmpty(r.Schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	metaJSON, err := marshalOrEmpty(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = d.db.Exec(`INSERT INTO capabilities
		(id, name, kind, source_type, source_server, schema_json, metadata_json, server_desc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, kind=excluded.kind, source_type=excluded.source_type,
			source_server=excluded.source_server, schema_json=excluded.schema_json,
			metadata_json=excluded.metadata_json, server_desc=excluded.server_desc`,
		r.ID, r.Name, r.Kind, r.SourceType, r.SourceServer, schemaJSON, metaJSON, r.ServerDesc)
	return err
}

// Save upserts a capability's metadata field-at-a-time, matching
// internal/capability's Recorder interface so *DB satisfies it directly
// without that package depending on the Record type.
func (d *DB) Save(id, name, kind, sourceType, sourceServer string, schema map[string]any, metadata map[string]string, serverDesc string) error {
	return d.SaveRecord(Record{
		ID: id, Name: name, Kind: kind, SourceType: sourceType, SourceServer: sourceServer,
		Schema: schema, Metadata: metadata, ServerDesc: serverDesc,
	})
}

// Delete removes a capability record by id. Missing ids are a no-op.
func (d *DB) Delete(id string) error {
	_, err := d.db.Exec(`DELETE FROM capabilities WHERE id = ?`, id)
	return err
}

// List returns every persisted capability record.
func (d *DB) List() ([]Record, error) {
	rows, err := d.db.Query(`SELECT id, name, kind, source_type, source_server, schema_json, metadata_json, server_desc FROM capabilities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var schemaJSON, metaJSON string
		if err := rows.Scan(&r.ID, &r.Name, &r.Kind, &r.SourceType, &r.SourceServer, &schemaJSON, &metaJSON, &r.ServerDesc); err != nil {
			return nil, err
		}
		if schemaJSON != "" {
			if err := json.Unmarshal([]byte(schemaJSON), &r.Schema); err != nil {
				return nil, fmt.Errorf("unmarshal schema for %q: %w", r.ID, err)
			}
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %q: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func marshalOrEmpty(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
