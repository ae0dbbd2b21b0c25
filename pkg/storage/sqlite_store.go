package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps an embedded SQLite database that remembers which registry id each
// locally declared command received, together with the definition hash it was
// synced with. It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
}

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if s.dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
			return fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	// Pragmas for durability and concurrency
	pragmas := []struct{ stmt, what string }{
		{`PRAGMA journal_mode=WAL;`, "set WAL"},
		{`PRAGMA foreign_keys=ON;`, "enable FKs"},
		{`PRAGMA busy_timeout=5000;`, "set busy_timeout"},
		{`PRAGMA synchronous=NORMAL;`, "set synchronous"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	const createCommands = `
CREATE TABLE IF NOT EXISTS commands (
  scope        TEXT NOT NULL,
  command_type INTEGER NOT NULL,
  name         TEXT NOT NULL,
  registry_id  TEXT NOT NULL,
  hash         TEXT NOT NULL,
  synced_at    TIMESTAMP NOT NULL,
  PRIMARY KEY (scope, command_type, name)
);
CREATE INDEX IF NOT EXISTS idx_commands_registry_id ON commands(registry_id);`

	const createRuntimeMeta = `
CREATE TABLE IF NOT EXISTS runtime_meta (
  key TEXT PRIMARY KEY,
  ts  TIMESTAMP NOT NULL
);`

	for _, sqlText := range []string{createCommands, createRuntimeMeta} {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// CommandRecord is the last known remote identity of a top-level command in a scope.
type CommandRecord struct {
	Scope      string
	Type       int
	Name       string
	RegistryID string
	Hash       string
	SyncedAt   time.Time
}

// UpsertCommand inserts or updates a command record.
func (s *Store) UpsertCommand(r CommandRecord) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if r.SyncedAt.IsZero() {
		r.SyncedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO commands (scope, command_type, name, registry_id, hash, synced_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(scope, command_type, name) DO UPDATE SET
           registry_id=excluded.registry_id,
           hash=excluded.hash,
           synced_at=excluded.synced_at`,
		r.Scope, r.Type, r.Name, r.RegistryID, r.Hash, r.SyncedAt.UTC(),
	)
	return err
}

// GetCommand returns one record, or nil when unknown.
func (s *Store) GetCommand(scope string, typ int, name string) (*CommandRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRow(
		`SELECT scope, command_type, name, registry_id, hash, synced_at
         FROM commands WHERE scope=? AND command_type=? AND name=?`,
		scope, typ, name,
	)
	var r CommandRecord
	if err := row.Scan(&r.Scope, &r.Type, &r.Name, &r.RegistryID, &r.Hash, &r.SyncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// Commands lists every record, optionally restricted to one scope ("" for all).
func (s *Store) Commands(scope string) ([]CommandRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	query := `SELECT scope, command_type, name, registry_id, hash, synced_at FROM commands`
	var args []any
	if scope != "" {
		query += ` WHERE scope=?`
		args = append(args, scope)
	}
	query += ` ORDER BY scope, command_type, name`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var r CommandRecord
		if err := rows.Scan(&r.Scope, &r.Type, &r.Name, &r.RegistryID, &r.Hash, &r.SyncedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteCommand removes a record.
func (s *Store) DeleteCommand(scope string, typ int, name string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.Exec(`DELETE FROM commands WHERE scope=? AND command_type=? AND name=?`, scope, typ, name)
	return err
}

// DeleteScope removes every record of a scope.
func (s *Store) DeleteScope(scope string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.Exec(`DELETE FROM commands WHERE scope=?`, scope)
	return err
}

// SetMetadata stores a timestamp under key (last successful sync, for instance).
func (s *Store) SetMetadata(key string, ts time.Time) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.Exec(
		`INSERT INTO runtime_meta (key, ts) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET ts=excluded.ts`,
		key, ts.UTC(),
	)
	return err
}

// GetMetadata returns the timestamp stored under key and whether it exists.
func (s *Store) GetMetadata(key string) (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, fmt.Errorf("store not initialized")
	}
	var ts time.Time
	err := s.db.QueryRow(`SELECT ts FROM runtime_meta WHERE key=?`, key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}
