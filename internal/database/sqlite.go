package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docchat/internal/database/migrations"
	"docchat/internal/docchat"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStateStore implements docchat.StateStore on a SQLite database.
// Each store reads and writes one named slot; several slots may share a database.
type SQLiteStateStore struct {
	db    *sql.DB
	path  string
	slot  string
	clock docchat.Clock
}

var _ docchat.StateStore = (*SQLiteStateStore)(nil)

// NewSQLiteStateStore opens (creating if needed) the database at path and migrates it
// to the latest schema. path can be a file path or ":memory:".
func NewSQLiteStateStore(path, slot string, clock docchat.Clock) (*SQLiteStateStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating state database: %w", err)
	}

	return &SQLiteStateStore{
		db:    db,
		path:  path,
		slot:  slot,
		clock: clock,
	}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Load reads the slot. A slot that was never saved yields a fresh state.
func (s *SQLiteStateStore) Load() (*docchat.PersistedState, error) {
	ps := &docchat.PersistedState{}

	var lang string
	err := s.db.QueryRow("SELECT schema_version, language FROM slots WHERE name = ?", s.slot).Scan(&ps.Version, &lang)
	if errors.Is(err, sql.ErrNoRows) {
		return docchat.NewPersistedState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading slot %s: %w", s.slot, err)
	}
	ps.Language = docchat.Language(lang)

	rows, err := s.db.Query(`SELECT session_id, filename, file_type, file_size, created_at
		FROM slot_files WHERE slot = ? ORDER BY position`, s.slot)
	if err != nil {
		return nil, fmt.Errorf("loading files of slot %s: %w", s.slot, err)
	}
	defer rows.Close()

	ps.Files = []docchat.FileRecord{}
	for rows.Next() {
		var (
			rec     docchat.FileRecord
			created string
		)
		if err := rows.Scan(&rec.SessionID, &rec.Filename, &rec.FileType, &rec.FileSize, &created); err != nil {
			return nil, fmt.Errorf("scanning file row: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parsing created_at of %s: %w", rec.SessionID, err)
		}
		ps.Files = append(ps.Files, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating file rows: %w", err)
	}

	if err := ps.Upgrade(); err != nil {
		return nil, err
	}
	return ps, nil
}

// Save replaces the slot in a single transaction.
func (s *SQLiteStateStore) Save(state *docchat.PersistedState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	version := state.Version
	if version == 0 {
		version = docchat.CurrentStateVersion
	}
	now := s.clock.Now().UTC().Format(time.RFC3339Nano)

	_, err = tx.Exec(`INSERT INTO slots (name, schema_version, language, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET schema_version = excluded.schema_version,
			language = excluded.language, updated_at = excluded.updated_at`,
		s.slot, version, string(state.Language), now)
	if err != nil {
		return fmt.Errorf("saving slot %s: %w", s.slot, err)
	}

	if _, err := tx.Exec("DELETE FROM slot_files WHERE slot = ?", s.slot); err != nil {
		return fmt.Errorf("clearing files of slot %s: %w", s.slot, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO slot_files (slot, position, session_id, filename, file_type, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing file insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range state.Files {
		if _, err := stmt.Exec(s.slot, i, f.SessionID, f.Filename, f.FileType, f.FileSize, f.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("saving file %s: %w", f.SessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing slot %s: %w", s.slot, err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStateStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStateStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteStateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
