package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"tilepilot/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists Settings in SQLite. The record is loaded once at startup
// and rewritten in full on every mutation, so readers never observe a
// partially-updated row set.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
	cur    Settings
}

// Open initializes the settings database at the given path. ":memory:" is
// supported for tests.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	cur, err := s.load()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.cur = cur

	logging.Store("settings store ready at %s: %+v", path, cur)
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`)
	return err
}

// load reads the durable record, applying defaults for missing keys.
func (s *Store) load() (Settings, error) {
	set := DefaultSettings()

	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return set, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return set, err
		}
		switch k {
		case "enabled":
			set.Enabled = v == "true"
		case "auto_solve":
			set.AutoSolve = v == "true"
		case "debug":
			set.Debug = v == "true"
		case "solved_count":
			if n, err := strconv.Atoi(v); err == nil {
				set.SolvedCount = n
			}
		}
	}
	return set, rows.Err()
}

// Settings returns the in-memory copy of the durable record.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Save replaces the durable record with the given settings.
func (s *Store) Save(set Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(set); err != nil {
		return err
	}
	s.cur = set
	return nil
}

// Update applies fn to the current settings and persists the result.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	fn(&next)
	if err := s.writeLocked(next); err != nil {
		return s.cur, err
	}
	s.cur = next
	return next, nil
}

// SetField updates one named setting by its wire name.
func (s *Store) SetField(name string, value bool) (Settings, error) {
	switch name {
	case "enabled":
		return s.Update(func(set *Settings) { set.Enabled = value })
	case "auto_solve", "autoSolve":
		return s.Update(func(set *Settings) { set.AutoSolve = value })
	case "debug":
		return s.Update(func(set *Settings) { set.Debug = value })
	default:
		return s.Settings(), fmt.Errorf("unknown setting: %s", name)
	}
}

// Toggle flips the enabled flag and returns the new state.
func (s *Store) Toggle() (Settings, error) {
	return s.Update(func(set *Settings) { set.Enabled = !set.Enabled })
}

// IncrementSolved bumps the solved counter after a successful submit.
func (s *Store) IncrementSolved() (Settings, error) {
	return s.Update(func(set *Settings) { set.SolvedCount++ })
}

// writeLocked rewrites every key in one transaction. Caller holds s.mu.
func (s *Store) writeLocked(set Settings) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO settings(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	pairs := []struct {
		k, v string
	}{
		{"enabled", strconv.FormatBool(set.Enabled)},
		{"auto_solve", strconv.FormatBool(set.AutoSolve)},
		{"debug", strconv.FormatBool(set.Debug)},
		{"solved_count", strconv.Itoa(set.SolvedCount)},
	}
	for _, p := range pairs {
		if _, err := stmt.Exec(p.k, p.v); err != nil {
			return fmt.Errorf("failed to write %s: %w", p.k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}
	logging.Store("settings persisted: %+v", set)
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DefaultPath returns the settings database location under the workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".tilepilot", "settings.db")
}
