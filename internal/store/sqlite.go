// Package store persists macros, settings and the diagnostics journal in a
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"adnw/internal/macro"
)

var (
	// ErrNotFound is returned when a macro or setting does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSealed is returned when reading a sealed macro without a sealer.
	ErrSealed = errors.New("macro is sealed; unlock first")
)

// Well-known setting keys.
const (
	SettingUnlockSalt        = "unlock.salt"
	SettingUnlockFingerprint = "unlock.fingerprint"
)

// Sealer encrypts stored macro payloads. The unlocked vault is one.
type Sealer interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(sealed []byte) ([]byte, error)
}

// Diagnostic is one journal entry: how many cycles raised a signal.
type Diagnostic struct {
	Session    uuid.UUID
	Signal     string
	Count      uint64
	RecordedAt time.Time
}

// Store is the SQLite store. Every Open starts a new session.
type Store struct {
	db      *sql.DB
	session uuid.UUID

	mu     sync.RWMutex
	sealer Sealer
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, session: uuid.New()}
	host, _ := os.Hostname()
	if _, err := db.Exec(
		"INSERT INTO sessions (id, started_at, hostname) VALUES (?, ?, ?)",
		s.session.String(), time.Now().UnixNano(), host,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Session returns the id of this run.
func (s *Store) Session() uuid.UUID {
	return s.session
}

// SetSealer makes macro writes sealed and allows reading sealed macros.
// A nil sealer stores macros in the clear.
func (s *Store) SetSealer(sl Sealer) {
	s.mu.Lock()
	s.sealer = sl
	s.mu.Unlock()
}

func (s *Store) currentSealer() Sealer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealer
}

// PutMacro creates or replaces a macro.
func (s *Store) PutMacro(m macro.Macro) error {
	if m.Name == "" {
		return fmt.Errorf("put macro: empty name")
	}
	if _, err := macro.Compile(m.Text); err != nil {
		return fmt.Errorf("put macro %s: %w", m.Name, err)
	}

	payload := []byte(m.Text)
	sealed := false
	if sl := s.currentSealer(); sl != nil {
		var err error
		if payload, err = sl.Encrypt(payload); err != nil {
			return fmt.Errorf("seal macro %s: %w", m.Name, err)
		}
		sealed = true
	}

	_, err := s.db.Exec(`
		INSERT INTO macros (name, payload, sealed, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, sealed = excluded.sealed, updated_at = excluded.updated_at`,
		m.Name, payload, sealed, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put macro %s: %w", m.Name, err)
	}
	return nil
}

// GetMacro loads a macro by name.
func (s *Store) GetMacro(name string) (macro.Macro, error) {
	var payload []byte
	var sealed bool
	err := s.db.QueryRow("SELECT payload, sealed FROM macros WHERE name = ?", name).Scan(&payload, &sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return macro.Macro{}, fmt.Errorf("macro %s: %w", name, ErrNotFound)
		}
		return macro.Macro{}, fmt.Errorf("get macro %s: %w", name, err)
	}
	if sealed {
		sl := s.currentSealer()
		if sl == nil {
			return macro.Macro{}, fmt.Errorf("macro %s: %w", name, ErrSealed)
		}
		if payload, err = sl.Decrypt(payload); err != nil {
			return macro.Macro{}, fmt.Errorf("unseal macro %s: %w", name, err)
		}
	}
	return macro.Macro{Name: name, Text: string(payload)}, nil
}

// MacroInfo describes a stored macro without its text.
type MacroInfo struct {
	Name      string
	Sealed    bool
	UpdatedAt time.Time
}

// ListMacros returns all macros ordered by name.
func (s *Store) ListMacros() ([]MacroInfo, error) {
	rows, err := s.db.Query("SELECT name, sealed, updated_at FROM macros ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list macros: %w", err)
	}
	defer rows.Close()

	var out []MacroInfo
	for rows.Next() {
		var mi MacroInfo
		var ts int64
		if err := rows.Scan(&mi.Name, &mi.Sealed, &ts); err != nil {
			return nil, fmt.Errorf("scan macro: %w", err)
		}
		mi.UpdatedAt = time.Unix(0, ts)
		out = append(out, mi)
	}
	return out, rows.Err()
}

// DeleteMacro removes a macro.
func (s *Store) DeleteMacro(name string) error {
	res, err := s.db.Exec("DELETE FROM macros WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete macro %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("macro %s: %w", name, ErrNotFound)
	}
	return nil
}

// SetSetting stores a setting.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetSetting loads a setting.
func (s *Store) GetSetting(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, nil
}

// RecordDiagnostic appends a journal entry for the current session.
func (s *Store) RecordDiagnostic(signal string, count uint64) error {
	_, err := s.db.Exec(
		"INSERT INTO diagnostics (session_id, signal, count, recorded_at) VALUES (?, ?, ?, ?)",
		s.session.String(), signal, count, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record diagnostic: %w", err)
	}
	return nil
}

// Diagnostics returns the newest journal entries across sessions, newest
// first.
func (s *Store) Diagnostics(limit int) ([]Diagnostic, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT session_id, signal, count, recorded_at FROM diagnostics
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		var sid string
		var ts int64
		if err := rows.Scan(&sid, &d.Signal, &d.Count, &ts); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		if d.Session, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		d.RecordedAt = time.Unix(0, ts)
		out = append(out, d)
	}
	return out, rows.Err()
}
