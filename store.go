package copydesk

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store wraps a SQLite database holding the pending change queue and the
// console settings. It is the durable backing for ChangeQueue, so pending
// edits survive reloads and restarts.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent read/write access, set a busy timeout
	// so writers wait instead of returning SQLITE_BUSY immediately, and
	// skip the per-transaction fsync (synchronous=NORMAL is safe with WAL).
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS changes (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    target_key TEXT NOT NULL,
    payload TEXT NOT NULL,
    label TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`)
	return err
}

// SaveChange upserts a change record. A new id is appended at the end of the
// queue order; an existing id keeps its position and created_at, matching
// the in-memory upsert semantics.
func (s *Store) SaveChange(r ChangeRecord) error {
	_, err := s.db.Exec(`
INSERT INTO changes (id, kind, target_key, payload, label, created_at, updated_at, position)
VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT MAX(position) FROM changes), 0) + 1)
ON CONFLICT(id) DO UPDATE SET
    payload = excluded.payload,
    label = excluded.label,
    updated_at = excluded.updated_at`,
		r.ID, string(r.Kind), r.TargetKey, string(r.Payload), r.Label,
		r.CreatedAt.UTC().Format(time.RFC3339Nano), r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListChanges returns every persisted change in insertion order.
func (s *Store) ListChanges() ([]ChangeRecord, error) {
	rows, err := s.db.Query(`SELECT id, kind, target_key, payload, label, created_at, updated_at FROM changes ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ChangeRecord
	for rows.Next() {
		var id, kind, target, payload, label, createdAt, updatedAt string
		if err := rows.Scan(&id, &kind, &target, &payload, &label, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		records = append(records, ChangeRecord{
			ID:        id,
			Kind:      ChangeKind(kind),
			TargetKey: target,
			Payload:   []byte(payload),
			Label:     label,
			CreatedAt: parseStoredTime(createdAt),
			UpdatedAt: parseStoredTime(updatedAt),
		})
	}
	return records, rows.Err()
}

// DeleteChanges removes the rows with the given ids.
func (s *Store) DeleteChanges(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(`DELETE FROM changes WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// ClearChanges removes every persisted change.
func (s *Store) ClearChanges() error {
	_, err := s.db.Exec(`DELETE FROM changes`)
	return err
}

const smartDeployKey = "smart_deploy_enabled"

// SmartDeployEnabled reads the persisted smart-deploy flag. Defaults to true
// when never set.
func (s *Store) SmartDeployEnabled() (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, smartDeployKey).Scan(&value)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// SetSmartDeployEnabled persists the smart-deploy flag.
func (s *Store) SetSmartDeployEnabled(enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		smartDeployKey, value)
	return err
}

func parseStoredTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
