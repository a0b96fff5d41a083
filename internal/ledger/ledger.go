// Package ledger keeps a history of LED pattern transitions and monitor
// passes in a local SQLite database.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// DefaultPath is the default database location.
const DefaultPath = "/var/lib/ledgod/ledgod.db"

// Ledger wraps the SQLite connection.
type Ledger struct {
	conn *sql.DB
	path string
}

// Open opens or creates the history database at the given path.
func Open(path string) (*Ledger, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers usable while the monitor writes
	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	l := &Ledger{conn: conn, path: path}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) migrate() error {
	_, err := l.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	err = l.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return err
	}

	migrations := []string{
		migrationV1,
	}

	for i, migration := range migrations {
		v := i + 1
		if v <= version {
			continue
		}

		tx, err := l.conn.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d failed: %w", v, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

const migrationV1 = `
-- Pattern transition history: one row per LED change actually sent
CREATE TABLE IF NOT EXISTS transitions (
    id TEXT PRIMARY KEY,
    device TEXT NOT NULL,
    devnode TEXT,
    cntrl_type TEXT,
    old_pattern TEXT,
    new_pattern TEXT NOT NULL,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transitions_device ON transitions(device);
CREATE INDEX IF NOT EXISTS idx_transitions_time ON transitions(timestamp);

-- Monitor pass summaries
CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    controllers INTEGER NOT NULL,
    blocks INTEGER NOT NULL,
    volumes INTEGER NOT NULL,
    transitions INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scans_time ON scans(timestamp);
`

// Transition is one recorded LED change.
type Transition struct {
	ID         string
	Device     string
	DevNode    string
	CntrlType  string
	OldPattern string
	NewPattern string
	Timestamp  time.Time
}

// Scan is one recorded monitor pass.
type Scan struct {
	ID          string
	Controllers int
	Blocks      int
	Volumes     int
	Transitions int
	Duration    time.Duration
	Timestamp   time.Time
}

// RecordTransition logs an LED change.
func (l *Ledger) RecordTransition(t Transition) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := l.conn.Exec(`
		INSERT INTO transitions (id, device, devnode, cntrl_type, old_pattern, new_pattern, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, t.ID, t.Device, t.DevNode, t.CntrlType, t.OldPattern, t.NewPattern)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecordScan logs a monitor pass summary.
func (l *Ledger) RecordScan(s Scan) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := l.conn.Exec(`
		INSERT INTO scans (id, controllers, blocks, volumes, transitions, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, s.ID, s.Controllers, s.Blocks, s.Volumes, s.Transitions, s.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return nil
}

// RecentTransitions returns the most recent LED changes, newest first.
func (l *Ledger) RecentTransitions(limit int) ([]*Transition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.conn.Query(`
		SELECT id, device, devnode, cntrl_type, old_pattern, new_pattern, timestamp
		FROM transitions
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	return scanTransitions(rows)
}

// TransitionsByDevice returns the LED changes of one drive, newest first.
func (l *Ledger) TransitionsByDevice(device string, limit int) ([]*Transition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.conn.Query(`
		SELECT id, device, devnode, cntrl_type, old_pattern, new_pattern, timestamp
		FROM transitions
		WHERE device = ? OR devnode = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, device, device, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	return scanTransitions(rows)
}

func scanTransitions(rows *sql.Rows) ([]*Transition, error) {
	var transitions []*Transition
	for rows.Next() {
		var t Transition
		var devNode, cntrlType, oldPattern sql.NullString

		err := rows.Scan(&t.ID, &t.Device, &devNode, &cntrlType,
			&oldPattern, &t.NewPattern, &t.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}

		t.DevNode = devNode.String
		t.CntrlType = cntrlType.String
		t.OldPattern = oldPattern.String
		transitions = append(transitions, &t)
	}
	return transitions, rows.Err()
}

// RecentScans returns the most recent monitor pass summaries, newest first.
func (l *Ledger) RecentScans(limit int) ([]*Scan, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.conn.Query(`
		SELECT id, controllers, blocks, volumes, transitions, duration_ms, timestamp
		FROM scans
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		var s Scan
		var durationMS int64
		err := rows.Scan(&s.ID, &s.Controllers, &s.Blocks, &s.Volumes,
			&s.Transitions, &durationMS, &s.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan pass summary: %w", err)
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		scans = append(scans, &s)
	}
	return scans, rows.Err()
}
