package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists audit rows in SQLite for recent-activity queries.
// The chain stays the tamper-evident source of truth; the store exists so
// dashboards and the CLI can ask "what happened lately" without scanning
// the whole trail.
type Store struct {
	db *sql.DB
}

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	excerpt TEXT NOT NULL,
	severity TEXT NOT NULL,
	action TEXT NOT NULL,
	status TEXT NOT NULL,
	rule_id TEXT NOT NULL DEFAULT '',
	policy_hash TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_status ON audit_logs(status);
`

// OpenStore opens (or creates) the SQLite audit store at path.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	// modernc sqlite serializes writers per connection; one connection
	// avoids SQLITE_BUSY under concurrent missions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createAuditTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Record inserts one audit row. Timestamp is stamped if empty.
func (s *Store) Record(entry Entry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_logs (timestamp, excerpt, severity, action, status, rule_id, policy_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.Excerpt, entry.Severity, entry.Action,
		entry.Status, entry.RuleID, entry.PolicyHash,
	)
	if err != nil {
		return fmt.Errorf("audit: insert row: %w", err)
	}
	return nil
}

// Recent returns the last n rows, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		n = 5
	}
	rows, err := s.db.Query(
		`SELECT timestamp, excerpt, severity, action, status, rule_id, policy_hash
		 FROM audit_logs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Timestamp, &e.Excerpt, &e.Severity, &e.Action,
			&e.Status, &e.RuleID, &e.PolicyHash); err != nil {
			return nil, fmt.Errorf("audit: scan row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate rows: %w", err)
	}
	return entries, nil
}

// CountByStatus returns how many rows carry each status.
func (s *Store) CountByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM audit_logs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("audit: query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("audit: scan count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate counts: %w", err)
	}
	return counts, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
