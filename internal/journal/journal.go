package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	KindAssessments    = "assessments"
	KindCustomerThemes = "customer-themes"
	KindEmergingTech   = "emerging-tech"
	KindInterest       = "interest"
	KindDeltaPush      = "delta-push"
)

// Event is one recorded edit.
type Event struct {
	ID        int64
	Timestamp time.Time
	Company   string
	Kind      string
	RecordID  string
	Payload   json.RawMessage
}

// Journal appends edit events to a SQLite database.
type Journal struct {
	DBPath string
	db     *sql.DB
	now    func() time.Time
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve journal db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{
		DBPath: absPath,
		db:     db,
		now:    time.Now,
	}

	if err := j.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return j, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) ensureSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			company TEXT NOT NULL,
			kind TEXT NOT NULL,
			record_id TEXT NOT NULL,
			payload_json TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Append records one edit. A nil journal accepts and drops events.
func (j *Journal) Append(ctx context.Context, company, kind, recordID string, payload any) error {
	if j == nil {
		return nil
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		"INSERT INTO events (ts, company, kind, record_id, payload_json) VALUES (?, ?, ?, ?, ?)",
		j.now().UTC().Format(time.RFC3339Nano),
		company,
		kind,
		recordID,
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("insert journal event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, ts, company, kind, record_id, payload_json FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			ts      string
			payload string
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.Company, &ev.Kind, &ev.RecordID, &payload); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse journal timestamp %q: %w", ts, err)
		}
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal events: %w", err)
	}
	return events, nil
}
