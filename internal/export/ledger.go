package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS exports (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    image_id TEXT NOT NULL,
    parent_input_id TEXT,
    prompt TEXT NOT NULL,
    model TEXT NOT NULL,
    path TEXT NOT NULL,
    mime_type TEXT NOT NULL,
    cost REAL NOT NULL DEFAULT 0,
    exported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_exports_session_id ON exports(session_id);
CREATE INDEX IF NOT EXISTS idx_exports_exported_at ON exports(exported_at);
`

// Entry is one exported result.
type Entry struct {
	ID            string
	SessionID     string
	ImageID       string
	ParentInputID string
	Prompt        string
	Model         string
	Path          string
	MIMEType      string
	Cost          float64
	ExportedAt    time.Time
}

type CostSummary struct {
	TotalCost  float64
	ImageCount int
}

// Ledger is an append-only sqlite record of exports.
type Ledger struct {
	db *sql.DB
}

func NewLedger() (*Ledger, error) {
	dbPath, err := DefaultLedgerPath()
	if err != nil {
		return nil, err
	}
	return NewLedgerWithPath(dbPath)
}

func NewLedgerWithPath(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// DefaultLedgerPath follows the XDG data directory convention.
func DefaultLedgerPath() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "banafit", "exports.db"), nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) Record(ctx context.Context, e *Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO exports (id, session_id, image_id, parent_input_id, prompt, model, path, mime_type, cost, exported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.ImageID, nullString(e.ParentInputID), e.Prompt, e.Model,
		e.Path, e.MIMEType, e.Cost, e.ExportedAt)
	return err
}

// List returns the most recent exports first. A limit of zero or less
// returns everything.
func (l *Ledger) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := `SELECT id, session_id, image_id, parent_input_id, prompt, model, path, mime_type, cost, exported_at
		 FROM exports ORDER BY exported_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return l.query(ctx, query, args...)
}

func (l *Ledger) ListSession(ctx context.Context, sessionID string) ([]*Entry, error) {
	return l.query(ctx,
		`SELECT id, session_id, image_id, parent_input_id, prompt, model, path, mime_type, cost, exported_at
		 FROM exports WHERE session_id = ? ORDER BY exported_at ASC`, sessionID)
}

func (l *Ledger) TotalCost(ctx context.Context) (*CostSummary, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0), COUNT(*) FROM exports`)

	var summary CostSummary
	if err := row.Scan(&summary.TotalCost, &summary.ImageCount); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var parentID sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ImageID, &parentID, &e.Prompt, &e.Model,
			&e.Path, &e.MIMEType, &e.Cost, &e.ExportedAt); err != nil {
			return nil, err
		}
		e.ParentInputID = parentID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
