package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"calmsession/internal/domain"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	mood           TEXT NOT NULL DEFAULT '',
	target_seconds INTEGER NOT NULL DEFAULT 0,
	started_at     INTEGER NOT NULL,
	ended_at       INTEGER NOT NULL DEFAULT 0,
	outcome        TEXT NOT NULL DEFAULT 'running'
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

CREATE TABLE IF NOT EXISTS admissions (
	id         TEXT PRIMARY KEY,
	granted    INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_admissions_created ON admissions(created_at);
`

// NewDB opens the history database at path, creating parent directories and
// the schema as needed.
func NewDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schemaV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

// SQLiteRepository implements domain.SessionRepository and domain.AdmissionLog.
// This is a secondary adapter.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open database from NewDB.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Start inserts a running session.
func (r *SQLiteRepository) Start(ctx context.Context, rec domain.SessionRecord) error {
	const q = `INSERT INTO sessions (id, kind, mood, target_seconds, started_at, ended_at, outcome)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		string(rec.Kind),
		string(rec.Mood),
		rec.TargetSeconds,
		toMillis(rec.StartedAt),
		toMillis(rec.EndedAt),
		string(rec.Outcome),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Finish sets the outcome of a session.
func (r *SQLiteRepository) Finish(ctx context.Context, id string, outcome domain.SessionOutcome, endedAt time.Time) error {
	const q = `UPDATE sessions SET outcome = ?, ended_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, string(outcome), toMillis(endedAt), id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT id, kind, mood, target_seconds, started_at, ended_at, outcome
FROM sessions
ORDER BY started_at DESC, rowid DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		var (
			rec            domain.SessionRecord
			kind, mood, oc string
			started, ended int64
		)
		if err := rows.Scan(&rec.ID, &kind, &mood, &rec.TargetSeconds, &started, &ended, &oc); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Kind = domain.SessionKind(kind)
		rec.Mood = domain.Mood(mood)
		rec.Outcome = domain.SessionOutcome(oc)
		rec.StartedAt = fromMillis(started)
		rec.EndedAt = fromMillis(ended)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Append records one admission decision.
func (r *SQLiteRepository) Append(ctx context.Context, rec domain.AdmissionRecord) error {
	const q = `INSERT INTO admissions (id, granted, reason, created_at) VALUES (?, ?, ?, ?)`
	granted := 0
	if rec.Granted {
		granted = 1
	}
	if _, err := r.db.ExecContext(ctx, q, rec.ID, granted, string(rec.Reason), toMillis(rec.CreatedAt)); err != nil {
		return fmt.Errorf("insert admission: %w", err)
	}
	return nil
}

// Admissions returns up to limit admission decisions, newest first.
func (r *SQLiteRepository) Admissions(ctx context.Context, limit int) ([]domain.AdmissionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT id, granted, reason, created_at FROM admissions ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list admissions: %w", err)
	}
	defer rows.Close()

	var out []domain.AdmissionRecord
	for rows.Next() {
		var (
			rec     domain.AdmissionRecord
			granted int
			reason  string
			created int64
		)
		if err := rows.Scan(&rec.ID, &granted, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan admission: %w", err)
		}
		rec.Granted = granted != 0
		rec.Reason = domain.AdmissionReason(reason)
		rec.CreatedAt = fromMillis(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
