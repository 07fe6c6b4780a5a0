// Package ledger is the durable record of processed postings. It is the
// only component allowed to write application records and it enforces the
// at-most-once apply guarantee across runs and across concurrent processes.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the terminal or in-progress state recorded for a job.
type Status string

const (
	StatusSeen    Status = "seen"
	StatusSkipped Status = "skipped"
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status ends processing for the current run.
func (s Status) Terminal() bool {
	return s == StatusSkipped || s == StatusApplied || s == StatusFailed
}

// Record is the durable unit stored per job id.
type Record struct {
	JobID          string
	Status         Status
	Reason         string
	CoverLetterRef string
	UpdatedAt      time.Time
}

type Ledger struct {
	db *sql.DB
}

// Open opens (and migrates) the sqlite-backed ledger at path.
func Open(path string) (*Ledger, error) {
	// Serialize concurrent writers instead of failing fast on the lock. The
	// pragma is set through the DSN so it applies to every pooled connection,
	// not just the one a plain Exec would run on.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure ledger: %w", err)
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS applications (
	job_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	cover_letter_ref TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL
);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Lookup returns the record for the job id, or nil when the job has never
// been seen.
func (l *Ledger) Lookup(ctx context.Context, jobID string) (*Record, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT job_id, status, reason, cover_letter_ref, updated_at
FROM applications WHERE job_id = ?`, jobID)

	var rec Record
	var status string
	err := row.Scan(&rec.JobID, &status, &rec.Reason, &rec.CoverLetterRef, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup job %s: %w", jobID, err)
	}

	rec.Status = Status(status)
	return &rec, nil
}

// Upsert writes the record, keyed by job id. Applied rows are never
// downgraded: a concurrent or earlier applied state wins over any other
// status this writer carries.
func (l *Ledger) Upsert(ctx context.Context, rec *Record) error {
	if rec.JobID == "" {
		return errors.New("record job id is required")
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO applications (job_id, status, reason, cover_letter_ref, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
	status = excluded.status,
	reason = excluded.reason,
	cover_letter_ref = excluded.cover_letter_ref,
	updated_at = excluded.updated_at
WHERE applications.status <> 'applied'`,
		rec.JobID, string(rec.Status), rec.Reason, rec.CoverLetterRef, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", rec.JobID, err)
	}

	return nil
}

// MarkApplied atomically transitions the job into the applied state. The
// first caller for a job id observes first == true; every later caller,
// including racing ones in other processes, observes first == false with a
// nil error. Any other conflicting state is an error.
func (l *Ledger) MarkApplied(ctx context.Context, jobID, coverLetterRef string) (first bool, err error) {
	if jobID == "" {
		return false, errors.New("job id is required")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("mark applied %s: %w", jobID, err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO applications (job_id, status, reason, cover_letter_ref, updated_at)
VALUES (?, 'seen', '', '', ?)
ON CONFLICT(job_id) DO NOTHING`, jobID, now); err != nil {
		return false, fmt.Errorf("mark applied %s: %w", jobID, err)
	}

	res, err := tx.ExecContext(ctx, `
UPDATE applications
SET status = 'applied', reason = '', cover_letter_ref = ?, updated_at = ?
WHERE job_id = ? AND status <> 'applied'`, coverLetterRef, now, jobID)
	if err != nil {
		return false, fmt.Errorf("mark applied %s: %w", jobID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark applied %s: %w", jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("mark applied %s: %w", jobID, err)
	}
	committed = true

	return affected == 1, nil
}

// Counts returns the number of records per status.
func (l *Ledger) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count records: %w", err)
		}
		counts[Status(status)] = n
	}

	return counts, rows.Err()
}
