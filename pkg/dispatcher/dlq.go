package dispatcher

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DeadLetterEntry is one permanently-failed or permanently-invalid
// event, journaled for operator inspection and replay.
type DeadLetterEntry struct {
	ID         int64
	WorkflowID string
	Subject    string
	Payload    []byte
	Kind       string
	Reason     string
	CreatedAt  time.Time
}

// DLQ persists dead-lettered events to Postgres, grounded on the
// teacher's common/db.DB (pgxpool wrapper) and its parameterized-query
// convention; the repository layer itself (common/repository) had no
// place/transition analog and was dropped, so the handful of queries
// this component needs are written directly against pgxpool.Pool here.
type DLQ struct {
	pool *pgxpool.Pool
}

// NewDLQ wraps an existing connection pool.
func NewDLQ(pool *pgxpool.Pool) *DLQ {
	return &DLQ{pool: pool}
}

// EnsureSchema creates the dead-letter table if it does not exist.
func (d *DLQ) EnsureSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dispatcher_dead_letters (
			id BIGSERIAL PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			payload JSONB NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Record journals one dead-lettered event.
func (d *DLQ) Record(ctx context.Context, entry DeadLetterEntry) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO dispatcher_dead_letters (workflow_id, subject, payload, kind, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.WorkflowID, entry.Subject, entry.Payload, entry.Kind, entry.Reason)
	return err
}

// List returns the most recent dead letters for a workflow, newest
// first, for the operator-surface DLQ listing call (§6).
func (d *DLQ) List(ctx context.Context, workflowID string, limit int) ([]DeadLetterEntry, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, workflow_id, subject, payload, kind, reason, created_at
		FROM dispatcher_dead_letters
		WHERE workflow_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetterEntry
	for rows.Next() {
		var e DeadLetterEntry
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Subject, &e.Payload, &e.Kind, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
