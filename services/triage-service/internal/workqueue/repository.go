// Package workqueue is the Postgres-backed queue of patients to triage.
package workqueue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/notifytriage/libs/db"
	otelx "github.com/md-rashed-zaman/notifytriage/libs/otel"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Unresolved reports whether an item in s still has work outstanding.
func (s Status) Unresolved() bool {
	return s == StatusNew || s == StatusInProgress
}

type Entry struct {
	Reference   string
	Status      Status
	Data        json.RawMessage
	Message     string
	Traceparent string
	Tracestate  string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Enqueue adds a new item. It reports false when reference already exists.
func (r *Repository) Enqueue(ctx context.Context, tx pgx.Tx, reference string, data []byte) (bool, error) {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	tag, err := tx.Exec(ctx, `
		INSERT INTO workqueue_items (reference, data, traceparent, tracestate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reference) DO NOTHING
	`, reference, data, traceparent, tracestate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimNext moves the oldest new item to in progress. ok is false when the
// queue holds no new items.
func (r *Repository) ClaimNext(ctx context.Context) (entry Entry, ok bool, err error) {
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `
			SELECT reference, data, traceparent, tracestate
			FROM workqueue_items
			WHERE status = 'new'
			ORDER BY created_at, reference
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`).Scan(&entry.Reference, &raw, &entry.Traceparent, &entry.Tracestate)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		entry.Data = raw
		entry.Status = StatusInProgress
		ok = true

		_, err = tx.Exec(ctx, `
			UPDATE workqueue_items
			SET status = 'in progress', updated_at = now()
			WHERE reference = $1
		`, entry.Reference)
		return err
	})
	if err != nil {
		return Entry{}, false, err
	}
	return entry, ok, nil
}

// Complete closes an in-progress item as done or failed.
func (r *Repository) Complete(ctx context.Context, tx pgx.Tx, reference string, status Status, message string) error {
	_, err := tx.Exec(ctx, `
		UPDATE workqueue_items
		SET status = $2, message = $3, updated_at = now()
		WHERE reference = $1
	`, reference, string(status), message)
	return err
}

// Snapshot returns every item keyed by reference.
func (r *Repository) Snapshot(ctx context.Context) (map[string]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT reference, status, data, message
		FROM workqueue_items
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Entry{}
	for rows.Next() {
		var e Entry
		var status string
		var raw []byte
		if err := rows.Scan(&e.Reference, &status, &raw, &e.Message); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		e.Data = raw
		out[e.Reference] = e
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
