// Package manuallist stores the items a human has to follow up.
package manuallist

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/notifytriage/libs/db"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends entry. A second entry for the same queue reference on the
// same day is dropped, so a rerun after a crash does not duplicate rows.
func (r *Repository) Insert(ctx context.Context, e model.ManualListEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO manual_list (name, national_id, appointment_type, description, transaction_number, queue_reference, entry_date)
		VALUES ($1, $2, $3, $4, '', $5, $6)
		ON CONFLICT (queue_reference, entry_date) DO NOTHING
	`, e.Name, e.NationalID, e.AppointmentType, e.Reason, e.QueueReference, model.StartOfDay(e.InsertionDate))
	return err
}

// Query returns the entries dated inside p in insertion order.
func (r *Repository) Query(ctx context.Context, p model.PeriodWindow) ([]model.ManualListEntry, error) {
	from, to := p.Bounds()
	rows, err := r.pool.Query(ctx, `
		SELECT name, national_id, appointment_type, description, queue_reference, entry_date
		FROM manual_list
		WHERE entry_date BETWEEN $1 AND $2
		ORDER BY id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ManualListEntry
	for rows.Next() {
		var e model.ManualListEntry
		var date time.Time
		if err := rows.Scan(&e.Name, &e.NationalID, &e.AppointmentType, &e.Reason, &e.QueueReference, &date); err != nil {
			return nil, err
		}
		e.InsertionDate = date
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}
