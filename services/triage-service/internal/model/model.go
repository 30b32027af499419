// Package model holds the records the triage service moves between the work
// queue, the clinic application and the manual list.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QueueItem is one patient's pending notification task. It is read-only to
// the triage core.
type QueueItem struct {
	Reference       string `json:"-"`
	NationalID      string `json:"Cpr"`
	FullName        string `json:"Navn"`
	AppointmentType string `json:"Aftaletype"`
}

// ParseQueueItem decodes the JSON payload the queue stores for an item.
func ParseQueueItem(reference string, data []byte) (QueueItem, error) {
	var item QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return QueueItem{}, fmt.Errorf("decode queue item %s: %w", reference, err)
	}
	item.Reference = reference
	if strings.TrimSpace(item.NationalID) == "" {
		return QueueItem{}, fmt.Errorf("queue item %s: missing Cpr", reference)
	}
	return item, nil
}

// NormalizedID is the national id with separators removed, as typed into the
// clinic application.
func (q QueueItem) NormalizedID() string {
	return NormalizeID(q.NationalID)
}

func NormalizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t':
			return -1
		}
		return r
	}, id)
}

// Appointment is one row of a patient's appointment list in the clinic
// application. ID is the application's handle for the row.
type Appointment struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	ClinicCode string    `json:"clinic_code"`
	StartTime  time.Time `json:"start_time"`
}

// ManualListEntry is an append-only row for an item a human must follow up.
type ManualListEntry struct {
	Name            string
	NationalID      string
	AppointmentType string
	Reason          string
	QueueReference  string
	InsertionDate   time.Time
}

// NewManualListEntry builds the entry for item with reason, dated on the
// calendar day of now.
func NewManualListEntry(item QueueItem, reason string, now time.Time) ManualListEntry {
	return ManualListEntry{
		Name:            item.FullName,
		NationalID:      item.NationalID,
		AppointmentType: item.AppointmentType,
		Reason:          reason,
		QueueReference:  item.Reference,
		InsertionDate:   StartOfDay(now),
	}
}
