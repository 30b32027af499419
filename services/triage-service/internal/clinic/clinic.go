// Package clinic is the boundary to the dental clinic application. The
// application exposes one interactive session, so callers drive it strictly
// sequentially.
package clinic

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
)

var (
	ErrPatientNotFound          = errors.New("patient not found")
	ErrIDMismatch               = errors.New("opened record does not match requested id")
	ErrTimeout                  = errors.New("clinic application timed out")
	ErrManualProcessingRequired = errors.New("application raised a warning while saving")
)

// LabelMissingContactInfo is the banner the application shows when a
// patient has no phone number on file.
const LabelMissingContactInfo = "Manglende kontaktoplysninger"

// Session is an opened patient record.
type Session struct {
	ID         string
	NationalID string
}

type Application interface {
	OpenPatient(ctx context.Context, nationalID string) (*Session, error)
	ListAppointments(ctx context.Context, s *Session) ([]model.Appointment, error)
	SetStatus(ctx context.Context, s *Session, appt model.Appointment, status string, notify bool) error
	ClosePatientWindow(ctx context.Context, s *Session) error
	FindElement(ctx context.Context, label string) (bool, error)
}
