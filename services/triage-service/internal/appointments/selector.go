// Package appointments picks the single appointment the triage run acts on
// from a patient's appointment list.
package appointments

import (
	"errors"
	"slices"

	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/classify"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
)

const (
	StatusNotNotified = "Ikke meddelt aftale"
	StatusNotified    = "OR Aftale meddelt"
	DefaultClinicCode = "121"
)

var (
	ErrAlreadyNotified       = errors.New("patient already has a notified appointment")
	ErrNoEligibleAppointment = errors.New("no eligible appointment")
)

type Selector struct {
	TargetStatus   string
	TerminalStatus string
	ClinicCode     string
}

func DefaultSelector() Selector {
	return Selector{
		TargetStatus:   StatusNotNotified,
		TerminalStatus: StatusNotified,
		ClinicCode:     DefaultClinicCode,
	}
}

// Selection is either a chosen appointment (Failure == KindNone) or the
// reason nothing was chosen.
type Selection struct {
	Appointment model.Appointment
	Failure     classify.Kind
}

func (s Selection) OK() bool {
	return s.Failure == classify.KindNone
}

func (s Selection) Err() error {
	switch s.Failure {
	case classify.KindNone:
		return nil
	case classify.KindAlreadyNotified:
		return ErrAlreadyNotified
	default:
		return ErrNoEligibleAppointment
	}
}

// Select returns the earliest appointment with the target status at the
// configured clinic. Any appointment already in the terminal status
// disqualifies the patient before filtering. Equal start times keep input
// order. appts is not modified.
func (s Selector) Select(appts []model.Appointment) Selection {
	sorted := slices.Clone(appts)
	slices.SortStableFunc(sorted, func(a, b model.Appointment) int {
		return a.StartTime.Compare(b.StartTime)
	})

	for _, a := range sorted {
		if a.Status == s.TerminalStatus {
			return Selection{Failure: classify.KindAlreadyNotified}
		}
	}
	for _, a := range sorted {
		if a.Status == s.TargetStatus && a.ClinicCode == s.ClinicCode {
			return Selection{Appointment: a}
		}
	}
	return Selection{Failure: classify.KindNoEligibleAppointment}
}
