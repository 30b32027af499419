// Package classify maps the closed set of per-item failure kinds to the
// Danish reason text stored on the manual list.
package classify

type Kind int

const (
	KindNone Kind = iota
	KindIDMismatch
	KindAlreadyNotified
	KindNoEligibleAppointment
	KindManualProcessingWarning
	KindOpenFailure
	KindMissingContactInfo
	KindUnknown
)

const (
	ReasonIDMismatch              = "Indtastet CPR matcher ikke CPR fra den åbnede journal."
	ReasonAlreadyNotified         = "'OR aftale meddelt' fundet"
	ReasonNoEligibleAppointment   = "Ingen 'Ikke meddelt aftale' fundet"
	ReasonManualProcessingWarning = "Advarsel da aftale gemtes"
	ReasonOpenFailure             = "Fejl ved åbning af patient"
	ReasonMissingContactInfo      = "Intet telefonnummer knyttet til patienten."
	ReasonUnknown                 = "Ukendt fejl, tjek status på aftalen"
)

// Reason returns the reason text for k. Every kind without its own row,
// KindNone included, gets ReasonUnknown.
func Reason(k Kind) string {
	switch k {
	case KindIDMismatch:
		return ReasonIDMismatch
	case KindAlreadyNotified:
		return ReasonAlreadyNotified
	case KindNoEligibleAppointment:
		return ReasonNoEligibleAppointment
	case KindManualProcessingWarning:
		return ReasonManualProcessingWarning
	case KindOpenFailure:
		return ReasonOpenFailure
	case KindMissingContactInfo:
		return ReasonMissingContactInfo
	default:
		return ReasonUnknown
	}
}

// ManualListed reports whether an item failing with k goes on the manual
// list. Missing contact info is escalated instead.
func (k Kind) ManualListed() bool {
	return k != KindNone && k != KindMissingContactInfo
}

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindIDMismatch:
		return "id_mismatch"
	case KindAlreadyNotified:
		return "already_notified"
	case KindNoEligibleAppointment:
		return "no_eligible_appointment"
	case KindManualProcessingWarning:
		return "manual_processing_warning"
	case KindOpenFailure:
		return "open_failure"
	case KindMissingContactInfo:
		return "missing_contact_info"
	default:
		return "unknown"
	}
}
