package classify

import "testing"

func TestReason_FixedTable(t *testing.T) {
	cases := map[Kind]string{
		KindIDMismatch:              "Indtastet CPR matcher ikke CPR fra den åbnede journal.",
		KindAlreadyNotified:         "'OR aftale meddelt' fundet",
		KindNoEligibleAppointment:   "Ingen 'Ikke meddelt aftale' fundet",
		KindManualProcessingWarning: "Advarsel da aftale gemtes",
		KindOpenFailure:             "Fejl ved åbning af patient",
		KindMissingContactInfo:      "Intet telefonnummer knyttet til patienten.",
		KindUnknown:                 "Ukendt fejl, tjek status på aftalen",
	}
	for k, want := range cases {
		if got := Reason(k); got != want {
			t.Fatalf("Reason(%s) = %q, want %q", k, got, want)
		}
	}
}

func TestReason_IsTotal(t *testing.T) {
	for _, k := range []Kind{KindNone, Kind(-1), Kind(99)} {
		if got := Reason(k); got != ReasonUnknown {
			t.Fatalf("Reason(%d) = %q, want catch-all", int(k), got)
		}
	}
}

func TestKind_ManualListed(t *testing.T) {
	listed := []Kind{KindIDMismatch, KindAlreadyNotified, KindNoEligibleAppointment, KindManualProcessingWarning, KindOpenFailure, KindUnknown}
	for _, k := range listed {
		if !k.ManualListed() {
			t.Fatalf("%s should be manual-listed", k)
		}
	}
	if KindNone.ManualListed() || KindMissingContactInfo.ManualListed() {
		t.Fatal("none and missing contact info must not be manual-listed")
	}
}

func TestKind_String(t *testing.T) {
	if KindAlreadyNotified.String() != "already_notified" {
		t.Fatalf("unexpected %q", KindAlreadyNotified.String())
	}
	if Kind(42).String() != "unknown" {
		t.Fatalf("unexpected %q", Kind(42).String())
	}
}
