package processor

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/appointments"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/classify"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/clinic"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
)

type fakeApp struct {
	openErr       error
	openSession   *clinic.Session
	appts         []model.Appointment
	listErr       error
	setErr        error
	missingBanner bool

	openedIDs []string
	setCalls  []model.Appointment
	setStatus string
	notified  bool
	closed    int
	finds     int
}

func (f *fakeApp) OpenPatient(_ context.Context, id string) (*clinic.Session, error) {
	f.openedIDs = append(f.openedIDs, id)
	if f.openErr != nil {
		return f.openSession, f.openErr
	}
	return &clinic.Session{ID: "s-1", NationalID: id}, nil
}

func (f *fakeApp) ListAppointments(context.Context, *clinic.Session) ([]model.Appointment, error) {
	return f.appts, f.listErr
}

func (f *fakeApp) SetStatus(_ context.Context, _ *clinic.Session, appt model.Appointment, status string, notify bool) error {
	f.setCalls = append(f.setCalls, appt)
	f.setStatus = status
	f.notified = notify
	return f.setErr
}

func (f *fakeApp) ClosePatientWindow(context.Context, *clinic.Session) error {
	f.closed++
	return errors.New("window already gone")
}

func (f *fakeApp) FindElement(_ context.Context, label string) (bool, error) {
	f.finds++
	return f.missingBanner && label == clinic.LabelMissingContactInfo, nil
}

type fakeRecorder struct {
	entries []model.ManualListEntry
	err     error
}

func (r *fakeRecorder) Insert(_ context.Context, e model.ManualListEntry) error {
	r.entries = append(r.entries, e)
	return r.err
}

var (
	fixedNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	testItem = model.QueueItem{
		Reference:       "ref-1",
		NationalID:      "010190-1234",
		FullName:        "Anna Hansen",
		AppointmentType: "Kontrol",
	}
)

func newProcessor(rec Recorder) *Processor {
	return New(rec, nil, Config{Now: func() time.Time { return fixedNow }, Location: time.UTC})
}

func eligible(id string, day int) model.Appointment {
	return model.Appointment{
		ID:         id,
		Status:     appointments.StatusNotNotified,
		ClinicCode: "121",
		StartTime:  time.Date(2024, 2, day, 9, 0, 0, 0, time.UTC),
	}
}

func TestProcess_AutomatedSuccess(t *testing.T) {
	app := &fakeApp{appts: []model.Appointment{eligible("a1", 1)}}
	rec := &fakeRecorder{}

	out, err := newProcessor(rec).Process(context.Background(), app, testItem)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Result != Resolved {
		t.Fatalf("expected Resolved, got %s", out.Result)
	}
	if len(rec.entries) != 0 {
		t.Fatalf("expected no manual list insert, got %d", len(rec.entries))
	}
	if len(app.setCalls) != 1 || app.setCalls[0].ID != "a1" {
		t.Fatalf("expected one status change on a1, got %+v", app.setCalls)
	}
	if app.setStatus != appointments.StatusNotified || !app.notified {
		t.Fatalf("expected %q with notification, got %q notify=%v", appointments.StatusNotified, app.setStatus, app.notified)
	}
	if app.openedIDs[0] != "0101901234" {
		t.Fatalf("expected normalized id, got %q", app.openedIDs[0])
	}
	if app.closed != 0 {
		t.Fatal("window should stay open on success")
	}
}

func TestProcess_AlreadyNotified(t *testing.T) {
	app := &fakeApp{appts: []model.Appointment{
		eligible("a1", 1),
		{ID: "a2", Status: appointments.StatusNotified, ClinicCode: "121", StartTime: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)},
	}}
	rec := &fakeRecorder{}

	out, err := newProcessor(rec).Process(context.Background(), app, testItem)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Result != ManualListed || out.Kind != classify.KindAlreadyNotified {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("expected exactly one insert, got %d", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Reason != "'OR aftale meddelt' fundet" {
		t.Fatalf("unexpected reason %q", e.Reason)
	}
	if e.Name != "Anna Hansen" || e.NationalID != "010190-1234" || e.AppointmentType != "Kontrol" || e.QueueReference != "ref-1" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if !e.InsertionDate.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected insertion date %s", e.InsertionDate)
	}
	if len(app.setCalls) != 0 {
		t.Fatal("status must not change for an already notified patient")
	}
	if app.closed != 1 {
		t.Fatalf("expected patient window closed once, got %d", app.closed)
	}
}

func TestProcess_EntryDatedOnClinicDay(t *testing.T) {
	cph, err := time.LoadLocation("Europe/Copenhagen")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 00:30 on 1 February in Copenhagen, still 31 January in UTC.
	instant := time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC)
	rec := &fakeRecorder{}
	p := New(rec, nil, Config{Now: func() time.Time { return instant }, Location: cph})

	app := &fakeApp{appts: []model.Appointment{
		{ID: "a2", Status: appointments.StatusNotified, ClinicCode: "121", StartTime: instant},
	}}
	if _, err := p.Process(context.Background(), app, testItem); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(rec.entries))
	}
	date := rec.entries[0].InsertionDate
	if date.Year() != 2024 || date.Month() != time.February || date.Day() != 1 {
		t.Fatalf("entry dated %s, want 2024-02-01", date)
	}
	if !model.MonthOf(instant.In(cph)).Contains(date) {
		t.Fatalf("entry dated %s falls outside February's report", date)
	}
}

func TestProcess_BusinessFailures(t *testing.T) {
	cases := []struct {
		name   string
		app    *fakeApp
		kind   classify.Kind
		closed int
	}{
		{"not found", &fakeApp{openErr: clinic.ErrPatientNotFound}, classify.KindOpenFailure, 0},
		{"open mismatch", &fakeApp{openErr: clinic.ErrIDMismatch, openSession: &clinic.Session{ID: "s-x"}}, classify.KindIDMismatch, 1},
		{"open other", &fakeApp{openErr: errors.New("boom")}, classify.KindOpenFailure, 0},
		{"timeout with contact info", &fakeApp{openErr: clinic.ErrTimeout}, classify.KindOpenFailure, 0},
		{"no eligible", &fakeApp{appts: []model.Appointment{{ID: "x", Status: "Aflyst", ClinicCode: "121"}}}, classify.KindNoEligibleAppointment, 1},
		{"save warning", &fakeApp{appts: []model.Appointment{eligible("a1", 1)}, setErr: clinic.ErrManualProcessingRequired}, classify.KindManualProcessingWarning, 1},
		{"set mismatch", &fakeApp{appts: []model.Appointment{eligible("a1", 1)}, setErr: clinic.ErrIDMismatch}, classify.KindIDMismatch, 1},
		{"set unknown", &fakeApp{appts: []model.Appointment{eligible("a1", 1)}, setErr: errors.New("ui glitch")}, classify.KindUnknown, 1},
		{"list fails", &fakeApp{listErr: errors.New("grid not found")}, classify.KindUnknown, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			out, err := newProcessor(rec).Process(context.Background(), tc.app, testItem)
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if out.Result != ManualListed || out.Kind != tc.kind {
				t.Fatalf("expected manual listed %s, got %+v", tc.kind, out)
			}
			if len(rec.entries) != 1 || rec.entries[0].Reason != classify.Reason(tc.kind) {
				t.Fatalf("expected one entry with reason %q, got %+v", classify.Reason(tc.kind), rec.entries)
			}
			if tc.app.closed != tc.closed {
				t.Fatalf("expected %d window closes, got %d", tc.closed, tc.app.closed)
			}
			if len(tc.app.setCalls) > 1 {
				t.Fatalf("at most one status change allowed, got %d", len(tc.app.setCalls))
			}
		})
	}
}

func TestProcess_MissingContactInfoIsUnrecoverable(t *testing.T) {
	app := &fakeApp{openErr: clinic.ErrTimeout, missingBanner: true}
	rec := &fakeRecorder{}

	_, err := newProcessor(rec).Process(context.Background(), app, testItem)
	var ue *UnrecoverableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnrecoverableError, got %v", err)
	}
	if !errors.Is(err, ErrMissingContactInfo) {
		t.Fatalf("expected ErrMissingContactInfo in chain, got %v", err)
	}
	if ue.Reason != classify.ReasonMissingContactInfo || ue.QueueReference != "ref-1" {
		t.Fatalf("unexpected error %+v", ue)
	}
	if len(rec.entries) != 0 {
		t.Fatal("missing contact info must not be manual-listed")
	}
	if app.finds != 1 {
		t.Fatalf("expected one banner lookup, got %d", app.finds)
	}
}

func TestProcess_BannerOnlyCheckedOnTimeout(t *testing.T) {
	app := &fakeApp{openErr: clinic.ErrPatientNotFound, missingBanner: true}
	rec := &fakeRecorder{}

	out, err := newProcessor(rec).Process(context.Background(), app, testItem)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Kind != classify.KindOpenFailure || app.finds != 0 {
		t.Fatalf("expected open failure without banner lookup, got %+v finds=%d", out, app.finds)
	}
}

func TestProcess_RecorderFailurePropagates(t *testing.T) {
	app := &fakeApp{openErr: clinic.ErrPatientNotFound}
	rec := &fakeRecorder{err: errors.New("db down")}

	_, err := newProcessor(rec).Process(context.Background(), app, testItem)
	if err == nil {
		t.Fatal("expected error")
	}
	var ue *UnrecoverableError
	if errors.As(err, &ue) {
		t.Fatal("store failures are system faults, not unrecoverable business errors")
	}
}
