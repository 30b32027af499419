// Package processor runs one queue item through the clinic application and
// routes every business failure to the manual list.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/notifytriage/libs/otel"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/appointments"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/classify"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/clinic"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrMissingContactInfo = errors.New("patient has no contact information")

// UnrecoverableError is returned for an item that cannot even be put on the
// manual list. The batch stops on it.
type UnrecoverableError struct {
	QueueReference string
	Kind           classify.Kind
	Reason         string
	Err            error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("item %s: %s: %v", e.QueueReference, e.Reason, e.Err)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

type Result int

const (
	Resolved Result = iota + 1
	ManualListed
)

func (r Result) String() string {
	switch r {
	case Resolved:
		return "resolved"
	case ManualListed:
		return "manual_listed"
	default:
		return "unknown"
	}
}

// Outcome is what happened to one item. Kind and Reason are set only for
// ManualListed.
type Outcome struct {
	Result Result
	Kind   classify.Kind
	Reason string
	Cause  error
}

// Recorder persists manual list entries.
type Recorder interface {
	Insert(ctx context.Context, entry model.ManualListEntry) error
}

type Processor struct {
	selector appointments.Selector
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
	tracer   trace.Tracer
}

// Location is the clinic's time zone; manual list entries are dated on its
// calendar day, the same one reporting periods are cut in.
type Config struct {
	Selector appointments.Selector
	Now      func() time.Time
	Location *time.Location
}

func New(recorder Recorder, logger *slog.Logger, cfg Config) *Processor {
	if cfg.Selector == (appointments.Selector{}) {
		cfg.Selector = appointments.DefaultSelector()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		selector: cfg.Selector,
		recorder: recorder,
		logger:   logger,
		now:      cfg.Now,
		loc:      cfg.Location,
		tracer:   otelx.Tracer(),
	}
}

// Process handles item using app for its whole duration. It returns an error
// only for *UnrecoverableError or when the manual list cannot be written.
func (p *Processor) Process(ctx context.Context, app clinic.Application, item model.QueueItem) (Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "triage.process_item",
		trace.WithAttributes(attribute.String("triage.queue_reference", item.Reference)),
	)
	defer span.End()

	logger := p.logger.With("queue_reference", item.Reference)

	f, err := p.handlePatient(ctx, app, item, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unrecoverable")
		return Outcome{}, err
	}
	kind, cause := f.kind, f.cause
	if kind == classify.KindNone {
		span.SetAttributes(attribute.String("triage.result", Resolved.String()))
		logger.Info("appointment notified")
		return Outcome{Result: Resolved}, nil
	}

	reason := classify.Reason(kind)
	span.SetAttributes(
		attribute.String("triage.result", ManualListed.String()),
		attribute.String("triage.failure_kind", kind.String()),
	)
	logger.Info("adding patient to manual list", "kind", kind.String(), "reason", reason, "cause", errString(cause))

	entry := model.NewManualListEntry(item, reason, p.now().In(p.loc))
	if err := p.recorder.Insert(ctx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "manual list insert failed")
		return Outcome{}, fmt.Errorf("insert manual list entry for %s: %w", item.Reference, err)
	}
	return Outcome{Result: ManualListed, Kind: kind, Reason: reason, Cause: cause}, nil
}

// failure is a business failure of one item; kind is KindNone on success.
type failure struct {
	kind  classify.Kind
	cause error
}

// handlePatient opens the patient and notifies the selected appointment. The
// error is non-nil only for *UnrecoverableError.
func (p *Processor) handlePatient(ctx context.Context, app clinic.Application, item model.QueueItem, logger *slog.Logger) (failure, error) {
	id := item.NormalizedID()
	logger.Info("opening patient record")

	session, err := app.OpenPatient(ctx, id)
	if err != nil {
		if errors.Is(err, clinic.ErrTimeout) {
			missing, findErr := app.FindElement(ctx, clinic.LabelMissingContactInfo)
			if findErr != nil {
				logger.Warn("missing contact info check failed", "err", findErr)
			}
			if missing {
				return failure{}, &UnrecoverableError{
					QueueReference: item.Reference,
					Kind:           classify.KindMissingContactInfo,
					Reason:         classify.Reason(classify.KindMissingContactInfo),
					Err:            fmt.Errorf("%w: %v", ErrMissingContactInfo, err),
				}
			}
		}
		if session != nil {
			p.closeWindow(ctx, app, session, logger)
		}
		logger.Warn("patient record could not be opened", "err", err)
		return failure{kind: openFailureKind(err), cause: err}, nil
	}

	kind, cause := p.notify(ctx, app, session)
	if kind != classify.KindNone {
		p.closeWindow(ctx, app, session, logger)
	}
	return failure{kind: kind, cause: cause}, nil
}

func (p *Processor) notify(ctx context.Context, app clinic.Application, session *clinic.Session) (classify.Kind, error) {
	appts, err := app.ListAppointments(ctx, session)
	if err != nil {
		return transitionFailureKind(err), err
	}
	sel := p.selector.Select(appts)
	if !sel.OK() {
		return sel.Failure, sel.Err()
	}
	if err := app.SetStatus(ctx, session, sel.Appointment, p.selector.TerminalStatus, true); err != nil {
		return transitionFailureKind(err), err
	}
	return classify.KindNone, nil
}

func (p *Processor) closeWindow(ctx context.Context, app clinic.Application, session *clinic.Session, logger *slog.Logger) {
	logger.Info("closing patient window")
	if err := app.ClosePatientWindow(ctx, session); err != nil {
		logger.Warn("closing patient window failed", "err", err)
	}
}

func openFailureKind(err error) classify.Kind {
	switch {
	case errors.Is(err, clinic.ErrIDMismatch):
		return classify.KindIDMismatch
	default:
		return classify.KindOpenFailure
	}
}

func transitionFailureKind(err error) classify.Kind {
	switch {
	case errors.Is(err, clinic.ErrIDMismatch):
		return classify.KindIDMismatch
	case errors.Is(err, clinic.ErrManualProcessingRequired):
		return classify.KindManualProcessingWarning
	default:
		return classify.KindUnknown
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
