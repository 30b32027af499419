// Package batch drives one triage run: it drains the work queue through the
// processor and, once drained, sends the period's manual list.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/notifytriage/libs/otel"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/clinic"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/metrics"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/outbox"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/processor"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/report"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/workqueue"
)

// SessionLockName is the lease held while a run drives the clinic application.
const SessionLockName = "clinic-session"

const kindInvalidData = "invalid_data"

type TxRunner interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type Queue interface {
	ClaimNext(ctx context.Context) (workqueue.Entry, bool, error)
	Complete(ctx context.Context, tx pgx.Tx, reference string, status workqueue.Status, message string) error
}

type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type ItemProcessor interface {
	Process(ctx context.Context, app clinic.Application, item model.QueueItem) (processor.Outcome, error)
}

type Gate interface {
	Check(ctx context.Context) error
}

type Reporter interface {
	Generate(ctx context.Context, p model.PeriodWindow) (report.Result, error)
}

// Lease is a held lock on the clinic session.
type Lease interface {
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// LockFunc acquires the clinic session lease.
type LockFunc func(ctx context.Context) (Lease, error)

type Runner struct {
	tx        TxRunner
	queue     Queue
	events    EventWriter
	processor ItemProcessor
	app       clinic.Application
	gate      Gate
	reporter  Reporter
	lock      LockFunc
	metrics   metrics.Recorder
	logger    *slog.Logger
	runID     string
	now       func() time.Time
}

type Deps struct {
	Tx        TxRunner
	Queue     Queue
	Events    EventWriter
	Processor ItemProcessor
	App       clinic.Application
	Gate      Gate
	Reporter  Reporter
}

type Config struct {
	Lock    LockFunc
	Metrics metrics.Recorder
	RunID   string
	Now     func() time.Time
}

func New(deps Deps, logger *slog.Logger, cfg Config) *Runner {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		tx:        deps.Tx,
		queue:     deps.Queue,
		events:    deps.Events,
		processor: deps.Processor,
		app:       deps.App,
		gate:      deps.Gate,
		reporter:  deps.Reporter,
		lock:      cfg.Lock,
		metrics:   cfg.Metrics,
		logger:    logger.With("run_id", cfg.RunID),
		runID:     cfg.RunID,
		now:       cfg.Now,
	}
}

func (r *Runner) RunID() string {
	return r.runID
}

// Summary counts what a Process call did.
type Summary struct {
	Resolved     int
	ManualListed int
	Rejected     int
}

func (s Summary) Total() int {
	return s.Resolved + s.ManualListed + s.Rejected
}

// Process drains the queue. It stops early on an unrecoverable item or a
// system fault and returns the error; items already completed stay completed.
func (r *Runner) Process(ctx context.Context) (summary Summary, err error) {
	lease, err := r.acquire(ctx)
	if err != nil {
		return summary, err
	}
	if lease != nil {
		defer func() {
			if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
				r.logger.Warn("release clinic session lock failed", "err", relErr)
			}
		}()
	}

	r.logger.Info("processing queue")
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		entry, ok, err := r.queue.ClaimNext(ctx)
		if err != nil {
			return summary, fmt.Errorf("claim next item: %w", err)
		}
		if !ok {
			break
		}

		if err := r.processEntry(ctx, entry, &summary); err != nil {
			return summary, err
		}

		if lease != nil {
			if err := lease.Refresh(ctx); err != nil {
				return summary, fmt.Errorf("refresh clinic session lock: %w", err)
			}
		}
	}

	r.logger.Info("queue drained",
		"resolved", summary.Resolved,
		"manual_listed", summary.ManualListed,
		"rejected", summary.Rejected,
	)
	return summary, nil
}

func (r *Runner) acquire(ctx context.Context) (Lease, error) {
	if r.lock == nil {
		r.logger.Warn("clinic session lock disabled (no redis configured)")
		return nil, nil
	}
	lease, err := r.lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire clinic session lock: %w", err)
	}
	return lease, nil
}

type itemEvent struct {
	Reference   string    `json:"reference"`
	Result      string    `json:"result"`
	Kind        string    `json:"kind,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (r *Runner) processEntry(ctx context.Context, entry workqueue.Entry, summary *Summary) error {
	ctx = otelx.ContextWithTraceContext(ctx, entry.Traceparent, entry.Tracestate)
	logger := r.logger.With("queue_reference", entry.Reference)
	started := r.now()

	item, err := model.ParseQueueItem(entry.Reference, entry.Data)
	if err != nil {
		logger.Error("queue item rejected", "err", err)
		if err := r.complete(ctx, entry.Reference, workqueue.StatusFailed, err.Error(), nil); err != nil {
			return err
		}
		summary.Rejected++
		r.metrics.RecordItem("rejected", kindInvalidData, r.now().Sub(started))
		return nil
	}

	outcome, err := r.processor.Process(ctx, r.app, item)
	var unrecoverable *processor.UnrecoverableError
	if errors.As(err, &unrecoverable) {
		logger.Error("unrecoverable item, stopping run", "kind", unrecoverable.Kind.String(), "err", err)
		evt, evtErr := r.itemEvent(outbox.EventItemEscalated, itemEvent{
			Reference:   item.Reference,
			Result:      "escalated",
			Kind:        unrecoverable.Kind.String(),
			Reason:      unrecoverable.Reason,
			ProcessedAt: r.now(),
		})
		if evtErr != nil {
			return evtErr
		}
		if cErr := r.complete(ctx, item.Reference, workqueue.StatusFailed, unrecoverable.Reason, &evt); cErr != nil {
			return errors.Join(err, cErr)
		}
		r.metrics.RecordEscalation(unrecoverable.Kind.String())
		return err
	}
	if err != nil {
		return err
	}

	status := workqueue.StatusDone
	eventType := outbox.EventItemAutomated
	message := ""
	if outcome.Result == processor.ManualListed {
		status = workqueue.StatusFailed
		eventType = outbox.EventItemManualListed
		message = outcome.Reason
	}
	evt, err := r.itemEvent(eventType, itemEvent{
		Reference:   item.Reference,
		Result:      outcome.Result.String(),
		Kind:        kindLabel(outcome),
		Reason:      outcome.Reason,
		ProcessedAt: r.now(),
	})
	if err != nil {
		return err
	}
	if err := r.complete(ctx, item.Reference, status, message, &evt); err != nil {
		return err
	}

	switch outcome.Result {
	case processor.Resolved:
		summary.Resolved++
	case processor.ManualListed:
		summary.ManualListed++
	}
	r.metrics.RecordItem(outcome.Result.String(), outcome.Kind.String(), r.now().Sub(started))
	return nil
}

func kindLabel(o processor.Outcome) string {
	if o.Result != processor.ManualListed {
		return ""
	}
	return o.Kind.String()
}

func (r *Runner) itemEvent(eventType string, payload itemEvent) (outbox.Event, error) {
	evt, err := outbox.NewEvent("workqueue_item", payload.Reference, eventType, r.runID, payload)
	if err != nil {
		return outbox.Event{}, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return evt, nil
}

// complete closes the item and writes evt, when given, in one transaction.
func (r *Runner) complete(ctx context.Context, reference string, status workqueue.Status, message string, evt *outbox.Event) error {
	err := r.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := r.queue.Complete(ctx, tx, reference, status, message); err != nil {
			return err
		}
		if evt == nil {
			return nil
		}
		return r.events.Insert(ctx, tx, *evt)
	})
	if err != nil {
		return fmt.Errorf("complete item %s: %w", reference, err)
	}
	return nil
}

type reportEvent struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	FileName    string `json:"file_name"`
	Subject     string `json:"subject"`
	Rows        int    `json:"rows"`
}

// Finalize sends the manual list for p once the queue holds no new or
// in-progress items. It returns *finalize.QueueNotEmptyError otherwise and
// sends nothing.
func (r *Runner) Finalize(ctx context.Context, p model.PeriodWindow) (report.Result, error) {
	if err := r.gate.Check(ctx); err != nil {
		return report.Result{}, err
	}

	start, end := p.ISO()
	r.logger.Info("queue drained, creating manual list", "period_start", start, "period_end", end)

	res, err := r.reporter.Generate(ctx, p)
	if err != nil {
		return report.Result{}, fmt.Errorf("generate manual list: %w", err)
	}
	r.metrics.RecordReport(res.Rows)

	evt, err := outbox.NewEvent("manual_list", start+"_"+end, outbox.EventReportSent, r.runID, reportEvent{
		PeriodStart: start,
		PeriodEnd:   end,
		FileName:    res.FileName,
		Subject:     res.Subject,
		Rows:        res.Rows,
	})
	if err != nil {
		return res, fmt.Errorf("encode %s event: %w", outbox.EventReportSent, err)
	}
	if err := r.tx.InTx(ctx, func(tx pgx.Tx) error {
		return r.events.Insert(ctx, tx, evt)
	}); err != nil {
		// The mail is already out; the event is informational.
		r.logger.Error("record report event failed", "err", err)
	}
	return res, nil
}
