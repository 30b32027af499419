package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/notifytriage/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidMessage marks a message that can never be handled. It is
// committed and skipped instead of retried.
var ErrInvalidMessage = errors.New("invalid message")

// Handler applies msg inside tx, the transaction its inbox record is in.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

type TxRunner interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Inbox records consumed event ids; Record reports false for a duplicate.
type Inbox interface {
	Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error)
}

type Consumer struct {
	reader     *kafka.Reader
	logger     *slog.Logger
	tx         TxRunner
	inbox      Inbox
	handler    Handler
	retryDelay time.Duration
}

type Config struct {
	Brokers    string
	GroupID    string
	Topic      string
	RetryDelay time.Duration
}

func New(logger *slog.Logger, tx TxRunner, inboxRepo Inbox, cfg Config, handler Handler) *Consumer {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:     reader,
		logger:     logger,
		tx:         tx,
		inbox:      inboxRepo,
		handler:    handler,
		retryDelay: cfg.RetryDelay,
	}
}

// Run commits each message's offset only after it was handled or rejected.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		if !c.deliver(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka commit failed", "err", err, "offset", msg.Offset)
		}
	}
}

// deliver retries msg until it is handled or rejected as invalid. It
// returns false when ctx ends first.
func (c *Consumer) deliver(ctx context.Context, msg kafka.Message) bool {
	for {
		err := c.handle(ctx, msg)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrInvalidMessage) {
			c.logger.Error("message rejected", "err", err, "topic", msg.Topic, "offset", msg.Offset)
			return true
		}
		c.logger.Error("handler error, retrying", "err", err, "offset", msg.Offset)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)

	err := c.tx.InTx(ctxSpan, func(tx pgx.Tx) error {
		ok, err := c.inbox.Record(ctxSpan, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
		return c.handler(ctxSpan, tx, msg)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handle failed")
		return err
	}
	return nil
}
