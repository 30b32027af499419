package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// TopicItemRequested carries queue items; the message key is the item
// reference and the value is the item data.
const TopicItemRequested = "triage.item.requested.v1"

var ErrMissingReference = fmt.Errorf("%w: queue item message has no key", ErrInvalidMessage)

type Enqueuer interface {
	Enqueue(ctx context.Context, tx pgx.Tx, reference string, data []byte) (bool, error)
}

// IngestHandler validates a queue item message and adds it to the work queue.
func IngestHandler(queue Enqueuer, logger *slog.Logger) Handler {
	return func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		reference := string(msg.Key)
		if reference == "" {
			return ErrMissingReference
		}
		if _, err := model.ParseQueueItem(reference, msg.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}

		added, err := queue.Enqueue(ctx, tx, reference, msg.Value)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", reference, err)
		}
		if !added {
			logger.Info("queue item already present", "reference", reference)
			return nil
		}
		logger.Info("queue item enqueued", "reference", reference)
		return nil
	}
}
