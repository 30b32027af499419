// Package finalize guards the end-of-period report: it only runs against a
// queue with no outstanding work.
package finalize

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/workqueue"
)

// QueueNotEmptyError is returned when items are still new or in progress.
type QueueNotEmptyError struct {
	Unresolved int
	Total      int
}

func (e *QueueNotEmptyError) Error() string {
	return fmt.Sprintf("queue not empty: %d of %d items unresolved", e.Unresolved, e.Total)
}

type Snapshotter interface {
	Snapshot(ctx context.Context) (map[string]workqueue.Entry, error)
}

type Gate struct {
	queue Snapshotter
}

func NewGate(queue Snapshotter) *Gate {
	return &Gate{queue: queue}
}

func (g *Gate) Check(ctx context.Context) error {
	snapshot, err := g.queue.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("queue snapshot: %w", err)
	}
	return CheckDrained(snapshot)
}

// CheckDrained returns *QueueNotEmptyError iff any entry is unresolved.
func CheckDrained(snapshot map[string]workqueue.Entry) error {
	unresolved := 0
	for _, e := range snapshot {
		if e.Status.Unresolved() {
			unresolved++
		}
	}
	if unresolved > 0 {
		return &QueueNotEmptyError{Unresolved: unresolved, Total: len(snapshot)}
	}
	return nil
}
