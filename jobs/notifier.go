package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/documents"
)

// Enqueuer submits tasks; *asynq.Client implements it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// LowStockNotifier queues a low-stock scan for every location a confirmed
// document drew stock from. Scans for the same location within the dedup
// window collapse into one task.
type LowStockNotifier struct {
	client Enqueuer
	window time.Duration
	now    func() time.Time
}

// NewLowStockNotifier constructs the notifier. A zero window defaults to one minute.
func NewLowStockNotifier(client Enqueuer, window time.Duration) *LowStockNotifier {
	if window <= 0 {
		window = time.Minute
	}
	return &LowStockNotifier{client: client, window: window, now: func() time.Time { return time.Now().UTC() }}
}

// DocumentConfirmed implements documents.ConfirmHook.
func (n *LowStockNotifier) DocumentConfirmed(ctx context.Context, doc documents.Document) error {
	var errs []error
	for _, locationID := range drainedLocations(doc) {
		task, err := NewLowStockScanTask(LowStockScanPayload{
			LocationID: locationID,
			Trigger:    doc.Number,
			RequestAt:  n.now(),
		})
		if err != nil {
			return err
		}
		_, err = n.client.EnqueueContext(ctx, task,
			asynq.Queue(QueueDefault),
			asynq.TaskID(fmt.Sprintf("low-stock:%d:%d", locationID, n.now().Truncate(n.window).Unix())))
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// drainedLocations returns the locations whose stock can have dropped.
func drainedLocations(doc documents.Document) []int64 {
	switch doc.Type {
	case documents.TypeWriteoff, documents.TypeStocktaking:
		return []int64{doc.LocationID}
	case documents.TypeTransfer:
		return []int64{doc.FromLocationID}
	default:
		return nil
	}
}
