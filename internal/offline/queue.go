package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrItemNotFound = errors.New("queue item not found")

// Connectivity reports whether the server can currently be reached.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// ProcessResult summarizes one replay pass.
type ProcessResult struct {
	Replayed int
	Failed   int
	Dead     int
}

// Queue is a durable store-and-forward queue of remote operations. Every state change is saved
// before the method that made it returns.
type Queue struct {
	store      ItemStore
	remote     Remote
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	items []Item

	// serializes replay passes
	processing sync.Mutex
}

// NewQueue builds a queue. maxRetries <= 0 means failed items are retried forever.
func NewQueue(store ItemStore, remote Remote, maxRetries int, logger *zap.Logger) *Queue {
	return &Queue{
		store:      store,
		remote:     remote,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// Open loads the stored queue. Items left PROCESSING by an interrupted run are reset to PENDING.
func (q *Queue) Open(ctx context.Context) error {
	items, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	reset := 0
	for i := range items {
		if items[i].Status == StatusProcessing {
			items[i].Status = StatusPending
			reset++
		}
	}
	q.items = items

	if reset > 0 {
		if err := q.persistLocked(ctx); err != nil {
			return err
		}
		q.logger.Info("interrupted queue items reset", zap.Int("count", reset))
	}
	return nil
}

// Enqueue appends a PENDING item for kind with payload encoded as JSON.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, payload any) (Item, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Item{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}

	item := Item{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: q.now().UTC(),
		Status:     StatusPending,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	if err := q.persistLocked(ctx); err != nil {
		q.items = q.items[:len(q.items)-1]
		return Item{}, err
	}

	q.logger.Info("operation queued", zap.String("item_id", item.ID), zap.String("kind", string(kind)))
	return item, nil
}

// Items returns a copy of the queue in enqueue order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Revive returns a DEAD or FAILED item to PENDING so the next pass replays it.
func (q *Queue) Revive(ctx context.Context, id string) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.indexLocked(id)
	if index < 0 {
		return Item{}, ErrItemNotFound
	}
	q.items[index].Status = StatusPending
	if err := q.persistLocked(ctx); err != nil {
		return Item{}, err
	}
	return q.items[index], nil
}

// ProcessPending replays every eligible item once, in enqueue order. A failed save does not stop
// the pass; the affected item stays eligible and the save errors are returned together.
func (q *Queue) ProcessPending(ctx context.Context) (ProcessResult, error) {
	q.processing.Lock()
	defer q.processing.Unlock()

	var (
		result ProcessResult
		errs   []error
	)
	for _, id := range q.eligible() {
		if ctx.Err() != nil {
			return result, errors.Join(append(errs, ctx.Err())...)
		}

		item, err := q.transition(ctx, id, func(item *Item) { item.Status = StatusProcessing })
		if err != nil {
			errs = append(errs, err)
			continue
		}

		replayErr := q.replay(ctx, item)
		switch {
		case replayErr == nil:
			if err := q.remove(ctx, id); err != nil {
				// The remote side already applied it; a later pass replays it again.
				errs = append(errs, err)
				q.settle(ctx, id, func(item *Item) { item.Status = StatusPending })
				q.logger.Error("replayed operation could not be removed", zap.String("item_id", id), zap.Error(err))
				continue
			}
			result.Replayed++
			q.logger.Info("queued operation replayed", zap.String("item_id", id), zap.String("kind", string(item.Kind)))

		case ctx.Err() != nil:
			// Interrupted, not failed: the attempt does not count.
			if _, err := q.settle(context.WithoutCancel(ctx), id, func(item *Item) { item.Status = StatusPending }); err != nil {
				errs = append(errs, err)
			}
			return result, errors.Join(append(errs, ctx.Err())...)

		default:
			updated, err := q.settle(ctx, id, func(item *Item) { q.markFailed(item, replayErr) })
			if err != nil {
				errs = append(errs, err)
			}
			if updated.Status == StatusDead {
				result.Dead++
			} else {
				result.Failed++
			}
			q.logger.Warn(
				"queued operation failed",
				zap.String("item_id", id),
				zap.String("kind", string(item.Kind)),
				zap.String("status", string(updated.Status)),
				zap.Int("retry_count", updated.RetryCount),
				zap.Error(replayErr),
			)
		}
	}
	return result, errors.Join(errs...)
}

// Run processes the queue every interval while the server is reachable, until ctx is done.
func (q *Queue) Run(ctx context.Context, interval time.Duration, connectivity Connectivity) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if connectivity.Online(ctx) {
			result, err := q.ProcessPending(ctx)
			if err != nil && ctx.Err() == nil {
				q.logger.Error("queue pass failed", zap.Error(err))
			} else if result.Replayed+result.Failed+result.Dead > 0 {
				q.logger.Info(
					"queue pass finished",
					zap.Int("replayed", result.Replayed),
					zap.Int("failed", result.Failed),
					zap.Int("dead", result.Dead),
				)
			}
		} else {
			q.logger.Debug("server unreachable, queue pass skipped")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (q *Queue) replay(ctx context.Context, item Item) error {
	switch item.Kind {
	case KindLookup:
		var payload LookupPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return errMalformedPayload(err)
		}
		_, err := q.remote.LookupProduct(ctx, payload.Barcode)
		return err
	case KindAlertAck:
		var payload AlertAckPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return errMalformedPayload(err)
		}
		return q.remote.MarkAlertRead(ctx, payload.AlertID)
	case KindPriceUpdate:
		var payload PriceUpdatePayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return errMalformedPayload(err)
		}
		return q.remote.UpdatePrice(ctx, payload.ProductID, payload.Price)
	default:
		return &StatusError{Status: http.StatusBadRequest, Message: fmt.Sprintf("unknown kind %q", item.Kind)}
	}
}

func errMalformedPayload(err error) error {
	return &StatusError{Status: http.StatusBadRequest, Message: "malformed payload: " + err.Error()}
}

func (q *Queue) markFailed(item *Item, err error) {
	item.RetryCount++
	item.LastError = err.Error()
	if rejected(err) || (q.maxRetries > 0 && item.RetryCount >= q.maxRetries) {
		item.Status = StatusDead
		return
	}
	item.Status = StatusFailed
}

// rejected reports a client error the server will repeat on every replay.
func rejected(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Status >= 400 && statusErr.Status < 500 && statusErr.Status != http.StatusTooManyRequests
}

func (q *Queue) eligible() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for _, item := range q.items {
		if item.Status == StatusPending || item.Status == StatusFailed {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

func (q *Queue) transition(ctx context.Context, id string, change func(*Item)) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.indexLocked(id)
	if index < 0 {
		return Item{}, ErrItemNotFound
	}
	previous := q.items[index]
	change(&q.items[index])
	if err := q.persistLocked(ctx); err != nil {
		q.items[index] = previous
		return Item{}, err
	}
	return q.items[index], nil
}

// settle applies change to an item leaving PROCESSING. The change is kept in memory even when the
// save fails; the stored copy is still PROCESSING and Open resets it to PENDING.
func (q *Queue) settle(ctx context.Context, id string, change func(*Item)) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.indexLocked(id)
	if index < 0 {
		return Item{}, ErrItemNotFound
	}
	change(&q.items[index])
	return q.items[index], q.persistLocked(ctx)
}

func (q *Queue) remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.indexLocked(id)
	if index < 0 {
		return nil
	}
	removed := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)
	if err := q.persistLocked(ctx); err != nil {
		q.items = append(q.items[:index], append([]Item{removed}, q.items[index:]...)...)
		return err
	}
	return nil
}

func (q *Queue) indexLocked(id string) int {
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) persistLocked(ctx context.Context) error {
	snapshot := make([]Item, len(q.items))
	copy(snapshot, q.items)
	if err := q.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	return nil
}
