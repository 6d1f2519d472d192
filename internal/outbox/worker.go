package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vtrack/internal/platform/metrics"
	txcontext "vtrack/pkg/platform/tx"
)

const defaultBatchSize = 100

// Store is the relay's view of the outbox table.
type Store interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher delivers one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Worker relays pending outbox rows to a Publisher on a fixed interval.
// Delivery is at-least-once: a row is marked only after its publish succeeds.
type Worker struct {
	store     Store
	publisher Publisher
	tx        txcontext.Runner
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type WorkerOption func(*Worker)

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewWorker(store Store, publisher Publisher, tx txcontext.Runner, interval time.Duration, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:     store,
		publisher: publisher,
		tx:        tx,
		interval:  interval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.RelayOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes a single batch and returns how many rows were marked.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	var published int
	err := w.tx.RunInTx(ctx, func(ctx context.Context) error {
		events, err := w.store.FetchUnpublished(ctx, w.batchSize)
		if err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(events))
		var publishErr error
		for _, evt := range events {
			if err := w.publisher.Publish(ctx, evt); err != nil {
				publishErr = err
				if w.metrics != nil {
					w.metrics.IncrementOutboxFailures()
				}
				break
			}
			ids = append(ids, evt.ID)
		}

		if err := w.store.MarkPublished(ctx, ids, time.Now()); err != nil {
			return err
		}
		published = len(ids)
		if publishErr != nil {
			w.logger.WarnContext(ctx, "outbox publish interrupted",
				"error", publishErr,
				"published", published,
				"pending", len(events)-published,
			)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if w.metrics != nil && published > 0 {
		w.metrics.IncrementOutboxPublished(published)
	}
	return published, nil
}

// ErrPublisherClosed is returned by publishers after Close.
var ErrPublisherClosed = errors.New("outbox: publisher closed")
