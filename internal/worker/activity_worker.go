package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"roadassist/internal/domain"
	"roadassist/internal/events"
	"roadassist/internal/metrics"
	"roadassist/internal/models"

	"github.com/rs/zerolog"
)

const drainTimeout = 5 * time.Second

// ActivityWorker records domain events into the activity log.
// Recording is best effort: failures are logged and counted, never returned to
// the operation that emitted the event.
type ActivityWorker struct {
	store  domain.ActivityStore
	stream domain.ActivityStream
	retry  RetryPolicy
	queue  chan *models.ActivityLog
	logger *zerolog.Logger
	wg     sync.WaitGroup
	sleep  func(ctx context.Context, d time.Duration) error

	// mu guards closed; sends to queue happen under the read lock.
	mu     sync.RWMutex
	closed bool
}

// NewActivityWorker builds a worker. stream may be nil.
func NewActivityWorker(store domain.ActivityStore, stream domain.ActivityStream, retry RetryPolicy, queueSize int, logger *zerolog.Logger) *ActivityWorker {
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = 5
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ActivityWorker{
		store:  store,
		stream: stream,
		retry:  retry,
		queue:  make(chan *models.ActivityLog, queueSize),
		logger: logger,
		sleep:  sleepContext,
	}
}

// Subscribe attaches the worker to every activity event of the bus.
func (w *ActivityWorker) Subscribe(bus *events.EventBus) {
	types := append([]string{}, events.RequestEvents...)
	types = append(types, events.EventMechanicLocationUpdate)
	bus.Subscribe(w.HandleEvent, types...)
}

// HandleEvent converts the event and enqueues it without blocking the publisher.
// Entries that do not fit in the queue, or arrive after shutdown, are dropped.
func (w *ActivityWorker) HandleEvent(event *events.Event) error {
	entry, err := activityFromEvent(event)
	if err != nil {
		w.logger.Warn().Err(err).Str("action", event.Type).Msg("activity: undecodable event")
		metrics.IncActivity("dropped")
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.drop(entry, "worker stopped")
		return nil
	}
	select {
	case w.queue <- entry:
	default:
		w.drop(entry, "queue full")
	}
	return nil
}

func (w *ActivityWorker) drop(entry *models.ActivityLog, reason string) {
	metrics.IncActivity("dropped")
	w.logger.Warn().
		Str("action", entry.Action).
		Str("request_id", entry.RequestID).
		Str("reason", reason).
		Msg("activity: entry dropped")
}

// Start launches the background loop; it returns immediately.
func (w *ActivityWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop waits for the loop to drain after its context is cancelled.
func (w *ActivityWorker) Stop() {
	w.wg.Wait()
}

// closeIntake stops HandleEvent from enqueuing; it waits for in-flight sends.
func (w *ActivityWorker) closeIntake() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func (w *ActivityWorker) run(ctx context.Context) {
	w.logger.Info().Msg("activity worker started")
	defer w.logger.Info().Msg("activity worker stopped")

	for {
		select {
		case entry := <-w.queue:
			w.record(ctx, entry)
		case <-ctx.Done():
			w.closeIntake()
			w.drain()
			return
		}
	}
}

func (w *ActivityWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case entry := <-w.queue:
			w.record(ctx, entry)
		default:
			return
		}
	}
}

func (w *ActivityWorker) record(ctx context.Context, entry *models.ActivityLog) {
	var err error
	for attempt := 1; attempt <= w.retry.MaxRetries; attempt++ {
		if err = w.store.CreateActivityLog(ctx, entry); err == nil {
			break
		}
		if attempt == w.retry.MaxRetries {
			break
		}
		metrics.IncActivity("retried")
		delay := w.retry.NextDelay(attempt)
		w.logger.Warn().Err(err).
			Str("action", entry.Action).
			Int("attempt", attempt).
			Dur("next_delay", delay).
			Msg("activity: persist failed, retrying")
		if sleepErr := w.sleep(ctx, delay); sleepErr != nil {
			err = errors.Join(err, sleepErr)
			break
		}
	}
	if err != nil {
		metrics.IncActivity("dropped")
		w.logger.Error().Err(err).
			Str("action", entry.Action).
			Str("request_id", entry.RequestID).
			Int64("user_id", entry.UserID).
			Msg("activity: giving up")
		return
	}
	metrics.IncActivity("recorded")

	if w.stream == nil {
		return
	}
	if err := w.stream.Append(ctx, entry); err != nil {
		w.logger.Warn().Err(err).Str("action", entry.Action).Msg("activity: stream mirror failed")
		return
	}
	metrics.IncActivity("mirrored")
}

type activityEnvelope struct {
	ActorID   int64  `json:"actor_id"`
	RequestID string `json:"request_id"`
}

func activityFromEvent(event *events.Event) (*models.ActivityLog, error) {
	if event == nil {
		return nil, errors.New("nil event")
	}
	var env activityEnvelope
	details := json.RawMessage("{}")
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &env); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		details = json.RawMessage(event.Payload)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &models.ActivityLog{
		UserID:    env.ActorID,
		Action:    event.Type,
		RequestID: env.RequestID,
		Details:   details,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
