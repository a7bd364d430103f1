package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sitesync/internal/events"
	"sitesync/internal/metrics"
	"sitesync/internal/models"
	"sitesync/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull enqueue rejected because the pending list is at capacity.
	ErrQueueFull = errors.New("offline queue is full")

	// ErrValueOutOfRange enqueue rejected because a partial value is outside 0-100.
	ErrValueOutOfRange = errors.New("milestone value out of range")

	// ErrUpdateNotFound the referenced update is not in the pending list.
	ErrUpdateNotFound = errors.New("queued update not found")
)

// Queue is the offline mutation queue: an in-memory copy of the persisted
// snapshot plus the store it is written back to. Every mutation is a full
// read-modify-write; the in-memory state only advances after a successful
// save, so a failed save leaves it at the last durable snapshot.
type Queue struct {
	mu     sync.Mutex
	snap   models.QueueSnapshot
	store  store.KeyValueStore
	bus    *events.EventBus
	logger *zerolog.Logger
	now    func() time.Time
}

// Init loads the persisted snapshot. Missing or unparseable data yields a
// fresh idle queue; Init never fails on bad persisted state.
func Init(ctx context.Context, kv store.KeyValueStore, bus *events.EventBus, logger *zerolog.Logger) *Queue {
	q := &Queue{
		snap:   models.NewQueueSnapshot(),
		store:  kv,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}

	data, err := kv.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("queue snapshot load failed, starting empty")
		return q
	}
	if data == nil {
		return q
	}

	var snap models.QueueSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warn().Err(err).Msg("queue snapshot corrupt, starting empty")
		return q
	}
	if snap.Updates == nil {
		snap.Updates = []models.QueuedUpdate{}
	}
	if snap.FailedUpdates == nil {
		snap.FailedUpdates = []models.FailedUpdate{}
	}
	q.snap = snap
	metrics.SetQueueDepth(len(snap.Updates))
	return q
}

// Enqueue validates and stores one milestone edit. A payload for a
// (component, milestone) pair already in the queue updates that entry's
// value and timestamp in place; its id, retry count and position are kept.
func (q *Queue) Enqueue(ctx context.Context, payload models.UpdatePayload) (models.QueuedUpdate, error) {
	if err := payload.Value.Validate(); err != nil {
		return models.QueuedUpdate{}, fmt.Errorf("%w: %s", ErrValueOutOfRange, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	next := q.snap.Clone()
	nowMillis := models.EpochMillis(q.now())

	for i := range next.Updates {
		u := &next.Updates[i]
		if u.ComponentID == payload.ComponentID && u.MilestoneName == payload.MilestoneName {
			u.Value = payload.Value
			u.Timestamp = nowMillis
			if err := q.persist(ctx, next); err != nil {
				return models.QueuedUpdate{}, err
			}
			return *u, nil
		}
	}

	if len(next.Updates) >= models.MaxPendingUpdates {
		return models.QueuedUpdate{}, ErrQueueFull
	}

	update := models.QueuedUpdate{
		ID:            uuid.NewString(),
		ComponentID:   payload.ComponentID,
		MilestoneName: payload.MilestoneName,
		Value:         payload.Value,
		Timestamp:     nowMillis,
		RetryCount:    0,
		UserID:        payload.UserID,
	}
	next.Updates = append(next.Updates, update)

	if err := q.persist(ctx, next); err != nil {
		return models.QueuedUpdate{}, err
	}

	q.publishUpdateEvent(events.EventUpdateEnqueued, update, "")
	return update, nil
}

// Dequeue removes the update with the given id. A missing id is a no-op.
func (q *Queue) Dequeue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := q.snap.Clone()
	idx := findUpdate(next.Updates, id)
	if idx < 0 {
		return nil
	}
	next.Updates = append(next.Updates[:idx], next.Updates[idx+1:]...)
	return q.persist(ctx, next)
}

// IncrementRetry bumps the retry count for an update and returns the new
// count. When the count exceeds the retry cap the update moves to the
// failed list (oldest failed entry evicted past the cap) with errMsg
// recorded on it.
func (q *Queue) IncrementRetry(ctx context.Context, id, errMsg string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := q.snap.Clone()
	idx := findUpdate(next.Updates, id)
	if idx < 0 {
		return 0, ErrUpdateNotFound
	}

	next.Updates[idx].RetryCount++
	count := next.Updates[idx].RetryCount

	if count > models.MaxRetryCount {
		update := next.Updates[idx]
		next.Updates = append(next.Updates[:idx], next.Updates[idx+1:]...)
		next.FailedUpdates = append(next.FailedUpdates, models.FailedUpdate{
			Update:       update,
			ErrorMessage: errMsg,
			FailedAt:     models.EpochMillis(q.now()),
		})
		if len(next.FailedUpdates) > models.MaxFailedUpdates {
			next.FailedUpdates = next.FailedUpdates[1:]
		}
		if err := q.persist(ctx, next); err != nil {
			return count, err
		}
		q.publishUpdateEvent(events.EventUpdateExhausted, update, errMsg)
		return count, nil
	}

	return count, q.persist(ctx, next)
}

// Clear empties the pending list and resets the status to idle. The failed
// list is left alone; it stays inspectable until manually retried.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := q.snap.Clone()
	next.Updates = []models.QueuedUpdate{}
	next.SyncStatus = models.SyncStatusIdle
	if err := q.persist(ctx, next); err != nil {
		return err
	}
	_ = q.bus.PublishJSON(events.EventQueueCleared, events.SyncEventPayload{Status: models.SyncStatusIdle})
	return nil
}

// RetryFailed moves every failed update back into the pending list with its
// retry count reset, and empties the failed list.
func (q *Queue) RetryFailed(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := q.snap.Clone()
	for _, failed := range next.FailedUpdates {
		update := failed.Update
		update.RetryCount = 0
		next.Updates = append(next.Updates, update)
	}
	next.FailedUpdates = []models.FailedUpdate{}
	next.SyncStatus = models.SyncStatusIdle
	return q.persist(ctx, next)
}

// Size returns the number of pending updates.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.snap.Updates)
}

// Snapshot returns a copy of the current aggregate for reads.
func (q *Queue) Snapshot() models.QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snap.Clone()
}

// SetSyncState records a sync status transition and, when lastAttempt is
// non-nil, the attempt timestamp.
func (q *Queue) SetSyncState(ctx context.Context, status string, lastAttempt *time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := q.snap.Clone()
	next.SyncStatus = status
	if lastAttempt != nil {
		ts := models.EpochMillis(*lastAttempt)
		next.LastSyncAttempt = &ts
	}
	return q.persist(ctx, next)
}

// Save persists the current snapshot as-is.
func (q *Queue) Save(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persist(ctx, q.snap.Clone())
}

// persist writes the candidate snapshot and commits it to memory only on
// success. Callers hold q.mu.
func (q *Queue) persist(ctx context.Context, next models.QueueSnapshot) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode queue snapshot: %w", err)
	}
	if err := q.store.Save(ctx, data); err != nil {
		if errors.Is(err, store.ErrStorageFull) {
			q.logger.Error().Err(err).Msg("queue snapshot save rejected: storage full")
		}
		return err
	}
	q.snap = next
	metrics.SetQueueDepth(len(next.Updates))
	return nil
}

func (q *Queue) publishUpdateEvent(eventType string, update models.QueuedUpdate, errMsg string) {
	err := q.bus.PublishJSON(eventType, events.UpdateEventPayload{
		UpdateID:      update.ID,
		ComponentID:   update.ComponentID,
		MilestoneName: update.MilestoneName,
		RetryCount:    update.RetryCount,
		Error:         errMsg,
	})
	if err != nil {
		q.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func findUpdate(updates []models.QueuedUpdate, id string) int {
	for i := range updates {
		if updates[i].ID == id {
			return i
		}
	}
	return -1
}
