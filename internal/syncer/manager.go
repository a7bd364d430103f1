package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sitesync/internal/domain"
	"sitesync/internal/events"
	"sitesync/internal/metrics"
	"sitesync/internal/models"
	"sitesync/internal/remote"

	"github.com/rs/zerolog"
)

// Manager drains the offline queue against the remote backend, one update
// at a time in enqueue order. A per-instance guard rejects re-entrant
// drains; it never aborts a pass already in flight.
type Manager struct {
	queue  domain.OfflineQueue
	client domain.MutationClient
	bus    domain.EventPublisher
	retry  RetryPolicy
	logger *zerolog.Logger

	guard sync.Mutex
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager builds a manager with sane backoff defaults.
func NewManager(queue domain.OfflineQueue, client domain.MutationClient, bus domain.EventPublisher, retry RetryPolicy, logger *zerolog.Logger) *Manager {
	if retry.InitialDelay == 0 {
		retry.InitialDelay = time.Second
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 3
	}

	return &Manager{
		queue:  queue,
		client: client,
		bus:    bus,
		retry:  retry,
		logger: logger,
		sleep:  sleepContext,
	}
}

// SyncQueue runs one drain pass. A call made while another pass is in
// flight returns the zero result immediately and mutates nothing. Failures
// are aggregated into the result, never returned as an error.
func (m *Manager) SyncQueue(ctx context.Context) domain.SyncResult {
	result := domain.SyncResult{Success: true, Errors: []domain.SyncError{}}

	if !m.guard.TryLock() {
		return result
	}
	defer m.guard.Unlock()

	if m.queue.Size() == 0 {
		if err := m.queue.SetSyncState(ctx, models.SyncStatusIdle, nil); err != nil {
			m.logger.Error().Err(err).Msg("persist idle state")
		}
		return result
	}

	now := time.Now()
	if err := m.queue.SetSyncState(ctx, models.SyncStatusSyncing, &now); err != nil {
		m.logger.Error().Err(err).Msg("persist syncing state")
	}

	// Strict FIFO over the snapshot taken at pass start; entries enqueued
	// mid-pass wait for the next one.
	for _, update := range m.queue.Snapshot().Updates {
		if ctx.Err() != nil {
			break
		}
		if m.processUpdate(ctx, update, &result) {
			break
		}
	}

	final := models.SyncStatusIdle
	if result.FailedCount > 0 {
		final = models.SyncStatusError
		result.Success = false
	}
	if err := m.queue.SetSyncState(ctx, final, nil); err != nil {
		m.logger.Error().Err(err).Msg("persist final sync state")
	}

	m.publishSyncEvent(result, final)
	return result
}

// processUpdate pushes one update, handling its classified failures. The
// return value reports whether the whole pass must stop (auth failure).
func (m *Manager) processUpdate(ctx context.Context, update models.QueuedUpdate, result *domain.SyncResult) bool {
	for {
		err := m.client.PushUpdate(ctx, remote.PushFromUpdate(update))
		if err == nil {
			if err := m.queue.Dequeue(ctx, update.ID); err != nil {
				m.logger.Error().Err(err).Str("update_id", update.ID).Msg("dequeue after sync")
			}
			result.SyncedCount++
			metrics.IncSynced()
			m.publishUpdateEvent(events.EventUpdateSynced, update, "")
			return false
		}

		var remoteErr *remote.Error
		if !errors.As(err, &remoteErr) {
			remoteErr = &remote.Error{Kind: remote.KindUnknown, Message: err.Error()}
		}

		switch remoteErr.Kind {
		case remote.KindConflict:
			// Server wins: drop the local edit silently, only count it.
			if err := m.queue.Dequeue(ctx, update.ID); err != nil {
				m.logger.Error().Err(err).Str("update_id", update.ID).Msg("dequeue after conflict")
			}
			result.ServerWinsCount++
			metrics.IncServerWins()
			m.publishUpdateEvent(events.EventUpdateConflict, update, remoteErr.Message)
			return false

		case remote.KindAuth:
			// Stale credentials fail every remaining entry identically:
			// purge the whole queue instead of grinding through it.
			m.logger.Warn().Str("update_id", update.ID).Msg("remote rejected credentials, clearing pending updates")
			if err := m.queue.Clear(ctx); err != nil {
				m.logger.Error().Err(err).Msg("clear queue after auth failure")
			}
			result.Errors = append(result.Errors, domain.SyncError{
				UpdateID: update.ID,
				Message:  fmt.Sprintf("authentication failed, pending updates cleared: %s", remoteErr.Message),
				Status:   remoteErr.Status,
			})
			return true

		case remote.KindTransient:
			count, incErr := m.queue.IncrementRetry(ctx, update.ID, remoteErr.Message)
			if incErr != nil {
				result.FailedCount++
				result.Errors = append(result.Errors, domain.SyncError{
					UpdateID: update.ID,
					Message:  fmt.Sprintf("retry bookkeeping failed: %v", incErr),
					Status:   remoteErr.Status,
				})
				return false
			}
			if !m.stillPending(update.ID) {
				// Retries exhausted; the update now sits in the failed list.
				result.FailedCount++
				metrics.IncFailed()
				result.Errors = append(result.Errors, domain.SyncError{
					UpdateID: update.ID,
					Message:  remoteErr.Message,
					Status:   remoteErr.Status,
				})
				return false
			}
			update.RetryCount = count
			if err := m.sleep(ctx, m.retry.NextDelay(count)); err != nil {
				result.FailedCount++
				result.Errors = append(result.Errors, domain.SyncError{
					UpdateID: update.ID,
					Message:  fmt.Sprintf("sync canceled during backoff: %v", err),
					Status:   remoteErr.Status,
				})
				return true
			}

		default:
			// Unclassified conditions fail without retry so the drain never
			// loops on them.
			result.FailedCount++
			metrics.IncFailed()
			result.Errors = append(result.Errors, domain.SyncError{
				UpdateID: update.ID,
				Message:  remoteErr.Message,
				Status:   remoteErr.Status,
			})
			return false
		}
	}
}

// RetrySync moves failed updates back into the queue and runs a drain pass.
func (m *Manager) RetrySync(ctx context.Context) (domain.SyncResult, error) {
	if err := m.queue.RetryFailed(ctx); err != nil {
		return domain.SyncResult{Errors: []domain.SyncError{}}, err
	}
	return m.SyncQueue(ctx), nil
}

// Status is a pure read of the persisted state.
func (m *Manager) Status() domain.SyncStatus {
	snap := m.queue.Snapshot()
	return domain.SyncStatus{
		Status:          snap.SyncStatus,
		PendingCount:    len(snap.Updates),
		FailedCount:     len(snap.FailedUpdates),
		LastSyncAttempt: snap.LastSyncAttempt,
	}
}

func (m *Manager) stillPending(id string) bool {
	for _, u := range m.queue.Snapshot().Updates {
		if u.ID == id {
			return true
		}
	}
	return false
}

func (m *Manager) publishUpdateEvent(eventType string, update models.QueuedUpdate, errMsg string) {
	if m.bus == nil {
		return
	}
	err := m.bus.PublishJSON(eventType, events.UpdateEventPayload{
		UpdateID:      update.ID,
		ComponentID:   update.ComponentID,
		MilestoneName: update.MilestoneName,
		RetryCount:    update.RetryCount,
		Error:         errMsg,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (m *Manager) publishSyncEvent(result domain.SyncResult, status string) {
	if m.bus == nil {
		return
	}
	err := m.bus.PublishJSON(events.EventSyncCompleted, events.SyncEventPayload{
		SyncedCount:     result.SyncedCount,
		FailedCount:     result.FailedCount,
		ServerWinsCount: result.ServerWinsCount,
		Status:          status,
	})
	if err != nil {
		m.logger.Error().Err(err).Msg("publish sync event error")
	}
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
