package domain

import (
	"context"
	"time"

	"sitesync/internal/models"
)

// OfflineQueue buffers milestone edits made while disconnected.
type OfflineQueue interface {
	Enqueue(ctx context.Context, payload models.UpdatePayload) (models.QueuedUpdate, error)
	Dequeue(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id, errMsg string) (int, error)
	Clear(ctx context.Context) error
	RetryFailed(ctx context.Context) error
	Size() int
	Snapshot() models.QueueSnapshot
	SetSyncState(ctx context.Context, status string, lastAttempt *time.Time) error
}

// MutationClient applies one milestone update to the remote backend.
type MutationClient interface {
	PushUpdate(ctx context.Context, push models.MilestonePush) error
}

// EventPublisher fans queue and sync events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncManager drains the offline queue against the remote.
type SyncManager interface {
	SyncQueue(ctx context.Context) SyncResult
	RetrySync(ctx context.Context) (SyncResult, error)
	Status() SyncStatus
}

// SyncError is one unresolved failure from a drain pass.
type SyncError struct {
	UpdateID string `json:"update_id"`
	Message  string `json:"message"`
	Status   int    `json:"status,omitempty"`
}

// SyncResult summarizes one drain pass. Failures never escape as a returned
// error; callers always get the complete picture of the pass.
type SyncResult struct {
	Success         bool        `json:"success"`
	SyncedCount     int         `json:"synced_count"`
	FailedCount     int         `json:"failed_count"`
	ServerWinsCount int         `json:"server_wins_count"`
	Errors          []SyncError `json:"errors"`
}

// SyncStatus is the read model for connectivity indicators.
type SyncStatus struct {
	Status          string `json:"status"`
	PendingCount    int    `json:"pending_count"`
	FailedCount     int    `json:"failed_count"`
	LastSyncAttempt *int64 `json:"last_sync_attempt"`
}
