package models

import "time"

// QueuedUpdate is one pending milestone edit awaiting reconciliation with
// the remote backend. Timestamps are epoch milliseconds to match the
// persisted snapshot layout.
type QueuedUpdate struct {
	ID            string         `json:"id"`
	ComponentID   string         `json:"component_id"`
	MilestoneName string         `json:"milestone_name"`
	Value         MilestoneValue `json:"value"`
	Timestamp     int64          `json:"timestamp"`
	RetryCount    int            `json:"retry_count"`
	UserID        string         `json:"user_id"`
}

// FailedUpdate is a queued update whose retries are exhausted. It stays
// inspectable until manually retried or evicted.
type FailedUpdate struct {
	Update       QueuedUpdate `json:"update"`
	ErrorMessage string       `json:"error_message"`
	FailedAt     int64        `json:"failed_at"`
}

// QueueSnapshot is the whole persisted aggregate: one document under one
// storage key, rewritten in full after every mutation.
type QueueSnapshot struct {
	Updates         []QueuedUpdate `json:"updates"`
	LastSyncAttempt *int64         `json:"last_sync_attempt"`
	SyncStatus      string         `json:"sync_status"`
	FailedUpdates   []FailedUpdate `json:"failed_updates"`
}

// NewQueueSnapshot returns an empty idle snapshot.
func NewQueueSnapshot() QueueSnapshot {
	return QueueSnapshot{
		Updates:       []QueuedUpdate{},
		SyncStatus:    SyncStatusIdle,
		FailedUpdates: []FailedUpdate{},
	}
}

// Clone deep-copies the snapshot so callers can mutate a working copy and
// commit it only after a successful save.
func (s QueueSnapshot) Clone() QueueSnapshot {
	out := s
	out.Updates = append([]QueuedUpdate(nil), s.Updates...)
	out.FailedUpdates = append([]FailedUpdate(nil), s.FailedUpdates...)
	if s.LastSyncAttempt != nil {
		ts := *s.LastSyncAttempt
		out.LastSyncAttempt = &ts
	}
	return out
}

// EpochMillis converts a time to the snapshot's millisecond representation.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
