package models

const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

const (
	// MaxPendingUpdates hard cap on the pending queue; enqueue beyond it fails.
	MaxPendingUpdates = 50

	// MaxFailedUpdates cap on the dead-letter list; oldest entry is evicted past it.
	MaxFailedUpdates = 10

	// MaxRetryCount retries per update; an update whose retry count exceeds
	// this moves to the failed list.
	MaxRetryCount = 3

	// MinMilestoneValue / MaxMilestoneValue valid range for partial progress values.
	MinMilestoneValue = 0
	MaxMilestoneValue = 100

	// DefaultStorageKey key under which the queue snapshot is persisted.
	DefaultStorageKey = "sitesync:offline_queue"
)
