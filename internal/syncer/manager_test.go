package syncer

import (
	"context"
	"os"
	"testing"
	"time"

	"sitesync/internal/events"
	"sitesync/internal/models"
	"sitesync/internal/queue"
	"sitesync/internal/remote"
	"sitesync/internal/store"

	"github.com/rs/zerolog"
)

type fakeClient struct {
	pushes []models.MilestonePush
	// errs are returned per call in order; once drained, err is returned.
	errs []error
	err  error
}

func (f *fakeClient) PushUpdate(ctx context.Context, push models.MilestonePush) error {
	f.pushes = append(f.pushes, push)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return f.err
}

func newTestManager(t *testing.T, client *fakeClient) (*Manager, *queue.Queue, *[]time.Duration) {
	t.Helper()
	logger := zerolog.New(os.Stdout)
	q := queue.Init(context.Background(), store.NewMemoryStore(), events.NewEventBus(), &logger)

	m := NewManager(q, client, events.NewEventBus(), RetryPolicy{}, &logger)
	var delays []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return m, q, &delays
}

func enqueue(t *testing.T, q *queue.Queue, component string, value models.MilestoneValue) models.QueuedUpdate {
	t.Helper()
	update, err := q.Enqueue(context.Background(), models.UpdatePayload{
		ComponentID:   component,
		MilestoneName: "erected",
		Value:         value,
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return update
}

func TestSyncQueueEmpty(t *testing.T) {
	m, q, _ := newTestManager(t, &fakeClient{})

	result := m.SyncQueue(context.Background())

	if !result.Success || result.SyncedCount != 0 || result.FailedCount != 0 || result.ServerWinsCount != 0 {
		t.Fatalf("expected zero result, got %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %d", len(result.Errors))
	}
	if got := q.Snapshot().SyncStatus; got != models.SyncStatusIdle {
		t.Fatalf("expected idle, got %s", got)
	}
}

func TestSyncQueueDrainsInOrder(t *testing.T) {
	client := &fakeClient{}
	m, q, _ := newTestManager(t, client)

	enqueue(t, q, "beam-x", models.BoolValue(true))
	enqueue(t, q, "beam-y", models.PercentValue(40))

	result := m.SyncQueue(context.Background())

	if result.SyncedCount != 2 {
		t.Fatalf("expected synced_count=2, got %d", result.SyncedCount)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if q.Size() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Size())
	}
	if len(client.pushes) != 2 {
		t.Fatalf("expected 2 pushes, got %d", len(client.pushes))
	}
	if client.pushes[0].ComponentID != "beam-x" || client.pushes[1].ComponentID != "beam-y" {
		t.Fatalf("expected FIFO order, got %s then %s", client.pushes[0].ComponentID, client.pushes[1].ComponentID)
	}
	if got := q.Snapshot().SyncStatus; got != models.SyncStatusIdle {
		t.Fatalf("expected idle after clean pass, got %s", got)
	}
	if q.Snapshot().LastSyncAttempt == nil {
		t.Fatalf("expected last_sync_attempt recorded")
	}
}

func TestSyncQueueBooleanWireValues(t *testing.T) {
	client := &fakeClient{}
	m, q, _ := newTestManager(t, client)

	enqueue(t, q, "beam-true", models.BoolValue(true))
	enqueue(t, q, "beam-false", models.BoolValue(false))
	enqueue(t, q, "beam-pct", models.PercentValue(62.5))

	m.SyncQueue(context.Background())

	if client.pushes[0].NewValue != 1 {
		t.Fatalf("expected true transmitted as 1, got %g", client.pushes[0].NewValue)
	}
	if client.pushes[1].NewValue != 0 {
		t.Fatalf("expected false transmitted as 0, got %g", client.pushes[1].NewValue)
	}
	if client.pushes[2].NewValue != 62.5 {
		t.Fatalf("expected percent passthrough, got %g", client.pushes[2].NewValue)
	}

	// Stored representation keeps the original shape.
	update := enqueue(t, q, "beam-check", models.BoolValue(true))
	if !update.Value.IsBool() {
		t.Fatalf("expected stored value to remain boolean")
	}
}

func TestSyncQueueTransientExhaustsRetries(t *testing.T) {
	client := &fakeClient{err: &remote.Error{Kind: remote.KindTransient, Status: 500, Message: "server exploded"}}
	m, q, delays := newTestManager(t, client)

	enqueue(t, q, "beam-1", models.BoolValue(true))

	result := m.SyncQueue(context.Background())

	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.FailedCount != 1 {
		t.Fatalf("expected failed_count=1, got %d", result.FailedCount)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(result.Errors))
	}
	if result.Errors[0].Status != 500 || result.Errors[0].Message != "server exploded" {
		t.Fatalf("unexpected error entry: %+v", result.Errors[0])
	}

	// Initial attempt plus 3 inline retries.
	if len(client.pushes) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(client.pushes))
	}

	// Backoff is 3^retryCount seconds before each retry.
	want := []time.Duration{3 * time.Second, 9 * time.Second, 27 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d backoff delays, got %d", len(want), len(*delays))
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Fatalf("delay %d: expected %s, got %s", i, d, (*delays)[i])
		}
	}

	snap := q.Snapshot()
	if len(snap.Updates) != 0 {
		t.Fatalf("expected update moved out of pending, got %d", len(snap.Updates))
	}
	if len(snap.FailedUpdates) != 1 {
		t.Fatalf("expected update in failed list, got %d", len(snap.FailedUpdates))
	}
	if snap.SyncStatus != models.SyncStatusError {
		t.Fatalf("expected error status, got %s", snap.SyncStatus)
	}
}

func TestSyncQueueTransientRecoversMidRetry(t *testing.T) {
	client := &fakeClient{errs: []error{
		&remote.Error{Kind: remote.KindTransient, Status: 500, Message: "blip"},
		&remote.Error{Kind: remote.KindTransient, Message: "network down"},
	}}
	m, q, delays := newTestManager(t, client)

	enqueue(t, q, "beam-1", models.BoolValue(true))

	result := m.SyncQueue(context.Background())

	if !result.Success || result.SyncedCount != 1 {
		t.Fatalf("expected recovery and sync, got %+v", result)
	}
	if len(client.pushes) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(client.pushes))
	}
	if len(*delays) != 2 {
		t.Fatalf("expected 2 backoff delays, got %d", len(*delays))
	}
	if q.Size() != 0 {
		t.Fatalf("expected empty queue")
	}
}

func TestSyncQueueConflictServerWins(t *testing.T) {
	client := &fakeClient{errs: []error{
		&remote.Error{Kind: remote.KindConflict, Status: 409, Message: "stale"},
	}}
	m, q, _ := newTestManager(t, client)

	enqueue(t, q, "beam-1", models.BoolValue(true))
	enqueue(t, q, "beam-2", models.BoolValue(true))

	result := m.SyncQueue(context.Background())

	if result.ServerWinsCount != 1 {
		t.Fatalf("expected server_wins_count=1, got %d", result.ServerWinsCount)
	}
	if result.SyncedCount != 1 {
		t.Fatalf("expected second update synced, got %d", result.SyncedCount)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("conflicts must not produce error entries, got %d", len(result.Errors))
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if q.Size() != 0 {
		t.Fatalf("expected conflicted update dequeued")
	}
}

func TestSyncQueueAuthClearsEverything(t *testing.T) {
	client := &fakeClient{err: &remote.Error{Kind: remote.KindAuth, Status: 401, Message: "token expired"}}
	m, q, _ := newTestManager(t, client)

	for _, c := range []string{"beam-1", "beam-2", "beam-3"} {
		enqueue(t, q, c, models.BoolValue(true))
	}

	result := m.SyncQueue(context.Background())

	if q.Size() != 0 {
		t.Fatalf("expected all pending updates cleared, got %d", q.Size())
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected a single auth error entry, got %d", len(result.Errors))
	}
	if result.Errors[0].Status != 401 {
		t.Fatalf("expected status 401, got %d", result.Errors[0].Status)
	}
	// Only the first entry is ever attempted.
	if len(client.pushes) != 1 {
		t.Fatalf("expected 1 push, got %d", len(client.pushes))
	}
	if result.FailedCount != 0 {
		t.Fatalf("auth failure is handled, expected failed_count=0, got %d", result.FailedCount)
	}
}

func TestSyncQueueUnknownFailsWithoutRetry(t *testing.T) {
	client := &fakeClient{errs: []error{
		&remote.Error{Kind: remote.KindUnknown, Status: 400, Message: "bad payload"},
	}}
	m, q, delays := newTestManager(t, client)

	enqueue(t, q, "beam-1", models.BoolValue(true))
	enqueue(t, q, "beam-2", models.BoolValue(true))

	result := m.SyncQueue(context.Background())

	if result.FailedCount != 1 {
		t.Fatalf("expected failed_count=1, got %d", result.FailedCount)
	}
	if result.SyncedCount != 1 {
		t.Fatalf("expected the rest of the pass to continue, got synced=%d", result.SyncedCount)
	}
	if len(*delays) != 0 {
		t.Fatalf("unknown errors must not back off, got %d delays", len(*delays))
	}
	// The failing update stays pending with its retry count untouched.
	snap := q.Snapshot()
	if len(snap.Updates) != 1 || snap.Updates[0].RetryCount != 0 {
		t.Fatalf("expected unknown-failed update left pending, got %+v", snap.Updates)
	}
	if snap.SyncStatus != models.SyncStatusError {
		t.Fatalf("expected error status, got %s", snap.SyncStatus)
	}
}

func TestSyncQueueReentrantCallReturnsZero(t *testing.T) {
	client := &fakeClient{}
	m, q, _ := newTestManager(t, client)
	enqueue(t, q, "beam-1", models.BoolValue(true))

	m.guard.Lock()
	result := m.SyncQueue(context.Background())
	m.guard.Unlock()

	if result.SyncedCount != 0 || result.FailedCount != 0 || result.ServerWinsCount != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected zero result while guarded, got %+v", result)
	}
	if len(client.pushes) != 0 {
		t.Fatalf("guarded call must not touch the remote")
	}
	if q.Size() != 1 {
		t.Fatalf("guarded call must not mutate the queue")
	}
}

func TestRetrySync(t *testing.T) {
	client := &fakeClient{err: &remote.Error{Kind: remote.KindTransient, Status: 500, Message: "down"}}
	m, q, _ := newTestManager(t, client)

	enqueue(t, q, "beam-1", models.BoolValue(true))
	m.SyncQueue(context.Background())
	if len(q.Snapshot().FailedUpdates) != 1 {
		t.Fatalf("expected update in failed list")
	}

	// Remote is healthy again.
	client.err = nil

	result, err := m.RetrySync(context.Background())
	if err != nil {
		t.Fatalf("retry sync: %v", err)
	}
	if result.SyncedCount != 1 {
		t.Fatalf("expected retried update synced, got %+v", result)
	}
	snap := q.Snapshot()
	if len(snap.Updates) != 0 || len(snap.FailedUpdates) != 0 {
		t.Fatalf("expected clean queue, got %+v", snap)
	}
}

func TestStatus(t *testing.T) {
	client := &fakeClient{err: &remote.Error{Kind: remote.KindTransient, Status: 500, Message: "down"}}
	m, q, _ := newTestManager(t, client)

	enqueue(t, q, "beam-1", models.BoolValue(true))
	enqueue(t, q, "beam-2", models.BoolValue(true))

	status := m.Status()
	if status.Status != models.SyncStatusIdle || status.PendingCount != 2 || status.FailedCount != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}

	m.SyncQueue(context.Background())

	status = m.Status()
	if status.Status != models.SyncStatusError {
		t.Fatalf("expected error status, got %s", status.Status)
	}
	if status.PendingCount != 0 || status.FailedCount != 2 {
		t.Fatalf("unexpected counts: %+v", status)
	}
	if status.LastSyncAttempt == nil {
		t.Fatalf("expected last_sync_attempt set")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 3, MaxDelay: 10 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(3)

	if d1 != 3*time.Second {
		t.Fatalf("retry 1 expected 3s, got %s", d1)
	}
	if d2 != 9*time.Second {
		t.Fatalf("retry 2 expected 9s, got %s", d2)
	}
	if d3 != 10*time.Second {
		t.Fatalf("retry 3 expected capped 10s, got %s", d3)
	}
}
