package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"dealbadge/internal/scheduler"
)

type mockSweeper struct {
	called    bool
	gotNow    time.Time
	gotBatch  int
	applied   int
	returnErr error
}

func (m *mockSweeper) Sweep(_ context.Context, now time.Time, batchSize int) (int, error) {
	m.called = true
	m.gotNow = now
	m.gotBatch = batchSize
	return m.applied, m.returnErr
}

type mockJobLock struct {
	acquire    bool
	acquireErr error
	lockID     string
	released   bool
}

func (m *mockJobLock) Acquire(_ context.Context, lockID, _ string, _ time.Duration) (bool, error) {
	m.lockID = lockID
	return m.acquire, m.acquireErr
}

func (m *mockJobLock) Release(_ context.Context, _, _ string) error {
	m.released = true
	return nil
}

type mockJobHistory struct {
	startErr     error
	startCalled  bool
	finishCalled bool
	status       string
	items        int
	jobErr       error
}

func (m *mockJobHistory) Start(_ context.Context, _ string) (int64, error) {
	m.startCalled = true
	if m.startErr != nil {
		return 0, m.startErr
	}
	return 7, nil
}

func (m *mockJobHistory) Finish(_ context.Context, _ int64, status string, items int, err error) error {
	m.finishCalled = true
	m.status = status
	m.items = items
	m.jobErr = err
	return nil
}

var fixedNow = time.Date(2026, 11, 1, 0, 7, 30, 0, time.UTC)

func newTestHandler(sweeper *mockSweeper, lock *mockJobLock, hist *mockJobHistory) *Handler {
	return &Handler{
		Sweeper:    sweeper,
		JobLock:    lock,
		JobHistory: hist,
		WorkerID:   "worker-test",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        func() time.Time { return fixedNow },
	}
}

func TestHandle_Success(t *testing.T) {
	sweeper := &mockSweeper{applied: 4}
	lock := &mockJobLock{acquire: true}
	hist := &mockJobHistory{}
	h := newTestHandler(sweeper, lock, hist)

	result, err := h.Handle(context.Background(), scheduler.MaintenancePayload{
		Task:      scheduler.TaskApplyDueTierChanges,
		BatchSize: 200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "4 tier changes applied") {
		t.Errorf("result = %q", result)
	}
	if !sweeper.gotNow.Equal(fixedNow) || sweeper.gotBatch != 200 {
		t.Errorf("sweeper called with now=%v batch=%d", sweeper.gotNow, sweeper.gotBatch)
	}
	if lock.lockID != "apply_due_tier_changes:2026-11-01T00:05" {
		t.Errorf("lock id = %q", lock.lockID)
	}
	if !lock.released {
		t.Error("lock was not released")
	}
	if hist.status != "success" || hist.items != 4 || hist.jobErr != nil {
		t.Errorf("history = %q/%d/%v", hist.status, hist.items, hist.jobErr)
	}
}

func TestHandle_ReferenceTimeOverridesNow(t *testing.T) {
	sweeper := &mockSweeper{}
	h := newTestHandler(sweeper, &mockJobLock{acquire: true}, &mockJobHistory{})

	ref := time.Date(2026, 12, 31, 23, 59, 0, 0, time.FixedZone("EST", -5*3600))
	if _, err := h.Handle(context.Background(), scheduler.MaintenancePayload{
		Task:          scheduler.TaskApplyDueTierChanges,
		ReferenceTime: &ref,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sweeper.gotNow.Equal(ref) || sweeper.gotNow.Location() != time.UTC {
		t.Errorf("sweeper now = %v, want %v in UTC", sweeper.gotNow, ref)
	}
}

func TestHandle_LockHeld(t *testing.T) {
	sweeper := &mockSweeper{}
	lock := &mockJobLock{acquire: false}
	hist := &mockJobHistory{}
	h := newTestHandler(sweeper, lock, hist)

	result, err := h.Handle(context.Background(), scheduler.MaintenancePayload{Task: scheduler.TaskApplyDueTierChanges})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(result, "skipped") {
		t.Errorf("result = %q, want skipped", result)
	}
	if sweeper.called || hist.startCalled || lock.released {
		t.Error("nothing should run when the lock is held")
	}
}

func TestHandle_LockError(t *testing.T) {
	h := newTestHandler(&mockSweeper{}, &mockJobLock{acquireErr: errors.New("db down")}, &mockJobHistory{})

	_, err := h.Handle(context.Background(), scheduler.MaintenancePayload{Task: scheduler.TaskApplyDueTierChanges})
	if err == nil || !strings.Contains(err.Error(), "acquiring job lock") {
		t.Fatalf("error = %v", err)
	}
}

func TestHandle_UnknownTask(t *testing.T) {
	lock := &mockJobLock{acquire: true}
	h := newTestHandler(&mockSweeper{}, lock, &mockJobHistory{})

	for _, task := range []scheduler.TaskType{"", "archive_discounts"} {
		if _, err := h.Handle(context.Background(), scheduler.MaintenancePayload{Task: task}); err == nil {
			t.Errorf("task %q: expected error", task)
		}
	}
	if lock.lockID != "" {
		t.Error("lock should not be taken for unknown tasks")
	}
}

func TestHandle_SweepFailureRecorded(t *testing.T) {
	sweepErr := errors.New("2 of 5 due tier changes failed")
	sweeper := &mockSweeper{applied: 3, returnErr: sweepErr}
	lock := &mockJobLock{acquire: true}
	hist := &mockJobHistory{}
	h := newTestHandler(sweeper, lock, hist)

	_, err := h.Handle(context.Background(), scheduler.MaintenancePayload{Task: scheduler.TaskApplyDueTierChanges})
	if !errors.Is(err, sweepErr) {
		t.Fatalf("error = %v, want wrapped sweep error", err)
	}
	if hist.status != "failed" || hist.items != 3 || !errors.Is(hist.jobErr, sweepErr) {
		t.Errorf("history = %q/%d/%v", hist.status, hist.items, hist.jobErr)
	}
	if !lock.released {
		t.Error("lock should be released after a failed sweep")
	}
}

func TestHandle_HistoryStartFailureIsNonFatal(t *testing.T) {
	sweeper := &mockSweeper{applied: 1}
	hist := &mockJobHistory{startErr: errors.New("insert failed")}
	h := newTestHandler(sweeper, &mockJobLock{acquire: true}, hist)

	if _, err := h.Handle(context.Background(), scheduler.MaintenancePayload{Task: scheduler.TaskApplyDueTierChanges}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sweeper.called {
		t.Error("sweep should run even when history start fails")
	}
	if hist.finishCalled {
		t.Error("Finish should be skipped without a job id")
	}
}
