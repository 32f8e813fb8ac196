package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dealbadge/internal/entitlement"
)

// TransitionApplier applies due pending tier changes. entitlement.Service
// satisfies it.
type TransitionApplier interface {
	ApplyDueTransitions(ctx context.Context, now time.Time, batchSize int) (entitlement.SweepResult, error)
}

// SweepRecorder receives sweep outcome metrics.
type SweepRecorder interface {
	RecordSweep(ctx context.Context, due, applied, failed int)
}

// TierSweepService runs one pass of the pending-transition sweep.
type TierSweepService struct {
	applier TransitionApplier
	metrics SweepRecorder
	logger  *slog.Logger
}

// NewTierSweepService creates a TierSweepService. metrics may be nil.
func NewTierSweepService(applier TransitionApplier, metrics SweepRecorder, logger *slog.Logger) *TierSweepService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TierSweepService{applier: applier, metrics: metrics, logger: logger}
}

// Sweep applies every transition due at now and returns how many were
// applied. Per-shop failures do not stop the pass but are reported as an
// error afterwards so the invocation is retried; applying a transition twice
// is a no-op.
func (s *TierSweepService) Sweep(ctx context.Context, now time.Time, batchSize int) (int, error) {
	res, err := s.applier.ApplyDueTransitions(ctx, now, batchSize)
	if s.metrics != nil {
		s.metrics.RecordSweep(ctx, res.Due, res.Applied, res.Failed)
	}
	if err != nil {
		return res.Applied, fmt.Errorf("applying due tier changes: %w", err)
	}
	if res.Failed > 0 {
		return res.Applied, fmt.Errorf("%d of %d due tier changes failed", res.Failed, res.Due)
	}

	if res.Due > 0 && batchSize > 0 && res.Due == batchSize {
		s.logger.WarnContext(ctx, "tier sweep hit batch size, backlog remains",
			"batch_size", batchSize,
		)
	}
	return res.Applied, nil
}
