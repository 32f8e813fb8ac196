package entitlement

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepBatchSize bounds how many shops one sweep processes.
const DefaultSweepBatchSize = 500

// SweepResult summarises one ApplyDueTransitions run.
type SweepResult struct {
	Due     int `json:"due"`
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// ApplyDueTransitions applies every pending transition due at now, up to
// batchSize shops (DefaultSweepBatchSize when batchSize <= 0). A failure for
// one shop is logged and does not stop the sweep. Shops whose transition was
// applied concurrently by a request are counted as applied.
func (s *Service) ApplyDueTransitions(ctx context.Context, now time.Time, batchSize int) (SweepResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}

	shops, err := s.shops.ListDuePending(ctx, now, batchSize)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Due: len(shops)}
	for _, shop := range shops {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := s.applyOne(ctx, shop, now); err != nil {
			result.Failed++
			s.logger.Error("failed to apply due tier change",
				slog.String("shop", shop),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Applied++
	}

	s.logger.Info("tier sweep complete",
		slog.Int("due", result.Due),
		slog.Int("applied", result.Applied),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) applyOne(ctx context.Context, shop string, now time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	state, err := s.shops.Get(ctx, shop)
	if err != nil {
		return err
	}
	_, err = s.applyPendingIfDue(ctx, state, now)
	return err
}
