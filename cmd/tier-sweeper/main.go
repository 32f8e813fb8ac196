// Package main is the entrypoint for the tier-sweeper Lambda function.
//
// EventBridge invokes it every few minutes with a MaintenancePayload. The
// handler takes a distributed job lock for the current window, applies every
// pending tier change that has come due, and records the run in job_history.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"dealbadge/internal/billing"
	"dealbadge/internal/config"
	"dealbadge/internal/db"
	"dealbadge/internal/entitlement"
	"dealbadge/internal/observability"
	"dealbadge/internal/queue"
	"dealbadge/internal/scheduler"
)

const (
	// lockWindow is the granularity of the job lock id; two invocations in
	// the same window share a lock.
	lockWindow = 5 * time.Minute

	// lockTTL covers the Lambda timeout with margin.
	lockTTL = 10 * time.Minute
)

// TierSweeper runs one sweep pass.
type TierSweeper interface {
	Sweep(ctx context.Context, now time.Time, batchSize int) (int, error)
}

// JobLocker abstracts the distributed lock.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// Handler holds the dependencies for the tier-sweeper Lambda handler.
type Handler struct {
	Sweeper    TierSweeper
	JobLock    JobLocker
	JobHistory JobHistorian
	WorkerID   string
	Logger     *slog.Logger
	Now        func() time.Time
}

// Handle processes one EventBridge invocation.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := h.now()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	task := string(payload.Task)
	logger.InfoContext(ctx, "tier-sweeper invoked",
		"task", task,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", h.WorkerID,
	)

	if payload.Task != scheduler.TaskApplyDueTierChanges {
		return "", fmt.Errorf("unknown task type: %q", payload.Task)
	}

	lockID := fmt.Sprintf("%s:%s", payload.Task, now.Truncate(lockWindow).Format("2006-01-02T15:04"))
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock not acquired, another worker is processing",
			"lock_id", lockID,
		)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}
	defer func() {
		if err := h.JobLock.Release(context.WithoutCancel(ctx), lockID, h.WorkerID); err != nil {
			logger.WarnContext(ctx, "failed to release job lock", "lock_id", lockID, "error", err)
		}
	}()

	// History failures are logged and do not block the sweep.
	jobID, err := h.JobHistory.Start(ctx, task)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history", "task", task, "error", err)
		jobID = 0
	}

	applied, sweepErr := h.Sweeper.Sweep(ctx, now, payload.BatchSize)

	status := "success"
	if sweepErr != nil {
		status = "failed"
	}
	if jobID != 0 {
		if err := h.JobHistory.Finish(context.WithoutCancel(ctx), jobID, status, applied, sweepErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", jobID, "error", err)
		}
	}

	if sweepErr != nil {
		logger.ErrorContext(ctx, "tier sweep failed",
			"error", sweepErr,
			"applied_before_error", applied,
		)
		return "", fmt.Errorf("task %s failed: %w", task, sweepErr)
	}

	result := fmt.Sprintf("task %s complete: %d tier changes applied", task, applied)
	logger.InfoContext(ctx, result, "applied", applied)
	return result, nil
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func main() {
	handler, err := setup(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(handler.Handle)
}

// setup runs once per cold start.
func setup(ctx context.Context) (*Handler, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.Service+"-tier-sweeper")

	pool, err := db.NewPool(ctx, cfg.Database.URL.Unmask(), cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}

	awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	opts := []entitlement.Option{entitlement.WithQueryTimeout(cfg.Database.QueryTimeout)}
	if cfg.AWS.TierEventsQueueURL != "" {
		opts = append(opts, entitlement.WithEventPublisher(
			queue.NewTierEventPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)))
	}
	service := entitlement.NewService(
		db.NewShopTierRepository(pool),
		db.NewDiscountRepository(pool, db.NewPoolTransactor(pool)),
		billing.NewStaticTierCatalog(),
		logger,
		opts...,
	)

	var recorder scheduler.SweepRecorder
	if cfg.Observability.EnableMetrics {
		recorder = observability.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	workerID := uuid.NewString()
	logger.Info("tier-sweeper initialized",
		"worker_id", workerID,
		"version", cfg.Build.Version,
	)

	return &Handler{
		Sweeper:    scheduler.NewTierSweepService(service, recorder, logger),
		JobLock:    db.NewJobLockRepository(pool),
		JobHistory: db.NewJobHistoryRepository(pool),
		WorkerID:   workerID,
		Logger:     logger,
	}, nil
}
