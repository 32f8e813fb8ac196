package db

import (
	"context"
	"time"

	"dealbadge/internal/types"
)

// JobLockRepository provides distributed locking via the job_locks table so
// that overlapping scheduled invocations do not sweep the same window twice.
type JobLockRepository struct {
	db  DBTX
	now func() time.Time
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction).
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db, now: time.Now}
}

// Acquire inserts or reclaims the lock row. It returns false while another
// worker holds an unexpired lock with the same id.
//
// locked_at and expires_at are computed in Go; Go duration strings such as
// "15m0s" are not valid Postgres intervals.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := r.now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release expires a lock early. Only the holder can release it.
func (r *JobLockRepository) Release(ctx context.Context, lockID string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE job_locks SET expires_at = $3
		 WHERE id = $1 AND worker_id = $2`,
		lockID,
		workerID,
		r.now().UTC(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

// JobHistoryRepository records scheduled job runs in job_history.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository backed by the
// given database connection (pool or transaction).
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a 'running' row and returns its id.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, started_at, status)
		 VALUES ($1, NOW(), 'running')
		 RETURNING id`,
		jobType,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish records the outcome of a run. A nil jobErr stores NULL.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	var errMsg *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, items_count = $3, error = $4
		 WHERE id = $1`,
		id,
		status,
		items,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}
