package db

import (
	"context"
	"time"

	"dealbadge/internal/types"
)

// EnforcementResult is the outcome of a live-quota check.
type EnforcementResult struct {
	// Count is the number of LIVE discounts after enforcement.
	Count int
	// Demoted is how many LIVE discounts were moved to HIDDEN.
	Demoted int
}

// DiscountRepository reads and transitions merchant discounts.
type DiscountRepository struct {
	db DBTX
	tx Transactor
}

// NewDiscountRepository creates a DiscountRepository. Quota enforcement runs
// through tx; everything else uses db directly.
func NewDiscountRepository(db DBTX, tx Transactor) *DiscountRepository {
	return &DiscountRepository{db: db, tx: tx}
}

// CountLiveAndEnforce counts the shop's LIVE discounts under row locks. If the
// count exceeds limit, every LIVE discount is demoted to HIDDEN in the same
// transaction and the reported count becomes zero.
func (r *DiscountRepository) CountLiveAndEnforce(ctx context.Context, shop string, limit int) (EnforcementResult, error) {
	var res EnforcementResult
	err := r.tx.WithTx(ctx, func(tx DBTX) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM discounts
			 WHERE shop_domain = $1 AND status = $2
			 FOR UPDATE`,
			shop, types.DiscountStatusLive,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to lock live discounts", err)
		}
		count := 0
		for rows.Next() {
			count++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "error iterating live discounts", err)
		}

		if count <= limit {
			res.Count = count
			return nil
		}

		tag, err := tx.Exec(ctx,
			`UPDATE discounts
			 SET status = $3, updated_at = NOW()
			 WHERE shop_domain = $1 AND status = $2`,
			shop, types.DiscountStatusLive, types.DiscountStatusHidden,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to hide over-quota discounts", err)
		}
		res.Demoted = int(tag.RowsAffected())
		res.Count = 0
		return nil
	})
	if err != nil {
		return EnforcementResult{}, err
	}
	return res, nil
}

// CountLive returns the number of LIVE discounts without enforcing anything.
func (r *DiscountRepository) CountLive(ctx context.Context, shop string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM discounts WHERE shop_domain = $1 AND status = $2`,
		shop, types.DiscountStatusLive,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count live discounts", err)
	}
	return count, nil
}

// ListByStatus returns the shop's discounts in the given status.
func (r *DiscountRepository) ListByStatus(ctx context.Context, shop string, status types.DiscountStatus) ([]types.Discount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, shop_domain, title, type, value, is_automatic, applies_on_subscription,
		        variant_scope, status, exclusion_reason, starts_at, ends_at
		 FROM discounts
		 WHERE shop_domain = $1 AND status = $2
		 ORDER BY id`,
		shop, status,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list discounts", err)
	}
	defer rows.Close()

	var discounts []types.Discount
	for rows.Next() {
		var (
			d         types.Discount
			exclusion *string
			startsAt  *time.Time
			endsAt    *time.Time
		)
		if err := rows.Scan(
			&d.ID,
			&d.ShopDomain,
			&d.Title,
			&d.Type,
			&d.Value,
			&d.IsAutomatic,
			&d.AppliesOnSubscription,
			&d.VariantScope,
			&d.Status,
			&exclusion,
			&startsAt,
			&endsAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan discount", err)
		}
		if exclusion != nil {
			d.ExclusionReason = types.ExclusionReason(*exclusion)
		}
		d.StartsAt = startsAt
		d.EndsAt = endsAt
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating discounts", err)
	}
	return discounts, nil
}

// UpdateStatus moves a discount from one status to another and clears its
// exclusion reason. It reports false if the discount was no longer in from.
func (r *DiscountRepository) UpdateStatus(ctx context.Context, id string, from, to types.DiscountStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE discounts
		 SET status = $3, exclusion_reason = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update discount status", err)
	}
	return tag.RowsAffected() > 0, nil
}
