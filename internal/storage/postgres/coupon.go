package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderdesk/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

const findCouponSQL = `
SELECT coupon_id, code, discount_type, discount,
       valid_from, valid_until, usage_limit, usage_count, active
FROM coupons
WHERE code = UPPER($1)`

// FindByCode looks up a coupon by its uppercase-normalized code. Codes are
// stored uppercase, so only the parameter needs normalizing. Returns
// coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	var rule coupon.Rule
	err := r.pool.QueryRow(ctx, findCouponSQL, code).Scan(
		&rule.ID, &rule.Code, &rule.Kind, &rule.Discount,
		&rule.ValidFrom, &rule.ValidUntil, &rule.UsageLimit, &rule.UsageCount, &rule.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon by code %q", code)
	}
	return &rule, nil
}

// IncrementUsage atomically increments the coupon usage counter with the
// limit guard. See incrementUsage.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID int64) error {
	return incrementUsage(ctx, r.pool, couponID)
}

// execer is satisfied by both pgxpool.Pool and pgx.Tx, so the guarded
// increment can run standalone or inside the order-creation transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const incrementUsageSQL = `
UPDATE coupons
SET usage_count = usage_count + 1,
    active = CASE
        WHEN usage_limit IS NOT NULL AND usage_count + 1 >= usage_limit THEN false
        ELSE active
    END
WHERE coupon_id = $1
  AND (usage_limit IS NULL OR usage_count < usage_limit)`

// incrementUsage performs the atomic increment-with-guard: the WHERE clause
// rejects the update once the limit is reached, so concurrent checkouts can
// never overrun usage_limit, and the coupon deactivates in the same
// statement when the post-increment count hits the limit.
func incrementUsage(ctx context.Context, db execer, couponID int64) error {
	tag, err := db.Exec(ctx, incrementUsageSQL, couponID)
	if err != nil {
		return errors.Wrapf(err, "increment usage for coupon %d", couponID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// The guard rejected the update: either the coupon is gone or its
	// limit is exhausted.
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE coupon_id = $1)`, couponID).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check coupon %d", couponID)
	}
	if !exists {
		return coupon.ErrNotFound
	}
	return coupon.ErrExhausted
}

const upsertCouponSQL = `
INSERT INTO coupons (code, discount_type, discount, valid_from, valid_until, usage_limit, active)
VALUES (UPPER($1), $2, $3, $4, $5, $6, $7)
ON CONFLICT (code) DO UPDATE SET
    discount_type = EXCLUDED.discount_type,
    discount      = EXCLUDED.discount,
    valid_from    = EXCLUDED.valid_from,
    valid_until   = EXCLUDED.valid_until,
    usage_limit   = EXCLUDED.usage_limit,
    active        = EXCLUDED.active`

// Upsert inserts or updates a coupon definition. Used by the bulk loader;
// the usage counter is never touched here.
func (r *CouponRepository) Upsert(ctx context.Context, rule *coupon.Rule) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		rule.Code, rule.Kind, rule.Discount,
		rule.ValidFrom, rule.ValidUntil, rule.UsageLimit, rule.Active,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", rule.Code)
	}
	return nil
}
