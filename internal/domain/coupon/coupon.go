package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported coupon discount strategies.
type Kind string

const (
	// KindPercent applies a percentage of the order total.
	KindPercent Kind = "percent"
	// KindFixed applies a flat monetary discount capped at the order total.
	KindFixed Kind = "fixed"
)

var (
	// ErrNotFound is returned when no coupon exists for the given code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon has been deactivated.
	ErrInactive = errors.New("coupon is not active")
	// ErrExpired is returned when today falls outside the coupon's validity window.
	ErrExpired = errors.New("coupon expired")
	// ErrExhausted is returned when the coupon has reached its usage limit.
	ErrExhausted = errors.New("coupon usage limit reached")
)

// Rule describes a discount coupon. Validity bounds are date-only and
// inclusive; a nil bound means unbounded on that side. A nil UsageLimit
// means unlimited uses.
type Rule struct {
	ID         int64
	Code       string
	Kind       Kind
	Discount   decimal.Decimal
	ValidFrom  *time.Time
	ValidUntil *time.Time
	UsageLimit *int
	UsageCount int
	Active     bool
}

// Result holds the outcome of a successful coupon validation.
type Result struct {
	Coupon         *Rule
	DiscountAmount decimal.Decimal
	FinalTotal     decimal.Decimal
}

// Repository provides lookup and usage accounting for coupons.
//
// IncrementUsage must be an atomic increment-with-guard: the counter may
// never overrun the usage limit even under concurrent checkouts, and the
// coupon deactivates in the same statement when the limit is reached.
// It returns ErrExhausted when the guard rejects the increment.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	IncrementUsage(ctx context.Context, couponID int64) error
}
