package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Validator validates a coupon code against an order total and returns the
// computed discount and final total.
type Validator interface {
	Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*Result, error)
}

// RepoValidator implements Validator by looking up coupon rules from a
// Repository. Usage accounting is left to the caller so the increment can
// run inside the order-creation transaction.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon by its uppercase-normalized code, checks
// activation status, the date-only validity window, and remaining uses,
// then computes the discount clamped to the order total.
func (v *RepoValidator) Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*Result, error) {
	rule, err := v.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !rule.Active {
		return nil, ErrInactive
	}

	today := dateOf(v.now())
	if rule.ValidFrom != nil && today.Before(dateOf(*rule.ValidFrom)) {
		return nil, ErrExpired
	}
	if rule.ValidUntil != nil && today.After(dateOf(*rule.ValidUntil)) {
		return nil, ErrExpired
	}

	if rule.UsageLimit != nil && rule.UsageCount >= *rule.UsageLimit {
		return nil, ErrExhausted
	}

	amount := Discount(rule, orderTotal)
	return &Result{
		Coupon:         rule,
		DiscountAmount: amount,
		FinalTotal:     orderTotal.Sub(amount),
	}, nil
}

// Discount computes the raw discount for the rule and clamps it to the
// order total, so the final total can never go negative.
func Discount(rule *Rule, orderTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch rule.Kind {
	case KindPercent:
		amount = orderTotal.Mul(rule.Discount).Div(hundred)
	case KindFixed:
		amount = rule.Discount
	default:
		return decimal.Zero
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(orderTotal) {
		amount = orderTotal
	}
	return amount.Round(2)
}

// dateOf truncates a timestamp to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
