package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	rule       *Rule
	err        error
	lastLookup string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Rule, error) {
	m.lastLookup = code
	return m.rule, m.err
}

func (m *mockCouponRepo) IncrementUsage(_ context.Context, _ int64) error {
	return nil
}

func limit(n int) *int { return &n }

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	yesterday := fixedNow.Add(-24 * time.Hour)
	tomorrow := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		code       string
		total      decimal.Decimal
		wantAmount decimal.Decimal
		wantFinal  decimal.Decimal
		wantErr    error
	}{
		{
			name: "percent 20 off 100",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 1, Code: "SAVE20", Kind: KindPercent, Discount: decimal.NewFromInt(20), Active: true},
			},
			code:       "SAVE20",
			total:      decimal.NewFromInt(100),
			wantAmount: decimal.NewFromInt(20),
			wantFinal:  decimal.NewFromInt(80),
		},
		{
			name: "fixed 15.99 clamps to total 10",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 2, Code: "FLAT16", Kind: KindFixed, Discount: decimal.RequireFromString("15.99"), Active: true},
			},
			code:       "FLAT16",
			total:      decimal.NewFromInt(10),
			wantAmount: decimal.NewFromInt(10),
			wantFinal:  decimal.Zero,
		},
		{
			name:    "unknown code",
			repo:    &mockCouponRepo{err: ErrNotFound},
			code:    "BOGUS",
			total:   decimal.NewFromInt(50),
			wantErr: ErrNotFound,
		},
		{
			name: "inactive coupon",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 3, Code: "OFF", Kind: KindPercent, Discount: decimal.NewFromInt(10), Active: false},
			},
			code:    "OFF",
			total:   decimal.NewFromInt(50),
			wantErr: ErrInactive,
		},
		{
			name: "valid_until strictly before today rejected despite remaining uses",
			repo: &mockCouponRepo{
				rule: &Rule{
					ID: 4, Code: "OLD", Kind: KindPercent, Discount: decimal.NewFromInt(10),
					ValidUntil: &yesterday, UsageLimit: limit(100), UsageCount: 0, Active: true,
				},
			},
			code:    "OLD",
			total:   decimal.NewFromInt(100),
			wantErr: ErrExpired,
		},
		{
			name: "not yet valid",
			repo: &mockCouponRepo{
				rule: &Rule{
					ID: 5, Code: "SOON", Kind: KindPercent, Discount: decimal.NewFromInt(10),
					ValidFrom: &tomorrow, Active: true,
				},
			},
			code:    "SOON",
			total:   decimal.NewFromInt(100),
			wantErr: ErrExpired,
		},
		{
			name: "valid_until today is inclusive",
			repo: &mockCouponRepo{
				rule: &Rule{
					ID: 6, Code: "TODAY", Kind: KindPercent, Discount: decimal.NewFromInt(10),
					ValidUntil: &fixedNow, Active: true,
				},
			},
			code:       "TODAY",
			total:      decimal.NewFromInt(100),
			wantAmount: decimal.NewFromInt(10),
			wantFinal:  decimal.NewFromInt(90),
		},
		{
			name: "usage limit reached",
			repo: &mockCouponRepo{
				rule: &Rule{
					ID: 7, Code: "FULL", Kind: KindFixed, Discount: decimal.NewFromInt(5),
					UsageLimit: limit(10), UsageCount: 10, Active: true,
				},
			},
			code:    "FULL",
			total:   decimal.NewFromInt(100),
			wantErr: ErrExhausted,
		},
		{
			name: "nil usage limit means unlimited",
			repo: &mockCouponRepo{
				rule: &Rule{
					ID: 8, Code: "FOREVER", Kind: KindFixed, Discount: decimal.NewFromInt(5),
					UsageCount: 123456, Active: true,
				},
			},
			code:       "FOREVER",
			total:      decimal.NewFromInt(100),
			wantAmount: decimal.NewFromInt(5),
			wantFinal:  decimal.NewFromInt(95),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code, tt.total)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, tt.wantAmount.Equal(got.DiscountAmount),
				"expected discount %s, got %s", tt.wantAmount, got.DiscountAmount)
			assert.True(t, tt.wantFinal.Equal(got.FinalTotal),
				"expected final %s, got %s", tt.wantFinal, got.FinalTotal)
			assert.False(t, got.FinalTotal.IsNegative())
		})
	}
}

func TestRepoValidator_NormalizesCode(t *testing.T) {
	repo := &mockCouponRepo{
		rule: &Rule{ID: 9, Code: "SAVE20", Kind: KindPercent, Discount: decimal.NewFromInt(20), Active: true},
	}

	v := NewRepoValidator(repo)
	_, err := v.Validate(context.Background(), "  save20 ", decimal.NewFromInt(100))

	require.NoError(t, err)
	assert.Equal(t, "SAVE20", repo.lastLookup)
}

func TestDiscount_FinalNeverNegative(t *testing.T) {
	totals := []decimal.Decimal{
		decimal.Zero,
		decimal.RequireFromString("0.01"),
		decimal.NewFromInt(10),
		decimal.RequireFromString("99.99"),
	}
	rules := []*Rule{
		{Kind: KindPercent, Discount: decimal.NewFromInt(100)},
		{Kind: KindPercent, Discount: decimal.NewFromInt(7)},
		{Kind: KindFixed, Discount: decimal.NewFromInt(1000)},
		{Kind: KindFixed, Discount: decimal.RequireFromString("0.5")},
	}

	for _, total := range totals {
		for _, rule := range rules {
			amount := Discount(rule, total)
			final := total.Sub(amount)
			assert.False(t, final.IsNegative(),
				"rule %s/%s on total %s left negative final %s", rule.Kind, rule.Discount, total, final)
			assert.True(t, final.Equal(total.Sub(amount)))
		}
	}
}
