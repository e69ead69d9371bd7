package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order validation and lookup.
var (
	ErrNotFound        = errors.New("order not found")
	ErrAddressNotFound = errors.New("address not found")
	ErrEmptyItems      = errors.New("order requires at least one item")
)

// InvalidTransitionError indicates a status change not permitted from the
// order's current state. The order is left untouched when it is returned.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

// NotCancellableError indicates a cancellation attempt on an order whose
// current state does not allow it.
type NotCancellableError struct {
	Status Status
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("cannot cancel order in %q state", e.Status)
}

// InvalidQuantityError indicates a line item with a quantity below one.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for product %d", e.ProductID)
}

// TotalMismatchError indicates the caller-supplied total disagrees with the
// total recomputed from items, shipping cost, and discount.
type TotalMismatchError struct {
	Given    decimal.Decimal
	Computed decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total amount %s does not match computed total %s", e.Given, e.Computed)
}
