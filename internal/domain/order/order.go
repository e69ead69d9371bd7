package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a purchase transaction with an immutable item snapshot and a
// mutable status. Timestamp pointers stay nil until the corresponding
// transition happens.
type Order struct {
	ID                 int64
	UserID             int64
	AddressID          int64
	Status             Status
	TotalAmount        decimal.Decimal
	ShippingMethodID   *int64
	CouponID           *int64
	TrackingNumber     *string
	TrackingURL        *string
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	EstimatedDelivery  *time.Time
	CreatedAt          time.Time
}

// Item is a single order line. The unit price is a snapshot frozen at
// creation time; it is never recomputed from the live product price.
type Item struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// HistoryEntry is one row of the append-only status ledger. ChangedBy is
// nil for system-generated entries.
type HistoryEntry struct {
	Status    Status
	Notes     string
	ChangedBy *int64
	CreatedAt time.Time
}

// User is the customer summary joined into a hydrated order.
type User struct {
	ID    int64
	Name  string
	Email string
	Phone string
}

// Address is the shipping address joined into a hydrated order.
type Address struct {
	ID       int64
	Line1    string
	City     string
	Postcode string
	Country  string
}

// ShippingMethod is the delivery option joined into a hydrated order.
type ShippingMethod struct {
	ID   int64
	Name string
	Cost decimal.Decimal
}

// CouponInfo is the applied-coupon summary joined into a hydrated order.
type CouponInfo struct {
	ID       int64
	Code     string
	Discount decimal.Decimal
}

// ItemDetail is an order line joined with its product summary.
type ItemDetail struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Hydrated is an order joined with its user, address, shipping method,
// coupon, item details, and status history (most recent first).
type Hydrated struct {
	Order
	User           User
	Address        Address
	ShippingMethod *ShippingMethod
	Coupon         *CouponInfo
	Items          []ItemDetail
	History        []HistoryEntry
}

// Repository defines the persistence operations for orders. All multi-row
// mutations run inside a single transaction owned by the implementation;
// any failure rolls back every partial write.
type Repository interface {
	// Create inserts the order row, its items, the initial history entry,
	// and (when o.CouponID is set) performs the guarded coupon-usage
	// increment, all atomically. It returns the new order id.
	Create(ctx context.Context, o *Order, items []Item, initial HistoryEntry) (int64, error)

	// Transition loads the order for update inside a transaction, applies
	// mutate, persists the changed order fields, and appends the returned
	// history entry. An error from mutate rolls the transaction back with
	// no mutation and no history row.
	Transition(ctx context.Context, orderID int64, mutate func(o *Order) (HistoryEntry, error)) error

	// GetHydrated returns the order joined with user, address, shipping
	// method, coupon, items, and history, or ErrNotFound.
	GetHydrated(ctx context.Context, orderID int64) (*Hydrated, error)

	// AddressOwner returns the owning user of an address, or
	// ErrAddressNotFound.
	AddressOwner(ctx context.Context, addressID int64) (int64, error)

	// ShippingCost returns the cost of a shipping method, or zero when
	// methodID is nil.
	ShippingCost(ctx context.Context, methodID *int64) (decimal.Decimal, error)

	// List returns filtered order summaries plus the total count of
	// matching rows independent of pagination.
	List(ctx context.Context, f Filter) ([]Summary, int, error)

	// ListForExport returns unpaginated export rows for the filter, in
	// descending creation order.
	ListForExport(ctx context.Context, f Filter) ([]ExportRow, error)
}

// Notifier receives hydrated order snapshots after commit. Implementations
// are fire-and-forget: calls never block business operations and failures
// must not surface to the caller.
type Notifier interface {
	OrderCreated(o *Hydrated)
	OrderShipped(o *Hydrated)
	OrderDelivered(o *Hydrated)
	OrderCancelled(o *Hydrated)
}
