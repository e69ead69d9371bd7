package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/coupon"
)

const defaultCancellationReason = "cancelled by user"

// CreateRequest holds the input for creating an order. TotalAmount is the
// caller's expected total; when non-zero it is cross-checked against the
// server-side recomputation.
type CreateRequest struct {
	UserID           int64
	AddressID        int64
	Items            []Item
	ShippingMethodID *int64
	CouponCode       string
	TotalAmount      decimal.Decimal
}

// UpdateStatusRequest holds the input for a status transition.
type UpdateStatusRequest struct {
	OrderID           int64
	NewStatus         Status
	Notes             string
	TrackingNumber    *string
	TrackingURL       *string
	EstimatedDelivery *time.Time
	ActorID           int64
}

// CancelRequest holds the input for cancelling an order. Privileged callers
// may cancel any order; others only their own.
type CancelRequest struct {
	OrderID    int64
	ActorID    int64
	Reason     string
	Privileged bool
}

// Service implements the order-management operations: creation, status
// transitions, cancellation, listing, and export. It is constructed with
// explicit dependencies so tests can substitute any of them.
type Service struct {
	orders   Repository
	coupons  coupon.Validator
	notifier Notifier
	now      func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository, coupons coupon.Validator, notifier Notifier) *Service {
	return &Service{
		orders:   orders,
		coupons:  coupons,
		notifier: notifier,
		now:      time.Now,
	}
}

// Create validates the request, persists the order with its items, initial
// history row, and coupon usage in one transaction, and returns the
// hydrated order. The creation notification is dispatched after commit and
// never affects the outcome.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Hydrated, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	owner, err := s.orders.AddressOwner(ctx, req.AddressID)
	if err != nil {
		return nil, err
	}
	if owner != req.UserID {
		return nil, ErrAddressNotFound
	}

	subtotal := decimal.Zero
	for _, item := range req.Items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}

	shipping, err := s.orders.ShippingCost(ctx, req.ShippingMethodID)
	if err != nil {
		return nil, errors.Wrap(err, "shipping cost")
	}
	gross := subtotal.Add(shipping)

	var couponID *int64
	discount := decimal.Zero
	if req.CouponCode != "" {
		res, err := s.coupons.Validate(ctx, req.CouponCode, gross)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		couponID = &res.Coupon.ID
		discount = res.DiscountAmount
	}

	total := gross.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)

	// The source of record is the server-side total; a caller total that
	// disagrees is rejected rather than trusted.
	if !req.TotalAmount.IsZero() && !req.TotalAmount.Equal(total) {
		return nil, &TotalMismatchError{Given: req.TotalAmount, Computed: total}
	}

	o := &Order{
		UserID:           req.UserID,
		AddressID:        req.AddressID,
		Status:           StatusPending,
		TotalAmount:      total,
		ShippingMethodID: req.ShippingMethodID,
		CouponID:         couponID,
	}
	initial := HistoryEntry{
		Status:    StatusPending,
		Notes:     "order created",
		ChangedBy: &req.UserID,
	}

	id, err := s.orders.Create(ctx, o, req.Items, initial)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	h, err := s.orders.GetHydrated(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "hydrate order")
	}

	s.notifier.OrderCreated(h)
	return h, nil
}

// UpdateStatus applies a status transition validated against the transition
// table. On success it mutates only the fields documented for the target
// state, appends exactly one history row, and dispatches the state-specific
// notification after commit. On violation the order is left untouched.
func (s *Service) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Hydrated, error) {
	err := s.orders.Transition(ctx, req.OrderID, func(o *Order) (HistoryEntry, error) {
		if err := o.Status.CanTransitionTo(req.NewStatus); err != nil {
			return HistoryEntry{}, err
		}
		s.applyTransition(o, req)
		actor := req.ActorID
		return HistoryEntry{
			Status:    req.NewStatus,
			Notes:     req.Notes,
			ChangedBy: &actor,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	h, err := s.orders.GetHydrated(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "hydrate order")
	}

	switch req.NewStatus {
	case StatusShipped:
		s.notifier.OrderShipped(h)
	case StatusDelivered:
		s.notifier.OrderDelivered(h)
	case StatusCancelled:
		s.notifier.OrderCancelled(h)
	}
	return h, nil
}

// applyTransition sets the per-state side effects on the order.
func (s *Service) applyTransition(o *Order, req UpdateStatusRequest) {
	now := s.now()
	o.Status = req.NewStatus

	switch req.NewStatus {
	case StatusShipped:
		o.ShippedAt = &now
		if req.TrackingNumber != nil {
			o.TrackingNumber = req.TrackingNumber
		}
		if req.TrackingURL != nil {
			o.TrackingURL = req.TrackingURL
		}
		if req.EstimatedDelivery != nil {
			o.EstimatedDelivery = req.EstimatedDelivery
		}
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
		reason := req.Notes
		if reason == "" {
			reason = defaultCancellationReason
		}
		o.CancellationReason = &reason
	}
}

// Cancel cancels an order on behalf of its owner (or any order for
// privileged callers). Cancellation is only permitted from pending, paid,
// or processing; otherwise it fails with NotCancellableError and leaves
// the order untouched.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*Hydrated, error) {
	err := s.orders.Transition(ctx, req.OrderID, func(o *Order) (HistoryEntry, error) {
		if !req.Privileged && o.UserID != req.ActorID {
			return HistoryEntry{}, ErrNotFound
		}
		if !o.Status.Cancellable() {
			return HistoryEntry{}, &NotCancellableError{Status: o.Status}
		}

		s.applyTransition(o, UpdateStatusRequest{
			OrderID:   req.OrderID,
			NewStatus: StatusCancelled,
			Notes:     req.Reason,
		})
		actor := req.ActorID
		return HistoryEntry{
			Status:    StatusCancelled,
			Notes:     req.Reason,
			ChangedBy: &actor,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	h, err := s.orders.GetHydrated(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "hydrate order")
	}

	s.notifier.OrderCancelled(h)
	return h, nil
}

// Get returns one hydrated order.
func (s *Service) Get(ctx context.Context, orderID int64) (*Hydrated, error) {
	return s.orders.GetHydrated(ctx, orderID)
}

// List returns a filtered, paginated view over all orders. The reported
// total counts every matching row regardless of the pagination limit.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	f = f.Normalize()
	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return newPage(orders, total, f), nil
}

// ListForUser is List scoped to a single customer.
func (s *Service) ListForUser(ctx context.Context, userID int64, f Filter) (*Page, error) {
	f.UserID = &userID
	return s.List(ctx, f)
}
