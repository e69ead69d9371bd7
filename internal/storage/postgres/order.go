package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const insertOrderSQL = `
INSERT INTO orders (user_id, address_id, status, total_amount, shipping_method_id, coupon_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING order_id, created_at`

const insertHistorySQL = `
INSERT INTO order_status_history (order_id, status, notes, changed_by)
VALUES ($1, $2, $3, $4)`

// Create inserts the order, its items, the initial history row, and the
// guarded coupon-usage increment in one transaction. Nothing survives a
// failure at any step.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, items []order.Item, initial order.HistoryEntry) (int64, error) {
	var id int64
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrderSQL,
			o.UserID, o.AddressID, o.Status, o.TotalAmount, o.ShippingMethodID, o.CouponID,
		).Scan(&id, &o.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "insert order")
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"order_item"},
			[]string{"order_id", "product_id", "quantity", "price"},
			pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
				return []any{id, items[i].ProductID, items[i].Quantity, items[i].UnitPrice}, nil
			}),
		)
		if err != nil {
			return errors.Wrap(err, "insert order items")
		}

		if _, err := tx.Exec(ctx, insertHistorySQL, id, initial.Status, initial.Notes, initial.ChangedBy); err != nil {
			return errors.Wrap(err, "insert history")
		}

		if o.CouponID != nil {
			if err := incrementUsage(ctx, tx, *o.CouponID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	o.ID = id
	return id, nil
}

const selectOrderForUpdateSQL = `
SELECT order_id, user_id, address_id, status, total_amount,
       shipping_method_id, coupon_id, tracking_number, tracking_url,
       shipped_at, delivered_at, cancelled_at, cancellation_reason,
       estimated_delivery, created_at
FROM orders
WHERE order_id = $1
FOR UPDATE`

const updateOrderSQL = `
UPDATE orders
SET status = $2, tracking_number = $3, tracking_url = $4,
    shipped_at = $5, delivered_at = $6, cancelled_at = $7,
    cancellation_reason = $8, estimated_delivery = $9
WHERE order_id = $1`

// Transition locks the order row, applies mutate, persists the mutated
// fields, and appends the history entry, all in one transaction. A mutate
// error rolls everything back.
func (r *OrderRepository) Transition(ctx context.Context, orderID int64, mutate func(o *order.Order) (order.HistoryEntry, error)) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var o order.Order
		err := tx.QueryRow(ctx, selectOrderForUpdateSQL, orderID).Scan(
			&o.ID, &o.UserID, &o.AddressID, &o.Status, &o.TotalAmount,
			&o.ShippingMethodID, &o.CouponID, &o.TrackingNumber, &o.TrackingURL,
			&o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.CancellationReason,
			&o.EstimatedDelivery, &o.CreatedAt,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return errors.Wrap(err, "load order")
		}

		entry, err := mutate(&o)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, updateOrderSQL,
			o.ID, o.Status, o.TrackingNumber, o.TrackingURL,
			o.ShippedAt, o.DeliveredAt, o.CancelledAt,
			o.CancellationReason, o.EstimatedDelivery,
		)
		if err != nil {
			return errors.Wrap(err, "update order")
		}

		if _, err := tx.Exec(ctx, insertHistorySQL, o.ID, entry.Status, entry.Notes, entry.ChangedBy); err != nil {
			return errors.Wrap(err, "insert history")
		}
		return nil
	})
}

const selectHydratedSQL = `
SELECT o.order_id, o.user_id, o.address_id, o.status, o.total_amount,
       o.shipping_method_id, o.coupon_id, o.tracking_number, o.tracking_url,
       o.shipped_at, o.delivered_at, o.cancelled_at, o.cancellation_reason,
       o.estimated_delivery, o.created_at,
       u.name, u.email, u.phone,
       a.line1, a.city, a.postcode, a.country,
       sm.name, sm.cost,
       c.code, c.discount
FROM orders o
JOIN users u ON u.user_id = o.user_id
JOIN addresses a ON a.address_id = o.address_id
LEFT JOIN shipping_methods sm ON sm.shipping_method_id = o.shipping_method_id
LEFT JOIN coupons c ON c.coupon_id = o.coupon_id
WHERE o.order_id = $1`

const selectItemsSQL = `
SELECT oi.product_id, p.name, oi.quantity, oi.price
FROM order_item oi
JOIN products p ON p.product_id = oi.product_id
WHERE oi.order_id = $1
ORDER BY oi.order_item_id`

const selectHistorySQL = `
SELECT status, notes, changed_by, created_at
FROM order_status_history
WHERE order_id = $1
ORDER BY created_at DESC, id DESC`

// GetHydrated returns the order joined with its user, address, shipping
// method, coupon, items, and history (most recent first).
func (r *OrderRepository) GetHydrated(ctx context.Context, orderID int64) (*order.Hydrated, error) {
	var (
		h          order.Hydrated
		smName     *string
		smCost     *decimal.Decimal
		couponCode *string
		couponDisc *decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, selectHydratedSQL, orderID).Scan(
		&h.ID, &h.UserID, &h.AddressID, &h.Status, &h.TotalAmount,
		&h.ShippingMethodID, &h.CouponID, &h.TrackingNumber, &h.TrackingURL,
		&h.ShippedAt, &h.DeliveredAt, &h.CancelledAt, &h.CancellationReason,
		&h.EstimatedDelivery, &h.CreatedAt,
		&h.User.Name, &h.User.Email, &h.User.Phone,
		&h.Address.Line1, &h.Address.City, &h.Address.Postcode, &h.Address.Country,
		&smName, &smCost,
		&couponCode, &couponDisc,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "load order %d", orderID)
	}
	h.User.ID = h.UserID
	h.Address.ID = h.AddressID

	if h.ShippingMethodID != nil && smName != nil {
		h.ShippingMethod = &order.ShippingMethod{ID: *h.ShippingMethodID, Name: *smName, Cost: *smCost}
	}
	if h.CouponID != nil && couponCode != nil {
		h.Coupon = &order.CouponInfo{ID: *h.CouponID, Code: *couponCode, Discount: *couponDisc}
	}

	rows, err := r.pool.Query(ctx, selectItemsSQL, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load items")
	}
	h.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.ItemDetail, error) {
		var it order.ItemDetail
		err := row.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan items")
	}

	rows, err = r.pool.Query(ctx, selectHistorySQL, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load history")
	}
	h.History, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.HistoryEntry, error) {
		var e order.HistoryEntry
		err := row.Scan(&e.Status, &e.Notes, &e.ChangedBy, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan history")
	}

	return &h, nil
}

// AddressOwner returns the owning user of an address.
func (r *OrderRepository) AddressOwner(ctx context.Context, addressID int64) (int64, error) {
	var owner int64
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM addresses WHERE address_id = $1`, addressID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, order.ErrAddressNotFound
		}
		return 0, errors.Wrapf(err, "load address %d", addressID)
	}
	return owner, nil
}

// ShippingCost returns the cost of a shipping method, or zero for nil.
func (r *OrderRepository) ShippingCost(ctx context.Context, methodID *int64) (decimal.Decimal, error) {
	if methodID == nil {
		return decimal.Zero, nil
	}
	var cost decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT cost FROM shipping_methods WHERE shipping_method_id = $1`, *methodID).Scan(&cost)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "load shipping method %d", *methodID)
	}
	return cost, nil
}

// whereClause translates the typed filter into SQL conditions over the
// aliased orders table ("o").
func whereClause(f order.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Status != nil {
		conds = append(conds, "o.status = "+arg(*f.Status))
	}
	if f.UserID != nil {
		conds = append(conds, "o.user_id = "+arg(*f.UserID))
	}
	if f.Search != "" {
		like := "o.tracking_number ILIKE " + arg("%"+f.Search+"%")
		if id, err := strconv.ParseInt(f.Search, 10, 64); err == nil {
			conds = append(conds, "("+like+" OR o.order_id = "+arg(id)+")")
		} else {
			conds = append(conds, like)
		}
	}
	if f.CreatedFrom != nil {
		conds = append(conds, "o.created_at >= "+arg(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		conds = append(conds, "o.created_at <= "+arg(*f.CreatedTo))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const listSelectSQL = `
SELECT o.order_id, o.user_id, u.name, u.email, o.status, o.total_amount,
       o.tracking_number,
       (SELECT COUNT(*) FROM order_item oi WHERE oi.order_id = o.order_id),
       o.created_at
FROM orders o
JOIN users u ON u.user_id = o.user_id`

// List returns filtered order summaries and the total count of matching
// rows independent of the pagination limit.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Summary, int, error) {
	where, args := whereClause(f)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders o"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	query := fmt.Sprintf("%s%s ORDER BY o.created_at DESC LIMIT %d OFFSET %d",
		listSelectSQL, where, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Summary, error) {
		var s order.Summary
		err := row.Scan(&s.OrderID, &s.UserID, &s.CustomerName, &s.CustomerEmail,
			&s.Status, &s.TotalAmount, &s.TrackingNumber, &s.ItemCount, &s.CreatedAt)
		return s, err
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan orders")
	}
	return summaries, total, nil
}

const exportSelectSQL = `
SELECT o.order_id, u.name, u.email, u.phone, o.status, o.total_amount,
       (SELECT COALESCE(string_agg(oi.quantity::text || 'x ' || p.name, '; ' ORDER BY oi.order_item_id), '')
        FROM order_item oi
        JOIN products p ON p.product_id = oi.product_id
        WHERE oi.order_id = o.order_id),
       COALESCE(o.tracking_number, ''),
       o.created_at,
       a.line1 || ', ' || a.city || ' ' || a.postcode || ', ' || a.country
FROM orders o
JOIN users u ON u.user_id = o.user_id
JOIN addresses a ON a.address_id = o.address_id`

// ListForExport returns unpaginated export rows, newest first.
func (r *OrderRepository) ListForExport(ctx context.Context, f order.Filter) ([]order.ExportRow, error) {
	where, args := whereClause(f)

	rows, err := r.pool.Query(ctx, exportSelectSQL+where+" ORDER BY o.created_at DESC", args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders for export")
	}

	export, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.ExportRow, error) {
		var e order.ExportRow
		err := row.Scan(&e.OrderID, &e.CustomerName, &e.CustomerEmail, &e.CustomerPhone,
			&e.Status, &e.TotalAmount, &e.ItemSummary, &e.TrackingNumber, &e.CreatedAt, &e.Address)
		return e, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan export rows")
	}
	return export, nil
}
