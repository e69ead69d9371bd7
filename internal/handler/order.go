package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/order"
)

type createItemRequest struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type createOrderRequest struct {
	UserID           int64               `json:"userId"`
	AddressID        int64               `json:"addressId"`
	Items            []createItemRequest `json:"items"`
	ShippingMethodID *int64              `json:"shippingMethodId"`
	CouponCode       string              `json:"couponCode"`
	TotalAmount      decimal.Decimal     `json:"totalAmount"`
}

// CreateOrder handles POST /api/orders. Non-privileged keys always create
// orders for their own user, whatever the body says.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := req.UserID
	if !ident.Privileged || userID == 0 {
		userID = ident.UserID
	}

	items := make([]order.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}

	created, err := h.orders.Create(r.Context(), order.CreateRequest{
		UserID:           userID,
		AddressID:        req.AddressID,
		Items:            items,
		ShippingMethodID: req.ShippingMethodID,
		CouponCode:       req.CouponCode,
		TotalAmount:      req.TotalAmount,
	})
	if err != nil {
		zctx.From(r.Context()).Warn("create order rejected", zap.Error(err))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(created))
}

// GetOrder handles GET /api/orders/{id}. Customers only see their own
// orders; a foreign order id reads as not found.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	found, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ident.Privileged && found.UserID != ident.UserID {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(found))
}

type updateStatusRequest struct {
	Status            string     `json:"status"`
	Notes             string     `json:"notes"`
	TrackingNumber    *string    `json:"trackingNumber"`
	TrackingURL       *string    `json:"trackingUrl"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
}

// UpdateOrderStatus handles POST /api/orders/{id}/status. Privileged keys
// only.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !ident.Privileged {
		writeError(w, http.StatusForbidden, "privileged API key required")
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	next := order.Status(req.Status)
	if !next.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(req.Status))
		return
	}

	updated, err := h.orders.UpdateStatus(r.Context(), order.UpdateStatusRequest{
		OrderID:           id,
		NewStatus:         next,
		Notes:             req.Notes,
		TrackingNumber:    req.TrackingNumber,
		TrackingURL:       req.TrackingURL,
		EstimatedDelivery: req.EstimatedDelivery,
		ActorID:           ident.UserID,
	})
	if err != nil {
		zctx.From(r.Context()).Warn("status update rejected",
			zap.Int64("order_id", id),
			zap.String("status", req.Status),
			zap.Error(err),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder handles POST /api/orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	cancelled, err := h.orders.Cancel(r.Context(), order.CancelRequest{
		OrderID:    id,
		ActorID:    ident.UserID,
		Reason:     req.Reason,
		Privileged: ident.Privileged,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(cancelled))
}

// ListOrders handles GET /api/orders. Non-privileged keys are scoped to
// their own orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}

	var (
		page *order.Page
		err  error
	)
	if ident.Privileged {
		page, err = h.orders.List(r.Context(), f)
	} else {
		page, err = h.orders.ListForUser(r.Context(), ident.UserID, f)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListResponse(page))
}

// ExportOrders handles GET /api/orders/export, streaming the filtered
// orders as CSV. Privileged keys only. Clients that accept gzip get a
// compressed stream.
func (h *Handler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !ident.Privileged {
		writeError(w, http.StatusForbidden, "privileged API key required")
		return
	}
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.csv"`)

	var err error
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		err = h.orders.ExportCSVGzip(r.Context(), w, f)
	} else {
		err = h.orders.ExportCSV(r.Context(), w, f)
	}
	if err != nil {
		// Headers are out already; all we can do is log and cut the stream.
		zctx.From(r.Context()).Error("export failed", zap.Error(err))
	}
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

// parseFilter builds the typed filter from query parameters: status,
// userId, search, from, to, limit, offset. Dates accept RFC3339 or
// YYYY-MM-DD.
func parseFilter(w http.ResponseWriter, r *http.Request) (order.Filter, bool) {
	var f order.Filter
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		st := order.Status(s)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(s))
			return f, false
		}
		f.Status = &st
	}
	if s := q.Get("userId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid userId")
			return f, false
		}
		f.UserID = &id
	}
	f.Search = strings.TrimSpace(q.Get("search"))

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &f.CreatedFrom},
		{"to", &f.CreatedTo},
	} {
		s := q.Get(p.name)
		if s == "" {
			continue
		}
		t, err := parseTimeParam(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+p.name+" date")
			return f, false
		}
		*p.dst = &t
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return f, false
		}
		f.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return f, false
		}
		f.Offset = n
	}

	return f, true
}

func parseTimeParam(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
