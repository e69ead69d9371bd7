// Package handler exposes the order-management API over HTTP. Routing is
// chi, request bodies are JSON, and all business decisions live in the
// domain services.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// OrderService is the slice of the order domain service the handlers use.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Hydrated, error)
	UpdateStatus(ctx context.Context, req order.UpdateStatusRequest) (*order.Hydrated, error)
	Cancel(ctx context.Context, req order.CancelRequest) (*order.Hydrated, error)
	Get(ctx context.Context, orderID int64) (*order.Hydrated, error)
	List(ctx context.Context, f order.Filter) (*order.Page, error)
	ListForUser(ctx context.Context, userID int64, f order.Filter) (*order.Page, error)
	ExportCSV(ctx context.Context, w io.Writer, f order.Filter) error
	ExportCSVGzip(ctx context.Context, w io.Writer, f order.Filter) error
}

var _ OrderService = (*order.Service)(nil)

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	orders OrderService
	keys   APIKeyRepository
}

// New constructs a Handler.
func New(orders OrderService, keys APIKeyRepository) *Handler {
	return &Handler{orders: orders, keys: keys}
}

// Routes builds the API router. Every /api route requires an API key;
// status updates and exports additionally require a privileged key.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Use(h.Authenticate)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/export", h.ExportOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/orders/{id}/status", h.UpdateOrderStatus)
		r.Post("/orders/{id}/cancel", h.CancelOrder)
	})

	return r
}
