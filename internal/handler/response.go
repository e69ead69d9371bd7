package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/order"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Code: code, Message: message})
}

// writeDomainError maps domain errors onto HTTP statuses: missing resources
// are 404, state conflicts 409, semantic rejections 422, malformed input
// 400, everything else 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		invalidTransition *order.InvalidTransitionError
		notCancellable    *order.NotCancellableError
		invalidQuantity   *order.InvalidQuantityError
		totalMismatch     *order.TotalMismatchError
	)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrAddressNotFound):
		writeError(w, http.StatusUnprocessableEntity, "address not found")
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, "order requires at least one item")
	case errors.As(err, &invalidQuantity):
		writeError(w, http.StatusUnprocessableEntity, invalidQuantity.Error())
	case errors.As(err, &totalMismatch):
		writeError(w, http.StatusUnprocessableEntity, totalMismatch.Error())
	case errors.As(err, &invalidTransition):
		writeError(w, http.StatusConflict, invalidTransition.Error())
	case errors.As(err, &notCancellable):
		writeError(w, http.StatusConflict, notCancellable.Error())
	case errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrExhausted):
		writeError(w, http.StatusUnprocessableEntity, "invalid coupon code")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type userResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type addressResponse struct {
	Line1    string `json:"line1"`
	City     string `json:"city"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

type shippingResponse struct {
	Name string `json:"name"`
	Cost string `json:"cost"`
}

type couponResponse struct {
	Code     string `json:"code"`
	Discount string `json:"discount"`
}

type itemResponse struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
}

type historyResponse struct {
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	ChangedBy *int64    `json:"changedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type orderResponse struct {
	ID                 int64             `json:"id"`
	Status             string            `json:"status"`
	TotalAmount        string            `json:"totalAmount"`
	User               userResponse      `json:"user"`
	Address            addressResponse   `json:"address"`
	ShippingMethod     *shippingResponse `json:"shippingMethod,omitempty"`
	Coupon             *couponResponse   `json:"coupon,omitempty"`
	Items              []itemResponse    `json:"items"`
	History            []historyResponse `json:"history"`
	TrackingNumber     *string           `json:"trackingNumber,omitempty"`
	TrackingURL        *string           `json:"trackingUrl,omitempty"`
	ShippedAt          *time.Time        `json:"shippedAt,omitempty"`
	DeliveredAt        *time.Time        `json:"deliveredAt,omitempty"`
	CancelledAt        *time.Time        `json:"cancelledAt,omitempty"`
	CancellationReason *string           `json:"cancellationReason,omitempty"`
	EstimatedDelivery  *time.Time        `json:"estimatedDelivery,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
}

func toOrderResponse(h *order.Hydrated) orderResponse {
	resp := orderResponse{
		ID:          h.ID,
		Status:      string(h.Status),
		TotalAmount: h.TotalAmount.StringFixed(2),
		User: userResponse{
			ID:    h.User.ID,
			Name:  h.User.Name,
			Email: h.User.Email,
			Phone: h.User.Phone,
		},
		Address: addressResponse{
			Line1:    h.Address.Line1,
			City:     h.Address.City,
			Postcode: h.Address.Postcode,
			Country:  h.Address.Country,
		},
		TrackingNumber:     h.TrackingNumber,
		TrackingURL:        h.TrackingURL,
		ShippedAt:          h.ShippedAt,
		DeliveredAt:        h.DeliveredAt,
		CancelledAt:        h.CancelledAt,
		CancellationReason: h.CancellationReason,
		EstimatedDelivery:  h.EstimatedDelivery,
		CreatedAt:          h.CreatedAt,
	}
	if h.ShippingMethod != nil {
		resp.ShippingMethod = &shippingResponse{
			Name: h.ShippingMethod.Name,
			Cost: h.ShippingMethod.Cost.StringFixed(2),
		}
	}
	if h.Coupon != nil {
		resp.Coupon = &couponResponse{
			Code:     h.Coupon.Code,
			Discount: h.Coupon.Discount.StringFixed(2),
		}
	}
	resp.Items = make([]itemResponse, len(h.Items))
	for i, it := range h.Items {
		resp.Items[i] = itemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
		}
	}
	resp.History = make([]historyResponse, len(h.History))
	for i, e := range h.History {
		resp.History[i] = historyResponse{
			Status:    string(e.Status),
			Notes:     e.Notes,
			ChangedBy: e.ChangedBy,
			CreatedAt: e.CreatedAt,
		}
	}
	return resp
}

type summaryResponse struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	CustomerName   string    `json:"customerName"`
	CustomerEmail  string    `json:"customerEmail"`
	Status         string    `json:"status"`
	TotalAmount    string    `json:"totalAmount"`
	TrackingNumber *string   `json:"trackingNumber,omitempty"`
	ItemCount      int       `json:"itemCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

type paginationResponse struct {
	Total      int `json:"total"`
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
	TotalPages int `json:"totalPages"`
}

type listResponse struct {
	Orders     []summaryResponse  `json:"orders"`
	Pagination paginationResponse `json:"pagination"`
}

func toListResponse(p *order.Page) listResponse {
	orders := make([]summaryResponse, len(p.Orders))
	for i, s := range p.Orders {
		orders[i] = summaryResponse{
			ID:             s.OrderID,
			UserID:         s.UserID,
			CustomerName:   s.CustomerName,
			CustomerEmail:  s.CustomerEmail,
			Status:         string(s.Status),
			TotalAmount:    s.TotalAmount.StringFixed(2),
			TrackingNumber: s.TrackingNumber,
			ItemCount:      s.ItemCount,
			CreatedAt:      s.CreatedAt,
		}
	}
	return listResponse{
		Orders: orders,
		Pagination: paginationResponse{
			Total:      p.Total,
			Limit:      p.Limit,
			Offset:     p.Offset,
			TotalPages: p.TotalPages,
		},
	}
}
