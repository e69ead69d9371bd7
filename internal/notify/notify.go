// Package notify delivers order notifications as detached, fire-and-forget
// tasks. Dispatch happens strictly after the business transaction commits;
// a failed or dropped notification never affects the committed state, and
// there is no ordering guarantee relative to the caller's response.
package notify

import (
	"context"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// EventType identifies the order lifecycle event being announced.
type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderShipped   EventType = "order.shipped"
	EventOrderDelivered EventType = "order.delivered"
	EventOrderCancelled EventType = "order.cancelled"
)

// Event pairs a lifecycle event with the committed order snapshot.
type Event struct {
	Type  EventType
	Order *order.Hydrated
}

// Sender performs the actual delivery of one notification.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}
