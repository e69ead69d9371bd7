package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/order"
)

type captureSender struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (s *captureSender) Send(_ context.Context, ev Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testOrder(id int64) *order.Hydrated {
	return &order.Hydrated{
		Order: order.Order{
			ID:          id,
			Status:      order.StatusPending,
			TotalAmount: decimal.NewFromInt(40),
			CreatedAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		User: order.User{ID: 7, Email: "ada@example.com"},
	}
}

func TestQueue_DeliversAllEvents(t *testing.T) {
	sender := &captureSender{}
	q := NewQueue(zap.NewNop(), sender, QueueConfig{Workers: 2, Buffer: 16})

	q.OrderCreated(testOrder(1))
	q.OrderShipped(testOrder(2))
	q.OrderDelivered(testOrder(3))
	q.OrderCancelled(testOrder(4))
	q.Close()

	require.Equal(t, 4, sender.count())

	seen := make(map[EventType]bool)
	for _, ev := range sender.events {
		seen[ev.Type] = true
	}
	assert.True(t, seen[EventOrderCreated])
	assert.True(t, seen[EventOrderShipped])
	assert.True(t, seen[EventOrderDelivered])
	assert.True(t, seen[EventOrderCancelled])
}

func TestQueue_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	block := make(chan struct{})
	sender := &captureSender{block: block}
	q := NewQueue(zap.NewNop(), sender, QueueConfig{Workers: 1, Buffer: 1})

	done := make(chan struct{})
	go func() {
		// First event occupies the worker, second fills the buffer, the
		// rest must be dropped without blocking this goroutine.
		for i := range 10 {
			q.OrderCreated(testOrder(int64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	close(block)
	q.Close()
	assert.LessOrEqual(t, sender.count(), 2)
}

func TestWebhookSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	o := testOrder(42)
	tracking := "TRK-42"
	o.TrackingNumber = &tracking

	s := NewWebhookSender(srv.Client(), srv.URL)
	err := s.Send(context.Background(), Event{Type: EventOrderShipped, Order: o})

	require.NoError(t, err)
	assert.Equal(t, "order.shipped", got["event"])
	assert.Equal(t, float64(42), got["order_id"])
	assert.Equal(t, "40.00", got["total_amount"])
	assert.Equal(t, "TRK-42", got["tracking_number"])
	assert.Equal(t, "ada@example.com", got["customer_email"])
}

func TestWebhookSender_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.Client(), srv.URL)
	err := s.Send(context.Background(), Event{Type: EventOrderCreated, Order: testOrder(1)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
