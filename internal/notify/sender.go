package notify

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// LogSender writes notifications to the log. It is the default sender when
// no webhook is configured.
type LogSender struct {
	lg *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(lg *zap.Logger) *LogSender {
	return &LogSender{lg: lg}
}

// Send logs the event.
func (s *LogSender) Send(_ context.Context, ev Event) error {
	s.lg.Info("order notification",
		zap.String("event", string(ev.Type)),
		zap.Int64("order_id", ev.Order.ID),
		zap.String("status", string(ev.Order.Status)),
		zap.String("customer", ev.Order.User.Email),
	)
	return nil
}

// WebhookSender POSTs a JSON payload describing the event to a fixed URL.
type WebhookSender struct {
	client *http.Client
	url    string
}

// NewWebhookSender creates a WebhookSender. A nil client falls back to a
// default with a 10s timeout.
func NewWebhookSender(client *http.Client, url string) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSender{client: client, url: url}
}

// Send delivers the event. Any non-2xx response is an error.
func (s *WebhookSender) Send(ctx context.Context, ev Event) error {
	body := encodeEvent(ev)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// encodeEvent builds the webhook JSON payload.
func encodeEvent(ev Event) []byte {
	o := ev.Order

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("event", func(e *jx.Encoder) { e.Str(string(ev.Type)) })
		e.Field("order_id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("total_amount", func(e *jx.Encoder) { e.Str(o.TotalAmount.StringFixed(2)) })
		e.Field("customer_email", func(e *jx.Encoder) { e.Str(o.User.Email) })
		if o.TrackingNumber != nil {
			e.Field("tracking_number", func(e *jx.Encoder) { e.Str(*o.TrackingNumber) })
		}
		if o.CancellationReason != nil {
			e.Field("cancellation_reason", func(e *jx.Encoder) { e.Str(*o.CancellationReason) })
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
	})
	return e.Bytes()
}
