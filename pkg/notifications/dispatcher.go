package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/healo-ai/concierge/pkg/common/kafka"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/common/models"
)

const dispatchSource = "concierge-api"

// Dispatcher queues notifications on Kafka so the request path never waits
// on an SMS vendor. cmd/notifier-worker drains the topic.
type Dispatcher struct {
	publisher kafka.Publisher
	timeout   time.Duration
}

func NewDispatcher(publisher kafka.Publisher) *Dispatcher {
	return &Dispatcher{publisher: publisher, timeout: 5 * time.Second}
}

// Enqueue publishes the payload. Failures are logged and swallowed.
func (d *Dispatcher) Enqueue(ctx context.Context, p Payload) {
	if d == nil || d.publisher == nil {
		return
	}
	data, err := payloadData(p)
	if err != nil {
		logger.Log.WithError(err).WithField("inquiry_id", p.InquiryID).Error("failed to encode admin notification")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.publisher.PublishEvent(ctx, models.EventTypeAdminNotification, dispatchSource, data); err != nil {
		logger.Log.WithError(err).WithField("inquiry_id", p.InquiryID).Warn("failed to enqueue admin notification")
	}
}

func payloadData(p Payload) (map[string]interface{}, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	err = json.Unmarshal(raw, &data)
	return data, err
}

// PayloadFromEvent is the inverse of Enqueue.
func PayloadFromEvent(event models.Event) (Payload, error) {
	var p Payload
	if event.Type != models.EventTypeAdminNotification {
		return p, fmt.Errorf("unexpected event type %q", event.Type)
	}
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if p.InquiryID <= 0 {
		return p, fmt.Errorf("admin notification without inquiryId")
	}
	return p, nil
}

// EventHandler adapts the notifier to kafka.Consumer. Malformed events are
// logged and acknowledged so they are not redelivered forever.
func (n *Notifier) EventHandler() kafka.EventHandler {
	return func(ctx context.Context, event models.Event) error {
		p, err := PayloadFromEvent(event)
		if err != nil {
			logger.Log.WithError(err).WithField("event_id", event.ID).Warn("dropping admin notification event")
			return nil
		}
		n.Notify(ctx, p)
		return nil
	}
}
