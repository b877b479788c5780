package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"order-fulfillment/internal/models"
	"order-fulfillment/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer, logger: util.GetLogger()}
}

// PublishOrderConfirmed publishes the OrderConfirmed fact keyed by order id,
// so all facts of one order share a partition.
func (ep *EventPublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) (err error) {
	ctx, span := util.StartSpan(ctx, "EventPublisher.PublishOrderConfirmed")
	defer func() { util.EndSpan(span, err) }()

	err = ep.producer.PublishEvent(ctx, event.OrderID, event)
	ep.observe(event.EventType, err)
	if err == nil {
		ep.logger.Info("Published OrderConfirmed event",
			zap.String("order_id", event.OrderID),
			zap.String("event_id", event.EventID))
	}
	return err
}

// Republish sends a stored outbox payload as is.
func (ep *EventPublisher) Republish(ctx context.Context, entry *models.OutboxEntry) (err error) {
	ctx, span := util.StartSpan(ctx, "EventPublisher.Republish")
	defer func() { util.EndSpan(span, err) }()

	err = ep.producer.PublishRaw(ctx, entry.Key, entry.Payload, nil)
	ep.observe(entry.EventType, err)
	return err
}

func (ep *EventPublisher) observe(eventType string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
}

// OrderConfirmedHandler adapts fn into a MessageHandler. Messages that cannot
// be decoded are reported as permanent failures; other event types are
// skipped.
func OrderConfirmedHandler(fn func(context.Context, *models.OrderConfirmedEvent) error) MessageHandler {
	logger := util.GetLogger()

	return func(ctx context.Context, msg kafka.Message) error {
		var event models.OrderConfirmedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return Permanent(fmt.Errorf("failed to unmarshal OrderConfirmed event: %w", err))
		}

		if event.EventType != models.EventTypeOrderConfirmed {
			logger.Warn("Unhandled event type",
				zap.String("event_type", event.EventType),
				zap.String("event_id", event.EventID))
			return nil
		}
		if event.OrderID == "" {
			return Permanent(fmt.Errorf("event %s: missing order id", event.EventID))
		}

		logger.Debug("Handling event",
			zap.String("event_type", event.EventType),
			zap.String("event_id", event.EventID),
			zap.String("order_id", event.OrderID))
		return fn(ctx, &event)
	}
}
