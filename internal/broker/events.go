package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-cart/internal/models"
	"storefront-cart/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing cart events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishCartReconciled publishes CartReconciled event
func (ep *EventPublisher) PublishCartReconciled(ctx context.Context, event *models.CartReconciledEvent) error {
	key := fmt.Sprintf("user-%s", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onCartReconciled func(context.Context, *models.CartReconciledEvent) error
	onOrderConfirmed func(context.Context, *models.OrderConfirmedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnCartReconciled registers a handler for CartReconciled events
func (eh *EventHandler) OnCartReconciled(handler func(context.Context, *models.CartReconciledEvent) error) {
	eh.onCartReconciled = handler
}

// OnOrderConfirmed registers a handler for OrderConfirmed events
func (eh *EventHandler) OnOrderConfirmed(handler func(context.Context, *models.OrderConfirmedEvent) error) {
	eh.onOrderConfirmed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eventType := baseEvent.EventType
	for _, h := range msg.Headers {
		if h.Key == EventTypeHeader && len(h.Value) > 0 {
			eventType = string(h.Value)
		}
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", eventType),
		zap.String("event_id", baseEvent.EventID))

	switch eventType {
	case models.EventTypeCartReconciled:
		if eh.onCartReconciled != nil {
			var event models.CartReconciledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CartReconciled event: %w", err)
			}
			return eh.onCartReconciled(ctx, &event)
		}

	case models.EventTypeOrderConfirmed:
		if eh.onOrderConfirmed != nil {
			var event models.OrderConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderConfirmed event: %w", err)
			}
			return eh.onOrderConfirmed(ctx, &event)
		}

	default:
		eh.logger.Debug("Ignoring event", zap.String("event_type", eventType))
	}

	return nil
}
