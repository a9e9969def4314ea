package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"farmhub/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes notification events to the notification topic.
// Keys are the order ID so events for one order stay ordered per partition.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishNotification publishes a notification event
func (ep *EventPublisher) PublishNotification(ctx context.Context, event *models.NotificationEvent) error {
	key := fmt.Sprintf("order-%d", event.Order.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// NotificationHandler consumes notification events from the topic.
type NotificationHandler struct {
	onNotification func(context.Context, *models.NotificationEvent) error
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(fn func(context.Context, *models.NotificationEvent) error) *NotificationHandler {
	return &NotificationHandler{onNotification: fn}
}

// HandleMessage decodes a notification event and dispatches it
func (nh *NotificationHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.NotificationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal notification event: %w", err)
	}
	return nh.onNotification(ctx, &event)
}
