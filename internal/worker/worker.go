package worker

import (
	"context"
	"time"

	"farmhub/internal/broker"
	"farmhub/internal/models"
	"farmhub/internal/notify"
	"farmhub/internal/util"

	"go.uber.org/zap"
)

const deliveryAttempts = 3

// NotificationWorker consumes notification events from the outbound queue
// and delivers them per channel. Delivery is best-effort: a failing channel
// or recipient never affects the others, and exhausted retries are dropped
// with a logged failure.
type NotificationWorker struct {
	consumer *broker.Consumer
	handler  *broker.NotificationHandler
	email    notify.EmailSender
	sms      notify.SMSSender
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker. Either sender may
// be nil when its channel is not configured.
func NewNotificationWorker(
	consumer *broker.Consumer,
	email notify.EmailSender,
	sms notify.SMSSender,
) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		email:    email,
		sms:      sms,
		logger:   util.NamedLogger("notification-worker"),
	}
	w.handler = broker.NewNotificationHandler(w.Deliver)
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// Deliver fans one event out to all recipients and channels. Always returns
// nil so the message is committed; there is nothing useful in redelivering
// an event whose downstream provider is failing.
func (w *NotificationWorker) Deliver(ctx context.Context, event *models.NotificationEvent) error {
	for _, msg := range notify.RenderMessages(event) {
		w.deliverOne(ctx, event.Event, msg)
	}
	return nil
}

func (w *NotificationWorker) deliverOne(ctx context.Context, event string, msg notify.Message) {
	var lastErr error
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		lastErr = w.send(ctx, msg)
		if lastErr == nil {
			util.NotificationsDeliveredTotal.WithLabelValues(msg.Channel).Inc()
			return
		}
		if attempt < deliveryAttempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	util.NotificationsDroppedTotal.WithLabelValues(msg.Channel).Inc()
	w.logger.Error("Dropping notification after retries",
		zap.String("event", event),
		zap.String("channel", msg.Channel),
		zap.Error(lastErr))
}

func (w *NotificationWorker) send(ctx context.Context, msg notify.Message) error {
	switch msg.Channel {
	case notify.ChannelEmail:
		if w.email == nil {
			return nil
		}
		return w.email.SendEmail(ctx, msg.To, msg.Subject, msg.Body)
	case notify.ChannelSMS:
		if w.sms == nil {
			return nil
		}
		return w.sms.SendSMS(ctx, msg.To, msg.Body)
	}
	return nil
}
