// Package notify builds notification events on lifecycle edges and hands
// them to the outbound queue. Delivery happens asynchronously in the worker;
// nothing in this package ever fails the transition that triggered it.
package notify

import (
	"context"
	"time"

	"farmhub/internal/models"
	"farmhub/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Directory resolves recipients and order lines at dispatch time so the
// worker can deliver without reading the database.
type Directory interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// Publisher queues a notification event for asynchronous delivery.
type Publisher interface {
	PublishNotification(ctx context.Context, event *models.NotificationEvent) error
}

// Dispatcher fans out lifecycle notifications. Fire-and-forget: every error
// is logged and dropped.
type Dispatcher struct {
	dir       Directory
	publisher Publisher
	logger    *zap.Logger
}

func NewDispatcher(dir Directory, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		dir:       dir,
		publisher: publisher,
		logger:    util.NamedLogger("notify"),
	}
}

// OrderEvent publishes a notification for an order lifecycle edge.
func (d *Dispatcher) OrderEvent(ctx context.Context, event string, order *models.Order) {
	orderCtx, err := d.buildOrderContext(ctx, order)
	if err != nil {
		d.logger.Error("Failed to build notification context",
			zap.String("event", event),
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}

	d.publish(ctx, &models.NotificationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			Timestamp: time.Now(),
		},
		Event: event,
		Order: *orderCtx,
	})
}

// PaymentEvent publishes a notification for a payment settlement edge with
// full order context.
func (d *Dispatcher) PaymentEvent(ctx context.Context, event string, payment *models.Payment, order *models.Order) {
	orderCtx, err := d.buildOrderContext(ctx, order)
	if err != nil {
		d.logger.Error("Failed to build notification context",
			zap.String("event", event),
			zap.Int64("payment_id", payment.ID),
			zap.Error(err))
		return
	}

	d.publish(ctx, &models.NotificationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			Timestamp: time.Now(),
		},
		Event: event,
		Order: *orderCtx,
		Payment: &models.PaymentContext{
			PaymentID: payment.ID,
			Provider:  payment.Provider,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
		},
	})
}

func (d *Dispatcher) publish(ctx context.Context, event *models.NotificationEvent) {
	if err := d.publisher.PublishNotification(ctx, event); err != nil {
		d.logger.Error("Failed to publish notification event",
			zap.String("event", event.Event),
			zap.Int64("order_id", event.Order.OrderID),
			zap.Error(err))
		return
	}
	util.NotificationsPublishedTotal.WithLabelValues(event.Event).Inc()
}

func (d *Dispatcher) buildOrderContext(ctx context.Context, order *models.Order) (*models.OrderContext, error) {
	buyer, err := d.dir.GetUserByID(ctx, order.BuyerID)
	if err != nil {
		return nil, err
	}
	farmer, err := d.dir.GetUserByID(ctx, order.FarmerID)
	if err != nil {
		return nil, err
	}

	items := order.Items
	if len(items) == 0 {
		items, err = d.dir.GetOrderItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
	}

	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}
	products, err := d.dir.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	lines := make([]models.ItemLine, len(items))
	for i, item := range items {
		name := names[item.ProductID]
		if name == "" {
			name = "Item"
		}
		lines[i] = models.ItemLine{
			Name:      name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	orderCtx := &models.OrderContext{
		OrderID:  order.ID,
		Buyer:    toParty(buyer),
		Farmer:   toParty(farmer),
		Items:    lines,
		Subtotal: order.Subtotal,
	}
	if order.CancellationReason != nil {
		orderCtx.CancelReason = *order.CancellationReason
	}
	if order.CancelledByRole != nil {
		orderCtx.CancelledByRole = *order.CancelledByRole
	}
	return orderCtx, nil
}

func toParty(u *models.User) models.Party {
	return models.Party{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}
