package models

import "time"

// Notification event names, one per lifecycle edge
const (
	EventOrderCreated      = "order.created"
	EventOrderAccepted     = "order.accepted"
	EventOrderStarted      = "order.started"
	EventOrderCancelled    = "order.cancelled"
	EventOrderCompleted    = "order.completed"
	EventPaymentSuccessful = "payment.successful"
	EventPaymentFailed     = "payment.failed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Party identifies a notification recipient.
type Party struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ItemLine is a rendered order line for notification bodies.
type ItemLine struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OrderContext carries the order data a notification needs, resolved at
// dispatch time so the worker never reads the database.
type OrderContext struct {
	OrderID         int64      `json:"order_id"`
	Buyer           Party      `json:"buyer"`
	Farmer          Party      `json:"farmer"`
	Items           []ItemLine `json:"items"`
	Subtotal        int64      `json:"subtotal"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CancelledByRole string     `json:"cancelled_by_role,omitempty"`
}

// PaymentContext carries settlement data for payment notifications.
type PaymentContext struct {
	PaymentID int64  `json:"payment_id"`
	Provider  string `json:"provider"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// NotificationEvent is published to the notification topic on every
// lifecycle edge and consumed by the delivery worker.
type NotificationEvent struct {
	BaseEvent
	Event   string          `json:"event"`
	Order   OrderContext    `json:"order"`
	Payment *PaymentContext `json:"payment,omitempty"`
}
