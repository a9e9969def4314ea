package models

import "time"

// Roles for marketplace participants
const (
	RoleBuyer  = "buyer"
	RoleFarmer = "farmer"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

// User represents a marketplace participant
type User struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Product represents a catalog listing owned by a farmer
type Product struct {
	ID        int64     `db:"id" json:"id"`
	FarmerID  int64     `db:"farmer_id" json:"farmer_id"`
	Name      string    `db:"name" json:"name"`
	PriceMin  int64     `db:"price_min" json:"price_min"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusRequested  = "requested"
	OrderStatusAccepted   = "accepted"
	OrderStatusInProgress = "in_progress"
	OrderStatusCancelled  = "cancelled"
	OrderStatusCompleted  = "completed"
)

// Order represents a buyer-farmer transaction
type Order struct {
	ID                 int64      `db:"id" json:"id"`
	BuyerID            int64      `db:"buyer_id" json:"buyer_id"`
	FarmerID           int64      `db:"farmer_id" json:"farmer_id"`
	Subtotal           int64      `db:"subtotal" json:"subtotal"`
	Status             string     `db:"status" json:"status"`
	BuyerConfirmed     bool       `db:"buyer_confirmed" json:"buyer_confirmed"`
	FarmerConfirmed    bool       `db:"farmer_confirmed" json:"farmer_confirmed"`
	Note               string     `db:"note" json:"note,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledByRole    *string    `db:"cancelled_by_role" json:"cancelled_by_role,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Version            int64      `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// Terminal reports whether the order can no longer transition.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusCancelled || o.Status == OrderStatusCompleted
}

// ParticipantRole returns the role a user plays on this order, "" if none.
func (o *Order) ParticipantRole(userID int64) string {
	switch userID {
	case o.BuyerID:
		return RoleBuyer
	case o.FarmerID:
		return RoleFarmer
	default:
		return ""
	}
}

// OrderItem carries an immutable unit price snapshot taken at order creation.
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// Payment providers
const (
	ProviderFlutterwave = "flutterwave"
	ProviderPaga        = "paga"
)

// Payment statuses
const (
	PaymentStatusPending    = "pending"
	PaymentStatusSuccessful = "successful"
	PaymentStatusFailed     = "failed"
)

// Payment represents one settlement attempt against an order. Buyer and
// farmer are denormalized from the order at creation for audit stability.
type Payment struct {
	ID             int64     `db:"id" json:"id"`
	OrderID        int64     `db:"order_id" json:"order_id"`
	BuyerID        int64     `db:"buyer_id" json:"buyer_id"`
	FarmerID       int64     `db:"farmer_id" json:"farmer_id"`
	Provider       string    `db:"provider" json:"provider"`
	Amount         int64     `db:"amount" json:"amount"`
	Currency       string    `db:"currency" json:"currency"`
	Status         string    `db:"status" json:"status"`
	ProviderRef    string    `db:"provider_ref" json:"provider_ref"`
	WebhookPayload []byte    `db:"webhook_payload" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the payment is settled.
func (p *Payment) Terminal() bool {
	return p.Status == PaymentStatusSuccessful || p.Status == PaymentStatusFailed
}

// ParticipantRole returns the role a user plays on this payment's order.
func (p *Payment) ParticipantRole(userID int64) string {
	switch userID {
	case p.BuyerID:
		return RoleBuyer
	case p.FarmerID:
		return RoleFarmer
	default:
		return ""
	}
}
