package store

import (
	"context"
	"database/sql"

	"farmhub/internal/apperr"
	"farmhub/internal/models"
)

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, buyer_id, farmer_id, provider, amount, currency, status, provider_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		payment.OrderID, payment.BuyerID, payment.FarmerID, payment.Provider,
		payment.Amount, payment.Currency, payment.Status, payment.ProviderRef)
	return row.Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("payment not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByProviderRef retrieves a payment by its (provider, reference)
// dedup key.
func (s *Store) GetPaymentByProviderRef(ctx context.Context, provider, ref string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE provider = $1 AND provider_ref = $2", provider, ref)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("payment not found for reference: %s", ref)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SettlePayment moves a pending payment to a terminal status and stores the
// webhook payload. Returns false when the payment is already terminal, which
// makes provider retries a no-op.
func (s *Store) SettlePayment(ctx context.Context, id int64, status string, payload []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $2, webhook_payload = $3, updated_at = NOW() WHERE id = $1 AND status = $4",
		id, status, payload, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// StoreWebhookPayload records the latest raw payload for audit without
// touching payment status.
func (s *Store) StoreWebhookPayload(ctx context.Context, id int64, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET webhook_payload = $2, updated_at = NOW() WHERE id = $1",
		id, payload)
	return err
}
