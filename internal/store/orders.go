package store

import (
	"context"
	"database/sql"

	"farmhub/internal/apperr"
	"farmhub/internal/models"
)

// CreateOrder inserts an order and its items in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (buyer_id, farmer_id, subtotal, status, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version, created_at, updated_at`

	row := tx.QueryRowxContext(ctx, query,
		order.BuyerID, order.FarmerID, order.Subtotal, order.Status, order.Note)
	if err := row.Scan(&order.ID, &order.Version, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return err
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	for i := range items {
		items[i].OrderID = order.ID
		if err := tx.GetContext(ctx, &items[i].ID, itemQuery,
			order.ID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	order.Items = items
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// ListOrders retrieves orders where the user participates in the given role,
// optionally filtered by status.
func (s *Store) ListOrders(ctx context.Context, userID int64, role, status string) ([]models.Order, error) {
	column := "buyer_id"
	if role == models.RoleFarmer {
		column = "farmer_id"
	}

	var orders []models.Order
	var err error
	if status != "" {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT * FROM orders WHERE "+column+" = $1 AND status = $2 ORDER BY created_at DESC",
			userID, status)
	} else {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT * FROM orders WHERE "+column+" = $1 ORDER BY created_at DESC", userID)
	}
	return orders, err
}

// UpdateOrder persists a transition with an optimistic version check. A
// concurrent writer that bumped the version first wins; this caller gets a
// conflict error and must re-read.
func (s *Store) UpdateOrder(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders SET
			status = $1,
			buyer_confirmed = $2,
			farmer_confirmed = $3,
			cancellation_reason = $4,
			cancelled_by_role = $5,
			cancelled_at = $6,
			completed_at = $7,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $8 AND version = $9`

	res, err := s.db.ExecContext(ctx, query,
		order.Status, order.BuyerConfirmed, order.FarmerConfirmed,
		order.CancellationReason, order.CancelledByRole, order.CancelledAt,
		order.CompletedAt, order.ID, order.Version)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.Conflict("order %d was modified concurrently", order.ID)
	}

	order.Version++
	return nil
}
