package service

import (
	"context"
	"time"

	"farmhub/internal/apperr"
	"farmhub/internal/auth"
	"farmhub/internal/models"
	"farmhub/internal/redisclient"
	"farmhub/internal/util"

	"go.uber.org/zap"
)

const productCacheTTL = 5 * time.Minute

// OrderStore is the persistence surface the order state machine needs.
type OrderStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListOrders(ctx context.Context, userID int64, role, status string) ([]models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
}

// Notifier fans out lifecycle notifications. Implementations never return
// errors to the caller; failures are logged downstream.
type Notifier interface {
	OrderEvent(ctx context.Context, event string, order *models.Order)
	PaymentEvent(ctx context.Context, event string, payment *models.Payment, order *models.Order)
}

// OrderService owns the order lifecycle state machine.
type OrderService struct {
	store    OrderStore
	cache    *redisclient.Client
	guard    *auth.Guard
	notifier Notifier
	logger   *zap.Logger
}

// NewOrderService creates a new order service. cache may be nil.
func NewOrderService(
	store OrderStore,
	cache *redisclient.Client,
	guard *auth.Guard,
	notifier Notifier,
) *OrderService {
	return &OrderService{
		store:    store,
		cache:    cache,
		guard:    guard,
		notifier: notifier,
		logger:   util.NamedLogger("orders"),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	Items          []OrderItemRequest `json:"items" binding:"required,min=1"`
	Note           string             `json:"note"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CreateOrder validates the cart, snapshots unit prices, and persists a new
// order in the requested state.
func (s *OrderService) CreateOrder(ctx context.Context, actor models.Actor, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := s.guard.CanCreateOrder(actor); err != nil {
		util.OrdersRejectedTotal.WithLabelValues("forbidden").Inc()
		return nil, err
	}
	if len(req.Items) == 0 {
		util.OrdersRejectedTotal.WithLabelValues("empty_items").Inc()
		return nil, apperr.Validation("items are required")
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			util.OrdersRejectedTotal.WithLabelValues("invalid_quantity").Inc()
			return nil, apperr.Validation("quantity must be at least 1")
		}
	}

	if req.IdempotencyKey != "" && s.cache != nil {
		existingID, err := s.cache.GetOrderIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			s.logger.Warn("Idempotency lookup failed", zap.Error(err))
		} else if existingID != 0 {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existingID))
			return s.loadOrder(ctx, existingID)
		}
	}

	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	farmerID, err := singleFarmer(req.Items, products)
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues("mixed_farmers").Inc()
		return nil, err
	}

	items := make([]models.OrderItem, len(req.Items))
	var subtotal int64
	for i, item := range req.Items {
		unitPrice := products[item.ProductID].PriceMin
		items[i] = models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
		}
		subtotal += unitPrice * int64(item.Quantity)
	}

	order := &models.Order{
		BuyerID:  actor.ID,
		FarmerID: farmerID,
		Subtotal: subtotal,
		Status:   models.OrderStatusRequested,
		Note:     req.Note,
	}

	if err := s.store.CreateOrder(ctx, order, items); err != nil {
		util.OrdersRejectedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}
	util.OrderSpanAttrs(span, order.ID, order.BuyerID, order.FarmerID)

	if req.IdempotencyKey != "" && s.cache != nil {
		if _, err := s.cache.SetOrderIdempotencyKey(ctx, req.IdempotencyKey, order.ID, 24*time.Hour); err != nil {
			s.logger.Warn("Failed to record idempotency key", zap.Error(err))
		}
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("farmer_id", order.FarmerID),
		zap.Int64("subtotal", order.Subtotal))

	s.notifier.OrderEvent(ctx, models.EventOrderCreated, order)
	return order, nil
}

// Accept moves a requested order to accepted. Farmer-only.
func (s *OrderService) Accept(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Accept")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanAct(actor, order, auth.ActionOrderAccept); err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusRequested {
		return nil, apperr.InvalidState("order not in requested state")
	}

	order.Status = models.OrderStatusAccepted
	if err := s.applyTransition(ctx, order); err != nil {
		return nil, err
	}

	s.notifier.OrderEvent(ctx, models.EventOrderAccepted, order)
	return order, nil
}

// Start moves an accepted order to in_progress. Farmer-only.
func (s *OrderService) Start(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Start")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanAct(actor, order, auth.ActionOrderStart); err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusAccepted {
		return nil, apperr.InvalidState("order not in accepted state")
	}

	order.Status = models.OrderStatusInProgress
	if err := s.applyTransition(ctx, order); err != nil {
		return nil, err
	}

	s.notifier.OrderEvent(ctx, models.EventOrderStarted, order)
	return order, nil
}

// ConfirmCompletion records the calling participant's confirmation. The role
// is derived from which identity matches the order, never from client input.
// Once both parties have confirmed, the order completes; that edge fires
// exactly once.
func (s *OrderService) ConfirmCompletion(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmCompletion")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanAct(actor, order, auth.ActionOrderConfirm); err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusAccepted && order.Status != models.OrderStatusInProgress {
		return nil, apperr.InvalidState("order not in progress")
	}

	role := order.ParticipantRole(actor.ID)
	alreadySet := (role == models.RoleBuyer && order.BuyerConfirmed) ||
		(role == models.RoleFarmer && order.FarmerConfirmed)
	if alreadySet {
		return order, nil
	}

	if role == models.RoleBuyer {
		order.BuyerConfirmed = true
	} else {
		order.FarmerConfirmed = true
	}

	completing := order.BuyerConfirmed && order.FarmerConfirmed
	if completing {
		now := time.Now()
		order.Status = models.OrderStatusCompleted
		order.CompletedAt = &now
	}

	if err := s.applyTransition(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("Completion confirmed",
		zap.Int64("order_id", order.ID),
		zap.String("role", role),
		zap.Bool("completed", completing))

	if completing {
		s.notifier.OrderEvent(ctx, models.EventOrderCompleted, order)
	}
	return order, nil
}

// Cancel moves any non-terminal order to cancelled. Either participant may
// cancel; the canceller's role and reason are recorded.
func (s *OrderService) Cancel(ctx context.Context, orderID int64, actor models.Actor, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanAct(actor, order, auth.ActionOrderCancel); err != nil {
		return nil, err
	}
	if order.Terminal() {
		return nil, apperr.InvalidState("order already finalized")
	}

	now := time.Now()
	role := order.ParticipantRole(actor.ID)
	order.Status = models.OrderStatusCancelled
	order.CancellationReason = &reason
	order.CancelledByRole = &role
	order.CancelledAt = &now

	if err := s.applyTransition(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("cancelled_by", role),
		zap.String("reason", reason))

	s.notifier.OrderEvent(ctx, models.EventOrderCancelled, order)
	return order, nil
}

// ListOrders returns the caller's orders filtered by their role side and an
// optional status.
func (s *OrderService) ListOrders(ctx context.Context, actor models.Actor, status string) ([]models.Order, error) {
	if status != "" && !validStatus(status) {
		return nil, apperr.Validation("unknown status filter: %s", status)
	}
	return s.store.ListOrders(ctx, actor.ID, actor.Role, status)
}

// GetOrder fetches an order with its items; participants only.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanAct(actor, order, auth.ActionOrderView); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) loadOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *OrderService) applyTransition(ctx context.Context, order *models.Order) error {
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			util.OrderTransitionConflicts.Inc()
		}
		return err
	}
	util.OrderTransitionsTotal.WithLabelValues(order.Status).Inc()
	return nil
}

// resolveProducts loads every product referenced by the cart, using the
// cache when available.
func (s *OrderService) resolveProducts(ctx context.Context, items []OrderItemRequest) (map[int64]models.Product, error) {
	resolved := make(map[int64]models.Product, len(items))
	var missing []int64

	for _, item := range items {
		if _, ok := resolved[item.ProductID]; ok {
			continue
		}
		if s.cache != nil {
			cached, err := s.cache.GetCachedProduct(ctx, item.ProductID)
			if err != nil {
				s.logger.Warn("Product cache lookup failed",
					zap.Int64("product_id", item.ProductID),
					zap.Error(err))
			} else if cached != nil {
				resolved[item.ProductID] = *cached
				continue
			}
		}
		missing = append(missing, item.ProductID)
	}

	if len(missing) > 0 {
		products, err := s.store.GetProductsByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			resolved[p.ID] = p
			if s.cache != nil {
				product := p
				if err := s.cache.CacheProduct(ctx, &product, productCacheTTL); err != nil {
					s.logger.Warn("Failed to cache product", zap.Error(err))
				}
			}
		}
	}

	for _, item := range items {
		if _, ok := resolved[item.ProductID]; !ok {
			util.OrdersRejectedTotal.WithLabelValues("product_not_found").Inc()
			return nil, apperr.Validation("product not found: %d", item.ProductID)
		}
	}
	return resolved, nil
}

// singleFarmer enforces that every item in the cart belongs to one farmer.
func singleFarmer(items []OrderItemRequest, products map[int64]models.Product) (int64, error) {
	var farmerID int64
	for _, item := range items {
		owner := products[item.ProductID].FarmerID
		if farmerID == 0 {
			farmerID = owner
			continue
		}
		if owner != farmerID {
			return 0, apperr.Validation("all items must belong to the same farmer")
		}
	}
	return farmerID, nil
}

func validStatus(status string) bool {
	switch status {
	case models.OrderStatusRequested, models.OrderStatusAccepted, models.OrderStatusInProgress,
		models.OrderStatusCancelled, models.OrderStatusCompleted:
		return true
	}
	return false
}
