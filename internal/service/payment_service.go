package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"farmhub/internal/apperr"
	"farmhub/internal/auth"
	"farmhub/internal/models"
	"farmhub/internal/provider"
	"farmhub/internal/util"

	"go.uber.org/zap"
)

// PaymentStore is the persistence surface the payment ledger needs.
type PaymentStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByProviderRef(ctx context.Context, providerName, ref string) (*models.Payment, error)
	SettlePayment(ctx context.Context, id int64, status string, payload []byte) (bool, error)
	StoreWebhookPayload(ctx context.Context, id int64, payload []byte) error
}

// PaymentService owns the payment ledger: initiation by the buyer and
// settlement by provider webhooks. No human party ever sets a payment status.
type PaymentService struct {
	store     PaymentStore
	providers *provider.Registry
	guard     *auth.Guard
	notifier  Notifier
	currency  string
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store PaymentStore,
	providers *provider.Registry,
	guard *auth.Guard,
	notifier Notifier,
	currency string,
) *PaymentService {
	return &PaymentService{
		store:     store,
		providers: providers,
		guard:     guard,
		notifier:  notifier,
		currency:  currency,
		logger:    util.NamedLogger("payments"),
	}
}

// Initiate creates a pending payment for an order and returns the
// provider-specific checkout payload. The amount is captured from the order
// subtotal at this moment and never recomputed. No order state changes.
func (ps *PaymentService) Initiate(ctx context.Context, actor models.Actor, orderID int64, providerName string) (*models.Payment, map[string]interface{}, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Initiate")
	defer span.End()

	gateway, err := ps.providers.Get(providerName)
	if err != nil {
		return nil, nil, err
	}

	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if err := ps.guard.CanAct(actor, order, auth.ActionPaymentInitiate); err != nil {
		return nil, nil, err
	}
	util.OrderSpanAttrs(span, order.ID, order.BuyerID, order.FarmerID)

	// Provider-tag + order id + nanosecond timestamp keeps references
	// globally unique across retries.
	providerRef := fmt.Sprintf("%s-%d-%d", gateway.RefPrefix(), order.ID, time.Now().UnixNano())

	payment := &models.Payment{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		FarmerID:    order.FarmerID,
		Provider:    gateway.Name(),
		Amount:      order.Subtotal,
		Currency:    ps.currency,
		Status:      models.PaymentStatusPending,
		ProviderRef: providerRef,
	}

	if err := ps.store.CreatePayment(ctx, payment); err != nil {
		return nil, nil, fmt.Errorf("failed to create payment: %w", err)
	}

	util.PaymentsInitiatedTotal.WithLabelValues(gateway.Name()).Inc()
	ps.logger.Info("Payment initiated",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("order_id", order.ID),
		zap.String("provider", gateway.Name()),
		zap.String("provider_ref", providerRef),
		zap.Int64("amount", payment.Amount))

	return payment, gateway.InitPayload(payment), nil
}

// HandleWebhook verifies and applies one provider callback. Verification
// happens before any payment lookup; settlement is a compare-and-swap from
// pending so provider retries are idempotent and never re-fire
// notifications.
func (ps *PaymentService) HandleWebhook(ctx context.Context, providerName string, headers http.Header, query url.Values, body []byte) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	gateway, err := ps.providers.Get(providerName)
	if err != nil {
		return err
	}
	util.WebhooksReceivedTotal.WithLabelValues(providerName).Inc()

	if err := gateway.VerifyWebhook(headers, query); err != nil {
		util.WebhooksRejectedTotal.WithLabelValues(providerName, "signature").Inc()
		ps.logger.Warn("Webhook signature verification failed",
			zap.String("provider", providerName))
		return err
	}

	result, err := gateway.ParseWebhook(body)
	if err != nil {
		util.WebhooksRejectedTotal.WithLabelValues(providerName, "malformed").Inc()
		return err
	}

	payment, err := ps.store.GetPaymentByProviderRef(ctx, providerName, result.Reference)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			util.WebhooksRejectedTotal.WithLabelValues(providerName, "unknown_reference").Inc()
		}
		return err
	}

	newStatus := classifyStatus(result.Status)
	if newStatus == "" {
		// Unrecognized status text: keep the payment as-is but retain the
		// payload for audit.
		if err := ps.store.StoreWebhookPayload(ctx, payment.ID, body); err != nil {
			return err
		}
		ps.logger.Info("Webhook with unrecognized status, no transition",
			zap.Int64("payment_id", payment.ID),
			zap.String("status_text", result.Status))
		return nil
	}

	settled, err := ps.store.SettlePayment(ctx, payment.ID, newStatus, body)
	if err != nil {
		return err
	}
	if !settled {
		if err := ps.store.StoreWebhookPayload(ctx, payment.ID, body); err != nil {
			return err
		}
		ps.logger.Info("Duplicate webhook for settled payment",
			zap.Int64("payment_id", payment.ID),
			zap.String("status", payment.Status))
		return nil
	}

	payment.Status = newStatus
	payment.WebhookPayload = body
	util.PaymentsSettledTotal.WithLabelValues(providerName, newStatus).Inc()
	ps.logger.Info("Payment settled",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("order_id", payment.OrderID),
		zap.String("status", newStatus))

	order, err := ps.store.GetOrderByID(ctx, payment.OrderID)
	if err != nil {
		ps.logger.Error("Failed to load order for payment notification",
			zap.Int64("order_id", payment.OrderID),
			zap.Error(err))
		return nil
	}

	event := models.EventPaymentSuccessful
	if newStatus == models.PaymentStatusFailed {
		event = models.EventPaymentFailed
	}
	ps.notifier.PaymentEvent(ctx, event, payment, order)
	return nil
}

// GetPayment retrieves a payment; participants on the linked order only.
func (ps *PaymentService) GetPayment(ctx context.Context, id int64, actor models.Actor) (*models.Payment, error) {
	payment, err := ps.store.GetPaymentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ps.guard.CanAct(actor, payment, auth.ActionPaymentView); err != nil {
		return nil, err
	}
	return payment, nil
}

// classifyStatus maps provider status text onto our terminal statuses.
// Anything unrecognized leaves the payment untouched.
func classifyStatus(statusText string) string {
	s := strings.ToLower(statusText)
	switch {
	case strings.Contains(s, "success"):
		return models.PaymentStatusSuccessful
	case strings.Contains(s, "fail"), strings.Contains(s, "error"):
		return models.PaymentStatusFailed
	default:
		return ""
	}
}
