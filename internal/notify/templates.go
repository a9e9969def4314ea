package notify

import (
	"fmt"
	"strings"

	"farmhub/internal/models"
)

// Channel names
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Message is one rendered delivery: a channel, a recipient, and a body.
type Message struct {
	Channel string
	To      string
	Subject string
	Body    string
}

// RenderMessages expands a notification event into per-recipient,
// per-channel deliveries. Recipients without an address on a channel are
// skipped silently.
func RenderMessages(ev *models.NotificationEvent) []Message {
	var out []Message

	add := func(party models.Party, subject, body string) {
		if party.Email != "" {
			out = append(out, Message{Channel: ChannelEmail, To: party.Email, Subject: subject, Body: body})
		}
		if party.Phone != "" {
			out = append(out, Message{Channel: ChannelSMS, To: party.Phone, Body: body})
		}
	}

	order := ev.Order
	summary := orderSummaryLines(order)

	switch ev.Event {
	case models.EventOrderCreated:
		subject := fmt.Sprintf("Order Request #%d", order.OrderID)
		add(order.Buyer, subject, "Your order request has been sent to the farmer.\n"+summary)
		add(order.Farmer, subject, fmt.Sprintf("You have a new order request from %s.\n%s", nameOr(order.Buyer.Name, "a buyer"), summary))

	case models.EventOrderAccepted:
		subject := fmt.Sprintf("Order Accepted #%d", order.OrderID)
		add(order.Buyer, subject, fmt.Sprintf("Your order was accepted by %s.\n%s", nameOr(order.Farmer.Name, "the farmer"), summary))

	case models.EventOrderStarted:
		subject := fmt.Sprintf("Order In Progress #%d", order.OrderID)
		add(order.Buyer, subject, "Your order is now in progress.\n"+summary)

	case models.EventOrderCancelled:
		subject := fmt.Sprintf("Order Cancelled #%d", order.OrderID)
		reason := nameOr(order.CancelReason, "No reason provided")
		body := fmt.Sprintf("Order was cancelled by %s. Reason: %s.", order.CancelledByRole, reason)
		add(order.Buyer, subject, body)
		add(order.Farmer, subject, body)

	case models.EventOrderCompleted:
		subject := fmt.Sprintf("Order Completed #%d", order.OrderID)
		body := "Order has been marked completed.\n" + summary
		add(order.Buyer, subject, body)
		add(order.Farmer, subject, body)

	case models.EventPaymentSuccessful:
		if ev.Payment == nil {
			return out
		}
		subject := fmt.Sprintf("Payment Successful #%d", ev.Payment.PaymentID)
		add(order.Buyer, subject, "Your payment was successful.\n"+summary)
		add(order.Farmer, subject, "A buyer completed payment for your order.\n"+summary)

	case models.EventPaymentFailed:
		if ev.Payment == nil {
			return out
		}
		subject := fmt.Sprintf("Payment Failed #%d", ev.Payment.PaymentID)
		amountLine := fmt.Sprintf("Amount: %s %s", FormatAmount(ev.Payment.Amount), ev.Payment.Currency)
		add(order.Buyer, subject, "Payment failed or was not completed.\n"+amountLine)
	}

	return out
}

func orderSummaryLines(order models.OrderContext) string {
	lines := make([]string, 0, len(order.Items)+1)
	for _, item := range order.Items {
		lines = append(lines, fmt.Sprintf("- %s x%d @ %s", item.Name, item.Quantity, FormatAmount(item.UnitPrice)))
	}
	lines = append(lines, fmt.Sprintf("Subtotal: %s", FormatAmount(order.Subtotal)))
	return strings.Join(lines, "\n")
}

// FormatAmount renders minor units as a dollar string, e.g. 1050 -> $10.50.
func FormatAmount(minorUnits int64) string {
	sign := ""
	if minorUnits < 0 {
		sign = "-"
		minorUnits = -minorUnits
	}
	return fmt.Sprintf("%s$%d.%02d", sign, minorUnits/100, minorUnits%100)
}

func nameOr(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}
