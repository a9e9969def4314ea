// Package auth holds the single authorization decision surface for orders
// and payments. All role and ownership policy lives here; handlers and
// services never re-derive it.
package auth

import (
	"farmhub/internal/apperr"
	"farmhub/internal/models"
)

// Action is an operation an actor intends to perform on a subject.
type Action string

const (
	ActionOrderCreate     Action = "order.create"
	ActionOrderView       Action = "order.view"
	ActionOrderAccept     Action = "order.accept"
	ActionOrderStart      Action = "order.start"
	ActionOrderConfirm    Action = "order.confirm"
	ActionOrderCancel     Action = "order.cancel"
	ActionPaymentInitiate Action = "payment.initiate"
	ActionPaymentView     Action = "payment.view"
)

// Subject is an order, or a payment resolved to its order's participants.
type Subject interface {
	ParticipantRole(userID int64) string
}

// Guard decides whether an actor may perform an action on a subject.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// CanCreateOrder checks the role-only precondition for order creation, which
// has no subject yet.
func (g *Guard) CanCreateOrder(actor models.Actor) error {
	if actor.Role != models.RoleBuyer {
		return apperr.Forbidden("only buyers can create orders")
	}
	return nil
}

// CanAct decides allow/deny for an action on an existing order or payment.
func (g *Guard) CanAct(actor models.Actor, subject Subject, action Action) error {
	role := subject.ParticipantRole(actor.ID)

	switch action {
	case ActionOrderView, ActionPaymentView:
		if role == "" {
			return apperr.Forbidden("not a participant")
		}

	case ActionOrderAccept, ActionOrderStart:
		if actor.Role != models.RoleFarmer {
			return apperr.Forbidden("only farmers can perform this action")
		}
		if role != models.RoleFarmer {
			return apperr.Forbidden("not your order")
		}

	case ActionOrderConfirm, ActionOrderCancel:
		if role == "" {
			return apperr.Forbidden("not a participant")
		}

	case ActionPaymentInitiate:
		if actor.Role != models.RoleBuyer {
			return apperr.Forbidden("only buyers can initiate payments")
		}
		if role != models.RoleBuyer {
			return apperr.Forbidden("not your order")
		}

	default:
		return apperr.Forbidden("unknown action")
	}

	return nil
}
