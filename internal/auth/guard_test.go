package auth

import (
	"testing"

	"farmhub/internal/apperr"
	"farmhub/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCanCreateOrder(t *testing.T) {
	g := NewGuard()

	assert.NoError(t, g.CanCreateOrder(models.Actor{ID: 1, Role: models.RoleBuyer}))

	err := g.CanCreateOrder(models.Actor{ID: 2, Role: models.RoleFarmer})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestCanAct(t *testing.T) {
	g := NewGuard()
	order := &models.Order{ID: 1, BuyerID: 10, FarmerID: 20}

	buyer := models.Actor{ID: 10, Role: models.RoleBuyer}
	farmer := models.Actor{ID: 20, Role: models.RoleFarmer}
	stranger := models.Actor{ID: 99, Role: models.RoleBuyer}
	otherFarmer := models.Actor{ID: 88, Role: models.RoleFarmer}

	cases := []struct {
		name    string
		actor   models.Actor
		action  Action
		allowed bool
	}{
		{"buyer views own order", buyer, ActionOrderView, true},
		{"farmer views own order", farmer, ActionOrderView, true},
		{"stranger cannot view", stranger, ActionOrderView, false},

		{"farmer accepts own order", farmer, ActionOrderAccept, true},
		{"other farmer cannot accept", otherFarmer, ActionOrderAccept, false},
		{"buyer cannot accept", buyer, ActionOrderAccept, false},
		{"farmer starts own order", farmer, ActionOrderStart, true},
		{"buyer cannot start", buyer, ActionOrderStart, false},

		{"buyer confirms", buyer, ActionOrderConfirm, true},
		{"farmer confirms", farmer, ActionOrderConfirm, true},
		{"stranger cannot confirm", stranger, ActionOrderConfirm, false},
		{"buyer cancels", buyer, ActionOrderCancel, true},
		{"farmer cancels", farmer, ActionOrderCancel, true},
		{"stranger cannot cancel", stranger, ActionOrderCancel, false},

		{"buyer initiates payment", buyer, ActionPaymentInitiate, true},
		{"farmer cannot initiate payment", farmer, ActionPaymentInitiate, false},
		{"other buyer cannot initiate payment", stranger, ActionPaymentInitiate, false},

		{"unknown action denied", buyer, Action("order.delete"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.CanAct(tc.actor, order, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindForbidden), "got %v", err)
			}
		})
	}
}

func TestCanActOnPaymentSubject(t *testing.T) {
	g := NewGuard()
	payment := &models.Payment{ID: 1, BuyerID: 10, FarmerID: 20}

	assert.NoError(t, g.CanAct(models.Actor{ID: 10, Role: models.RoleBuyer}, payment, ActionPaymentView))
	assert.NoError(t, g.CanAct(models.Actor{ID: 20, Role: models.RoleFarmer}, payment, ActionPaymentView))

	err := g.CanAct(models.Actor{ID: 99, Role: models.RoleBuyer}, payment, ActionPaymentView)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}
