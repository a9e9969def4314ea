package service

import (
	"context"
	"testing"

	"farmhub/internal/apperr"
	"farmhub/internal/auth"
	"farmhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderStore struct {
	products map[int64]models.Product
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
	nextID   int64

	// forces the next UpdateOrder to lose the version race
	conflictNext bool
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		products: make(map[int64]models.Product),
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]models.OrderItem),
	}
}

func (f *fakeOrderStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	f.nextID++
	order.ID = f.nextID
	order.Version = 1
	stored := *order
	f.orders[order.ID] = &stored
	for i := range items {
		items[i].OrderID = order.ID
	}
	f.items[order.ID] = items
	return nil
}

func (f *fakeOrderStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %d not found", id)
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) GetOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeOrderStore) ListOrders(_ context.Context, userID int64, role, status string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		if role == models.RoleBuyer && o.BuyerID != userID {
			continue
		}
		if role == models.RoleFarmer && o.FarmerID != userID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrderStore) UpdateOrder(_ context.Context, order *models.Order) error {
	if f.conflictNext {
		f.conflictNext = false
		return apperr.Conflict("order %d was modified concurrently", order.ID)
	}
	stored, ok := f.orders[order.ID]
	if !ok {
		return apperr.NotFound("order %d not found", order.ID)
	}
	if stored.Version != order.Version {
		return apperr.Conflict("order %d was modified concurrently", order.ID)
	}
	order.Version++
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

type recordedEvent struct {
	event   string
	orderID int64
}

type fakeNotifier struct {
	events []recordedEvent
}

func (f *fakeNotifier) OrderEvent(_ context.Context, event string, order *models.Order) {
	f.events = append(f.events, recordedEvent{event: event, orderID: order.ID})
}

func (f *fakeNotifier) PaymentEvent(_ context.Context, event string, _ *models.Payment, order *models.Order) {
	f.events = append(f.events, recordedEvent{event: event, orderID: order.ID})
}

func (f *fakeNotifier) count(event string) int {
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

const (
	buyerID  = int64(10)
	farmerID = int64(20)
)

var (
	buyer       = models.Actor{ID: buyerID, Role: models.RoleBuyer}
	farmer      = models.Actor{ID: farmerID, Role: models.RoleFarmer}
	otherBuyer  = models.Actor{ID: 77, Role: models.RoleBuyer}
	otherFarmer = models.Actor{ID: 88, Role: models.RoleFarmer}
)

func newTestOrderService() (*OrderService, *fakeOrderStore, *fakeNotifier) {
	store := newFakeOrderStore()
	store.products[1] = models.Product{ID: 1, FarmerID: farmerID, Name: "Tomatoes", PriceMin: 1000}
	store.products[2] = models.Product{ID: 2, FarmerID: farmerID, Name: "Yams", PriceMin: 500}
	store.products[3] = models.Product{ID: 3, FarmerID: 99, Name: "Maize", PriceMin: 300}

	notifier := &fakeNotifier{}
	svc := NewOrderService(store, nil, auth.NewGuard(), notifier)
	return svc, store, notifier
}

func createTestOrder(t *testing.T, svc *OrderService) *models.Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), buyer, &CreateOrderRequest{
		Items: []OrderItemRequest{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 3},
		},
	})
	require.NoError(t, err)
	return order
}

func TestCreateOrderSnapshotsPricesAndSubtotal(t *testing.T) {
	svc, store, notifier := newTestOrderService()

	order := createTestOrder(t, svc)

	assert.Equal(t, models.OrderStatusRequested, order.Status)
	assert.Equal(t, buyerID, order.BuyerID)
	assert.Equal(t, farmerID, order.FarmerID)
	assert.Equal(t, int64(2*1000+3*500), order.Subtotal)

	items := store.items[order.ID]
	require.Len(t, items, 2)
	assert.Equal(t, int64(1000), items[0].UnitPrice)
	assert.Equal(t, int64(500), items[1].UnitPrice)

	assert.Equal(t, 1, notifier.count(models.EventOrderCreated))
}

func TestCreateOrderLaterPriceChangeDoesNotAffectSnapshot(t *testing.T) {
	svc, store, _ := newTestOrderService()

	order := createTestOrder(t, svc)

	p := store.products[1]
	p.PriceMin = 9999
	store.products[1] = p

	loaded, err := svc.GetOrder(context.Background(), order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, order.Subtotal, loaded.Subtotal)
	assert.Equal(t, int64(1000), loaded.Items[0].UnitPrice)
}

func TestCreateOrderRejectsNonBuyer(t *testing.T) {
	svc, _, notifier := newTestOrderService()

	_, err := svc.CreateOrder(context.Background(), farmer, &CreateOrderRequest{
		Items: []OrderItemRequest{{ProductID: 1, Quantity: 1}},
	})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Empty(t, notifier.events)
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	svc, _, _ := newTestOrderService()

	_, err := svc.CreateOrder(context.Background(), buyer, &CreateOrderRequest{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCreateOrderRejectsZeroQuantity(t *testing.T) {
	svc, _, _ := newTestOrderService()

	_, err := svc.CreateOrder(context.Background(), buyer, &CreateOrderRequest{
		Items: []OrderItemRequest{{ProductID: 1, Quantity: 0}},
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCreateOrderRejectsMixedFarmers(t *testing.T) {
	svc, _, _ := newTestOrderService()

	_, err := svc.CreateOrder(context.Background(), buyer, &CreateOrderRequest{
		Items: []OrderItemRequest{
			{ProductID: 1, Quantity: 1},
			{ProductID: 3, Quantity: 1},
		},
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCreateOrderRejectsUnknownProduct(t *testing.T) {
	svc, _, _ := newTestOrderService()

	_, err := svc.CreateOrder(context.Background(), buyer, &CreateOrderRequest{
		Items: []OrderItemRequest{{ProductID: 404, Quantity: 1}},
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAcceptTransitionsRequestedOrder(t *testing.T) {
	svc, _, notifier := newTestOrderService()
	order := createTestOrder(t, svc)

	accepted, err := svc.Accept(context.Background(), order.ID, farmer)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAccepted, accepted.Status)
	assert.Equal(t, 1, notifier.count(models.EventOrderAccepted))
}

func TestAcceptRejectsWrongFarmer(t *testing.T) {
	svc, _, _ := newTestOrderService()
	order := createTestOrder(t, svc)

	_, err := svc.Accept(context.Background(), order.ID, otherFarmer)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestAcceptRejectsBuyer(t *testing.T) {
	svc, _, _ := newTestOrderService()
	order := createTestOrder(t, svc)

	_, err := svc.Accept(context.Background(), order.ID, buyer)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestTransitionLegality(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		from     string
		acceptOK bool
		startOK  bool
	}{
		{from: models.OrderStatusRequested, acceptOK: true, startOK: false},
		{from: models.OrderStatusAccepted, acceptOK: false, startOK: true},
		{from: models.OrderStatusInProgress, acceptOK: false, startOK: false},
		{from: models.OrderStatusCancelled, acceptOK: false, startOK: false},
		{from: models.OrderStatusCompleted, acceptOK: false, startOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.from, func(t *testing.T) {
			svc, store, _ := newTestOrderService()
			order := createTestOrder(t, svc)
			store.orders[order.ID].Status = tc.from

			_, err := svc.Accept(ctx, order.ID, farmer)
			if tc.acceptOK {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindInvalidState), "accept from %s: %v", tc.from, err)
			}

			svc2, store2, _ := newTestOrderService()
			order2 := createTestOrder(t, svc2)
			store2.orders[order2.ID].Status = tc.from

			_, err = svc2.Start(ctx, order2.ID, farmer)
			if tc.startOK {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindInvalidState), "start from %s: %v", tc.from, err)
			}
		})
	}
}

func TestConfirmCompletionBothPartiesCompleteOrder(t *testing.T) {
	svc, _, notifier := newTestOrderService()
	order := createTestOrder(t, svc)

	_, err := svc.Accept(context.Background(), order.ID, farmer)
	require.NoError(t, err)

	after, err := svc.ConfirmCompletion(context.Background(), order.ID, buyer)
	require.NoError(t, err)
	assert.True(t, after.BuyerConfirmed)
	assert.False(t, after.FarmerConfirmed)
	assert.Equal(t, models.OrderStatusAccepted, after.Status)
	assert.Equal(t, 0, notifier.count(models.EventOrderCompleted))

	done, err := svc.ConfirmCompletion(context.Background(), order.ID, farmer)
	require.NoError(t, err)
	assert.True(t, done.FarmerConfirmed)
	assert.Equal(t, models.OrderStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, 1, notifier.count(models.EventOrderCompleted))
}

func TestConfirmCompletionIdempotentPerParty(t *testing.T) {
	svc, store, _ := newTestOrderService()
	order := createTestOrder(t, svc)

	_, err := svc.Accept(context.Background(), order.ID, farmer)
	require.NoError(t, err)

	first, err := svc.ConfirmCompletion(context.Background(), order.ID, buyer)
	require.NoError(t, err)
	versionAfterFirst := store.orders[order.ID].Version

	second, err := svc.ConfirmCompletion(context.Background(), order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	// re-confirming writes nothing
	assert.Equal(t, versionAfterFirst, store.orders[order.ID].Version)
}

func TestConfirmCompletionFiresExactlyOnce(t *testing.T) {
	svc, _, notifier := newTestOrderService()
	order := createTestOrder(t, svc)

	_, err := svc.Accept(context.Background(), order.ID, farmer)
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), order.ID, farmer)
	require.NoError(t, err)

	_, err = svc.ConfirmCompletion(context.Background(), order.ID, farmer)
	require.NoError(t, err)
	_, err = svc.ConfirmCompletion(context.Background(), order.ID, buyer)
	require.NoError(t, err)

	_, err = svc.ConfirmCompletion(context.Background(), order.ID, buyer)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	assert.Equal(t, 1, notifier.count(models.EventOrderCompleted))
}

func TestConfirmCompletionRejectsRequestedOrder(t *testing.T) {
	svc, _, _ := newTestOrderService()
	order := createTestOrder(t, svc)

	_, err := svc.ConfirmCompletion(context.Background(), order.ID, buyer)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestConfirmCompletionRejectsNonParticipant(t *testing.T) {
	svc, _, _ := newTestOrderService()
	order := createTestOrder(t, svc)

	_, err := svc.Accept(context.Background(), order.ID, farmer)
	require.NoError(t, err)

	_, err = svc.ConfirmCompletion(context.Background(), order.ID, otherBuyer)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestCancelRecordsRoleAndReason(t *testing.T) {
	svc, _, notifier := newTestOrderService()
	order := createTestOrder(t, svc)

	cancelled, err := svc.Cancel(context.Background(), order.ID, farmer, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledByRole)
	assert.Equal(t, models.RoleFarmer, *cancelled.CancelledByRole)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "out of stock", *cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 1, notifier.count(models.EventOrderCancelled))
}

func TestCancelRejectsTerminalOrder(t *testing.T) {
	svc, _, _ := newTestOrderService()
	order := createTestOrder(t, svc)

	_, err := svc.Cancel(context.Background(), order.ID, buyer, "changed my mind")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), order.ID, buyer, "again")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestConcurrentTransitionLosesWithConflict(t *testing.T) {
	svc, store, notifier := newTestOrderService()
	order := createTestOrder(t, svc)

	store.conflictNext = true
	_, err := svc.Accept(context.Background(), order.ID, farmer)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, 0, notifier.count(models.EventOrderAccepted))

	// the retry sees fresh state and wins
	_, err = svc.Accept(context.Background(), order.ID, farmer)
	assert.NoError(t, err)
}

func TestListOrdersFiltersByRoleSide(t *testing.T) {
	svc, _, _ := newTestOrderService()
	createTestOrder(t, svc)
	createTestOrder(t, svc)

	asBuyer, err := svc.ListOrders(context.Background(), buyer, "")
	require.NoError(t, err)
	assert.Len(t, asBuyer, 2)

	asOther, err := svc.ListOrders(context.Background(), otherBuyer, "")
	require.NoError(t, err)
	assert.Empty(t, asOther)
}

func TestListOrdersRejectsUnknownStatusFilter(t *testing.T) {
	svc, _, _ := newTestOrderService()

	_, err := svc.ListOrders(context.Background(), buyer, "shipped")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestGetOrderRejectsNonParticipant(t *testing.T) {
	svc, _, _ := newTestOrderService()
	order := createTestOrder(t, svc)

	_, err := svc.GetOrder(context.Background(), order.ID, otherFarmer)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestGetOrderIncludesItems(t *testing.T) {
	svc, _, _ := newTestOrderService()
	order := createTestOrder(t, svc)

	loaded, err := svc.GetOrder(context.Background(), order.ID, buyer)
	require.NoError(t, err)
	assert.Len(t, loaded.Items, 2)
}

func TestSubtotalMatchesItemSum(t *testing.T) {
	svc, store, _ := newTestOrderService()
	order := createTestOrder(t, svc)

	var sum int64
	for _, item := range store.items[order.ID] {
		sum += item.UnitPrice * int64(item.Quantity)
	}
	assert.Equal(t, sum, order.Subtotal)
}
