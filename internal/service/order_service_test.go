package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/models"
	"github.com/html-librarian/mig-catalog/internal/repository/scylla"
)

type memoryOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: make(map[uuid.UUID]*models.Order)}
}

func (r *memoryOrderRepo) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *order
	r.orders[order.OrderID] = &copied
	return nil
}

func (r *memoryOrderRepo) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *memoryOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, order := range r.orders {
		if order.UserID == userID && len(out) < limit {
			copied := *order
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memoryOrderRepo) UpdateStatus(ctx context.Context, orderID, userID uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return scylla.ErrNotFound
	}
	order.Status = status
	return nil
}

type memoryItemRepo struct {
	items map[uuid.UUID]*models.Item
}

func newMemoryItemRepo(items ...*models.Item) *memoryItemRepo {
	r := &memoryItemRepo{items: make(map[uuid.UUID]*models.Item)}
	for _, item := range items {
		r.items[item.ItemID] = item
	}
	return r
}

func (r *memoryItemRepo) Create(ctx context.Context, item *models.Item) error {
	r.items[item.ItemID] = item
	return nil
}

func (r *memoryItemRepo) GetByID(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	item, ok := r.items[itemID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	return item, nil
}

func (r *memoryItemRepo) List(ctx context.Context, limit int) ([]*models.Item, error) {
	var out []*models.Item
	for _, item := range r.items {
		if len(out) >= limit {
			break
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *memoryItemRepo) Update(ctx context.Context, item *models.Item) error {
	r.items[item.ItemID] = item
	return nil
}

func (r *memoryItemRepo) Delete(ctx context.Context, itemID uuid.UUID) error {
	delete(r.items, itemID)
	return nil
}

func newOrderService(items ...*models.Item) (*OrderService, *memoryOrderRepo) {
	orders := newMemoryOrderRepo()
	svc := NewOrderService(orders, newMemoryItemRepo(items...), nil, "orders", zap.NewNop())
	return svc, orders
}

func TestCreateOrderComputesTotalServerSide(t *testing.T) {
	book := &models.Item{ItemID: uuid.New(), Name: "book", Price: 12.50}
	pen := &models.Item{ItemID: uuid.New(), Name: "pen", Price: 1.25}
	svc, _ := newOrderService(book, pen)
	userID := uuid.New()

	order, err := svc.Create(context.Background(), userID, OrderCreateRequest{
		Items: []OrderLine{
			{ItemID: book.ItemID, Quantity: 2},
			{ItemID: pen.ItemID, Quantity: 4},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, userID, order.UserID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.InDelta(t, 30.0, order.TotalAmount, 1e-9)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 12.50, order.Items[0].Price)
}

func TestCreateOrderRejectsUnknownItem(t *testing.T) {
	svc, _ := newOrderService()

	_, err := svc.Create(context.Background(), uuid.New(), OrderCreateRequest{
		Items: []OrderLine{{ItemID: uuid.New(), Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateOrderRejectsEmptyAndBadQuantity(t *testing.T) {
	book := &models.Item{ItemID: uuid.New(), Price: 5}
	svc, _ := newOrderService(book)
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.New(), OrderCreateRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, uuid.New(), OrderCreateRequest{
		Items: []OrderLine{{ItemID: book.ItemID, Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	book := &models.Item{ItemID: uuid.New(), Price: 5}
	svc, _ := newOrderService(book)
	ctx := context.Background()

	order, err := svc.Create(ctx, uuid.New(), OrderCreateRequest{
		Items: []OrderLine{{ItemID: book.ItemID, Quantity: 1}},
	})
	require.NoError(t, err)

	// pending -> shipped skips payment and must be rejected.
	_, err = svc.UpdateStatus(ctx, order.OrderID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrInvalidOrderState)

	for _, status := range []string{
		models.OrderStatusPaid,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	} {
		updated, err := svc.UpdateStatus(ctx, order.OrderID, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}

	// Delivered is terminal.
	_, err = svc.UpdateStatus(ctx, order.OrderID, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidOrderState)
}

func TestUpdateStatusCancelOnlyBeforeShipping(t *testing.T) {
	book := &models.Item{ItemID: uuid.New(), Price: 5}
	svc, _ := newOrderService(book)
	ctx := context.Background()

	order, err := svc.Create(ctx, uuid.New(), OrderCreateRequest{
		Items: []OrderLine{{ItemID: book.ItemID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, order.OrderID, models.OrderStatusPaid)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, order.OrderID, models.OrderStatusShipped)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, order.OrderID, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidOrderState)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	svc, _ := newOrderService()

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), models.OrderStatusPaid)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListByUserClampsLimit(t *testing.T) {
	book := &models.Item{ItemID: uuid.New(), Price: 5}
	svc, _ := newOrderService(book)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, userID, OrderCreateRequest{
			Items: []OrderLine{{ItemID: book.ItemID, Quantity: 1}},
		})
		require.NoError(t, err)
	}

	orders, err := svc.ListByUser(ctx, userID, -5)
	require.NoError(t, err)
	assert.Len(t, orders, 3)
}
