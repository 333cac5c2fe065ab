package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/html-librarian/mig-catalog/internal/models"
)

type OrderRepositoryInterface interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, orderID, userID uuid.UUID, status string) error
}

type OrderRepository struct {
	client *ScyllaClient
}

func NewOrderRepository(client *ScyllaClient) *OrderRepository {
	return &OrderRepository{client: client}
}

// Create writes the order header, the per-user view and all line items in a
// single logged batch.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateOrder.Statement(),
		order.OrderID, order.UserID, order.TotalAmount, order.Status,
		order.CreatedAt, order.UpdatedAt)

	batch.Query(r.client.Prepared.CreateOrderByUser.Statement(),
		order.UserID, order.OrderID, order.TotalAmount, order.Status,
		order.CreatedAt, order.UpdatedAt)

	for _, line := range order.Items {
		batch.Query(r.client.Prepared.CreateOrderItem.Statement(),
			line.OrderID, line.OrderItemID, line.ItemID, line.Quantity,
			line.Price, line.CreatedAt)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order := &models.Order{}

	query := r.client.Prepared.GetOrder.Bind(orderID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&order.OrderID, &order.UserID, &order.TotalAmount, &order.Status,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := r.getOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *OrderRepository) getOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	iter := r.client.Prepared.GetOrderItems.Bind(orderID).WithContext(ctx).Iter()

	var items []models.OrderItem
	for {
		var line models.OrderItem
		if !iter.Scan(&line.OrderID, &line.OrderItemID, &line.ItemID,
			&line.Quantity, &line.Price, &line.CreatedAt) {
			break
		}
		items = append(items, line)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}
	return items, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Order, error) {
	iter := r.client.Prepared.ListOrdersByUser.Bind(userID).WithContext(ctx).PageSize(limit).Iter()

	orders := make([]*models.Order, 0, limit)
	for len(orders) < limit {
		order := &models.Order{}
		if !iter.Scan(&order.OrderID, &order.UserID, &order.TotalAmount,
			&order.Status, &order.CreatedAt, &order.UpdatedAt) {
			break
		}
		orders = append(orders, order)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus changes the order status in the main table and the per-user
// view together, so listings never show a stale status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID, userID uuid.UUID, status string) error {
	now := time.Now().UTC()

	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(r.client.Prepared.UpdateOrderState.Statement(), status, &now, orderID)
	batch.Query(r.client.Prepared.UpdateOrderStateByUser.Statement(), status, &now, userID, orderID)

	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}
