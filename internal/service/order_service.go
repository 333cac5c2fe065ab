package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/client"
	"github.com/html-librarian/mig-catalog/internal/models"
	"github.com/html-librarian/mig-catalog/internal/repository/scylla"
	"github.com/html-librarian/mig-catalog/internal/util"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidOrderState = errors.New("invalid order status transition")
)

// OrderLine is one requested item in an order.
type OrderLine struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// OrderCreateRequest is the payload for placing an order.
type OrderCreateRequest struct {
	Items []OrderLine `json:"items"`
}

// orderEvent is the message published to Kafka on order changes.
type orderEvent struct {
	EventType   string    `json:"event_type"`
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	Status      string    `json:"status"`
	TotalAmount float64   `json:"total_amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// OrderService places and tracks orders. Line prices are captured from the
// current catalog at order time and the total is computed server side, so
// client-supplied amounts are never trusted. Order changes are published to
// Kafka; publish failures are logged but never roll back the write.
type OrderService struct {
	orders     scylla.OrderRepositoryInterface
	items      scylla.ItemRepositoryInterface
	producer   *client.KafkaProducer
	orderTopic string
	logger     *zap.Logger
}

func NewOrderService(
	orders scylla.OrderRepositoryInterface,
	items scylla.ItemRepositoryInterface,
	producer *client.KafkaProducer,
	orderTopic string,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orders:     orders,
		items:      items,
		producer:   producer,
		orderTopic: orderTopic,
		logger:     logger,
	}
}

// Create places an order for the user. Every referenced item must exist.
func (s *OrderService) Create(ctx context.Context, userID uuid.UUID, req OrderCreateRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one item", ErrInvalidInput)
	}

	now := time.Now().UTC()
	orderID := uuid.New()

	var total float64
	lines := make([]models.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
		}

		item, err := s.items.GetByID(ctx, line.ItemID)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return nil, fmt.Errorf("%w: item %s does not exist", ErrInvalidInput, line.ItemID)
			}
			return nil, err
		}

		total += item.Price * float64(line.Quantity)
		lines = append(lines, models.OrderItem{
			OrderItemID: uuid.New(),
			OrderID:     orderID,
			ItemID:      item.ItemID,
			Quantity:    line.Quantity,
			Price:       item.Price,
			CreatedAt:   now,
		})
	}

	order := &models.Order{
		OrderID:     orderID,
		UserID:      userID,
		TotalAmount: total,
		Status:      models.OrderStatusPending,
		Items:       lines,
		CreatedAt:   now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	s.publish(ctx, "order_created", order)

	s.logger.Info("order created",
		util.String("order_id", order.OrderID.String()),
		util.String("user_id", userID.String()),
		util.Int("items", len(lines)))

	return order, nil
}

func (s *OrderService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.orders.ListByUser(ctx, userID, limit)
}

// UpdateStatus moves an order along its lifecycle. Terminal statuses
// (delivered, cancelled) cannot change again.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if !models.OrderTransitionAllowed(order.Status, status) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidOrderState, order.Status, status)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, order.UserID, status); err != nil {
		return nil, err
	}

	order.Status = status
	now := time.Now().UTC()
	order.UpdatedAt = &now

	s.publish(ctx, "order_status_changed", order)

	return order, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *models.Order) {
	if s.producer == nil {
		return
	}

	event := orderEvent{
		EventType:   eventType,
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		OccurredAt:  time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode order event", util.ErrorField(err))
		return
	}

	err = s.producer.Produce(ctx, s.orderTopic, []byte(order.OrderID.String()), payload, map[string]string{
		"event_type": eventType,
	})
	if err != nil {
		s.logger.Warn("failed to publish order event",
			util.String("order_id", order.OrderID.String()),
			util.String("event_type", eventType),
			util.ErrorField(err))
	}
}
