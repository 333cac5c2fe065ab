package models

import (
	"time"

	"github.com/google/uuid"
)

// Order lifecycle statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Order groups one or more order items for a user.
type Order struct {
	OrderID     uuid.UUID   `json:"order_id" db:"order_id"`
	UserID      uuid.UUID   `json:"user_id" db:"user_id"`
	TotalAmount float64     `json:"total_amount" db:"total_amount"`
	Status      string      `json:"status" db:"status"`
	Items       []OrderItem `json:"items,omitempty" db:"-"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty" db:"updated_at"`
}

// OrderItem is a single line in an order. Price is captured at order time so
// later catalog changes do not rewrite history.
type OrderItem struct {
	OrderItemID uuid.UUID `json:"order_item_id" db:"order_item_id"`
	OrderID     uuid.UUID `json:"order_id" db:"order_id"`
	ItemID      uuid.UUID `json:"item_id" db:"item_id"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Price       float64   `json:"price" db:"price"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// orderTransitions maps each status to the statuses it may move to. The
// lifecycle only moves forward; cancellation is possible until the order
// has shipped.
var orderTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered},
}

// OrderTransitionAllowed reports whether an order may move from one status
// to another. Terminal statuses have no outgoing transitions.
func OrderTransitionAllowed(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
