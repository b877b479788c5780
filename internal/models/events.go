package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderConfirmedEvent is the fact published once an order is confirmed
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	Items       []OrderItemData `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// NewOrderConfirmedEvent snapshots a confirmed order into its wire fact.
func NewOrderConfirmedEvent(o *Order) *OrderConfirmedEvent {
	lines := o.Lines()
	items := make([]OrderItemData, 0, len(lines))
	for _, line := range lines {
		items = append(items, OrderItemData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	return &OrderConfirmedEvent{
		BaseEvent: BaseEvent{
			EventID:   uuid.New().String(),
			EventType: EventTypeOrderConfirmed,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     o.ID(),
		CustomerID:  o.CustomerID(),
		Items:       items,
		TotalAmount: o.TotalAmount(),
		Status:      o.Status(),
	}
}
