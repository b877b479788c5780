package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID        string          `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Customer is a notification recipient
type Customer struct {
	ID    string `db:"customer_id" json:"customer_id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
	Phone string `db:"phone" json:"phone"`
}

// InventoryRecord holds the stock counters of one product
type InventoryRecord struct {
	ProductID      string    `db:"product_id" json:"product_id"`
	AvailableStock int       `db:"available_stock" json:"available_stock"`
	ReservedStock  int       `db:"reserved_stock" json:"reserved_stock"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Reserve moves qty from available to reserved.
func (r *InventoryRecord) Reserve(qty int) error {
	if qty <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if qty > r.AvailableStock {
		return &InsufficientStockError{ProductID: r.ProductID, Requested: qty, Available: r.AvailableStock}
	}
	r.AvailableStock -= qty
	r.ReservedStock += qty
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Release moves qty from reserved back to available.
func (r *InventoryRecord) Release(qty int) error {
	if qty <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if qty > r.ReservedStock {
		return &OverReleaseError{ProductID: r.ProductID, Requested: qty, Reserved: r.ReservedStock}
	}
	r.ReservedStock -= qty
	r.AvailableStock += qty
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Payment statuses
const (
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// PaymentOutcome is the immutable result of one charge attempt
type PaymentOutcome struct {
	PaymentID string          `db:"payment_id" json:"payment_id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Status    string          `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Succeeded reports whether the charge went through.
func (p *PaymentOutcome) Succeeded() bool {
	return p.Status == PaymentStatusSuccess
}

// Notification statuses
const (
	NotificationStatusSent   = "SENT"
	NotificationStatusFailed = "FAILED"
)

// NotificationRecord is the append-only audit row written per consumer invocation
type NotificationRecord struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    string    `db:"order_id" json:"order_id"`
	CustomerID string    `db:"customer_id" json:"customer_id"`
	Email      string    `db:"email" json:"email"`
	Status     string    `db:"status" json:"status"`
	Message    string    `db:"message" json:"message"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// NewNotificationRecord builds a record for the given delivery outcome.
func NewNotificationRecord(orderID, customerID, email, message, status string) (*NotificationRecord, error) {
	if orderID == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "is required"}
	}
	return &NotificationRecord{
		OrderID:    orderID,
		CustomerID: customerID,
		Email:      email,
		Status:     status,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Outbox statuses
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
)

// OutboxEntry is a fact waiting to be (re)published
type OutboxEntry struct {
	ID        string    `db:"id" json:"id"`
	Key       string    `db:"message_key" json:"key"`
	EventType string    `db:"event_type" json:"event_type"`
	Payload   []byte    `db:"payload" json:"payload"`
	Status    string    `db:"status" json:"status"`
	Attempts  int       `db:"attempts" json:"attempts"`
	LastError string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
