package service

import (
	"context"

	"order-fulfillment/internal/models"

	"github.com/shopspring/decimal"
)

// ProductCatalog resolves product prices and names.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
}

// InventoryLedger reserves and releases stock. Reserve returns an error
// matching models.ErrConflict when the stock is insufficient.
type InventoryLedger interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Release(ctx context.Context, productID string, qty int) error
}

// PaymentGateway charges an order. A declined charge is reported through the
// outcome status; a transport failure is returned as an error.
type PaymentGateway interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal) (*models.PaymentOutcome, error)
}

// OrderEventPublisher emits the order-confirmed fact.
type OrderEventPublisher interface {
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
}

// CustomerDirectory resolves customer contact details.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, customerID string) (*models.Customer, error)
}

// NotificationSender delivers a rendered message to an address.
type NotificationSender interface {
	Send(ctx context.Context, address, message string) error
}

// OrderRepository persists orders and their lines.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

// PaymentRepository records charge outcomes.
type PaymentRepository interface {
	SavePayment(ctx context.Context, payment *models.PaymentOutcome) error
	GetPaymentsByOrderID(ctx context.Context, orderID string) ([]models.PaymentOutcome, error)
}

// NotificationRepository records notification attempts.
type NotificationRepository interface {
	SaveNotification(ctx context.Context, record *models.NotificationRecord) error
	GetNotificationsByOrderID(ctx context.Context, orderID string) ([]models.NotificationRecord, error)
}

// OutboxRepository stores facts awaiting publication.
type OutboxRepository interface {
	AddOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error
	GetPendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error)
	MarkOutboxSent(ctx context.Context, id string) error
	MarkOutboxFailed(ctx context.Context, id string, lastErr string) error
}
