package memstore

import (
	"context"
	"fmt"
	"sync"

	"order-fulfillment/internal/models"
)

// OrderRepository keeps orders in memory. Orders are cloned on the way in and out.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

// NewOrderRepository creates an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*models.Order),
	}
}

// CreateOrder stores a new order.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order == nil || order.ID() == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID()]; exists {
		return fmt.Errorf("order %s: %w", order.ID(), models.ErrConflict)
	}
	r.orders[order.ID()] = order.Clone()
	return nil
}

// UpdateOrder replaces an existing order.
func (r *OrderRepository) UpdateOrder(ctx context.Context, order *models.Order) error {
	if order == nil || order.ID() == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID()]; !exists {
		return &models.NotFoundError{Kind: "order", ID: order.ID()}
	}
	r.orders[order.ID()] = order.Clone()
	return nil
}

// GetOrder retrieves an order by ID
func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "order", ID: orderID}
	}
	return order.Clone(), nil
}

// Count returns the number of stored orders.
func (r *OrderRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
