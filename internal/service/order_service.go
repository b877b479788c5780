package service

import (
	"context"
	"time"

	"order-fulfillment/internal/models"
	"order-fulfillment/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService is the request-facing entry point over the saga.
type OrderService struct {
	saga   *SagaOrchestrator
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(saga *SagaOrchestrator) *OrderService {
	return &OrderService{
		saga:   saga,
		logger: util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	CustomerID string             `json:"customer_id" binding:"required"`
	Items      []OrderLineRequest `json:"items" binding:"required,min=1,dive"`
}

// OrderView is the read model of an order
type OrderView struct {
	OrderID     string             `json:"order_id"`
	CustomerID  string             `json:"customer_id"`
	Status      models.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []models.OrderLine `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CreateOrder runs the saga for req.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error) {
	res, err := s.saga.CreateOrder(ctx, req.CustomerID, req.Items)
	if err != nil && res == nil {
		s.logger.Warn("Order request rejected",
			zap.String("customer_id", req.CustomerID),
			zap.Error(err))
	}
	return res, err
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderView, error) {
	order, err := s.saga.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderView{
		OrderID:     order.ID(),
		CustomerID:  order.CustomerID(),
		Status:      order.Status(),
		TotalAmount: order.TotalAmount(),
		Items:       order.Lines(),
		CreatedAt:   order.CreatedAt(),
		UpdatedAt:   order.UpdatedAt(),
	}, nil
}
