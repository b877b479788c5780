package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-fulfillment/internal/models"
	"order-fulfillment/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderLineRequest is one requested product line.
type OrderLineRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CreateOrderResult is the projection returned to the caller of CreateOrder.
type CreateOrderResult struct {
	OrderID     string             `json:"order_id"`
	Status      models.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Reason      string             `json:"reason,omitempty"`
}

// SagaOptions tunes the compensation policy.
type SagaOptions struct {
	// ReleaseOnPartialReserve releases the reservations already made for an
	// order when a later line cannot be reserved.
	ReleaseOnPartialReserve bool
}

// SagaOrchestrator drives product lookup, inventory reservation, payment and
// confirmation for a single order.
type SagaOrchestrator struct {
	catalog   ProductCatalog
	inventory InventoryLedger
	payments  PaymentGateway
	publisher OrderEventPublisher
	orders    OrderRepository
	outbox    OutboxRepository
	opts      SagaOptions
	newID     func() string
	logger    *zap.Logger
}

// NewSagaOrchestrator creates a new saga orchestrator
func NewSagaOrchestrator(
	catalog ProductCatalog,
	inventory InventoryLedger,
	payments PaymentGateway,
	publisher OrderEventPublisher,
	orders OrderRepository,
	outbox OutboxRepository,
	opts SagaOptions,
) *SagaOrchestrator {
	return &SagaOrchestrator{
		catalog:   catalog,
		inventory: inventory,
		payments:  payments,
		publisher: publisher,
		orders:    orders,
		outbox:    outbox,
		opts:      opts,
		newID:     newOrderID,
		logger:    util.GetLogger(),
	}
}

func newOrderID() string {
	return "ORD-" + uuid.New().String()
}

// CreateOrder runs the order saga to a terminal status. Reservation failures
// and payment timeouts are reported through the returned status; an explicit
// decline returns the FAILED projection together with an error matching
// models.ErrPaymentDeclined. Any other charge error also fails the order and
// is returned with the projection.
func (so *SagaOrchestrator) CreateOrder(ctx context.Context, customerID string, items []OrderLineRequest) (res *CreateOrderResult, err error) {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.CreateOrder")
	defer func() { util.EndSpan(span, err) }()

	if err := validateRequest(customerID, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	lines, err := so.resolveLines(ctx, items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("product_lookup").Inc()
		return nil, err
	}

	order, err := models.NewOrder(so.newID(), customerID, lines)
	if err != nil {
		return nil, err
	}
	if err := so.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	so.logger.Info("Order created",
		zap.String("order_id", order.ID()),
		zap.String("customer_id", customerID),
		zap.String("total_amount", order.TotalAmount().StringFixed(2)))

	// Past the first checkpoint the saga always runs to a terminal status.
	ctx = context.WithoutCancel(ctx)

	if err := so.reserveInventory(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("reservation_failed").Inc()
		so.logger.Warn("Inventory reservation failed",
			zap.String("order_id", order.ID()),
			zap.Error(err))
		if err := so.finish(ctx, order, order.Fail); err != nil {
			return nil, err
		}
		return toResult(order, err.Error()), nil
	}

	outcome, err := so.payments.Charge(ctx, order.ID(), order.TotalAmount())
	if err != nil && !isPaymentTimeout(err) {
		util.OrdersFailedTotal.WithLabelValues("payment_error").Inc()
		so.logger.Error("Payment failed - starting compensation",
			zap.String("order_id", order.ID()),
			zap.Error(err))
		so.releaseLines(ctx, order.ID(), order.Lines())
		if fErr := so.finish(ctx, order, order.Fail); fErr != nil {
			return nil, fErr
		}
		return toResult(order, "payment error"), fmt.Errorf("charge order %s: %w", order.ID(), err)
	}
	if err != nil {
		util.OrdersPaymentTimeoutTotal.Inc()
		so.logger.Warn("Payment unreachable - starting compensation",
			zap.String("order_id", order.ID()),
			zap.Error(err))
		so.releaseLines(ctx, order.ID(), order.Lines())
		if err := so.finish(ctx, order, order.TimeoutPayment); err != nil {
			return nil, err
		}
		return toResult(order, err.Error()), nil
	}

	if !outcome.Succeeded() {
		util.OrdersFailedTotal.WithLabelValues("payment_declined").Inc()
		so.logger.Warn("Payment declined - starting compensation",
			zap.String("order_id", order.ID()),
			zap.String("payment_id", outcome.PaymentID))
		so.releaseLines(ctx, order.ID(), order.Lines())
		if err := so.finish(ctx, order, order.Fail); err != nil {
			return nil, err
		}
		return toResult(order, "payment declined"),
			fmt.Errorf("order %s payment %s: %w", order.ID(), outcome.PaymentID, models.ErrPaymentDeclined)
	}

	if err := so.finish(ctx, order, order.Confirm); err != nil {
		return nil, err
	}
	util.OrdersConfirmedTotal.Inc()
	so.logger.Info("Order confirmed",
		zap.String("order_id", order.ID()),
		zap.String("payment_id", outcome.PaymentID))

	so.publishConfirmed(ctx, order)
	return toResult(order, ""), nil
}

// GetOrder retrieves an order by ID
func (so *SagaOrchestrator) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.GetOrder")
	defer span.End()

	return so.orders.GetOrder(ctx, orderID)
}

// isPaymentTimeout reports whether the gateway gave no answer in time.
func isPaymentTimeout(err error) bool {
	return errors.Is(err, models.ErrPaymentTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func validateRequest(customerID string, items []OrderLineRequest) error {
	if customerID == "" {
		return &models.ValidationError{Field: "customer_id", Reason: "is required"}
	}
	if len(items) == 0 {
		return &models.ValidationError{Field: "lines", Reason: "must not be empty"}
	}
	for _, item := range items {
		if item.ProductID == "" {
			return &models.ValidationError{Field: "product_id", Reason: "is required"}
		}
		if item.Quantity <= 0 {
			return &models.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
		}
	}
	return nil
}

// resolveLines prices every requested line from the catalog, in order.
func (so *SagaOrchestrator) resolveLines(ctx context.Context, items []OrderLineRequest) ([]models.OrderLine, error) {
	lines := make([]models.OrderLine, 0, len(items))
	for _, item := range items {
		product, err := so.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve product %s: %w", item.ProductID, err)
		}
		lines = append(lines, models.OrderLine{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
	}
	return lines, nil
}

// reserveInventory reserves every line in order and stops at the first
// failure, optionally releasing what this order already holds.
func (so *SagaOrchestrator) reserveInventory(ctx context.Context, order *models.Order) error {
	lines := order.Lines()
	for i, line := range lines {
		if err := so.inventory.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			if so.opts.ReleaseOnPartialReserve && i > 0 {
				so.releaseLines(ctx, order.ID(), lines[:i])
			}
			return fmt.Errorf("failed to reserve stock for product %s: %w", line.ProductID, err)
		}
	}
	return nil
}

// releaseLines releases lines in reverse order. Failures are logged and do
// not stop the remaining releases.
func (so *SagaOrchestrator) releaseLines(ctx context.Context, orderID string, lines []models.OrderLine) {
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if err := so.inventory.Release(ctx, line.ProductID, line.Quantity); err != nil {
			so.logger.Error("Failed to compensate reservation",
				zap.String("order_id", orderID),
				zap.String("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
		}
	}
}

// finish applies a terminal transition and persists it.
func (so *SagaOrchestrator) finish(ctx context.Context, order *models.Order, transition func() error) error {
	if err := transition(); err != nil {
		return err
	}
	if err := so.orders.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// publishConfirmed emits the confirmed fact. A failed publish leaves the
// order CONFIRMED and parks the fact in the outbox for the relay.
func (so *SagaOrchestrator) publishConfirmed(ctx context.Context, order *models.Order) {
	event := models.NewOrderConfirmedEvent(order)

	err := so.publisher.PublishOrderConfirmed(ctx, event)
	if err == nil {
		return
	}

	so.logger.Error("Failed to publish OrderConfirmed event, writing to outbox",
		zap.String("order_id", order.ID()),
		zap.Error(err))

	if so.outbox == nil {
		return
	}
	payload, mErr := json.Marshal(event)
	if mErr != nil {
		so.logger.Error("Failed to marshal OrderConfirmed event", zap.Error(mErr))
		return
	}
	now := time.Now().UTC()
	entry := &models.OutboxEntry{
		ID:        uuid.New().String(),
		Key:       order.ID(),
		EventType: event.EventType,
		Payload:   payload,
		Status:    models.OutboxStatusPending,
		Attempts:  1,
		LastError: err.Error(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if oErr := so.outbox.AddOutboxEntry(ctx, entry); oErr != nil {
		so.logger.Error("Failed to write outbox entry",
			zap.String("order_id", order.ID()),
			zap.Error(oErr))
	}
}

func toResult(order *models.Order, reason string) *CreateOrderResult {
	return &CreateOrderResult{
		OrderID:     order.ID(),
		Status:      order.Status(),
		TotalAmount: order.TotalAmount(),
		Reason:      reason,
	}
}
