package service

import (
	"context"
	"fmt"
	"time"

	"order-fulfillment/internal/models"
	"order-fulfillment/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService simulates the remote payment provider.
type PaymentService struct {
	repo             PaymentRepository
	faults           *FaultInjection
	timeout          time.Duration
	declineThreshold decimal.Decimal
	logger           *zap.Logger
}

// NewPaymentService creates a new payment service. A zero timeout disables
// the deadline; a zero declineThreshold approves every amount.
func NewPaymentService(repo PaymentRepository, faults *FaultInjection, timeout time.Duration, declineThreshold decimal.Decimal) *PaymentService {
	if faults == nil {
		faults = &FaultInjection{}
	}
	return &PaymentService{
		repo:             repo,
		faults:           faults,
		timeout:          timeout,
		declineThreshold: declineThreshold,
		logger:           util.GetLogger(),
	}
}

// Charge charges amount for orderID. It returns ErrPaymentTimeout when the
// provider does not answer before the deadline.
func (ps *PaymentService) Charge(ctx context.Context, orderID string, amount decimal.Decimal) (outcome *models.PaymentOutcome, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Charge")
	defer func() { util.EndSpan(span, err) }()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	if ps.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ps.timeout)
		defer cancel()
	}

	ps.logger.Info("Processing payment",
		zap.String("order_id", orderID),
		zap.String("amount", amount.StringFixed(2)))

	if err := ps.simulateLatency(ctx); err != nil {
		util.PaymentOutcomesTotal.WithLabelValues("timeout").Inc()
		ps.logger.Warn("Payment timed out", zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("charge order %s: %w", orderID, models.ErrPaymentTimeout)
	}

	status := models.PaymentStatusSuccess
	if ps.declineThreshold.IsPositive() && amount.GreaterThan(ps.declineThreshold) {
		status = models.PaymentStatusFailed
	}

	outcome = &models.PaymentOutcome{
		PaymentID: fmt.Sprintf("PAY-%s", uuid.New().String()[:8]),
		OrderID:   orderID,
		Amount:    amount,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}

	if err := ps.repo.SavePayment(ctx, outcome); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}

	if outcome.Succeeded() {
		util.PaymentOutcomesTotal.WithLabelValues("success").Inc()
		ps.logger.Info("Payment succeeded",
			zap.String("order_id", orderID),
			zap.String("payment_id", outcome.PaymentID))
	} else {
		util.PaymentOutcomesTotal.WithLabelValues("declined").Inc()
		ps.logger.Warn("Payment declined",
			zap.String("order_id", orderID),
			zap.String("payment_id", outcome.PaymentID))
	}
	return outcome, nil
}

// GetPayments returns every charge attempt of an order.
func (ps *PaymentService) GetPayments(ctx context.Context, orderID string) ([]models.PaymentOutcome, error) {
	return ps.repo.GetPaymentsByOrderID(ctx, orderID)
}

func (ps *PaymentService) simulateLatency(ctx context.Context) error {
	delay := ps.faults.PaymentDelay()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
