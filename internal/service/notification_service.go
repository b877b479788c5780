package service

import (
	"context"
	"errors"
	"fmt"

	"order-fulfillment/internal/models"
	"order-fulfillment/internal/util"

	"go.uber.org/zap"
)

// NotificationService reacts to confirmed orders by notifying the customer
// and recording the delivery outcome.
type NotificationService struct {
	customers     CustomerDirectory
	notifications NotificationRepository
	sender        NotificationSender
	faults        *FaultInjection
	logger        *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(
	customers CustomerDirectory,
	notifications NotificationRepository,
	sender NotificationSender,
	faults *FaultInjection,
) *NotificationService {
	if faults == nil {
		faults = &FaultInjection{}
	}
	return &NotificationService{
		customers:     customers,
		notifications: notifications,
		sender:        sender,
		faults:        faults,
		logger:        util.GetLogger(),
	}
}

// Process handles one confirmed-order fact. Sender failures are recorded as
// FAILED and not returned; an enabled fault switch and repository errors are
// returned so the broker redelivers.
func (ns *NotificationService) Process(ctx context.Context, event *models.OrderConfirmedEvent) (err error) {
	ctx, span := util.StartSpan(ctx, "NotificationService.Process")
	defer func() { util.EndSpan(span, err) }()

	if ns.faults.NotificationFailure() {
		ns.logger.Warn("Notification failure injected", zap.String("order_id", event.OrderID))
		return fmt.Errorf("order %s: %w", event.OrderID, models.ErrSimulatedFailure)
	}

	email, err := ns.resolveEmail(ctx, event.CustomerID)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("Order %s confirmed, amount %s", event.OrderID, event.TotalAmount.StringFixed(2))

	status := models.NotificationStatusSent
	if sendErr := ns.sender.Send(ctx, email, message); sendErr != nil {
		ns.logger.Error("Failed to send notification",
			zap.String("order_id", event.OrderID),
			zap.String("email", email),
			zap.Error(sendErr))
		status = models.NotificationStatusFailed
	}

	record, err := models.NewNotificationRecord(event.OrderID, event.CustomerID, email, message, status)
	if err != nil {
		return err
	}
	if err := ns.notifications.SaveNotification(ctx, record); err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}

	util.NotificationsTotal.WithLabelValues(status).Inc()
	ns.logger.Info("Notification processed",
		zap.String("order_id", event.OrderID),
		zap.String("status", status))
	return nil
}

// resolveEmail falls back to the raw customer id when the customer is unknown.
func (ns *NotificationService) resolveEmail(ctx context.Context, customerID string) (string, error) {
	customer, err := ns.customers.GetCustomer(ctx, customerID)
	if errors.Is(err, models.ErrNotFound) {
		ns.logger.Warn("Customer not found, using customer id as address",
			zap.String("customer_id", customerID))
		return customerID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve customer %s: %w", customerID, err)
	}
	return customer.Email, nil
}

// LogNotificationSender delivers notifications to the log only.
type LogNotificationSender struct {
	logger *zap.Logger
}

func NewLogNotificationSender() *LogNotificationSender {
	return &LogNotificationSender{logger: util.GetLogger()}
}

func (s *LogNotificationSender) Send(ctx context.Context, address, message string) error {
	s.logger.Info("Sending notification",
		zap.String("address", address),
		zap.String("message", message))
	return nil
}
