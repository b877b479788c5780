package worker

import (
	"context"

	"order-fulfillment/internal/broker"
	"order-fulfillment/internal/service"
	"order-fulfillment/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes confirmed-order facts for one consumer group
// member. Run several to spread partitions across goroutines.
type NotificationWorker struct {
	id            int
	consumer      *broker.Consumer
	notifications *service.NotificationService
	logger        *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(id int, consumer *broker.Consumer, notifications *service.NotificationService) *NotificationWorker {
	return &NotificationWorker{
		id:            id,
		consumer:      consumer,
		notifications: notifications,
		logger:        util.GetLogger().With(zap.Int("worker_id", id)),
	}
}

// Start blocks until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, broker.OrderConfirmedHandler(w.notifications.Process))
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}
