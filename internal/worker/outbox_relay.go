package worker

import (
	"context"
	"time"

	"order-fulfillment/internal/models"
	"order-fulfillment/internal/service"
	"order-fulfillment/internal/util"

	"go.uber.org/zap"
)

const relayLockKey = "outbox-relay"

// Republisher sends a stored outbox payload.
type Republisher interface {
	Republish(ctx context.Context, entry *models.OutboxEntry) error
}

// Locker keeps a single relay active across replicas.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// OutboxRelay re-sends confirmed-order facts whose first publish failed.
type OutboxRelay struct {
	outbox    service.OutboxRepository
	publisher Republisher
	locker    Locker
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewOutboxRelay creates a new relay. locker may be nil for a single instance.
func NewOutboxRelay(outbox service.OutboxRepository, publisher Republisher, locker Locker, interval time.Duration, batchSize int) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &OutboxRelay{
		outbox:    outbox,
		publisher: publisher,
		locker:    locker,
		interval:  interval,
		batchSize: batchSize,
		logger:    util.GetLogger(),
	}
}

// Start polls the outbox until ctx is cancelled
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.logger.Info("Starting outbox relay", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping outbox relay")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.Error("Outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// RelayOnce publishes one batch of pending entries and returns how many were
// sent.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	if r.locker != nil {
		ok, err := r.locker.AcquireLock(ctx, relayLockKey, 2*r.interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := r.locker.ReleaseLock(context.WithoutCancel(ctx), relayLockKey); err != nil {
				r.logger.Warn("Failed to release relay lock", zap.Error(err))
			}
		}()
	}

	entries, err := r.outbox.GetPendingOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range entries {
		entry := &entries[i]
		if err := r.publisher.Republish(ctx, entry); err != nil {
			util.OutboxRelayedTotal.WithLabelValues("error").Inc()
			r.logger.Warn("Outbox publish failed",
				zap.String("outbox_id", entry.ID),
				zap.String("key", entry.Key),
				zap.Int("attempts", entry.Attempts+1),
				zap.Error(err))
			if mErr := r.outbox.MarkOutboxFailed(ctx, entry.ID, err.Error()); mErr != nil {
				return sent, mErr
			}
			continue
		}

		if err := r.outbox.MarkOutboxSent(ctx, entry.ID); err != nil {
			return sent, err
		}
		util.OutboxRelayedTotal.WithLabelValues("sent").Inc()
		r.logger.Info("Outbox entry relayed",
			zap.String("outbox_id", entry.ID),
			zap.String("key", entry.Key))
		sent++
	}
	return sent, nil
}
