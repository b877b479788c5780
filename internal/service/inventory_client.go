package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-fulfillment/internal/models"
	"order-fulfillment/internal/util"

	"go.uber.org/zap"
)

// InventorySource lists the authoritative inventory rows.
type InventorySource interface {
	ListInventory(ctx context.Context) ([]models.InventoryRecord, error)
}

// InventoryCache receives a copy of the authoritative rows.
type InventoryCache interface {
	InitInventory(ctx context.Context, record models.InventoryRecord) error
}

// InventoryClient wraps a ledger backend with tracing, metrics and logging.
type InventoryClient struct {
	ledger InventoryLedger
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(ledger InventoryLedger) *InventoryClient {
	return &InventoryClient{
		ledger: ledger,
		logger: util.GetLogger(),
	}
}

// Reserve moves qty of a product from available to reserved stock.
func (ic *InventoryClient) Reserve(ctx context.Context, productID string, qty int) (err error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.Reserve")
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if err = ic.ledger.Reserve(ctx, productID, qty); err != nil {
		util.InventoryReservationsFailed.WithLabelValues(reserveFailureReason(err)).Inc()
		ic.logger.Warn("Inventory reservation rejected",
			zap.String("product_id", productID),
			zap.Int("quantity", qty),
			zap.Error(err))
		return err
	}

	ic.logger.Debug("Inventory reserved",
		zap.String("product_id", productID),
		zap.Int("quantity", qty))
	return nil
}

// Release returns reserved stock (compensation)
func (ic *InventoryClient) Release(ctx context.Context, productID string, qty int) (err error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.Release")
	defer func() { util.EndSpan(span, err) }()

	if err = ic.ledger.Release(ctx, productID, qty); err != nil {
		util.InventoryReleasesTotal.WithLabelValues("error").Inc()
		return err
	}
	util.InventoryReleasesTotal.WithLabelValues("ok").Inc()
	return nil
}

// SyncInventory copies every row of src into dst.
func (ic *InventoryClient) SyncInventory(ctx context.Context, src InventorySource, dst InventoryCache) error {
	ic.logger.Info("Starting inventory sync")

	records, err := src.ListInventory(ctx)
	if err != nil {
		return fmt.Errorf("failed to list inventory: %w", err)
	}

	synced := 0
	for _, record := range records {
		if err := dst.InitInventory(ctx, record); err != nil {
			ic.logger.Error("Failed to init cached inventory",
				zap.String("product_id", record.ProductID),
				zap.Error(err))
			continue
		}
		synced++
	}

	ic.logger.Info("Inventory sync completed",
		zap.Int("count", len(records)),
		zap.Int("synced", synced))
	return nil
}

func reserveFailureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrConflict):
		return "insufficient_stock"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrValidation):
		return "invalid_quantity"
	default:
		return "error"
	}
}
