package service

import (
	"context"
	"errors"
	"testing"

	"order-fulfillment/internal/memstore"
	"order-fulfillment/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	records map[string]models.InventoryRecord
	failOn  string
}

func (c *fakeCache) InitInventory(ctx context.Context, record models.InventoryRecord) error {
	if record.ProductID == c.failOn {
		return errors.New("cache unavailable")
	}
	c.records[record.ProductID] = record
	return nil
}

func TestInventoryClientReserveAndRelease(t *testing.T) {
	ledger := memstore.NewInventoryLedger()
	ledger.SetStock("P001", 5, 0)
	client := NewInventoryClient(ledger)
	ctx := context.Background()

	require.NoError(t, client.Reserve(ctx, "P001", 3))
	err := client.Reserve(ctx, "P001", 3)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.ErrorIs(t, client.Reserve(ctx, "NOPE", 1), models.ErrNotFound)

	require.NoError(t, client.Release(ctx, "P001", 3))
	rec, err := ledger.Get(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.AvailableStock)
	assert.Equal(t, 0, rec.ReservedStock)
}

func TestReserveFailureReason(t *testing.T) {
	assert.Equal(t, "insufficient_stock", reserveFailureReason(&models.InsufficientStockError{ProductID: "P001"}))
	assert.Equal(t, "not_found", reserveFailureReason(&models.NotFoundError{Kind: "inventory", ID: "P001"}))
	assert.Equal(t, "invalid_quantity", reserveFailureReason(&models.ValidationError{Field: "quantity"}))
	assert.Equal(t, "error", reserveFailureReason(errors.New("boom")))
}

func TestSyncInventorySkipsFailedRows(t *testing.T) {
	ledger := memstore.NewInventoryLedger()
	ledger.SetStock("P001", 50, 2)
	ledger.SetStock("P002", 100, 0)
	cache := &fakeCache{records: map[string]models.InventoryRecord{}, failOn: "P002"}

	err := NewInventoryClient(ledger).SyncInventory(context.Background(), ledger, cache)
	require.NoError(t, err)

	require.Len(t, cache.records, 1)
	assert.Equal(t, 50, cache.records["P001"].AvailableStock)
	assert.Equal(t, 2, cache.records["P001"].ReservedStock)
}
