package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"order-fulfillment/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryLedgerReserveRelease(t *testing.T) {
	ctx := context.Background()
	ledger := NewInventoryLedger()
	ledger.SetStock("P001", 50, 0)

	require.NoError(t, ledger.Reserve(ctx, "P001", 2))

	rec, err := ledger.Get(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, 48, rec.AvailableStock)
	assert.Equal(t, 2, rec.ReservedStock)

	require.NoError(t, ledger.Release(ctx, "P001", 2))
	rec, err = ledger.Get(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, 50, rec.AvailableStock)
	assert.Equal(t, 0, rec.ReservedStock)
}

func TestInventoryLedgerRejectionsLeaveRecordUntouched(t *testing.T) {
	ctx := context.Background()
	ledger := NewInventoryLedger()
	ledger.SetStock("P003", 200, 0)

	err := ledger.Reserve(ctx, "P003", 999)
	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 999, stockErr.Requested)
	assert.Equal(t, 200, stockErr.Available)
	assert.True(t, errors.Is(err, models.ErrConflict))

	err = ledger.Release(ctx, "P003", 1)
	assert.True(t, errors.Is(err, models.ErrConflict))

	err = ledger.Reserve(ctx, "P003", 0)
	assert.True(t, errors.Is(err, models.ErrValidation))

	rec, err := ledger.Get(ctx, "P003")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.AvailableStock)
	assert.Equal(t, 0, rec.ReservedStock)
}

func TestInventoryLedgerUnknownProduct(t *testing.T) {
	err := NewInventoryLedger().Reserve(context.Background(), "NOPE", 1)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestInventoryLedgerConcurrentReservations(t *testing.T) {
	ctx := context.Background()
	ledger := NewInventoryLedger()
	ledger.SetStock("P001", 100, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Reserve(ctx, "P001", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rec, err := ledger.Get(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, 100, succeeded)
	assert.Equal(t, 0, rec.AvailableStock)
	assert.Equal(t, 100, rec.ReservedStock)
}

func TestInventoryLedgerConcurrentMixedKeepsTotal(t *testing.T) {
	ctx := context.Background()
	ledger := NewInventoryLedger()
	ledger.SetStock("P002", 20, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Reserve(ctx, "P002", 1); err == nil {
				_ = ledger.Release(ctx, "P002", 1)
			}
		}()
	}
	wg.Wait()

	rec, err := ledger.Get(ctx, "P002")
	require.NoError(t, err)
	assert.Equal(t, 20, rec.AvailableStock+rec.ReservedStock)
	assert.Equal(t, 0, rec.ReservedStock)
}

func TestOutboxRepositoryPendingAndMark(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	require.NoError(t, repo.AddOutboxEntry(ctx, &models.OutboxEntry{
		ID: "e1", Key: "ORD-1", Status: models.OutboxStatusPending,
	}))

	pending, err := repo.GetPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repo.MarkOutboxFailed(ctx, "e1", "broker down"))
	pending, err = repo.GetPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "broker down", pending[0].LastError)

	require.NoError(t, repo.MarkOutboxSent(ctx, "e1"))
	pending, err = repo.GetPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
