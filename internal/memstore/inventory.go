package memstore

import (
	"context"
	"sort"
	"sync"

	"order-fulfillment/internal/models"
)

type inventoryEntry struct {
	mu     sync.Mutex
	record models.InventoryRecord
}

// InventoryLedger keeps stock counters in process. Each product has its own
// mutex; the map lock only guards membership.
type InventoryLedger struct {
	mu      sync.RWMutex
	entries map[string]*inventoryEntry
}

// NewInventoryLedger creates an empty ledger.
func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{
		entries: make(map[string]*inventoryEntry),
	}
}

// SetStock creates or overwrites the counters of a product.
func (l *InventoryLedger) SetStock(productID string, available, reserved int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[productID] = &inventoryEntry{
		record: models.InventoryRecord{
			ProductID:      productID,
			AvailableStock: available,
			ReservedStock:  reserved,
		},
	}
}

// Reserve moves qty from available to reserved stock.
func (l *InventoryLedger) Reserve(ctx context.Context, productID string, qty int) error {
	return l.apply(productID, func(r *models.InventoryRecord) error { return r.Reserve(qty) })
}

// Release moves qty from reserved back to available stock.
func (l *InventoryLedger) Release(ctx context.Context, productID string, qty int) error {
	return l.apply(productID, func(r *models.InventoryRecord) error { return r.Release(qty) })
}

// Get returns a consistent snapshot of one product's counters.
func (l *InventoryLedger) Get(ctx context.Context, productID string) (*models.InventoryRecord, error) {
	entry, err := l.entry(productID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	record := entry.record
	return &record, nil
}

// ListInventory returns a snapshot of every product, sorted by ID.
func (l *InventoryLedger) ListInventory(ctx context.Context) ([]models.InventoryRecord, error) {
	l.mu.RLock()
	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	l.mu.RUnlock()
	sort.Strings(ids)

	records := make([]models.InventoryRecord, 0, len(ids))
	for _, id := range ids {
		record, err := l.Get(ctx, id)
		if err != nil {
			continue
		}
		records = append(records, *record)
	}
	return records, nil
}

func (l *InventoryLedger) apply(productID string, fn func(*models.InventoryRecord) error) error {
	entry, err := l.entry(productID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Mutate a copy so a rejected operation leaves the record untouched.
	record := entry.record
	if err := fn(&record); err != nil {
		return err
	}
	entry.record = record
	return nil
}

func (l *InventoryLedger) entry(productID string) (*inventoryEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[productID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "inventory", ID: productID}
	}
	return entry, nil
}
