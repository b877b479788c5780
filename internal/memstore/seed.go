package memstore

import (
	"context"

	"order-fulfillment/internal/models"
)

// SeedTarget writes fixtures into an in-memory catalog and ledger.
type SeedTarget struct {
	Catalog *Catalog
	Ledger  *InventoryLedger
}

// UpsertProduct stores p in the catalog.
func (t SeedTarget) UpsertProduct(ctx context.Context, p *models.Product) error {
	t.Catalog.PutProduct(*p)
	return nil
}

// UpsertCustomer stores c in the catalog.
func (t SeedTarget) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	t.Catalog.PutCustomer(*c)
	return nil
}

// SetStock overwrites the ledger counters of a product.
func (t SeedTarget) SetStock(ctx context.Context, productID string, available, reserved int) error {
	t.Ledger.SetStock(productID, available, reserved)
	return nil
}
