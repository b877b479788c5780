package memstore

import (
	"context"
	"sync"

	"order-fulfillment/internal/models"
)

// Catalog holds products and customers.
type Catalog struct {
	mu        sync.RWMutex
	products  map[string]models.Product
	customers map[string]models.Customer
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		products:  make(map[string]models.Product),
		customers: make(map[string]models.Customer),
	}
}

// PutProduct adds or replaces a product.
func (c *Catalog) PutProduct(p models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// PutCustomer adds or replaces a customer.
func (c *Catalog) PutCustomer(cu models.Customer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customers[cu.ID] = cu
}

// GetProduct retrieves a product by ID
func (c *Catalog) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "product", ID: productID}
	}
	return &p, nil
}

// GetCustomer retrieves a customer by ID
func (c *Catalog) GetCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cu, ok := c.customers[customerID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "customer", ID: customerID}
	}
	return &cu, nil
}
