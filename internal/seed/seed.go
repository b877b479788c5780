// Package seed loads the demo catalog, customers and stock used by local runs
// and smoke tests.
package seed

import (
	"context"
	"fmt"

	"order-fulfillment/internal/models"

	"github.com/shopspring/decimal"
)

// Target is a backend that can take the demo fixtures.
type Target interface {
	UpsertProduct(ctx context.Context, p *models.Product) error
	UpsertCustomer(ctx context.Context, c *models.Customer) error
	SetStock(ctx context.Context, productID string, available, reserved int) error
}

type demoProduct struct {
	id, name, price string
	stock           int
}

var demoProducts = []demoProduct{
	{"P001", "Laptop", "999.00", 50},
	{"P002", "Wireless Mouse", "19.99", 100},
	{"P003", "Mechanical Keyboard", "49.50", 200},
}

var demoCustomers = []models.Customer{
	{ID: "C001", Name: "Alice Chen", Email: "alice@example.com", Phone: "0912-345-678"},
	{ID: "C002", Name: "Bob Lin", Email: "bob@example.com", Phone: "0987-654-321"},
}

// Demo upserts the demo products with fresh stock and the demo customers.
// Running it twice resets the stock counters.
func Demo(ctx context.Context, target Target) error {
	for _, p := range demoProducts {
		product := &models.Product{ID: p.id, Name: p.name, Price: decimal.RequireFromString(p.price)}
		if err := target.UpsertProduct(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", p.id, err)
		}
		if err := target.SetStock(ctx, p.id, p.stock, 0); err != nil {
			return fmt.Errorf("seed stock %s: %w", p.id, err)
		}
	}

	for i := range demoCustomers {
		customer := demoCustomers[i]
		if err := target.UpsertCustomer(ctx, &customer); err != nil {
			return fmt.Errorf("seed customer %s: %w", customer.ID, err)
		}
	}
	return nil
}
