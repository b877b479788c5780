package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"order-fulfillment/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// InitSchema creates missing tables.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT product_id, name, price, created_at FROM products WHERE product_id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "product", ID: productID}
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetCustomer retrieves a customer by ID
func (s *Store) GetCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer,
		"SELECT customer_id, name, email, phone FROM customers WHERE customer_id = $1", customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "customer", ID: customerID}
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetInventory retrieves inventory for a product
func (s *Store) GetInventory(ctx context.Context, productID string) (*models.InventoryRecord, error) {
	var inv models.InventoryRecord
	err := s.db.GetContext(ctx, &inv,
		"SELECT product_id, available_stock, reserved_stock, updated_at FROM inventory WHERE product_id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "inventory", ID: productID}
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInventory returns every inventory row.
func (s *Store) ListInventory(ctx context.Context) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT product_id, available_stock, reserved_stock, updated_at FROM inventory ORDER BY product_id")
	return records, err
}

// Reserve reserves stock under a row lock (FOR UPDATE).
func (s *Store) Reserve(ctx context.Context, productID string, qty int) error {
	return s.mutateInventory(ctx, productID, func(r *models.InventoryRecord) error {
		return r.Reserve(qty)
	})
}

// Release releases reserved stock (compensation)
func (s *Store) Release(ctx context.Context, productID string, qty int) error {
	return s.mutateInventory(ctx, productID, func(r *models.InventoryRecord) error {
		return r.Release(qty)
	})
}

func (s *Store) mutateInventory(ctx context.Context, productID string, fn func(*models.InventoryRecord) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var inv models.InventoryRecord
	err = tx.GetContext(ctx, &inv,
		"SELECT product_id, available_stock, reserved_stock, updated_at FROM inventory WHERE product_id = $1 FOR UPDATE",
		productID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.NotFoundError{Kind: "inventory", ID: productID}
	}
	if err != nil {
		return fmt.Errorf("failed to lock inventory: %w", err)
	}

	if err := fn(&inv); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE inventory SET available_stock = $1, reserved_stock = $2, updated_at = NOW() WHERE product_id = $3",
		inv.AvailableStock, inv.ReservedStock, productID)
	if err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}

	return tx.Commit()
}

// UpsertProduct inserts or updates a product.
func (s *Store) UpsertProduct(ctx context.Context, p *models.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (product_id, name, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price`,
		p.ID, p.Name, p.Price)
	return err
}

// UpsertCustomer inserts or updates a customer.
func (s *Store) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (customer_id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone`,
		c.ID, c.Name, c.Email, c.Phone)
	return err
}

// SetStock inserts or overwrites the inventory counters of a product.
func (s *Store) SetStock(ctx context.Context, productID string, available, reserved int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, available_stock, reserved_stock)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE
		SET available_stock = EXCLUDED.available_stock, reserved_stock = EXCLUDED.reserved_stock, updated_at = NOW()`,
		productID, available, reserved)
	return err
}
