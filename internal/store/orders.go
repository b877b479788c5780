package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"order-fulfillment/internal/models"

	"github.com/shopspring/decimal"
)

type orderRow struct {
	OrderID     string          `db:"order_id"`
	CustomerID  string          `db:"customer_id"`
	Status      string          `db:"status"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

type orderLineRow struct {
	ProductID string          `db:"product_id"`
	Quantity  int             `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
}

// CreateOrder inserts an order with its lines in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, customer_id, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID(), order.CustomerID(), string(order.Status()), order.TotalAmount(),
		order.CreatedAt(), order.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i, line := range order.Lines() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			order.ID(), i, line.ProductID, line.Quantity, line.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateOrder persists the status of an order. Lines and total are immutable.
func (s *Store) UpdateOrder(ctx context.Context, order *models.Order) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = $2 WHERE order_id = $3",
		string(order.Status()), order.UpdatedAt(), order.ID())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &models.NotFoundError{Kind: "order", ID: order.ID()}
	}
	return nil
}

// GetOrder retrieves an order with its lines
func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `
		SELECT order_id, customer_id, status, total_amount, created_at, updated_at
		FROM orders WHERE order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "order", ID: orderID}
	}
	if err != nil {
		return nil, err
	}

	var lineRows []orderLineRow
	err = s.db.SelectContext(ctx, &lineRows, `
		SELECT product_id, quantity, unit_price
		FROM order_lines WHERE order_id = $1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, err
	}

	lines := make([]models.OrderLine, 0, len(lineRows))
	for _, l := range lineRows {
		lines = append(lines, models.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}

	return models.RestoreOrder(row.OrderID, row.CustomerID, models.OrderStatus(row.Status),
		lines, row.TotalAmount, row.CreatedAt, row.UpdatedAt), nil
}

// SavePayment records a charge attempt
func (s *Store) SavePayment(ctx context.Context, payment *models.PaymentOutcome) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO payments (payment_id, order_id, amount, status, created_at)
		VALUES (:payment_id, :order_id, :amount, :status, :created_at)`, payment)
	return err
}

// GetPaymentsByOrderID retrieves the charge attempts of an order
func (s *Store) GetPaymentsByOrderID(ctx context.Context, orderID string) ([]models.PaymentOutcome, error) {
	var payments []models.PaymentOutcome
	err := s.db.SelectContext(ctx, &payments, `
		SELECT payment_id, order_id, amount, status, created_at
		FROM payments WHERE order_id = $1 ORDER BY created_at`, orderID)
	return payments, err
}

// SaveNotification appends a notification record
func (s *Store) SaveNotification(ctx context.Context, record *models.NotificationRecord) error {
	return s.db.GetContext(ctx, &record.ID, `
		INSERT INTO notifications (order_id, customer_id, email, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		record.OrderID, record.CustomerID, record.Email, record.Status, record.Message, record.CreatedAt)
}

// GetNotificationsByOrderID retrieves all notification records of an order
func (s *Store) GetNotificationsByOrderID(ctx context.Context, orderID string) ([]models.NotificationRecord, error) {
	var records []models.NotificationRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, order_id, customer_id, email, status, message, created_at
		FROM notifications WHERE order_id = $1 ORDER BY id`, orderID)
	return records, err
}

// AddOutboxEntry stores a fact awaiting publication
func (s *Store) AddOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO outbox (id, message_key, event_type, payload, status, attempts, last_error, created_at, updated_at)
		VALUES (:id, :message_key, :event_type, :payload, :status, :attempts, :last_error, :created_at, :updated_at)`, entry)
	return err
}

// GetPendingOutbox returns the oldest PENDING entries
func (s *Store) GetPendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, message_key, event_type, payload, status, attempts, last_error, created_at, updated_at
		FROM outbox WHERE status = $1 ORDER BY created_at LIMIT $2`,
		models.OutboxStatusPending, limit)
	return entries, err
}

// MarkOutboxSent marks an entry as published
func (s *Store) MarkOutboxSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = $1, attempts = attempts + 1, last_error = '', updated_at = NOW()
		WHERE id = $2`, models.OutboxStatusSent, id)
	return err
}

// MarkOutboxFailed records a failed publish attempt
func (s *Store) MarkOutboxFailed(ctx context.Context, id string, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = attempts + 1, last_error = $1, updated_at = NOW()
		WHERE id = $2`, lastErr, id)
	return err
}
