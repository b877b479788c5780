package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"order-fulfillment/internal/models"
)

// PaymentRepository keeps payment outcomes in memory.
type PaymentRepository struct {
	mu       sync.RWMutex
	payments []models.PaymentOutcome
}

// NewPaymentRepository creates an empty repository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

// SavePayment records a charge outcome.
func (r *PaymentRepository) SavePayment(ctx context.Context, payment *models.PaymentOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, *payment)
	return nil
}

// GetPaymentsByOrderID returns the outcomes of an order in save order.
func (r *PaymentRepository) GetPaymentsByOrderID(ctx context.Context, orderID string) ([]models.PaymentOutcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.PaymentOutcome
	for _, p := range r.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

// NotificationRepository is append-only; ids are assigned on save.
type NotificationRepository struct {
	mu      sync.RWMutex
	nextID  int64
	records []models.NotificationRecord
}

// NewNotificationRepository creates an empty repository.
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{}
}

// SaveNotification appends a record and assigns its ID.
func (r *NotificationRepository) SaveNotification(ctx context.Context, record *models.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	record.ID = r.nextID
	r.records = append(r.records, *record)
	return nil
}

// GetNotificationsByOrderID returns the records of an order in save order.
func (r *NotificationRepository) GetNotificationsByOrderID(ctx context.Context, orderID string) ([]models.NotificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.NotificationRecord
	for _, rec := range r.records {
		if rec.OrderID == orderID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// OutboxRepository keeps outbox entries in memory.
type OutboxRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.OutboxEntry
}

// NewOutboxRepository creates an empty repository.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		entries: make(map[string]*models.OutboxEntry),
	}
}

// AddOutboxEntry stores a new entry.
func (r *OutboxRepository) AddOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *entry
	clone.Payload = append([]byte(nil), entry.Payload...)
	r.entries[entry.ID] = &clone
	return nil
}

// GetPendingOutbox returns up to limit PENDING entries, oldest first.
func (r *OutboxRepository) GetPendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.OutboxEntry
	for _, e := range r.entries {
		if e.Status == models.OutboxStatusPending {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkOutboxSent marks an entry as published.
func (r *OutboxRepository) MarkOutboxSent(ctx context.Context, id string) error {
	return r.update(id, func(e *models.OutboxEntry) {
		e.Status = models.OutboxStatusSent
		e.Attempts++
		e.LastError = ""
	})
}

// MarkOutboxFailed counts a failed attempt and keeps the entry pending.
func (r *OutboxRepository) MarkOutboxFailed(ctx context.Context, id string, lastErr string) error {
	return r.update(id, func(e *models.OutboxEntry) {
		e.Attempts++
		e.LastError = lastErr
	})
}

func (r *OutboxRepository) update(id string, fn func(*models.OutboxEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return &models.NotFoundError{Kind: "outbox entry", ID: id}
	}
	fn(e)
	e.UpdatedAt = time.Now().UTC()
	return nil
}
