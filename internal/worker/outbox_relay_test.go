package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-fulfillment/internal/memstore"
	"order-fulfillment/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepublisher struct {
	sent []string
	err  error
}

func (p *stubRepublisher) Republish(ctx context.Context, entry *models.OutboxEntry) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, entry.Key)
	return nil
}

type stubLocker struct {
	held     bool
	released int
}

func (l *stubLocker) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return !l.held, nil
}

func (l *stubLocker) ReleaseLock(ctx context.Context, lockKey string) error {
	l.released++
	return nil
}

func addPending(t *testing.T, repo *memstore.OutboxRepository, id, key string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, repo.AddOutboxEntry(context.Background(), &models.OutboxEntry{
		ID:        id,
		Key:       key,
		EventType: models.EventTypeOrderConfirmed,
		Payload:   []byte(`{"order_id":"` + key + `"}`),
		Status:    models.OutboxStatusPending,
		CreatedAt: createdAt,
	}))
}

func TestRelayOncePublishesPendingInOrder(t *testing.T) {
	repo := memstore.NewOutboxRepository()
	now := time.Now()
	addPending(t, repo, "e2", "ORD-2", now.Add(time.Second))
	addPending(t, repo, "e1", "ORD-1", now)

	pub := &stubRepublisher{}
	relay := NewOutboxRelay(repo, pub, nil, time.Second, 10)

	sent, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"ORD-1", "ORD-2"}, pub.sent)

	pending, err := repo.GetPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRelayOnceKeepsFailedEntriesPending(t *testing.T) {
	repo := memstore.NewOutboxRepository()
	addPending(t, repo, "e1", "ORD-1", time.Now())

	relay := NewOutboxRelay(repo, &stubRepublisher{err: errors.New("broker down")}, nil, time.Second, 10)

	sent, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	pending, err := repo.GetPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "broker down", pending[0].LastError)
}

func TestRelayOnceSkipsWhenLockHeld(t *testing.T) {
	repo := memstore.NewOutboxRepository()
	addPending(t, repo, "e1", "ORD-1", time.Now())

	pub := &stubRepublisher{}
	locker := &stubLocker{held: true}
	relay := NewOutboxRelay(repo, pub, locker, time.Second, 10)

	sent, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, pub.sent)
	assert.Equal(t, 0, locker.released)

	locker.held = false
	sent, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, locker.released)
}
