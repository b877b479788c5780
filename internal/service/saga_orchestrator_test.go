package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"order-fulfillment/internal/memstore"
	"order-fulfillment/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.OrderConfirmedEvent
	err    error
}

func (p *recordingPublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type stubGateway struct {
	calls  int
	status string
	err    error
}

func (g *stubGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal) (*models.PaymentOutcome, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	status := g.status
	if status == "" {
		status = models.PaymentStatusSuccess
	}
	return &models.PaymentOutcome{
		PaymentID: fmt.Sprintf("PAY-%08d", g.calls),
		OrderID:   orderID,
		Amount:    amount,
		Status:    status,
		CreatedAt: time.Now(),
	}, nil
}

type sagaFixture struct {
	catalog   *memstore.Catalog
	ledger    *memstore.InventoryLedger
	orders    *memstore.OrderRepository
	outbox    *memstore.OutboxRepository
	gateway   *stubGateway
	publisher *recordingPublisher
	saga      *SagaOrchestrator
}

func newSagaFixture(t *testing.T, opts SagaOptions) *sagaFixture {
	t.Helper()

	f := &sagaFixture{
		catalog:   memstore.NewCatalog(),
		ledger:    memstore.NewInventoryLedger(),
		orders:    memstore.NewOrderRepository(),
		outbox:    memstore.NewOutboxRepository(),
		gateway:   &stubGateway{},
		publisher: &recordingPublisher{},
	}
	f.catalog.PutProduct(models.Product{ID: "P001", Name: "Laptop", Price: decimal.RequireFromString("999.00")})
	f.catalog.PutProduct(models.Product{ID: "P002", Name: "Mouse", Price: decimal.RequireFromString("19.99")})
	f.catalog.PutProduct(models.Product{ID: "P003", Name: "Keyboard", Price: decimal.RequireFromString("49.50")})
	f.ledger.SetStock("P001", 50, 0)
	f.ledger.SetStock("P002", 100, 0)
	f.ledger.SetStock("P003", 200, 0)

	f.saga = NewSagaOrchestrator(f.catalog, NewInventoryClient(f.ledger), f.gateway,
		f.publisher, f.orders, f.outbox, opts)
	return f
}

func (f *sagaFixture) stock(t *testing.T, productID string) (int, int) {
	t.Helper()
	rec, err := f.ledger.Get(context.Background(), productID)
	require.NoError(t, err)
	return rec.AvailableStock, rec.ReservedStock
}

func TestCreateOrderConfirmed(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})

	res, err := f.saga.CreateOrder(context.Background(), "C001",
		[]OrderLineRequest{{ProductID: "P001", Quantity: 2}})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusConfirmed, res.Status)
	assert.Equal(t, "1998.00", res.TotalAmount.StringFixed(2))
	assert.Regexp(t, `^ORD-[0-9a-f-]{36}$`, res.OrderID)

	available, reserved := f.stock(t, "P001")
	assert.Equal(t, 48, available)
	assert.Equal(t, 2, reserved)

	require.Equal(t, 1, f.publisher.count())
	event := f.publisher.events[0]
	assert.Equal(t, res.OrderID, event.OrderID)
	assert.Equal(t, "C001", event.CustomerID)
	assert.True(t, event.TotalAmount.Equal(res.TotalAmount))
	require.Len(t, event.Items, 1)

	stored, err := f.saga.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, stored.Status())
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})

	res, err := f.saga.CreateOrder(context.Background(), "C001",
		[]OrderLineRequest{{ProductID: "P003", Quantity: 999}})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusFailed, res.Status)
	assert.Contains(t, res.Reason, "insufficient stock")
	assert.Equal(t, 0, f.gateway.calls)
	assert.Equal(t, 0, f.publisher.count())

	available, reserved := f.stock(t, "P003")
	assert.Equal(t, 200, available)
	assert.Equal(t, 0, reserved)

	stored, err := f.orders.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, stored.Status())
}

func TestCreateOrderPaymentTimeoutReleasesAllLines(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})
	f.gateway.err = fmt.Errorf("charge: %w", models.ErrPaymentTimeout)

	res, err := f.saga.CreateOrder(context.Background(), "C001", []OrderLineRequest{
		{ProductID: "P001", Quantity: 2},
		{ProductID: "P002", Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPaymentTimeout, res.Status)
	assert.Equal(t, "2057.97", res.TotalAmount.StringFixed(2))
	assert.Equal(t, 0, f.publisher.count())

	available, reserved := f.stock(t, "P001")
	assert.Equal(t, 50, available)
	assert.Equal(t, 0, reserved)
	available, reserved = f.stock(t, "P002")
	assert.Equal(t, 100, available)
	assert.Equal(t, 0, reserved)
}

func TestCreateOrderPaymentErrorFailsOrder(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})
	f.gateway.err = errors.New("failed to save payment: connection reset")

	res, err := f.saga.CreateOrder(context.Background(), "C001", []OrderLineRequest{
		{ProductID: "P001", Quantity: 2},
		{ProductID: "P002", Quantity: 3},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrPaymentTimeout))
	assert.Contains(t, err.Error(), "connection reset")

	require.NotNil(t, res)
	assert.Equal(t, models.OrderStatusFailed, res.Status)
	assert.Equal(t, 0, f.publisher.count())

	available, reserved := f.stock(t, "P001")
	assert.Equal(t, 50, available)
	assert.Equal(t, 0, reserved)
	available, reserved = f.stock(t, "P002")
	assert.Equal(t, 100, available)
	assert.Equal(t, 0, reserved)

	stored, err := f.orders.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, stored.Status())
}

func TestCreateOrderPaymentDeadlineCountsAsTimeout(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})
	f.gateway.err = fmt.Errorf("charge: %w", context.DeadlineExceeded)

	res, err := f.saga.CreateOrder(context.Background(), "C001",
		[]OrderLineRequest{{ProductID: "P003", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaymentTimeout, res.Status)
}

func TestCreateOrderPaymentDeclined(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})
	f.gateway.status = models.PaymentStatusFailed

	res, err := f.saga.CreateOrder(context.Background(), "C001",
		[]OrderLineRequest{{ProductID: "P001", Quantity: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPaymentDeclined))

	require.NotNil(t, res)
	assert.Equal(t, models.OrderStatusFailed, res.Status)
	assert.Equal(t, 0, f.publisher.count())

	available, reserved := f.stock(t, "P001")
	assert.Equal(t, 50, available)
	assert.Equal(t, 0, reserved)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})

	res, err := f.saga.CreateOrder(context.Background(), "C001", []OrderLineRequest{
		{ProductID: "P001", Quantity: 1},
		{ProductID: "P404", Quantity: 1},
	})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Equal(t, 0, f.orders.Count())

	available, _ := f.stock(t, "P001")
	assert.Equal(t, 50, available)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})

	cases := map[string]struct {
		customerID string
		items      []OrderLineRequest
	}{
		"missing customer": {"", []OrderLineRequest{{ProductID: "P001", Quantity: 1}}},
		"no lines":         {"C001", nil},
		"zero quantity":    {"C001", []OrderLineRequest{{ProductID: "P001", Quantity: 0}}},
		"negative qty":     {"C001", []OrderLineRequest{{ProductID: "P001", Quantity: -3}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := f.saga.CreateOrder(context.Background(), tc.customerID, tc.items)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, models.ErrValidation))
		})
	}
	assert.Equal(t, 0, f.orders.Count())
}

func TestCreateOrderIsNotIdempotent(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})
	items := []OrderLineRequest{{ProductID: "P002", Quantity: 1}}

	first, err := f.saga.CreateOrder(context.Background(), "C001", items)
	require.NoError(t, err)
	second, err := f.saga.CreateOrder(context.Background(), "C001", items)
	require.NoError(t, err)

	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.Equal(t, 2, f.orders.Count())
	assert.Equal(t, 2, f.publisher.count())
}

func TestCreateOrderPartialReserveReleasesPriorLines(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{ReleaseOnPartialReserve: true})

	res, err := f.saga.CreateOrder(context.Background(), "C001", []OrderLineRequest{
		{ProductID: "P001", Quantity: 5},
		{ProductID: "P002", Quantity: 3},
		{ProductID: "P003", Quantity: 999},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, res.Status)

	available, reserved := f.stock(t, "P001")
	assert.Equal(t, 50, available)
	assert.Equal(t, 0, reserved)
	available, reserved = f.stock(t, "P002")
	assert.Equal(t, 100, available)
	assert.Equal(t, 0, reserved)
}

func TestCreateOrderPartialReserveKeepsPriorLinesWhenDisabled(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{ReleaseOnPartialReserve: false})

	res, err := f.saga.CreateOrder(context.Background(), "C001", []OrderLineRequest{
		{ProductID: "P001", Quantity: 5},
		{ProductID: "P003", Quantity: 999},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, res.Status)

	available, reserved := f.stock(t, "P001")
	assert.Equal(t, 45, available)
	assert.Equal(t, 5, reserved)
}

func TestCreateOrderPublishFailureGoesToOutbox(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})
	f.publisher.err = errors.New("broker unavailable")

	res, err := f.saga.CreateOrder(context.Background(), "C001",
		[]OrderLineRequest{{ProductID: "P001", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, res.Status)

	pending, err := f.outbox.GetPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.OrderID, pending[0].Key)
	assert.Equal(t, models.EventTypeOrderConfirmed, pending[0].EventType)
	assert.Equal(t, "broker unavailable", pending[0].LastError)
	assert.Contains(t, string(pending[0].Payload), res.OrderID)
}

func TestCreateOrderTotalIgnoresLaterPriceChanges(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})

	res, err := f.saga.CreateOrder(context.Background(), "C001",
		[]OrderLineRequest{{ProductID: "P002", Quantity: 2}})
	require.NoError(t, err)

	f.catalog.PutProduct(models.Product{ID: "P002", Name: "Mouse", Price: decimal.RequireFromString("1.00")})

	stored, err := f.saga.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "39.98", stored.TotalAmount().StringFixed(2))
}

func TestCreateOrderWithPaymentServiceTimeout(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})
	faults := &FaultInjection{}
	faults.SetPaymentDelay(200 * time.Millisecond)
	f.saga.payments = NewPaymentService(memstore.NewPaymentRepository(), faults, 20*time.Millisecond, decimal.Zero)

	res, err := f.saga.CreateOrder(context.Background(), "C001", []OrderLineRequest{
		{ProductID: "P001", Quantity: 1},
		{ProductID: "P003", Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaymentTimeout, res.Status)

	available, reserved := f.stock(t, "P003")
	assert.Equal(t, 200, available)
	assert.Equal(t, 0, reserved)
}

func TestGetOrderNotFound(t *testing.T) {
	f := newSagaFixture(t, SagaOptions{})

	_, err := f.saga.GetOrder(context.Background(), "ORD-missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
