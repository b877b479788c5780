package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLines() []OrderLine {
	return []OrderLine{
		{ProductID: "P001", Quantity: 2, UnitPrice: decimal.RequireFromString("999.00")},
		{ProductID: "P002", Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
	}
}

func TestNewOrderComputesTotal(t *testing.T) {
	order, err := NewOrder("ORD-1", "C001", testLines())
	require.NoError(t, err)

	assert.Equal(t, OrderStatusCreated, order.Status())
	assert.True(t, decimal.RequireFromString("2057.97").Equal(order.TotalAmount()))
	assert.Equal(t, order.CreatedAt(), order.UpdatedAt())
}

func TestNewOrderRejectsNonPositiveQuantity(t *testing.T) {
	for _, qty := range []int{0, -1} {
		lines := testLines()
		lines[1].Quantity = qty

		_, err := NewOrder("ORD-1", "C001", lines)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestNewOrderRejectsMissingFields(t *testing.T) {
	_, err := NewOrder("ORD-1", "", testLines())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewOrder("ORD-1", "C001", nil)
	assert.ErrorIs(t, err, ErrValidation)

	lines := testLines()
	lines[0].UnitPrice = decimal.NewFromInt(-1)
	_, err = NewOrder("ORD-1", "C001", lines)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOrderLinesAreCopies(t *testing.T) {
	lines := testLines()
	order, err := NewOrder("ORD-1", "C001", lines)
	require.NoError(t, err)

	lines[0].Quantity = 100
	got := order.Lines()
	got[1].Quantity = 100

	assert.Equal(t, 2, order.Lines()[0].Quantity)
	assert.Equal(t, 3, order.Lines()[1].Quantity)
}

func TestOrderTransitionsAreExclusive(t *testing.T) {
	transitions := map[string]func(*Order) error{
		"confirm":        (*Order).Confirm,
		"fail":           (*Order).Fail,
		"timeoutPayment": (*Order).TimeoutPayment,
	}

	for first, do := range transitions {
		t.Run(first, func(t *testing.T) {
			order, err := NewOrder("ORD-1", "C001", testLines())
			require.NoError(t, err)

			require.NoError(t, do(order))
			assert.True(t, order.Status().IsTerminal())
			terminal := order.Status()

			for second, again := range transitions {
				err := again(order)
				var illegal *IllegalTransitionError
				require.True(t, errors.As(err, &illegal), "second call %s", second)
				assert.ErrorIs(t, err, ErrIllegalTransition)
				assert.Equal(t, terminal, illegal.From)
			}
			assert.Equal(t, terminal, order.Status())
		})
	}
}

func TestOrderTransitionRefreshesUpdatedAt(t *testing.T) {
	order, err := NewOrder("ORD-1", "C001", testLines())
	require.NoError(t, err)
	before := order.UpdatedAt()

	require.NoError(t, order.Confirm())
	assert.False(t, order.UpdatedAt().Before(before))
	assert.Equal(t, OrderStatusConfirmed, order.Status())
}

func TestNewOrderConfirmedEvent(t *testing.T) {
	order, err := NewOrder("ORD-1", "C001", testLines())
	require.NoError(t, err)
	require.NoError(t, order.Confirm())

	event := NewOrderConfirmedEvent(order)
	assert.Equal(t, EventTypeOrderConfirmed, event.EventType)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "ORD-1", event.OrderID)
	assert.Equal(t, "C001", event.CustomerID)
	assert.Len(t, event.Items, 2)
	assert.True(t, order.TotalAmount().Equal(event.TotalAmount))
	assert.Equal(t, OrderStatusConfirmed, event.Status)
}
