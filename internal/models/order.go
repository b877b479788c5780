package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order statuses
const (
	OrderStatusCreated        OrderStatus = "CREATED"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusFailed         OrderStatus = "FAILED"
	OrderStatusPaymentTimeout OrderStatus = "PAYMENT_TIMEOUT"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusFailed || s == OrderStatusPaymentTimeout
}

// OrderLine is one product line of an order, priced at creation time.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal returns UnitPrice x Quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is the aggregate driven by the saga. Its status only moves through
// Confirm, Fail and TimeoutPayment.
type Order struct {
	id          string
	customerID  string
	status      OrderStatus
	lines       []OrderLine
	totalAmount decimal.Decimal
	createdAt   time.Time
	updatedAt   time.Time
}

// NewOrder builds a CREATED order and fixes its total.
func NewOrder(id, customerID string, lines []OrderLine) (*Order, error) {
	if id == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "is required"}
	}
	if customerID == "" {
		return nil, &ValidationError{Field: "customer_id", Reason: "is required"}
	}
	if len(lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: "must not be empty"}
	}

	total := decimal.Zero
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, &ValidationError{Field: "product_id", Reason: "is required"}
		}
		if line.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
		}
		if line.UnitPrice.IsNegative() {
			return nil, &ValidationError{Field: "unit_price", Reason: "must not be negative"}
		}
		total = total.Add(line.Subtotal())
	}

	now := time.Now().UTC()
	return &Order{
		id:          id,
		customerID:  customerID,
		status:      OrderStatusCreated,
		lines:       append([]OrderLine(nil), lines...),
		totalAmount: total,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// RestoreOrder rebuilds an order from persisted state without re-deriving the total.
func RestoreOrder(id, customerID string, status OrderStatus, lines []OrderLine,
	totalAmount decimal.Decimal, createdAt, updatedAt time.Time) *Order {
	return &Order{
		id:          id,
		customerID:  customerID,
		status:      status,
		lines:       append([]OrderLine(nil), lines...),
		totalAmount: totalAmount,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func (o *Order) ID() string                   { return o.id }
func (o *Order) CustomerID() string           { return o.customerID }
func (o *Order) Status() OrderStatus          { return o.status }
func (o *Order) TotalAmount() decimal.Decimal { return o.totalAmount }
func (o *Order) CreatedAt() time.Time         { return o.createdAt }
func (o *Order) UpdatedAt() time.Time         { return o.updatedAt }

// Lines returns a copy of the order lines.
func (o *Order) Lines() []OrderLine {
	return append([]OrderLine(nil), o.lines...)
}

// Confirm moves CREATED -> CONFIRMED.
func (o *Order) Confirm() error {
	return o.transition(OrderStatusConfirmed)
}

// Fail moves CREATED -> FAILED.
func (o *Order) Fail() error {
	return o.transition(OrderStatusFailed)
}

// TimeoutPayment moves CREATED -> PAYMENT_TIMEOUT.
func (o *Order) TimeoutPayment() error {
	return o.transition(OrderStatusPaymentTimeout)
}

func (o *Order) transition(to OrderStatus) error {
	if o.status != OrderStatusCreated {
		return &IllegalTransitionError{OrderID: o.id, From: o.status, To: to}
	}
	o.status = to
	o.touch()
	return nil
}

func (o *Order) touch() {
	o.updatedAt = time.Now().UTC()
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.lines = append([]OrderLine(nil), o.lines...)
	return &c
}
