package models

import (
	"errors"
	"fmt"
)

// Error classes. Typed errors below match these through errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrPaymentTimeout    = errors.New("payment transport timeout")
	ErrPaymentDeclined   = errors.New("payment declined")
	ErrSimulatedFailure  = errors.New("simulated processing failure")
)

// ValidationError reports bad input rejected before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an unknown product, order or customer.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError is returned when a reservation exceeds available stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested=%d, available=%d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrConflict }

// OverReleaseError is returned when a release exceeds reserved stock.
type OverReleaseError struct {
	ProductID string
	Requested int
	Reserved  int
}

func (e *OverReleaseError) Error() string {
	return fmt.Sprintf("cannot release %d of product %s, only %d reserved",
		e.Requested, e.ProductID, e.Reserved)
}

func (e *OverReleaseError) Is(target error) bool { return target == ErrConflict }

// IllegalTransitionError signals misuse of the order state machine.
type IllegalTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }
