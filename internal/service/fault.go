package service

import (
	"sync/atomic"
	"time"
)

// FaultInjection holds the runtime fault switches. The zero value has every
// fault disabled.
type FaultInjection struct {
	notificationFailure atomic.Bool
	paymentDelay        atomic.Int64
}

func (f *FaultInjection) SetNotificationFailure(enabled bool) {
	f.notificationFailure.Store(enabled)
}

func (f *FaultInjection) NotificationFailure() bool {
	return f.notificationFailure.Load()
}

func (f *FaultInjection) SetPaymentDelay(d time.Duration) {
	f.paymentDelay.Store(int64(d))
}

func (f *FaultInjection) PaymentDelay() time.Duration {
	return time.Duration(f.paymentDelay.Load())
}
