package models

import "time"

const (
	// DefaultPageSize is the caregiver inbox page size.
	DefaultPageSize = 10

	// MaxPageSize caps client supplied limits.
	MaxPageSize = 50

	// DefaultCurrency is used when a payment intent names none.
	DefaultCurrency = "COP"

	// DefaultTimezone is where "today" is evaluated for booking windows.
	DefaultTimezone = "America/Bogota"

	// DefaultIdempotencyTTL keeps Idempotency-Key results.
	DefaultIdempotencyTTL = 24 * time.Hour

	// CreateRateLimit bookings an owner may create per CreateRateWindow.
	CreateRateLimit  = 20
	CreateRateWindow = time.Hour

	// MaxServicePrice caps a caregiver's per-day price in whole COP.
	MaxServicePrice = 1_000_000_000

	// NotifyQueueSize bounds the push notification queue.
	NotifyQueueSize = 256

	// EventQueueSize bounds the events waiting to be forwarded to the broker.
	EventQueueSize = 1024
)
