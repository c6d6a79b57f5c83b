package models

import (
	"fmt"
	"strings"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusRequested      BookingStatus = "REQUESTED"
	StatusAccepted       BookingStatus = "ACCEPTED"
	StatusDeclined       BookingStatus = "DECLINED"
	StatusCancelled      BookingStatus = "CANCELLED"
	StatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	StatusPaid           BookingStatus = "PAID"
)

var validTransitions = map[BookingStatus][]BookingStatus{
	StatusRequested:      {StatusAccepted, StatusDeclined, StatusCancelled},
	StatusAccepted:       {StatusCancelled, StatusPendingPayment},
	StatusPendingPayment: {StatusPaid},
	StatusDeclined:       {},
	StatusCancelled:      {},
	StatusPaid:           {},
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []BookingStatus {
	return []BookingStatus{
		StatusRequested,
		StatusAccepted,
		StatusPendingPayment,
		StatusPaid,
		StatusDeclined,
		StatusCancelled,
	}
}

func (s BookingStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo reports whether target is a legal edge from s.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
// Unknown statuses are treated as terminal.
func (s BookingStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus accepts the canonical upper-case name, case-insensitively.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	status := BookingStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %q", raw)
	}
	return status, nil
}
