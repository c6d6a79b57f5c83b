package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		ok       bool
	}{
		{StatusRequested, StatusAccepted, true},
		{StatusRequested, StatusDeclined, true},
		{StatusRequested, StatusCancelled, true},
		{StatusRequested, StatusPendingPayment, false},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusPendingPayment, true},
		{StatusAccepted, StatusDeclined, false},
		{StatusPendingPayment, StatusPaid, true},
		{StatusPendingPayment, StatusCancelled, false},
		{StatusPaid, StatusCancelled, false},
		{StatusDeclined, StatusAccepted, false},
		{StatusCancelled, StatusRequested, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestBookingStatus_Terminal(t *testing.T) {
	for _, s := range AllStatuses() {
		assert.True(t, s.IsValid())
	}
	assert.True(t, StatusDeclined.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusPaid.IsTerminal())
	assert.False(t, StatusRequested.IsTerminal())
	assert.False(t, StatusAccepted.IsTerminal())
	assert.False(t, StatusPendingPayment.IsTerminal())
	assert.True(t, BookingStatus("BOGUS").IsTerminal())
}

func TestParseBookingStatus(t *testing.T) {
	s, err := ParseBookingStatus(" accepted ")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, s)

	_, err = ParseBookingStatus("confirmed")
	assert.Error(t, err)
}

func TestRoleOf(t *testing.T) {
	b := &Booking{OwnerID: "owner-1", CaregiverID: "care-1"}

	assert.Equal(t, RoleOwner, RoleOf(b, "owner-1"))
	assert.Equal(t, RoleCaregiver, RoleOf(b, "care-1"))
	assert.Equal(t, RoleNeither, RoleOf(b, "someone"))
	assert.Equal(t, RoleNeither, RoleOf(b, ""))
	assert.Equal(t, RoleNeither, RoleOf(nil, "owner-1"))
	assert.Equal(t, "neither", RoleNeither.String())
}

func TestBooking_ApplyKeepsFirstTimestamp(t *testing.T) {
	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	b := &Booking{Status: StatusRequested}
	b.Apply(NewTransitionPatch(StatusAccepted, first))
	require.NotNil(t, b.AcceptedAt)
	assert.Equal(t, first, *b.AcceptedAt)
	assert.Equal(t, int64(1), b.Version)

	p := NewTransitionPatch(StatusAccepted, later)
	b.Apply(p)
	assert.Equal(t, first, *b.AcceptedAt)
	assert.Equal(t, later, b.UpdatedAt)

	b.Apply(BookingPatch{Status: StatusPendingPayment, UpdatedAt: later, PaymentReference: "SAFEPAW-x-1"})
	assert.Equal(t, "SAFEPAW-x-1", b.PaymentReference)
}

func TestBooking_CloneIsDeep(t *testing.T) {
	ts := time.Now()
	b := &Booking{ID: "b1", AcceptedAt: &ts}
	c := b.Clone()
	*c.AcceptedAt = ts.Add(time.Hour)
	assert.Equal(t, ts, *b.AcceptedAt)
	assert.Nil(t, (*Booking)(nil).Clone())
}

func TestPartitionByStatus(t *testing.T) {
	bookings := []*Booking{
		{ID: "1", Status: StatusRequested},
		{ID: "2", Status: StatusAccepted},
		{ID: "3", Status: StatusPendingPayment},
		{ID: "4", Status: StatusPaid},
		{ID: "5", Status: StatusDeclined},
		{ID: "6", Status: StatusCancelled},
	}

	got := PartitionByStatus(bookings)
	assert.Len(t, got.Pending, 1)
	assert.Len(t, got.Accepted, 2)
	assert.Len(t, got.Paid, 1)
	assert.Len(t, got.Cancelled, 2)

	empty := PartitionByStatus(nil)
	assert.NotNil(t, empty.Pending)
	assert.Empty(t, empty.Paid)
}

func TestCursor(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := CursorFor(&Booking{ID: "b2", CreatedAt: now})

	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, "b2", decoded.ID)
	assert.True(t, now.Equal(decoded.CreatedAt))

	assert.True(t, decoded.After(&Booking{ID: "b1", CreatedAt: now}))
	assert.False(t, decoded.After(&Booking{ID: "b3", CreatedAt: now}))
	assert.True(t, decoded.After(&Booking{ID: "z", CreatedAt: now.Add(-time.Second)}))

	_, err = DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCaregiverProfile(t *testing.T) {
	c := &CaregiverProfile{
		Services:      []string{ServiceWalk, ServiceOvernight},
		ServicePrices: map[string]int64{ServiceWalk: 20000, ServiceOvernight: 60000, ServiceDayCare: 0},
	}
	assert.True(t, c.Offers(ServiceWalk))
	assert.False(t, c.Offers(ServiceDayCare))
	assert.Equal(t, int64(20000), c.LowestPrice())

	c.MinPrice = 15000
	assert.Equal(t, int64(15000), c.LowestPrice())

	assert.Equal(t, "Paseo", ServiceLabel(ServiceWalk))
	assert.Equal(t, "otro", ServiceLabel("otro"))
	assert.True(t, IsKnownService(ServiceOwnerHome))
}

func TestCityKey(t *testing.T) {
	assert.Equal(t, "medellín", CityKey("  MEDELLÍN "))
	assert.Equal(t, CityKey("Bogotá"), CityKey("BOGOTÁ"))
	assert.Equal(t, "", CityKey("   "))
}
