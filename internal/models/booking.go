package models

import "time"

// Date and time layouts used by booking windows.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Booking struct {
	ID          string        `json:"id" firestore:"-"`
	OwnerID     string        `json:"ownerId" firestore:"ownerId"`
	CaregiverID string        `json:"caregiverId" firestore:"caregiverId"`
	Status      BookingStatus `json:"status" firestore:"status"`
	Service     string        `json:"service" firestore:"service"`

	StartDate string `json:"startDate" firestore:"startDate"`
	StartTime string `json:"startTime" firestore:"startTime"`
	EndDate   string `json:"endDate" firestore:"endDate"`
	EndTime   string `json:"endTime,omitempty" firestore:"endTime"`
	Address   string `json:"address" firestore:"address"`

	PetType   string `json:"petType,omitempty" firestore:"petType"`
	PetName   string `json:"petName" firestore:"petName"`
	PetAge    string `json:"petAge,omitempty" firestore:"petAge"`
	PetWeight string `json:"petWeight,omitempty" firestore:"petWeight"`
	Friendly  bool   `json:"friendly" firestore:"friendly"`
	Meds      string `json:"meds,omitempty" firestore:"meds"`
	Notes     string `json:"notes,omitempty" firestore:"notes"`
	PhotoURL  string `json:"photoUrl,omitempty" firestore:"photoUrl"`

	PriceInCents     int64  `json:"priceInCents" firestore:"priceInCents"`
	PaymentReference string `json:"paymentReference,omitempty" firestore:"paymentReference,omitempty"`

	CreatedAt        time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt" firestore:"updatedAt"`
	AcceptedAt       *time.Time `json:"acceptedAt,omitempty" firestore:"acceptedAt,omitempty"`
	RejectedAt       *time.Time `json:"rejectedAt,omitempty" firestore:"rejectedAt,omitempty"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty" firestore:"cancelledAt,omitempty"`
	PendingPaymentAt *time.Time `json:"pendingPaymentAt,omitempty" firestore:"pendingPaymentAt,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty" firestore:"paidAt,omitempty"`

	Version int64 `json:"version" firestore:"version"`
}

// BookingPatch is the mutation applied by a status transition.
type BookingPatch struct {
	Status           BookingStatus
	UpdatedAt        time.Time
	AcceptedAt       *time.Time
	RejectedAt       *time.Time
	CancelledAt      *time.Time
	PendingPaymentAt *time.Time
	PaidAt           *time.Time
	PaymentReference string
}

// NewTransitionPatch builds the patch for moving to target at now,
// stamping the timestamp that belongs to that target.
func NewTransitionPatch(target BookingStatus, now time.Time) BookingPatch {
	p := BookingPatch{Status: target, UpdatedAt: now}
	ts := now
	switch target {
	case StatusAccepted:
		p.AcceptedAt = &ts
	case StatusDeclined:
		p.RejectedAt = &ts
	case StatusCancelled:
		p.CancelledAt = &ts
	case StatusPendingPayment:
		p.PendingPaymentAt = &ts
	case StatusPaid:
		p.PaidAt = &ts
	}
	return p
}

// Apply mutates b with p. Role timestamps already present are kept.
func (b *Booking) Apply(p BookingPatch) {
	b.Status = p.Status
	b.UpdatedAt = p.UpdatedAt
	b.AcceptedAt = keepFirst(b.AcceptedAt, p.AcceptedAt)
	b.RejectedAt = keepFirst(b.RejectedAt, p.RejectedAt)
	b.CancelledAt = keepFirst(b.CancelledAt, p.CancelledAt)
	b.PendingPaymentAt = keepFirst(b.PendingPaymentAt, p.PendingPaymentAt)
	b.PaidAt = keepFirst(b.PaidAt, p.PaidAt)
	if p.PaymentReference != "" {
		b.PaymentReference = p.PaymentReference
	}
	b.Version++
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.AcceptedAt = cloneTime(b.AcceptedAt)
	c.RejectedAt = cloneTime(b.RejectedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	c.PendingPaymentAt = cloneTime(b.PendingPaymentAt)
	c.PaidAt = cloneTime(b.PaidAt)
	return &c
}

func keepFirst(current, next *time.Time) *time.Time {
	if current != nil {
		return current
	}
	return cloneTime(next)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// BookingQuery holds the equality predicates and paging of a listing.
// Results are always ordered by CreatedAt descending.
type BookingQuery struct {
	OwnerID     string
	CaregiverID string
	Status      BookingStatus
	Limit       int
	Cursor      string
}

type BookingPage struct {
	Bookings   []*Booking `json:"bookings"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// OwnerBuckets groups an owner's bookings the way the "my bookings" view shows them.
type OwnerBuckets struct {
	Pending   []*Booking `json:"pending"`
	Accepted  []*Booking `json:"accepted"`
	Paid      []*Booking `json:"paid"`
	Cancelled []*Booking `json:"cancelled"`
}

// PartitionByStatus splits bookings into OwnerBuckets by status equality.
func PartitionByStatus(bookings []*Booking) OwnerBuckets {
	out := OwnerBuckets{
		Pending:   []*Booking{},
		Accepted:  []*Booking{},
		Paid:      []*Booking{},
		Cancelled: []*Booking{},
	}
	for _, b := range bookings {
		switch b.Status {
		case StatusRequested:
			out.Pending = append(out.Pending, b)
		case StatusAccepted, StatusPendingPayment:
			out.Accepted = append(out.Accepted, b)
		case StatusPaid:
			out.Paid = append(out.Paid, b)
		case StatusDeclined, StatusCancelled:
			out.Cancelled = append(out.Cancelled, b)
		}
	}
	return out
}
