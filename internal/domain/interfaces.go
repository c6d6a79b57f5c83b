package domain

import (
	"context"
	"time"

	"safepaw/internal/models"
)

// BookingStore is the document store holding bookings.
type BookingStore interface {
	Insert(ctx context.Context, booking *models.Booking) (string, error)
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	// Subscribe calls onChange with the current record and after every write.
	// onChange receives nil if the record disappears.
	Subscribe(ctx context.Context, id string, onChange func(*models.Booking)) (func(), error)
	Query(ctx context.Context, q models.BookingQuery) (*models.BookingPage, error)
	// ConditionalUpdate applies patch only while the stored status equals expected,
	// returning ErrConflict otherwise.
	ConditionalUpdate(ctx context.Context, id string, expected models.BookingStatus, patch models.BookingPatch) error
	Ping(ctx context.Context) error
}

type CaregiverDirectory interface {
	GetCaregiver(ctx context.Context, id string) (*models.CaregiverProfile, error)
	ListCaregivers(ctx context.Context, filter models.CaregiverFilter) ([]*models.CaregiverProfile, error)
	SaveCaregiver(ctx context.Context, profile *models.CaregiverProfile) error
}

type PaymentIntent struct {
	Reference     string `json:"reference"`
	Currency      string `json:"currency"`
	AmountInCents int64  `json:"amountInCents"`
	BookingID     string `json:"bookingId"`
}

type PaymentGateway interface {
	AcceptanceToken(ctx context.Context) (string, error)
	CreateIntent(ctx context.Context, amountInCents int64, currency, bookingID string) (*PaymentIntent, error)
}

type UploadSignature struct {
	CloudName string `json:"cloudName"`
	APIKey    string `json:"apiKey"`
	Timestamp int64  `json:"timestamp"`
	Folder    string `json:"folder,omitempty"`
	Signature string `json:"signature"`
}

type MediaSigner interface {
	SignUpload(timestamp int64) (*UploadSignature, error)
}

type MediaUploader interface {
	Upload(ctx context.Context, file interface{}, filename string) (string, error)
}

type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*models.Principal, error)
}

// KeyValueStore backs idempotency keys, webhook dedupe and rate limits.
type KeyValueStore interface {
	// Claim reserves key. When the key already exists it returns false and its value.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, string, error)
	Complete(ctx context.Context, key, value string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type Notification struct {
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

type Notifier interface {
	Enqueue(ctx context.Context, n Notification) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, actor models.Actor, req CreateBookingRequest) (*models.Booking, error)
	RequestTransition(ctx context.Context, bookingID string, actor models.Actor, target models.BookingStatus) (*models.Booking, error)
	GetBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error)
	Subscribe(ctx context.Context, actor models.Actor, id string, onChange func(*models.Booking)) (func(), error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Booking, error)
	ListByCaregiver(ctx context.Context, caregiverID string, status models.BookingStatus, cursor string, pageSize int) (*models.BookingPage, error)
	CountPending(ctx context.Context, caregiverID string) (int, error)
}

// CreateBookingRequest is the owner supplied part of a new booking.
type CreateBookingRequest struct {
	CaregiverID    string `json:"caregiverId"`
	Service        string `json:"service"`
	StartDate      string `json:"startDate"`
	StartTime      string `json:"startTime"`
	EndDate        string `json:"endDate"`
	EndTime        string `json:"endTime"`
	Address        string `json:"address"`
	PetType        string `json:"petType"`
	PetName        string `json:"petName"`
	PetAge         string `json:"petAge"`
	PetWeight      string `json:"petWeight"`
	Friendly       bool   `json:"friendly"`
	Meds           string `json:"meds"`
	Notes          string `json:"notes"`
	PhotoURL       string `json:"photoUrl"`
	IdempotencyKey string `json:"-"`
}
