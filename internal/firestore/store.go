// Package firestore stores bookings and caregiver profiles in Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/models"

	fs "cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	bookingsCollection   = "bookings"
	caregiversCollection = "caregivers"
)

var errStatusChanged = errors.New("booking status changed")

// Store implements domain.BookingStore and domain.CaregiverDirectory.
type Store struct {
	client *fs.Client
	logger *zerolog.Logger
}

func NewStore(client *fs.Client, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{client: client, logger: logger}
}

func (s *Store) bookings() *fs.CollectionRef {
	return s.client.Collection(bookingsCollection)
}

func (s *Store) Insert(ctx context.Context, b *models.Booking) (string, error) {
	doc := s.bookings().NewDoc()
	rec := b.Clone()
	if rec.Version == 0 {
		rec.Version = 1
	}
	if _, err := doc.Create(ctx, rec); err != nil {
		return "", mapError("insert booking", err)
	}
	return doc.ID, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	snap, err := s.bookings().Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError("get booking", err)
	}
	return decodeBooking(snap)
}

// ConditionalUpdate runs the status check and the write in one transaction.
func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected models.BookingStatus, p models.BookingPatch) error {
	ref := s.bookings().Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decodeBooking(snap)
		if err != nil {
			return err
		}
		if current.Status != expected {
			return errStatusChanged
		}
		return tx.Update(ref, transitionUpdates(current, p))
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStatusChanged):
		return fmt.Errorf("%w: booking %s is no longer %s", domain.ErrConflict, id, expected)
	default:
		return mapError("update booking", err)
	}
}

// transitionUpdates lists the field writes for p against the stored record.
// Role timestamps already present are left alone.
func transitionUpdates(current *models.Booking, p models.BookingPatch) []fs.Update {
	updates := []fs.Update{
		{Path: "status", Value: string(p.Status)},
		{Path: "updatedAt", Value: p.UpdatedAt},
		{Path: "version", Value: fs.Increment(1)},
	}
	add := func(path string, stored, next *time.Time) {
		if stored == nil && next != nil {
			updates = append(updates, fs.Update{Path: path, Value: *next})
		}
	}
	add("acceptedAt", current.AcceptedAt, p.AcceptedAt)
	add("rejectedAt", current.RejectedAt, p.RejectedAt)
	add("cancelledAt", current.CancelledAt, p.CancelledAt)
	add("pendingPaymentAt", current.PendingPaymentAt, p.PendingPaymentAt)
	add("paidAt", current.PaidAt, p.PaidAt)

	if p.PaymentReference != "" {
		updates = append(updates, fs.Update{Path: "paymentReference", Value: p.PaymentReference})
	}
	return updates
}

// Query lists bookings newest first. It needs composite indexes on
// (ownerId|caregiverId, status, createdAt desc, __name__ desc).
func (s *Store) Query(ctx context.Context, q models.BookingQuery) (*models.BookingPage, error) {
	query := s.bookings().Query
	if q.OwnerID != "" {
		query = query.Where("ownerId", "==", q.OwnerID)
	}
	if q.CaregiverID != "" {
		query = query.Where("caregiverId", "==", q.CaregiverID)
	}
	if q.Status != "" {
		query = query.Where("status", "==", string(q.Status))
	}
	query = query.OrderBy("createdAt", fs.Desc).OrderBy(fs.DocumentID, fs.Desc)

	if q.Cursor != "" {
		c, err := models.DecodeCursor(q.Cursor)
		if err != nil {
			return nil, domain.Invalid("cursor", "malformed cursor")
		}
		query = query.StartAfter(c.CreatedAt, c.ID)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit + 1)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	page := &models.BookingPage{Bookings: []*models.Booking{}}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError("query bookings", err)
		}
		b, err := decodeBooking(snap)
		if err != nil {
			return nil, err
		}
		page.Bookings = append(page.Bookings, b)
	}

	if q.Limit > 0 && len(page.Bookings) > q.Limit {
		page.Bookings = page.Bookings[:q.Limit]
		page.NextCursor = models.CursorFor(page.Bookings[q.Limit-1]).Encode()
	}
	return page, nil
}

// Subscribe follows the document with a snapshot listener until the returned
// func is called or ctx ends.
func (s *Store) Subscribe(ctx context.Context, id string, onChange func(*models.Booking)) (func(), error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(ctx)
	it := s.bookings().Doc(id).Snapshots(listenCtx)
	onChange(current)
	lastVersion := current.Version

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled && !errors.Is(err, context.Canceled) {
					s.logger.Warn().Err(err).Str("booking_id", id).Msg("booking listener stopped")
				}
				return
			}
			if !snap.Exists() {
				onChange(nil)
				continue
			}
			b, err := decodeBooking(snap)
			if err != nil {
				s.logger.Error().Err(err).Str("booking_id", id).Msg("failed to decode booking snapshot")
				continue
			}
			// the listener replays the state already delivered above
			if b.Version == lastVersion {
				continue
			}
			lastVersion = b.Version
			onChange(b)
		}
	}()

	return cancel, nil
}

// Ping reads a sentinel document; NotFound still proves connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection("_health").Doc("ping").Get(ctx)
	if err == nil || status.Code(err) == codes.NotFound {
		return nil
	}
	return domain.Unavailable("firestore", err)
}

func decodeBooking(snap *fs.DocumentSnapshot) (*models.Booking, error) {
	var b models.Booking
	if err := snap.DataTo(&b); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", snap.Ref.ID, err)
	}
	b.ID = snap.Ref.ID
	return &b, nil
}

// mapError converts gRPC status codes from the Firestore client into domain errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return domain.ErrNotFound
	case codes.Aborted:
		return fmt.Errorf("%w: %s: %v", domain.ErrConflict, op, err)
	case codes.Canceled:
		return context.Canceled
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", op, err)
	default:
		return domain.Unavailable("firestore", fmt.Errorf("%s: %w", op, err))
	}
}
