package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, owner_id, caregiver_id, status, service,
	start_date, start_time, end_date, end_time, address,
	pet_type, pet_name, pet_age, pet_weight, friendly, meds, notes, photo_url,
	price_in_cents, payment_reference, created_at, updated_at,
	accepted_at, rejected_at, cancelled_at, pending_payment_at, paid_at, version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Insert stores a new booking under a fresh id and returns it.
func (db *DB) Insert(ctx context.Context, b *models.Booking) (string, error) {
	id := uuid.NewString()
	version := b.Version
	if version == 0 {
		version = 1
	}

	query := `INSERT INTO bookings (` + bookingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		id, b.OwnerID, b.CaregiverID, string(b.Status), b.Service,
		b.StartDate, b.StartTime, b.EndDate, b.EndTime, b.Address,
		b.PetType, b.PetName, b.PetAge, b.PetWeight, b.Friendly, b.Meds, b.Notes, b.PhotoURL,
		b.PriceInCents, b.PaymentReference, toNanos(b.CreatedAt), toNanos(b.UpdatedAt),
		nullNanos(b.AcceptedAt), nullNanos(b.RejectedAt), nullNanos(b.CancelledAt),
		nullNanos(b.PendingPaymentAt), nullNanos(b.PaidAt), version,
	)
	if err != nil {
		return "", storeError("insert booking", err)
	}
	return id, nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, storeError("get booking", err)
	}
	return b, nil
}

// ConditionalUpdate applies p only while the row still has the expected status.
// Role timestamps that are already set are never overwritten.
func (db *DB) ConditionalUpdate(ctx context.Context, id string, expected models.BookingStatus, p models.BookingPatch) error {
	query := `UPDATE bookings SET
			status = ?,
			updated_at = ?,
			accepted_at = COALESCE(accepted_at, ?),
			rejected_at = COALESCE(rejected_at, ?),
			cancelled_at = COALESCE(cancelled_at, ?),
			pending_payment_at = COALESCE(pending_payment_at, ?),
			paid_at = COALESCE(paid_at, ?),
			payment_reference = CASE WHEN ? = '' THEN payment_reference ELSE ? END,
			version = version + 1
		WHERE id = ? AND status = ?`

	result, err := db.ExecContext(ctx, query,
		string(p.Status), toNanos(p.UpdatedAt),
		nullNanos(p.AcceptedAt), nullNanos(p.RejectedAt), nullNanos(p.CancelledAt),
		nullNanos(p.PendingPaymentAt), nullNanos(p.PaidAt),
		p.PaymentReference, p.PaymentReference,
		id, string(expected),
	)
	if err != nil {
		return storeError("update booking", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storeError("update booking", err)
	}
	if rows == 0 {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return storeError("check booking", err)
		}
		return fmt.Errorf("%w: booking %s is no longer %s", domain.ErrConflict, id, expected)
	}

	if stored, err := db.GetByID(ctx, id); err == nil {
		db.watchers.notify(stored)
	} else {
		db.logger.Warn().Err(err).Str("booking_id", id).Msg("failed to reload booking for watchers")
	}
	return nil
}

// Query lists bookings newest first. A positive Limit enables keyset paging.
func (db *DB) Query(ctx context.Context, q models.BookingQuery) (*models.BookingPage, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.CaregiverID != "" {
		where = append(where, "caregiver_id = ?")
		args = append(args, q.CaregiverID)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Cursor != "" {
		c, err := models.DecodeCursor(q.Cursor)
		if err != nil {
			return nil, domain.Invalid("cursor", "malformed cursor")
		}
		at := toNanos(c.CreatedAt)
		where = append(where, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, at, at, c.ID)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit+1)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("query bookings", err)
	}
	defer rows.Close()

	page := &models.BookingPage{Bookings: []*models.Booking{}}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, storeError("scan booking", err)
		}
		page.Bookings = append(page.Bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("query bookings", err)
	}

	if q.Limit > 0 && len(page.Bookings) > q.Limit {
		page.Bookings = page.Bookings[:q.Limit]
		page.NextCursor = models.CursorFor(page.Bookings[q.Limit-1]).Encode()
	}
	return page, nil
}

// Subscribe delivers the current record and every later committed write of it.
// The watcher is registered before the initial read so no commit in between is
// lost; deliveries never go back to an older version.
func (db *DB) Subscribe(ctx context.Context, id string, onChange func(*models.Booking)) (func(), error) {
	var (
		mu        sync.Mutex
		delivered bool
		last      int64
	)
	deliver := func(b *models.Booking) {
		mu.Lock()
		defer mu.Unlock()
		if delivered && b.Version <= last {
			return
		}
		delivered = true
		last = b.Version
		onChange(b)
	}

	cancel := db.watchers.add(id, deliver)
	current, err := db.GetByID(ctx, id)
	if err != nil {
		cancel()
		return nil, err
	}
	deliver(current)

	go func() {
		<-ctx.Done()
		cancel()
	}()
	return cancel, nil
}

func scanBooking(s rowScanner) (*models.Booking, error) {
	var (
		b                    models.Booking
		status               string
		createdAt, updatedAt int64
		accepted, rejected   sql.NullInt64
		cancelled, pending   sql.NullInt64
		paid                 sql.NullInt64
	)
	err := s.Scan(
		&b.ID, &b.OwnerID, &b.CaregiverID, &status, &b.Service,
		&b.StartDate, &b.StartTime, &b.EndDate, &b.EndTime, &b.Address,
		&b.PetType, &b.PetName, &b.PetAge, &b.PetWeight, &b.Friendly, &b.Meds, &b.Notes, &b.PhotoURL,
		&b.PriceInCents, &b.PaymentReference, &createdAt, &updatedAt,
		&accepted, &rejected, &cancelled, &pending, &paid, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.Status = models.BookingStatus(status)
	b.CreatedAt = fromNanos(createdAt)
	b.UpdatedAt = fromNanos(updatedAt)
	b.AcceptedAt = fromNullNanos(accepted)
	b.RejectedAt = fromNullNanos(rejected)
	b.CancelledAt = fromNullNanos(cancelled)
	b.PendingPaymentAt = fromNullNanos(pending)
	b.PaidAt = fromNullNanos(paid)
	return &b, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
