package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/events"
	"safepaw/internal/metrics"
	"safepaw/internal/models"

	"github.com/rs/zerolog"
)

// claimPending marks an idempotency key whose booking is still being created.
const claimPending = "pending"

// BookingOptions tunes the lifecycle manager. Zero values fall back to defaults.
type BookingOptions struct {
	Location       *time.Location
	PageSize       int
	MaxPageSize    int
	CreateLimit    int
	CreateWindow   time.Duration
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

func (o *BookingOptions) applyDefaults() {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.PageSize <= 0 {
		o.PageSize = models.DefaultPageSize
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = models.MaxPageSize
	}
	if o.CreateWindow <= 0 {
		o.CreateWindow = models.CreateRateWindow
	}
	if o.IdempotencyTTL <= 0 {
		o.IdempotencyTTL = models.DefaultIdempotencyTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// BookingService is the booking lifecycle manager.
type BookingService struct {
	store      domain.BookingStore
	caregivers domain.CaregiverDirectory
	kv         domain.KeyValueStore
	eventBus   domain.EventPublisher
	opts       BookingOptions
	logger     *zerolog.Logger
}

var _ domain.BookingService = (*BookingService)(nil)

func NewBookingService(
	store domain.BookingStore,
	caregivers domain.CaregiverDirectory,
	kv domain.KeyValueStore,
	eventBus domain.EventPublisher,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	opts.applyDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		store:      store,
		caregivers: caregivers,
		kv:         kv,
		eventBus:   eventBus,
		opts:       opts,
		logger:     logger,
	}
}

// CreateBooking validates req, prices it and inserts a REQUESTED booking owned by actor.
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, req domain.CreateBookingRequest) (*models.Booking, error) {
	booking, err := s.createBooking(ctx, actor, req)
	metrics.IncBookingCreated(resultLabel(err))
	return booking, err
}

func (s *BookingService) createBooking(ctx context.Context, actor models.Actor, req domain.CreateBookingRequest) (*models.Booking, error) {
	if actor.Kind != models.ActorUser || actor.ID == "" {
		return nil, fmt.Errorf("%w: bookings are created by an authenticated owner", domain.ErrUnauthorized)
	}

	req.CaregiverID = strings.TrimSpace(req.CaregiverID)
	if req.CaregiverID == "" {
		return nil, domain.Invalid("caregiverId", "is required")
	}

	profile, err := s.caregivers.GetCaregiver(ctx, req.CaregiverID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Invalid("caregiverId", "caregiver does not exist")
	}
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	window, err := validateCreate(&req, profile, now, s.opts.Location)
	if err != nil {
		return nil, err
	}
	price, err := ComputePrice(profile, req.Service, window.start, window.end)
	if err != nil {
		return nil, err
	}

	idemKey := ""
	if req.IdempotencyKey != "" && s.kv != nil {
		idemKey = "idem:booking:" + actor.ID + ":" + req.IdempotencyKey
		claimed, existing, err := s.kv.Claim(ctx, idemKey, s.opts.IdempotencyTTL)
		if err != nil {
			return nil, domain.Unavailable("idempotency store", err)
		}
		if !claimed {
			if existing == claimPending || existing == "" {
				return nil, fmt.Errorf("%w: a request with this idempotency key is in progress", domain.ErrConflict)
			}
			s.logger.Info().Str("booking_id", existing).Str("owner_id", actor.ID).Msg("idempotent booking replay")
			return s.store.GetByID(ctx, existing)
		}
	}

	booking, err := s.insert(ctx, actor, req, window, price, now)
	if err != nil {
		if idemKey != "" {
			if relErr := s.kv.Release(ctx, idemKey); relErr != nil {
				s.logger.Warn().Err(relErr).Str("key", idemKey).Msg("failed to release idempotency key")
			}
		}
		return nil, err
	}

	if idemKey != "" {
		if err := s.kv.Complete(ctx, idemKey, booking.ID, s.opts.IdempotencyTTL); err != nil {
			s.logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("failed to store idempotency result")
		}
	}

	s.publishEvent(events.EventBookingCreated, booking, actor)
	return booking, nil
}

func (s *BookingService) insert(
	ctx context.Context,
	actor models.Actor,
	req domain.CreateBookingRequest,
	window bookingWindow,
	priceInCents int64,
	now time.Time,
) (*models.Booking, error) {
	if s.kv != nil && s.opts.CreateLimit > 0 {
		allowed, err := s.kv.CheckRateLimit(ctx, "rl:booking:create:"+actor.ID, s.opts.CreateLimit, s.opts.CreateWindow)
		if err != nil {
			s.logger.Warn().Err(err).Str("owner_id", actor.ID).Msg("rate limit check failed, allowing request")
		} else if !allowed {
			return nil, domain.ErrRateLimited
		}
	}

	booking := &models.Booking{
		OwnerID:      actor.ID,
		CaregiverID:  req.CaregiverID,
		Status:       models.StatusRequested,
		Service:      req.Service,
		StartDate:    window.start.Format(models.DateLayout),
		StartTime:    strings.TrimSpace(req.StartTime),
		EndDate:      window.end.Format(models.DateLayout),
		EndTime:      strings.TrimSpace(req.EndTime),
		Address:      strings.TrimSpace(req.Address),
		PetType:      strings.TrimSpace(req.PetType),
		PetName:      strings.TrimSpace(req.PetName),
		PetAge:       strings.TrimSpace(req.PetAge),
		PetWeight:    strings.TrimSpace(req.PetWeight),
		Friendly:     req.Friendly,
		Meds:         strings.TrimSpace(req.Meds),
		Notes:        strings.TrimSpace(req.Notes),
		PhotoURL:     strings.TrimSpace(req.PhotoURL),
		PriceInCents: priceInCents,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}

	id, err := s.store.Insert(ctx, booking)
	if err != nil {
		s.logger.Error().Err(err).Str("owner_id", actor.ID).Str("caregiver_id", req.CaregiverID).Msg("failed to insert booking")
		return nil, err
	}
	booking.ID = id
	return booking, nil
}

// RequestTransition moves a booking to target on behalf of actor.
// Exactly one conditional write happens on success and none on rejection.
func (s *BookingService) RequestTransition(ctx context.Context, bookingID string, actor models.Actor, target models.BookingStatus) (*models.Booking, error) {
	b, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		metrics.IncTransition(string(target), resultLabel(err))
		return nil, err
	}
	return s.transition(ctx, b, actor, target, nil)
}

// transition authorizes and commits one status change of the observed record b.
// mutate may add fields to the patch before it is written.
func (s *BookingService) transition(
	ctx context.Context,
	b *models.Booking,
	actor models.Actor,
	target models.BookingStatus,
	mutate func(*models.BookingPatch),
) (*models.Booking, error) {
	if err := AuthorizeTransition(b, actor, target); err != nil {
		metrics.IncTransition(string(target), resultLabel(err))
		s.logger.Info().
			Err(err).
			Str("booking_id", b.ID).
			Str("actor_id", actor.ID).
			Str("from", string(b.Status)).
			Str("to", string(target)).
			Msg("transition rejected")
		return nil, err
	}

	patch := models.NewTransitionPatch(target, s.opts.Now().UTC())
	if mutate != nil {
		mutate(&patch)
	}

	if err := s.store.ConditionalUpdate(ctx, b.ID, b.Status, patch); err != nil {
		metrics.IncTransition(string(target), resultLabel(err))
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Warn().Str("booking_id", b.ID).Str("expected", string(b.Status)).Str("to", string(target)).Msg("transition lost race")
		} else {
			s.logger.Error().Err(err).Str("booking_id", b.ID).Str("to", string(target)).Msg("transition write failed")
		}
		return nil, err
	}

	updated := b.Clone()
	updated.Apply(patch)
	metrics.IncTransition(string(target), "ok")

	s.publishEvent(events.EventTypeForStatus(target), updated, actor)
	return updated, nil
}

// GetBooking returns a booking visible to actor.
func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if models.RoleOf(b, actor.ID) == models.RoleNeither {
		return nil, fmt.Errorf("%w: not a party to this booking", domain.ErrUnauthorized)
	}
	return b, nil
}

// Subscribe streams the booking to a party until the returned func is called.
func (s *BookingService) Subscribe(ctx context.Context, actor models.Actor, id string, onChange func(*models.Booking)) (func(), error) {
	if _, err := s.GetBooking(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.Subscribe(ctx, id, onChange)
}

// ListByOwner returns every booking of the owner across all statuses.
func (s *BookingService) ListByOwner(ctx context.Context, ownerID string) ([]*models.Booking, error) {
	if ownerID == "" {
		return nil, domain.Invalid("ownerId", "is required")
	}
	page, err := s.store.Query(ctx, models.BookingQuery{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	return page.Bookings, nil
}

// ListByCaregiver pages through a caregiver's bookings, newest first.
func (s *BookingService) ListByCaregiver(
	ctx context.Context,
	caregiverID string,
	status models.BookingStatus,
	cursor string,
	pageSize int,
) (*models.BookingPage, error) {
	if caregiverID == "" {
		return nil, domain.Invalid("caregiverId", "is required")
	}
	if status != "" && !status.IsValid() {
		return nil, domain.Invalid("status", "unknown status")
	}
	if cursor != "" {
		if _, err := models.DecodeCursor(cursor); err != nil {
			return nil, domain.Invalid("cursor", "malformed cursor")
		}
	}

	switch {
	case pageSize <= 0:
		pageSize = s.opts.PageSize
	case pageSize > s.opts.MaxPageSize:
		pageSize = s.opts.MaxPageSize
	}

	return s.store.Query(ctx, models.BookingQuery{
		CaregiverID: caregiverID,
		Status:      status,
		Limit:       pageSize,
		Cursor:      cursor,
	})
}

// CountPending returns how many REQUESTED bookings wait for the caregiver.
func (s *BookingService) CountPending(ctx context.Context, caregiverID string) (int, error) {
	if caregiverID == "" {
		return 0, domain.Invalid("caregiverId", "is required")
	}
	page, err := s.store.Query(ctx, models.BookingQuery{CaregiverID: caregiverID, Status: models.StatusRequested})
	if err != nil {
		return 0, err
	}
	return len(page.Bookings), nil
}

// ExportByCaregiver returns every booking of the caregiver, newest first.
func (s *BookingService) ExportByCaregiver(ctx context.Context, caregiverID string) ([]*models.Booking, error) {
	if caregiverID == "" {
		return nil, domain.Invalid("caregiverId", "is required")
	}
	page, err := s.store.Query(ctx, models.BookingQuery{CaregiverID: caregiverID})
	if err != nil {
		return nil, err
	}
	return page.Bookings, nil
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, actor models.Actor) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewBookingEventPayload(b, actor)); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("booking_id", b.ID).Msg("failed to publish event")
	}
}

// resultLabel collapses an error into a low-cardinality metric label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrCollaboratorUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
