package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/models"

	"github.com/rs/zerolog"
)

// CaregiverService is the read/filter surface over caregiver profiles,
// plus the "become a caregiver" profile form.
type CaregiverService struct {
	directory domain.CaregiverDirectory
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewCaregiverService(directory domain.CaregiverDirectory, logger *zerolog.Logger) *CaregiverService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CaregiverService{directory: directory, now: time.Now, logger: logger}
}

func (s *CaregiverService) List(ctx context.Context, filter models.CaregiverFilter) ([]*models.CaregiverProfile, error) {
	filter.City = strings.TrimSpace(filter.City)
	filter.Service = strings.TrimSpace(filter.Service)
	return s.directory.ListCaregivers(ctx, filter)
}

func (s *CaregiverService) Get(ctx context.Context, id string) (*models.CaregiverProfile, error) {
	if id == "" {
		return nil, domain.Invalid("id", "is required")
	}
	return s.directory.GetCaregiver(ctx, id)
}

// SaveProfile creates or replaces the actor's own caregiver profile.
// Ratings are kept from the stored profile; MinPrice is derived.
func (s *CaregiverService) SaveProfile(ctx context.Context, actor models.Actor, in models.CaregiverProfile) (*models.CaregiverProfile, error) {
	if actor.Kind != models.ActorUser || actor.ID == "" {
		return nil, fmt.Errorf("%w: caregiver profiles belong to a signed-in user", domain.ErrUnauthorized)
	}

	profile, err := normalizeProfile(in)
	if err != nil {
		return nil, err
	}
	profile.ID = actor.ID
	profile.UpdatedAt = s.now().UTC()

	existing, err := s.directory.GetCaregiver(ctx, actor.ID)
	switch {
	case err == nil:
		profile.RatingAvg = existing.RatingAvg
		profile.RatingCount = existing.RatingCount
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, err
	}

	if err := s.directory.SaveCaregiver(ctx, profile); err != nil {
		s.logger.Error().Err(err).Str("caregiver_id", actor.ID).Msg("failed to save caregiver profile")
		return nil, err
	}
	return profile, nil
}

func normalizeProfile(in models.CaregiverProfile) (*models.CaregiverProfile, error) {
	out := &models.CaregiverProfile{
		Name:          strings.TrimSpace(in.Name),
		City:          strings.TrimSpace(in.City),
		Bio:           strings.TrimSpace(in.Bio),
		PhotoURL:      strings.TrimSpace(in.PhotoURL),
		ServicePrices: make(map[string]int64, len(in.Services)),
	}
	if out.Name == "" {
		return nil, domain.Invalid("name", "is required")
	}
	if out.City == "" {
		return nil, domain.Invalid("city", "is required")
	}
	if len(in.Services) == 0 {
		return nil, domain.Invalid("services", "select at least one service")
	}

	seen := make(map[string]bool, len(in.Services))
	for _, svc := range in.Services {
		svc = strings.TrimSpace(svc)
		if !models.IsKnownService(svc) {
			return nil, domain.Invalid("services", fmt.Sprintf("unknown service %q", svc))
		}
		if seen[svc] {
			continue
		}
		seen[svc] = true

		price := in.ServicePrices[svc]
		if price <= 0 {
			return nil, domain.Invalid("servicePrices", fmt.Sprintf("price for %s must be greater than zero", svc))
		}
		if price > models.MaxServicePrice {
			return nil, domain.Invalid("servicePrices", fmt.Sprintf("price for %s must not exceed %d", svc, models.MaxServicePrice))
		}
		out.Services = append(out.Services, svc)
		out.ServicePrices[svc] = price
	}

	for _, p := range out.ServicePrices {
		if out.MinPrice == 0 || p < out.MinPrice {
			out.MinPrice = p
		}
	}
	return out, nil
}
