package firestore

import (
	"context"
	"errors"
	"sort"

	"safepaw/internal/models"

	"google.golang.org/api/iterator"
)

func (s *Store) GetCaregiver(ctx context.Context, id string) (*models.CaregiverProfile, error) {
	snap, err := s.client.Collection(caregiversCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError("get caregiver", err)
	}
	var p models.CaregiverProfile
	if err := snap.DataTo(&p); err != nil {
		return nil, mapError("decode caregiver", err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

// ListCaregivers filters on city key equality and service membership, best rated first.
func (s *Store) ListCaregivers(ctx context.Context, filter models.CaregiverFilter) ([]*models.CaregiverProfile, error) {
	query := s.client.Collection(caregiversCollection).Query
	if filter.City != "" {
		query = query.Where("cityKey", "==", models.CityKey(filter.City))
	}
	if filter.Service != "" {
		query = query.Where("services", "array-contains", filter.Service)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	out := []*models.CaregiverProfile{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError("list caregivers", err)
		}
		var p models.CaregiverProfile
		if err := snap.DataTo(&p); err != nil {
			s.logger.Warn().Err(err).Str("caregiver_id", snap.Ref.ID).Msg("skipping undecodable caregiver")
			continue
		}
		p.ID = snap.Ref.ID
		out = append(out, &p)
	}

	// ordered in memory so the query needs no composite index
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RatingAvg != out[j].RatingAvg {
			return out[i].RatingAvg > out[j].RatingAvg
		}
		if out[i].RatingCount != out[j].RatingCount {
			return out[i].RatingCount > out[j].RatingCount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// SaveCaregiver writes the profile and fills in its CityKey.
func (s *Store) SaveCaregiver(ctx context.Context, p *models.CaregiverProfile) error {
	p.CityKey = models.CityKey(p.City)
	_, err := s.client.Collection(caregiversCollection).Doc(p.ID).Set(ctx, p)
	return mapError("save caregiver", err)
}
