package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"safepaw/internal/models"
)

const caregiverColumns = `id, name, city, city_key, bio, services, service_prices, min_price,
	rating_avg, rating_count, photo_url, updated_at`

func (db *DB) GetCaregiver(ctx context.Context, id string) (*models.CaregiverProfile, error) {
	row := db.QueryRowContext(ctx, `SELECT `+caregiverColumns+` FROM caregivers WHERE id = ?`, id)
	p, err := scanCaregiver(row)
	if err != nil {
		return nil, storeError("get caregiver", err)
	}
	return p, nil
}

// ListCaregivers returns caregivers best rated first. City matches on its CityKey.
func (db *DB) ListCaregivers(ctx context.Context, filter models.CaregiverFilter) ([]*models.CaregiverProfile, error) {
	query := `SELECT ` + caregiverColumns + ` FROM caregivers`
	var args []interface{}
	if filter.City != "" {
		query += ` WHERE city_key = ?`
		args = append(args, models.CityKey(filter.City))
	}
	query += ` ORDER BY rating_avg DESC, rating_count DESC, name ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list caregivers", err)
	}
	defer rows.Close()

	out := []*models.CaregiverProfile{}
	for rows.Next() {
		p, err := scanCaregiver(rows)
		if err != nil {
			return nil, storeError("scan caregiver", err)
		}
		if filter.Service != "" && !p.Offers(filter.Service) {
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list caregivers", err)
	}
	return out, nil
}

// SaveCaregiver inserts or replaces a profile and fills in its CityKey.
func (db *DB) SaveCaregiver(ctx context.Context, p *models.CaregiverProfile) error {
	p.CityKey = models.CityKey(p.City)
	services, err := json.Marshal(p.Services)
	if err != nil {
		return fmt.Errorf("encode services: %w", err)
	}
	prices, err := json.Marshal(p.ServicePrices)
	if err != nil {
		return fmt.Errorf("encode service prices: %w", err)
	}

	query := `INSERT INTO caregivers (` + caregiverColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			city = excluded.city,
			city_key = excluded.city_key,
			bio = excluded.bio,
			services = excluded.services,
			service_prices = excluded.service_prices,
			min_price = excluded.min_price,
			rating_avg = excluded.rating_avg,
			rating_count = excluded.rating_count,
			photo_url = excluded.photo_url,
			updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query,
		p.ID, strings.TrimSpace(p.Name), strings.TrimSpace(p.City), p.CityKey, p.Bio, string(services), string(prices),
		p.MinPrice, p.RatingAvg, p.RatingCount, p.PhotoURL, toNanos(p.UpdatedAt),
	)
	return storeError("save caregiver", err)
}

func scanCaregiver(s rowScanner) (*models.CaregiverProfile, error) {
	var (
		p                models.CaregiverProfile
		services, prices string
		updatedAt        int64
	)
	err := s.Scan(&p.ID, &p.Name, &p.City, &p.CityKey, &p.Bio, &services, &prices, &p.MinPrice,
		&p.RatingAvg, &p.RatingCount, &p.PhotoURL, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(services), &p.Services); err != nil {
		return nil, fmt.Errorf("decode services of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(prices), &p.ServicePrices); err != nil {
		return nil, fmt.Errorf("decode service prices of %s: %w", p.ID, err)
	}
	p.UpdatedAt = fromNanos(updatedAt)
	return &p, nil
}

// backfillCityKeys fills city_key on rows written before the column existed.
func (db *DB) backfillCityKeys() error {
	rows, err := db.DB.Query(`SELECT id, city FROM caregivers WHERE city_key = ''`)
	if err != nil {
		return err
	}
	keys := map[string]string{}
	for rows.Next() {
		var id, city string
		if err := rows.Scan(&id, &city); err != nil {
			rows.Close()
			return err
		}
		keys[id] = models.CityKey(city)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id, key := range keys {
		if _, err := db.Exec(`UPDATE caregivers SET city_key = ? WHERE id = ?`, key, id); err != nil {
			return err
		}
	}
	return nil
}
