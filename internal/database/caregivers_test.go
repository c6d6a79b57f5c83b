package database

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"safepaw/internal/domain"
	"safepaw/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaregivers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	profiles := []*models.CaregiverProfile{
		{
			ID: "care-1", Name: "Laura", City: "Medellín",
			Services:      []string{models.ServiceWalk, models.ServiceOvernight},
			ServicePrices: map[string]int64{models.ServiceWalk: 20000, models.ServiceOvernight: 60000},
			MinPrice:      20000, RatingAvg: 4.9, RatingCount: 31, UpdatedAt: baseTime,
		},
		{
			ID: "care-2", Name: "Andrés", City: "medellín",
			Services:      []string{models.ServiceDayCare},
			ServicePrices: map[string]int64{models.ServiceDayCare: 45000},
			MinPrice:      45000, RatingAvg: 4.2, RatingCount: 5, UpdatedAt: baseTime,
		},
		{
			ID: "care-3", Name: "Sofía", City: "Cali",
			Services:      []string{models.ServiceWalk},
			ServicePrices: map[string]int64{models.ServiceWalk: 15000},
			MinPrice:      15000, UpdatedAt: baseTime,
		},
	}
	for _, p := range profiles {
		require.NoError(t, db.SaveCaregiver(ctx, p))
	}

	t.Run("Get", func(t *testing.T) {
		got, err := db.GetCaregiver(ctx, "care-1")
		require.NoError(t, err)
		assert.Equal(t, profiles[0], got)

		_, err = db.GetCaregiver(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListAll", func(t *testing.T) {
		list, err := db.ListCaregivers(ctx, models.CaregiverFilter{})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "care-1", list[0].ID)
		assert.Equal(t, "care-3", list[2].ID)
	})

	t.Run("ByCityIgnoresCase", func(t *testing.T) {
		list, err := db.ListCaregivers(ctx, models.CaregiverFilter{City: "MEDELLín"})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = db.ListCaregivers(ctx, models.CaregiverFilter{City: "cali"})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("ByCityFoldsNonASCII", func(t *testing.T) {
		list, err := db.ListCaregivers(ctx, models.CaregiverFilter{City: " MEDELLÍN "})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Medellín", list[0].City)
		assert.Equal(t, "medellín", list[0].CityKey)
	})

	t.Run("ByService", func(t *testing.T) {
		list, err := db.ListCaregivers(ctx, models.CaregiverFilter{Service: models.ServiceWalk})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = db.ListCaregivers(ctx, models.CaregiverFilter{City: "Cali", Service: models.ServiceDayCare})
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		updated := *profiles[2]
		updated.Bio = "Paseadora con 5 años de experiencia"
		updated.RatingAvg = 5
		require.NoError(t, db.SaveCaregiver(ctx, &updated))

		got, err := db.GetCaregiver(ctx, "care-3")
		require.NoError(t, err)
		assert.Equal(t, updated.Bio, got.Bio)
		assert.Equal(t, 5.0, got.RatingAvg)
	})
}

func TestNewDB_BackfillsCityKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`CREATE TABLE caregivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		city TEXT NOT NULL,
		bio TEXT NOT NULL DEFAULT '',
		services TEXT NOT NULL DEFAULT '[]',
		service_prices TEXT NOT NULL DEFAULT '{}',
		min_price INTEGER NOT NULL DEFAULT 0,
		rating_avg REAL NOT NULL DEFAULT 0,
		rating_count INTEGER NOT NULL DEFAULT 0,
		photo_url TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	_, err = legacy.Exec(`INSERT INTO caregivers (id, name, city, updated_at) VALUES ('care-1', 'Laura', 'MEDELLÍN', 0)`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	logger := zerolog.New(io.Discard)
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	list, err := db.ListCaregivers(context.Background(), models.CaregiverFilter{City: "medellín"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "care-1", list[0].ID)
}
