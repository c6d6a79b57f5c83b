package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"safepaw/internal/config"
	"safepaw/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.Insert(ctx, newBooking("owner-1", "care-1", baseTime))
	require.NoError(t, err)

	storagePath := filepath.Join(t.TempDir(), "backups")
	cfg := config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 1,
	}
	logger := zerolog.Nop()
	s := NewBackupService(db, cfg, &logger)

	var backupPath string
	t.Run("PerformBackup", func(t *testing.T) {
		backupPath, err = s.PerformBackup(ctx)
		require.NoError(t, err)
		assert.FileExists(t, backupPath)

		copyDB, err := NewDB(backupPath, &logger)
		require.NoError(t, err)
		defer copyDB.Close()

		page, err := copyDB.Query(ctx, models.BookingQuery{})
		require.NoError(t, err)
		assert.Len(t, page.Bookings, 1)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		old := time.Now().AddDate(0, 0, -3)
		require.NoError(t, os.Chtimes(backupPath, old, old))

		unrelated := filepath.Join(storagePath, "notes.txt")
		require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))
		require.NoError(t, os.Chtimes(unrelated, old, old))

		assert.Equal(t, 1, s.CleanupOldBackups())
		assert.NoFileExists(t, backupPath)
		assert.FileExists(t, unrelated)
	})

	t.Run("Disabled", func(t *testing.T) {
		disabled := NewBackupService(db, config.BackupConfig{}, &logger)
		done := make(chan struct{})
		go func() {
			disabled.Start(ctx)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("disabled backup service should return immediately")
		}
	})
}
