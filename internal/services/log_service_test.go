package services

import (
	"testing"
	"time"

	"github.com/graphmail/core/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteRunRecordsCounts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewLogService(db)

	entry, err := service.StartRun(1, "Inbox", models.SyncTypeDelta)
	require.NoError(t, err)
	assert.Equal(t, models.SyncLogStatusRunning, entry.Status)

	counts := SyncCounts{Fetched: 10, Created: 7, Skipped: 2, Failed: 1, AttachmentsSkipped: 3}
	require.NoError(t, service.CompleteRun(entry, models.SyncLogStatusPartial, counts, "one message failed"))

	var reloaded models.SyncLog
	require.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, models.SyncLogStatusPartial, reloaded.Status)
	assert.Equal(t, 10, reloaded.MessagesFetched)
	assert.Equal(t, 7, reloaded.MessagesCreated)
	assert.Equal(t, 2, reloaded.MessagesSkipped)
	assert.Equal(t, 1, reloaded.MessagesFailed)
	assert.Equal(t, 3, reloaded.AttachmentsSkipped)
	assert.False(t, reloaded.EndedAt.IsZero())
}

func TestPurgeOldLogsHonorsRetention(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewLogService(db)

	old := models.SyncLog{AccountID: 1, FolderName: "Inbox", Status: models.SyncLogStatusSuccess}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Model(&old).Update("created_at", time.Now().Add(-40*24*time.Hour)).Error)

	recent := models.SyncLog{AccountID: 1, FolderName: "Inbox", Status: models.SyncLogStatusSuccess}
	require.NoError(t, db.Create(&recent).Error)

	deleted, err := service.PurgeOldLogs(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.SyncLog
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent.ID, remaining[0].ID)
}

func TestRecentLogsNewestFirst(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewLogService(db)

	for i := 0; i < 3; i++ {
		entry := models.SyncLog{
			AccountID: 1,
			Status:    models.SyncLogStatusSuccess,
			StartedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&entry).Error)
	}
	other := models.SyncLog{AccountID: 2, Status: models.SyncLogStatusFailed, StartedAt: time.Now()}
	require.NoError(t, db.Create(&other).Error)

	logs, err := service.RecentLogs(1, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].StartedAt.After(logs[1].StartedAt))
	for _, l := range logs {
		assert.Equal(t, uint(1), l.AccountID)
	}

	all, err := service.RecentLogs(0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
