package services

import (
	"time"

	"github.com/graphmail/core/internal/database/models"
	"gorm.io/gorm"
)

// SyncCounts aggregates the per-message outcomes of a sync run.
type SyncCounts struct {
	Fetched            int `json:"fetched"`
	Created            int `json:"created"`
	Skipped            int `json:"skipped"`
	Failed             int `json:"failed"`
	AttachmentsSkipped int `json:"attachments_skipped"`
}

// Add accumulates another set of counts.
func (c *SyncCounts) Add(other SyncCounts) {
	c.Fetched += other.Fetched
	c.Created += other.Created
	c.Skipped += other.Skipped
	c.Failed += other.Failed
	c.AttachmentsSkipped += other.AttachmentsSkipped
}

// LogService handles sync run audit records
type LogService struct {
	db *gorm.DB
}

// NewLogService creates a new LogService instance
func NewLogService(db *gorm.DB) *LogService {
	return &LogService{db: db}
}

// StartRun records the beginning of a sync run for one folder
func (s *LogService) StartRun(accountID uint, folderName string, syncType models.SyncType) (*models.SyncLog, error) {
	entry := &models.SyncLog{
		AccountID:  accountID,
		FolderName: folderName,
		SyncType:   syncType,
		Status:     models.SyncLogStatusRunning,
		StartedAt:  time.Now(),
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// CompleteRun finalizes a sync run record with its outcome and counts
func (s *LogService) CompleteRun(entry *models.SyncLog, status models.SyncLogStatus, counts SyncCounts, errMsg string) error {
	if entry == nil {
		return nil
	}
	entry.Status = status
	entry.EndedAt = time.Now()
	entry.MessagesFetched = counts.Fetched
	entry.MessagesCreated = counts.Created
	entry.MessagesSkipped = counts.Skipped
	entry.MessagesFailed = counts.Failed
	entry.AttachmentsSkipped = counts.AttachmentsSkipped
	entry.ErrorMessage = errMsg
	return s.db.Save(entry).Error
}

// RecordFailure writes a completed failed run in one step, for failures
// that happen before a run could start.
func (s *LogService) RecordFailure(accountID uint, folderName string, syncType models.SyncType, errMsg string) {
	now := time.Now()
	entry := &models.SyncLog{
		AccountID:    accountID,
		FolderName:   folderName,
		SyncType:     syncType,
		Status:       models.SyncLogStatusFailed,
		StartedAt:    now,
		EndedAt:      now,
		ErrorMessage: errMsg,
	}
	s.db.Create(entry)
}

// RecentLogs returns the most recent sync runs for an account, newest first.
// A zero accountID returns runs across all accounts.
func (s *LogService) RecentLogs(accountID uint, limit int) ([]models.SyncLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := s.db.Order("started_at desc").Limit(limit)
	if accountID != 0 {
		query = query.Where("account_id = ?", accountID)
	}
	var logs []models.SyncLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// LastRun returns the most recent completed run for an account and folder.
func (s *LogService) LastRun(accountID uint, folderName string) (*models.SyncLog, error) {
	var entry models.SyncLog
	err := s.db.Where("account_id = ? AND folder_name = ?", accountID, folderName).
		Order("started_at desc").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PurgeOldLogs deletes sync run records older than the retention horizon
// and returns the number of deleted rows.
func (s *LogService) PurgeOldLogs(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.SyncLog{})
	return result.RowsAffected, result.Error
}
