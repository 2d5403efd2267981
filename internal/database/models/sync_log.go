package models

import (
	"time"
)

// SyncType describes how a sync run fetched messages.
type SyncType string

const (
	SyncTypeDelta SyncType = "delta"
	SyncTypeFull  SyncType = "full"
)

// SyncLogStatus is the outcome of a sync run.
type SyncLogStatus string

const (
	SyncLogStatusRunning SyncLogStatus = "running"
	SyncLogStatusSuccess SyncLogStatus = "success"
	SyncLogStatusPartial SyncLogStatus = "partial"
	SyncLogStatusFailed  SyncLogStatus = "failed"
)

// SyncLog is an append-only audit record of one sync run. Records older than
// the retention horizon are purged by the maintenance job, not by the sync
// engine itself.
type SyncLog struct {
	ID                 uint          `gorm:"primaryKey" json:"id"`
	AccountID          uint          `gorm:"index;not null" json:"account_id"`
	FolderName         string        `gorm:"size:100" json:"folder_name"`
	SyncType           SyncType      `gorm:"size:20" json:"sync_type"`
	Status             SyncLogStatus `gorm:"size:20;index" json:"status"`
	StartedAt          time.Time     `gorm:"index" json:"started_at"`
	EndedAt            time.Time     `json:"ended_at"`
	MessagesFetched    int           `json:"messages_fetched"`
	MessagesCreated    int           `json:"messages_created"`
	MessagesSkipped    int           `json:"messages_skipped"`
	MessagesFailed     int           `json:"messages_failed"`
	AttachmentsSkipped int           `json:"attachments_skipped"`
	ErrorMessage       string        `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt          time.Time     `gorm:"index" json:"created_at"`
}
