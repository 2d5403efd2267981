package models

import (
	"time"
)

// FolderCursor tracks the delta continuation token for one (account, folder)
// pair. An empty DeltaLink forces a full fetch on the next sync. The value is
// always one returned by the remote API for this exact pair, never fabricated,
// and is only overwritten after its page's messages are durably persisted.
type FolderCursor struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  uint      `gorm:"uniqueIndex:idx_cursor_account_folder;not null" json:"account_id"`
	FolderName string    `gorm:"uniqueIndex:idx_cursor_account_folder;size:100;not null" json:"folder_name"`
	DeltaLink  string    `gorm:"type:text" json:"delta_link"`
	LastSyncAt time.Time `json:"last_sync_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
