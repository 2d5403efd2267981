package models

import (
	"time"
)

// AccountKind distinguishes personal mailboxes from shared mailboxes.
// Shared mailboxes have no direct sign-in and are administratively owned.
type AccountKind string

const (
	AccountKindUser   AccountKind = "user"
	AccountKindShared AccountKind = "shared"
)

// IsValid checks if the account kind is valid
func (k AccountKind) IsValid() bool {
	return k == AccountKindUser || k == AccountKindShared
}

// Sync status values recorded on a MailAccount after each run.
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
)

// MailAccount represents one synchronized mailbox. Status fields are written
// by the sync engine; configuration fields by the owner or an administrator.
// Bool columns carry no gorm default tag: a default tag makes gorm omit
// false values from the INSERT, storing the default instead.
type MailAccount struct {
	ID                      uint        `gorm:"primaryKey" json:"id"`
	EmailAddress            string      `gorm:"size:255;not null;index" json:"email_address"`
	DisplayName             string      `gorm:"size:100" json:"display_name"`
	AccountKind             AccountKind `gorm:"size:20;default:'user'" json:"account_kind"`
	OwnerUserID             string      `gorm:"size:255;not null" json:"owner_user_id"`
	CredentialID            uint        `gorm:"index;not null" json:"credential_id"`
	Enabled                 bool        `gorm:"not null" json:"enabled"`
	SyncStartDate           time.Time   `json:"sync_start_date"`
	SyncAttachments         bool        `gorm:"not null" json:"sync_attachments"`
	MaxAttachmentSizeMB     int         `gorm:"default:10" json:"max_attachment_size_mb"`
	UseForSending           bool        `gorm:"not null" json:"use_for_sending"`
	AlwaysUseAccountAddress bool        `gorm:"not null" json:"always_use_account_address"`
	Footer                  string      `gorm:"type:text" json:"footer"`
	LastSyncAt              time.Time   `json:"last_sync_at"`
	LastSyncStatus          string      `gorm:"size:20" json:"last_sync_status"`
	LastSyncError           string      `gorm:"type:text" json:"last_sync_error,omitempty"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`

	// Relations
	Credential    *TenantCredential `gorm:"foreignKey:CredentialID" json:"credential,omitempty"`
	FolderFilters []FolderFilter    `gorm:"foreignKey:AccountID" json:"folder_filters,omitempty"`
}

// MaxAttachmentSizeBytes returns the attachment size cap in bytes.
func (a *MailAccount) MaxAttachmentSizeBytes() int64 {
	size := a.MaxAttachmentSizeMB
	if size <= 0 {
		size = 10
	}
	return int64(size) * 1024 * 1024
}

// FolderFilter marks a remote folder as sync-enabled or not for one account.
type FolderFilter struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AccountID   uint      `gorm:"index;not null" json:"account_id"`
	FolderName  string    `gorm:"size:100;not null" json:"folder_name"`
	SyncEnabled bool      `gorm:"not null" json:"sync_enabled"`
	LastSyncAt  time.Time `json:"last_sync_at"`
}
