package models

import (
	"time"
)

// SyncedMessage is one ingested remote message. (AccountID, RemoteID) is
// unique: re-delivery of the same remote identifier is a no-op, never a
// duplicate insert. Ownership is always the account's owner, not the sender.
type SyncedMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AccountID      uint      `gorm:"uniqueIndex:idx_message_account_remote;not null" json:"account_id"`
	RemoteID       string    `gorm:"uniqueIndex:idx_message_account_remote;size:255;not null" json:"remote_id"`
	FolderName     string    `gorm:"size:100;index" json:"folder_name"`
	Subject        string    `gorm:"size:500" json:"subject"`
	FromAddr       string    `gorm:"size:255" json:"from"`
	FromName       string    `gorm:"size:255" json:"from_name"`
	ToAddrs        string    `gorm:"type:text" json:"to"` // JSON array stored as string
	CcAddrs        string    `gorm:"type:text" json:"cc"` // JSON array stored as string
	Body           string    `gorm:"type:text" json:"body"`
	BodyType       string    `gorm:"size:20" json:"body_type"` // html or text
	ReceivedAt     time.Time `gorm:"index" json:"received_at"`
	SentAt         time.Time `json:"sent_at"`
	IsRead         bool      `gorm:"default:false" json:"is_read"`
	HasAttachments bool      `gorm:"default:false" json:"has_attachments"`
	OwnerUserID    string    `gorm:"size:255;index" json:"owner_user_id"`
	CreatedAt      time.Time `json:"created_at"`

	// Relations
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

// MessageAttachment stores one persisted attachment of a synced message.
// Attachments above the account's size cap are never stored, only logged.
type MessageAttachment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   uint      `gorm:"index;not null" json:"message_id"`
	RemoteID    string    `gorm:"size:255" json:"remote_id"`
	Filename    string    `gorm:"size:255;not null" json:"filename"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	Size        int64     `json:"size"`
	Content     []byte    `gorm:"type:blob" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
