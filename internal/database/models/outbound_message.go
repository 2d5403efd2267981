package models

import (
	"time"
)

// OutboundStatus is the delivery status of a queue entry. Transitions are
// pending -> sending -> sent | error. Error is terminal: an operator must
// reset an entry to pending to retry, there is no automatic fallback.
type OutboundStatus string

const (
	OutboundStatusPending OutboundStatus = "pending"
	OutboundStatusSending OutboundStatus = "sending"
	OutboundStatusSent    OutboundStatus = "sent"
	OutboundStatusError   OutboundStatus = "error"
)

// OutboundMessage is one entry of the host's outbound send queue. The host
// assigns the ID and persists the raw MIME payload; this core only owns the
// routing flag, the chosen account and the status transitions.
type OutboundMessage struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Status       OutboundStatus `gorm:"size:20;index;default:'pending'" json:"status"`
	GraphSend    bool           `gorm:"index;default:false" json:"graph_send"`
	AccountID    uint           `gorm:"index" json:"account_id"`
	Sender       string         `gorm:"size:255" json:"sender"`
	Recipients   string         `gorm:"type:text" json:"recipients"` // JSON array stored as string
	CcRecipients string         `gorm:"type:text" json:"cc_recipients"`
	RawMessage   []byte         `gorm:"type:blob" json:"-"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	SentAt       time.Time      `json:"sent_at"`
}
