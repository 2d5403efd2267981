package models

import (
	"strings"
	"time"
)

// TenantCredential holds the OAuth client-credentials configuration for one
// identity tenant, together with the encrypted cached access token for that
// tenant. The cache fields are only written by the token service; the
// configuration fields are only written by an administrator.
type TenantCredential struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Name                  string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	TenantID              string    `gorm:"size:100;not null" json:"tenant_id"`
	TenantName            string    `gorm:"size:100" json:"tenant_name"`
	ClientID              string    `gorm:"size:100;not null" json:"client_id"`
	ClientSecretEncrypted string    `gorm:"size:500;not null" json:"-"`
	AuthorityURL          string    `gorm:"size:255;not null" json:"authority_url"`
	Scopes                string    `gorm:"type:text" json:"scopes"` // newline separated
	Enabled               bool      `gorm:"not null" json:"enabled"`
	DisabledReason        string    `gorm:"size:500" json:"disabled_reason,omitempty"`
	TokenCacheEncrypted   string    `gorm:"type:text" json:"-"`
	TokenExpiresAt        time.Time `json:"token_expires_at"`
	LastTokenRefresh      time.Time `json:"last_token_refresh"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`

	// Relations
	Accounts []MailAccount `gorm:"foreignKey:CredentialID" json:"accounts,omitempty"`
}

// TokenURL returns the token endpoint under the credential's authority.
func (c *TenantCredential) TokenURL() string {
	return strings.TrimSuffix(c.AuthorityURL, "/") + "/oauth2/v2.0/token"
}
