package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/graphmail/core/internal/database/models"
	"gorm.io/gorm"
)

var (
	// ErrCredentialNotFound indicates the tenant credential was not found
	ErrCredentialNotFound = errors.New("tenant credential not found")
	// ErrCredentialAlreadyExists indicates a credential with this name already exists
	ErrCredentialAlreadyExists = errors.New("tenant credential already exists")
	// ErrCredentialInUse indicates the credential is referenced by accounts
	ErrCredentialInUse = errors.New("tenant credential is referenced by mail accounts, disable it instead")
	// ErrInvalidCredentialData indicates invalid credential data
	ErrInvalidCredentialData = errors.New("invalid credential data")
	// ErrEncryptionFailed indicates secret encryption failed
	ErrEncryptionFailed = errors.New("secret encryption failed")
	// ErrDecryptionFailed indicates secret decryption failed
	ErrDecryptionFailed = errors.New("secret decryption failed")
)

// encryptSecret encrypts a secret using AES-256-GCM
func encryptSecret(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptSecret decrypts a secret using AES-256-GCM
func decryptSecret(key []byte, encrypted string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrDecryptionFailed
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// splitScopes splits the newline separated scope set of a credential.
func splitScopes(scopes string) []string {
	parts := strings.Split(scopes, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CredentialService handles tenant credential configuration. Token cache
// fields are owned by TokenService; this service only touches configuration.
type CredentialService struct {
	db            *gorm.DB
	encryptionKey []byte // 32 bytes for AES-256
}

// NewCredentialService creates a new CredentialService instance
func NewCredentialService(db *gorm.DB, encryptionKey []byte) *CredentialService {
	key := make([]byte, 32)
	copy(key, encryptionKey)
	return &CredentialService{
		db:            db,
		encryptionKey: key,
	}
}

// CreateCredentialInput represents the input for creating a tenant credential
type CreateCredentialInput struct {
	Name         string
	TenantID     string
	TenantName   string
	ClientID     string
	ClientSecret string
	AuthorityURL string
	Scopes       string
}

// CreateCredential creates a new tenant credential
func (s *CredentialService) CreateCredential(input CreateCredentialInput) (*models.TenantCredential, error) {
	if input.Name == "" || input.TenantID == "" || input.ClientID == "" ||
		input.ClientSecret == "" || input.AuthorityURL == "" {
		return nil, ErrInvalidCredentialData
	}

	var existing models.TenantCredential
	if err := s.db.Where("name = ?", input.Name).First(&existing).Error; err == nil {
		return nil, ErrCredentialAlreadyExists
	}

	encrypted, err := encryptSecret(s.encryptionKey, input.ClientSecret)
	if err != nil {
		return nil, err
	}

	scopes := input.Scopes
	if scopes == "" {
		scopes = "https://graph.microsoft.com/.default"
	}

	credential := &models.TenantCredential{
		Name:                  input.Name,
		TenantID:              input.TenantID,
		TenantName:            input.TenantName,
		ClientID:              input.ClientID,
		ClientSecretEncrypted: encrypted,
		AuthorityURL:          strings.TrimSuffix(input.AuthorityURL, "/"),
		Scopes:                scopes,
		Enabled:               true,
	}

	if err := s.db.Create(credential).Error; err != nil {
		return nil, err
	}

	return credential, nil
}

// GetCredentialByID retrieves a tenant credential by ID
func (s *CredentialService) GetCredentialByID(id uint) (*models.TenantCredential, error) {
	var credential models.TenantCredential
	if err := s.db.First(&credential, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &credential, nil
}

// GetCredentialByName retrieves a tenant credential by its unique name
func (s *CredentialService) GetCredentialByName(name string) (*models.TenantCredential, error) {
	var credential models.TenantCredential
	if err := s.db.Where("name = ?", name).First(&credential).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &credential, nil
}

// ListCredentials retrieves all tenant credentials
func (s *CredentialService) ListCredentials() ([]models.TenantCredential, error) {
	var credentials []models.TenantCredential
	if err := s.db.Find(&credentials).Error; err != nil {
		return nil, err
	}
	return credentials, nil
}

// ListEnabledCredentials retrieves all enabled tenant credentials
func (s *CredentialService) ListEnabledCredentials() ([]models.TenantCredential, error) {
	var credentials []models.TenantCredential
	if err := s.db.Where("enabled = ?", true).Find(&credentials).Error; err != nil {
		return nil, err
	}
	return credentials, nil
}

// UpdateCredentialInput represents the input for updating a tenant credential
type UpdateCredentialInput struct {
	TenantName   string
	ClientID     string
	ClientSecret string // Optional: only update if not empty
	AuthorityURL string
	Scopes       string
}

// UpdateCredential updates a tenant credential's configuration. Changing the
// secret or authority invalidates the cached token.
func (s *CredentialService) UpdateCredential(id uint, input UpdateCredentialInput) (*models.TenantCredential, error) {
	credential, err := s.GetCredentialByID(id)
	if err != nil {
		return nil, err
	}

	invalidateCache := false

	if input.TenantName != "" {
		credential.TenantName = input.TenantName
	}
	if input.ClientID != "" && input.ClientID != credential.ClientID {
		credential.ClientID = input.ClientID
		invalidateCache = true
	}
	if input.AuthorityURL != "" {
		trimmed := strings.TrimSuffix(input.AuthorityURL, "/")
		if trimmed != credential.AuthorityURL {
			credential.AuthorityURL = trimmed
			invalidateCache = true
		}
	}
	if input.Scopes != "" && input.Scopes != credential.Scopes {
		credential.Scopes = input.Scopes
		invalidateCache = true
	}
	if input.ClientSecret != "" {
		encrypted, err := encryptSecret(s.encryptionKey, input.ClientSecret)
		if err != nil {
			return nil, err
		}
		credential.ClientSecretEncrypted = encrypted
		invalidateCache = true
	}

	if invalidateCache {
		credential.TokenCacheEncrypted = ""
		credential.TokenExpiresAt = time.Time{}
	}

	if err := s.db.Save(credential).Error; err != nil {
		return nil, err
	}

	return credential, nil
}

// SetCredentialEnabled sets the enabled status of a credential. Re-enabling
// clears the disabled reason left by an authentication failure.
func (s *CredentialService) SetCredentialEnabled(id uint, enabled bool, reason string) (*models.TenantCredential, error) {
	credential, err := s.GetCredentialByID(id)
	if err != nil {
		return nil, err
	}

	credential.Enabled = enabled
	if enabled {
		credential.DisabledReason = ""
	} else {
		credential.DisabledReason = reason
	}

	if err := s.db.Save(credential).Error; err != nil {
		return nil, err
	}

	return credential, nil
}

// DeleteCredential deletes a credential that is not referenced by any
// account. Credentials in use are disabled, never deleted.
func (s *CredentialService) DeleteCredential(id uint) error {
	credential, err := s.GetCredentialByID(id)
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.Model(&models.MailAccount{}).Where("credential_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrCredentialInUse
	}

	return s.db.Delete(credential).Error
}
