package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/graphmail/core/internal/database/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"gorm.io/gorm"
)

// tokenSafetyMargin is subtracted from the cached token expiry so a token
// handed out is never within seconds of dying mid-request.
const tokenSafetyMargin = 60 * time.Second

var (
	// ErrCredentialDisabled indicates the credential is disabled and no token can be issued
	ErrCredentialDisabled = errors.New("tenant credential is disabled")
	// ErrAuthFailed indicates the identity provider rejected the credential
	ErrAuthFailed = errors.New("credential authentication failed")
	// ErrTokenUnavailable indicates a transient failure while acquiring a token
	ErrTokenUnavailable = errors.New("token temporarily unavailable")
)

// authErrorCodes are OAuth error codes that mean the credential itself is
// bad (wrong secret, revoked consent, disabled app) rather than a transient
// provider problem.
var authErrorCodes = map[string]bool{
	"invalid_client":         true,
	"unauthorized_client":    true,
	"invalid_grant":          true,
	"invalid_scope":          true,
	"access_denied":          true,
	"invalid_request":        true,
	"unsupported_grant_type": true,
}

// TokenService acquires and caches access tokens for tenant credentials
// using the OAuth2 client credentials flow. Cached tokens are persisted
// encrypted on the credential row so they survive restarts.
type TokenService struct {
	db            *gorm.DB
	encryptionKey []byte
	httpClient    *http.Client

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewTokenService creates a new TokenService instance
func NewTokenService(db *gorm.DB, encryptionKey []byte) *TokenService {
	key := make([]byte, 32)
	copy(key, encryptionKey)
	return &TokenService{
		db:            db,
		encryptionKey: key,
		locks:         make(map[uint]*sync.Mutex),
	}
}

// SetHTTPClient overrides the HTTP client used for token exchanges (tests).
func (s *TokenService) SetHTTPClient(client *http.Client) {
	s.httpClient = client
}

// lockFor returns the per-credential mutex, creating it on first use.
// Concurrent token requests for the same credential serialize on it so a
// cold cache triggers a single network exchange.
func (s *TokenService) lockFor(credentialID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[credentialID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[credentialID] = l
	}
	return l
}

// GetToken returns a valid access token for the credential, serving from
// the encrypted cache when the cached token has more than the safety margin
// of lifetime left, otherwise acquiring a fresh one.
func (s *TokenService) GetToken(ctx context.Context, credentialID uint) (string, error) {
	l := s.lockFor(credentialID)
	l.Lock()
	defer l.Unlock()

	credential, err := s.loadCredential(credentialID)
	if err != nil {
		return "", err
	}

	if credential.TokenCacheEncrypted != "" && time.Now().Add(tokenSafetyMargin).Before(credential.TokenExpiresAt) {
		token, err := decryptSecret(s.encryptionKey, credential.TokenCacheEncrypted)
		if err == nil {
			return token, nil
		}
		// Unreadable cache (rotated encryption key): fall through to a fresh exchange
		log.Printf("Token cache for credential %s unreadable, acquiring fresh token", credential.Name)
	}

	return s.acquire(ctx, credential)
}

// Refresh forces a fresh token exchange for the credential, bypassing the
// cache. Used after an API 401 and by the background refresh scheduler.
func (s *TokenService) Refresh(ctx context.Context, credentialID uint) (string, error) {
	l := s.lockFor(credentialID)
	l.Lock()
	defer l.Unlock()

	credential, err := s.loadCredential(credentialID)
	if err != nil {
		return "", err
	}

	return s.acquire(ctx, credential)
}

func (s *TokenService) loadCredential(credentialID uint) (*models.TenantCredential, error) {
	var credential models.TenantCredential
	if err := s.db.First(&credential, credentialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	if !credential.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrCredentialDisabled, credential.DisabledReason)
	}
	return &credential, nil
}

// acquire performs the client credentials exchange and persists the result.
// Caller must hold the per-credential lock.
func (s *TokenService) acquire(ctx context.Context, credential *models.TenantCredential) (string, error) {
	secret, err := decryptSecret(s.encryptionKey, credential.ClientSecretEncrypted)
	if err != nil {
		return "", err
	}

	conf := &clientcredentials.Config{
		ClientID:     credential.ClientID,
		ClientSecret: secret,
		TokenURL:     credential.TokenURL(),
		Scopes:       splitScopes(credential.Scopes),
	}

	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	token, err := conf.Token(ctx)
	if err != nil {
		if isAuthError(err) {
			reason := fmt.Sprintf("authentication failed: %v", err)
			if dbErr := s.db.Model(credential).Updates(map[string]interface{}{
				"enabled":         false,
				"disabled_reason": reason,
			}).Error; dbErr != nil {
				log.Printf("Failed to disable credential %s: %v", credential.Name, dbErr)
			} else {
				log.Printf("Credential %s disabled: %s", credential.Name, reason)
			}
			return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}

	encrypted, err := encryptSecret(s.encryptionKey, token.AccessToken)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if dbErr := s.db.Model(credential).Updates(map[string]interface{}{
		"token_cache_encrypted": encrypted,
		"token_expires_at":      token.Expiry,
		"last_token_refresh":    now,
	}).Error; dbErr != nil {
		// Token still works for this process even if the cache write failed
		log.Printf("Failed to persist token cache for credential %s: %v", credential.Name, dbErr)
	}

	return token.AccessToken, nil
}

// isAuthError reports whether a token exchange error is a definitive
// rejection of the credential rather than a transient failure.
func isAuthError(err error) bool {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return false // network error, DNS, timeout
	}
	if rErr.ErrorCode != "" {
		return authErrorCodes[rErr.ErrorCode]
	}
	if rErr.Response != nil {
		code := rErr.Response.StatusCode
		return code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden
	}
	return false
}

// ConnectionTestResult reports the outcome of a credential validation.
type ConnectionTestResult struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`
}

// TestConnection validates a credential by forcing a token exchange.
func (s *TokenService) TestConnection(ctx context.Context, credentialID uint) *ConnectionTestResult {
	if _, err := s.Refresh(ctx, credentialID); err != nil {
		return &ConnectionTestResult{Success: false, Message: err.Error()}
	}

	var credential models.TenantCredential
	if err := s.db.First(&credential, credentialID).Error; err != nil {
		return &ConnectionTestResult{Success: true, Message: "token acquired"}
	}

	return &ConnectionTestResult{
		Success:        true,
		Message:        "token acquired",
		TokenExpiresAt: credential.TokenExpiresAt,
	}
}

// RefreshAll refreshes tokens for all enabled credentials. Failures are
// logged and do not stop the remaining credentials.
func (s *TokenService) RefreshAll(ctx context.Context) {
	var credentials []models.TenantCredential
	if err := s.db.Where("enabled = ?", true).Find(&credentials).Error; err != nil {
		log.Printf("Token refresh: failed to list credentials: %v", err)
		return
	}

	for _, credential := range credentials {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Refresh(ctx, credential.ID); err != nil {
			log.Printf("Token refresh failed for credential %s: %v", credential.Name, err)
		}
	}
}

// credentialTokenSource adapts TokenService to the graph client's
// TokenSource interface for a fixed credential.
type credentialTokenSource struct {
	tokens       *TokenService
	credentialID uint
}

// TokenSourceFor returns a token source bound to the given credential.
func (s *TokenService) TokenSourceFor(credentialID uint) *credentialTokenSource {
	return &credentialTokenSource{tokens: s, credentialID: credentialID}
}

func (ts *credentialTokenSource) Token(ctx context.Context) (string, error) {
	return ts.tokens.GetToken(ctx, ts.credentialID)
}

func (ts *credentialTokenSource) InvalidateToken(ctx context.Context) (string, error) {
	return ts.tokens.Refresh(ctx, ts.credentialID)
}
