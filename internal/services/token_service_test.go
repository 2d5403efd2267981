package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/graphmail/core/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTokenEndpoint returns a fake identity provider that counts exchanges.
func newTokenEndpoint(t *testing.T, requests *int32, fail func() (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/v2.0/token" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(requests, 1)
		if fail != nil {
			if status, body := fail(); status != 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				w.Write([]byte(body))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
	}))
}

func createCredentialWithAuthority(t *testing.T, db *gorm.DB, authority string) *models.TenantCredential {
	service := NewCredentialService(db, testEncryptionKey)
	credential, err := service.CreateCredential(CreateCredentialInput{
		Name:         "token-test",
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		AuthorityURL: authority,
	})
	require.NoError(t, err)
	return credential
}

func TestGetTokenCachesUntilExpiry(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var requests int32
	srv := newTokenEndpoint(t, &requests, nil)
	defer srv.Close()

	credential := createCredentialWithAuthority(t, db, srv.URL)
	service := NewTokenService(db, testEncryptionKey)

	token1, err := service.GetToken(context.Background(), credential.ID)
	require.NoError(t, err)
	assert.Equal(t, "test-token", token1)

	// Second call is served from the encrypted cache
	token2, err := service.GetToken(context.Background(), credential.ID)
	require.NoError(t, err)
	assert.Equal(t, token1, token2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))

	// Forced refresh bypasses the cache
	_, err = service.Refresh(context.Background(), credential.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestGetTokenCacheSurvivesRestart(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var requests int32
	srv := newTokenEndpoint(t, &requests, nil)
	defer srv.Close()

	credential := createCredentialWithAuthority(t, db, srv.URL)

	first := NewTokenService(db, testEncryptionKey)
	_, err := first.GetToken(context.Background(), credential.ID)
	require.NoError(t, err)

	// A fresh service instance over the same database reads the persisted cache
	second := NewTokenService(db, testEncryptionKey)
	token, err := second.GetToken(context.Background(), credential.ID)
	require.NoError(t, err)
	assert.Equal(t, "test-token", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestAuthFailureDisablesCredential(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var requests int32
	srv := newTokenEndpoint(t, &requests, func() (int, string) {
		return http.StatusUnauthorized, `{"error":"invalid_client","error_description":"bad secret"}`
	})
	defer srv.Close()

	credential := createCredentialWithAuthority(t, db, srv.URL)
	service := NewTokenService(db, testEncryptionKey)

	_, err := service.GetToken(context.Background(), credential.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthFailed), "expected ErrAuthFailed, got %v", err)

	var reloaded models.TenantCredential
	require.NoError(t, db.First(&reloaded, credential.ID).Error)
	assert.False(t, reloaded.Enabled, "credential should be disabled after an auth failure")
	assert.NotEmpty(t, reloaded.DisabledReason)

	// Subsequent requests fail fast without touching the provider
	before := atomic.LoadInt32(&requests)
	_, err = service.GetToken(context.Background(), credential.ID)
	assert.True(t, errors.Is(err, ErrCredentialDisabled), "expected ErrCredentialDisabled, got %v", err)
	assert.Equal(t, before, atomic.LoadInt32(&requests))
}

func TestTransientTokenFailureKeepsCredentialEnabled(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var requests int32
	srv := newTokenEndpoint(t, &requests, func() (int, string) {
		return http.StatusServiceUnavailable, `{"error":"temporarily_unavailable"}`
	})
	defer srv.Close()

	credential := createCredentialWithAuthority(t, db, srv.URL)
	service := NewTokenService(db, testEncryptionKey)

	_, err := service.GetToken(context.Background(), credential.ID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAuthFailed))

	var reloaded models.TenantCredential
	require.NoError(t, db.First(&reloaded, credential.ID).Error)
	assert.True(t, reloaded.Enabled, "transient failures must not disable the credential")
}

func TestTokenSourceForInvalidatesThroughRefresh(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var requests int32
	srv := newTokenEndpoint(t, &requests, nil)
	defer srv.Close()

	credential := createCredentialWithAuthority(t, db, srv.URL)
	service := NewTokenService(db, testEncryptionKey)

	source := service.TokenSourceFor(credential.ID)
	_, err := source.Token(context.Background())
	require.NoError(t, err)
	_, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))

	_, err = source.InvalidateToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}
