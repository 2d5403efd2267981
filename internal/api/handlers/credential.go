package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graphmail/core/internal/database/models"
	"github.com/graphmail/core/internal/services"
)

// CredentialHandler handles tenant credential related requests
type CredentialHandler struct {
	credentialService *services.CredentialService
	tokenService      *services.TokenService
}

// NewCredentialHandler creates a new CredentialHandler instance
func NewCredentialHandler(credentialService *services.CredentialService, tokenService *services.TokenService) *CredentialHandler {
	return &CredentialHandler{
		credentialService: credentialService,
		tokenService:      tokenService,
	}
}

// CreateCredentialRequest represents the request to create a tenant credential
type CreateCredentialRequest struct {
	Name         string `json:"name" binding:"required"`
	TenantID     string `json:"tenant_id" binding:"required"`
	TenantName   string `json:"tenant_name"`
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
	AuthorityURL string `json:"authority_url" binding:"required"`
	Scopes       string `json:"scopes"`
}

// UpdateCredentialRequest represents the request to update a tenant credential
type UpdateCredentialRequest struct {
	TenantName   string `json:"tenant_name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AuthorityURL string `json:"authority_url"`
	Scopes       string `json:"scopes"`
}

// CredentialResponse represents the response for a tenant credential.
// Secret and token cache never leave the server.
type CredentialResponse struct {
	ID               uint   `json:"id"`
	Name             string `json:"name"`
	TenantID         string `json:"tenant_id"`
	TenantName       string `json:"tenant_name"`
	ClientID         string `json:"client_id"`
	AuthorityURL     string `json:"authority_url"`
	Scopes           string `json:"scopes"`
	Enabled          bool   `json:"enabled"`
	DisabledReason   string `json:"disabled_reason,omitempty"`
	TokenExpiresAt   int64  `json:"token_expires_at"`
	LastTokenRefresh int64  `json:"last_token_refresh"`
	CreatedAt        int64  `json:"created_at"`
}

// toCredentialResponse converts a TenantCredential model to CredentialResponse
func toCredentialResponse(credential *models.TenantCredential) CredentialResponse {
	return CredentialResponse{
		ID:               credential.ID,
		Name:             credential.Name,
		TenantID:         credential.TenantID,
		TenantName:       credential.TenantName,
		ClientID:         credential.ClientID,
		AuthorityURL:     credential.AuthorityURL,
		Scopes:           credential.Scopes,
		Enabled:          credential.Enabled,
		DisabledReason:   credential.DisabledReason,
		TokenExpiresAt:   unixOrZero(credential.TokenExpiresAt),
		LastTokenRefresh: unixOrZero(credential.LastTokenRefresh),
		CreatedAt:        credential.CreatedAt.Unix(),
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// CreateCredential handles POST /credentials
func (h *CredentialHandler) CreateCredential(c *gin.Context) {
	var req CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	credential, err := h.credentialService.CreateCredential(services.CreateCredentialInput{
		Name:         req.Name,
		TenantID:     req.TenantID,
		TenantName:   req.TenantName,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		AuthorityURL: req.AuthorityURL,
		Scopes:       req.Scopes,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrCredentialAlreadyExists):
			status = http.StatusConflict
		case errors.Is(err, services.ErrInvalidCredentialData):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toCredentialResponse(credential))
}

// ListCredentials handles GET /credentials
func (h *CredentialHandler) ListCredentials(c *gin.Context) {
	credentials, err := h.credentialService.ListCredentials()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	responses := make([]CredentialResponse, 0, len(credentials))
	for i := range credentials {
		responses = append(responses, toCredentialResponse(&credentials[i]))
	}

	c.JSON(http.StatusOK, gin.H{"credentials": responses})
}

// GetCredential handles GET /credentials/:id
func (h *CredentialHandler) GetCredential(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	credential, err := h.credentialService.GetCredentialByID(id)
	if err != nil {
		if errors.Is(err, services.ErrCredentialNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toCredentialResponse(credential))
}

// UpdateCredential handles PUT /credentials/:id
func (h *CredentialHandler) UpdateCredential(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	credential, err := h.credentialService.UpdateCredential(id, services.UpdateCredentialInput{
		TenantName:   req.TenantName,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		AuthorityURL: req.AuthorityURL,
		Scopes:       req.Scopes,
	})
	if err != nil {
		if errors.Is(err, services.ErrCredentialNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toCredentialResponse(credential))
}

// SetEnabledRequest toggles the enabled status of a credential or account
type SetEnabledRequest struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`
}

// SetCredentialEnabled handles PUT /credentials/:id/enabled
func (h *CredentialHandler) SetCredentialEnabled(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	credential, err := h.credentialService.SetCredentialEnabled(id, req.Enabled, req.Reason)
	if err != nil {
		if errors.Is(err, services.ErrCredentialNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toCredentialResponse(credential))
}

// DeleteCredential handles DELETE /credentials/:id
func (h *CredentialHandler) DeleteCredential(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.credentialService.DeleteCredential(id); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrCredentialNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrCredentialInUse):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "credential deleted"})
}

// TestCredential handles POST /credentials/:id/test
func (h *CredentialHandler) TestCredential(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	result := h.tokenService.TestConnection(c.Request.Context(), id)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

// parseIDParam parses the :id path parameter, writing the error response
// itself when the value is not a positive integer.
func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
