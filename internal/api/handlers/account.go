package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graphmail/core/internal/database/models"
	"github.com/graphmail/core/internal/services"
)

// AccountHandler handles mail account related requests
type AccountHandler struct {
	accountService *services.AccountService
}

// NewAccountHandler creates a new AccountHandler instance
func NewAccountHandler(accountService *services.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// CreateAccountRequest represents the request to create a mail account
type CreateAccountRequest struct {
	EmailAddress            string `json:"email_address" binding:"required,email"`
	DisplayName             string `json:"display_name"`
	AccountKind             string `json:"account_kind"`
	OwnerUserID             string `json:"owner_user_id" binding:"required"`
	CredentialID            uint   `json:"credential_id" binding:"required"`
	SyncStartDate           string `json:"sync_start_date"` // RFC 3339, optional
	SyncAttachments         *bool  `json:"sync_attachments"`
	MaxAttachmentSizeMB     int    `json:"max_attachment_size_mb"`
	UseForSending           bool   `json:"use_for_sending"`
	AlwaysUseAccountAddress bool   `json:"always_use_account_address"`
	Footer                  string `json:"footer"`
}

// UpdateAccountRequest represents the request to update a mail account
type UpdateAccountRequest struct {
	DisplayName             *string `json:"display_name"`
	SyncAttachments         *bool   `json:"sync_attachments"`
	MaxAttachmentSizeMB     *int    `json:"max_attachment_size_mb"`
	AlwaysUseAccountAddress *bool   `json:"always_use_account_address"`
	Footer                  *string `json:"footer"`
}

// FolderFilterResponse represents one folder filter entry
type FolderFilterResponse struct {
	FolderName  string `json:"folder_name"`
	SyncEnabled bool   `json:"sync_enabled"`
	LastSyncAt  int64  `json:"last_sync_at"`
}

// AccountResponse represents the response for a mail account
type AccountResponse struct {
	ID                      uint                   `json:"id"`
	EmailAddress            string                 `json:"email_address"`
	DisplayName             string                 `json:"display_name"`
	AccountKind             string                 `json:"account_kind"`
	OwnerUserID             string                 `json:"owner_user_id"`
	CredentialID            uint                   `json:"credential_id"`
	Enabled                 bool                   `json:"enabled"`
	SyncStartDate           int64                  `json:"sync_start_date"`
	SyncAttachments         bool                   `json:"sync_attachments"`
	MaxAttachmentSizeMB     int                    `json:"max_attachment_size_mb"`
	UseForSending           bool                   `json:"use_for_sending"`
	AlwaysUseAccountAddress bool                   `json:"always_use_account_address"`
	Footer                  string                 `json:"footer"`
	LastSyncAt              int64                  `json:"last_sync_at"`
	LastSyncStatus          string                 `json:"last_sync_status"`
	LastSyncError           string                 `json:"last_sync_error,omitempty"`
	FolderFilters           []FolderFilterResponse `json:"folder_filters"`
	CreatedAt               int64                  `json:"created_at"`
}

// toAccountResponse converts a MailAccount model to AccountResponse
func toAccountResponse(account *models.MailAccount) AccountResponse {
	filters := make([]FolderFilterResponse, 0, len(account.FolderFilters))
	for _, f := range account.FolderFilters {
		filters = append(filters, FolderFilterResponse{
			FolderName:  f.FolderName,
			SyncEnabled: f.SyncEnabled,
			LastSyncAt:  unixOrZero(f.LastSyncAt),
		})
	}

	return AccountResponse{
		ID:                      account.ID,
		EmailAddress:            account.EmailAddress,
		DisplayName:             account.DisplayName,
		AccountKind:             string(account.AccountKind),
		OwnerUserID:             account.OwnerUserID,
		CredentialID:            account.CredentialID,
		Enabled:                 account.Enabled,
		SyncStartDate:           unixOrZero(account.SyncStartDate),
		SyncAttachments:         account.SyncAttachments,
		MaxAttachmentSizeMB:     account.MaxAttachmentSizeMB,
		UseForSending:           account.UseForSending,
		AlwaysUseAccountAddress: account.AlwaysUseAccountAddress,
		Footer:                  account.Footer,
		LastSyncAt:              unixOrZero(account.LastSyncAt),
		LastSyncStatus:          account.LastSyncStatus,
		LastSyncError:           account.LastSyncError,
		FolderFilters:           filters,
		CreatedAt:               account.CreatedAt.Unix(),
	}
}

// CreateAccount handles POST /accounts
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := services.CreateAccountInput{
		EmailAddress:            req.EmailAddress,
		DisplayName:             req.DisplayName,
		AccountKind:             models.AccountKind(req.AccountKind),
		OwnerUserID:             req.OwnerUserID,
		CredentialID:            req.CredentialID,
		MaxAttachmentSizeMB:     req.MaxAttachmentSizeMB,
		UseForSending:           req.UseForSending,
		AlwaysUseAccountAddress: req.AlwaysUseAccountAddress,
		Footer:                  req.Footer,
		SyncAttachments:         true,
	}
	if req.SyncAttachments != nil {
		input.SyncAttachments = *req.SyncAttachments
	}
	if req.SyncStartDate != "" {
		start, err := time.Parse(time.RFC3339, req.SyncStartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sync_start_date, expected RFC 3339"})
			return
		}
		input.SyncStartDate = start
	}

	account, err := h.accountService.CreateAccount(input)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrAccountAlreadyExists), errors.Is(err, services.ErrSendingAccountExists):
			status = http.StatusConflict
		case errors.Is(err, services.ErrInvalidAccountData):
			status = http.StatusBadRequest
		case errors.Is(err, services.ErrCredentialNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrCredentialDisabled):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toAccountResponse(account))
}

// ListAccounts handles GET /accounts
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	responses := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		responses = append(responses, toAccountResponse(&accounts[i]))
	}

	c.JSON(http.StatusOK, gin.H{"accounts": responses})
}

// GetAccount handles GET /accounts/:id
func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccountByID(id)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}

// UpdateAccount handles PUT /accounts/:id
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountService.UpdateAccount(id, services.UpdateAccountInput{
		DisplayName:             req.DisplayName,
		SyncAttachments:         req.SyncAttachments,
		MaxAttachmentSizeMB:     req.MaxAttachmentSizeMB,
		AlwaysUseAccountAddress: req.AlwaysUseAccountAddress,
		Footer:                  req.Footer,
	})
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}

// SetAccountEnabled handles PUT /accounts/:id/enabled
func (h *AccountHandler) SetAccountEnabled(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountService.SetAccountEnabled(id, req.Enabled)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}

// SetSendingRequest toggles the send-eligible flag of an account
type SetSendingRequest struct {
	UseForSending bool `json:"use_for_sending"`
}

// SetUseForSending handles PUT /accounts/:id/sending
func (h *AccountHandler) SetUseForSending(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req SetSendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountService.SetUseForSending(id, req.UseForSending)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrAccountNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrSendingAccountExists):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}

// UpdateFolderFiltersRequest replaces the folder filter set of an account
type UpdateFolderFiltersRequest struct {
	Filters []services.FolderFilterInput `json:"filters" binding:"required"`
}

// UpdateFolderFilters handles PUT /accounts/:id/folders
func (h *AccountHandler) UpdateFolderFilters(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateFolderFiltersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filters, err := h.accountService.UpdateFolderFilters(id, req.Filters)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrAccountNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrInvalidAccountData):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	responses := make([]FolderFilterResponse, 0, len(filters))
	for _, f := range filters {
		responses = append(responses, FolderFilterResponse{
			FolderName:  f.FolderName,
			SyncEnabled: f.SyncEnabled,
			LastSyncAt:  unixOrZero(f.LastSyncAt),
		})
	}

	c.JSON(http.StatusOK, gin.H{"filters": responses})
}

// DeleteAccount handles DELETE /accounts/:id
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.accountService.DeleteAccount(id); err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}
