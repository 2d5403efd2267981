package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/graphmail/core/internal/database/models"
	"github.com/graphmail/core/internal/services"
)

// StatusHandler exposes sync state, audit logs and the outbound queue
type StatusHandler struct {
	syncService *services.SyncService
	sendService *services.SendService
	logService  *services.LogService
}

// NewStatusHandler creates a new StatusHandler instance
func NewStatusHandler(syncService *services.SyncService, sendService *services.SendService, logService *services.LogService) *StatusHandler {
	return &StatusHandler{
		syncService: syncService,
		sendService: sendService,
		logService:  logService,
	}
}

// TriggerSync handles POST /accounts/:id/sync. The sync runs in the
// background; a sync already in flight for the account is reported, not
// queued behind.
func (h *StatusHandler) TriggerSync(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	folder := c.Query("folder")

	if !h.syncService.TryLockAccount(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "sync already running for this account"})
		return
	}

	go func() {
		defer h.syncService.UnlockAccount(id)
		if _, err := h.syncService.SyncAccount(context.Background(), id, folder); err != nil {
			log.Printf("Manual sync failed for account %d: %v", id, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "sync started"})
}

// GetSyncStatus handles GET /accounts/:id/sync
func (h *StatusHandler) GetSyncStatus(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id": id,
		"syncing":    h.syncService.IsAccountSyncing(id),
	})
}

// ResetCursor handles POST /accounts/:id/reset-cursor
func (h *StatusHandler) ResetCursor(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	folder := c.Query("folder")

	if err := h.syncService.ResetCursor(id, folder); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cursor reset, next sync will be a full fetch"})
}

// ListSyncLogs handles GET /logs. Optional account_id and limit query
// parameters narrow the result.
func (h *StatusHandler) ListSyncLogs(c *gin.Context) {
	var accountID uint
	if raw := c.Query("account_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account_id"})
			return
		}
		accountID = uint(parsed)
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.logService.RecentLogs(accountID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// ListQueue handles GET /queue. Optional status and limit query parameters.
func (h *StatusHandler) ListQueue(c *gin.Context) {
	status := models.OutboundStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.sendService.ListEntries(status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ResetQueueEntry handles POST /queue/:id/reset
func (h *StatusHandler) ResetQueueEntry(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.sendService.ResetEntry(id); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrQueueEntryNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrQueueEntryNotResettable):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "entry reset to pending"})
}

// ProcessQueue handles POST /queue/process for an immediate queue pass
func (h *StatusHandler) ProcessQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	result, err := h.sendService.ProcessPending(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
