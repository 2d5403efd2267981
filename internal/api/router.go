package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/graphmail/core/internal/api/handlers"
	"github.com/graphmail/core/internal/api/middleware"
	"github.com/graphmail/core/internal/config"
	"github.com/graphmail/core/internal/services"
)

// Deps carries the services the API surfaces.
type Deps struct {
	Credentials *services.CredentialService
	Tokens      *services.TokenService
	Accounts    *services.AccountService
	Sync        *services.SyncService
	Send        *services.SendService
	Logs        *services.LogService
}

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(cfg *config.Config, deps *Deps) (*gin.Engine, *middleware.APIKeyManager, error) {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOriginList(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	apiKeyManager, err := middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	credentialHandler := handlers.NewCredentialHandler(deps.Credentials, deps.Tokens)
	accountHandler := handlers.NewAccountHandler(deps.Accounts)
	statusHandler := handlers.NewStatusHandler(deps.Sync, deps.Send, deps.Logs)

	// Health check endpoint (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API routes, all behind the API key
	apiGroup := router.Group("/api")
	{
		apiGroup.Use(middleware.APIKeyMiddleware(apiKeyManager))

		credentials := apiGroup.Group("/credentials")
		{
			credentials.POST("", credentialHandler.CreateCredential)
			credentials.GET("", credentialHandler.ListCredentials)
			credentials.GET("/:id", credentialHandler.GetCredential)
			credentials.PUT("/:id", credentialHandler.UpdateCredential)
			credentials.PUT("/:id/enabled", credentialHandler.SetCredentialEnabled)
			credentials.DELETE("/:id", credentialHandler.DeleteCredential)
			credentials.POST("/:id/test", credentialHandler.TestCredential)
		}

		accounts := apiGroup.Group("/accounts")
		{
			accounts.POST("", accountHandler.CreateAccount)
			accounts.GET("", accountHandler.ListAccounts)
			accounts.GET("/:id", accountHandler.GetAccount)
			accounts.PUT("/:id", accountHandler.UpdateAccount)
			accounts.PUT("/:id/enabled", accountHandler.SetAccountEnabled)
			accounts.PUT("/:id/sending", accountHandler.SetUseForSending)
			accounts.PUT("/:id/folders", accountHandler.UpdateFolderFilters)
			accounts.DELETE("/:id", accountHandler.DeleteAccount)
			accounts.POST("/:id/sync", statusHandler.TriggerSync)
			accounts.GET("/:id/sync", statusHandler.GetSyncStatus)
			accounts.POST("/:id/reset-cursor", statusHandler.ResetCursor)
		}

		apiGroup.GET("/logs", statusHandler.ListSyncLogs)

		queue := apiGroup.Group("/queue")
		{
			queue.GET("", statusHandler.ListQueue)
			queue.POST("/process", statusHandler.ProcessQueue)
			queue.POST("/:id/reset", statusHandler.ResetQueueEntry)
		}
	}

	return router, apiKeyManager, nil
}
