package main

import (
	"log"
	"os"
	"time"

	"github.com/graphmail/core/internal/api"
	"github.com/graphmail/core/internal/cli"
	"github.com/graphmail/core/internal/config"
	"github.com/graphmail/core/internal/database"
	"github.com/graphmail/core/internal/graph"
	"github.com/graphmail/core/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize database
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Check if running CLI command
	if len(os.Args) > 1 {
		cli.Execute(db, cfg)
		return
	}

	// Build services
	encryptionKey := cfg.GetEncryptionKey()
	credentialService := services.NewCredentialService(db, encryptionKey)
	tokenService := services.NewTokenService(db, encryptionKey)
	accountService := services.NewAccountService(db)
	logService := services.NewLogService(db)

	clientCfg := graph.DefaultClientConfig()
	clientCfg.BaseURL = cfg.GraphBaseURL
	clients := services.NewGraphClients(clientCfg, tokenService)
	syncService := services.NewSyncService(db, clients, accountService, logService)
	sendService := services.NewSendService(db, clients, accountService)

	// Start background schedulers
	syncScheduler := services.NewSyncScheduler(syncService, cfg.SyncInterval(), cfg.SyncTickBudget())
	syncScheduler.Start()
	defer syncScheduler.Stop()

	queueScheduler := services.NewQueueScheduler(sendService, cfg.QueueInterval(), cfg.SendBatchLimit)
	queueScheduler.Start()
	defer queueScheduler.Stop()

	tokenScheduler := services.NewTokenScheduler(tokenService, time.Hour)
	tokenScheduler.Start()
	defer tokenScheduler.Stop()

	logRetention := time.Duration(cfg.LogRetentionDays) * 24 * time.Hour
	maintenanceScheduler := services.NewMaintenanceScheduler(logService, tokenService, credentialService, logRetention)
	maintenanceScheduler.Start()
	defer maintenanceScheduler.Stop()

	// Start API server
	router, apiKeyManager, err := api.SetupRouter(cfg, &api.Deps{
		Credentials: credentialService,
		Tokens:      tokenService,
		Accounts:    accountService,
		Sync:        syncService,
		Send:        sendService,
		Logs:        logService,
	})
	if err != nil {
		log.Fatalf("Failed to setup router: %v", err)
	}

	log.Printf("Starting graphmail server on port %s", cfg.APIPort)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Database path: %s", cfg.DatabasePath)
	log.Printf("API Key: %s", apiKeyManager.GetCurrentKey())
	if err := router.Run(":" + cfg.APIPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
