package cli

import (
	"fmt"
	"os"

	"github.com/graphmail/core/internal/api/middleware"
	"github.com/graphmail/core/internal/config"
	"github.com/graphmail/core/internal/graph"
	"github.com/graphmail/core/internal/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	db                *gorm.DB
	cfg               *config.Config
	apiKeyManager     *middleware.APIKeyManager
	credentialService *services.CredentialService
	tokenService      *services.TokenService
	accountService    *services.AccountService
	logService        *services.LogService
	syncService       *services.SyncService
	sendService       *services.SendService
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "graphmail",
	Short: "Mailbox sync service for Microsoft 365 tenants",
	Long: `graphmail synchronizes Microsoft 365 mailboxes into a local store
and routes outbound mail through the Graph sendMail API.

Available command groups:
  key         - show or reset the admin API key
  credential  - manage tenant credentials
  account     - manage synced mail accounts
  sync        - trigger syncs and inspect sync logs
  queue       - inspect and reprocess the outbound queue

Run without arguments to start the API server and schedulers.`,
}

// Execute runs the CLI with the provided database and config
func Execute(database *gorm.DB, config *config.Config) {
	db = database
	cfg = config

	var err error
	apiKeyManager, err = middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize API key manager: %v\n", err)
		os.Exit(1)
	}

	encryptionKey := cfg.GetEncryptionKey()
	credentialService = services.NewCredentialService(db, encryptionKey)
	tokenService = services.NewTokenService(db, encryptionKey)
	accountService = services.NewAccountService(db)
	logService = services.NewLogService(db)

	clientCfg := graph.DefaultClientConfig()
	clientCfg.BaseURL = cfg.GraphBaseURL
	clients := services.NewGraphClients(clientCfg, tokenService)
	syncService = services.NewSyncService(db, clients, accountService, logService)
	sendService = services.NewSendService(db, clients, accountService)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(credentialCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
}
