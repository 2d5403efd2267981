package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	syncFolder    string
	syncLogsLimit int
	purgeDays     int
)

// syncCmd represents the sync command group
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger syncs and inspect sync logs",
}

// syncRunCmd syncs one account in the foreground
var syncRunCmd = &cobra.Command{
	Use:   "run <account-id>",
	Short: "Sync an account now",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseIDArg(args[0])

		if !syncService.TryLockAccount(id) {
			fmt.Fprintln(os.Stderr, "Error: sync already running for this account")
			os.Exit(1)
		}
		defer syncService.UnlockAccount(id)

		outcome, err := syncService.SyncAccount(context.Background(), id, syncFolder)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Sync %s: %d fetched, %d created, %d skipped, %d failed, %d attachments skipped\n",
			outcome.Status, outcome.Counts.Fetched, outcome.Counts.Created,
			outcome.Counts.Skipped, outcome.Counts.Failed, outcome.Counts.AttachmentsSkipped)
		if outcome.Error != "" {
			fmt.Printf("Last error: %s\n", outcome.Error)
		}
	},
}

// syncResetCmd clears the delta cursor so the next sync is a full fetch
var syncResetCmd = &cobra.Command{
	Use:   "reset-cursor <account-id>",
	Short: "Force a full fetch on the next sync",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseIDArg(args[0])
		if err := syncService.ResetCursor(id, syncFolder); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Cursor reset")
	},
}

// syncLogsCmd shows recent sync runs
var syncLogsCmd = &cobra.Command{
	Use:   "logs [account-id]",
	Short: "Show recent sync runs",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var accountID uint
		if len(args) == 1 {
			accountID = parseIDArg(args[0])
		}

		logs, err := logService.RecentLogs(accountID, syncLogsLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(logs) == 0 {
			fmt.Println("No sync runs recorded")
			return
		}

		fmt.Printf("%-6s %-8s %-15s %-6s %-8s %-8s %-8s %s\n",
			"ACCT", "TYPE", "FOLDER", "NEW", "SKIPPED", "FAILED", "STATUS", "STARTED")
		for _, l := range logs {
			fmt.Printf("%-6d %-8s %-15s %-6d %-8d %-8d %-8s %s\n",
				l.AccountID, l.SyncType, l.FolderName, l.MessagesCreated,
				l.MessagesSkipped, l.MessagesFailed, l.Status,
				l.StartedAt.Format("2006-01-02 15:04:05"))
		}
	},
}

// syncPurgeLogsCmd deletes sync runs older than the retention window
var syncPurgeLogsCmd = &cobra.Command{
	Use:   "purge-logs",
	Short: "Delete sync runs past the retention window",
	Run: func(cmd *cobra.Command, args []string) {
		days := purgeDays
		if days <= 0 {
			days = cfg.LogRetentionDays
		}
		deleted, err := logService.PurgeOldLogs(time.Duration(days) * 24 * time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d sync runs older than %d days\n", deleted, days)
	},
}

func init() {
	syncRunCmd.Flags().StringVar(&syncFolder, "folder", "", "sync only this folder")
	syncResetCmd.Flags().StringVar(&syncFolder, "folder", "", "reset only this folder's cursor")
	syncLogsCmd.Flags().IntVar(&syncLogsLimit, "limit", 20, "number of runs to show")
	syncPurgeLogsCmd.Flags().IntVar(&purgeDays, "days", 0, "override the configured retention")

	syncCmd.AddCommand(syncRunCmd)
	syncCmd.AddCommand(syncResetCmd)
	syncCmd.AddCommand(syncLogsCmd)
	syncCmd.AddCommand(syncPurgeLogsCmd)
}
