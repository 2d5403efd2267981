package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/graphmail/core/internal/database/models"
	"github.com/graphmail/core/internal/services"
	"github.com/spf13/cobra"
)

var (
	acctEmail         string
	acctDisplayName   string
	acctKind          string
	acctOwner         string
	acctCredentialID  uint
	acctSyncStart     string
	acctNoAttachments bool
	acctMaxAttachMB   int
	acctUseForSending bool
)

// accountCmd represents the account command group
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage synced mail accounts",
}

// accountAddCmd registers a mailbox for syncing
var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a mailbox for syncing",
	Run: func(cmd *cobra.Command, args []string) {
		input := services.CreateAccountInput{
			EmailAddress:        acctEmail,
			DisplayName:         acctDisplayName,
			AccountKind:         models.AccountKind(acctKind),
			OwnerUserID:         acctOwner,
			CredentialID:        acctCredentialID,
			SyncAttachments:     !acctNoAttachments,
			MaxAttachmentSizeMB: acctMaxAttachMB,
			UseForSending:       acctUseForSending,
		}
		if acctSyncStart != "" {
			start, err := time.Parse("2006-01-02", acctSyncStart)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid sync-start %q, expected YYYY-MM-DD\n", acctSyncStart)
				os.Exit(1)
			}
			input.SyncStartDate = start
		}

		account, err := accountService.CreateAccount(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Account %s created with ID %d\n", account.EmailAddress, account.ID)
	},
}

// accountListCmd lists all mail accounts
var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mail accounts",
	Run: func(cmd *cobra.Command, args []string) {
		accounts, err := accountService.ListAccounts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(accounts) == 0 {
			fmt.Println("No accounts configured")
			return
		}

		fmt.Printf("%-4s %-35s %-7s %-8s %-8s %-10s %s\n", "ID", "EMAIL", "KIND", "ENABLED", "SENDING", "STATUS", "LAST SYNC")
		for _, a := range accounts {
			lastSync := "-"
			if !a.LastSyncAt.IsZero() {
				lastSync = a.LastSyncAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-4d %-35s %-7s %-8t %-8t %-10s %s\n",
				a.ID, a.EmailAddress, a.AccountKind, a.Enabled, a.UseForSending, a.LastSyncStatus, lastSync)
		}
	},
}

// accountEnableCmd enables an account
var accountEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseIDArg(args[0])
		if _, err := accountService.SetAccountEnabled(id, true); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Account enabled")
	},
}

// accountDisableCmd disables an account
var accountDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseIDArg(args[0])
		if _, err := accountService.SetAccountEnabled(id, false); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Account disabled")
	},
}

// accountSendingCmd marks or unmarks an account as the outbound sender
var accountSendingCmd = &cobra.Command{
	Use:   "set-sending <id> <true|false>",
	Short: "Mark or unmark an account as the outbound sender",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseIDArg(args[0])
		enable := args[1] == "true"
		if !enable && args[1] != "false" {
			fmt.Fprintf(os.Stderr, "Error: expected true or false, got %q\n", args[1])
			os.Exit(1)
		}
		if _, err := accountService.SetUseForSending(id, enable); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Sending flag updated")
	},
}

func init() {
	accountAddCmd.Flags().StringVar(&acctEmail, "email", "", "mailbox address (required)")
	accountAddCmd.Flags().StringVar(&acctDisplayName, "display-name", "", "display name")
	accountAddCmd.Flags().StringVar(&acctKind, "kind", "user", "account kind: user or shared")
	accountAddCmd.Flags().StringVar(&acctOwner, "owner", "", "owning user ID (required)")
	accountAddCmd.Flags().UintVar(&acctCredentialID, "credential", 0, "tenant credential ID (required)")
	accountAddCmd.Flags().StringVar(&acctSyncStart, "sync-start", "", "only sync mail received on or after this date (YYYY-MM-DD)")
	accountAddCmd.Flags().BoolVar(&acctNoAttachments, "no-attachments", false, "skip attachment downloads")
	accountAddCmd.Flags().IntVar(&acctMaxAttachMB, "max-attachment-mb", 10, "attachment size cap in MB")
	accountAddCmd.Flags().BoolVar(&acctUseForSending, "use-for-sending", false, "route outbound mail through this account")
	accountAddCmd.MarkFlagRequired("email")
	accountAddCmd.MarkFlagRequired("owner")
	accountAddCmd.MarkFlagRequired("credential")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountEnableCmd)
	accountCmd.AddCommand(accountDisableCmd)
	accountCmd.AddCommand(accountSendingCmd)
}
