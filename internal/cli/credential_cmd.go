package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/graphmail/core/internal/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	credName      string
	credTenantID  string
	credTenant    string
	credClientID  string
	credAuthority string
	credScopes    string
)

// credentialCmd represents the credential command group
var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage tenant credentials",
}

// credentialAddCmd registers a new tenant credential. The client secret is
// read from a hidden prompt, never from a flag, so it stays out of the
// shell history.
var credentialAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new tenant credential",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print("Client secret: ")
		secretBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read secret: %v\n", err)
			os.Exit(1)
		}

		credential, err := credentialService.CreateCredential(services.CreateCredentialInput{
			Name:         credName,
			TenantID:     credTenantID,
			TenantName:   credTenant,
			ClientID:     credClientID,
			ClientSecret: string(secretBytes),
			AuthorityURL: credAuthority,
			Scopes:       credScopes,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Credential %q created with ID %d\n", credential.Name, credential.ID)
	},
}

// credentialListCmd lists all tenant credentials
var credentialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenant credentials",
	Run: func(cmd *cobra.Command, args []string) {
		credentials, err := credentialService.ListCredentials()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(credentials) == 0 {
			fmt.Println("No credentials configured")
			return
		}

		fmt.Printf("%-4s %-20s %-38s %-8s %s\n", "ID", "NAME", "TENANT", "ENABLED", "REASON")
		for _, c := range credentials {
			fmt.Printf("%-4d %-20s %-38s %-8t %s\n", c.ID, c.Name, c.TenantID, c.Enabled, c.DisabledReason)
		}
	},
}

// credentialTestCmd validates a credential by forcing a token exchange
var credentialTestCmd = &cobra.Command{
	Use:   "test <id>",
	Short: "Validate a credential by acquiring a token",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseIDArg(args[0])
		result := tokenService.TestConnection(context.Background(), id)
		if !result.Success {
			fmt.Fprintf(os.Stderr, "Validation failed: %s\n", result.Message)
			os.Exit(1)
		}
		fmt.Printf("Token acquired, expires at %s\n", result.TokenExpiresAt.Format("2006-01-02 15:04:05"))
	},
}

// credentialEnableCmd re-enables a disabled credential
var credentialEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Re-enable a disabled credential",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseIDArg(args[0])
		if _, err := credentialService.SetCredentialEnabled(id, true, ""); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Credential enabled")
	},
}

// credentialDisableCmd disables a credential
var credentialDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a credential",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseIDArg(args[0])
		if _, err := credentialService.SetCredentialEnabled(id, false, "disabled by operator"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Credential disabled")
	},
}

// parseIDArg parses a numeric ID argument, exiting on bad input
func parseIDArg(raw string) uint {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid id %q\n", raw)
		os.Exit(1)
	}
	return uint(id)
}

func init() {
	credentialAddCmd.Flags().StringVar(&credName, "name", "", "unique credential name (required)")
	credentialAddCmd.Flags().StringVar(&credTenantID, "tenant-id", "", "directory tenant ID (required)")
	credentialAddCmd.Flags().StringVar(&credTenant, "tenant-name", "", "display name for the tenant")
	credentialAddCmd.Flags().StringVar(&credClientID, "client-id", "", "application client ID (required)")
	credentialAddCmd.Flags().StringVar(&credAuthority, "authority", "", "authority URL, e.g. https://login.microsoftonline.com/<tenant> (required)")
	credentialAddCmd.Flags().StringVar(&credScopes, "scopes", "", "newline separated scopes, defaults to .default")
	credentialAddCmd.MarkFlagRequired("name")
	credentialAddCmd.MarkFlagRequired("tenant-id")
	credentialAddCmd.MarkFlagRequired("client-id")
	credentialAddCmd.MarkFlagRequired("authority")

	credentialCmd.AddCommand(credentialAddCmd)
	credentialCmd.AddCommand(credentialListCmd)
	credentialCmd.AddCommand(credentialTestCmd)
	credentialCmd.AddCommand(credentialEnableCmd)
	credentialCmd.AddCommand(credentialDisableCmd)
}
