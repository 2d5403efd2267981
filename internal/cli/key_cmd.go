package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// keyCmd represents the key command group
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the admin API key",
}

// keyShowCmd shows the current API key
var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current API key",
	Run: func(cmd *cobra.Command, args []string) {
		key := apiKeyManager.GetCurrentKey()
		if key == "" {
			fmt.Fprintln(os.Stderr, "Error: no API key available")
			os.Exit(1)
		}
		fmt.Println(key)
	},
}

// keyResetCmd generates a new API key
var keyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Generate a new API key, invalidating the old one",
	Run: func(cmd *cobra.Command, args []string) {
		key, err := apiKeyManager.ResetKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to reset API key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("API key reset. New key:")
		fmt.Println(key)
	},
}

func init() {
	keyCmd.AddCommand(keyShowCmd)
	keyCmd.AddCommand(keyResetCmd)
}
