package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/graphmail/core/internal/database/models"
	"github.com/spf13/cobra"
)

var (
	queueStatus string
	queueLimit  int
)

// queueCmd represents the queue command group
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and reprocess the outbound queue",
}

// queueListCmd lists outbound queue entries
var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outbound queue entries",
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := sendService.ListEntries(models.OutboundStatus(queueStatus), queueLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(entries) == 0 {
			fmt.Println("Queue is empty")
			return
		}

		fmt.Printf("%-38s %-8s %-6s %-30s %s\n", "ID", "STATUS", "GRAPH", "SENDER", "ERROR")
		for _, e := range entries {
			fmt.Printf("%-38s %-8s %-6t %-30s %s\n", e.ID, e.Status, e.GraphSend, e.Sender, e.ErrorMessage)
		}
	},
}

// queueProcessCmd runs one queue pass in the foreground
var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process pending entries now",
	Run: func(cmd *cobra.Command, args []string) {
		result, err := sendService.ProcessPending(context.Background(), queueLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Processed %d entries: %d sent, %d failed\n", result.Claimed, result.Sent, result.Failed)
	},
}

// queueResetCmd puts an errored entry back to pending
var queueResetCmd = &cobra.Command{
	Use:   "reset <entry-id>",
	Short: "Reset an errored entry to pending",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := sendService.ResetEntry(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Entry reset to pending")
	},
}

func init() {
	queueListCmd.Flags().StringVar(&queueStatus, "status", "", "filter by status: pending, sending, sent, error")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 50, "number of entries to show")
	queueProcessCmd.Flags().IntVar(&queueLimit, "limit", 50, "maximum entries to process")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueProcessCmd)
	queueCmd.AddCommand(queueResetCmd)
}
