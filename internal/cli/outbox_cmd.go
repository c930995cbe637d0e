package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var outboxAccount string

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and retry the outbox queue",
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the account's outbox items",
	Run: func(cmd *cobra.Command, args []string) {
		items, err := dispatcher.Outbox().List(outboxAccount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(items) == 0 {
			fmt.Println("outbox is empty")
			return
		}
		for _, item := range items {
			subject := "(unknown)"
			if email, err := item.DecodeEmailData(); err == nil {
				subject = email.Subject
			}
			line := fmt.Sprintf("%s  %-10s retries=%d  %q", item.ID, item.Status, item.RetryCount, subject)
			if item.SendAt != nil {
				line += "  sendAt=" + item.SendAt.Format(time.RFC3339)
			}
			if item.ServerID != "" {
				line += "  serverId=" + item.ServerID
			}
			if item.LastError != "" {
				line += "  error=" + item.LastError
			}
			fmt.Println(line)
		}
	},
}

var outboxProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one processing pass now",
	Run: func(cmd *cobra.Command, args []string) {
		result, err := dispatcher.Outbox().ProcessOutbox(context.Background(), outboxAccount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if result.Skipped {
			fmt.Println("skipped: another pass is running")
			return
		}
		fmt.Printf("processed=%d failed=%d pending=%d\n", result.Processed, result.Failed, result.Pending)
	},
}

var outboxRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Make all terminally failed items eligible again",
	Run: func(cmd *cobra.Command, args []string) {
		if err := dispatcher.Outbox().RetryAllFailed(context.Background(), outboxAccount); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("failed items reset")
	},
}

func init() {
	outboxCmd.PersistentFlags().StringVar(&outboxAccount, "account", "", "account identifier (required)")
	outboxCmd.MarkPersistentFlagRequired("account")
	outboxCmd.AddCommand(outboxListCmd)
	outboxCmd.AddCommand(outboxProcessCmd)
	outboxCmd.AddCommand(outboxRetryCmd)
}
