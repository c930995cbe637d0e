package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var queueAccount string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and retry the mutation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the account's queued mutations in replay order",
	Run: func(cmd *cobra.Command, args []string) {
		items, err := dispatcher.Mutations().List(queueAccount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(items) == 0 {
			fmt.Println("queue is empty")
			return
		}
		for _, item := range items {
			line := fmt.Sprintf("%4d  %-12s %-10s retries=%d", item.Position, item.Type, item.Status, item.RetryCount)
			if item.LastError != "" {
				line += "  error=" + item.LastError
			}
			fmt.Println(line)
		}
	},
}

var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one processing pass now",
	Run: func(cmd *cobra.Command, args []string) {
		result, err := dispatcher.Mutations().Process(context.Background(), queueAccount)
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

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Make terminally failed mutations eligible again",
	Run: func(cmd *cobra.Command, args []string) {
		if err := dispatcher.Mutations().RetryFailed(context.Background(), queueAccount); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("failed mutations reset")
	},
}

func init() {
	queueCmd.PersistentFlags().StringVar(&queueAccount, "account", "", "account identifier (required)")
	queueCmd.MarkPersistentFlagRequired("account")
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueProcessCmd)
	queueCmd.AddCommand(queueRetryCmd)
}
