package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/services"
)

var (
	logsAccount string
	logsModule  string
	logsLevel   string
	logsLimit   int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent activity log entries",
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := dispatcher.Logs().ListLogs(services.LogQueryOptions{
			Account: logsAccount,
			Module:  logsModule,
			Level:   logsLevel,
			Limit:   logsLimit,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, entry := range entries {
			fmt.Printf("%s  %-5s %-10s %-12s %s\n",
				entry.CreatedAt.Format("2006-01-02 15:04:05"),
				entry.Level, entry.Module, entry.Action, entry.Message)
			if entry.Details != "" && entry.Details != "{}" {
				fmt.Printf("      %s\n", entry.Details)
			}
		}
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsAccount, "account", "", "filter by account")
	logsCmd.Flags().StringVar(&logsModule, "module", "", "filter by module (sync, mutation, outbox)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "filter by level")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 50, "maximum entries")
}
