package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/dispatch"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
)

var (
	syncAccount     string
	syncFolder      string
	syncToken       string
	syncBodies      bool
	syncMaxMessages int
	syncPageSize    int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass for an (account, folder) and wait for the outcome",
	Run: func(cmd *cobra.Command, args []string) {
		if syncToken == "" {
			syncToken = os.Getenv("FORWARDEMAIL_AUTH_TOKEN")
		}

		events, cancel := bus.Subscribe()
		defer cancel()

		payload, _ := json.Marshal(dispatch.StartSyncPayload{
			Account:     syncAccount,
			Folder:      syncFolder,
			AuthToken:   syncToken,
			FetchBodies: syncBodies,
			PageSize:    syncPageSize,
			MaxMessages: syncMaxMessages,
		})
		raw, _ := json.Marshal(dispatch.Command{Type: dispatch.CommandStartSync, Payload: payload})

		if !dispatcher.Dispatch(raw) {
			fmt.Fprintln(os.Stderr, "Error: sync command rejected")
			os.Exit(1)
		}

		timeout := time.After(30 * time.Minute)
		for {
			select {
			case evt := <-events:
				switch evt.Type {
				case platform.EventSyncProgress:
					data, _ := json.Marshal(evt.Payload)
					fmt.Printf("progress: %s\n", data)
				case platform.EventSyncComplete:
					data, _ := json.Marshal(evt.Payload)
					fmt.Printf("complete: %s\n", data)
					return
				case platform.EventSyncCancelled:
					fmt.Println("cancelled")
					return
				case platform.EventSyncError:
					data, _ := json.Marshal(evt.Payload)
					fmt.Fprintf(os.Stderr, "Error: %s\n", data)
					os.Exit(1)
				}
			case <-timeout:
				fmt.Fprintln(os.Stderr, "Error: sync timed out")
				os.Exit(1)
			}
		}
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncAccount, "account", "", "account identifier (required)")
	syncCmd.Flags().StringVar(&syncFolder, "folder", "INBOX", "folder to sync")
	syncCmd.Flags().StringVar(&syncToken, "token", "", "API auth token (or FORWARDEMAIL_AUTH_TOKEN)")
	syncCmd.Flags().BoolVar(&syncBodies, "bodies", false, "also fetch message bodies")
	syncCmd.Flags().IntVar(&syncMaxMessages, "max-messages", 0, "stop after this many messages (0 = unlimited)")
	syncCmd.Flags().IntVar(&syncPageSize, "page-size", 0, "messages per page (0 = default)")
	syncCmd.MarkFlagRequired("account")
}
