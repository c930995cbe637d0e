package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/config"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/dispatch"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
	"gorm.io/gorm"
)

var (
	db         *gorm.DB
	cfg        *config.Config
	log        *logrus.Logger
	dispatcher *dispatch.Dispatcher
	bus        *platform.Bus
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "offline-core",
	Short: "Forward Email offline-resilience core",
	Long: `The offline-resilience core keeps the local mail cache consistent with
the remote server and guarantees queued actions and outgoing mail survive
connectivity loss.

Examples:
  offline-core sync --account me@example.com --token $TOKEN
  offline-core queue list --account me@example.com
  offline-core outbox retry --account me@example.com
  offline-core logs --account me@example.com --module sync`,
}

// Execute runs the CLI with the provided database, config and logger
func Execute(database *gorm.DB, conf *config.Config, logger *logrus.Logger) {
	db = database
	cfg = conf
	log = logger

	bus = platform.NewBus()
	dispatcher = dispatch.New(cfg, db, bus, log)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(logsCmd)
}
