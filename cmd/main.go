package main

import (
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/api"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/cli"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/config"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/dispatch"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	// Check if running CLI command
	if len(os.Args) > 1 {
		cli.Execute(db, cfg, logger)
		return
	}

	// Serve mode: dispatcher picks the backend, heartbeat wakes the queues,
	// the HTTP surface is the command channel for the UI collaborator
	bus := platform.NewBus()
	dispatcher := dispatch.New(cfg, db, bus, logger)

	heartbeat := services.NewHeartbeat(
		dispatcher.Env(),
		dispatcher.Mutations(),
		dispatcher.Outbox(),
		logger,
		cfg.HeartbeatInterval(),
	)
	heartbeat.Start()
	defer heartbeat.Stop()

	router := api.SetupRouter(db, cfg, dispatcher)

	logger.WithField("port", cfg.APIPort).Info("starting API server")
	if err := router.Run(":" + cfg.APIPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}
