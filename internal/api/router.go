package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/api/handlers"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/config"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/dispatch"
	"gorm.io/gorm"
)

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(db *gorm.DB, cfg *config.Config, d *dispatch.Dispatcher) *gin.Engine {
	router := gin.Default()

	origins := strings.Split(cfg.CORSOrigins, ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.CORSOrigins != "*",
		MaxAge:           12 * time.Hour,
	}))

	syncHandler := handlers.NewSyncHandler(d)
	messageHandler := handlers.NewMessageHandler(db)
	mutationHandler := handlers.NewMutationHandler(d)
	outboxHandler := handlers.NewOutboxHandler(d)
	systemHandler := handlers.NewSystemHandler(d)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		sync := api.Group("/sync")
		{
			sync.POST("/start", syncHandler.StartSync)
			sync.POST("/cancel", syncHandler.CancelSync)
			sync.GET("/status", syncHandler.SyncStatus)
		}

		api.GET("/folders", messageHandler.ListFolders)
		api.GET("/messages", messageHandler.ListMessages)
		api.GET("/messages/:uid/body", messageHandler.GetMessageBody)

		mutations := api.Group("/mutations")
		{
			mutations.GET("", mutationHandler.ListMutations)
			mutations.POST("", mutationHandler.EnqueueMutation)
			mutations.POST("/process", mutationHandler.ProcessQueue)
			mutations.POST("/retry", mutationHandler.RetryFailed)
		}

		outbox := api.Group("/outbox")
		{
			outbox.GET("", outboxHandler.ListOutbox)
			outbox.POST("", outboxHandler.QueueEmail)
			outbox.POST("/process", outboxHandler.ProcessOutbox)
			outbox.POST("/retry-all", outboxHandler.RetryAllFailed)
			outbox.POST("/:id/retry", outboxHandler.RetryItem)
			outbox.DELETE("/:id", outboxHandler.CancelScheduled)
		}

		api.GET("/events", systemHandler.RecentEvents)
		api.GET("/logs", systemHandler.ListLogs)
		api.POST("/connectivity", systemHandler.SetConnectivity)
	}

	return router
}
