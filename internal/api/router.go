package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reminder-service/internal/config"
	"reminder-service/internal/logging"
)

func NewRouter(h *Handler, cfg *config.Config, logger *logging.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group(cfg.API.BasePath)
	{
		api.POST("/reminders", h.CreateReminder)

		api.POST("/notifications/:id/send", h.SendNotification)
		api.POST("/notifications/:id/retry", h.RetryNotification)
		api.POST("/notifications/:id/cancel", h.CancelNotification)
		api.GET("/notifications/user/:user_id", h.GetNotificationsByUserID)

		api.POST("/interactions", h.RecordInteraction)

		api.GET("/preferences/:user_id", h.GetPreferences)
		api.PUT("/preferences/:user_id", h.UpdatePreferences)

		api.POST("/subscriptions", h.CreateSubscription)
		api.POST("/subscriptions/:id/pause", h.PauseSubscription)
		api.POST("/subscriptions/:id/resume", h.ResumeSubscription)

		api.GET("/analytics/accuracy", h.GetModelAccuracy)

		api.POST("/webhooks/whatsapp", WebhookThrottleMiddleware(cfg.API.WebhookPerSecond), h.HandleWebhook)

		api.GET("/ws", h.ServeWS)
	}

	return router
}
