package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"reminder-service/internal/db"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/internal/services"
	"reminder-service/internal/webhook"
)

type Handler struct {
	db            *db.DB
	orch          *services.Orchestrator
	notifications *services.NotificationService
	subscriptions *services.SubscriptionService
	analytics     *services.AnalyticsService
	ml            *services.MLService
	webhooks      *webhook.Handler
	ws            *services.WebSocketManager
	logger        *logging.Logger
	upgrader      websocket.Upgrader
}

func NewHandler(database *db.DB, orch *services.Orchestrator, notifications *services.NotificationService,
	subscriptions *services.SubscriptionService, analytics *services.AnalyticsService, ml *services.MLService,
	webhooks *webhook.Handler, ws *services.WebSocketManager, logger *logging.Logger) *Handler {
	return &Handler{
		db:            database,
		orch:          orch,
		notifications: notifications,
		subscriptions: subscriptions,
		analytics:     analytics,
		ml:            ml,
		webhooks:      webhooks,
		ws:            ws,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// CreateReminder creates a reminder, delegating channel and timing to the
// ML layer unless the caller supplies them.
func (h *Handler) CreateReminder(c *gin.Context) {
	var req struct {
		UserID      int                 `json:"user_id" binding:"required"`
		Type        string              `json:"type" binding:"required"`
		Subject     string              `json:"subject"`
		Content     string              `json:"content" binding:"required"`
		Channel     *models.Channel     `json:"channel"`
		ScheduledAt *time.Time          `json:"scheduled_at"`
		Metadata    models.ReminderMeta `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.orch.CreateIntelligentReminder(c.Request.Context(), services.ReminderRequest{
		UserID:      req.UserID,
		Type:        req.Type,
		Subject:     req.Subject,
		Content:     req.Content,
		Channel:     req.Channel,
		ScheduledAt: req.ScheduledAt,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if errors.Is(err, services.ErrFatigueSuppressed) || errors.Is(err, services.ErrDailyLimitReached) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("Create reminder failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, n)
}

// SendNotification triggers an immediate send with fallback.
func (h *Handler) SendNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	if err := h.orch.SendWithFallback(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		h.logger.Errorf("Send notification %s failed: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sent"})
}

// RetryNotification re-attempts a FAILED notification.
func (h *Handler) RetryNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	n, err := h.db.GetNotification(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if n.Status != models.StatusFailed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "notification is not in failed state"})
		return
	}
	if err := h.orch.SendWithFallback(c.Request.Context(), id); err != nil {
		h.logger.Errorf("Retry notification %s failed: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sent"})
}

// CancelNotification cancels a notification that has not gone out yet.
func (h *Handler) CancelNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	if err := h.notifications.Cancel(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		case errors.Is(err, services.ErrAlreadySent), errors.Is(err, services.ErrAlreadyCancelled):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Errorf("Cancel notification %s failed: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancelled"})
}

func (h *Handler) GetNotificationsByUserID(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	notifications, err := h.db.GetNotificationsByUserID(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Errorf("Get notifications failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// RecordInteraction accepts a delivery or engagement event.
func (h *Handler) RecordInteraction(c *gin.Context) {
	var req struct {
		NotificationID string            `json:"notification_id" binding:"required"`
		UserID         int               `json:"user_id" binding:"required"`
		ActionType     models.ActionType `json:"action_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	notifID, err := uuid.Parse(req.NotificationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	err = h.orch.HandleInteraction(c.Request.Context(), models.Interaction{
		NotificationID: notifID,
		UserID:         req.UserID,
		ActionType:     req.ActionType,
	})
	if err != nil {
		h.logger.Errorf("Record interaction failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "recorded"})
}

func (h *Handler) GetPreferences(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	prefs, err := h.db.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("Get preferences failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var prefs models.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prefs.UserID = userID
	if err := h.db.UpsertPreferences(c.Request.Context(), prefs); err != nil {
		h.logger.Errorf("Update preferences failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.ml.InvalidatePreferences(userID)
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) CreateSubscription(c *gin.Context) {
	var sub models.Subscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.subscriptions.Create(c.Request.Context(), sub)
	if err != nil {
		h.logger.Errorf("Create subscription failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) PauseSubscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}
	if err := h.subscriptions.Pause(c.Request.Context(), id); err != nil {
		h.subscriptionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "paused"})
}

func (h *Handler) ResumeSubscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}
	if err := h.subscriptions.Resume(c.Request.Context(), id); err != nil {
		h.subscriptionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "resumed"})
}

func (h *Handler) subscriptionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
	case errors.Is(err, services.ErrAlreadyPaused), errors.Is(err, services.ErrAlreadyActive),
		errors.Is(err, services.ErrSubscriptionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Errorf("Subscription update failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) GetModelAccuracy(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	accuracy, err := h.analytics.ModelAccuracy(c.Request.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		h.logger.Errorf("Get model accuracy failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accuracy": accuracy, "days": days})
}

// HandleWebhook receives provider events, validates the shared secret, and
// dispatches through the dedup registry.
func (h *Handler) HandleWebhook(c *gin.Context) {
	var ev models.WebhookEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token := c.GetHeader("X-Webhook-Token")
	if err := h.webhooks.Handle(c.Request.Context(), token, ev); err != nil {
		if errors.Is(err, webhook.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		h.logger.Errorf("Webhook dispatch failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}

// ServeWS upgrades the connection and registers it for status events.
func (h *Handler) ServeWS(c *gin.Context) {
	userID, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	if !h.ws.AddConnection(userID, conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"))
		conn.Close()
		return
	}

	// reader loop detects client disconnect
	go func() {
		defer func() {
			h.ws.RemoveConnection(userID, conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
