package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"reminder-service/internal/api"
	"reminder-service/internal/cache"
	"reminder-service/internal/config"
	"reminder-service/internal/db"
	"reminder-service/internal/kafka"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/internal/providers"
	"reminder-service/internal/ratelimit"
	"reminder-service/internal/retry"
	"reminder-service/internal/scheduler"
	"reminder-service/internal/services"
	"reminder-service/internal/webhook"
	"reminder-service/internal/whatsapp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	database, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Outbound provider plumbing: shared limiter and retrier feeding the
	// WhatsApp client, plus the contact/bot/template caches above it.
	limiter := ratelimit.New(cfg.RateLimit.MaxRequests,
		time.Duration(cfg.RateLimit.WindowMs)*time.Millisecond, cfg.RateLimit.BurstSize)
	retrier := retry.NewManager(retry.Config{
		MaxRetries:        cfg.Retry.MaxRetries,
		InitialDelay:      time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
	}, logger)

	waClient := whatsapp.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.APIKey, limiter, retrier, logger)
	bots := whatsapp.NewBotManager(waClient, cfg.WhatsApp.TemplateTTL, logger)
	templates := whatsapp.NewTemplateManager(waClient, cfg.WhatsApp.TemplateTTL, logger)
	contactCache := cache.NewContactCache(cfg.WhatsApp.ContactTTL, cfg.WhatsApp.ConversationTTL)
	resolver := whatsapp.NewContactResolver(waClient, bots, contactCache, logger)

	senders := map[models.Channel]providers.Sender{
		models.ChannelEmail:    providers.NewEmailSender(cfg, logger),
		models.ChannelSMS:      providers.NewSMSSender(cfg, logger),
		models.ChannelWhatsApp: providers.NewWhatsAppSender(waClient, resolver, templates, logger),
	}
	if cfg.Push.BotToken != "" {
		push, err := providers.NewPushSender(cfg.Push.BotToken, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize push sender: %v", err)
		}
		senders[models.ChannelPush] = push
	} else {
		logger.Warnf("PUSH_BOT_TOKEN not set, push channel disabled")
	}

	wsManager := services.NewWebSocketManager(logger)

	notifications := services.NewNotificationService(database, senders, wsManager, logger)
	behavior := services.NewBehaviorService(database, logger)
	ml := services.NewMLService(database, logger)
	analytics := services.NewAnalyticsService(database, logger)
	subscriptions := services.NewSubscriptionService(database, logger)
	orch := services.NewOrchestrator(database, notifications, ml, behavior, analytics, logger)

	webhooks := webhook.New(cfg.API.WebhookToken, 1000, logger)
	registerWebhookHandlers(webhooks, orch, resolver, logger)

	var wg sync.WaitGroup
	consumer := kafka.NewConsumer(strings.Split(cfg.Kafka.Broker, ","), cfg.Kafka.Topic, cfg.Kafka.GroupID, orch, logger)
	consumer.Start(&wg)

	sched := scheduler.New(scheduler.Config{
		ProcessSpec:  cfg.Scheduler.ProcessSpec,
		SnapshotSpec: cfg.Scheduler.SnapshotSpec,
		BatchLimit:   cfg.Scheduler.BatchLimit,
	}, orch, analytics, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	handler := api.NewHandler(database, orch, notifications, subscriptions, analytics, ml, webhooks, wsManager, logger)
	router := api.NewRouter(handler, &cfg, logger)

	srv := &http.Server{
		Addr:    cfg.API.Port,
		Handler: router,
	}
	go func() {
		logger.Infof("Server starting on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("Shutting down...")

	sched.Stop()
	consumer.Close()
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	logger.Infof("Shutdown complete")
}

// registerWebhookHandlers maps provider events onto the interaction
// pipeline and the conversation-window cache.
func registerWebhookHandlers(webhooks *webhook.Handler, orch *services.Orchestrator,
	resolver *whatsapp.ContactResolver, logger *logging.Logger) {

	decodeInteraction := func(ev models.WebhookEvent, action models.ActionType) (models.Interaction, error) {
		var payload struct {
			NotificationID string `json:"notification_id"`
			UserID         int    `json:"user_id"`
		}
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return models.Interaction{}, fmt.Errorf("decode %s payload: %w", ev.Event, err)
		}
		id, err := uuid.Parse(payload.NotificationID)
		if err != nil {
			return models.Interaction{}, fmt.Errorf("invalid notification id in %s event: %w", ev.Event, err)
		}
		return models.Interaction{
			NotificationID: id,
			UserID:         payload.UserID,
			ActionType:     action,
		}, nil
	}

	webhooks.Register("message.delivered", func(ctx context.Context, ev models.WebhookEvent) error {
		in, err := decodeInteraction(ev, models.ActionDelivered)
		if err != nil {
			return err
		}
		return orch.HandleInteraction(ctx, in)
	})

	webhooks.Register("message.read", func(ctx context.Context, ev models.WebhookEvent) error {
		in, err := decodeInteraction(ev, models.ActionOpened)
		if err != nil {
			return err
		}
		return orch.HandleInteraction(ctx, in)
	})

	// An inbound message reopens the 24-hour conversation window.
	webhooks.Register("message.received", func(ctx context.Context, ev models.WebhookEvent) error {
		var payload struct {
			Phone string `json:"phone"`
		}
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return fmt.Errorf("decode message.received payload: %w", err)
		}
		if payload.Phone != "" {
			resolver.MarkInbound(payload.Phone)
		}
		return nil
	})

	webhooks.Register(webhook.Wildcard, func(ctx context.Context, ev models.WebhookEvent) error {
		logger.Debugf("Webhook event %s from bot %s contact %s", ev.Event, ev.BotID, ev.ContactID)
		return nil
	})
}
