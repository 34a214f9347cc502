package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	API struct {
		Port             string
		BasePath         string
		WebhookToken     string
		WebhookPerSecond int
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	SMS struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	Push struct {
		BotToken string
	}
	WhatsApp struct {
		BaseURL         string
		APIKey          string
		ContactTTL      time.Duration
		ConversationTTL time.Duration
		TemplateTTL     time.Duration
	}
	RateLimit struct {
		MaxRequests int
		WindowMs    int
		BurstSize   int
	}
	Retry struct {
		MaxRetries        int
		InitialDelayMs    int
		MaxDelayMs        int
		BackoffMultiplier float64
	}
	Scheduler struct {
		ProcessSpec  string
		SnapshotSpec string
		BatchLimit   int
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")
	cfg.API.WebhookToken = os.Getenv("WEBHOOK_TOKEN")
	cfg.API.WebhookPerSecond = envInt("WEBHOOK_RATE_PER_SECOND", 20)

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = envInt("EMAIL_SMTP_PORT", 587)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	cfg.SMS.AccountSID = os.Getenv("SMS_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("SMS_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("SMS_FROM_NUMBER")

	cfg.Push.BotToken = os.Getenv("PUSH_BOT_TOKEN")

	cfg.WhatsApp.BaseURL = os.Getenv("WHATSAPP_BASE_URL")
	cfg.WhatsApp.APIKey = os.Getenv("WHATSAPP_API_KEY")
	cfg.WhatsApp.ContactTTL = envMinutes("WHATSAPP_CONTACT_TTL_MIN", 60)
	cfg.WhatsApp.ConversationTTL = envMinutes("WHATSAPP_CONVERSATION_TTL_MIN", 5)
	cfg.WhatsApp.TemplateTTL = envMinutes("WHATSAPP_TEMPLATE_TTL_MIN", 30)

	cfg.RateLimit.MaxRequests = envInt("RATE_LIMIT_MAX_REQUESTS", 80)
	cfg.RateLimit.WindowMs = envInt("RATE_LIMIT_WINDOW_MS", 60000)
	cfg.RateLimit.BurstSize = envInt("RATE_LIMIT_BURST_SIZE", 10)

	cfg.Retry.MaxRetries = envInt("RETRY_MAX_RETRIES", 3)
	cfg.Retry.InitialDelayMs = envInt("RETRY_INITIAL_DELAY_MS", 1000)
	cfg.Retry.MaxDelayMs = envInt("RETRY_MAX_DELAY_MS", 30000)
	if m, err := strconv.ParseFloat(os.Getenv("RETRY_BACKOFF_MULTIPLIER"), 64); err == nil && m > 1 {
		cfg.Retry.BackoffMultiplier = m
	} else {
		cfg.Retry.BackoffMultiplier = 2.0
	}

	cfg.Scheduler.ProcessSpec = os.Getenv("SCHEDULER_PROCESS_SPEC")
	cfg.Scheduler.SnapshotSpec = os.Getenv("SCHEDULER_SNAPSHOT_SPEC")
	cfg.Scheduler.BatchLimit = envInt("SCHEDULER_BATCH_LIMIT", 50)

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.WhatsApp.BaseURL == "" {
		missing = append(missing, "WHATSAPP_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v1"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "reminder_interactions"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "reminder-service"
	}
	if cfg.Scheduler.ProcessSpec == "" {
		cfg.Scheduler.ProcessSpec = "* * * * *"
	}
	if cfg.Scheduler.SnapshotSpec == "" {
		cfg.Scheduler.SnapshotSpec = "0 3 * * *"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func envMinutes(key string, defMinutes int) time.Duration {
	return time.Duration(envInt(key, defMinutes)) * time.Minute
}
