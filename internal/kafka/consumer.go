// Package kafka consumes interaction events published by the delivery and
// tracking pipelines and feeds them into the orchestrator.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// InteractionSink receives decoded interaction events.
type InteractionSink interface {
	HandleInteraction(ctx context.Context, in models.Interaction) error
}

type Consumer struct {
	reader *kafka.Reader
	sink   InteractionSink
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewConsumer(brokers []string, topic, groupID string, sink InteractionSink, logger *logging.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  time.Second,
		}),
		sink:   sink,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the consume loop. Invalid messages are logged and skipped.
func (c *Consumer) Start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started")
		for {
			msg, err := c.reader.ReadMessage(c.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}

			var event struct {
				NotificationID string `json:"notification_id"`
				UserID         int    `json:"user_id"`
				Action         string `json:"action"`
				Timestamp      int64  `json:"timestamp"`
			}
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				c.logger.Errorf("Unmarshal message failed: %v", err)
				continue
			}

			notifID, err := uuid.Parse(event.NotificationID)
			if err != nil || event.UserID < 1 || event.Action == "" {
				c.logger.Errorf("Invalid message: missing notification_id, user_id, or action")
				continue
			}

			in := models.Interaction{
				NotificationID: notifID,
				UserID:         event.UserID,
				ActionType:     models.ActionType(event.Action),
			}
			if event.Timestamp > 0 {
				in.CreatedAt = time.Unix(event.Timestamp, 0)
			}
			if err := c.sink.HandleInteraction(c.ctx, in); err != nil {
				c.logger.Errorf("Handle interaction for %s failed: %v", notifID, err)
			}
		}
	}()
}

func (c *Consumer) Close() {
	c.cancel()
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Close kafka reader failed: %v", err)
	}
}
