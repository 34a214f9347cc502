package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MLPrediction is the audit record of one channel/time prediction. It is
// only ever read to measure model accuracy, never to make decisions.
type MLPrediction struct {
	ID               uuid.UUID       `json:"id"`
	UserID           int             `json:"user_id"`
	PredictedChannel Channel         `json:"predicted_channel"`
	PredictedTime    time.Time       `json:"predicted_time"`
	Confidence       float64         `json:"confidence"`
	ModelVersion     string          `json:"model_version"`
	Features         json.RawMessage `json:"features,omitempty"`
	ActualChannel    *Channel        `json:"actual_channel,omitempty"`
	ActualTime       *time.Time      `json:"actual_time,omitempty"`
	WasAccurate      *bool           `json:"was_accurate,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
