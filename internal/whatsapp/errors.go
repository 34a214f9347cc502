package whatsapp

import (
	"errors"
	"fmt"
	"time"
)

// ErrConversationWindowClosed marks sends rejected because the 24-hour
// conversation window is closed. Business-rule failure; never retried, but
// the orchestration layer may attempt a fallback channel.
var ErrConversationWindowClosed = errors.New("conversation window closed")

// ErrTemplateNotApproved marks sends using a template the provider has not
// approved. Permanent; never retried.
var ErrTemplateNotApproved = errors.New("template not approved")

// ErrTemplateNotFound marks sends referencing an unknown template.
var ErrTemplateNotFound = errors.New("template not found")

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// HTTPStatus exposes the status code to the retry classifier.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// RateLimitError is a 429 carrying the provider's retry-after hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("whatsapp rate limited, retry after %v", e.RetryAfter)
}

// RetryAfterHint exposes the wait hint to the retry backoff.
func (e *RateLimitError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}
