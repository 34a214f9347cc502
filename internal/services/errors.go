package services

import "errors"

// Business-rule errors. Reported to the caller, never retried.
var (
	ErrFatigueSuppressed  = errors.New("user fatigue score too high")
	ErrDailyLimitReached  = errors.New("daily notification limit reached")
	ErrChannelUnavailable = errors.New("no enabled channel available")
	ErrAlreadySent        = errors.New("notification already sent")
	ErrAlreadyCancelled   = errors.New("notification already cancelled")
	ErrAlreadyPaused      = errors.New("subscription already paused")
	ErrAlreadyActive      = errors.New("subscription already active")
	ErrSubscriptionClosed = errors.New("subscription is cancelled")
)
