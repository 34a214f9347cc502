// Package providers holds the channel-specific senders. Each sender
// resolves a delivery address from the user record or notification metadata
// and fails fast when it is absent; failures never cross channels.
package providers

import (
	"context"
	"errors"

	"reminder-service/internal/models"
)

// ErrNoAddress marks a send that cannot proceed because the user has no
// delivery address for the channel. Local, never retried.
var ErrNoAddress = errors.New("no delivery address for channel")

// Sender delivers one notification to one user over one channel.
type Sender interface {
	Send(ctx context.Context, user models.User, notif models.Notification) error
}
