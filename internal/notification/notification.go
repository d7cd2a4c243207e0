// Package notification turns committed incident events into per-user
// alerts. The core only decides who is interested and records the
// notification; the actual push transport sits behind the Pusher
// boundary and may fail without affecting incident state.
package notification

import (
	"context"
	"time"

	"github.com/safetrack/platform/internal/shared/types"
)

// Kind classifies a notification.
type Kind string

const (
	KindStatusUpdate Kind = "status_update"
	KindAssignment   Kind = "assignment"
)

// FeedLimit caps the in-app inbox.
const FeedLimit = 50

// Notification is one alert addressed to one user.
type Notification struct {
	ID         types.ID  `json:"id"`
	UserID     types.ID  `json:"userId"`
	IncidentID types.ID  `json:"incidentId,omitempty"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Kind       Kind      `json:"kind"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Repository stores notifications.
type Repository interface {
	ListForUser(ctx context.Context, userID types.ID, limit int) ([]Notification, error)
	Save(ctx context.Context, n *Notification) error
	MarkRead(ctx context.Context, id, userID types.ID) error
}

// Pusher delivers a notification to a device token. Implementations wrap
// an external push service; errors are reported, never retried here.
type Pusher interface {
	Push(ctx context.Context, token, title, message string) error
}
