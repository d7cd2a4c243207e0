package domain

import (
	"github.com/safetrack/platform/internal/shared/types"
)

// Event types emitted by the incident aggregate.
const (
	EventTypeCreated           = "incident.created"
	EventTypeStatusChanged     = "incident.status_changed"
	EventTypeResponderAssigned = "incident.responder_assigned"
)

// Event is one pending aggregate change awaiting persistence. Each event
// corresponds to exactly one history entry.
type Event struct {
	Type       string
	IncidentID types.ID
	Entry      StatusHistoryEntry
	Data       map[string]any
}
