// Package domain holds the incident aggregate and its transition rules.
// The aggregate is pure: it validates and applies changes in memory and
// records them as pending events; persistence and fan-out happen in the
// infrastructure layer.
package domain

import (
	"time"

	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// Status defines the lifecycle state of an incident. The values are the
// exact strings stored and displayed; Resolved is terminal.
type Status string

const (
	StatusOpen                Status = "Open"
	StatusInProgress          Status = "In Progress"
	StatusWaitingForResources Status = "Waiting for Resources"
	StatusResolved            Status = "Resolved"
)

// ParseStatus returns the status for s, or false when unknown.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusOpen, StatusInProgress, StatusWaitingForResources, StatusResolved:
		return Status(s), true
	}
	return "", false
}

// legalTransitions is the edge table of the status state machine. An
// absent entry means no successors: the state is terminal.
var legalTransitions = map[Status][]Status{
	StatusOpen:                {StatusInProgress},
	StatusInProgress:          {StatusWaitingForResources, StatusResolved},
	StatusWaitingForResources: {StatusInProgress, StatusResolved},
}

// CanTransitionTo checks the edge table.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range legalTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// LegalSuccessors returns the statuses reachable from s in one step.
func LegalSuccessors(s Status) []Status {
	return legalTransitions[s]
}

// Priority defines incident priority.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Location places an incident within the estate directory.
type Location struct {
	Department string `json:"department"`
	Room       string `json:"room,omitempty"`
	Area       string `json:"area,omitempty"`
}

// HistoryKind distinguishes plain status changes from assignment facts.
type HistoryKind string

const (
	HistoryKindStatus     HistoryKind = "status"
	HistoryKindAssignment HistoryKind = "assignment"
)

// StatusHistoryEntry is one immutable fact in an incident's audit trail.
// Every entry carries the incident's status as of that entry, so the
// current status is always the status of the last entry.
type StatusHistoryEntry struct {
	Kind        HistoryKind `json:"kind"`
	Status      Status      `json:"status"`
	Note        string      `json:"note,omitempty"`
	ActorID     types.ID    `json:"actor_id"`
	ActorLabel  string      `json:"actor_label,omitempty"`
	ProofRef    string      `json:"proof_ref,omitempty"`
	ResponderID types.ID    `json:"responder_id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Incident is the aggregate root of the workflow.
type Incident struct {
	ID                  types.ID             `json:"id"`
	ReporterID          types.ID             `json:"reporter_id"`
	Title               string               `json:"title"`
	Description         string               `json:"description"`
	Location            Location             `json:"location"`
	Category            string               `json:"category"`
	Priority            Priority             `json:"priority"`
	Status              Status               `json:"status"`
	StatusHistory       []StatusHistoryEntry `json:"status_history"`
	AssignedResponderID types.ID             `json:"assigned_responder_id,omitempty"`

	// Version is the committed history length, used as the
	// optimistic-concurrency token on append.
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Pending events, drained by the infrastructure on save.
	domainEvents []Event
}

// CreateFields are the reporter-supplied fields of a new incident.
type CreateFields struct {
	Title       string
	Description string
	Location    Location
	Category    string
	Priority    Priority
}

// SeedNote is the note on the first history entry of every incident.
const SeedNote = "Incident reported"

// NewIncident creates an incident for a reporter. The aggregate starts at
// Open with exactly one seed history entry.
func NewIncident(reporter *principal.Principal, fields CreateFields) (*Incident, error) {
	if reporter == nil || !reporter.HasPermission(role.PermCreateIncidents) {
		return nil, errors.Authorization(string(role.PermCreateIncidents))
	}
	if fields.Title == "" {
		return nil, errors.Validation("title is required", map[string]string{"field": "title"})
	}
	switch fields.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
	case "":
		fields.Priority = PriorityMedium
	default:
		return nil, errors.Validation("unknown priority", map[string]string{"field": "priority"})
	}

	now := time.Now().UTC()
	inc := &Incident{
		ID:          types.NewID(),
		ReporterID:  reporter.UID,
		Title:       fields.Title,
		Description: fields.Description,
		Location:    fields.Location,
		Category:    fields.Category,
		Priority:    fields.Priority,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	seed := StatusHistoryEntry{
		Kind:       HistoryKindStatus,
		Status:     StatusOpen,
		Note:       SeedNote,
		ActorID:    reporter.UID,
		ActorLabel: reporter.Label(),
		Timestamp:  now,
	}
	inc.StatusHistory = append(inc.StatusHistory, seed)
	inc.addEvent(EventTypeCreated, seed, map[string]any{
		"title":    inc.Title,
		"category": inc.Category,
		"priority": string(inc.Priority),
	})

	return inc, nil
}

// ApplyTransition validates and applies a status change. Preconditions
// are checked in a fixed order: permission, then edge legality, then the
// resolution-note requirement. On success exactly one history entry is
// appended and one event recorded.
func (i *Incident) ApplyTransition(requested Status, note string, actor *principal.Principal, proofRef string) error {
	if actor == nil || !actor.HasPermission(role.PermEditIncidents) {
		return errors.Authorization(string(role.PermEditIncidents))
	}
	if !i.Status.CanTransitionTo(requested) {
		return errors.IllegalTransition(string(i.Status), string(requested))
	}
	if requested == StatusResolved && note == "" {
		return errors.Validation("a resolution note is required", map[string]string{"field": "note"})
	}

	from := i.Status
	now := time.Now().UTC()
	entry := StatusHistoryEntry{
		Kind:       HistoryKindStatus,
		Status:     requested,
		Note:       note,
		ActorID:    actor.UID,
		ActorLabel: actor.Label(),
		ProofRef:   proofRef,
		Timestamp:  now,
	}

	i.StatusHistory = append(i.StatusHistory, entry)
	i.Status = requested
	i.UpdatedAt = now
	i.addEvent(EventTypeStatusChanged, entry, map[string]any{
		"from_status": string(from),
		"to_status":   string(requested),
	})

	return nil
}

// AssignResponder binds a responder to the incident. When the incident is
// still Open the assignment also carries the Open -> In Progress
// transition; both effects land in one history entry so no observer ever
// sees a half-applied state. Reassignment appends a new entry.
func (i *Incident) AssignResponder(responder *principal.Principal, actor *principal.Principal) error {
	if actor == nil || !actor.HasPermission(role.PermAssignResponders) {
		return errors.Authorization(string(role.PermAssignResponders))
	}
	if responder == nil || responder.BaseRole != role.BaseResponder {
		return errors.Validation("assignee must be a responder", map[string]string{"field": "responder_id"})
	}
	if i.Status == StatusResolved {
		return errors.IllegalTransition(string(StatusResolved), string(StatusInProgress))
	}

	from := i.Status
	newStatus := i.Status
	if newStatus == StatusOpen {
		newStatus = StatusInProgress
	}

	now := time.Now().UTC()
	entry := StatusHistoryEntry{
		Kind:        HistoryKindAssignment,
		Status:      newStatus,
		Note:        "Assigned to " + responder.Label(),
		ActorID:     actor.UID,
		ActorLabel:  actor.Label(),
		ResponderID: responder.UID,
		Timestamp:   now,
	}

	i.StatusHistory = append(i.StatusHistory, entry)
	i.AssignedResponderID = responder.UID
	i.Status = newStatus
	i.UpdatedAt = now
	i.addEvent(EventTypeResponderAssigned, entry, map[string]any{
		"from_status":  string(from),
		"to_status":    string(newStatus),
		"responder_id": responder.UID.String(),
	})

	return nil
}

// CanView reports whether a principal may read this incident. Reviewers
// and admins see everything their view permission covers; responders see
// their assignments and own reports; reporters see their own reports.
func (i *Incident) CanView(p *principal.Principal) bool {
	if p == nil || !p.HasPermission(role.PermViewIncidents) {
		return false
	}
	switch p.BaseRole {
	case role.BaseReviewer, role.BaseAdmin:
		return true
	case role.BaseResponder:
		return i.AssignedResponderID == p.UID || i.ReporterID == p.UID
	default:
		return i.ReporterID == p.UID
	}
}

// DomainEvents returns and clears the pending events.
func (i *Incident) DomainEvents() []Event {
	events := i.domainEvents
	i.domainEvents = nil
	return events
}

func (i *Incident) addEvent(eventType string, entry StatusHistoryEntry, data map[string]any) {
	i.domainEvents = append(i.domainEvents, Event{
		Type:       eventType,
		IncidentID: i.ID,
		Entry:      entry,
		Data:       data,
	})
}
