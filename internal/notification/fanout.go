package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/safetrack/platform/internal/eventstore"
	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/incident/infrastructure"
	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/shared/metrics"
	"github.com/safetrack/platform/internal/shared/types"
)

// Fanout listens to the incident event feed and notifies interested
// principals: the reporter on every change to their incident, and a
// responder on being assigned. Actors are never notified about their
// own actions.
type Fanout struct {
	store     Repository
	incidents domain.Repository
	profiles  principal.ProfileRepository
	feed      eventstore.EventSubscriber
	pusher    Pusher
}

// NewFanout creates the fan-out worker. A nil pusher disables push
// delivery; in-app notifications are still recorded.
func NewFanout(store Repository, incidents domain.Repository, profiles principal.ProfileRepository, feed eventstore.EventSubscriber, pusher Pusher) *Fanout {
	return &Fanout{store: store, incidents: incidents, profiles: profiles, feed: feed, pusher: pusher}
}

// Start subscribes to the incident feed. The returned cancel function
// stops delivery; a dropped feed is logged and not reconnected here.
func (f *Fanout) Start(ctx context.Context) (func(), error) {
	return f.feed.Subscribe(ctx, infrastructure.AggregateType, f.handle, func(err error) {
		log.Printf("notification feed dropped: %v", err)
	})
}

func (f *Fanout) handle(ctx context.Context, ev *eventstore.Event) error {
	switch ev.EventType {
	case domain.EventTypeStatusChanged, domain.EventTypeResponderAssigned:
	default:
		return nil
	}

	entry, err := infrastructure.EntryFromEvent(ev)
	if err != nil {
		return err
	}
	inc, err := f.incidents.FindByID(ctx, ev.AggregateID)
	if err != nil || inc == nil {
		// The projection may lag the log; the next event catches up.
		return err
	}

	if ev.EventType == domain.EventTypeResponderAssigned && !entry.ResponderID.IsZero() && entry.ResponderID != entry.ActorID {
		f.emit(ctx, &Notification{
			UserID:     entry.ResponderID,
			IncidentID: inc.ID,
			Title:      "New assignment",
			Message:    fmt.Sprintf("You have been assigned to %q", inc.Title),
			Kind:       KindAssignment,
		})
	}

	if inc.ReporterID != entry.ActorID && inc.ReporterID != entry.ResponderID {
		f.emit(ctx, &Notification{
			UserID:     inc.ReporterID,
			IncidentID: inc.ID,
			Title:      "Incident update",
			Message:    reporterMessage(inc.Title, entry),
			Kind:       KindStatusUpdate,
		})
	}
	return nil
}

func reporterMessage(title string, entry domain.StatusHistoryEntry) string {
	if entry.Kind == domain.HistoryKindAssignment {
		return fmt.Sprintf("%q: %s", title, entry.Note)
	}
	if entry.Note != "" {
		return fmt.Sprintf("%q is now %s: %s", title, entry.Status, entry.Note)
	}
	return fmt.Sprintf("%q is now %s", title, entry.Status)
}

func (f *Fanout) emit(ctx context.Context, n *Notification) {
	n.ID = types.NewID()
	if err := f.store.Save(ctx, n); err != nil {
		log.Printf("failed to record notification for %s: %v", n.UserID, err)
		return
	}
	metrics.RecordNotificationEmitted(string(n.Kind))
	f.push(ctx, n)
}

func (f *Fanout) push(ctx context.Context, n *Notification) {
	if f.pusher == nil {
		return
	}
	profile, err := f.profiles.FindByUID(ctx, n.UserID)
	if err != nil || profile.PushToken == "" {
		return
	}
	if err := f.pusher.Push(ctx, profile.PushToken, n.Title, n.Message); err != nil {
		// Push transport failures never affect incident state.
		log.Printf("push delivery to %s failed: %v", n.UserID, err)
	}
}
