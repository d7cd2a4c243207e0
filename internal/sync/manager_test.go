package sync

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/safetrack/platform/internal/eventstore"
	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/incident/infrastructure"
	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

type harness struct {
	store   *infrastructure.Store
	memory  *eventstore.MemoryStore
	manager *Manager
}

func newHarness() *harness {
	memory := eventstore.NewMemoryStore()
	store := infrastructure.NewStore(memory, infrastructure.NewMemoryProjection())
	return &harness{
		store:   store,
		memory:  memory,
		manager: NewManager(store, memory),
	}
}

func testPrincipal(base role.BaseRole) *principal.Principal {
	return &principal.Principal{
		UID:         types.NewID(),
		DisplayName: string(base),
		BaseRole:    base,
		Permissions: role.Defaults(base),
	}
}

func (h *harness) report(t *testing.T, reporter *principal.Principal, title string) *domain.Incident {
	t.Helper()
	inc, err := domain.NewIncident(reporter, domain.CreateFields{Title: title, Priority: domain.PriorityMedium})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.store.Save(context.Background(), inc); err != nil {
		t.Fatal(err)
	}
	return inc
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	h := newHarness()
	reporter := testPrincipal(role.BaseReporter)
	h.report(t, reporter, "one")
	h.report(t, reporter, "two")

	var deliveries [][]domain.Incident
	handle, err := h.manager.Subscribe(context.Background(), ByReporter(reporter.UID),
		func(incidents []domain.Incident) { deliveries = append(deliveries, incidents) },
		nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer handle.Cancel()

	if len(deliveries) != 1 {
		t.Fatalf("deliveries = %d, want synchronous snapshot", len(deliveries))
	}
	if len(deliveries[0]) != 2 {
		t.Errorf("snapshot size = %d, want 2", len(deliveries[0]))
	}
}

func TestSubscribePushesOnChange(t *testing.T) {
	h := newHarness()
	reporter := testPrincipal(role.BaseReporter)
	responder := testPrincipal(role.BaseResponder)

	inc := h.report(t, reporter, "leak")

	var deliveries int
	var lastStatus domain.Status
	handle, err := h.manager.Subscribe(context.Background(), ByReporter(reporter.UID),
		func(incidents []domain.Incident) {
			deliveries++
			if len(incidents) > 0 {
				lastStatus = incidents[0].Status
			}
		},
		nil)
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Cancel()

	if err := inc.ApplyTransition(domain.StatusInProgress, "working", responder, ""); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Save(context.Background(), inc); err != nil {
		t.Fatal(err)
	}

	if deliveries < 2 {
		t.Fatalf("deliveries = %d, want snapshot plus at least one push", deliveries)
	}
	if lastStatus != domain.StatusInProgress {
		t.Errorf("last delivered status = %q, want In Progress", lastStatus)
	}
}

func TestFiltersSelectTheRightIncidents(t *testing.T) {
	h := newHarness()
	reporter := testPrincipal(role.BaseReporter)
	other := testPrincipal(role.BaseReporter)
	responder := testPrincipal(role.BaseResponder)
	reviewer := testPrincipal(role.BaseReviewer)

	h.report(t, reporter, "mine")
	h.report(t, other, "theirs")

	assigned := h.report(t, other, "assigned")
	if err := assigned.AssignResponder(responder, reviewer); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Save(context.Background(), assigned); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by reporter", ByReporter(reporter.UID), 1},
		{"by assignee", ByAssignee(responder.UID), 1},
		{"awaiting assignment", AwaitingAssignment(), 2},
		{"by status", ByStatus(domain.StatusInProgress), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int
			handle, err := h.manager.Subscribe(context.Background(), tt.filter,
				func(incidents []domain.Incident) { got = len(incidents) }, nil)
			if err != nil {
				t.Fatal(err)
			}
			defer handle.Cancel()
			if got != tt.want {
				t.Errorf("snapshot size = %d, want %d", got, tt.want)
			}
		})
	}
}

// midListCommit delegates to the real repository but runs a one-shot
// commit callback after the first List returns, inside the listing call.
type midListCommit struct {
	domain.Repository
	commit func()
}

func (r *midListCommit) List(ctx context.Context, filter domain.ListFilter) ([]domain.Incident, error) {
	incidents, err := r.Repository.List(ctx, filter)
	if r.commit != nil {
		commit := r.commit
		r.commit = nil
		commit()
	}
	return incidents, err
}

func TestCommitDuringSnapshotStillDelivered(t *testing.T) {
	h := newHarness()
	reporter := testPrincipal(role.BaseReporter)

	// The incident lands between the snapshot listing and its delivery;
	// the already-attached feed must cover it.
	wrapped := &midListCommit{Repository: h.store}
	wrapped.commit = func() { h.report(t, reporter, "raced") }
	manager := NewManager(wrapped, h.memory)

	var deliveries [][]domain.Incident
	handle, err := manager.Subscribe(context.Background(), ByReporter(reporter.UID),
		func(incidents []domain.Incident) { deliveries = append(deliveries, incidents) },
		nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer handle.Cancel()

	seen := false
	for _, delivery := range deliveries {
		for _, inc := range delivery {
			if inc.Title == "raced" {
				seen = true
			}
		}
	}
	if !seen {
		t.Fatalf("incident committed during the initial snapshot was never delivered (%d deliveries)", len(deliveries))
	}
}

func TestPushReflectsTheTriggeringChange(t *testing.T) {
	h := newHarness()
	reporter := testPrincipal(role.BaseReporter)
	responder := testPrincipal(role.BaseResponder)
	reviewer := testPrincipal(role.BaseReviewer)

	inc := h.report(t, reporter, "leak")

	// The filter only matches once the assignment is committed, and the
	// push for that very event must already include it.
	var got [][]domain.Incident
	handle, err := h.manager.Subscribe(context.Background(), ByAssignee(responder.UID),
		func(incidents []domain.Incident) { got = append(got, incidents) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Cancel()

	if len(got) != 1 || len(got[0]) != 0 {
		t.Fatalf("snapshot = %v, want one empty delivery", got)
	}

	if err := inc.AssignResponder(responder, reviewer); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Save(context.Background(), inc); err != nil {
		t.Fatal(err)
	}

	last := got[len(got)-1]
	if len(last) != 1 || last[0].AssignedResponderID != responder.UID {
		t.Fatalf("last delivery = %v, want the assigned incident", last)
	}
	if last[0].Status != domain.StatusInProgress {
		t.Errorf("delivered status = %q, want In Progress", last[0].Status)
	}
}

// failingList delegates to the real repository until armed, then fails
// every List.
type failingList struct {
	domain.Repository
	fail bool
}

func (r *failingList) List(ctx context.Context, filter domain.ListFilter) ([]domain.Incident, error) {
	if r.fail {
		return nil, stderrors.New("projection offline")
	}
	return r.Repository.List(ctx, filter)
}

func TestDeliveryFailureReportsOnErrorOnce(t *testing.T) {
	h := newHarness()
	reporter := testPrincipal(role.BaseReporter)
	responder := testPrincipal(role.BaseResponder)

	inc := h.report(t, reporter, "leak")

	wrapped := &failingList{Repository: h.store}
	manager := NewManager(wrapped, h.memory)

	var deliveries int
	var errs []error
	handle, err := manager.Subscribe(context.Background(), ByReporter(reporter.UID),
		func([]domain.Incident) { deliveries++ },
		func(err error) { errs = append(errs, err) })
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Cancel()

	wrapped.fail = true
	if err := inc.ApplyTransition(domain.StatusInProgress, "working", responder, ""); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Save(context.Background(), inc); err != nil {
		t.Fatal(err)
	}

	if len(errs) != 1 {
		t.Fatalf("onError calls = %d, want exactly 1", len(errs))
	}
	if !stderrors.Is(errs[0], errors.ErrSyncFailure) {
		t.Errorf("expected sync failure, got %v", errs[0])
	}

	// The subscription is torn down; recovery does not resubscribe it.
	wrapped.fail = false
	before := deliveries
	if err := inc.ApplyTransition(domain.StatusResolved, "fixed", responder, ""); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Save(context.Background(), inc); err != nil {
		t.Fatal(err)
	}
	if deliveries != before || len(errs) != 1 {
		t.Errorf("after teardown: deliveries %d -> %d, errors %d", before, deliveries, len(errs))
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	h := newHarness()
	reporter := testPrincipal(role.BaseReporter)
	responder := testPrincipal(role.BaseResponder)

	inc := h.report(t, reporter, "leak")

	var deliveries int
	handle, err := h.manager.Subscribe(context.Background(), ByReporter(reporter.UID),
		func([]domain.Incident) { deliveries++ }, nil)
	if err != nil {
		t.Fatal(err)
	}

	handle.Cancel()
	handle.Cancel() // idempotent
	after := deliveries

	if err := inc.ApplyTransition(domain.StatusInProgress, "working", responder, ""); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Save(context.Background(), inc); err != nil {
		t.Fatal(err)
	}

	if deliveries != after {
		t.Errorf("deliveries after cancel: %d -> %d", after, deliveries)
	}
}

func TestBrokenFeedReportsOnErrorOnce(t *testing.T) {
	h := newHarness()
	reporter := testPrincipal(role.BaseReporter)
	h.report(t, reporter, "leak")

	var errs []error
	handle, err := h.manager.Subscribe(context.Background(), ByReporter(reporter.UID),
		func([]domain.Incident) {},
		func(err error) { errs = append(errs, err) })
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Cancel()

	cause := stderrors.New("connection lost")
	h.memory.DropAll(cause)
	h.memory.DropAll(cause)

	if len(errs) != 1 {
		t.Fatalf("onError calls = %d, want exactly 1", len(errs))
	}
	if !stderrors.Is(errs[0], errors.ErrSyncFailure) {
		t.Errorf("expected sync failure, got %v", errs[0])
	}
}

func TestCancelledSubscriptionGetsNoError(t *testing.T) {
	h := newHarness()
	reporter := testPrincipal(role.BaseReporter)
	h.report(t, reporter, "leak")

	var errCount int
	handle, err := h.manager.Subscribe(context.Background(), ByReporter(reporter.UID),
		func([]domain.Incident) {},
		func(error) { errCount++ })
	if err != nil {
		t.Fatal(err)
	}

	handle.Cancel()
	h.memory.DropAll(stderrors.New("connection lost"))

	if errCount != 0 {
		t.Errorf("onError after cancel = %d, want 0", errCount)
	}
}
