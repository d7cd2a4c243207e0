package infrastructure

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/safetrack/platform/internal/eventstore"
	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

func testPrincipal(base role.BaseRole) *principal.Principal {
	return &principal.Principal{
		UID:         types.NewID(),
		DisplayName: string(base),
		BaseRole:    base,
		Permissions: role.Defaults(base),
	}
}

func newTestStore() *Store {
	return NewStore(eventstore.NewMemoryStore(), NewMemoryProjection())
}

func createIncident(t *testing.T, store *Store, reporter *principal.Principal) *domain.Incident {
	t.Helper()
	inc, err := domain.NewIncident(reporter, domain.CreateFields{
		Title:    "Broken light",
		Priority: domain.PriorityLow,
		Location: domain.Location{Department: "Maintenance", Area: "Hall 2"},
		Category: "electrical",
	})
	if err != nil {
		t.Fatalf("NewIncident: %v", err)
	}
	if err := store.Save(context.Background(), inc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return inc
}

func TestStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	reporter := testPrincipal(role.BaseReporter)

	inc := createIncident(t, store, reporter)
	if inc.Version != 1 {
		t.Errorf("version after create = %d, want 1", inc.Version)
	}

	loaded, err := store.FindByID(ctx, inc.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if loaded.Status != domain.StatusOpen || len(loaded.StatusHistory) != 1 {
		t.Errorf("loaded status=%q history=%d", loaded.Status, len(loaded.StatusHistory))
	}
	if loaded.Version != 1 {
		t.Errorf("loaded version = %d, want 1", loaded.Version)
	}
}

func TestStoreVersionMatchesHistoryLength(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	responder := testPrincipal(role.BaseResponder)

	inc := createIncident(t, store, testPrincipal(role.BaseReporter))

	if err := inc.ApplyTransition(domain.StatusInProgress, "on it", responder, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, inc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.FindByID(ctx, inc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Version != len(loaded.StatusHistory) {
		t.Errorf("version %d != history length %d", loaded.Version, len(loaded.StatusHistory))
	}
}

func TestStoreConcurrentWritersConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	responder := testPrincipal(role.BaseResponder)
	reviewer := testPrincipal(role.BaseReviewer)

	created := createIncident(t, store, testPrincipal(role.BaseReporter))

	// Two sessions load the same version.
	first, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := first.ApplyTransition(domain.StatusInProgress, "session A", responder, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}

	if err := second.AssignResponder(responder, reviewer); err != nil {
		t.Fatal(err)
	}
	err = store.Save(ctx, second)
	if !stderrors.Is(err, errors.ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}

	// Neither update was dropped: the first landed, the second re-fetches
	// and re-applies.
	refetched, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refetched.Status != domain.StatusInProgress || len(refetched.StatusHistory) != 2 {
		t.Fatalf("first write lost: status=%q history=%d", refetched.Status, len(refetched.StatusHistory))
	}
	if err := refetched.AssignResponder(responder, reviewer); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, refetched); err != nil {
		t.Fatalf("re-applied save: %v", err)
	}

	final, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(final.StatusHistory) != 3 || final.AssignedResponderID != responder.UID {
		t.Errorf("re-applied update missing: history=%d assigned=%s", len(final.StatusHistory), final.AssignedResponderID)
	}
}

func TestStoreRebuildMatchesProjection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	responder := testPrincipal(role.BaseResponder)
	reviewer := testPrincipal(role.BaseReviewer)

	inc := createIncident(t, store, testPrincipal(role.BaseReporter))
	if err := inc.AssignResponder(responder, reviewer); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, inc); err != nil {
		t.Fatal(err)
	}
	if err := inc.ApplyTransition(domain.StatusResolved, "fixed", responder, "https://media.example/p.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, inc); err != nil {
		t.Fatal(err)
	}

	rebuilt, err := store.Rebuild(ctx, inc.ID)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	projected, err := store.FindByID(ctx, inc.ID)
	if err != nil {
		t.Fatal(err)
	}

	if rebuilt.Status != projected.Status {
		t.Errorf("rebuilt status %q != projected %q", rebuilt.Status, projected.Status)
	}
	if rebuilt.Version != projected.Version {
		t.Errorf("rebuilt version %d != projected %d", rebuilt.Version, projected.Version)
	}
	if len(rebuilt.StatusHistory) != len(projected.StatusHistory) {
		t.Fatalf("rebuilt history %d != projected %d", len(rebuilt.StatusHistory), len(projected.StatusHistory))
	}
	for i := range rebuilt.StatusHistory {
		r, p := rebuilt.StatusHistory[i], projected.StatusHistory[i]
		if r.Kind != p.Kind || r.Status != p.Status || r.Note != p.Note || r.ActorID != p.ActorID {
			t.Errorf("entry %d mismatch: %+v vs %+v", i, r, p)
		}
	}
	if rebuilt.AssignedResponderID != responder.UID {
		t.Error("assignment not reconstructed from log")
	}
	if rebuilt.Title != "Broken light" || rebuilt.Location.Department != "Maintenance" {
		t.Error("creation fields not reconstructed from log")
	}
}

func TestStoreHistoryNeverShrinks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	responder := testPrincipal(role.BaseResponder)

	inc := createIncident(t, store, testPrincipal(role.BaseReporter))

	prev := 0
	for _, step := range []struct {
		status domain.Status
		note   string
	}{
		{domain.StatusInProgress, "start"},
		{domain.StatusWaitingForResources, "need parts"},
		{domain.StatusInProgress, "parts arrived"},
		{domain.StatusResolved, "done"},
	} {
		if err := inc.ApplyTransition(step.status, step.note, responder, ""); err != nil {
			t.Fatal(err)
		}
		if err := store.Save(ctx, inc); err != nil {
			t.Fatal(err)
		}
		loaded, err := store.FindByID(ctx, inc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(loaded.StatusHistory) <= prev {
			t.Fatalf("history shrank: %d -> %d", prev, len(loaded.StatusHistory))
		}
		prev = len(loaded.StatusHistory)
	}
}
