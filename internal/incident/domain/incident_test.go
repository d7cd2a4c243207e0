package domain

import (
	stderrors "errors"
	"testing"

	"github.com/safetrack/platform/internal/principal"
	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

func testPrincipal(base role.BaseRole) *principal.Principal {
	return &principal.Principal{
		UID:         types.NewID(),
		Email:       string(base) + "@example.com",
		DisplayName: string(base),
		BaseRole:    base,
		Permissions: role.Defaults(base),
	}
}

func newTestIncident(t *testing.T, reporter *principal.Principal) *Incident {
	t.Helper()
	inc, err := NewIncident(reporter, CreateFields{
		Title:    "Leak",
		Priority: PriorityHigh,
		Location: Location{Department: "Facilities", Room: "B-101"},
		Category: "plumbing",
	})
	if err != nil {
		t.Fatalf("NewIncident: %v", err)
	}
	inc.DomainEvents() // drain creation event
	return inc
}

func assertInvariant(t *testing.T, inc *Incident) {
	t.Helper()
	if len(inc.StatusHistory) == 0 {
		t.Fatal("history must never be empty")
	}
	if last := inc.StatusHistory[len(inc.StatusHistory)-1]; last.Status != inc.Status {
		t.Fatalf("status %q != last history entry status %q", inc.Status, last.Status)
	}
}

func TestNewIncident(t *testing.T) {
	reporter := testPrincipal(role.BaseReporter)
	inc, err := NewIncident(reporter, CreateFields{Title: "Leak", Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("NewIncident: %v", err)
	}

	if inc.Status != StatusOpen {
		t.Errorf("status = %q, want Open", inc.Status)
	}
	if len(inc.StatusHistory) != 1 {
		t.Fatalf("history length = %d, want 1", len(inc.StatusHistory))
	}
	seed := inc.StatusHistory[0]
	if seed.Status != StatusOpen || seed.Note != SeedNote || seed.ActorID != reporter.UID {
		t.Errorf("unexpected seed entry: %+v", seed)
	}
	if inc.ReporterID != reporter.UID {
		t.Error("reporter not recorded")
	}
	assertInvariant(t, inc)

	events := inc.DomainEvents()
	if len(events) != 1 || events[0].Type != EventTypeCreated {
		t.Errorf("expected one creation event, got %v", events)
	}
}

func TestNewIncidentRejections(t *testing.T) {
	t.Run("missing create permission", func(t *testing.T) {
		noPerms := &principal.Principal{UID: types.NewID(), BaseRole: role.BaseReporter}
		if _, err := NewIncident(noPerms, CreateFields{Title: "x"}); !stderrors.Is(err, errors.ErrAuthorization) {
			t.Errorf("expected authorization error, got %v", err)
		}
	})

	t.Run("empty title", func(t *testing.T) {
		reporter := testPrincipal(role.BaseReporter)
		if _, err := NewIncident(reporter, CreateFields{}); !stderrors.Is(err, errors.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown priority", func(t *testing.T) {
		reporter := testPrincipal(role.BaseReporter)
		if _, err := NewIncident(reporter, CreateFields{Title: "x", Priority: "Apocalyptic"}); !stderrors.Is(err, errors.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestTransitionEdges(t *testing.T) {
	responder := testPrincipal(role.BaseResponder)

	tests := []struct {
		name      string
		path      []Status // applied in order to reach the starting state
		requested Status
		wantOK    bool
	}{
		{"open to in progress", nil, StatusInProgress, true},
		{"open to waiting", nil, StatusWaitingForResources, false},
		{"open to resolved", nil, StatusResolved, false},
		{"in progress to waiting", []Status{StatusInProgress}, StatusWaitingForResources, true},
		{"in progress to resolved", []Status{StatusInProgress}, StatusResolved, true},
		{"waiting back to in progress", []Status{StatusInProgress, StatusWaitingForResources}, StatusInProgress, true},
		{"waiting to resolved", []Status{StatusInProgress, StatusWaitingForResources}, StatusResolved, true},
		{"waiting to open", []Status{StatusInProgress, StatusWaitingForResources}, StatusOpen, false},
		{"resolved is terminal", []Status{StatusInProgress, StatusResolved}, StatusInProgress, false},
		{"resolved to resolved", []Status{StatusInProgress, StatusResolved}, StatusResolved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := newTestIncident(t, testPrincipal(role.BaseReporter))
			for _, s := range tt.path {
				if err := inc.ApplyTransition(s, "step", responder, ""); err != nil {
					t.Fatalf("setup transition to %s: %v", s, err)
				}
			}

			before := len(inc.StatusHistory)
			err := inc.ApplyTransition(tt.requested, "note", responder, "")

			if tt.wantOK {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				if inc.Status != tt.requested {
					t.Errorf("status = %q, want %q", inc.Status, tt.requested)
				}
				if len(inc.StatusHistory) != before+1 {
					t.Errorf("history grew by %d, want 1", len(inc.StatusHistory)-before)
				}
			} else {
				if !stderrors.Is(err, errors.ErrIllegalTransition) {
					t.Fatalf("expected illegal transition error, got %v", err)
				}
				if len(inc.StatusHistory) != before {
					t.Error("rejected transition must not touch history")
				}
			}
			assertInvariant(t, inc)
		})
	}
}

func TestTransitionPreconditionOrder(t *testing.T) {
	t.Run("reporter always gets authorization error", func(t *testing.T) {
		reporter := testPrincipal(role.BaseReporter)
		for _, requested := range []Status{StatusOpen, StatusInProgress, StatusWaitingForResources, StatusResolved} {
			inc := newTestIncident(t, reporter)
			err := inc.ApplyTransition(requested, "note", reporter, "")
			if !stderrors.Is(err, errors.ErrAuthorization) {
				t.Errorf("requested %s: expected authorization error, got %v", requested, err)
			}
		}
	})

	t.Run("permission is checked before legality", func(t *testing.T) {
		reporter := testPrincipal(role.BaseReporter)
		inc := newTestIncident(t, reporter)
		// Open -> Resolved is also illegal, but the permission failure
		// must win.
		err := inc.ApplyTransition(StatusResolved, "", reporter, "")
		if !stderrors.Is(err, errors.ErrAuthorization) {
			t.Errorf("expected authorization error, got %v", err)
		}
	})

	t.Run("legality is checked before note validation", func(t *testing.T) {
		responder := testPrincipal(role.BaseResponder)
		inc := newTestIncident(t, testPrincipal(role.BaseReporter))
		// Open -> Resolved with empty note: the edge is illegal and the
		// note is missing; the edge failure must win.
		err := inc.ApplyTransition(StatusResolved, "", responder, "")
		if !stderrors.Is(err, errors.ErrIllegalTransition) {
			t.Errorf("expected illegal transition error, got %v", err)
		}
	})

	t.Run("custom role permission is honored over base role", func(t *testing.T) {
		// A reporter-family principal whose custom role grants edit.
		editor := &principal.Principal{
			UID:         types.NewID(),
			BaseRole:    role.BaseReporter,
			Permissions: role.PermissionSet{role.PermViewIncidents, role.PermCreateIncidents, role.PermEditIncidents},
		}
		inc := newTestIncident(t, testPrincipal(role.BaseReporter))
		if err := inc.ApplyTransition(StatusInProgress, "picking up", editor, ""); err != nil {
			t.Errorf("custom-role editor should transition, got %v", err)
		}
	})
}

func TestResolveRequiresNote(t *testing.T) {
	responder := testPrincipal(role.BaseResponder)
	inc := newTestIncident(t, testPrincipal(role.BaseReporter))

	if err := inc.ApplyTransition(StatusInProgress, "en route", responder, ""); err != nil {
		t.Fatalf("open to in progress: %v", err)
	}

	err := inc.ApplyTransition(StatusResolved, "", responder, "")
	if !stderrors.Is(err, errors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(inc.StatusHistory) != 2 {
		t.Errorf("history length = %d, want unchanged 2", len(inc.StatusHistory))
	}
	if inc.Status != StatusInProgress {
		t.Errorf("status = %q, want unchanged In Progress", inc.Status)
	}

	if err := inc.ApplyTransition(StatusResolved, "replaced valve", responder, "https://media.example/proof.jpg"); err != nil {
		t.Fatalf("resolve with note: %v", err)
	}
	last := inc.StatusHistory[len(inc.StatusHistory)-1]
	if last.Status != StatusResolved || last.Note != "replaced valve" || last.ProofRef == "" {
		t.Errorf("unexpected resolution entry: %+v", last)
	}
	assertInvariant(t, inc)
}

func TestAssignResponder(t *testing.T) {
	reviewer := testPrincipal(role.BaseReviewer)
	responder := testPrincipal(role.BaseResponder)

	t.Run("assignment on open incident is one atomic append", func(t *testing.T) {
		inc := newTestIncident(t, testPrincipal(role.BaseReporter))

		if err := inc.AssignResponder(responder, reviewer); err != nil {
			t.Fatalf("AssignResponder: %v", err)
		}
		if inc.AssignedResponderID != responder.UID {
			t.Error("responder not assigned")
		}
		if inc.Status != StatusInProgress {
			t.Errorf("status = %q, want In Progress", inc.Status)
		}
		if len(inc.StatusHistory) != 2 {
			t.Fatalf("history length = %d, want 2 (single entry for assignment+transition)", len(inc.StatusHistory))
		}
		entry := inc.StatusHistory[1]
		if entry.Kind != HistoryKindAssignment || entry.ResponderID != responder.UID || entry.Status != StatusInProgress {
			t.Errorf("unexpected assignment entry: %+v", entry)
		}
		events := inc.DomainEvents()
		if len(events) != 1 || events[0].Type != EventTypeResponderAssigned {
			t.Errorf("expected one assignment event, got %v", events)
		}
		assertInvariant(t, inc)
	})

	t.Run("assignment on in-progress incident keeps status", func(t *testing.T) {
		inc := newTestIncident(t, testPrincipal(role.BaseReporter))
		if err := inc.ApplyTransition(StatusInProgress, "working", responder, ""); err != nil {
			t.Fatal(err)
		}

		other := testPrincipal(role.BaseResponder)
		if err := inc.AssignResponder(other, reviewer); err != nil {
			t.Fatalf("AssignResponder: %v", err)
		}
		if inc.Status != StatusInProgress {
			t.Errorf("status = %q, want unchanged In Progress", inc.Status)
		}
		assertInvariant(t, inc)
	})

	t.Run("reassignment appends a new entry", func(t *testing.T) {
		inc := newTestIncident(t, testPrincipal(role.BaseReporter))
		first := testPrincipal(role.BaseResponder)
		second := testPrincipal(role.BaseResponder)

		if err := inc.AssignResponder(first, reviewer); err != nil {
			t.Fatal(err)
		}
		if err := inc.AssignResponder(second, reviewer); err != nil {
			t.Fatal(err)
		}

		if inc.AssignedResponderID != second.UID {
			t.Error("reassignment not applied")
		}
		var assignments []StatusHistoryEntry
		for _, e := range inc.StatusHistory {
			if e.Kind == HistoryKindAssignment {
				assignments = append(assignments, e)
			}
		}
		if len(assignments) != 2 {
			t.Errorf("assignment entries = %d, want 2 (responder history reconstructable)", len(assignments))
		}
	})

	t.Run("rejections", func(t *testing.T) {
		inc := newTestIncident(t, testPrincipal(role.BaseReporter))

		if err := inc.AssignResponder(responder, responder); !stderrors.Is(err, errors.ErrAuthorization) {
			t.Errorf("actor without assign permission: got %v", err)
		}
		if err := inc.AssignResponder(reviewer, reviewer); !stderrors.Is(err, errors.ErrValidation) {
			t.Errorf("non-responder assignee: got %v", err)
		}

		if err := inc.ApplyTransition(StatusInProgress, "", responder, ""); err != nil {
			t.Fatal(err)
		}
		if err := inc.ApplyTransition(StatusResolved, "done", responder, ""); err != nil {
			t.Fatal(err)
		}
		if err := inc.AssignResponder(responder, reviewer); !stderrors.Is(err, errors.ErrIllegalTransition) {
			t.Errorf("assignment on resolved incident: got %v", err)
		}
	})
}

func TestCanView(t *testing.T) {
	reporter := testPrincipal(role.BaseReporter)
	otherReporter := testPrincipal(role.BaseReporter)
	responder := testPrincipal(role.BaseResponder)
	otherResponder := testPrincipal(role.BaseResponder)
	reviewer := testPrincipal(role.BaseReviewer)
	admin := testPrincipal(role.BaseAdmin)

	inc := newTestIncident(t, reporter)
	if err := inc.AssignResponder(responder, reviewer); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		p    *principal.Principal
		want bool
	}{
		{"reporter sees own", reporter, true},
		{"other reporter blocked", otherReporter, false},
		{"assigned responder sees it", responder, true},
		{"unrelated responder blocked", otherResponder, false},
		{"reviewer sees all", reviewer, true},
		{"admin sees all", admin, true},
		{"nil principal blocked", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inc.CanView(tt.p); got != tt.want {
				t.Errorf("CanView = %v, want %v", got, tt.want)
			}
		})
	}
}

// The end-to-end lifecycle: report, transition, failed resolve, resolve.
func TestIncidentLifecycleScenario(t *testing.T) {
	reporter := testPrincipal(role.BaseReporter)
	responder := testPrincipal(role.BaseResponder)

	inc, err := NewIncident(reporter, CreateFields{Title: "Leak", Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inc.Status != StatusOpen || len(inc.StatusHistory) != 1 {
		t.Fatalf("after create: status=%q history=%d", inc.Status, len(inc.StatusHistory))
	}

	if err := inc.ApplyTransition(StatusInProgress, "en route", responder, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if inc.Status != StatusInProgress || len(inc.StatusHistory) != 2 {
		t.Fatalf("after transition: status=%q history=%d", inc.Status, len(inc.StatusHistory))
	}

	if err := inc.ApplyTransition(StatusResolved, "", responder, ""); err == nil {
		t.Fatal("empty-note resolve must be rejected")
	}
	if len(inc.StatusHistory) != 2 {
		t.Fatalf("after rejected resolve: history=%d, want 2", len(inc.StatusHistory))
	}
	assertInvariant(t, inc)
}
