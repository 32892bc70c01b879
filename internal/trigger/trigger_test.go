package trigger_test

import (
	"context"
	"fmt"
	"testing"

	"librarian/internal/domain"
	"librarian/internal/trigger"
)

// fakeSteps advances actions in memory and recurses into the engine,
// mirroring how the dispatcher wires itself in as the Stepper.
type fakeSteps struct {
	engine   *trigger.Engine
	actions  []*domain.Action
	advanced []string
}

func (f *fakeSteps) GraphActions(ctx context.Context, graphID string) ([]*domain.Action, error) {
	return f.actions, nil
}

func (f *fakeSteps) Advance(ctx context.Context, a *domain.Action, toStatus string) error {
	from := a.Status
	a.Status = toStatus
	f.advanced = append(f.advanced, fmt.Sprintf("%s:%s", a.ID, toStatus))
	return f.engine.Cascade(ctx, a, from, toStatus)
}

func newFake(actions ...*domain.Action) *fakeSteps {
	f := &fakeSteps{actions: actions}
	f.engine = &trigger.Engine{Steps: f}
	return f
}

func action(id, parent, status string) *domain.Action {
	return &domain.Action{
		Meta:           domain.Meta{ID: id, Type: domain.TypeAction},
		GraphID:        "g1",
		ParentActionID: parent,
		Status:         status,
	}
}

func TestActivationOnParentStatus(t *testing.T) {
	parent := action("p", "", domain.ActiveActionStatus)
	child := action("c", "p", domain.PotentialActionStatus)
	child.ActivateOn = trigger.OnObjectStagedActionStatus
	f := newFake(parent, child)

	parent.Status = domain.StagedActionStatus
	if err := f.engine.Cascade(context.Background(), parent, domain.ActiveActionStatus, domain.StagedActionStatus); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if child.Status != domain.ActiveActionStatus {
		t.Fatalf("child status = %s, want Active", child.Status)
	}
}

func TestReplaySkippedStatuses(t *testing.T) {
	parent := action("p", "", domain.ActiveActionStatus)
	onStaged := action("c1", "p", domain.PotentialActionStatus)
	onStaged.ActivateOn = trigger.OnObjectStagedActionStatus
	onCompleted := action("c2", "p", domain.PotentialActionStatus)
	onCompleted.ActivateOn = trigger.OnObjectCompletedActionStatus
	f := newFake(parent, onStaged, onCompleted)

	// Jumping Active -> Completed must replay Staged and Endorsed so
	// downstream state matches the step-by-step path.
	parent.Status = domain.CompletedActionStatus
	if err := f.engine.Cascade(context.Background(), parent, domain.ActiveActionStatus, domain.CompletedActionStatus); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if onStaged.Status != domain.ActiveActionStatus {
		t.Fatalf("staged-trigger child = %s, want Active", onStaged.Status)
	}
	if onCompleted.Status != domain.ActiveActionStatus {
		t.Fatalf("completed-trigger child = %s, want Active", onCompleted.Status)
	}
}

func TestEndorseAndCompleteTriggers(t *testing.T) {
	parent := action("p", "", domain.ActiveActionStatus)
	endorsee := action("c1", "p", domain.ActiveActionStatus)
	endorsee.EndorseOn = trigger.OnObjectCompletedActionStatus
	completer := action("c2", "p", domain.ActiveActionStatus)
	completer.CompleteOn = trigger.OnObjectCompletedActionStatus
	f := newFake(parent, endorsee, completer)

	parent.Status = domain.CompletedActionStatus
	if err := f.engine.Cascade(context.Background(), parent, domain.ActiveActionStatus, domain.CompletedActionStatus); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if endorsee.Status != domain.EndorsedActionStatus {
		t.Fatalf("endorsee = %s, want Endorsed", endorsee.Status)
	}
	if completer.Status != domain.CompletedActionStatus {
		t.Fatalf("completer = %s, want Completed", completer.Status)
	}
}

func TestRequiresGatesOnFullSet(t *testing.T) {
	r1 := action("r1", "", domain.ActiveActionStatus)
	r2 := action("r2", "", domain.ActiveActionStatus)
	dep := action("d", "", domain.PotentialActionStatus)
	dep.Requires = []string{"r1", "r2"}
	f := newFake(r1, r2, dep)
	ctx := context.Background()

	r1.Status = domain.CompletedActionStatus
	if err := f.engine.Cascade(ctx, r1, domain.ActiveActionStatus, domain.CompletedActionStatus); err != nil {
		t.Fatalf("cascade r1: %v", err)
	}
	if dep.Status != domain.PotentialActionStatus {
		t.Fatalf("dependent activated before full set completed: %s", dep.Status)
	}

	r2.Status = domain.CompletedActionStatus
	if err := f.engine.Cascade(ctx, r2, domain.ActiveActionStatus, domain.CompletedActionStatus); err != nil {
		t.Fatalf("cascade r2: %v", err)
	}
	if dep.Status != domain.ActiveActionStatus {
		t.Fatalf("dependent = %s, want Active", dep.Status)
	}
}

func TestCanceledMultiplexInstanceSettlesRequires(t *testing.T) {
	r1 := action("r1", "", domain.CompletedActionStatus)
	r1.MaxInstances = 2
	r2 := action("r2", "", domain.ActiveActionStatus)
	r2.MaxInstances = 2
	dep := action("d", "", domain.PotentialActionStatus)
	dep.Requires = []string{"r1", "r2"}
	f := newFake(r1, r2, dep)

	// Canceling the open instance settles the set; the completed one
	// satisfies the remaining requirement.
	r2.Status = domain.CanceledActionStatus
	if err := f.engine.Cascade(context.Background(), r2, domain.ActiveActionStatus, domain.CanceledActionStatus); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if dep.Status != domain.ActiveActionStatus {
		t.Fatalf("dependent = %s, want Active after set settled", dep.Status)
	}
}

func TestTerminalSiblingsAreSkipped(t *testing.T) {
	parent := action("p", "", domain.ActiveActionStatus)
	canceled := action("c1", "p", domain.CanceledActionStatus)
	canceled.ActivateOn = trigger.OnObjectCompletedActionStatus
	f := newFake(parent, canceled)

	parent.Status = domain.CompletedActionStatus
	if err := f.engine.Cascade(context.Background(), parent, domain.ActiveActionStatus, domain.CompletedActionStatus); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if canceled.Status != domain.CanceledActionStatus {
		t.Fatalf("canceled sibling revived: %s", canceled.Status)
	}
	if len(f.advanced) != 0 {
		t.Fatalf("unexpected advances: %v", f.advanced)
	}
}
