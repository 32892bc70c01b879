package roles_test

import (
	"fmt"
	"testing"
	"time"

	"librarian/internal/domain"
	"librarian/internal/roles"
)

func newManager() *roles.Manager {
	n := 0
	return &roles.Manager{
		Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("role-%d", n)
		},
	}
}

func TestInviteAcceptLifecycle(t *testing.T) {
	m := newManager()
	invite := m.NewInvite("g1", "reviewer", "agent-1", "rev@example.org")
	if !invite.Pending || invite.Active() {
		t.Fatalf("fresh invite: pending=%v active=%v", invite.Pending, invite.Active())
	}
	if err := m.Accept(invite, "agent-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !invite.Active() || invite.StartDate == "" {
		t.Fatalf("accepted role: %+v", invite)
	}
	// accepting twice is an invalid transition
	if err := m.Accept(invite, "agent-1"); err == nil {
		t.Fatal("double accept allowed")
	}
}

func TestDeferredAgentResolution(t *testing.T) {
	m := newManager()
	invite := m.NewInvite("g1", "reviewer", "", "rev@example.org")
	if err := m.Accept(invite, "agent-9"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if invite.AgentID != "agent-9" {
		t.Fatalf("agent not resolved on accept: %q", invite.AgentID)
	}
}

func TestRejectClosesInvite(t *testing.T) {
	m := newManager()
	invite := m.NewInvite("g1", "reviewer", "agent-1", "")
	if err := m.Reject(invite); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if invite.EndDate == "" || invite.Active() {
		t.Fatalf("rejected invite: %+v", invite)
	}
	if err := m.Accept(invite, "agent-1"); err == nil {
		t.Fatal("accepting a rejected invite allowed")
	}
}

func TestLeaveKeepsHistory(t *testing.T) {
	m := newManager()
	first := m.Join("p1", "editor", "agent-1")
	if !first.Active() {
		t.Fatal("joined role not active")
	}
	if err := m.Leave(first); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if first.EndDate == "" {
		t.Fatal("leave left no end date")
	}
	if err := m.Leave(first); err == nil {
		t.Fatal("leaving twice allowed")
	}

	// Re-inviting after leaving yields an independent entry; the
	// closed one stays.
	second := m.NewInvite("p1", "editor", "agent-1", "")
	if err := m.Accept(second, "agent-1"); err != nil {
		t.Fatalf("re-accept: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("re-invite reused the closed entry")
	}
	if !second.Active() || first.Active() {
		t.Fatalf("entries: first active=%v second active=%v", first.Active(), second.Active())
	}
}

func TestAssignUnassign(t *testing.T) {
	m := newManager()
	def := &domain.Role{Meta: domain.Meta{ID: "role-default"}, RoleName: "reviewer"}
	target := &domain.Action{
		Meta:         domain.Meta{ID: "a1"},
		Agent:        &domain.AgentRef{Role: def},
		DefaultAgent: &domain.AgentRef{Role: def},
	}

	// nothing to unassign while the default agent holds it
	if err := m.Unassign(target, "editor-1"); err == nil {
		t.Fatal("unassign of default agent allowed")
	}

	assignee := m.Join("g1", "reviewer", "agent-2")
	m.Assign(target, assignee, "editor-1")
	if target.Agent.Ref() != assignee.ID {
		t.Fatalf("assigned agent = %q", target.Agent.Ref())
	}
	if len(target.Participants) != 1 || target.Participants[0].RoleName != "assigner" {
		t.Fatalf("participants: %+v", target.Participants)
	}

	if err := m.Unassign(target, "editor-1"); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if target.Agent.Ref() != def.ID {
		t.Fatalf("default agent not restored: %q", target.Agent.Ref())
	}
	if len(target.Participants) != 2 || target.Participants[1].RoleName != "unassigner" {
		t.Fatalf("participants: %+v", target.Participants)
	}
}
