package roles

import (
	"time"

	"github.com/google/uuid"

	"librarian/internal/domain"
	"librarian/internal/errs"
)

// Manager implements role attachment semantics. Role entries are
// append-only: Leave closes an entry with an end date, it never
// removes it, and a later re-invite creates an independent entry.
type Manager struct {
	Now   func() time.Time
	NewID func() string
}

func NewManager() *Manager {
	return &Manager{Now: time.Now, NewID: uuid.NewString}
}

func (m *Manager) now() string {
	return m.Now().UTC().Format(time.RFC3339)
}

// NewInvite creates a pending role entry. AgentID may be empty when
// the invite targets an email with no matching account yet; resolution
// is deferred until a matching account registers.
func (m *Manager) NewInvite(subjectID, roleName, agentID, email string) *domain.Role {
	now := m.now()
	return &domain.Role{
		Meta: domain.Meta{
			ID:          m.NewID(),
			Type:        domain.TypeRole,
			DateCreated: now,
		},
		AgentID:   agentID,
		Email:     email,
		RoleName:  roleName,
		SubjectID: subjectID,
		Pending:   true,
	}
}

// Accept resolves a pending invite into an attached role.
func (m *Manager) Accept(invite *domain.Role, agentID string) error {
	if !invite.Pending {
		return errs.InvalidTransition("role %s is not a pending invitation", invite.ID)
	}
	if invite.EndDate != "" {
		return errs.InvalidTransition("invitation %s was already rejected", invite.ID)
	}
	if invite.AgentID == "" {
		invite.AgentID = agentID
	}
	invite.Pending = false
	invite.StartDate = m.now()
	invite.DateModified = m.now()
	return nil
}

// Reject closes a pending invite without attaching it.
func (m *Manager) Reject(invite *domain.Role) error {
	if !invite.Pending {
		return errs.InvalidTransition("role %s is not a pending invitation", invite.ID)
	}
	invite.EndDate = m.now()
	invite.DateModified = m.now()
	return nil
}

// Join self-attaches a role; eligibility is the caller's concern.
func (m *Manager) Join(subjectID, roleName, agentID string) *domain.Role {
	now := m.now()
	return &domain.Role{
		Meta: domain.Meta{
			ID:          m.NewID(),
			Type:        domain.TypeRole,
			DateCreated: now,
		},
		AgentID:   agentID,
		RoleName:  roleName,
		SubjectID: subjectID,
		StartDate: now,
	}
}

// Leave sets the role's end date. The entry stays; history is never
// removed.
func (m *Manager) Leave(role *domain.Role) error {
	if role.EndDate != "" {
		return errs.InvalidTransition("role %s already ended on %s", role.ID, role.EndDate)
	}
	role.EndDate = m.now()
	role.DateModified = m.now()
	return nil
}

// Assign substitutes the active agent on a target action and records
// the assigner participant entry.
func (m *Manager) Assign(target *domain.Action, role *domain.Role, assignerID string) {
	target.Agent = &domain.AgentRef{Role: role}
	target.Participants = append(target.Participants, domain.Participant{
		RoleName: "assigner",
		AgentID:  assignerID,
		Date:     m.now(),
	})
}

// Unassign restores the action's template default agent. Unassigning
// an action already carrying its default agent is refused.
func (m *Manager) Unassign(target *domain.Action, unassignerID string) error {
	if target.Agent.Ref() == "" || (target.DefaultAgent != nil && target.Agent.Ref() == target.DefaultAgent.Ref()) {
		return errs.InvalidTransition("action %s has no assigned agent to remove", target.ID)
	}
	target.Agent = target.DefaultAgent
	target.Participants = append(target.Participants, domain.Participant{
		RoleName: "unassigner",
		AgentID:  unassignerID,
		Date:     m.now(),
	})
	return nil
}
