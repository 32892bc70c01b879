package acl

import (
	"context"

	"librarian/internal/domain"
	"librarian/internal/errs"
)

// Ancestor is one level of a resource's ownership chain together with
// the permissions declared there. Chains are ordered most specific
// first (e.g. Graph, Periodical, Organization).
type Ancestor struct {
	ID          string
	Kind        string
	Permissions []domain.Permission
}

// Fetcher supplies ownership chains and role entries. The engine
// implements it over the document store.
type Fetcher interface {
	Ancestors(ctx context.Context, resourceID string) ([]Ancestor, error)
	// AgentRoles returns the agent's role entries attached to any of
	// the given resources, ended entries included.
	AgentRoles(ctx context.Context, agentID string, resourceIDs []string) ([]domain.Role, error)
}

// Checker resolves permission checks against a snapshot of the fetched
// ancestor documents, so repeated checks within one request avoid
// redundant store round-trips.
type Checker struct {
	AgentID string
	chain   []Ancestor
	roles   map[string][]domain.Role // subject resource id -> entries
	roleIDs map[string]bool
}

// NewChecker fetches the ownership chain of resourceID and the agent's
// roles on it. An empty agentID builds an anonymous checker.
func NewChecker(ctx context.Context, f Fetcher, agentID, resourceID string) (*Checker, error) {
	chain, err := f.Ancestors(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	c := &Checker{
		AgentID: agentID,
		chain:   chain,
		roles:   map[string][]domain.Role{},
		roleIDs: map[string]bool{},
	}
	if agentID == "" {
		return c, nil
	}
	ids := make([]string, 0, len(chain))
	for _, a := range chain {
		ids = append(ids, a.ID)
	}
	entries, err := f.AgentRoles(ctx, agentID, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range entries {
		c.roles[r.SubjectID] = append(c.roles[r.SubjectID], r)
		if r.Active() {
			c.roleIDs[r.ID] = true
		}
	}
	return c, nil
}

// Check reports whether any permission entry of the requested type,
// declared at any chain level, resolves positively for the agent.
func (c *Checker) Check(permissionType string) bool {
	for _, level := range c.chain {
		for _, perm := range level.Permissions {
			if perm.PermissionType != permissionType {
				continue
			}
			for _, grantee := range perm.Grantee {
				if c.granteeMatches(grantee) {
					return true
				}
			}
		}
	}
	return false
}

// CheckRead is Check(ReadPermission) with a typed error side channel.
func (c *Checker) CheckRead() (bool, error) {
	if c.Check(domain.ReadPermission) {
		return true, nil
	}
	return false, errs.PermissionDenied("agent %q lacks %s", c.AgentID, domain.ReadPermission)
}

// PublicAvailability asks whether the public audience holds
// ReadPermission on the chain, independent of any agent.
func (c *Checker) PublicAvailability() bool {
	for _, level := range c.chain {
		for _, perm := range level.Permissions {
			if perm.PermissionType != domain.ReadPermission {
				continue
			}
			for _, grantee := range perm.Grantee {
				if grantee.AudienceType == domain.PublicAudience {
					return true
				}
			}
		}
	}
	return false
}

// HasAnyRole reports whether the agent holds any active role on the
// chain. Participants read the resources they work on even without an
// explicit read grant.
func (c *Checker) HasAnyRole() bool {
	for _, entries := range c.roles {
		for _, r := range entries {
			if r.Active() {
				return true
			}
		}
	}
	return false
}

// HasAudienceRole reports whether the agent holds an active role of
// the given name anywhere on the chain. Template-default agents are
// declared by role name, so perform checks route through here.
func (c *Checker) HasAudienceRole(roleName string) bool {
	return c.hasAudienceRole(roleName)
}

func (c *Checker) granteeMatches(g domain.Grantee) bool {
	switch {
	case g.AudienceType == domain.PublicAudience:
		return true
	case g.AudienceType == domain.UserAudience:
		return c.AgentID != ""
	case g.AudienceType != "":
		return c.hasAudienceRole(g.AudienceType)
	case g.ID != "":
		return g.ID == c.AgentID || c.roleIDs[g.ID]
	}
	return false
}

// hasAudienceRole walks the chain most specific first and accepts the
// first level where the agent holds an active role of the audience's
// name.
func (c *Checker) hasAudienceRole(audienceType string) bool {
	for _, level := range c.chain {
		for _, r := range c.roles[level.ID] {
			if r.RoleName == audienceType && r.Active() {
				return true
			}
		}
	}
	return false
}
