package engine

import (
	"context"
	"fmt"

	"librarian/internal/acl"
	"librarian/internal/domain"
)

// maxChainDepth bounds ownership-chain walks against reference cycles.
const maxChainDepth = 8

// Ancestors walks a resource's ownership chain most specific first:
// Graph, Periodical, Organization. Actions and roles contribute no
// permissions of their own; the walk starts at the resource they
// belong to.
func (e *Engine) Ancestors(ctx context.Context, resourceID string) ([]acl.Ancestor, error) {
	var chain []acl.Ancestor
	id := resourceID
	for depth := 0; id != "" && depth < maxChainDepth; depth++ {
		res, err := e.loadResource(ctx, id)
		if err != nil {
			return nil, err
		}
		next := ""
		switch r := res.(type) {
		case *domain.Organization:
			chain = append(chain, acl.Ancestor{ID: r.ID, Kind: r.DocKind(), Permissions: r.Permissions})
		case *domain.Periodical:
			chain = append(chain, acl.Ancestor{ID: r.ID, Kind: r.DocKind(), Permissions: r.Permissions})
			next = r.OrganizationID
		case *domain.Graph:
			chain = append(chain, acl.Ancestor{ID: r.ID, Kind: r.DocKind(), Permissions: r.Permissions})
			next = r.PeriodicalID
		case *domain.Release:
			chain = append(chain, acl.Ancestor{ID: r.ID, Kind: r.DocKind(), Permissions: r.Permissions})
			next = r.GraphID
		case *domain.WorkflowSpecification:
			next = r.PeriodicalID
		case *domain.Role:
			next = r.SubjectID
		case *domain.Action:
			next = r.DocParent()
		default:
			return nil, fmt.Errorf("resource %s has no ownership chain", id)
		}
		id = next
	}
	return chain, nil
}

// AgentRoles returns the agent's role entries, ended ones included, on
// any of the given resources.
func (e *Engine) AgentRoles(ctx context.Context, agentID string, resourceIDs []string) ([]domain.Role, error) {
	var out []domain.Role
	for _, rid := range resourceIDs {
		entries, err := e.resourceRoles(ctx, rid)
		if err != nil {
			return nil, err
		}
		for _, r := range entries {
			if r.AgentID == agentID {
				out = append(out, *r)
			}
		}
	}
	return out, nil
}
