package engine

import (
	"context"

	"librarian/internal/acl"
	"librarian/internal/domain"
	"librarian/internal/errs"
)

// GetOptions qualifies one read.
type GetOptions struct {
	Agent     string
	BypassACL bool
	// PotentialActions selects action embedding: nil or false for
	// none, true or "all" for every attached action, "dashboard" for
	// actionable ones, or a filter map such as
	// {"actionType": "ReviewAction"}.
	PotentialActions any
}

// GetResult is a resolved resource with its owning parent document and
// its embedded actions.
type GetResult struct {
	Resource domain.Persistable
	// Parent is the next document up the ownership chain (the
	// periodical of a graph, the graph of an action), when one exists.
	Parent           domain.Persistable
	PotentialActions []*domain.Action
}

const (
	embedNone      = ""
	embedAll       = "all"
	embedDashboard = "dashboard"
	embedFilter    = "filter"
)

type embedSpec struct {
	mode   string
	filter map[string]string
}

func parseEmbed(v any) embedSpec {
	switch val := v.(type) {
	case nil:
		return embedSpec{}
	case bool:
		if val {
			return embedSpec{mode: embedAll}
		}
		return embedSpec{}
	case string:
		switch val {
		case "true", embedAll:
			return embedSpec{mode: embedAll}
		case embedDashboard:
			return embedSpec{mode: embedDashboard}
		}
		return embedSpec{}
	case map[string]any:
		f := map[string]string{}
		for k, raw := range val {
			if s, ok := raw.(string); ok {
				f[k] = s
			}
		}
		return embedSpec{mode: embedFilter, filter: f}
	case map[string]string:
		return embedSpec{mode: embedFilter, filter: val}
	}
	return embedSpec{}
}

func (s embedSpec) match(a *domain.Action) bool {
	switch s.mode {
	case embedAll:
		return true
	case embedDashboard:
		return !domain.IsTerminalStatus(a.Status)
	case embedFilter:
		if t, ok := s.filter["actionType"]; ok && a.ActionType != t {
			return false
		}
		if st, ok := s.filter["actionStatus"]; ok && a.Status != st {
			return false
		}
		return true
	}
	return false
}

// Get resolves a document, enforcing read access, and embeds attached
// actions when requested.
func (e *Engine) Get(ctx context.Context, id string, opts GetOptions) (*GetResult, error) {
	res, err := e.loadResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if !opts.BypassACL {
		c, err := acl.NewChecker(ctx, e, opts.Agent, id)
		if err != nil {
			return nil, err
		}
		allowed := c.PublicAvailability() ||
			c.Check(domain.ReadPermission) ||
			c.Check(domain.WritePermission) ||
			c.Check(domain.AdminPermission) ||
			c.HasAnyRole()
		if !allowed {
			return nil, errs.PermissionDenied("agent %q may not read %s", opts.Agent, id)
		}
	}

	out := &GetResult{Resource: res}
	if pid := res.DocParent(); pid != "" {
		parent, err := e.loadResource(ctx, pid)
		switch {
		case err == nil:
			out.Parent = parent
		case errs.StatusOf(err) != 404:
			return nil, err
		}
	}
	embed := parseEmbed(opts.PotentialActions)
	if embed.mode == embedNone {
		return out, nil
	}

	scope := id
	if rel, ok := res.(*domain.Release); ok {
		scope = rel.GraphID
	}
	actions, err := e.GraphActions(ctx, scope)
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		if embed.match(a) {
			out.PotentialActions = append(out.PotentialActions, a)
		}
	}
	return out, nil
}

// PublicAvailability reports whether the public audience can read the
// resource, independent of any caller.
func (e *Engine) PublicAvailability(ctx context.Context, id string) (bool, error) {
	c, err := acl.NewChecker(ctx, e, "", id)
	if err != nil {
		return false, err
	}
	return c.PublicAvailability(), nil
}
