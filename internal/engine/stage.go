package engine

import (
	"context"

	"librarian/internal/domain"
	"librarian/internal/errs"
	"librarian/internal/workflow"
)

// pickRoute selects the potentialResult entry matching the declared
// revision type, falling back to the unconditional entry.
func pickRoute(results []domain.PotentialResult, revisionType string) *domain.PotentialResult {
	for i := range results {
		if results[i].RevisionType == revisionType {
			return &results[i]
		}
	}
	if revisionType != "" {
		for i := range results {
			if results[i].RevisionType == "" {
				return &results[i]
			}
		}
	}
	return nil
}

// routeTransition resolves a completing transition action's
// potentialResult route and instantiates the target stage. Anchors
// re-entering an already instantiated stage reuse its occurrence;
// only leaf members get fresh state.
//
// When the route cycles back into the transition action's own stage,
// the action is excluded from the stage write (its completion has not
// been persisted yet) and its reset copy for the next round is
// returned; the caller applies it after the completion is durable.
func (e *Engine) routeTransition(ctx context.Context, a *domain.Action, revisionType string) (*domain.Action, error) {
	route := pickRoute(a.PotentialResult, revisionType)
	if route == nil || route.IfMatch == "" || a.GraphID == "" {
		return nil, nil
	}
	g, err := e.getGraph(ctx, a.GraphID)
	if err != nil {
		return nil, err
	}
	if g.WorkflowID == "" {
		return nil, nil
	}
	spec, err := e.getWorkflow(ctx, g.WorkflowID)
	if err != nil {
		return nil, err
	}
	tpl := spec.FindAnchor(route.IfMatch)
	if tpl == nil {
		return nil, errs.InvalidTransition("potentialResult anchor %q does not resolve in workflow %s", route.IfMatch, spec.ID)
	}
	ins := e.instantiator(spec)
	res, err := ins.InstantiateStage(tpl, g, a.ID)
	if err != nil {
		return nil, errs.InvalidTransition("instantiate stage %s: %v", route.IfMatch, err)
	}

	// Discussion attached to the transition is backported into the
	// opened stage: cloned with fresh content-node ids, so the copies
	// are addressable independently of the originals. Same-stage
	// updates never fork.
	if res.StageID != a.StageID && len(res.Actions) > 0 {
		first := res.Actions[0]
		if a.Comment != nil {
			first.Comment = ins.BackportComment(a.Comment)
		}
		if len(a.Annotations) > 0 {
			first.Annotations = ins.BackportAnnotations(a.Annotations)
		}
	}

	var reset *domain.Action
	if res.Reentered {
		for _, m := range res.Actions {
			if m.ID == a.ID {
				reset = m
				if reset.ParentActionID == a.ID {
					reset.ParentActionID = ""
				}
				break
			}
		}
	}

	if err := e.persistStage(ctx, res, a.ID); err != nil {
		return nil, err
	}
	g.DateModified = e.now()
	if err := e.put(ctx, g); err != nil {
		return nil, err
	}
	a.ResultID = res.StageID
	e.audit("stage.opened", res.StageID, "", map[string]any{
		"graph":     g.ID,
		"anchor":    route.IfMatch,
		"reentered": res.Reentered,
	})
	return reset, nil
}

// persistStage writes the instantiated member actions, skipping
// excludeID. On re-entry interior nodes keep their stored state;
// leaves are reset.
func (e *Engine) persistStage(ctx context.Context, res *workflow.Result, excludeID string) error {
	for _, a := range res.Actions {
		if a.ID == excludeID {
			continue
		}
		stored, err := e.getAction(ctx, a.ID)
		switch {
		case err == nil:
			if !res.Leaves[a.ID] {
				continue
			}
			a.Rev = stored.Rev
			a.DateCreated = stored.DateCreated
			a.DateModified = e.now()
		case errs.StatusOf(err) == 404:
		default:
			return err
		}
		if err := e.put(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
