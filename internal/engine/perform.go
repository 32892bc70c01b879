package engine

import (
	"context"

	"librarian/internal/domain"
	"librarian/internal/errs"
)

func performReview(r *request) (*domain.Action, error) {
	prev, err := r.requirePrev()
	if err != nil {
		return nil, err
	}
	if err := r.authorizePerform(prev); err != nil {
		return nil, err
	}
	a := r.merged()
	if a.Status == domain.CompletedActionStatus && a.ResultReview == nil {
		return nil, errs.InvalidTransition("resultReview is required to complete a ReviewAction")
	}
	if a.ResultReview != nil && a.ResultReview.ID == "" {
		a.ResultReview.ID = r.e.NewID()
		a.ResultReview.DatePosted = r.now()
	}
	return r.finish(a, prev.Status)
}

func performAssess(r *request) (*domain.Action, error) {
	prev, err := r.requirePrev()
	if err != nil {
		return nil, err
	}
	if err := r.authorizePerform(prev); err != nil {
		return nil, err
	}
	a := r.merged()
	var reset *domain.Action
	if a.Status == domain.CompletedActionStatus {
		if len(a.PotentialResult) > 0 && pickRoute(a.PotentialResult, a.RevisionType) == nil {
			return nil, errs.InvalidTransition("revisionType %q matches no potentialResult route", a.RevisionType)
		}
		reset, err = r.e.routeTransition(r.ctx, a, a.RevisionType)
		if err != nil {
			return nil, err
		}
	}
	a.DateModified = r.now()
	if err := r.e.put(r.ctx, a); err != nil {
		return nil, err
	}
	if err := r.e.applyReset(r.ctx, a, reset); err != nil {
		return nil, err
	}
	if err := r.e.triggers.Cascade(r.ctx, a, prev.Status, a.Status); err != nil {
		return nil, err
	}
	return a, nil
}

func performEndorse(r *request) (*domain.Action, error) {
	prev, err := r.requirePrev()
	if err != nil {
		return nil, err
	}
	if err := r.authorizePerform(prev); err != nil {
		return nil, err
	}
	a := r.merged()
	a.DateModified = r.now()
	if err := r.e.put(r.ctx, a); err != nil {
		return nil, err
	}
	if a.Status == domain.CompletedActionStatus {
		if err := r.e.endorseParent(r.ctx, a); err != nil {
			return nil, err
		}
	}
	if err := r.e.triggers.Cascade(r.ctx, a, prev.Status, a.Status); err != nil {
		return nil, err
	}
	return a, nil
}

func performCancel(r *request) (*domain.Action, error) {
	a := r.action
	target, err := r.e.getAction(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := r.authorizePerform(target); err != nil {
		return nil, err
	}
	if domain.IsTerminalStatus(target.Status) {
		return nil, errs.InvalidTransition("action %s is already %s", target.ID, target.Status)
	}
	if target.Multiplexed() {
		live, err := r.e.liveInstances(r.ctx, target)
		if err != nil {
			return nil, err
		}
		if live-1 < target.MinInstances {
			return nil, errs.PermissionDenied("canceling instance %s would drop below the minimum of %d", target.ID, target.MinInstances)
		}
	}
	from := target.Status
	target.Status = domain.CanceledActionStatus
	target.DateModified = r.now()
	if err := r.e.put(r.ctx, target); err != nil {
		return nil, err
	}
	if err := r.e.cancelDependents(r.ctx, target); err != nil {
		return nil, err
	}
	if err := r.e.triggers.Cascade(r.ctx, target, from, domain.CanceledActionStatus); err != nil {
		return nil, err
	}

	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.GraphID = target.GraphID
	a.ResultID = target.ID
	return r.finish(a, domain.PotentialActionStatus)
}

// liveInstances counts the multiplex siblings of an instance,
// including itself, that have not been canceled or failed.
func (e *Engine) liveInstances(ctx context.Context, target *domain.Action) (int, error) {
	siblings, err := e.GraphActions(ctx, target.GraphID)
	if err != nil {
		return 0, err
	}
	live := 0
	for _, s := range siblings {
		if s.StageID != target.StageID || s.Identifier != target.Identifier || s.ActionType != target.ActionType {
			continue
		}
		if s.Status == domain.CanceledActionStatus || s.Status == domain.FailedActionStatus {
			continue
		}
		live++
	}
	return live, nil
}

// cancelDependents cancels the structural descendants of a canceled
// action; completed and already-terminal descendants keep their state.
func (e *Engine) cancelDependents(ctx context.Context, root *domain.Action) error {
	if root.GraphID == "" {
		return nil
	}
	actions, err := e.GraphActions(ctx, root.GraphID)
	if err != nil {
		return err
	}
	children := map[string][]*domain.Action{}
	for _, a := range actions {
		if a.ParentActionID != "" {
			children[a.ParentActionID] = append(children[a.ParentActionID], a)
		}
	}
	stack := []string{root.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range children[id] {
			stack = append(stack, child.ID)
			if domain.IsTerminalStatus(child.Status) {
				continue
			}
			if err := e.Advance(ctx, child, domain.CanceledActionStatus); err != nil {
				return err
			}
		}
	}
	return nil
}

func performTag(r *request) (*domain.Action, error) {
	a := r.action
	g, err := r.e.getGraph(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := r.authorize(domain.WritePermission, g.ID); err != nil {
		return nil, err
	}
	if len(a.Tags) == 0 {
		return nil, errs.InvalidTransition("keywords are required for a TagAction")
	}
	seen := map[string]bool{}
	for _, t := range g.Tags {
		seen[t] = true
	}
	for _, t := range a.Tags {
		if !seen[t] {
			g.Tags = append(g.Tags, t)
			seen[t] = true
		}
	}
	g.DateModified = r.now()
	if err := r.e.put(r.ctx, g); err != nil {
		return nil, err
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.GraphID = g.ID
	a.ResultID = g.ID
	return r.finish(a, domain.PotentialActionStatus)
}

func performComment(r *request) (*domain.Action, error) {
	a := r.action
	if a.Comment == nil || a.Comment.Text == "" {
		return nil, errs.InvalidTransition("comment text is required")
	}
	target, err := r.e.loadResource(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := r.authorize(domain.ReadPermission, a.ObjectID); err != nil {
		return nil, err
	}
	if parent, ok := target.(*domain.Action); ok {
		a.ParentActionID = parent.ID
		a.GraphID = parent.GraphID
	}
	r.fresh(a)
	if a.Comment.ID == "" {
		a.Comment.ID = r.e.NewID()
	}
	a.Status = domain.CompletedActionStatus
	return r.finish(a, domain.PotentialActionStatus)
}
