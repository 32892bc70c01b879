package trigger

import (
	"context"

	"librarian/internal/domain"
)

// Trigger predicates. Each fires when the referenced action (the
// dependent's structural parent) reaches the named status.
const (
	OnObjectActiveActionStatus    = "OnObjectActiveActionStatus"
	OnObjectStagedActionStatus    = "OnObjectStagedActionStatus"
	OnObjectEndorsedActionStatus  = "OnObjectEndorsedActionStatus"
	OnObjectCompletedActionStatus = "OnObjectCompletedActionStatus"
)

// predicateFor maps an observed status to the predicate it satisfies.
func predicateFor(status string) string {
	switch status {
	case domain.ActiveActionStatus:
		return OnObjectActiveActionStatus
	case domain.StagedActionStatus:
		return OnObjectStagedActionStatus
	case domain.EndorsedActionStatus:
		return OnObjectEndorsedActionStatus
	case domain.CompletedActionStatus:
		return OnObjectCompletedActionStatus
	}
	return ""
}

// Stepper applies one cascaded transition. The dispatcher implements
// it so cascaded advances run the same type-specific logic and
// persistence as direct ones, and recurse back into Cascade.
type Stepper interface {
	GraphActions(ctx context.Context, graphID string) ([]*domain.Action, error)
	Advance(ctx context.Context, action *domain.Action, toStatus string) error
}

// Engine evaluates activation, completion and endorsement predicates
// and cascades status changes across dependent actions.
type Engine struct {
	Steps Stepper
}

// Cascade fires the triggers resulting from changed moving from
// status from to status to. When intermediate statuses were skipped
// (e.g. Potential straight to Completed), their cascades are replayed
// in forward order first, so downstream state is identical regardless
// of the path taken.
func (e *Engine) Cascade(ctx context.Context, changed *domain.Action, from, to string) error {
	steps := domain.StatusPath(from, to)
	if len(steps) == 0 && (to == domain.CanceledActionStatus || to == domain.FailedActionStatus) {
		steps = []string{to}
	}
	for _, observed := range steps {
		if err := e.fire(ctx, changed, observed); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) fire(ctx context.Context, changed *domain.Action, observed string) error {
	if changed.GraphID == "" {
		return nil
	}
	siblings, err := e.Steps.GraphActions(ctx, changed.GraphID)
	if err != nil {
		return err
	}
	pred := predicateFor(observed)

	for _, a := range siblings {
		if a.ID == changed.ID || domain.IsTerminalStatus(a.Status) {
			continue
		}
		if a.ParentActionID == changed.ID && pred != "" {
			if a.ActivateOn == pred && a.Status == domain.PotentialActionStatus {
				if err := e.Steps.Advance(ctx, a, domain.ActiveActionStatus); err != nil {
					return err
				}
				continue
			}
			if a.EndorseOn == pred && domain.StatusRank(a.Status) < domain.StatusRank(domain.EndorsedActionStatus) {
				if err := e.Steps.Advance(ctx, a, domain.EndorsedActionStatus); err != nil {
					return err
				}
				continue
			}
			if a.CompleteOn == pred && domain.StatusRank(a.Status) >= 0 {
				if err := e.Steps.Advance(ctx, a, domain.CompletedActionStatus); err != nil {
					return err
				}
				continue
			}
		}
		// A canceled multiplex instance counts as settled for its
		// dependents, so cancellation re-evaluates the gate too.
		settled := observed == domain.CompletedActionStatus ||
			(changed.Multiplexed() && (observed == domain.CanceledActionStatus || observed == domain.FailedActionStatus))
		if settled && a.Status == domain.PotentialActionStatus && requiresMet(a, changed, siblings) {
			if err := e.Steps.Advance(ctx, a, domain.ActiveActionStatus); err != nil {
				return err
			}
		}
	}
	return nil
}

// requiresMet reports whether a waits on changed through
// requiresCompletionOf and every required action, the full multiplexed
// set included, is now completed.
func requiresMet(a, changed *domain.Action, siblings []*domain.Action) bool {
	waits := false
	for _, id := range a.Requires {
		if id == changed.ID {
			waits = true
			break
		}
	}
	if !waits {
		return false
	}
	byID := make(map[string]*domain.Action, len(siblings))
	for _, s := range siblings {
		byID[s.ID] = s
	}
	for _, id := range a.Requires {
		if id == changed.ID {
			continue
		}
		dep, ok := byID[id]
		if !ok {
			return false
		}
		if dep.Status == domain.CompletedActionStatus {
			continue
		}
		// A canceled multiplex instance does not block its set; the
		// minimum-instances floor was enforced when it was canceled.
		if dep.Multiplexed() && (dep.Status == domain.CanceledActionStatus || dep.Status == domain.FailedActionStatus) {
			continue
		}
		return false
	}
	return true
}
