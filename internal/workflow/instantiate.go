package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"librarian/internal/domain"
)

// Instantiator expands workflow stage templates into concrete,
// identified action instances for one Graph. Anchor memoization lives
// on the Graph itself (AnchorMap), so cycles re-enter existing stages
// instead of growing the action graph.
type Instantiator struct {
	Spec  *domain.WorkflowSpecification
	NewID func() string
	Now   func() time.Time
}

// Result of instantiating one stage occurrence.
type Result struct {
	StageID    string
	StageIndex int
	// Reentered is true when the stage anchor was already
	// instantiated for this graph; in that case only Leaves carry
	// fresh state and the rest reuse their existing documents.
	Reentered bool
	Actions   []*domain.Action
	Leaves    map[string]bool
}

func New(spec *domain.WorkflowSpecification) *Instantiator {
	return &Instantiator{
		Spec:  spec,
		NewID: uuid.NewString,
		Now:   time.Now,
	}
}

func (ins *Instantiator) now() time.Time {
	if ins.Now != nil {
		return ins.Now()
	}
	return time.Now()
}

func (ins *Instantiator) newID() string {
	if ins.NewID != nil {
		return ins.NewID()
	}
	return uuid.NewString()
}

// StageIndex returns the deterministic position of a stage template in
// the specification topology: depth-first enumeration of stage nodes.
func (ins *Instantiator) StageIndex(stage *domain.ActionTemplate) int {
	index := -1
	pos := 0
	var walk func(t *domain.ActionTemplate)
	walk = func(t *domain.ActionTemplate) {
		if t.IsStage() {
			if t == stage || (t.Anchor != "" && t.Anchor == stage.Anchor) {
				if index < 0 {
					index = pos
				}
			}
			pos++
		}
		for _, child := range t.PotentialAction {
			walk(child)
		}
	}
	for _, root := range ins.Spec.PotentialAction {
		walk(root)
	}
	return index
}

// memoKey addresses a template node stably across instantiations:
// the declared anchor when present, the positional identifier
// otherwise.
func memoKey(t *domain.ActionTemplate, identifier string) string {
	if t.Anchor != "" {
		return t.Anchor
	}
	return "_pos:" + identifier
}

// InstantiateStage deep-clones the member templates of one stage node
// into concrete actions. The stage node itself is represented by the
// action that opened it (CreateGraphAction or a
// StartWorkflowStageAction instance), not re-cloned here; openerID is
// that action's id and becomes the structural parent of the stage's
// top-level members, so their activation triggers can observe it.
func (ins *Instantiator) InstantiateStage(stage *domain.ActionTemplate, g *domain.Graph, openerID string) (*Result, error) {
	if !stage.IsStage() {
		return nil, fmt.Errorf("template %s (%s) does not open a workflow stage", stage.Anchor, stage.ActionType)
	}
	stageIndex := ins.StageIndex(stage)
	if stageIndex < 0 {
		return nil, fmt.Errorf("stage template %s not part of specification %s", stage.Anchor, ins.Spec.ID)
	}
	if g.AnchorMap == nil {
		g.AnchorMap = map[string]string{}
	}

	stageKey := memoKey(stage, fmt.Sprintf("%d", stageIndex))
	stageID, reentered := g.AnchorMap[stageKey]
	if !reentered {
		stageID = ins.newID()
		g.AnchorMap[stageKey] = stageID
		g.StageSeq++
	}

	res := &Result{
		StageID:    stageID,
		StageIndex: stageIndex,
		Reentered:  reentered,
		Leaves:     map[string]bool{},
	}

	// First pass: create every clone and fill the anchor memo so the
	// second pass can rewrite symbolic references.
	instances := map[string][]string{} // memo key -> concrete ids (multiplex aware)
	for idx, child := range stage.PotentialAction {
		identifier := fmt.Sprintf("%d.%d", stageIndex, idx)
		ins.clone(child, g, res, instances, identifier, stageID, openerID)
	}

	// Second pass: rewrite requiresCompletionOf anchors to concrete
	// ids, expanding references to a multiplexed template into the
	// full instance set. PotentialResult anchors stay symbolic; they
	// are resolved against the memo when the transition fires.
	for _, a := range res.Actions {
		if len(a.Requires) == 0 {
			continue
		}
		var resolved []string
		for _, ref := range a.Requires {
			if ids, ok := instances[ref]; ok {
				resolved = append(resolved, ids...)
			} else if id, ok := g.AnchorMap[ref]; ok {
				resolved = append(resolved, id)
			} else {
				resolved = append(resolved, ref)
			}
		}
		a.Requires = resolved
	}
	return res, nil
}

func (ins *Instantiator) clone(t *domain.ActionTemplate, g *domain.Graph, res *Result, instances map[string][]string, identifier, stageID, parentID string) {
	minInst, maxInst := t.MinInstances, t.MaxInstances
	if maxInst < 1 {
		maxInst = 1
	}
	if minInst > maxInst {
		minInst = maxInst
	}

	key := memoKey(t, identifier)
	for i := 0; i < maxInst; i++ {
		instKey := key
		if maxInst > 1 {
			instKey = fmt.Sprintf("%s#%d", key, i)
		}
		id, existed := g.AnchorMap[instKey]
		if !existed {
			id = ins.newID()
			g.AnchorMap[instKey] = id
		}
		instances[key] = append(instances[key], id)

		a := ins.newAction(t, g, id, identifier, stageID, parentID)
		if maxInst > 1 {
			idx := i
			a.InstanceIndex = &idx
			a.MinInstances = minInst
			a.MaxInstances = maxInst
		}
		res.Actions = append(res.Actions, a)
		if len(t.PotentialAction) == 0 {
			res.Leaves[a.ID] = true
		}

		inform := 0
		for j, child := range t.PotentialAction {
			var childIdent string
			switch {
			case child.Endorse:
				childIdent = identifier + ".e"
			case child.Inform:
				childIdent = fmt.Sprintf("%s.i.%d", identifier, inform)
				inform++
			default:
				childIdent = fmt.Sprintf("%s.%d", identifier, j)
			}
			if child.IsStage() {
				// Nested stage nodes are cloned as transition
				// actions; their own members are instantiated
				// when the transition fires.
				ins.cloneStageRef(child, g, res, instances, childIdent, stageID, a.ID)
				continue
			}
			ins.clone(child, g, res, instances, childIdent, stageID, a.ID)
		}
	}
}

// cloneStageRef creates the concrete StartWorkflowStageAction that,
// once completed, opens its target stage.
func (ins *Instantiator) cloneStageRef(t *domain.ActionTemplate, g *domain.Graph, res *Result, instances map[string][]string, identifier, stageID, parentID string) {
	key := memoKey(t, identifier+":start")
	startKey := key + ":transition"
	id, existed := g.AnchorMap[startKey]
	if !existed {
		id = ins.newID()
		g.AnchorMap[startKey] = id
	}
	instances[key] = append(instances[key], id)
	a := ins.newAction(t, g, id, identifier, stageID, parentID)
	// The transition action routes into its own template's stage.
	if t.Anchor != "" {
		a.PotentialResult = append([]domain.PotentialResult{{IfMatch: t.Anchor}}, t.PotentialResult...)
	}
	res.Actions = append(res.Actions, a)
	res.Leaves[a.ID] = true
}

func (ins *Instantiator) newAction(t *domain.ActionTemplate, g *domain.Graph, id, identifier, stageID, parentID string) *domain.Action {
	now := ins.now().UTC().Format(time.RFC3339)
	status := domain.ActiveActionStatus
	if t.ActivateOn != "" || len(t.Requires) > 0 {
		status = domain.PotentialActionStatus
	}
	a := &domain.Action{
		Meta: domain.Meta{
			ID:          id,
			Type:        domain.TypeAction,
			DateCreated: now,
		},
		ActionType:      t.ActionType,
		Status:          status,
		Name:            t.Name,
		GraphID:         g.ID,
		ObjectID:        g.ID,
		StageID:         stageID,
		TemplateAnchor:  t.Anchor,
		ParentActionID:  parentID,
		Identifier:      identifier,
		ActivateOn:      t.ActivateOn,
		CompleteOn:      t.CompleteOn,
		EndorseOn:       t.EndorseOn,
		Requires:        append([]string(nil), t.Requires...),
		ReleaseType:     t.ReleaseType,
		PriceUSD:        t.PriceUSD,
		PotentialResult: append([]domain.PotentialResult(nil), t.PotentialResult...),
	}
	if t.AgentRoleName != "" {
		a.DefaultAgent = &domain.AgentRef{Role: &domain.Role{
			Meta:      domain.Meta{Type: domain.TypeRole},
			RoleName:  t.AgentRoleName,
			SubjectID: g.ID,
		}}
		a.Agent = &domain.AgentRef{Role: &domain.Role{
			Meta:      domain.Meta{Type: domain.TypeRole},
			RoleName:  t.AgentRoleName,
			SubjectID: g.ID,
		}}
	}
	return a
}
