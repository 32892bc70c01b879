package domain

// ActionTemplate is one node of a WorkflowSpecification's
// potentialAction tree. Templates are never executed; the stage
// instantiator clones them into concrete Actions. Anchors are symbolic
// ids (conventionally "_:name") that edges inside the same
// specification reference: Requires, PotentialResult.IfMatch and
// nested PotentialAction entries.
type ActionTemplate struct {
	Anchor     string `json:"id,omitempty" yaml:"id"`
	ActionType string `json:"actionType,omitempty" yaml:"actionType"`
	Name       string `json:"name,omitempty" yaml:"name"`

	// AgentRoleName declares the template-default agent as an
	// audience role name (e.g. "editor", "reviewer").
	AgentRoleName string `json:"agentRoleName,omitempty" yaml:"agentRoleName"`

	ActivateOn string   `json:"activateOn,omitempty" yaml:"activateOn"`
	CompleteOn string   `json:"completeOn,omitempty" yaml:"completeOn"`
	EndorseOn  string   `json:"endorseOn,omitempty" yaml:"endorseOn"`
	Requires   []string `json:"requiresCompletionOf,omitempty" yaml:"requiresCompletionOf"`

	MinInstances int `json:"minInstances,omitempty" yaml:"minInstances"`
	MaxInstances int `json:"maxInstances,omitempty" yaml:"maxInstances"`

	ReleaseType string `json:"releaseType,omitempty" yaml:"releaseType"`
	PriceUSD    int    `json:"priceUsd,omitempty" yaml:"priceUsd"`

	// Endorse marks the single endorsement child (identifier suffix
	// ".e"); Inform marks notification children (suffix ".i.<n>").
	Endorse bool `json:"endorse,omitempty" yaml:"endorse"`
	Inform  bool `json:"inform,omitempty" yaml:"inform"`

	Permissions []Permission `json:"hasDigitalDocumentPermission,omitempty" yaml:"hasDigitalDocumentPermission"`

	PotentialAction []*ActionTemplate `json:"potentialAction,omitempty" yaml:"potentialAction"`
	PotentialResult []PotentialResult `json:"potentialResult,omitempty" yaml:"potentialResult"`
}

// IsStage reports whether the template node opens a workflow stage.
func (t *ActionTemplate) IsStage() bool {
	switch t.ActionType {
	case "CreateGraphAction", "StartWorkflowStageAction":
		return true
	}
	return false
}

// FindAnchor walks the template tree for the node carrying anchor.
func (t *ActionTemplate) FindAnchor(anchor string) *ActionTemplate {
	if t == nil || anchor == "" {
		return nil
	}
	if t.Anchor == anchor {
		return t
	}
	for _, child := range t.PotentialAction {
		if found := child.FindAnchor(anchor); found != nil {
			return found
		}
	}
	return nil
}

// FindAnchor searches all template roots of the specification.
func (w *WorkflowSpecification) FindAnchor(anchor string) *ActionTemplate {
	for _, root := range w.PotentialAction {
		if found := root.FindAnchor(anchor); found != nil {
			return found
		}
	}
	return nil
}

// FindStage returns the template node opening the stage for the given
// action type (CreateGraphAction for the first stage).
func (w *WorkflowSpecification) FindStage(actionType string) *ActionTemplate {
	var find func(t *ActionTemplate) *ActionTemplate
	find = func(t *ActionTemplate) *ActionTemplate {
		if t.ActionType == actionType {
			return t
		}
		for _, child := range t.PotentialAction {
			if found := find(child); found != nil {
				return found
			}
		}
		return nil
	}
	for _, root := range w.PotentialAction {
		if found := find(root); found != nil {
			return found
		}
	}
	return nil
}
