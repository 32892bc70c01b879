package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"librarian/internal/domain"
)

// specFile models a workflow specification authored in YAML.
type specFile struct {
	Name            string                   `yaml:"name"`
	ReleaseType     string                   `yaml:"releaseType"`
	PotentialAction []*domain.ActionTemplate `yaml:"potentialAction"`
}

// SpecFromYAML parses a workflow specification template from YAML.
// The result still needs an id and a periodical before it is posted.
func SpecFromYAML(data []byte) (*domain.WorkflowSpecification, error) {
	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid workflow yaml: %w", err)
	}
	spec := &domain.WorkflowSpecification{
		Meta:            domain.Meta{Type: domain.TypeWorkflowSpecification},
		Name:            f.Name,
		ReleaseType:     f.ReleaseType,
		PotentialAction: f.PotentialAction,
	}
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// ValidateSpec enforces the structural invariants templates must meet
// before instantiation: unique anchors, resolvable symbolic
// references, and sane multiplex bounds.
func ValidateSpec(spec *domain.WorkflowSpecification) error {
	anchors := map[string]bool{}
	var collect func(t *domain.ActionTemplate) error
	collect = func(t *domain.ActionTemplate) error {
		if t.Anchor != "" {
			if anchors[t.Anchor] {
				return fmt.Errorf("duplicate template anchor %s", t.Anchor)
			}
			anchors[t.Anchor] = true
		}
		if t.MinInstances > 0 && t.MaxInstances > 0 && t.MinInstances > t.MaxInstances {
			return fmt.Errorf("template %s: minInstances %d exceeds maxInstances %d", t.Anchor, t.MinInstances, t.MaxInstances)
		}
		for _, child := range t.PotentialAction {
			if err := collect(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range spec.PotentialAction {
		if err := collect(root); err != nil {
			return err
		}
	}

	var check func(t *domain.ActionTemplate) error
	check = func(t *domain.ActionTemplate) error {
		for _, ref := range t.Requires {
			if !anchors[ref] {
				return fmt.Errorf("template %s requires unknown anchor %s", t.Anchor, ref)
			}
		}
		for _, pr := range t.PotentialResult {
			if pr.IfMatch != "" && !anchors[pr.IfMatch] {
				return fmt.Errorf("template %s routes to unknown anchor %s", t.Anchor, pr.IfMatch)
			}
		}
		for _, child := range t.PotentialAction {
			if err := check(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range spec.PotentialAction {
		if err := check(root); err != nil {
			return err
		}
	}
	return nil
}
