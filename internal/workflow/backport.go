package workflow

import (
	"librarian/internal/domain"
)

// BackportComment clones a stage-transition comment with a fresh
// content-node id, so the original and the backported copy are
// independently addressable. Comments are forked on every stage
// transition and never on same-stage updates.
func (ins *Instantiator) BackportComment(c *domain.Comment) *domain.Comment {
	if c == nil {
		return nil
	}
	out := *c
	out.ID = ins.newID()
	return &out
}

// BackportAnnotations forks an annotation set for a revisited stage
// occurrence, giving every node a fresh id while keeping targets.
func (ins *Instantiator) BackportAnnotations(in []domain.Annotation) []domain.Annotation {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Annotation, len(in))
	for i, a := range in {
		out[i] = a
		out[i].ID = ins.newID()
	}
	return out
}
