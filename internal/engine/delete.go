package engine

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"librarian/internal/acl"
	"librarian/internal/docstore"
	"librarian/internal/domain"
	"librarian/internal/errs"
)

// Delete tombstones a document and everything it owns: periodicals
// under an organization, graphs under a periodical, actions, roles and
// releases under a graph, and descendant comment threads. Partial
// failures are aggregated; every successfully tombstoned document is
// itemized in the result.
func (e *Engine) Delete(ctx context.Context, id string, opts GetOptions) (*domain.ItemList, error) {
	root, err := e.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, errs.NotFound("document %s not found", id)
		}
		return nil, err
	}
	if root.Deleted {
		return nil, errs.NotFound("document %s not found", id)
	}
	if !opts.BypassACL {
		c, err := acl.NewChecker(ctx, e, opts.Agent, id)
		if err != nil {
			return nil, err
		}
		if !c.Check(domain.AdminPermission) && !c.Check(domain.WritePermission) {
			return nil, errs.PermissionDenied("agent %q may not delete %s", opts.Agent, id)
		}
	}

	victims, err := e.collectCascade(ctx, root)
	if err != nil {
		return nil, err
	}

	var (
		merr  error
		items []domain.ItemRef
	)
	for _, v := range victims {
		if _, derr := e.Store.Delete(ctx, v.ID, v.Rev); derr != nil {
			if errors.Is(derr, docstore.ErrNotFound) {
				continue
			}
			merr = multierr.Append(merr, derr)
			continue
		}
		items = append(items, domain.ItemRef{ID: v.ID, Type: v.Kind})
	}
	e.Log.Info("cascade delete",
		zap.String("root", id),
		zap.Int("deleted", len(items)))
	e.audit("document.deleted", id, opts.Agent, map[string]any{"count": len(items)})
	return domain.NewItemList(items), merr
}

// collectCascade gathers the root and every live document reachable
// through ownership (Parent index) or comment threading
// (ParentActionID).
func (e *Engine) collectCascade(ctx context.Context, root docstore.Doc) ([]docstore.Doc, error) {
	seen := map[string]bool{root.ID: true}
	out := []docstore.Doc{root}

	queue := []docstore.Doc{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		children, err := e.Store.Query(ctx, docstore.Query{Parent: cur.ID})
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if !seen[child.ID] {
				seen[child.ID] = true
				out = append(out, child)
				queue = append(queue, child)
			}
		}

		if cur.Kind == domain.TypeAction {
			threaded, err := e.threadDescendants(ctx, cur)
			if err != nil {
				return nil, err
			}
			for _, child := range threaded {
				if !seen[child.ID] {
					seen[child.ID] = true
					out = append(out, child)
					queue = append(queue, child)
				}
			}
		}
	}
	return out, nil
}

// threadDescendants finds actions in the same parent scope whose
// ParentActionID points at doc, e.g. replies under a comment.
func (e *Engine) threadDescendants(ctx context.Context, doc docstore.Doc) ([]docstore.Doc, error) {
	siblings, err := e.Store.Query(ctx, docstore.Query{Kind: domain.TypeAction, Parent: doc.Parent})
	if err != nil {
		return nil, err
	}
	var out []docstore.Doc
	for _, s := range siblings {
		var a domain.Action
		if err := json.Unmarshal(s.Body, &a); err != nil {
			continue
		}
		if a.ParentActionID == doc.ID {
			out = append(out, s)
		}
	}
	return out, nil
}
