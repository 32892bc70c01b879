package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"librarian/internal/domain"
	"librarian/internal/errs"
	"librarian/internal/payments"
	"librarian/internal/version"
)

func performPay(r *request) (*domain.Action, error) {
	var (
		a    *domain.Action
		from string
	)
	if r.prev != nil {
		if err := r.authorizePerform(r.prev); err != nil {
			return nil, err
		}
		a = r.merged()
		from = r.prev.Status
	} else {
		a = r.action
		if err := r.authorize(domain.WritePermission, a.ObjectID); err != nil {
			return nil, err
		}
		r.fresh(a)
		if a.Status == "" {
			a.Status = domain.CompletedActionStatus
		}
		from = domain.PotentialActionStatus
	}

	if a.Status == domain.CompletedActionStatus && a.PriceUSD > 0 {
		skip := r.opts.SkipPayments || !r.e.Config.Payments.Enabled || r.e.Payments == nil
		if !skip {
			invoiceID, err := r.e.Payments.Charge(r.ctx, payments.Charge{
				CustomerID: r.opts.Agent,
				AmountUSD:  a.PriceUSD,
				PurposeID:  a.PurposeID,
			})
			if err != nil {
				return nil, errs.UpstreamFailure("payment charge failed: %v", err)
			}
			a.ResultID = invoiceID
		}
	}
	return r.finish(a, from)
}

func performPublish(r *request) (*domain.Action, error) {
	var (
		a    *domain.Action
		from string
	)
	if r.prev != nil {
		if err := r.authorizePerform(r.prev); err != nil {
			return nil, err
		}
		a = r.merged()
		from = r.prev.Status
	} else {
		a = r.action
		if a.GraphID == "" {
			a.GraphID = a.ObjectID
		}
		if err := r.authorize(domain.WritePermission, a.GraphID); err != nil {
			return nil, err
		}
		r.fresh(a)
		if a.Status == "" {
			a.Status = domain.CompletedActionStatus
		}
		from = domain.PotentialActionStatus
	}

	if a.Status == domain.CompletedActionStatus {
		g, err := r.e.getGraph(r.ctx, a.GraphID)
		if err != nil {
			return nil, err
		}
		releaseType := a.ReleaseType
		if releaseType == "" && g.WorkflowID != "" {
			spec, err := r.e.getWorkflow(r.ctx, g.WorkflowID)
			if err == nil {
				releaseType = spec.ReleaseType
			} else if errs.StatusOf(err) != 404 {
				return nil, err
			}
		}
		rel, err := r.e.cutRelease(r.ctx, g, releaseType)
		if err != nil {
			return nil, err
		}
		a.ResultID = rel.ID
	}
	return r.finish(a, from)
}

// cutRelease snapshots the graph into a new latest release. The first
// release of a graph is 0.0.0-0; later ones bump the previous latest
// by releaseType. The previous latest is re-keyed to its literal
// pinned version; the latest pointer id stays stable.
func (e *Engine) cutRelease(ctx context.Context, g *domain.Graph, releaseType string) (*domain.Release, error) {
	latestID := version.LatestKey(g.ID)
	latest, err := e.getRelease(ctx, latestID)
	var next version.Version
	switch {
	case err == nil:
		cur, perr := version.Parse(latest.Version)
		if perr != nil {
			return nil, perr
		}
		next = version.Bump(cur, releaseType)
	case errs.StatusOf(err) == 404:
		latest = nil
		next = version.Zero()
	default:
		return nil, err
	}

	if ok, err := e.exists(ctx, version.ReleaseKey(g.ID, next)); err != nil {
		return nil, err
	} else if ok {
		return nil, errs.Locked("release %s of graph %s already exists", next, g.ID)
	}

	snapshot, err := snapshotGraph(g)
	if err != nil {
		return nil, err
	}
	rel := &domain.Release{
		Meta:        domain.Meta{ID: latestID, Type: domain.TypeRelease, DateCreated: e.now()},
		GraphID:     g.ID,
		Version:     next.String(),
		Permissions: g.Permissions,
		Snapshot:    snapshot,
	}

	if latest != nil {
		cur, _ := version.Parse(latest.Version)
		pinned := *latest
		pinned.ID = version.ReleaseKey(g.ID, cur)
		pinned.Rev = ""
		if err := e.put(ctx, &pinned); err != nil {
			if errs.StatusOf(err) == 409 {
				return nil, errs.Locked("release %s of graph %s already exists", cur, g.ID)
			}
			return nil, err
		}
		rel.Rev = latest.Rev
	}
	if err := e.put(ctx, rel); err != nil {
		return nil, err
	}

	g.Counter = version.NextCounter(g.Counter)
	g.DateModified = e.now()
	if err := e.put(ctx, g); err != nil {
		return nil, err
	}
	e.audit("release.cut", rel.ID, "", map[string]any{
		"graph":   g.ID,
		"version": rel.Version,
	})
	return rel, nil
}

func snapshotGraph(g *domain.Graph) (json.RawMessage, error) {
	clone := *g
	clone.Rev = ""
	data, err := json.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("snapshot graph %s: %w", g.ID, err)
	}
	return data, nil
}
