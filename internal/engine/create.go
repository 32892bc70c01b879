package engine

import (
	"librarian/internal/domain"
	"librarian/internal/errs"
	"librarian/internal/workflow"
)

// ensureAdminGrant appends an AdminPermission entry for the creator
// unless one already names them.
func ensureAdminGrant(perms []domain.Permission, agentID string) []domain.Permission {
	if agentID == "" {
		return perms
	}
	for _, p := range perms {
		if p.PermissionType != domain.AdminPermission {
			continue
		}
		for _, g := range p.Grantee {
			if g.ID == agentID {
				return perms
			}
		}
	}
	return append(perms, domain.Permission{
		PermissionType: domain.AdminPermission,
		Grantee:        domain.GranteeList{{ID: agentID}},
	})
}

// reserveID picks the caller-chosen id when given, refusing duplicate
// registrations, and mints one otherwise.
func (r *request) reserveID(requested string) (string, error) {
	if requested == "" {
		return r.e.NewID(), nil
	}
	ok, err := r.e.exists(r.ctx, requested)
	if err != nil {
		return "", err
	}
	if ok {
		return "", errs.Locked("document %s is already registered", requested)
	}
	return requested, nil
}

func createOrganization(r *request) (*domain.Action, error) {
	a := r.action
	if !r.opts.BypassACL && r.opts.Agent == "" {
		return nil, errs.PermissionDenied("anonymous callers cannot register an organization")
	}
	if a.Name == "" {
		return nil, errs.InvalidTransition("organization name is required")
	}
	id, err := r.reserveID(a.ResultID)
	if err != nil {
		return nil, err
	}
	org := &domain.Organization{
		Meta:        domain.Meta{ID: id, Type: domain.TypeOrganization, DateCreated: r.now()},
		Name:        a.Name,
		Permissions: ensureAdminGrant(a.Permissions, r.opts.Agent),
	}
	if err := r.e.put(r.ctx, org); err != nil {
		return nil, err
	}
	if r.opts.Agent != "" {
		role := r.e.roleManager().Join(org.ID, domain.AdministratorAudience, r.opts.Agent)
		if err := r.e.put(r.ctx, role); err != nil {
			return nil, err
		}
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.ObjectID = org.ID
	a.ResultID = org.ID
	return r.finish(a, domain.PotentialActionStatus)
}

func createPeriodical(r *request) (*domain.Action, error) {
	a := r.action
	org, err := r.e.getOrganization(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := r.authorize(domain.WritePermission, org.ID); err != nil {
		return nil, err
	}
	id, err := r.reserveID(a.ResultID)
	if err != nil {
		return nil, err
	}
	per := &domain.Periodical{
		Meta:           domain.Meta{ID: id, Type: domain.TypePeriodical, DateCreated: r.now()},
		OrganizationID: org.ID,
		Name:           a.Name,
		WorkflowID:     a.InstrumentID,
		Permissions:    ensureAdminGrant(a.Permissions, r.opts.Agent),
	}
	if err := r.e.put(r.ctx, per); err != nil {
		return nil, err
	}
	if r.opts.Agent != "" {
		role := r.e.roleManager().Join(per.ID, domain.EditorAudience, r.opts.Agent)
		if err := r.e.put(r.ctx, role); err != nil {
			return nil, err
		}
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.ResultID = per.ID
	return r.finish(a, domain.PotentialActionStatus)
}

func createWorkflowSpecification(r *request) (*domain.Action, error) {
	a := r.action
	per, err := r.e.getPeriodical(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := r.authorize(domain.WritePermission, per.ID); err != nil {
		return nil, err
	}
	if a.Workflow == nil {
		return nil, errs.InvalidTransition("workflowSpecification payload is required")
	}
	if err := workflow.ValidateSpec(a.Workflow); err != nil {
		return nil, errs.InvalidTransition("invalid workflow specification: %v", err)
	}
	id, err := r.reserveID(a.ResultID)
	if err != nil {
		return nil, err
	}
	spec := a.Workflow
	spec.ID = id
	spec.Type = domain.TypeWorkflowSpecification
	spec.PeriodicalID = per.ID
	spec.DateCreated = r.now()
	if err := r.e.put(r.ctx, spec); err != nil {
		return nil, err
	}
	per.WorkflowID = spec.ID
	per.DateModified = r.now()
	if err := r.e.put(r.ctx, per); err != nil {
		return nil, err
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.ResultID = spec.ID
	return r.finish(a, domain.PotentialActionStatus)
}

func createGraph(r *request) (*domain.Action, error) {
	a := r.action
	per, err := r.e.getPeriodical(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := r.authorize(domain.WritePermission, per.ID); err != nil {
		return nil, err
	}
	id, err := r.reserveID(a.ResultID)
	if err != nil {
		return nil, err
	}
	g := &domain.Graph{
		Meta:         domain.Meta{ID: id, Type: domain.TypeGraph, DateCreated: r.now()},
		PeriodicalID: per.ID,
		Name:         a.Name,
		Counter:      1,
		WorkflowID:   per.WorkflowID,
		Permissions:  ensureAdminGrant(a.Permissions, r.opts.Agent),
	}

	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.GraphID = g.ID
	a.ResultID = g.ID

	// Opening a graph instantiates the workflow's first stage, with
	// the create action itself as the stage opener.
	if g.WorkflowID != "" {
		spec, err := r.e.getWorkflow(r.ctx, g.WorkflowID)
		if err != nil {
			return nil, err
		}
		if stage := spec.FindStage("CreateGraphAction"); stage != nil {
			ins := r.e.instantiator(spec)
			res, err := ins.InstantiateStage(stage, g, a.ID)
			if err != nil {
				return nil, errs.InvalidTransition("instantiate first stage: %v", err)
			}
			if err := r.e.persistStage(r.ctx, res, a.ID); err != nil {
				return nil, err
			}
			a.StageID = res.StageID
			a.TemplateAnchor = stage.Anchor
		}
	}
	if err := r.e.put(r.ctx, g); err != nil {
		return nil, err
	}
	if r.opts.Agent != "" {
		role := r.e.roleManager().Join(g.ID, domain.AuthorAudience, r.opts.Agent)
		if err := r.e.put(r.ctx, role); err != nil {
			return nil, err
		}
	}
	return r.finish(a, domain.PotentialActionStatus)
}

func startWorkflowStage(r *request) (*domain.Action, error) {
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

func updateResource(r *request) (*domain.Action, error) {
	// An UpdateAction instantiated by a workflow stage behaves like
	// any other perform-type action.
	if r.prev != nil {
		if err := r.authorizePerform(r.prev); err != nil {
			return nil, err
		}
		return r.finish(r.merged(), r.prev.Status)
	}

	a := r.action
	res, err := r.e.loadResource(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	switch obj := res.(type) {
	case *domain.Organization:
		if err := r.authorize(domain.WritePermission, obj.ID); err != nil {
			return nil, err
		}
		if a.Name != "" {
			obj.Name = a.Name
		}
		obj.DateModified = r.now()
		err = r.e.put(r.ctx, obj)
	case *domain.Periodical:
		if err := r.authorize(domain.WritePermission, obj.ID); err != nil {
			return nil, err
		}
		if a.Name != "" {
			obj.Name = a.Name
		}
		if a.InstrumentID != "" {
			obj.WorkflowID = a.InstrumentID
		}
		obj.DateModified = r.now()
		err = r.e.put(r.ctx, obj)
	case *domain.Graph:
		if err := r.authorize(domain.WritePermission, obj.ID); err != nil {
			return nil, err
		}
		if a.Name != "" {
			obj.Name = a.Name
		}
		obj.DateModified = r.now()
		err = r.e.put(r.ctx, obj)
	default:
		return nil, errs.InvalidTransition("document %s cannot be updated", a.ObjectID)
	}
	if err != nil {
		return nil, err
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.ResultID = a.ObjectID
	return r.finish(a, domain.PotentialActionStatus)
}
