package engine

import (
	"context"

	"go.uber.org/zap"

	"librarian/internal/acl"
	"librarian/internal/domain"
	"librarian/internal/errs"
)

// Options qualifies one Process call.
type Options struct {
	// Agent is the authenticated agent id asserted by the caller;
	// empty means anonymous.
	Agent string
	// BypassACL skips authorization, for trusted internal calls.
	BypassACL bool
	// IfMatch makes the update conditional on the revision the caller
	// observed.
	IfMatch string
	// SkipPayments completes PayActions without charging, for
	// administrative overrides.
	SkipPayments bool
}

type request struct {
	ctx    context.Context
	e      *Engine
	action *domain.Action
	// prev is the stored version of the action when the post targets
	// an existing instantiated action.
	prev *domain.Action
	opts Options
}

var handlers = map[string]func(*request) (*domain.Action, error){
	"CreateOrganizationAction":          createOrganization,
	"CreatePeriodicalAction":            createPeriodical,
	"CreateWorkflowSpecificationAction": createWorkflowSpecification,
	"CreateGraphAction":                 createGraph,
	"StartWorkflowStageAction":          startWorkflowStage,
	"UpdateAction":                      updateResource,
	"ReviewAction":                      performReview,
	"AssessAction":                      performAssess,
	"EndorseAction":                     performEndorse,
	"PayAction":                         performPay,
	"PublishAction":                     performPublish,
	"CancelAction":                      performCancel,
	"TagAction":                         performTag,
	"CommentAction":                     performComment,
	"InviteAction":                      inviteParticipant,
	"AcceptAction":                      acceptInvite,
	"RejectAction":                      rejectInvite,
	"JoinAction":                        joinResource,
	"LeaveAction":                       leaveResource,
	"AssignAction":                      assignAgent,
	"UnassignAction":                    unassignAgent,
}

// Process runs one action through the pipeline: load the stored
// version when one exists, validate the status transition, then hand
// off to the type handler, which authorizes, executes and persists.
func (e *Engine) Process(ctx context.Context, a *domain.Action, opts Options) (*domain.Action, error) {
	if a == nil || a.ActionType == "" {
		return nil, errs.InvalidTransition("actionType is required")
	}
	exec, ok := handlers[a.ActionType]
	if !ok {
		return nil, errs.InvalidTransition("unsupported action type %q", a.ActionType)
	}
	r := &request{ctx: ctx, e: e, action: a, opts: opts}
	if a.ID != "" {
		prev, err := e.getAction(ctx, a.ID)
		switch {
		case err == nil:
			r.prev = prev
			if opts.IfMatch != "" && opts.IfMatch != prev.Rev {
				return nil, errs.WriteConflict("action %s was modified concurrently", a.ID)
			}
			if err := ensureTransition(prev.Status, a.Status); err != nil {
				return nil, err
			}
		case errs.StatusOf(err) == 404:
			// Fresh action with a caller-chosen id.
		default:
			return nil, err
		}
	}
	out, err := exec(r)
	if err != nil {
		e.Log.Debug("action rejected",
			zap.String("actionType", a.ActionType),
			zap.String("agent", opts.Agent),
			zap.Error(err))
		return nil, err
	}
	e.Log.Info("action processed",
		zap.String("actionType", out.ActionType),
		zap.String("action", out.ID),
		zap.String("status", out.Status))
	e.audit("action.processed", out.ID, opts.Agent, map[string]any{
		"actionType":   out.ActionType,
		"actionStatus": out.Status,
	})
	return out, nil
}

// ensureTransition enforces the forward-only status machine. Terminal
// statuses admit no further move, re-posting the same terminal status
// included, so completion side effects never run twice; Canceled and
// Failed are reachable from any non-terminal status.
func ensureTransition(from, to string) error {
	if domain.IsTerminalStatus(from) {
		return errs.InvalidTransition("action is %s and admits no further transition", from)
	}
	if to == "" || from == to {
		return nil
	}
	switch to {
	case domain.CanceledActionStatus, domain.FailedActionStatus:
		return nil
	}
	if domain.StatusRank(to) < 0 {
		return errs.InvalidTransition("unknown action status %q", to)
	}
	if from != "" && domain.StatusRank(to) < domain.StatusRank(from) {
		return errs.InvalidTransition("cannot move %s back to %s", from, to)
	}
	return nil
}

func (r *request) now() string {
	return r.e.now()
}

// fresh fills the envelope fields of a newly posted action.
func (r *request) fresh(a *domain.Action) {
	if a.ID == "" {
		a.ID = r.e.NewID()
	}
	a.Type = domain.TypeAction
	if a.DateCreated == "" {
		a.DateCreated = r.now()
	}
}

// merged overlays the posted payload onto the stored action. Workflow
// bookkeeping (identifier, stage, triggers, multiplex bounds) is never
// caller-writable.
func (r *request) merged() *domain.Action {
	out := *r.prev
	in := r.action
	if in.Status != "" {
		out.Status = in.Status
	}
	if in.Name != "" {
		out.Name = in.Name
	}
	if in.Description != "" {
		out.Description = in.Description
	}
	if in.ResultReview != nil {
		out.ResultReview = in.ResultReview
	}
	if in.RevisionType != "" {
		out.RevisionType = in.RevisionType
	}
	if in.ReleaseType != "" {
		out.ReleaseType = in.ReleaseType
	}
	if in.Comment != nil {
		out.Comment = in.Comment
	}
	if len(in.Annotations) > 0 {
		out.Annotations = in.Annotations
	}
	if len(in.Tags) > 0 {
		out.Tags = in.Tags
	}
	if in.ResultID != "" {
		out.ResultID = in.ResultID
	}
	if in.InstrumentID != "" {
		out.InstrumentID = in.InstrumentID
	}
	return &out
}

// requirePrev returns the stored action a perform-type post targets.
func (r *request) requirePrev() (*domain.Action, error) {
	if r.prev == nil {
		return nil, errs.NotFound("action %s not found", r.action.ID)
	}
	return r.prev, nil
}

// finish persists the action and cascades the transition it performed.
func (r *request) finish(a *domain.Action, from string) (*domain.Action, error) {
	a.DateModified = r.now()
	if err := r.e.put(r.ctx, a); err != nil {
		return nil, err
	}
	if err := r.e.triggers.Cascade(r.ctx, a, from, a.Status); err != nil {
		return nil, err
	}
	return a, nil
}

// checker builds an ACL checker for the request agent against a
// resource's ownership chain.
func (r *request) checker(resourceID string) (*acl.Checker, error) {
	return acl.NewChecker(r.ctx, r.e, r.opts.Agent, resourceID)
}

// authorize requires the agent to hold permission (or AdminPermission)
// on the resource's ownership chain.
func (r *request) authorize(permission, resourceID string) error {
	if r.opts.BypassACL {
		return nil
	}
	if r.opts.Agent == "" {
		return errs.PermissionDenied("anonymous callers cannot perform %s", r.action.ActionType)
	}
	c, err := r.checker(resourceID)
	if err != nil {
		return err
	}
	if c.Check(permission) || c.Check(domain.AdminPermission) {
		return nil
	}
	return errs.PermissionDenied("agent %q lacks %s on %s", r.opts.Agent, permission, resourceID)
}

// authorizePerform authorizes acting on an instantiated workflow
// action: the assigned agent, an agent holding the template-default
// role, or a chain-level write or perform grant all qualify.
func (r *request) authorizePerform(target *domain.Action) error {
	if r.opts.BypassACL {
		return nil
	}
	if r.opts.Agent == "" {
		return errs.PermissionDenied("anonymous callers cannot perform %s", r.action.ActionType)
	}
	if ok, err := r.agentHolds(target.Agent); err != nil {
		return err
	} else if ok {
		return nil
	}
	c, err := r.checker(target.DocParent())
	if err != nil {
		return err
	}
	if c.Check(domain.PerformPermission) || c.Check(domain.WritePermission) || c.Check(domain.AdminPermission) {
		return nil
	}
	if role := refRoleName(target.Agent); role != "" && c.HasAudienceRole(role) {
		return nil
	}
	return errs.PermissionDenied("agent %q may not perform action %s", r.opts.Agent, target.ID)
}

// agentHolds reports whether the request agent is the concrete agent
// behind an agent reference.
func (r *request) agentHolds(ref *domain.AgentRef) (bool, error) {
	if ref == nil {
		return false, nil
	}
	if ref.Role != nil && ref.Role.AgentID != "" {
		return ref.Role.AgentID == r.opts.Agent, nil
	}
	id := ref.Ref()
	if id == "" {
		return false, nil
	}
	if id == r.opts.Agent {
		return true, nil
	}
	role, err := r.e.getRole(r.ctx, id)
	if err != nil {
		if errs.StatusOf(err) == 404 {
			return false, nil
		}
		return false, err
	}
	return role.Active() && role.AgentID == r.opts.Agent, nil
}

// refRoleName extracts the role name of an inline template-default
// agent reference.
func refRoleName(ref *domain.AgentRef) string {
	if ref == nil || ref.Role == nil {
		return ""
	}
	return ref.Role.RoleName
}

// Advance applies one cascaded transition. It runs the type-specific
// completion logic of the advanced action, persists it and recurses
// back into the trigger engine, so triggered transitions behave
// exactly like direct ones.
func (e *Engine) Advance(ctx context.Context, a *domain.Action, toStatus string) error {
	from := a.Status
	if err := ensureTransition(from, toStatus); err != nil {
		return err
	}
	a.Status = toStatus
	a.DateModified = e.now()

	var reset *domain.Action
	if toStatus == domain.CompletedActionStatus && a.ActionType == "StartWorkflowStageAction" {
		var err error
		reset, err = e.routeTransition(ctx, a, a.RevisionType)
		if err != nil {
			return err
		}
	}
	if err := e.put(ctx, a); err != nil {
		return err
	}
	if err := e.applyReset(ctx, a, reset); err != nil {
		return err
	}
	// Endorsement lifts the parent only after the endorsing action is
	// durable; the parent's own cascade may read it back.
	if toStatus == domain.CompletedActionStatus && a.ActionType == "EndorseAction" {
		if err := e.endorseParent(ctx, a); err != nil {
			return err
		}
	}
	e.audit("action.advanced", a.ID, "", map[string]any{
		"actionType":   a.ActionType,
		"actionStatus": toStatus,
	})
	return e.triggers.Cascade(ctx, a, from, toStatus)
}

// applyReset overwrites a just-completed cyclic transition action
// with its fresh state for the next workflow round. The completed
// version remains observable through the returned action; the store
// moves on to the new round.
func (e *Engine) applyReset(ctx context.Context, completed, reset *domain.Action) error {
	if reset == nil {
		return nil
	}
	reset.Rev = completed.Rev
	reset.DateModified = e.now()
	return e.put(ctx, reset)
}

// endorseParent lifts the endorsed action's structural parent to
// EndorsedActionStatus once its endorsement child completes.
func (e *Engine) endorseParent(ctx context.Context, endorsement *domain.Action) error {
	if endorsement.ParentActionID == "" {
		return nil
	}
	parent, err := e.getAction(ctx, endorsement.ParentActionID)
	if err != nil {
		if errs.StatusOf(err) == 404 {
			return nil
		}
		return err
	}
	if domain.IsTerminalStatus(parent.Status) {
		return nil
	}
	if domain.StatusRank(parent.Status) >= domain.StatusRank(domain.EndorsedActionStatus) {
		return nil
	}
	return e.Advance(ctx, parent, domain.EndorsedActionStatus)
}
