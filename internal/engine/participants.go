package engine

import (
	"librarian/internal/domain"
	"librarian/internal/errs"
)

func inviteParticipant(r *request) (*domain.Action, error) {
	a := r.action
	if _, err := r.e.loadResource(r.ctx, a.ObjectID); err != nil {
		return nil, err
	}
	if err := r.authorize(domain.WritePermission, a.ObjectID); err != nil {
		return nil, err
	}
	if a.RoleName == "" {
		return nil, errs.InvalidTransition("roleName is required for an InviteAction")
	}
	if a.RecipientID == "" && a.RecipientMail == "" {
		return nil, errs.InvalidTransition("an InviteAction needs a recipient or a recipient email")
	}

	role := r.e.roleManager().NewInvite(a.ObjectID, a.RoleName, a.RecipientID, a.RecipientMail)
	if err := r.e.put(r.ctx, role); err != nil {
		return nil, err
	}

	if r.e.Notifier != nil && a.RecipientMail != "" {
		token := ""
		if r.e.Config.Tokens.InviteSecret != "" {
			t, err := r.e.inviteTokens().Encode(role.ID)
			if err != nil {
				return nil, errs.UpstreamFailure("sign invite token: %v", err)
			}
			token = t
		}
		msg, err := r.e.Notifier.Render("invite", map[string]any{
			"to":       a.RecipientMail,
			"subject":  "Invitation",
			"roleName": a.RoleName,
			"token":    token,
		})
		if err != nil {
			return nil, errs.UpstreamFailure("render invitation: %v", err)
		}
		if err := r.e.Notifier.Send(r.ctx, msg); err != nil {
			return nil, errs.UpstreamFailure("send invitation: %v", err)
		}
	}

	r.fresh(a)
	a.Status = domain.ActiveActionStatus
	a.ResultID = role.ID
	return r.finish(a, domain.PotentialActionStatus)
}

// resolveInvite locates the pending role an Accept or Reject targets:
// through an anonymized token, the invite action, or the role id
// itself.
func (r *request) resolveInvite() (*domain.Role, *domain.Action, error) {
	a := r.action
	if a.InstrumentID != "" {
		roleID, err := r.e.inviteTokens().Decode(a.InstrumentID)
		if err != nil {
			return nil, nil, errs.PermissionDenied("invalid invite token")
		}
		role, err := r.e.getRole(r.ctx, roleID)
		if err != nil {
			return nil, nil, err
		}
		return role, nil, nil
	}
	if invite, err := r.e.getAction(r.ctx, a.ObjectID); err == nil {
		role, err := r.e.getRole(r.ctx, invite.ResultID)
		if err != nil {
			return nil, nil, err
		}
		return role, invite, nil
	} else if errs.StatusOf(err) != 404 {
		return nil, nil, err
	}
	role, err := r.e.getRole(r.ctx, a.ObjectID)
	if err != nil {
		return nil, nil, err
	}
	return role, nil, nil
}

func acceptInvite(r *request) (*domain.Action, error) {
	a := r.action
	role, invite, err := r.resolveInvite()
	if err != nil {
		return nil, err
	}
	if !r.opts.BypassACL && role.AgentID != "" && role.AgentID != r.opts.Agent {
		return nil, errs.PermissionDenied("invitation %s was issued to a different agent", role.ID)
	}
	if role.AgentID == "" && r.opts.Agent == "" {
		return nil, errs.InvalidTransition("an agent is required to accept an invitation")
	}
	if err := r.e.roleManager().Accept(role, r.opts.Agent); err != nil {
		return nil, err
	}
	if err := r.e.put(r.ctx, role); err != nil {
		return nil, err
	}
	if invite != nil && !domain.IsTerminalStatus(invite.Status) {
		invite.Status = domain.CompletedActionStatus
		invite.DateModified = r.now()
		if err := r.e.put(r.ctx, invite); err != nil {
			return nil, err
		}
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.ResultID = role.ID
	return r.finish(a, domain.PotentialActionStatus)
}

func rejectInvite(r *request) (*domain.Action, error) {
	a := r.action
	role, invite, err := r.resolveInvite()
	if err != nil {
		return nil, err
	}
	if !r.opts.BypassACL && role.AgentID != "" && role.AgentID != r.opts.Agent {
		return nil, errs.PermissionDenied("invitation %s was issued to a different agent", role.ID)
	}
	if err := r.e.roleManager().Reject(role); err != nil {
		return nil, err
	}
	if err := r.e.put(r.ctx, role); err != nil {
		return nil, err
	}
	if invite != nil && !domain.IsTerminalStatus(invite.Status) {
		invite.Status = domain.CanceledActionStatus
		invite.DateModified = r.now()
		if err := r.e.put(r.ctx, invite); err != nil {
			return nil, err
		}
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.ResultID = role.ID
	return r.finish(a, domain.PotentialActionStatus)
}

func joinResource(r *request) (*domain.Action, error) {
	a := r.action
	if _, err := r.e.loadResource(r.ctx, a.ObjectID); err != nil {
		return nil, err
	}
	if r.opts.Agent == "" && !r.opts.BypassACL {
		return nil, errs.PermissionDenied("anonymous callers cannot join")
	}
	if a.RoleName == "" {
		return nil, errs.InvalidTransition("roleName is required for a JoinAction")
	}
	if !r.opts.BypassACL {
		eligible, err := r.joinEligible(a.ObjectID)
		if err != nil {
			return nil, err
		}
		if !eligible {
			return nil, errs.PermissionDenied("agent %q is not affiliated with %s", r.opts.Agent, a.ObjectID)
		}
	}
	role := r.e.roleManager().Join(a.ObjectID, a.RoleName, r.opts.Agent)
	if err := r.e.put(r.ctx, role); err != nil {
		return nil, err
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.ResultID = role.ID
	return r.finish(a, domain.PotentialActionStatus)
}

// joinEligible accepts agents already affiliated somewhere on the
// resource's chain, or holding a write or admin grant there.
func (r *request) joinEligible(resourceID string) (bool, error) {
	chain, err := r.e.Ancestors(r.ctx, resourceID)
	if err != nil {
		return false, err
	}
	ids := make([]string, 0, len(chain))
	for _, a := range chain {
		ids = append(ids, a.ID)
	}
	entries, err := r.e.AgentRoles(r.ctx, r.opts.Agent, ids)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Active() {
			return true, nil
		}
	}
	c, err := r.checker(resourceID)
	if err != nil {
		return false, err
	}
	return c.Check(domain.WritePermission) || c.Check(domain.AdminPermission), nil
}

func leaveResource(r *request) (*domain.Action, error) {
	a := r.action
	if _, err := r.e.loadResource(r.ctx, a.ObjectID); err != nil {
		return nil, err
	}
	agent := r.opts.Agent
	if a.RecipientID != "" && a.RecipientID != r.opts.Agent {
		// Removing someone else requires an admin grant.
		if err := r.authorize(domain.AdminPermission, a.ObjectID); err != nil {
			return nil, err
		}
		agent = a.RecipientID
	}
	entries, err := r.e.resourceRoles(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	mgr := r.e.roleManager()
	left := 0
	for _, role := range entries {
		if role.AgentID != agent || !role.Active() {
			continue
		}
		if a.RoleName != "" && role.RoleName != a.RoleName {
			continue
		}
		if err := mgr.Leave(role); err != nil {
			return nil, err
		}
		if err := r.e.put(r.ctx, role); err != nil {
			return nil, err
		}
		left++
	}
	if left == 0 {
		return nil, errs.NotFound("agent %q holds no active role on %s", agent, a.ObjectID)
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	return r.finish(a, domain.PotentialActionStatus)
}

func assignAgent(r *request) (*domain.Action, error) {
	a := r.action
	target, err := r.e.getAction(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := r.authorize(domain.WritePermission, target.DocParent()); err != nil {
		return nil, err
	}
	if a.RecipientID == "" {
		return nil, errs.InvalidTransition("recipient role is required for an AssignAction")
	}
	role, err := r.e.getRole(r.ctx, a.RecipientID)
	if err != nil {
		return nil, err
	}
	if !role.Active() {
		return nil, errs.InvalidTransition("role %s is not active", role.ID)
	}
	r.e.roleManager().Assign(target, role, r.opts.Agent)
	target.DateModified = r.now()
	if err := r.e.put(r.ctx, target); err != nil {
		return nil, err
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.GraphID = target.GraphID
	a.ResultID = target.ID
	return r.finish(a, domain.PotentialActionStatus)
}

func unassignAgent(r *request) (*domain.Action, error) {
	a := r.action
	target, err := r.e.getAction(r.ctx, a.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := r.authorize(domain.WritePermission, target.DocParent()); err != nil {
		return nil, err
	}
	if err := r.e.roleManager().Unassign(target, r.opts.Agent); err != nil {
		return nil, err
	}
	target.DateModified = r.now()
	if err := r.e.put(r.ctx, target); err != nil {
		return nil, err
	}
	r.fresh(a)
	a.Status = domain.CompletedActionStatus
	a.GraphID = target.GraphID
	a.ResultID = target.ID
	return r.finish(a, domain.PotentialActionStatus)
}
