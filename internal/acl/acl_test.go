package acl_test

import (
	"context"
	"testing"

	"librarian/internal/acl"
	"librarian/internal/domain"
)

// fakeFetcher serves a fixed chain and role set.
type fakeFetcher struct {
	chain []acl.Ancestor
	roles []domain.Role
}

func (f *fakeFetcher) Ancestors(ctx context.Context, resourceID string) ([]acl.Ancestor, error) {
	return f.chain, nil
}

func (f *fakeFetcher) AgentRoles(ctx context.Context, agentID string, resourceIDs []string) ([]domain.Role, error) {
	var out []domain.Role
	for _, r := range f.roles {
		if r.AgentID != agentID {
			continue
		}
		for _, id := range resourceIDs {
			if r.SubjectID == id {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func perm(permType string, grantees ...domain.Grantee) domain.Permission {
	return domain.Permission{PermissionType: permType, Grantee: grantees}
}

func publicationChain() []acl.Ancestor {
	return []acl.Ancestor{
		{ID: "g1", Kind: domain.TypeGraph, Permissions: []domain.Permission{
			perm(domain.WritePermission, domain.Grantee{AudienceType: domain.AuthorAudience}),
		}},
		{ID: "p1", Kind: domain.TypePeriodical, Permissions: []domain.Permission{
			perm(domain.ReadPermission, domain.Grantee{AudienceType: domain.PublicAudience}),
			perm(domain.WritePermission, domain.Grantee{AudienceType: domain.UserAudience}),
		}},
		{ID: "o1", Kind: domain.TypeOrganization, Permissions: []domain.Permission{
			perm(domain.AdminPermission, domain.Grantee{ID: "owner-1"}),
		}},
	}
}

func checker(t *testing.T, f *fakeFetcher, agent string) *acl.Checker {
	t.Helper()
	c, err := acl.NewChecker(context.Background(), f, agent, "g1")
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	return c
}

func TestPublicAudienceMatchesAnonymous(t *testing.T) {
	f := &fakeFetcher{chain: publicationChain()}
	c := checker(t, f, "")
	if !c.Check(domain.ReadPermission) {
		t.Fatal("public read denied to anonymous caller")
	}
	if c.Check(domain.WritePermission) {
		t.Fatal("user-audience write granted to anonymous caller")
	}
	if !c.PublicAvailability() {
		t.Fatal("public availability not detected")
	}
}

func TestUserAudienceNeedsAnAgent(t *testing.T) {
	f := &fakeFetcher{chain: publicationChain()}
	c := checker(t, f, "agent-1")
	if !c.Check(domain.WritePermission) {
		t.Fatal("user-audience write denied to authenticated agent")
	}
}

func TestAudienceRoleResolution(t *testing.T) {
	f := &fakeFetcher{
		chain: publicationChain(),
		roles: []domain.Role{
			{Meta: domain.Meta{ID: "r1"}, AgentID: "alex", RoleName: "author", SubjectID: "g1", StartDate: "2024-01-01"},
		},
	}
	c := checker(t, f, "alex")
	if !c.Check(domain.WritePermission) {
		t.Fatal("author-audience write denied to graph author")
	}
	if !c.HasAudienceRole("author") || c.HasAudienceRole("reviewer") {
		t.Fatal("audience role lookup broken")
	}
	if !c.HasAnyRole() {
		t.Fatal("active role not detected")
	}

	// An ended role no longer grants anything.
	f.roles[0].EndDate = "2024-02-01"
	ended := checker(t, f, "alex")
	if ended.HasAudienceRole("author") {
		t.Fatal("ended role still granting author audience")
	}
}

func TestDirectGrants(t *testing.T) {
	f := &fakeFetcher{chain: publicationChain()}
	owner := checker(t, f, "owner-1")
	if !owner.Check(domain.AdminPermission) {
		t.Fatal("direct agent grant denied")
	}
	other := checker(t, f, "someone-else")
	if other.Check(domain.AdminPermission) {
		t.Fatal("admin granted to unrelated agent")
	}
}

func TestRoleIDGrant(t *testing.T) {
	f := &fakeFetcher{
		chain: []acl.Ancestor{{ID: "g1", Kind: domain.TypeGraph, Permissions: []domain.Permission{
			perm(domain.WritePermission, domain.Grantee{ID: "role-9"}),
		}}},
		roles: []domain.Role{
			{Meta: domain.Meta{ID: "role-9"}, AgentID: "casey", RoleName: "producer", SubjectID: "g1", StartDate: "2024-01-01"},
		},
	}
	c := checker(t, f, "casey")
	if !c.Check(domain.WritePermission) {
		t.Fatal("role-id grant denied to role holder")
	}
}

func TestCheckReadErrorChannel(t *testing.T) {
	f := &fakeFetcher{chain: []acl.Ancestor{{ID: "g1", Kind: domain.TypeGraph}}}
	c := checker(t, f, "alex")
	ok, err := c.CheckRead()
	if ok || err == nil {
		t.Fatalf("expected denial, got ok=%v err=%v", ok, err)
	}
}
