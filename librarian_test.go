package librarian_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"librarian"
)

func TestOpenPostGetClose(t *testing.T) {
	dir := t.TempDir()
	lib, err := librarian.Open(dir)
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	defer lib.Close()
	ctx := context.Background()

	out, err := lib.Post(ctx, &librarian.Action{
		ActionType: "CreateOrganizationAction",
		Name:       "Kringle Press",
		ResultID:   "org-1",
	}, librarian.Options{Agent: "olive"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if out.Status != librarian.CompletedActionStatus {
		t.Fatalf("status = %s", out.Status)
	}

	res, err := lib.Get(ctx, "org-1", librarian.GetOptions{Agent: "olive"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	org, ok := res.Resource.(*librarian.Organization)
	if !ok || org.Name != "Kringle Press" {
		t.Fatalf("resource: %#v", res.Resource)
	}

	up, err := lib.Upload(ctx, "logo.svg", "image/svg+xml", "org-1",
		strings.NewReader("<svg/>"), librarian.Options{Agent: "olive"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if up.Encoding == nil || up.Encoding.ContentURL == "" {
		t.Fatalf("encoding: %+v", up.Encoding)
	}

	if err := lib.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The workspace carries the store, the blobs and the audit log.
	if _, err := os.Stat(filepath.Join(dir, ".librarian", "events.log")); err != nil {
		t.Fatalf("audit log: %v", err)
	}
}

func TestWorkflowYAMLRoundTrip(t *testing.T) {
	src := []byte(`
name: minimal
potentialAction:
  - id: "_:submission"
    actionType: CreateGraphAction
    potentialAction:
      - id: "_:review"
        actionType: ReviewAction
        agentRoleName: reviewer
`)
	spec, err := librarian.ParseWorkflowYAML(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.Name != "minimal" || len(spec.PotentialAction) != 1 {
		t.Fatalf("spec: %+v", spec)
	}
	if got := spec.PotentialAction[0].PotentialAction[0].AgentRoleName; got != "reviewer" {
		t.Fatalf("agentRoleName = %q", got)
	}
}
