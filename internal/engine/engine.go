package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"librarian/internal/config"
	"librarian/internal/docstore"
	"librarian/internal/domain"
	"librarian/internal/errs"
	"librarian/internal/events"
	"librarian/internal/notify"
	"librarian/internal/payments"
	"librarian/internal/roles"
	"librarian/internal/trigger"
	"librarian/internal/workflow"
)

// Engine is the action dispatcher: it validates, authorizes, executes
// and persists typed actions, then cascades the resulting status
// changes across dependent actions.
type Engine struct {
	Store    docstore.Store
	Config   *config.Config
	Payments payments.Provider
	Notifier notify.Notifier
	Blobs    BlobStore
	Events   *events.Writer
	Log      *zap.Logger
	Now      func() time.Time
	NewID    func() string

	triggers *trigger.Engine
}

// New wires an engine over an open store. Collaborators (Payments,
// Notifier, Blobs, Events) are optional; a nil collaborator disables
// the corresponding side effect.
func New(store docstore.Store, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		Store:  store,
		Config: cfg,
		Log:    zap.NewNop(),
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
	e.triggers = &trigger.Engine{Steps: e}
	return e
}

// Open builds an engine from configuration: it opens the configured
// store backend and the workspace-local blob store and audit log.
func Open(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	var (
		store docstore.Store
		err   error
	)
	switch cfg.Store.Backend {
	case "", "sqlite":
		store, err = docstore.OpenSQLite(cfg.Store.Workspace)
	case "bolt":
		dir, derr := docstore.EnsureWorkspace(cfg.Store.Workspace)
		if derr != nil {
			return nil, derr
		}
		store, err = docstore.OpenBolt(filepath.Join(dir, "librarian.boltdb"), 0o600)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}
	e := New(store, cfg)

	dir, err := docstore.EnsureWorkspace(cfg.Store.Workspace)
	if err != nil {
		store.Close()
		return nil, err
	}
	e.Blobs = &FileBlobStore{Dir: filepath.Join(dir, "blobs")}
	e.Events, err = events.Open(filepath.Join(dir, "events.log"))
	if err != nil {
		store.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) Close() error {
	var err error
	if e.Events != nil {
		err = e.Events.Close()
	}
	if cerr := e.Store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (e *Engine) now() string {
	return e.Now().UTC().Format(time.RFC3339)
}

func (e *Engine) roleManager() *roles.Manager {
	return &roles.Manager{Now: e.Now, NewID: e.NewID}
}

func (e *Engine) inviteTokens() roles.Tokens {
	return roles.Tokens{Secret: []byte(e.Config.Tokens.InviteSecret), Now: e.Now}
}

func (e *Engine) instantiator(spec *domain.WorkflowSpecification) *workflow.Instantiator {
	return &workflow.Instantiator{Spec: spec, NewID: e.NewID, Now: e.Now}
}

// audit records a processed event; audit failures are logged, never
// surfaced to the caller.
func (e *Engine) audit(evtType, resourceID, actorID string, payload map[string]any) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Append(evtType, resourceID, actorID, payload); err != nil {
		e.Log.Warn("audit append failed", zap.String("event", evtType), zap.Error(err))
	}
}

// fetch loads one document into out. Tombstones read as not found.
func (e *Engine) fetch(ctx context.Context, id string, out domain.Persistable) error {
	doc, err := e.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return errs.NotFound("document %s not found", id)
		}
		return err
	}
	if doc.Deleted {
		return errs.NotFound("document %s not found", id)
	}
	if err := json.Unmarshal(doc.Body, out); err != nil {
		return fmt.Errorf("decode document %s: %w", id, err)
	}
	out.SetRev(doc.Rev)
	return nil
}

// put persists a resource conditioned on the revision it was read at;
// an empty revision creates the document.
func (e *Engine) put(ctx context.Context, res domain.Persistable) error {
	rev := res.DocRev()
	res.SetRev("")
	body, err := json.Marshal(res)
	res.SetRev(rev)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", res.DocID(), err)
	}
	doc := docstore.Doc{
		ID:     res.DocID(),
		Kind:   res.DocKind(),
		Parent: res.DocParent(),
		Body:   body,
	}
	stored, err := e.Store.Put(ctx, doc, rev)
	if err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return errs.WriteConflict("document %s was modified concurrently", res.DocID())
		}
		return err
	}
	res.SetRev(stored.Rev)
	return nil
}

func (e *Engine) exists(ctx context.Context, id string) (bool, error) {
	doc, err := e.Store.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !doc.Deleted, nil
}

func (e *Engine) getAction(ctx context.Context, id string) (*domain.Action, error) {
	var a domain.Action
	if err := e.fetch(ctx, id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (e *Engine) getGraph(ctx context.Context, id string) (*domain.Graph, error) {
	var g domain.Graph
	if err := e.fetch(ctx, id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (e *Engine) getPeriodical(ctx context.Context, id string) (*domain.Periodical, error) {
	var p domain.Periodical
	if err := e.fetch(ctx, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (e *Engine) getOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	var o domain.Organization
	if err := e.fetch(ctx, id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (e *Engine) getWorkflow(ctx context.Context, id string) (*domain.WorkflowSpecification, error) {
	var w domain.WorkflowSpecification
	if err := e.fetch(ctx, id, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (e *Engine) getRole(ctx context.Context, id string) (*domain.Role, error) {
	var r domain.Role
	if err := e.fetch(ctx, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (e *Engine) getRelease(ctx context.Context, id string) (*domain.Release, error) {
	var r domain.Release
	if err := e.fetch(ctx, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// loadResource resolves a document id to its typed resource.
func (e *Engine) loadResource(ctx context.Context, id string) (domain.Persistable, error) {
	doc, err := e.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, errs.NotFound("document %s not found", id)
		}
		return nil, err
	}
	if doc.Deleted {
		return nil, errs.NotFound("document %s not found", id)
	}
	var out domain.Persistable
	switch doc.Kind {
	case domain.TypeOrganization:
		out = &domain.Organization{}
	case domain.TypePeriodical:
		out = &domain.Periodical{}
	case domain.TypeGraph:
		out = &domain.Graph{}
	case domain.TypeRelease:
		out = &domain.Release{}
	case domain.TypeWorkflowSpecification:
		out = &domain.WorkflowSpecification{}
	case domain.TypeRole:
		out = &domain.Role{}
	case domain.TypeAction:
		out = &domain.Action{}
	default:
		return nil, fmt.Errorf("document %s has unknown kind %q", id, doc.Kind)
	}
	if err := json.Unmarshal(doc.Body, out); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	out.SetRev(doc.Rev)
	return out, nil
}

// GraphActions returns every live action attached to a graph. It is
// the trigger engine's view of the action graph.
func (e *Engine) GraphActions(ctx context.Context, graphID string) ([]*domain.Action, error) {
	docs, err := e.Store.Query(ctx, docstore.Query{Kind: domain.TypeAction, Parent: graphID})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Action, 0, len(docs))
	for _, d := range docs {
		var a domain.Action
		if err := json.Unmarshal(d.Body, &a); err != nil {
			return nil, fmt.Errorf("decode action %s: %w", d.ID, err)
		}
		a.SetRev(d.Rev)
		out = append(out, &a)
	}
	return out, nil
}

func (e *Engine) resourceRoles(ctx context.Context, subjectID string) ([]*domain.Role, error) {
	docs, err := e.Store.Query(ctx, docstore.Query{Kind: domain.TypeRole, Parent: subjectID})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Role, 0, len(docs))
	for _, d := range docs {
		var r domain.Role
		if err := json.Unmarshal(d.Body, &r); err != nil {
			return nil, fmt.Errorf("decode role %s: %w", d.ID, err)
		}
		r.SetRev(d.Rev)
		out = append(out, &r)
	}
	return out, nil
}
