// Package librarian is a workflow orchestration engine for scholarly
// publishing: organizations run periodicals, periodicals define
// workflow specifications, submissions move through instantiated
// workflow stages as typed actions, and completed workflows cut
// versioned releases.
package librarian

import (
	"context"
	"io"

	"librarian/internal/config"
	"librarian/internal/domain"
	"librarian/internal/engine"
	"librarian/internal/workflow"
)

// Re-exported domain types, so callers never import internal packages.
type (
	Action                = domain.Action
	ActionTemplate        = domain.ActionTemplate
	Graph                 = domain.Graph
	ItemList              = domain.ItemList
	Organization          = domain.Organization
	Periodical            = domain.Periodical
	Permission            = domain.Permission
	Release               = domain.Release
	Role                  = domain.Role
	WorkflowSpecification = domain.WorkflowSpecification

	Config        = config.Config
	Options       = engine.Options
	GetOptions    = engine.GetOptions
	GetResult     = engine.GetResult
	UploadRequest = engine.UploadRequest
)

// Action statuses.
const (
	PotentialActionStatus = domain.PotentialActionStatus
	ActiveActionStatus    = domain.ActiveActionStatus
	StagedActionStatus    = domain.StagedActionStatus
	EndorsedActionStatus  = domain.EndorsedActionStatus
	CompletedActionStatus = domain.CompletedActionStatus
	CanceledActionStatus  = domain.CanceledActionStatus
	FailedActionStatus    = domain.FailedActionStatus
)

// Librarian is the embedded engine handle.
type Librarian struct {
	engine *engine.Engine
}

// Open loads configuration from the workspace and starts the engine
// over the configured store backend.
func Open(workspace string) (*Librarian, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	return OpenConfig(cfg)
}

// OpenConfig starts the engine with explicit configuration.
func OpenConfig(cfg *Config) (*Librarian, error) {
	e, err := engine.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &Librarian{engine: e}, nil
}

// Engine exposes the underlying dispatcher for callers wiring custom
// collaborators.
func (l *Librarian) Engine() *engine.Engine { return l.engine }

// Post dispatches one action.
func (l *Librarian) Post(ctx context.Context, a *Action, opts Options) (*Action, error) {
	return l.engine.Process(ctx, a, opts)
}

// Get reads one document, optionally embedding its attached actions.
func (l *Librarian) Get(ctx context.Context, id string, opts GetOptions) (*GetResult, error) {
	return l.engine.Get(ctx, id, opts)
}

// Delete tombstones a document and everything it owns.
func (l *Librarian) Delete(ctx context.Context, id string, opts GetOptions) (*ItemList, error) {
	return l.engine.Delete(ctx, id, opts)
}

// Upload stores a file and records the producing UploadAction.
func (l *Librarian) Upload(ctx context.Context, name, fileFormat, resourceID string, body io.Reader, opts Options) (*Action, error) {
	return l.engine.Upload(ctx, engine.UploadRequest{
		ResourceID: resourceID,
		Name:       name,
		FileFormat: fileFormat,
		Body:       body,
	}, opts)
}

// PublicAvailability reports whether the public audience can read the
// resource.
func (l *Librarian) PublicAvailability(ctx context.Context, id string) (bool, error) {
	return l.engine.PublicAvailability(ctx, id)
}

// ParseWorkflowYAML parses a workflow specification authored in YAML.
func ParseWorkflowYAML(data []byte) (*WorkflowSpecification, error) {
	return workflow.SpecFromYAML(data)
}

func (l *Librarian) Close() error {
	return l.engine.Close()
}
