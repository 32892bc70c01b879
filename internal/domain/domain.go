package domain

import "encoding/json"

// Resource type tags, stored in the "type" field of every document.
const (
	TypeOrganization          = "Organization"
	TypePeriodical            = "Periodical"
	TypeGraph                 = "Graph"
	TypeRelease               = "Release"
	TypeWorkflowSpecification = "WorkflowSpecification"
	TypeRole                  = "Role"
	TypeAction                = "Action"
)

// Meta carries the fields shared by every persisted resource. Rev is
// the opaque revision token assigned by the document store; Deleted
// marks a tombstone.
type Meta struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Rev          string `json:"rev,omitempty"`
	Deleted      bool   `json:"_deleted,omitempty"`
	DateCreated  string `json:"dateCreated,omitempty"`
	DateModified string `json:"dateModified,omitempty"`
}

func (m *Meta) DocID() string     { return m.ID }
func (m *Meta) DocRev() string    { return m.Rev }
func (m *Meta) SetRev(rev string) { m.Rev = rev }
func (m *Meta) MarkDeleted()      { m.Deleted = true }

// Persistable is what the engine hands to the document store adapter.
type Persistable interface {
	DocID() string
	DocRev() string
	SetRev(rev string)
	DocKind() string
	DocParent() string
}

type Organization struct {
	Meta
	Name        string       `json:"name,omitempty"`
	Permissions []Permission `json:"hasDigitalDocumentPermission,omitempty"`
}

func (o *Organization) DocKind() string   { return TypeOrganization }
func (o *Organization) DocParent() string { return "" }

type Periodical struct {
	Meta
	OrganizationID string       `json:"publisher,omitempty"`
	Name           string       `json:"name,omitempty"`
	WorkflowID     string       `json:"workflow,omitempty"`
	Permissions    []Permission `json:"hasDigitalDocumentPermission,omitempty"`
}

func (p *Periodical) DocKind() string   { return TypePeriodical }
func (p *Periodical) DocParent() string { return p.OrganizationID }

// Graph is the mutable submission draft. Counter is the release-worthy
// event counter (draft = 1, advanced when a release is cut). AnchorMap
// memoizes workflow template anchors to concrete action ids so cycles
// re-enter existing stages instead of cloning them; StageSeq counts
// stage occurrences instantiated so far.
type Graph struct {
	Meta
	PeriodicalID string            `json:"isPartOf,omitempty"`
	Name         string            `json:"name,omitempty"`
	Counter      int               `json:"identifier,omitempty"`
	WorkflowID   string            `json:"workflow,omitempty"`
	Permissions  []Permission      `json:"hasDigitalDocumentPermission,omitempty"`
	Tags         []string          `json:"keywords,omitempty"`
	AnchorMap    map[string]string `json:"workflowMap,omitempty"`
	StageSeq     int               `json:"stageSequence,omitempty"`
}

func (g *Graph) DocKind() string   { return TypeGraph }
func (g *Graph) DocParent() string { return g.PeriodicalID }

// Release is an immutable snapshot of a Graph. The latest release is
// stored under a distinct key (see version.LatestKey); cutting a new
// one re-keys the previous latest to its pinned-version key.
type Release struct {
	Meta
	GraphID     string          `json:"isReleaseOf,omitempty"`
	Version     string          `json:"version,omitempty"`
	Permissions []Permission    `json:"hasDigitalDocumentPermission,omitempty"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"`
}

func (r *Release) DocKind() string   { return TypeRelease }
func (r *Release) DocParent() string { return r.GraphID }

type WorkflowSpecification struct {
	Meta
	PeriodicalID    string            `json:"isPartOf,omitempty"`
	Name            string            `json:"name,omitempty"`
	ReleaseType     string            `json:"releaseType,omitempty"`
	PotentialAction []*ActionTemplate `json:"potentialAction,omitempty"`
}

func (w *WorkflowSpecification) DocKind() string   { return TypeWorkflowSpecification }
func (w *WorkflowSpecification) DocParent() string { return w.PeriodicalID }

// Role attaches an agent to a resource. Entries are append-only:
// leaving sets EndDate, re-inviting creates a fresh entry, so a closed
// and an open entry for the same agent and resource may coexist.
type Role struct {
	Meta
	AgentID   string `json:"agent,omitempty"`
	RoleName  string `json:"roleName,omitempty"`
	SubjectID string `json:"subjectOf,omitempty"`
	Email     string `json:"email,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

func (r *Role) DocKind() string   { return TypeRole }
func (r *Role) DocParent() string { return r.SubjectID }

// Active reports whether the role entry is attached and not ended.
func (r *Role) Active() bool {
	return !r.Pending && r.EndDate == ""
}

// ItemRef identifies one document affected by a cascading delete.
type ItemRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ItemList is the itemized result of a cascading delete.
type ItemList struct {
	Type          string    `json:"type"`
	NumberOfItems int       `json:"numberOfItems"`
	Items         []ItemRef `json:"itemListElement"`
}

func NewItemList(items []ItemRef) *ItemList {
	return &ItemList{Type: "ItemList", NumberOfItems: len(items), Items: items}
}
