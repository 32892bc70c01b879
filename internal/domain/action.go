package domain

import (
	"encoding/json"
	"fmt"
)

// Action is a typed unit of work. Concrete actions always reference
// their graph (or, for organization-level actions, only an object) and
// keep the workflow bookkeeping the instantiator assigned: the
// hierarchical Identifier, the template anchor, the stage occurrence id
// and the multiplex instance index.
type Action struct {
	Meta
	ActionType string    `json:"actionType,omitempty"`
	Status     string    `json:"actionStatus,omitempty"`
	Agent      *AgentRef `json:"agent,omitempty"`

	// DefaultAgent is the template-declared agent, restored by
	// UnassignAction.
	DefaultAgent *AgentRef `json:"defaultAgent,omitempty"`

	ObjectID     string        `json:"object,omitempty"`
	ResultID     string        `json:"result,omitempty"`
	InstrumentID string        `json:"instrument,omitempty"`
	Participants []Participant `json:"participant,omitempty"`

	GraphID        string `json:"targetGraph,omitempty"`
	StageID        string `json:"workflowStage,omitempty"`
	TemplateAnchor string `json:"templateAnchor,omitempty"`
	ParentActionID string `json:"parentAction,omitempty"`

	Identifier string   `json:"identifier,omitempty"`
	ActivateOn string   `json:"activateOn,omitempty"`
	CompleteOn string   `json:"completeOn,omitempty"`
	EndorseOn  string   `json:"endorseOn,omitempty"`
	Requires   []string `json:"requiresCompletionOf,omitempty"`

	MinInstances  int  `json:"minInstances,omitempty"`
	MaxInstances  int  `json:"maxInstances,omitempty"`
	InstanceIndex *int `json:"instanceIndex,omitempty"`

	// Type-dependent payloads.
	Name          string       `json:"name,omitempty"`
	Description   string       `json:"description,omitempty"`
	ResultReview  *Review      `json:"resultReview,omitempty"`
	RevisionType  string       `json:"revisionType,omitempty"`
	ReleaseType   string       `json:"releaseType,omitempty"`
	Comment       *Comment     `json:"comment,omitempty"`
	Annotations   []Annotation `json:"annotation,omitempty"`
	RecipientID   string       `json:"recipient,omitempty"`
	RecipientMail string       `json:"recipientEmail,omitempty"`
	RoleName      string       `json:"roleName,omitempty"`
	PurposeID     string       `json:"purpose,omitempty"`
	PriceUSD      int          `json:"priceUsd,omitempty"`
	Tags          []string     `json:"keywords,omitempty"`
	Encoding      *Encoding    `json:"resultEncoding,omitempty"`

	// Create payloads: permissions to declare on the created
	// resource, and an inline workflow specification template.
	Permissions []Permission           `json:"hasDigitalDocumentPermission,omitempty"`
	Workflow    *WorkflowSpecification `json:"workflowSpecification,omitempty"`

	// PotentialResult routes a completing stage-transition action to
	// the next stage template, by anchor.
	PotentialResult []PotentialResult `json:"potentialResult,omitempty"`
}

func (a *Action) DocKind() string { return TypeAction }

func (a *Action) DocParent() string {
	if a.GraphID != "" {
		return a.GraphID
	}
	return a.ObjectID
}

// Multiplexed reports whether the action came from a polyton template.
func (a *Action) Multiplexed() bool {
	return a.MaxInstances > 1
}

// Participant records an assigner or unassigner entry on an action.
type Participant struct {
	RoleName string `json:"roleName,omitempty"`
	AgentID  string `json:"agent,omitempty"`
	Date     string `json:"startDate,omitempty"`
}

// PotentialResult links a completing action to the stage template
// (anchor) the workflow routes into, gated on the completing action's
// declared revision type.
type PotentialResult struct {
	IfMatch      string `json:"ifMatch,omitempty" yaml:"ifMatch"`
	RevisionType string `json:"revisionType,omitempty" yaml:"revisionType"`
}

type Review struct {
	ID         string `json:"id,omitempty"`
	Rating     int    `json:"reviewRating,omitempty"`
	Body       string `json:"reviewBody,omitempty"`
	DatePosted string `json:"datePosted,omitempty"`
}

// Comment nodes form trees; deleting a comment deletes its descendants.
type Comment struct {
	ID       string `json:"id,omitempty"`
	Text     string `json:"text,omitempty"`
	ParentID string `json:"parentItem,omitempty"`
}

type Annotation struct {
	ID       string `json:"id,omitempty"`
	Text     string `json:"text,omitempty"`
	TargetID string `json:"annotationTarget,omitempty"`
}

// Encoding is the node an upload produces, linking stored bytes to the
// resource and release context they were uploaded against.
type Encoding struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	FileFormat  string `json:"fileFormat,omitempty"`
	ContentURL  string `json:"contentUrl,omitempty"`
	ContentSize int64  `json:"contentSize,omitempty"`
	ResourceID  string `json:"encodesCreativeWork,omitempty"`
	ReleaseID   string `json:"releaseContext,omitempty"`
}

// AgentRef is the polymorphic agent shape: a bare role id string or an
// embedded role object. It is normalized here, at the JSON boundary,
// so business logic never branches on the wire shape.
type AgentRef struct {
	RoleID string
	Role   *Role
}

// NewAgentRef returns a bare reference to a role id.
func NewAgentRef(roleID string) *AgentRef {
	return &AgentRef{RoleID: roleID}
}

// Ref returns the role id regardless of shape.
func (a *AgentRef) Ref() string {
	if a == nil {
		return ""
	}
	if a.Role != nil && a.Role.ID != "" {
		return a.Role.ID
	}
	return a.RoleID
}

func (a *AgentRef) MarshalJSON() ([]byte, error) {
	if a.Role != nil {
		return json.Marshal(a.Role)
	}
	return json.Marshal(a.RoleID)
}

func (a *AgentRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &a.RoleID)
	}
	var r Role
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("agent must be a role id or role object: %w", err)
	}
	a.Role = &r
	a.RoleID = r.ID
	return nil
}

// Grantee is a permission target: an audience by type, or a concrete
// agent or role id.
type Grantee struct {
	AudienceType string `json:"audienceType,omitempty" yaml:"audienceType"`
	ID           string `json:"id,omitempty" yaml:"id"`
}

// GranteeList accepts a single grantee object or a list on the wire.
type GranteeList []Grantee

func (g GranteeList) MarshalJSON() ([]byte, error) {
	if len(g) == 1 {
		return json.Marshal(g[0])
	}
	return json.Marshal([]Grantee(g))
}

func (g *GranteeList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var list []Grantee
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*g = list
		return nil
	}
	var one Grantee
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("grantee must be an object or a list: %w", err)
	}
	*g = GranteeList{one}
	return nil
}

// Permission is a DigitalDocumentPermission entry declared on an
// Organization, Periodical or Graph and inherited down the chain.
type Permission struct {
	PermissionType string      `json:"permissionType" yaml:"permissionType"`
	Grantee        GranteeList `json:"grantee" yaml:"grantee"`
}
