package repository

import (
	"context"
	"time"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// ListOptions parameterizes PersistenceAdapter.ListWorkflows /
// ListExecutions per §4.G's `list(sort_by, sort_order, bot_id?)`.
type ListOptions struct {
	SortBy    string
	SortOrder SortOrder
	BotID     *string
	Limit     int
}

// WorkflowRecord is the logical shape of a workflow row at the adapter
// boundary (§6): a single trigger_type (not the aggregate's ordered set),
// nodes/edges stored as opaque maps, and workflow_metadata rather than
// metadata. Field-name translation between this shape and the aggregate
// happens in the adapter implementation, never in the Manager or Serializer.
type WorkflowRecord struct {
	UUID           string
	Name           string
	Description    string
	BotID          *string
	TriggerType    string
	TriggerConfig  map[string]interface{}
	Nodes          map[string]interface{}
	Edges          map[string]interface{}
	Status         string
	Version        int
	WorkflowMeta   map[string]interface{}
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExecutionRecord is the logical shape of an execution row at the adapter
// boundary (§6).
type ExecutionRecord struct {
	UUID          string
	WorkflowUUID  string
	TriggerData   map[string]interface{}
	Status        string
	StartedAt     time.Time
	FinishedAt    *time.Time
	ExecutionPath []string
	NodeOutputs   map[string]interface{}
	Error         *string
}

// PersistenceAdapter is the narrow contract the Workflow Manager depends on
// (§4.G). Implementations (internal/adapters/persistence) must be safe for
// concurrent calls from multiple executions (§5).
type PersistenceAdapter interface {
	ListWorkflows(ctx context.Context, opts ListOptions) ([]WorkflowRecord, error)
	GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error)
	InsertWorkflow(ctx context.Context, rec WorkflowRecord) (string, error)
	UpdateWorkflow(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteWorkflow(ctx context.Context, id string) error

	ListExecutions(ctx context.Context, workflowID string, opts ListOptions) ([]ExecutionRecord, error)
	GetExecution(ctx context.Context, id string) (*ExecutionRecord, error)
	InsertExecution(ctx context.Context, rec ExecutionRecord) (string, error)
	UpdateExecution(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteExecutionsByWorkflow(ctx context.Context, workflowID string) error
}
