package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatflow/workflow-core/internal/workflow/domain/repository"
)

// InMemoryAdapter implements repository.PersistenceAdapter over plain maps,
// guarded by a single mutex. It backs local development and tests; it is
// selected by config.ServiceConfig.PersistenceBackend == "memory".
type InMemoryAdapter struct {
	mu         sync.RWMutex
	workflows  map[string]repository.WorkflowRecord
	executions map[string]repository.ExecutionRecord
}

func NewInMemoryAdapter() *InMemoryAdapter {
	return &InMemoryAdapter{
		workflows:  make(map[string]repository.WorkflowRecord),
		executions: make(map[string]repository.ExecutionRecord),
	}
}

func (a *InMemoryAdapter) ListWorkflows(_ context.Context, opts repository.ListOptions) ([]repository.WorkflowRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]repository.WorkflowRecord, 0, len(a.workflows))
	for _, rec := range a.workflows {
		if opts.BotID != nil && (rec.BotID == nil || *rec.BotID != *opts.BotID) {
			continue
		}
		out = append(out, rec)
	}
	sortWorkflows(out, opts)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (a *InMemoryAdapter) GetWorkflow(_ context.Context, id string) (*repository.WorkflowRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (a *InMemoryAdapter) InsertWorkflow(_ context.Context, rec repository.WorkflowRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if rec.UUID == "" {
		rec.UUID = uuid.New().String()
	}
	if _, exists := a.workflows[rec.UUID]; exists {
		return "", fmt.Errorf("persistence: workflow %s already exists", rec.UUID)
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Version == 0 {
		rec.Version = 1
	}
	a.workflows[rec.UUID] = rec
	return rec.UUID, nil
}

// UpdateWorkflow applies fields to the stored record. A fields["expected_version"]
// entry triggers an optimistic-lock check against the stored version before
// the update is applied and the version is incremented.
func (a *InMemoryAdapter) UpdateWorkflow(_ context.Context, id string, fields map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.workflows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if expected, has := fields["expected_version"]; has {
		if ev, ok := expected.(int); !ok || ev != rec.Version {
			return repository.ErrOptimisticLock
		}
	}
	applyWorkflowFields(&rec, fields)
	rec.Version++
	rec.UpdatedAt = time.Now()
	a.workflows[id] = rec
	return nil
}

func (a *InMemoryAdapter) DeleteWorkflow(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.workflows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(a.workflows, id)
	for execID, exec := range a.executions {
		if exec.WorkflowUUID == id {
			delete(a.executions, execID)
		}
	}
	return nil
}

func (a *InMemoryAdapter) ListExecutions(_ context.Context, workflowID string, opts repository.ListOptions) ([]repository.ExecutionRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]repository.ExecutionRecord, 0)
	for _, rec := range a.executions {
		if rec.WorkflowUUID != workflowID {
			continue
		}
		out = append(out, rec)
	}
	sortExecutions(out, opts)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (a *InMemoryAdapter) GetExecution(_ context.Context, id string) (*repository.ExecutionRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.executions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (a *InMemoryAdapter) InsertExecution(_ context.Context, rec repository.ExecutionRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec.UUID == "" {
		rec.UUID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	a.executions[rec.UUID] = rec
	return rec.UUID, nil
}

func (a *InMemoryAdapter) UpdateExecution(_ context.Context, id string, fields map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.executions[id]
	if !ok {
		return repository.ErrNotFound
	}
	applyExecutionFields(&rec, fields)
	a.executions[id] = rec
	return nil
}

func (a *InMemoryAdapter) DeleteExecutionsByWorkflow(_ context.Context, workflowID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, rec := range a.executions {
		if rec.WorkflowUUID == workflowID {
			delete(a.executions, id)
		}
	}
	return nil
}

func applyWorkflowFields(rec *repository.WorkflowRecord, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "name":
			rec.Name = value.(string)
		case "description":
			rec.Description = value.(string)
		case "bot_id":
			if v, ok := value.(*string); ok {
				rec.BotID = v
			}
		case "trigger_type":
			rec.TriggerType = value.(string)
		case "trigger_config":
			rec.TriggerConfig = value.(map[string]interface{})
		case "nodes":
			rec.Nodes = value.(map[string]interface{})
		case "edges":
			rec.Edges = value.(map[string]interface{})
		case "status":
			rec.Status = value.(string)
		case "workflow_metadata":
			rec.WorkflowMeta = value.(map[string]interface{})
		}
	}
}

func applyExecutionFields(rec *repository.ExecutionRecord, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "status":
			rec.Status = value.(string)
		case "finished_at":
			if v, ok := value.(*time.Time); ok {
				rec.FinishedAt = v
			}
		case "execution_path":
			rec.ExecutionPath = value.([]string)
		case "node_outputs":
			rec.NodeOutputs = value.(map[string]interface{})
		case "error":
			if v, ok := value.(*string); ok {
				rec.Error = v
			}
		}
	}
}

func sortWorkflows(recs []repository.WorkflowRecord, opts repository.ListOptions) {
	less := func(i, j int) bool {
		a, b := recs[i], recs[j]
		switch opts.SortBy {
		case "name":
			return a.Name < b.Name
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}
	if opts.SortOrder == repository.SortDescending {
		sort.Slice(recs, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.Slice(recs, less)
}

func sortExecutions(recs []repository.ExecutionRecord, opts repository.ListOptions) {
	less := func(i, j int) bool { return recs[i].StartedAt.Before(recs[j].StartedAt) }
	if opts.SortOrder == repository.SortDescending {
		sort.Slice(recs, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.Slice(recs, less)
}
