// Package service hosts the Workflow Manager (§4.F): the single-writer
// owner of every in-memory index over Workflows and their running state,
// backed by a repository.PersistenceAdapter.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chatflow/workflow-core/internal/adapters/blobstore"
	"github.com/chatflow/workflow-core/internal/adapters/cache"
	"github.com/chatflow/workflow-core/internal/adapters/messaging"
	"github.com/chatflow/workflow-core/internal/engine"
	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/platform/metrics"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
	"github.com/chatflow/workflow-core/internal/workflow/domain/repository"
	"github.com/chatflow/workflow-core/internal/workflow/features"
)

// DebugSession is one entry in the Manager's debug_sessions index: a
// Debugger bound to a specific workflow, addressable by session id so an
// HTTP/WebSocket caller can issue step/continue/snapshot calls across
// multiple requests.
type DebugSession struct {
	ID         string
	WorkflowID model.WorkflowID
	Debugger   *engine.Debugger
	CreatedAt  time.Time
	Done       chan struct{}
	Result     model.Result
	Err        error
}

// Manager is the Workflow Manager (§4.F). All exported methods serialize
// through mu per §5's single-writer discipline for index mutation; readers
// take a read lock for a consistent snapshot.
type Manager struct {
	store      repository.PersistenceAdapter
	registry   *runtime.Registry
	scheduler  *engine.Scheduler
	serializer *features.Serializer
	sink       messaging.Sink
	logger     *zap.Logger
	cache      *cache.RedisCache
	blobs      *blobstore.S3Store
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	mu               sync.RWMutex
	workflows        map[model.WorkflowID]*model.Workflow
	executors        map[model.WorkflowID]*engine.Executor
	debuggers        map[string]*engine.Debugger
	botWorkflows     map[string][]model.WorkflowID
	scheduledTasks   map[model.WorkflowID]bool
	activeExecutions map[string]model.WorkflowID
	debugSessions    map[string]*DebugSession
}

// NewManager wires a Manager to its collaborators. sink may be nil, in
// which case outbound reply_message deliveries are silently dropped after
// being recorded in a Result (useful for tests that only assert on Result).
func NewManager(store repository.PersistenceAdapter, registry *runtime.Registry, scheduler *engine.Scheduler, sink messaging.Sink, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = runtime.Default()
	}
	return &Manager{
		store:            store,
		registry:         registry,
		scheduler:        scheduler,
		serializer:       features.NewSerializer(),
		sink:             sink,
		logger:           logger,
		workflows:        make(map[model.WorkflowID]*model.Workflow),
		executors:        make(map[model.WorkflowID]*engine.Executor),
		debuggers:        make(map[string]*engine.Debugger),
		botWorkflows:     make(map[string][]model.WorkflowID),
		scheduledTasks:   make(map[model.WorkflowID]bool),
		activeExecutions: make(map[string]model.WorkflowID),
		debugSessions:    make(map[string]*DebugSession),
	}
}

// UseCache attaches the distributed cache a multi-instance deployment
// mirrors active_executions into, so another instance's /workflows/{id}
// status reads stay consistent with the instance actually running it.
func (m *Manager) UseCache(c *cache.RedisCache) {
	m.cache = c
}

// UseBlobStore attaches the blob store Export also archives the rendered
// YAML document to, alongside returning it inline over HTTP.
func (m *Manager) UseBlobStore(s *blobstore.S3Store) {
	m.blobs = s
}

// UseMetrics attaches the process-wide Prometheus registry workflow and
// execution counts are recorded against, and propagates it to every
// workflow's Executor.
func (m *Manager) UseMetrics(met *metrics.Metrics) {
	m.metrics = met
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.executors {
		ex.UseMetrics(met)
	}
	m.refreshWorkflowGaugeLocked()
}

// UseTracer attaches the tracer ExecuteWorkflow spans executions under. A
// nil tracer (the default) leaves ExecuteWorkflow's context untouched.
func (m *Manager) UseTracer(t trace.Tracer) {
	m.tracer = t
}

// Init loads every workflow from the store, rebuilds every index, and
// starts a schedule task for each Active workflow whose trigger set
// includes Scheduled (§4.F "Initialization").
func (m *Manager) Init(ctx context.Context) error {
	recs, err := m.store.ListWorkflows(ctx, repository.ListOptions{})
	if err != nil {
		return fmt.Errorf("manager: loading workflows: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		w := recordToWorkflow(rec)
		m.indexLocked(w)
		if w.Status() == model.StatusActive {
			m.startScheduleIfNeededLocked(w)
		}
	}
	m.refreshWorkflowGaugeLocked()
	return nil
}

func (m *Manager) indexLocked(w *model.Workflow) {
	m.workflows[w.ID()] = w
	executor := engine.NewExecutor(m.registry, m.logger)
	if m.metrics != nil {
		executor.UseMetrics(m.metrics)
	}
	m.executors[w.ID()] = executor
	if botID := w.BotID(); botID != nil {
		m.botWorkflows[*botID] = appendUnique(m.botWorkflows[*botID], w.ID())
	}
}

// refreshWorkflowGaugeLocked recomputes the workflows_total gauge by status.
// Called with m.mu held (read or write) after any index mutation that can
// change membership or status.
func (m *Manager) refreshWorkflowGaugeLocked() {
	if m.metrics == nil {
		return
	}
	counts := make(map[model.WorkflowStatus]int)
	for _, w := range m.workflows {
		counts[w.Status()]++
	}
	for _, status := range []model.WorkflowStatus{model.StatusDraft, model.StatusActive, model.StatusInactive, model.StatusArchived} {
		m.metrics.WorkflowsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func appendUnique(ids []model.WorkflowID, id model.WorkflowID) []model.WorkflowID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Create persists a brand-new Draft workflow and indexes it.
func (m *Manager) Create(ctx context.Context, name, description string) (*model.Workflow, error) {
	w, err := model.NewWorkflow(name, description)
	if err != nil {
		return nil, err
	}

	rec := workflowToRecord(w)
	id, err := m.store.InsertWorkflow(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	stored, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	w = recordToWorkflow(*stored)
	w.MarkEventsCommitted()

	m.mu.Lock()
	m.indexLocked(w)
	m.refreshWorkflowGaugeLocked()
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.WorkflowsCreated.WithLabelValues().Inc()
	}
	return w, nil
}

// Get returns the indexed workflow by id.
func (m *Manager) Get(id model.WorkflowID) (*model.Workflow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workflows[id]
	return w, ok
}

// ListFilter narrows List by bot binding and/or status.
type ListFilter struct {
	BotID  *string
	Status *model.WorkflowStatus
}

// List returns every indexed workflow matching filter.
func (m *Manager) List(filter ListFilter) []*model.Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Workflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		if filter.BotID != nil && (w.BotID() == nil || *w.BotID() != *filter.BotID) {
			continue
		}
		if filter.Status != nil && w.Status() != *filter.Status {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Update applies a field-wise merge to workflow id, bumping version and
// updated_at, and persists the result (§4.F "update").
func (m *Manager) Update(ctx context.Context, id model.WorkflowID, fields model.Fields) (*model.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", model.ErrNotFound, id)
	}

	previousBotID := w.BotID()
	expectedVersion := w.Version()
	if err := w.Update(fields); err != nil {
		return nil, err
	}

	rec := workflowToRecord(w)
	updateFields := map[string]interface{}{
		"expected_version":  expectedVersion,
		"name":              rec.Name,
		"description":       rec.Description,
		"status":            rec.Status,
		"trigger_type":      rec.TriggerType,
		"nodes":             rec.Nodes,
		"edges":             rec.Edges,
		"workflow_metadata": rec.WorkflowMeta,
	}
	if err := m.store.UpdateWorkflow(ctx, id.String(), updateFields); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}

	if newBotID := w.BotID(); !sameBotID(previousBotID, newBotID) {
		m.reindexBotLocked(id, previousBotID, newBotID)
	}
	w.MarkEventsCommitted()
	return w, nil
}

func sameBotID(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *Manager) reindexBotLocked(id model.WorkflowID, oldBot, newBot *string) {
	if oldBot != nil {
		m.botWorkflows[*oldBot] = removeID(m.botWorkflows[*oldBot], id)
	}
	if newBot != nil {
		m.botWorkflows[*newBot] = appendUnique(m.botWorkflows[*newBot], id)
	}
}

func removeID(ids []model.WorkflowID, id model.WorkflowID) []model.WorkflowID {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// Delete cascade-cancels any schedule task, drops every index entry, and
// deletes the workflow (and, per §4.G, its execution records) from the
// store (§8 testable property 7).
func (m *Manager) Delete(ctx context.Context, id model.WorkflowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workflows[id]
	if !ok {
		return fmt.Errorf("%w: workflow %s", model.ErrNotFound, id)
	}

	if m.scheduler != nil {
		m.scheduler.Cancel(id)
	}
	delete(m.scheduledTasks, id)
	delete(m.executors, id)
	delete(m.debuggers, id.String())
	if botID := w.BotID(); botID != nil {
		m.botWorkflows[*botID] = removeID(m.botWorkflows[*botID], id)
	}
	delete(m.workflows, id)
	m.refreshWorkflowGaugeLocked()

	if err := m.store.DeleteWorkflow(ctx, id.String()); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

// Activate transitions a workflow to Active and, if its triggers include
// Scheduled, starts its background schedule task.
func (m *Manager) Activate(ctx context.Context, id model.WorkflowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workflows[id]
	if !ok {
		return fmt.Errorf("%w: workflow %s", model.ErrNotFound, id)
	}
	if err := w.Activate(); err != nil {
		return err
	}
	if err := m.persistStatusLocked(ctx, w); err != nil {
		return err
	}
	m.startScheduleIfNeededLocked(w)
	w.MarkEventsCommitted()
	m.refreshWorkflowGaugeLocked()
	if m.metrics != nil {
		m.metrics.WorkflowsActivated.WithLabelValues().Inc()
	}
	return nil
}

// Deactivate transitions a workflow to Inactive and cancels its schedule
// task, if any.
func (m *Manager) Deactivate(ctx context.Context, id model.WorkflowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workflows[id]
	if !ok {
		return fmt.Errorf("%w: workflow %s", model.ErrNotFound, id)
	}
	if err := w.Deactivate(); err != nil {
		return err
	}
	if err := m.persistStatusLocked(ctx, w); err != nil {
		return err
	}
	if m.scheduler != nil {
		m.scheduler.Cancel(id)
	}
	delete(m.scheduledTasks, id)
	w.MarkEventsCommitted()
	m.refreshWorkflowGaugeLocked()
	if m.metrics != nil {
		m.metrics.WorkflowsDeactivated.WithLabelValues().Inc()
	}
	return nil
}

func (m *Manager) persistStatusLocked(ctx context.Context, w *model.Workflow) error {
	err := m.store.UpdateWorkflow(ctx, w.ID().String(), map[string]interface{}{
		"expected_version": w.Version() - 1,
		"status":           string(w.Status()),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

func (m *Manager) startScheduleIfNeededLocked(w *model.Workflow) {
	if m.scheduler == nil || !w.HasTrigger(model.TriggerScheduled) {
		return
	}
	for _, n := range w.Nodes() {
		cfg, ok := n.Config.(model.ScheduleStartConfig)
		if !ok {
			continue
		}
		workflowID := w.ID()
		err := m.scheduler.Schedule(workflowID, cfg.CronExpression, func(ctx context.Context, id model.WorkflowID) {
			if _, err := m.ExecuteWorkflow(ctx, id, model.TriggerScheduled, nil); err != nil {
				m.logger.Error("scheduled execution failed", zap.String("workflow_id", id.String()), zap.Error(err))
			}
		})
		if err != nil {
			m.logger.Error("failed to schedule workflow", zap.String("workflow_id", workflowID.String()), zap.Error(err))
			continue
		}
		m.scheduledTasks[workflowID] = true
		return
	}
}

// BindBot sets or clears a workflow's bot binding.
func (m *Manager) BindBot(ctx context.Context, id model.WorkflowID, botID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workflows[id]
	if !ok {
		return fmt.Errorf("%w: workflow %s", model.ErrNotFound, id)
	}
	previous := w.BotID()
	w.BindBot(botID)

	rec := workflowToRecord(w)
	err := m.store.UpdateWorkflow(ctx, id.String(), map[string]interface{}{
		"expected_version":  w.Version() - 1,
		"bot_id":            botID,
		"workflow_metadata": rec.WorkflowMeta,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	m.reindexBotLocked(id, previous, botID)
	w.MarkEventsCommitted()
	return nil
}

// Import parses text (§4.C) into a brand-new workflow, persists it, and
// indexes it. Returns any non-fatal import warnings alongside the result.
func (m *Manager) Import(ctx context.Context, text []byte) (*model.Workflow, []string, error) {
	w, warnings, err := m.serializer.Import(text)
	if err != nil {
		return nil, nil, err
	}

	rec := workflowToRecord(w)
	rec.UUID = ""
	id, err := m.store.InsertWorkflow(ctx, rec)
	if err != nil {
		return nil, warnings, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	stored, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, warnings, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	w = recordToWorkflow(*stored)

	m.mu.Lock()
	m.indexLocked(w)
	m.refreshWorkflowGaugeLocked()
	m.mu.Unlock()
	return w, warnings, nil
}

// Export renders a workflow as a YAML document (§4.C) and, when a blob
// store is attached, archives a copy to it best-effort.
func (m *Manager) Export(ctx context.Context, id model.WorkflowID) ([]byte, error) {
	w, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", model.ErrNotFound, id)
	}
	doc, err := m.serializer.Export(w)
	if err != nil {
		return nil, err
	}
	if m.blobs != nil {
		if _, err := m.blobs.PutWorkflow(ctx, id.String(), doc); err != nil {
			m.logger.Warn("failed to archive exported workflow", zap.String("workflow_id", id.String()), zap.Error(err))
		}
	}
	return doc, nil
}

// eventTriggerMap implements §6's event-ingress mapping
// (person_message -> PersonMessage, group_message -> GroupMessage).
var eventTriggerMap = map[string]model.TriggerType{
	"person_message": model.TriggerPersonMessage,
	"group_message":  model.TriggerGroupMessage,
}

// HandleMessageEvent iterates botID's Active workflows whose trigger_types
// include the mapped trigger kind and executes each (§4.F).
func (m *Manager) HandleMessageEvent(ctx context.Context, botID, eventType string, eventData map[string]interface{}) ([]model.Result, error) {
	trigger, ok := eventTriggerMap[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event_type %q", model.ErrValidation, eventType)
	}

	m.mu.RLock()
	var candidates []model.WorkflowID
	for _, id := range m.botWorkflows[botID] {
		if w, ok := m.workflows[id]; ok && w.Status() == model.StatusActive && w.HasTrigger(trigger) {
			candidates = append(candidates, id)
		}
	}
	m.mu.RUnlock()

	results := make([]model.Result, 0, len(candidates))
	for _, id := range candidates {
		res, err := m.ExecuteWorkflow(ctx, id, trigger, eventData)
		if err != nil {
			m.logger.Error("workflow execution failed", zap.String("workflow_id", id.String()), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// ExecuteWorkflow runs workflow id for (trigger, data), records the
// execution in the store, drains any MessagesSent into the Sink, and
// returns the terminal Result.
func (m *Manager) ExecuteWorkflow(ctx context.Context, id model.WorkflowID, trigger model.TriggerType, data map[string]interface{}) (model.Result, error) {
	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.Start(ctx, "workflow.execute",
			trace.WithAttributes(
				attribute.String("workflow.id", id.String()),
				attribute.String("workflow.trigger", string(trigger)),
			),
		)
		defer span.End()
	}

	m.mu.RLock()
	w, ok := m.workflows[id]
	executor := m.executors[id]
	m.mu.RUnlock()
	if !ok {
		return model.Result{}, fmt.Errorf("%w: workflow %s", model.ErrNotFound, id)
	}
	if executor == nil {
		executor = engine.NewExecutor(m.registry, m.logger)
	}

	execID, err := m.store.InsertExecution(ctx, repository.ExecutionRecord{
		WorkflowUUID: id.String(),
		TriggerData:  data,
		Status:       string(model.ExecutionRunning),
		StartedAt:    time.Now(),
	})
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}

	m.mu.Lock()
	m.activeExecutions[execID] = id
	m.mu.Unlock()
	m.mirrorActiveExecution(ctx, execID, id)
	if m.metrics != nil {
		m.metrics.ExecutionsTotal.WithLabelValues(id.String(), string(trigger)).Inc()
		m.metrics.ExecutionsInProgress.WithLabelValues(id.String()).Inc()
	}
	defer func() {
		m.mu.Lock()
		delete(m.activeExecutions, execID)
		m.mu.Unlock()
		m.unmirrorActiveExecution(ctx, execID)
		if m.metrics != nil {
			m.metrics.ExecutionsInProgress.WithLabelValues(id.String()).Dec()
		}
	}()

	start := time.Now()
	result, execErr := executor.Execute(ctx, w, trigger, data)
	if m.metrics != nil {
		m.metrics.ExecutionDuration.WithLabelValues(id.String()).Observe(time.Since(start).Seconds())
		if execErr != nil {
			m.metrics.ExecutionsFailed.WithLabelValues(id.String(), errorCode(execErr)).Inc()
		} else {
			m.metrics.ExecutionsCompleted.WithLabelValues(id.String()).Inc()
		}
	}
	if span != nil {
		if execErr != nil {
			span.RecordError(execErr)
			span.SetStatus(codes.Error, execErr.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	m.finishExecution(ctx, execID, result, execErr)
	m.deliverMessages(ctx, id.String(), result)
	return result, execErr
}

// errorCode collapses an execution error down to the model sentinel it
// wraps, so the executions_failed_total cardinality stays bounded
// regardless of a handler's free-form error text.
func errorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrTimeout):
		return "timeout"
	case errors.Is(err, model.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, model.ErrNoStart):
		return "no_start"
	case errors.Is(err, model.ErrUnsatisfiableDependencies):
		return "unsatisfiable_dependencies"
	default:
		return "handler_error"
	}
}

// mirrorActiveExecution and unmirrorActiveExecution keep a Redis copy of
// activeExecutions so another instance behind the same load balancer can
// answer "is execID still running, and on which workflow" without a direct
// RPC to this instance. Best-effort: a cache error never fails the
// execution itself.
func (m *Manager) mirrorActiveExecution(ctx context.Context, execID string, workflowID model.WorkflowID) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, "active_execution:"+execID, workflowID.String(), 0); err != nil {
		m.logger.Warn("failed to mirror active execution to cache", zap.String("execution_id", execID), zap.Error(err))
	}
}

func (m *Manager) unmirrorActiveExecution(ctx context.Context, execID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, "active_execution:"+execID); err != nil {
		m.logger.Warn("failed to clear mirrored active execution", zap.String("execution_id", execID), zap.Error(err))
	}
}

func (m *Manager) finishExecution(ctx context.Context, execID string, result model.Result, execErr error) {
	finishedAt := result.EndedAt
	fields := map[string]interface{}{
		"status":         string(result.Status),
		"finished_at":    &finishedAt,
		"execution_path": result.ExecutedNodes,
		"node_outputs":   flattenOutputs(result.Outputs),
	}
	if execErr != nil {
		msg := execErr.Error()
		fields["error"] = &msg
	}
	if err := m.store.UpdateExecution(ctx, execID, fields); err != nil {
		m.logger.Error("failed to persist execution result", zap.String("execution_id", execID), zap.Error(err))
	}
}

func flattenOutputs(outputs map[string]map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(outputs))
	for k, v := range outputs {
		out[k] = v
	}
	return out
}

func (m *Manager) deliverMessages(ctx context.Context, workflowID string, result model.Result) {
	if m.sink == nil {
		return
	}
	for _, msg := range result.MessagesSent {
		if err := m.sink.Send(ctx, workflowID, result.ExecutionID, msg.Content, msg.ReplyTo); err != nil {
			m.logger.Error("failed to deliver message", zap.String("execution_id", result.ExecutionID), zap.Error(err))
		}
	}
}

// DebugWorkflow starts a debug-intercepted execution of workflow id and
// registers it under a new debug_sessions entry (§4.F "debug_workflow").
// The execution runs in the background; callers drive it via the returned
// session's Debugger (Step/Continue/SetBreakpoint/Snapshot) and read Done
// to learn when it finishes.
func (m *Manager) DebugWorkflow(ctx context.Context, id model.WorkflowID, trigger model.TriggerType, data map[string]interface{}, breakpoints []string, stepMode bool) (*DebugSession, error) {
	m.mu.RLock()
	w, ok := m.workflows[id]
	executor := m.executors[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", model.ErrNotFound, id)
	}
	if executor == nil {
		executor = engine.NewExecutor(m.registry, m.logger)
	}

	sessionID := model.NewExecutionID()
	debugger := engine.NewDebugger(executor)
	session := &DebugSession{
		ID:         sessionID,
		WorkflowID: id,
		Debugger:   debugger,
		CreatedAt:  time.Now(),
		Done:       make(chan struct{}),
	}

	m.mu.Lock()
	m.debuggers[sessionID] = debugger
	m.debugSessions[sessionID] = session
	m.mu.Unlock()

	go func() {
		defer close(session.Done)
		result, err := debugger.Execute(ctx, w, trigger, data, breakpoints, stepMode)
		session.Result = result
		session.Err = err
	}()

	return session, nil
}

// DebugSessionByID looks up a previously started debug session.
func (m *Manager) DebugSessionByID(sessionID string) (*DebugSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.debugSessions[sessionID]
	return s, ok
}

// EndDebugSession drops a debug session's index entries once the caller is
// done with it (the goroutine itself has already returned by then).
func (m *Manager) EndDebugSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.debuggers, sessionID)
	delete(m.debugSessions, sessionID)
}

// workflowToRecord and recordToWorkflow implement §4.G's boundary
// translation: metadata <-> workflow_metadata, id <-> uuid, and
// trigger_types[] -> trigger_type by taking the first element (defaulting
// to Manual). The persistence record shape (§6) has no dedicated slot for
// tags, category, or variable declarations, so they are folded into
// workflow_metadata under reserved keys and peeled back out on load —
// documented in DESIGN.md as the resolution of that gap.

func workflowToRecord(w *model.Workflow) repository.WorkflowRecord {
	meta := map[string]interface{}{}
	for k, v := range w.Metadata() {
		meta[k] = v
	}
	if vars := w.Variables(); len(vars) > 0 {
		varsOut := make(map[string]interface{}, len(vars))
		for name, decl := range vars {
			varsOut[name] = map[string]interface{}{
				"default": decl.Default, "declared_type": decl.DeclaredType, "scope": decl.Scope,
			}
		}
		meta["_variables"] = varsOut
	}
	if tags := w.Tags(); len(tags) > 0 {
		tagsOut := make([]interface{}, len(tags))
		for i, t := range tags {
			tagsOut[i] = t
		}
		meta["_tags"] = tagsOut
	}
	if w.Category() != "" {
		meta["_category"] = w.Category()
	}

	triggerType := string(model.TriggerManual)
	if types := w.TriggerTypes(); len(types) > 0 {
		triggerType = string(types[0])
	}

	return repository.WorkflowRecord{
		UUID:          w.ID().String(),
		Name:          w.Name(),
		Description:   w.Description(),
		BotID:         w.BotID(),
		TriggerType:   triggerType,
		TriggerConfig: map[string]interface{}{},
		Nodes:         features.NodesToRecord(w.Nodes()),
		Edges:         features.EdgesToRecord(w.Edges()),
		Status:        string(w.Status()),
		Version:       w.Version(),
		WorkflowMeta:  meta,
		CreatedAt:     w.CreatedAt(),
		UpdatedAt:     w.UpdatedAt(),
	}
}

func recordToWorkflow(rec repository.WorkflowRecord) *model.Workflow {
	var triggerTypes []model.TriggerType
	if rec.TriggerType != "" {
		triggerTypes = []model.TriggerType{model.TriggerType(rec.TriggerType)}
	}

	meta := rec.WorkflowMeta
	if meta == nil {
		meta = map[string]interface{}{}
	}

	variables := map[string]model.VariableDeclaration{}
	if raw, ok := meta["_variables"].(map[string]interface{}); ok {
		for name, v := range raw {
			if vm, ok := v.(map[string]interface{}); ok {
				declaredType, _ := vm["declared_type"].(string)
				scope, _ := vm["scope"].(string)
				variables[name] = model.VariableDeclaration{Default: vm["default"], DeclaredType: declaredType, Scope: scope}
			}
		}
	}

	var tags []string
	if raw, ok := meta["_tags"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	category, _ := meta["_category"].(string)

	cleanMeta := map[string]interface{}{}
	for k, v := range meta {
		if k == "_variables" || k == "_tags" || k == "_category" {
			continue
		}
		cleanMeta[k] = v
	}

	return model.Reconstruct(
		model.WorkflowID(rec.UUID), rec.Name, rec.Description, rec.Version,
		model.WorkflowStatus(rec.Status), triggerTypes,
		features.NodesFromRecord(rec.Nodes), features.EdgesFromRecord(rec.Edges),
		variables, rec.BotID, tags, category, cleanMeta, rec.CreatedAt, rec.UpdatedAt,
	)
}
