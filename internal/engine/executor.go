// Package engine hosts the Graph Executor, Debugger, and Scheduler (§4.D-E,
// §9): the components that walk a Workflow's node graph to completion.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/platform/metrics"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

var tracer = otel.Tracer("workflow-core/engine")

// Executor walks one Workflow's graph to completion for a single
// (trigger, trigger_data) pair. Each call to Execute owns its Context
// exclusively (§5); an Executor value itself holds no per-run state and is
// safe to reuse across concurrent executions of possibly different
// workflows.
type Executor struct {
	registry *runtime.Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewExecutor binds an Executor to a node handler registry.
func NewExecutor(registry *runtime.Registry, logger *zap.Logger) *Executor {
	if registry == nil {
		registry = runtime.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// UseMetrics attaches the process-wide Prometheus registry node execution
// counts and durations are recorded against.
func (e *Executor) UseMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Hooks lets a Debugger intercept the traversal without the Executor
// depending on debugger.go directly.
type Hooks struct {
	// BeforeNode is called immediately before a node's handler runs, with a
	// reference to the live Context for snapshotting. It may block (e.g. on
	// a breakpoint wait) and returns an error only on cancellation.
	BeforeNode func(ctx context.Context, rc *model.Context, node model.Node) error
}

// Execute runs workflow w for the given trigger, returning a Result. It
// returns a non-nil error with an empty Result when w is not Active, and a
// non-nil error together with the terminal Result when no start node
// matches, dependencies are unsatisfiable, a node under the stop policy
// fails, the run is cancelled, or a handler panics (the panic is recovered
// into a Failed Result rather than crashing the caller).
func (e *Executor) Execute(ctx context.Context, w *model.Workflow, trigger model.TriggerType, triggerData map[string]interface{}) (result model.Result, err error) {
	return e.execute(ctx, w, trigger, triggerData, nil)
}

// ExecuteWithHooks is the Debugger's entry point.
func (e *Executor) ExecuteWithHooks(ctx context.Context, w *model.Workflow, trigger model.TriggerType, triggerData map[string]interface{}, hooks *Hooks) (model.Result, error) {
	return e.execute(ctx, w, trigger, triggerData, hooks)
}

func (e *Executor) execute(ctx context.Context, w *model.Workflow, trigger model.TriggerType, triggerData map[string]interface{}, hooks *Hooks) (result model.Result, err error) {
	ctx, span := tracer.Start(ctx, "workflow.execute")
	defer span.End()

	if w.Status() != model.StatusActive {
		return model.Result{}, fmt.Errorf("%w: workflow %s is not active", model.ErrInvalidState, w.ID())
	}

	rc := model.NewContext(w.ID(), trigger, triggerData, w.Variables())

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("node handler panicked", zap.Any("recover", r), zap.String("execution_id", rc.ExecutionID))
			rc.RecordError(nil, fmt.Sprintf("handler panic: %v", r))
			result = model.NewResult(rc, model.ExecutionFailed, nil)
			err = fmt.Errorf("%w: handler panic: %v", model.ErrHandlerFailure, r)
		}
	}()

	start := startSet(w, trigger)
	if len(start) == 0 {
		rc.RecordError(nil, "no start node matched trigger")
		return model.NewResult(rc, model.ExecutionFailed, nil), fmt.Errorf("%w: no start node for trigger %s", model.ErrNoStart, trigger)
	}

	executed := make(map[string]bool)
	skipped := make(map[string]bool)
	queue := append([]string{}, start...)

	unproductive := 0
	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			rc.RecordError(nil, "cancelled")
			return model.NewResult(rc, model.ExecutionCancelled, setKeys(skipped)), model.ErrCancelled
		default:
		}

		nodeID := queue[0]
		queue = queue[1:]

		if executed[nodeID] || skipped[nodeID] {
			continue
		}

		node, ok := w.NodeByID(nodeID)
		if !ok {
			continue
		}

		if !ready(w, node, executed) {
			queue = append(queue, nodeID)
			unproductive++
			if unproductive >= len(queue) {
				rc.RecordError(nil, "unsatisfiable dependencies")
				return model.NewResult(rc, model.ExecutionFailed, setKeys(skipped)), fmt.Errorf("%w", model.ErrUnsatisfiableDependencies)
			}
			continue
		}
		unproductive = 0

		if hooks != nil && hooks.BeforeNode != nil {
			if err := hooks.BeforeNode(ctx, rc, node); err != nil {
				rc.RecordError(&nodeID, "cancelled while suspended")
				return model.NewResult(rc, model.ExecutionCancelled, setKeys(skipped)), model.ErrCancelled
			}
		}

		status, output, handlerErr := e.runNode(ctx, rc, node)

		switch status {
		case model.NodeSuccess:
			rc.RecordNodeOutput(node.ID, output)
			executed[node.ID] = true
			queue = append(queue, e.successors(w, node, output)...)

		case model.NodeFailed:
			rc.RecordError(&node.ID, errString(handlerErr))
			switch node.ErrorPolicy() {
			case model.ErrorHandlerSkip:
				skipped[node.ID] = true
				queue = append(queue, e.successors(w, node, output)...)
			case model.ErrorHandlerContinue:
				rc.RecordNodeOutput(node.ID, output)
				executed[node.ID] = true
				queue = append(queue, e.successors(w, node, output)...)
			default: // stop
				return model.NewResult(rc, model.ExecutionFailed, setKeys(skipped)), fmt.Errorf("%w: node %s: %v", model.ErrHandlerFailure, node.ID, handlerErr)
			}
		}
	}

	return model.NewResult(rc, model.ExecutionSucceeded, setKeys(skipped)), nil
}

// runNode invokes a node's handler, applying its timeout and sequential
// retry policy (§4.D "Retries are not recorded in executed_nodes per
// attempt").
func (e *Executor) runNode(ctx context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	rc.CurrentNode = node.ID

	handler, err := e.registry.Get(node.Type)
	if err != nil {
		return model.NodeFailed, nil, err
	}

	nodeCtx := ctx
	var cancel context.CancelFunc
	if timeout := nodeTimeout(node); timeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	attempts := 1 + node.RetryCount()
	var (
		status model.NodeStatus
		output map[string]interface{}
		hErr   error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		spanCtx, span := tracer.Start(nodeCtx, "node.execute", trace.WithAttributes())
		start := time.Now()
		status, output, hErr = handler.Execute(spanCtx, rc, node)
		e.recordNodeMetrics(string(node.Type), status, time.Since(start))
		span.End()

		if nodeCtx.Err() != nil {
			return model.NodeFailed, output, fmt.Errorf("%w: node %s", model.ErrTimeout, node.ID)
		}
		if status == model.NodeSuccess {
			return status, output, nil
		}
	}
	return status, output, hErr
}

func (e *Executor) recordNodeMetrics(nodeType string, status model.NodeStatus, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.NodeExecutionsTotal.WithLabelValues(nodeType, string(status)).Inc()
	e.metrics.NodeExecutionDuration.WithLabelValues(nodeType).Observe(d.Seconds())
}

func nodeTimeout(node model.Node) time.Duration {
	if node.Config == nil {
		return 0
	}
	// Only http_request and tool_action declare a meaningful handler-level
	// timeout today; other node types ignore it since they do no I/O.
	switch cfg := node.Config.(type) {
	case model.HTTPRequestConfig:
		if cfg.TimeoutSeconds != nil {
			return time.Duration(*cfg.TimeoutSeconds) * time.Second
		}
		return 30 * time.Second
	case model.ToolActionConfig:
		if cfg.TimeoutSeconds != nil {
			return time.Duration(*cfg.TimeoutSeconds) * time.Second
		}
	}
	return 0
}

// startSet resolves the start nodes for a given trigger (§4.D "Start node
// resolution").
func startSet(w *model.Workflow, trigger model.TriggerType) []string {
	var ids []string
	for _, n := range w.Nodes() {
		if trigger == model.TriggerScheduled {
			if n.Type == model.NodeScheduleStart {
				ids = append(ids, n.ID)
			}
			continue
		}
		if n.Type == model.NodeEventStart {
			if cfg, ok := n.Config.(model.EventStartConfig); ok && cfg.TriggerType == trigger {
				ids = append(ids, n.ID)
			}
		}
	}
	return ids
}

// ready reports whether every source of an incoming edge to node has
// already executed.
func ready(w *model.Workflow, node model.Node, executed map[string]bool) bool {
	for _, e := range w.Edges() {
		if e.Target == node.ID && !executed[e.Source] {
			return false
		}
	}
	return true
}

// successors implements §4.D's successor-selection rule: branching nodes
// select edges by label == output.branch; all other nodes evaluate every
// outgoing edge's optional condition against their own output.
func (e *Executor) successors(w *model.Workflow, node model.Node, output map[string]interface{}) []string {
	var next []string
	branching := node.Type.IsBranching()
	branch, _ := output["branch"].(string)

	for _, edge := range w.Edges() {
		if edge.Source != node.ID {
			continue
		}
		if branching {
			if !edge.MatchesBranch(branch) {
				continue
			}
		} else if edge.Condition != nil {
			fieldValue := output[edge.Condition.Field]
			if !model.EvaluateClause(fieldValue, edge.Condition.Operator, edge.Condition.Value) {
				continue
			}
		}
		next = append(next, edge.Target)
	}
	return next
}

func setKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
