package engine

import (
	"context"
	"sync"

	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// Snapshot is the Debugger's context digest (§4.E "snapshot(): execution_id,
// current_node, executed_nodes, variables-as-values, node_outputs, errors").
type Snapshot struct {
	ExecutionID   string
	CurrentNode   string
	ExecutedNodes []string
	Variables     map[string]interface{}
	NodeOutputs   map[string]map[string]interface{}
	Errors        []model.ContextError
}

// Debugger wraps an Executor and intercepts node transitions, suspending
// the traversal at breakpoints or in step mode (§4.E). One Debugger backs
// exactly one in-flight debug execution.
type Debugger struct {
	executor *Executor

	mu          sync.Mutex
	breakpoints map[string]bool
	stepMode    bool
	suspended   bool
	resume      chan struct{}

	rc *model.Context
}

// NewDebugger wraps executor with breakpoint/step interception.
func NewDebugger(executor *Executor) *Debugger {
	return &Debugger{
		executor:    executor,
		breakpoints: make(map[string]bool),
		resume:      make(chan struct{}),
	}
}

// SetBreakpoint marks nodeID as a suspension point.
func (d *Debugger) SetBreakpoint(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints[nodeID] = true
}

// ClearBreakpoint removes nodeID's suspension.
func (d *Debugger) ClearBreakpoint(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.breakpoints, nodeID)
}

// SetStepMode enables or disables suspension before every node.
func (d *Debugger) SetStepMode(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stepMode = enabled
}

// Step advances exactly one node past the current suspension point.
func (d *Debugger) Step() {
	d.mu.Lock()
	d.stepMode = true
	d.mu.Unlock()
	d.signalResume()
}

// Continue runs to the next breakpoint or termination.
func (d *Debugger) Continue() {
	d.mu.Lock()
	d.stepMode = false
	d.mu.Unlock()
	d.signalResume()
}

func (d *Debugger) signalResume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.suspended {
		close(d.resume)
		d.resume = make(chan struct{})
		d.suspended = false
	}
}

// Snapshot returns a consistent digest of the wrapped Context as of the
// last completed transition. While suspended, the Context is read-only, so
// this is always safe to call concurrently with the debug goroutine.
func (d *Debugger) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rc == nil {
		return Snapshot{}
	}
	return Snapshot{
		ExecutionID:   d.rc.ExecutionID,
		CurrentNode:   d.rc.CurrentNode,
		ExecutedNodes: append([]string{}, d.rc.ExecutedNodes...),
		Variables:     d.rc.FinalVariableValues(),
		NodeOutputs:   d.rc.NodeOutputs,
		Errors:        d.rc.Errors,
	}
}

// Execute runs workflow w under debug interception. It suspends before a
// node when stepMode is on or that node's id is a breakpoint, so it starts
// suspended only if one of those holds for the first node (the Manager's
// debug_workflow passes breakpoints and stepMode in up front per §4.F).
func (d *Debugger) Execute(ctx context.Context, w *model.Workflow, trigger model.TriggerType, triggerData map[string]interface{}, breakpoints []string, stepMode bool) (model.Result, error) {
	d.mu.Lock()
	for _, b := range breakpoints {
		d.breakpoints[b] = true
	}
	d.stepMode = stepMode
	d.mu.Unlock()

	hooks := &Hooks{
		BeforeNode: func(ctx context.Context, rc *model.Context, node model.Node) error {
			d.mu.Lock()
			d.rc = rc
			shouldSuspend := d.breakpoints[node.ID] || d.stepMode
			d.mu.Unlock()

			if !shouldSuspend {
				return nil
			}

			d.mu.Lock()
			d.suspended = true
			waitCh := d.resume
			d.mu.Unlock()

			select {
			case <-waitCh:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	return d.executor.ExecuteWithHooks(ctx, w, trigger, triggerData, hooks)
}
