package model

import "time"

// ContextError is one entry in Context.Errors: a node-scoped (or graph-level,
// when NodeID is nil) failure record.
type ContextError struct {
	NodeID    *string
	Message   string
	Timestamp time.Time
}

// Message is one entry appended to Context.MessagesSent by a reply_message
// node.
type Message struct {
	Content    string
	ReplyTo    *string
	Components []interface{}
}

// Context is the per-execution mutable state owned exclusively by a single
// Executor instance (§3, §5). Node handlers receive a reference and may
// mutate only Variables, NodeOutputs, MessagesSent, and Errors.
type Context struct {
	WorkflowID   WorkflowID
	ExecutionID  string
	Trigger      TriggerType
	TriggerData  map[string]interface{}
	Variables    map[string]VariableState
	NodeOutputs  map[string]map[string]interface{}
	CurrentNode  string
	ExecutedNodes []string
	StartedAt    time.Time
	CompletedAt  *time.Time
	Errors       []ContextError
	MessagesSent []Message
}

// NewContext seeds a fresh Context for one execution, with variables
// initialized from the Workflow's declarations.
func NewContext(workflowID WorkflowID, trigger TriggerType, triggerData map[string]interface{}, declarations map[string]VariableDeclaration) *Context {
	if triggerData == nil {
		triggerData = map[string]interface{}{}
	}
	vars := make(map[string]VariableState, len(declarations))
	for name, decl := range declarations {
		vars[name] = VariableState{Value: decl.Default, DeclaredType: decl.DeclaredType, Scope: decl.Scope}
	}
	return &Context{
		WorkflowID:  workflowID,
		ExecutionID: NewExecutionID(),
		Trigger:     trigger,
		TriggerData: triggerData,
		Variables:   vars,
		NodeOutputs: make(map[string]map[string]interface{}),
		StartedAt:   time.Now(),
	}
}

// SetVariable records a variable's current value and runtime type name,
// per §4.B's set_variable rule ("variable recorded with its runtime type
// name").
func (c *Context) SetVariable(name string, value interface{}) {
	c.Variables[name] = VariableState{
		Value:        value,
		DeclaredType: runtimeTypeName(value),
		Scope:        "execution",
	}
}

// GetVariable returns a variable's value and whether it is declared.
func (c *Context) GetVariable(name string) (interface{}, bool) {
	v, ok := c.Variables[name]
	if !ok {
		return nil, false
	}
	return v.Value, true
}

// RecordNodeOutput stores the output_map for a node exactly once, per §5's
// single-write ordering guarantee, and appends the node to ExecutedNodes.
func (c *Context) RecordNodeOutput(nodeID string, output map[string]interface{}) {
	c.NodeOutputs[nodeID] = output
	c.ExecutedNodes = append(c.ExecutedNodes, nodeID)
}

// RecordError appends an error entry; nodeID is nil for graph-level
// failures (no_start, unsatisfiable_dependencies).
func (c *Context) RecordError(nodeID *string, message string) {
	c.Errors = append(c.Errors, ContextError{NodeID: nodeID, Message: message, Timestamp: time.Now()})
}

// AppendMessage records an outbound reply.
func (c *Context) AppendMessage(msg Message) {
	c.MessagesSent = append(c.MessagesSent, msg)
}

// LastOutput implements the Data Input Rule (§4.B): the output_map of
// executed_nodes.last(), or the empty map if no node has executed yet.
func (c *Context) LastOutput() map[string]interface{} {
	if len(c.ExecutedNodes) == 0 {
		return map[string]interface{}{}
	}
	last := c.ExecutedNodes[len(c.ExecutedNodes)-1]
	if out, ok := c.NodeOutputs[last]; ok {
		return out
	}
	return map[string]interface{}{}
}

// FinalVariableValues flattens Variables down to name → value, as required
// by Result.FinalVariables ("value only").
func (c *Context) FinalVariableValues() map[string]interface{} {
	out := make(map[string]interface{}, len(c.Variables))
	for name, v := range c.Variables {
		out[name] = v.Value
	}
	return out
}

func runtimeTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case float64, float32, int, int64:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return "unknown"
	}
}
