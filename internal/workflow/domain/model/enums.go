package model

// WorkflowStatus is the lifecycle state of a Workflow definition.
type WorkflowStatus string

const (
	StatusDraft    WorkflowStatus = "draft"
	StatusActive   WorkflowStatus = "active"
	StatusInactive WorkflowStatus = "inactive"
	StatusArchived WorkflowStatus = "archived"
)

func (s WorkflowStatus) valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// TriggerType is a named event kind that causes a workflow to run.
type TriggerType string

const (
	TriggerPersonMessage TriggerType = "person_message"
	TriggerGroupMessage  TriggerType = "group_message"
	TriggerScheduled     TriggerType = "scheduled"
	TriggerManual        TriggerType = "manual"
	TriggerAPI           TriggerType = "api"
)

func (t TriggerType) valid() bool {
	switch t {
	case TriggerPersonMessage, TriggerGroupMessage, TriggerScheduled, TriggerManual, TriggerAPI:
		return true
	}
	return false
}

// NodeType tags the eleven built-in node behaviors.
type NodeType string

const (
	NodeEventStart         NodeType = "event_start"
	NodeScheduleStart      NodeType = "schedule_start"
	NodeHTTPRequest        NodeType = "http_request"
	NodeJSONProcessor      NodeType = "json_processor"
	NodeReplyMessage       NodeType = "reply_message"
	NodeSetVariable        NodeType = "set_variable"
	NodeGetVariable        NodeType = "get_variable"
	NodeCondition          NodeType = "condition"
	NodeChatCommandBranch  NodeType = "chat_command_branch"
	NodeToolAction         NodeType = "tool_action"
	NodeEnd                NodeType = "end"
)

// IsStartType reports whether a node of this type can seed a traversal.
func (t NodeType) IsStartType() bool {
	return t == NodeEventStart || t == NodeScheduleStart
}

// IsBranching reports whether a node of this type selects successors by a
// "branch" output key rather than by evaluating every outgoing edge.
func (t NodeType) IsBranching() bool {
	return t == NodeCondition || t == NodeChatCommandBranch
}

// ErrorHandler is the per-node policy applied when a handler reports Failed.
type ErrorHandler string

const (
	ErrorHandlerStop     ErrorHandler = "stop"
	ErrorHandlerSkip     ErrorHandler = "skip"
	ErrorHandlerContinue ErrorHandler = "continue"
)

func (h ErrorHandler) orDefault() ErrorHandler {
	if h == "" {
		return ErrorHandlerStop
	}
	return h
}

// NodeStatus is the outcome of a single handler invocation.
type NodeStatus string

const (
	NodeSuccess NodeStatus = "success"
	NodeFailed  NodeStatus = "failed"
)

// ExecutionStatus is the state machine of one execution.
type ExecutionStatus string

const (
	ExecutionIdle      ExecutionStatus = "idle"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// JSONOperation enumerates the json_processor node's supported operations.
type JSONOperation string

const (
	JSONExtract     JSONOperation = "extract"
	JSONSet         JSONOperation = "set"
	JSONSerialize   JSONOperation = "serialize"
	JSONDeserialize JSONOperation = "deserialize"
)

// BooleanLogic combines condition clauses.
type BooleanLogic string

const (
	LogicAnd BooleanLogic = "and"
	LogicOr  BooleanLogic = "or"
)

func (l BooleanLogic) orDefault() BooleanLogic {
	if l == "" {
		return LogicAnd
	}
	return l
}

// ClauseOperator is the comparison operator used by condition clauses and
// edge conditions alike (§4.A).
type ClauseOperator string

const (
	OpEquals      ClauseOperator = "equals"
	OpNotEquals   ClauseOperator = "not_equals"
	OpContains    ClauseOperator = "contains"
	OpGreaterThan ClauseOperator = "greater_than"
	OpLessThan    ClauseOperator = "less_than"
)
