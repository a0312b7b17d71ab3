package model

import (
	"fmt"
	"time"
)

const maxNodesPerWorkflow = 500

// Workflow is the aggregate root: a user-authored directed graph definition
// (§3). Fields are private; callers observe and mutate through the methods
// below so that every state change can bump Version and raise a
// DomainEvent.
type Workflow struct {
	id          WorkflowID
	name        string
	description string
	version     int
	status      WorkflowStatus

	triggerTypes []TriggerType
	nodes        []Node
	edges        []Edge
	variables    map[string]VariableDeclaration

	botID *string

	tags     []string
	category string
	metadata map[string]interface{}

	createdAt time.Time
	updatedAt time.Time

	events []DomainEvent
}

// NewWorkflow constructs a Draft workflow. name must be non-empty.
func NewWorkflow(name, description string) (*Workflow, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	now := time.Now()
	w := &Workflow{
		id:          NewWorkflowID(),
		name:        name,
		description: description,
		version:     1,
		status:      StatusDraft,
		variables:   make(map[string]VariableDeclaration),
		metadata:    make(map[string]interface{}),
		createdAt:   now,
		updatedAt:   now,
	}
	w.addEvent(WorkflowCreatedEvent{baseEvent: newBaseEvent(w.id), Name: name})
	return w, nil
}

// Reconstruct rehydrates a Workflow from persisted state without raising
// creation events. Used by the Persistence Adapter's read path.
func Reconstruct(
	id WorkflowID, name, description string, version int, status WorkflowStatus,
	triggerTypes []TriggerType, nodes []Node, edges []Edge,
	variables map[string]VariableDeclaration, botID *string,
	tags []string, category string, metadata map[string]interface{},
	createdAt, updatedAt time.Time,
) *Workflow {
	if variables == nil {
		variables = make(map[string]VariableDeclaration)
	}
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Workflow{
		id: id, name: name, description: description, version: version, status: status,
		triggerTypes: triggerTypes, nodes: nodes, edges: edges, variables: variables,
		botID: botID, tags: tags, category: category, metadata: metadata,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

// Getters.

func (w *Workflow) ID() WorkflowID                            { return w.id }
func (w *Workflow) Name() string                              { return w.name }
func (w *Workflow) Description() string                       { return w.description }
func (w *Workflow) Version() int                              { return w.version }
func (w *Workflow) Status() WorkflowStatus                    { return w.status }
func (w *Workflow) TriggerTypes() []TriggerType                { return append([]TriggerType{}, w.triggerTypes...) }
func (w *Workflow) Nodes() []Node                              { return append([]Node{}, w.nodes...) }
func (w *Workflow) Edges() []Edge                              { return append([]Edge{}, w.edges...) }
func (w *Workflow) Variables() map[string]VariableDeclaration  { return w.variables }
func (w *Workflow) BotID() *string                             { return w.botID }
func (w *Workflow) Tags() []string                             { return w.tags }
func (w *Workflow) Category() string                           { return w.category }
func (w *Workflow) Metadata() map[string]interface{}           { return w.metadata }
func (w *Workflow) CreatedAt() time.Time                       { return w.createdAt }
func (w *Workflow) UpdatedAt() time.Time                       { return w.updatedAt }

// HasTrigger reports whether t is among the workflow's declared trigger
// types.
func (w *Workflow) HasTrigger(t TriggerType) bool {
	for _, tt := range w.triggerTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// NodeByID finds a node by id.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Fields bundles the Manager's field-wise update payload (§4.F "update
// (field-wise merge, bump updated_at and version)"). A nil pointer/slice
// means "leave unchanged".
type Fields struct {
	Name         *string
	Description  *string
	Status       *WorkflowStatus
	TriggerTypes []TriggerType
	Nodes        []Node
	Edges        []Edge
	Variables    map[string]VariableDeclaration
	Tags         []string
	Category     *string
	Metadata     map[string]interface{}
}

// Update merges non-nil fields, validates the resulting structure, and
// bumps Version (testable property 2: version monotonicity).
func (w *Workflow) Update(f Fields) error {
	before := *w
	if f.Name != nil {
		w.name = *f.Name
	}
	if f.Description != nil {
		w.description = *f.Description
	}
	if f.Status != nil {
		w.status = *f.Status
	}
	if f.TriggerTypes != nil {
		w.triggerTypes = f.TriggerTypes
	}
	if f.Nodes != nil {
		w.nodes = f.Nodes
	}
	if f.Edges != nil {
		w.edges = f.Edges
	}
	if f.Variables != nil {
		w.variables = f.Variables
	}
	if f.Tags != nil {
		w.tags = f.Tags
	}
	if f.Category != nil {
		w.category = *f.Category
	}
	if f.Metadata != nil {
		w.metadata = f.Metadata
	}

	if err := w.Validate(); err != nil {
		*w = before
		return err
	}

	w.version++
	w.updatedAt = time.Now()
	w.addEvent(WorkflowUpdatedEvent{baseEvent: newBaseEvent(w.id), Version: w.version})
	return nil
}

// AddNode appends a node, enforcing uniqueness and the per-workflow node
// cap; it bumps Version like any structural update.
func (w *Workflow) AddNode(n Node) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(w.nodes) >= maxNodesPerWorkflow {
		return fmt.Errorf("%w: workflow has reached the maximum of %d nodes", ErrValidation, maxNodesPerWorkflow)
	}
	if _, exists := w.NodeByID(n.ID); exists {
		return fmt.Errorf("%w: node id %s already exists", ErrValidation, n.ID)
	}
	w.nodes = append(w.nodes, n)
	w.version++
	w.updatedAt = time.Now()
	return nil
}

// AddEdge appends an edge after validating its endpoints exist.
func (w *Workflow) AddEdge(e Edge) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, ok := w.NodeByID(e.Source); !ok {
		return fmt.Errorf("%w: edge %s references unknown source node %s", ErrValidation, e.ID, e.Source)
	}
	if _, ok := w.NodeByID(e.Target); !ok {
		return fmt.Errorf("%w: edge %s references unknown target node %s", ErrValidation, e.ID, e.Target)
	}
	for _, existing := range w.edges {
		if existing.ID == e.ID {
			return fmt.Errorf("%w: edge id %s already exists", ErrValidation, e.ID)
		}
	}
	w.edges = append(w.edges, e)
	w.version++
	w.updatedAt = time.Now()
	return nil
}

// Activate transitions Draft/Inactive → Active. Requires at least one
// start-type node (§3's Activate invariant).
func (w *Workflow) Activate() error {
	if w.status != StatusDraft && w.status != StatusInactive {
		return fmt.Errorf("%w: cannot activate workflow in status %s", ErrInvalidState, w.status)
	}
	hasStart := false
	for _, n := range w.nodes {
		if n.Type.IsStartType() {
			hasStart = true
			break
		}
	}
	if !hasStart {
		return fmt.Errorf("%w: workflow has no start-type node", ErrValidation)
	}
	w.status = StatusActive
	w.version++
	w.updatedAt = time.Now()
	w.addEvent(WorkflowActivatedEvent{baseEvent: newBaseEvent(w.id)})
	return nil
}

// Deactivate transitions Active → Inactive.
func (w *Workflow) Deactivate() error {
	if w.status != StatusActive {
		return fmt.Errorf("%w: cannot deactivate workflow in status %s", ErrInvalidState, w.status)
	}
	w.status = StatusInactive
	w.version++
	w.updatedAt = time.Now()
	w.addEvent(WorkflowDeactivatedEvent{baseEvent: newBaseEvent(w.id)})
	return nil
}

// Archive transitions any non-Archived status to Archived.
func (w *Workflow) Archive() error {
	if w.status == StatusArchived {
		return fmt.Errorf("%w: workflow is already archived", ErrInvalidState)
	}
	w.status = StatusArchived
	w.updatedAt = time.Now()
	w.addEvent(WorkflowArchivedEvent{baseEvent: newBaseEvent(w.id)})
	return nil
}

// BindBot sets (or, when botID is nil, clears) the bot binding.
func (w *Workflow) BindBot(botID *string) {
	w.botID = botID
	w.version++
	w.updatedAt = time.Now()
	w.addEvent(BotBoundEvent{baseEvent: newBaseEvent(w.id), BotID: botID})
}

// Validate enforces the §3 structural invariants: every edge endpoint
// refers to an existing node id, node ids are unique within the workflow.
// Version monotonicity and the start-node invariant are enforced by Update
// and Activate respectively, since they are update-time/activation-time
// concerns, not always-true structural ones.
func (w *Workflow) Validate() error {
	seen := make(map[string]bool, len(w.nodes))
	for _, n := range w.nodes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %s", ErrValidation, n.ID)
		}
		seen[n.ID] = true
	}
	edgeIDs := make(map[string]bool, len(w.edges))
	for _, e := range w.edges {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if edgeIDs[e.ID] {
			return fmt.Errorf("%w: duplicate edge id %s", ErrValidation, e.ID)
		}
		edgeIDs[e.ID] = true
		if !seen[e.Source] {
			return fmt.Errorf("%w: edge %s references unknown source node %s", ErrValidation, e.ID, e.Source)
		}
		if !seen[e.Target] {
			return fmt.Errorf("%w: edge %s references unknown target node %s", ErrValidation, e.ID, e.Target)
		}
	}
	return nil
}

// Events / event sourcing plumbing, mirroring the teacher's aggregate-root
// pattern.

func (w *Workflow) addEvent(e DomainEvent) {
	w.events = append(w.events, e)
}

// UncommittedEvents returns events raised since the last MarkEventsCommitted.
func (w *Workflow) UncommittedEvents() []DomainEvent {
	return w.events
}

// MarkEventsCommitted clears the pending event buffer after a caller (the
// Manager, typically) has published them.
func (w *Workflow) MarkEventsCommitted() {
	w.events = nil
}
