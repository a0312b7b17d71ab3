package model

import "time"

// DomainEvent is raised by the Workflow aggregate as its state changes.
type DomainEvent interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}

type baseEvent struct {
	workflowID WorkflowID
	occurredAt time.Time
}

func (e baseEvent) AggregateID() string    { return e.workflowID.String() }
func (e baseEvent) OccurredAt() time.Time  { return e.occurredAt }

// WorkflowCreatedEvent is raised when a workflow is created.
type WorkflowCreatedEvent struct {
	baseEvent
	Name string
}

func (WorkflowCreatedEvent) EventType() string { return "workflow.created" }

// WorkflowUpdatedEvent is raised when a workflow's fields are merged.
type WorkflowUpdatedEvent struct {
	baseEvent
	Version int
}

func (WorkflowUpdatedEvent) EventType() string { return "workflow.updated" }

// WorkflowActivatedEvent is raised when a workflow transitions to Active.
type WorkflowActivatedEvent struct{ baseEvent }

func (WorkflowActivatedEvent) EventType() string { return "workflow.activated" }

// WorkflowDeactivatedEvent is raised when a workflow leaves Active.
type WorkflowDeactivatedEvent struct{ baseEvent }

func (WorkflowDeactivatedEvent) EventType() string { return "workflow.deactivated" }

// WorkflowArchivedEvent is raised when a workflow is archived.
type WorkflowArchivedEvent struct{ baseEvent }

func (WorkflowArchivedEvent) EventType() string { return "workflow.archived" }

// WorkflowDeletedEvent is raised when a workflow is deleted from the Manager.
type WorkflowDeletedEvent struct{ baseEvent }

func (WorkflowDeletedEvent) EventType() string { return "workflow.deleted" }

// BotBoundEvent is raised when a workflow is bound to (or unbound from,
// when BotID is nil) a bot.
type BotBoundEvent struct {
	baseEvent
	BotID *string
}

func (BotBoundEvent) EventType() string { return "workflow.bot_bound" }

func newBaseEvent(id WorkflowID) baseEvent {
	return baseEvent{workflowID: id, occurredAt: time.Now()}
}
