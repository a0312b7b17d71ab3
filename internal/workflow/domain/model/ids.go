package model

import (
	"fmt"

	"github.com/google/uuid"
)

// WorkflowID is the opaque identity of a Workflow aggregate.
type WorkflowID string

// NewWorkflowID generates a fresh, random WorkflowID.
func NewWorkflowID() WorkflowID {
	return WorkflowID(uuid.New().String())
}

// Validate reports whether the id is a non-empty, well-formed identifier.
func (id WorkflowID) Validate() error {
	if id == "" {
		return fmt.Errorf("workflow id must not be empty")
	}
	return nil
}

func (id WorkflowID) String() string {
	return string(id)
}

// NewNodeID generates a fresh node identifier.
func NewNodeID() string {
	return uuid.New().String()
}

// NewEdgeID generates a fresh edge identifier.
func NewEdgeID() string {
	return uuid.New().String()
}

// NewExecutionID generates a fresh execution identifier.
func NewExecutionID() string {
	return uuid.New().String()
}
