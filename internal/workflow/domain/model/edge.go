package model

import "fmt"

// EdgeCondition is an optional guard evaluated against the source node's
// output before an Edge's target is enqueued (§4.D, operator semantics in
// §4.A).
type EdgeCondition struct {
	Type     string
	Field    string
	Operator ClauseOperator
	Value    interface{}
}

// Edge is a directed connection between two nodes, optionally labelled (for
// branch selection) and/or conditioned.
type Edge struct {
	ID        string
	Source    string
	Target    string
	Label     *string
	Condition *EdgeCondition

	UnknownFields map[string]interface{}
}

// Validate enforces the edge's own structural invariants; cross-reference
// checks against a Workflow's node set happen in Workflow.Validate.
func (e Edge) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("edge: id must not be empty")
	}
	if e.Source == "" || e.Target == "" {
		return fmt.Errorf("edge %s: source and target must not be empty", e.ID)
	}
	return nil
}

// MatchesBranch reports whether this edge is selected for a branching
// node's output "branch" value, per §4.D's successor-selection rule:
// labelled edges match on equality; unlabelled edges match only the
// "default" branch.
func (e Edge) MatchesBranch(branch string) bool {
	if e.Label == nil {
		return branch == "default"
	}
	return *e.Label == branch
}
