package model

import "time"

// Result is the snapshot emitted at executor termination (§3).
type Result struct {
	ExecutionID    string
	WorkflowID     WorkflowID
	Status         ExecutionStatus
	StartedAt      time.Time
	EndedAt        time.Time
	DurationMs     int64
	Outputs        map[string]map[string]interface{}
	FinalVariables map[string]interface{}
	ExecutedNodes  []string
	SkippedNodes   []string
	Errors         []ContextError
	MessagesSent   []Message
}

// NewResult builds the terminal Result from a finished Context.
func NewResult(ctx *Context, status ExecutionStatus, skipped []string) Result {
	ended := time.Now()
	if ctx.CompletedAt != nil {
		ended = *ctx.CompletedAt
	}
	return Result{
		ExecutionID:    ctx.ExecutionID,
		WorkflowID:     ctx.WorkflowID,
		Status:         status,
		StartedAt:      ctx.StartedAt,
		EndedAt:        ended,
		DurationMs:     ended.Sub(ctx.StartedAt).Milliseconds(),
		Outputs:        ctx.NodeOutputs,
		FinalVariables: ctx.FinalVariableValues(),
		ExecutedNodes:  ctx.ExecutedNodes,
		SkippedNodes:   skipped,
		Errors:         ctx.Errors,
		MessagesSent:   ctx.MessagesSent,
	}
}
