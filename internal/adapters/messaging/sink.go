// Package messaging adapts reply_message output onto a transport. The
// Executor itself never imports this package — it only ever appends to
// Context.MessagesSent — so any component that wants to fan out sent
// messages to a real chat platform wires a Sink and drains Result /
// Context.MessagesSent into it after execute returns.
package messaging

import "context"

// Sink delivers one outbound message produced by a reply_message node.
type Sink interface {
	Send(ctx context.Context, workflowID, executionID string, content string, replyTo *string) error
}

// InMemorySink records every delivered message; useful for tests and for a
// backend-less default wiring.
type InMemorySink struct {
	Sent []SentMessage
}

// SentMessage is one message handed to an InMemorySink.
type SentMessage struct {
	WorkflowID  string
	ExecutionID string
	Content     string
	ReplyTo     *string
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) Send(_ context.Context, workflowID, executionID, content string, replyTo *string) error {
	s.Sent = append(s.Sent, SentMessage{WorkflowID: workflowID, ExecutionID: executionID, Content: content, ReplyTo: replyTo})
	return nil
}
