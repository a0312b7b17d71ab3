package nodes

import (
	"context"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
	"github.com/chatflow/workflow-core/pkg/expression"
)

// ReplyMessageHandler substitutes variables into content, appends the
// resulting message to messages_sent, and emits {message_sent, content}.
type ReplyMessageHandler struct{}

func (ReplyMessageHandler) Execute(_ context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, _ := node.Config.(model.ReplyMessageConfig)
	content := expression.Substitute(cfg.Content, rc.FinalVariableValues())

	rc.AppendMessage(model.Message{
		Content:    content,
		ReplyTo:    cfg.ReplyTo,
		Components: cfg.Components,
	})

	return model.NodeSuccess, map[string]interface{}{
		"message_sent": true,
		"content":      content,
	}, nil
}

func init() {
	runtime.Register(model.NodeReplyMessage, ReplyMessageHandler{})
}
