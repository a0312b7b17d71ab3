package nodes

import (
	"context"
	"strings"

	"github.com/chatflow/workflow-core/internal/node/runtime"
	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

const defaultCommandPrefix = "/"

// ChatCommandBranchHandler inspects trigger_data.content and branches on
// whether it is a slash-command or ordinary chat text.
type ChatCommandBranchHandler struct{}

func (ChatCommandBranchHandler) Execute(_ context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error) {
	cfg, _ := node.Config.(model.ChatCommandBranchConfig)
	prefix := cfg.CommandPrefix
	if prefix == "" {
		prefix = defaultCommandPrefix
	}

	content, _ := rc.TriggerData["content"].(string)

	if strings.HasPrefix(content, prefix) {
		fields := strings.Fields(content)
		command := ""
		if len(fields) > 0 {
			command = fields[0]
		}
		return model.NodeSuccess, map[string]interface{}{
			"type":    "command",
			"command": command,
			"branch":  "command",
		}, nil
	}

	return model.NodeSuccess, map[string]interface{}{
		"type":    "chat",
		"content": content,
		"branch":  "chat",
	}, nil
}

func init() {
	runtime.Register(model.NodeChatCommandBranch, ChatCommandBranchHandler{})
}
