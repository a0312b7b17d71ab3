// Package runtime hosts the Node Handler Set (§4.B) and the registry the
// Executor uses to dispatch a model.Node to its handler by node type.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// Handler executes a single node instance against the current execution
// Context and returns the node's status together with its output map
// (§4.B "execute(context) -> (status, output)"). Implementations must not
// mutate ctx directly except through its exported Set/Record methods, and
// must be safe to call repeatedly for sequential retry (§7).
type Handler interface {
	Execute(ctx context.Context, rc *model.Context, node model.Node) (model.NodeStatus, map[string]interface{}, error)
}

// Registry holds one Handler per node type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.NodeType]Handler
}

// NewRegistry creates an empty node handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.NodeType]Handler)}
}

// Register binds a Handler to a node type. It returns an error if that type
// already has a handler, mirroring the self-registration guard the runtime
// nodes rely on in their init() functions.
func (r *Registry) Register(t model.NodeType, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("node type %q already registered", t)
	}
	r.handlers[t] = h
	return nil
}

// Override replaces whatever Handler is bound to t, if any, for example to
// swap the self-registered ToolActionHandler for one wired to a real tool
// host.
func (r *Registry) Override(t model.NodeType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Get returns the Handler bound to t.
func (r *Registry) Get(t model.NodeType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, exists := r.handlers[t]
	if !exists {
		return nil, fmt.Errorf("node type %q not registered", t)
	}
	return h, nil
}

// Types lists every node type currently registered.
func (r *Registry) Types() []model.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.NodeType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// globalRegistry is populated by each node file's init(), the same
// self-registration idiom the original node package used.
var globalRegistry = NewRegistry()

// Register binds a Handler to a node type in the global registry.
func Register(t model.NodeType, h Handler) {
	if err := globalRegistry.Register(t, h); err != nil {
		panic(err)
	}
}

// Override replaces a Handler in the global registry.
func Override(t model.NodeType, h Handler) {
	globalRegistry.Override(t, h)
}

// Get returns a Handler from the global registry.
func Get(t model.NodeType) (Handler, error) {
	return globalRegistry.Get(t)
}

// Default returns the process-wide registry the Executor is wired to by
// default (cmd/workflowcore wires it explicitly, but tests and simple
// callers can use this directly).
func Default() *Registry {
	return globalRegistry
}
