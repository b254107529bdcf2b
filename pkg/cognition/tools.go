package cognition

import "context"

// ToolHandler executes one tool call and returns a JSON-serializable result.
// Handlers are registered by the composition root; CognitionActor only
// knows how to look one up by name and bound how many run per turn (a
// 4-iteration cap).
type ToolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ToolRegistry maps declared tool names (take_snapshot, remember, recall,
// set_navigation_mode, and any gesture/sound-effect tools the composition
// root adds) to their handlers.
type ToolRegistry struct {
	handlers map[string]ToolHandler
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]ToolHandler)}
}

// Register adds or replaces the handler for name.
func (r *ToolRegistry) Register(name string, handler ToolHandler) {
	r.handlers[name] = handler
}

// Lookup returns name's handler and whether it is registered.
func (r *ToolRegistry) Lookup(name string) (ToolHandler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
