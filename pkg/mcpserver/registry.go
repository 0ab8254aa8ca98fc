package mcpserver

import (
	"sync/atomic"

	"github.com/xeipuuv/gojsonschema"

	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
)

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// Registry is the fixed catalog of tools a broker exposes. Tools are
// registered once at startup; after Seal the registry is read-only and
// lookups need no locking.
type Registry struct {
	entries map[string]*entry
	order   []string
	sealed  atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a tool. It fails with DuplicateOperation when the name is
// taken and with an internal error once the registry has been sealed.
func (r *Registry) Register(t Tool) error {
	if r.sealed.Load() {
		return toolerr.New(toolerr.Internal, "registry is sealed; cannot register %s", t.Name)
	}
	if t.Name == "" {
		return toolerr.New(toolerr.Internal, "tool name must not be empty")
	}
	if t.Handler == nil {
		return toolerr.New(toolerr.Internal, "tool %s has no handler", t.Name)
	}
	if _, ok := r.entries[t.Name]; ok {
		return toolerr.New(toolerr.DuplicateOperation, "tool already registered: %s", t.Name)
	}
	schema, err := compileSchema(t)
	if err != nil {
		return err
	}
	r.entries[t.Name] = &entry{tool: t, schema: schema}
	r.order = append(r.order, t.Name)
	return nil
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (Tool, error) {
	e, err := r.lookup(name)
	if err != nil {
		return Tool{}, err
	}
	return e.tool, nil
}

func (r *Registry) lookup(name string) (*entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, toolerr.New(toolerr.UnknownOperation, "tool not found: %s", name)
	}
	return e, nil
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.entries[name].tool)
	}
	return tools
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Seal makes the registry read-only.
func (r *Registry) Seal() { r.sealed.Store(true) }
