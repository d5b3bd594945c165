package tools

import "github.com/parleyhq/parley/llm"

// Registry holds the closed tool catalog. The base set is always active;
// memory-mutation tools join only while the memory feature flag is on.
type Registry struct {
	base   []Tool
	memory []Tool
}

func NewRegistry(base []Tool, memoryTools []Tool) *Registry {
	return &Registry{base: base, memory: memoryTools}
}

// Active returns the tools currently offered to the model.
func (r *Registry) Active(memoryEnabled bool) []Tool {
	if !memoryEnabled {
		return r.base
	}
	active := make([]Tool, 0, len(r.base)+len(r.memory))
	active = append(active, r.base...)
	active = append(active, r.memory...)
	return active
}

// Descriptors returns the declarations for the active tools.
func (r *Registry) Descriptors(memoryEnabled bool) []llm.ToolDescriptor {
	active := r.Active(memoryEnabled)
	descriptors := make([]llm.ToolDescriptor, 0, len(active))
	for _, t := range active {
		descriptors = append(descriptors, t.Descriptor())
	}
	return descriptors
}

// Lookup finds an active tool by name.
func (r *Registry) Lookup(name string, memoryEnabled bool) (Tool, bool) {
	for _, t := range r.Active(memoryEnabled) {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
