// Package toolkit implements the ToolRegistry: a name-to-Tool registry
// with an optional allowlist/denylist, and the JSON-Schema-shaped
// parameter description each Tool exposes. Grounded on the teacher's
// pkg/tools/tools.go Registry (map[string]Tool, Register/Get/List).
package toolkit

import "context"

// Param describes one entry in a Tool's parameter schema.
type Param struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is the registry-native parameter description: per-parameter
// Param plus which ones are required.
type Schema struct {
	Properties map[string]Param
	Required   []string
}

// WireSchema returns the LLM-wire representation of Schema, per spec
// §4.3: {type: "object", properties, required}.
func (s Schema) WireSchema() map[string]any {
	properties := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		entry := map[string]any{"type": p.Type}
		if p.Description != "" {
			entry["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			entry["enum"] = p.Enum
		}
		properties[name] = entry
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Tool is the capability set every registered tool must implement:
// {name, description, parameters, Execute}. Modeled as a capability
// interface rather than a class hierarchy, per spec §9.
type Tool interface {
	Name() string
	Description() string
	Parameters() Schema
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry is a name->Tool map with optional allow/deny lists. A tool
// registration that fails the allow/deny check is silently skipped, per
// spec §4.3.
type Registry struct {
	enabled  map[string]bool
	disabled map[string]bool
	tools    map[string]Tool
	order    []string
}

// Option configures a new Registry.
type Option func(*Registry)

// WithEnabledTools restricts registration to exactly this set of names.
// A nil or empty list means "no restriction".
func WithEnabledTools(names []string) Option {
	return func(r *Registry) {
		if len(names) == 0 {
			return
		}
		r.enabled = make(map[string]bool, len(names))
		for _, n := range names {
			r.enabled[n] = true
		}
	}
}

// WithDisabledTools excludes this set of names from registration.
func WithDisabledTools(names []string) Option {
	return func(r *Registry) {
		r.disabled = make(map[string]bool, len(names))
		for _, n := range names {
			r.disabled[n] = true
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds t to the registry unless it is excluded by the
// allow/deny configuration, in which case it is silently skipped.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if r.disabled != nil && r.disabled[name] {
		return
	}
	if r.enabled != nil && !r.enabled[name] {
		return
	}
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns a tool by name. The second return value is false for any
// unknown name, including names excluded by the allow/deny lists.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools, in registration order.
func (r *Registry) List() []Tool {
	list := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}

// Names returns the names of all registered tools, in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
