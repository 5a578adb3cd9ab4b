// Package tools implements the tool registry and meta-tool dispatcher:
// an in-memory map of tool name to metadata and implementation, plus the
// three always-permitted meta-tools that give an LLM progressive
// disclosure of the registry instead of loading every tool definition
// upfront.
package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/scope"
)

// Parameter describes one argument a tool accepts.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     any
}

// Metadata is everything the registry and meta-tools know about a tool.
type Metadata struct {
	Name        string
	Description string
	Category    scope.Category
	Mutates     bool
	Parameters  []Parameter
	Returns     string
	Examples    []string
	Tags        []string
	// JSONSchema is the argument object's JSON Schema, surfaced only by
	// how_to_use_forgetful_tool, never by discover_forgetful_tools.
	JSONSchema map[string]any
}

// Summary is the subset of Metadata discover_forgetful_tools returns:
// everything except the JSON Schema and extended examples.
type Summary struct {
	Name        string
	Description string
	Category    scope.Category
	Mutates     bool
	Parameters  []Parameter
	Returns     string
	Tags        []string
}

func (m Metadata) summary() Summary {
	return Summary{
		Name: m.Name, Description: m.Description, Category: m.Category,
		Mutates: m.Mutates, Parameters: m.Parameters, Returns: m.Returns, Tags: m.Tags,
	}
}

func (m Metadata) toolInfo() scope.ToolInfo {
	return scope.ToolInfo{Name: m.Name, Category: m.Category, Mutates: m.Mutates}
}

// Implementation is a tool's executable body. ctx carries ambient
// request-scoped values; userID is the authenticated caller; args is the
// decoded argument object.
type Implementation func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error)

type registeredTool struct {
	meta Metadata
	impl Implementation
}

// Registry is an in-memory map of tool name to {metadata, implementation}
// with a secondary index by category. Registering the same name twice is
// forbidden.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool. Re-registering an existing name is an error.
func (r *Registry) Register(meta Metadata, impl Implementation) error {
	if meta.Name == "" {
		return apperr.Validationf("tool name is required")
	}
	if meta.Description == "" {
		return apperr.Validationf("tool %q: description is required", meta.Name)
	}
	if meta.Category == "" {
		return apperr.Validationf("tool %q: category is required", meta.Name)
	}
	if impl == nil {
		return apperr.Validationf("tool %q: implementation is required", meta.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[meta.Name]; exists {
		return apperr.Validationf("tool %q already registered", meta.Name)
	}
	r.tools[meta.Name] = &registeredTool{meta: meta, impl: impl}
	return nil
}

// Get retrieves a tool's metadata and implementation by name.
func (r *Registry) Get(name string) (*Metadata, Implementation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, nil, false
	}
	meta := t.meta
	return &meta, t.impl, true
}

// ListAll returns every registered tool's metadata, sorted by name.
func (r *Registry) ListAll() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByCategory returns tools in the given category, sorted by name.
func (r *Registry) ListByCategory(category scope.Category) []Metadata {
	all := r.ListAll()
	out := make([]Metadata, 0, len(all))
	for _, m := range all {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

// ToolInfos adapts every registered tool to scope.ToolInfo, for use with
// scope.ResolvePermittedTools / scope.EffectiveScope.
func (r *Registry) ToolInfos() []scope.ToolInfo {
	all := r.ListAll()
	out := make([]scope.ToolInfo, len(all))
	for i, m := range all {
		out[i] = m.toolInfo()
	}
	return out
}
