package tools

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/scope"
)

// Dispatcher exposes the three meta-tool operations. They are
// themselves tools, but always permitted regardless of effective scope.
type Dispatcher struct {
	Registry *Registry
}

// NewDispatcher wraps a Registry with the meta-tool operations.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{Registry: registry}
}

// Discover returns per-category tool summaries honoring effective
// permissions. A nil category returns every permitted tool.
func (d *Dispatcher) Discover(category *scope.Category, permitted map[string]bool) []Summary {
	var all []Metadata
	if category != nil {
		all = d.Registry.ListByCategory(*category)
	} else {
		all = d.Registry.ListAll()
	}

	out := make([]Summary, 0, len(all))
	for _, m := range all {
		if permitted[m.Name] {
			out = append(out, m.summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HowToUse returns full metadata including JSON Schema for a single tool.
// NotFound covers both an unknown tool name and one outside the caller's
// effective permissions, so permission state is never leaked to a
// caller who can't use the tool.
func (d *Dispatcher) HowToUse(toolName string, permitted map[string]bool) (*Metadata, error) {
	meta, _, ok := d.Registry.Get(toolName)
	if !ok || !permitted[toolName] {
		return nil, apperr.NotFoundf("tool %q not found", toolName)
	}
	return meta, nil
}

// Execute looks up a tool's implementation and invokes it with arguments
// plus the ambient user context. Forbidden tools return a PermissionDenied
// error naming the required scope.
func (d *Dispatcher) Execute(ctx context.Context, userID uuid.UUID, toolName string, args map[string]any, permitted map[string]bool) (any, error) {
	meta, impl, ok := d.Registry.Get(toolName)
	if !ok {
		return nil, apperr.NotFoundf("tool %q not found", toolName)
	}
	if !permitted[toolName] {
		return nil, apperr.PermissionDeniedf(scope.RequiredScope(meta.toolInfo()),
			"tool %q requires scope %q", toolName, scope.RequiredScope(meta.toolInfo()))
	}
	return impl(ctx, userID, args)
}
