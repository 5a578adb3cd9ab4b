package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/scope"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// registerGraphTools registers get_subgraph. It is filed under the
// memory category since a center node is most commonly a memory, though
// the traversal itself spans every node type.
func registerGraphTools(r *Registry, deps Deps) error {
	return r.Register(Metadata{
		Name:        "get_subgraph",
		Description: "Run a bounded, cycle-safe breadth-first traversal centered on any node, returning its nodes and typed edges.",
		Category:    scope.CategoryMemory,
		Parameters: []Parameter{
			{Name: "center_node_id", Type: "string", Required: true, Description: "\"<type>_<id>\", e.g. memory_42"},
			{Name: "depth", Type: "integer", Required: true, Description: "1-3"},
			{Name: "node_types", Type: "array", Description: "Subset of memory, entity, project, document, code_artifact"},
			{Name: "max_nodes", Type: "integer", Required: true, Description: "1-500"},
		},
		Returns: "Subgraph{nodes, edges, truncated, ...}",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			CenterNodeID string   `json:"center_node_id"`
			Depth        int      `json:"depth"`
			NodeTypes    []string `json:"node_types"`
			MaxNodes     int      `json:"max_nodes"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		nodeTypes := make([]storage.NodeType, len(in.NodeTypes))
		for i, t := range in.NodeTypes {
			nodeTypes[i] = storage.NodeType(t)
		}
		return deps.Traverser.GetSubgraph(ctx, userID, in.CenterNodeID, in.Depth, nodeTypes, in.MaxNodes)
	})
}
