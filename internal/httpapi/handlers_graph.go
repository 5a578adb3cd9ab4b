package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/graph"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// subgraphResponse mirrors graph.Subgraph with string-formatted node/edge
// IDs, following the "memory_<n>" node-id convention.
type subgraphResponse struct {
	Nodes           []subgraphNode        `json:"nodes"`
	Edges           []subgraphEdge        `json:"edges"`
	Truncated       bool                  `json:"truncated"`
	NodeCountByType map[string]int        `json:"node_count_by_type"`
	EdgeCountByType map[string]int        `json:"edge_count_by_type"`
	CenterNodeID    string                `json:"center_node_id"`
	Depth           int                   `json:"depth"`
	NodeTypes       []storage.NodeType    `json:"node_types,omitempty"`
	MaxNodes        int                   `json:"max_nodes"`
}

type subgraphNode struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Depth int    `json:"depth"`
}

type subgraphEdge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	EdgeType string `json:"edge_type"`
}

func nodeIDString(ref storage.NodeRef) string {
	return fmt.Sprintf("%s_%d", ref.Type, ref.ID)
}

func (s *Server) handleSubgraph(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}

	centerNodeID := c.QueryParam("node_id")
	if centerNodeID == "" {
		return writeError(c, apperr.Validationf("node_id is required"))
	}

	depth := 2
	if raw := c.QueryParam("depth"); raw != "" {
		d, perr := parseQueryInt(raw)
		if perr != nil {
			return writeError(c, apperr.Validationf("invalid depth %q: must be an integer", raw))
		}
		depth = d
	}

	maxNodes := 100
	if raw := c.QueryParam("max_nodes"); raw != "" {
		n, perr := parseQueryInt(raw)
		if perr != nil {
			return writeError(c, apperr.Validationf("invalid max_nodes %q: must be an integer", raw))
		}
		maxNodes = n
	}

	nodeTypes, err := parseNodeTypes(c, "node_types")
	if err != nil {
		return writeError(c, err)
	}

	sub, err := s.graph.GetSubgraph(c.Request().Context(), userID, centerNodeID, depth, nodeTypes, maxNodes)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, toSubgraphResponse(sub))
}

func toSubgraphResponse(sub *graph.Subgraph) subgraphResponse {
	nodes := make([]subgraphNode, len(sub.Nodes))
	for i, n := range sub.Nodes {
		nodes[i] = subgraphNode{ID: nodeIDString(n.Ref), Type: string(n.Ref.Type), Depth: n.Depth}
	}
	edges := make([]subgraphEdge, len(sub.Edges))
	for i, e := range sub.Edges {
		edges[i] = subgraphEdge{
			ID:       e.ID,
			Source:   nodeIDString(e.Source),
			Target:   nodeIDString(e.Target),
			EdgeType: e.EdgeType,
		}
	}
	nodeCounts := make(map[string]int, len(sub.NodeCountByType))
	for t, n := range sub.NodeCountByType {
		nodeCounts[string(t)] = n
	}

	return subgraphResponse{
		Nodes:           nodes,
		Edges:           edges,
		Truncated:       sub.Truncated,
		NodeCountByType: nodeCounts,
		EdgeCountByType: sub.EdgeCountByType,
		CenterNodeID:    sub.CenterNodeID,
		Depth:           sub.Depth,
		NodeTypes:       sub.NodeTypes,
		MaxNodes:        sub.MaxNodes,
	}
}

// graphListResponse is GET /api/v1/graph's body: a flat listing of a
// user's memory nodes (and, when include_entities is set, entities),
// plus the edges among them. Project nodes are not listed. Unlike GetSubgraph this has no
// center node — it lists broadly, filtered and paginated the same way
// ListMemories is.
type graphListResponse struct {
	Nodes []subgraphNode         `json:"nodes"`
	Edges []subgraphEdge         `json:"edges"`
	Meta  map[string]interface{} `json:"meta"`
}

func (s *Server) handleGraph(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}

	limit, offset, err := parseLimitOffset(c)
	if err != nil {
		return writeError(c, err)
	}
	sortBy, err := parseSortBy(c)
	if err != nil {
		return writeError(c, err)
	}
	sortOrder, err := parseSortOrder(c)
	if err != nil {
		return writeError(c, err)
	}
	projectID, err := parseInt64Ptr(c, "project_id")
	if err != nil {
		return writeError(c, err)
	}
	includeEntities, err := parseBool(c, "include_entities")
	if err != nil {
		return writeError(c, err)
	}
	nodeTypes, err := parseNodeTypes(c, "node_types")
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	memories, _, err := s.repo.ListMemories(ctx, userID, storage.ListMemoriesOptions{
		Limit: limit, Offset: offset, SortBy: sortBy, SortOrder: sortOrder, ProjectID: projectID,
	})
	if err != nil {
		return writeError(c, err)
	}

	refs := make([]storage.NodeRef, 0, len(memories))
	nodes := make([]subgraphNode, 0, len(memories))
	for _, m := range memories {
		ref := storage.NodeRef{Type: storage.NodeTypeMemory, ID: m.ID}
		refs = append(refs, ref)
		nodes = append(nodes, subgraphNode{ID: nodeIDString(ref), Type: string(storage.NodeTypeMemory)})
	}

	if includeEntities {
		entities, err := s.repo.ListEntities(ctx, userID, nil)
		if err != nil {
			return writeError(c, err)
		}
		for _, e := range entities {
			ref := storage.NodeRef{Type: storage.NodeTypeEntity, ID: e.ID}
			refs = append(refs, ref)
			nodes = append(nodes, subgraphNode{ID: nodeIDString(ref), Type: string(storage.NodeTypeEntity)})
		}
	}

	edgesRaw, err := s.repo.EdgesAmong(ctx, userID, refs, nodeTypes)
	if err != nil {
		return writeError(c, err)
	}
	edges := make([]subgraphEdge, len(edgesRaw))
	for i, e := range edgesRaw {
		edges[i] = subgraphEdge{ID: e.ID, Source: nodeIDString(e.Source), Target: nodeIDString(e.Target), EdgeType: e.EdgeType}
	}

	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return c.JSON(http.StatusOK, graphListResponse{
		Nodes: nodes,
		Edges: edges,
		Meta: map[string]interface{}{
			"limit":  limit,
			"offset": offset,
			"count":  len(nodes),
		},
	})
}

// parseQueryInt is a small strconv.Atoi wrapper kept local to this file
// since both depth and max_nodes need the same "unparseable -> error" rule
// but graph.Traverser (not this package) owns their range validation.
func parseQueryInt(raw string) (int, error) {
	return strconv.Atoi(raw)
}
