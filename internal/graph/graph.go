// Package graph implements subgraph traversal: a breadth-first,
// depth-bounded, node-capped, cycle-safe walk over the
// memory/project/document/code_artifact/entity graph, built on top of
// storage.Repository's NodeExists/Neighbors/EdgesAmong primitives.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

const (
	MinDepth    = 1
	MaxDepth    = 3
	MinMaxNodes = 1
	MaxMaxNodes = 500
)

// Node pairs a graph node reference with the depth it was discovered at.
type Node struct {
	Ref   storage.NodeRef
	Depth int
}

// Subgraph is the result of a traversal, including per-type node/edge
// counts and whether the walk was cut short by maxNodes.
type Subgraph struct {
	Nodes          []Node
	Edges          []storage.Edge
	Truncated      bool
	NodeCountByType map[storage.NodeType]int
	EdgeCountByType map[string]int
	CenterNodeID    string
	Depth           int
	NodeTypes       []storage.NodeType
	MaxNodes        int
}

// Traverser runs subgraph traversals against a repository.
type Traverser struct {
	Repo   storage.Repository
	Logger *zap.Logger
}

// New constructs a Traverser.
func New(repo storage.Repository, logger *zap.Logger) *Traverser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Traverser{Repo: repo, Logger: logger}
}

// ParseNodeID parses a "<type>_<numericID>" center-node identifier.
func ParseNodeID(centerNodeID string) (storage.NodeRef, error) {
	idx := strings.LastIndex(centerNodeID, "_")
	if idx <= 0 || idx == len(centerNodeID)-1 {
		return storage.NodeRef{}, apperr.Validationf("malformed node id %q: want <type>_<id>", centerNodeID)
	}
	typePart := storage.NodeType(centerNodeID[:idx])
	idPart := centerNodeID[idx+1:]

	switch typePart {
	case storage.NodeTypeMemory, storage.NodeTypeProject, storage.NodeTypeDocument,
		storage.NodeTypeCodeArtifact, storage.NodeTypeEntity:
	default:
		return storage.NodeRef{}, apperr.Validationf("unknown node type %q", typePart)
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return storage.NodeRef{}, apperr.Validationf("malformed node id %q: %v", centerNodeID, err)
	}
	return storage.NodeRef{Type: typePart, ID: id}, nil
}

// GetSubgraph runs a breadth-first, depth-bounded, cycle-safe traversal
// centered on centerNodeID, stopping early once maxNodes is reached.
func (t *Traverser) GetSubgraph(ctx context.Context, userID uuid.UUID, centerNodeID string, depth int, nodeTypes []storage.NodeType, maxNodes int) (*Subgraph, error) {
	if depth < MinDepth || depth > MaxDepth {
		return nil, apperr.Validationf("depth must be in [%d,%d], got %d", MinDepth, MaxDepth, depth)
	}
	if maxNodes < MinMaxNodes || maxNodes > MaxMaxNodes {
		return nil, apperr.Validationf("max_nodes must be in [%d,%d], got %d", MinMaxNodes, MaxMaxNodes, maxNodes)
	}

	center, err := ParseNodeID(centerNodeID)
	if err != nil {
		return nil, err
	}

	exists, err := t.Repo.NodeExists(ctx, userID, center)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFoundf("node %q not found", centerNodeID)
	}

	visited := map[storage.NodeRef]int{center: 0}
	order := []Node{{Ref: center, Depth: 0}}
	frontier := []storage.NodeRef{center}
	truncated := len(visited) >= maxNodes

	for d := 0; d < depth && len(visited) < maxNodes; d++ {
		var next []storage.NodeRef
		for _, n := range frontier {
			neighbors, err := t.Repo.Neighbors(ctx, userID, n, nodeTypes)
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				if _, seen := visited[nb]; seen {
					continue
				}
				visited[nb] = d + 1
				order = append(order, Node{Ref: nb, Depth: d + 1})
				next = append(next, nb)
				if len(visited) >= maxNodes {
					truncated = true
					break
				}
			}
			if truncated {
				break
			}
		}
		if truncated {
			break
		}
		frontier = next
	}

	refs := make([]storage.NodeRef, len(order))
	for i, n := range order {
		refs[i] = n.Ref
	}

	edges, err := t.Repo.EdgesAmong(ctx, userID, refs, nodeTypes)
	if err != nil {
		return nil, err
	}

	nodeCounts := make(map[storage.NodeType]int)
	for _, n := range order {
		nodeCounts[n.Ref.Type]++
	}
	edgeCounts := make(map[string]int)
	for _, e := range edges {
		edgeCounts[e.EdgeType]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Depth != order[j].Depth {
			return order[i].Depth < order[j].Depth
		}
		if order[i].Ref.Type != order[j].Ref.Type {
			return order[i].Ref.Type < order[j].Ref.Type
		}
		return order[i].Ref.ID < order[j].Ref.ID
	})

	return &Subgraph{
		Nodes:           order,
		Edges:           edges,
		Truncated:       truncated,
		NodeCountByType: nodeCounts,
		EdgeCountByType: edgeCounts,
		CenterNodeID:    centerNodeID,
		Depth:           depth,
		NodeTypes:       nodeTypes,
		MaxNodes:        maxNodes,
	}, nil
}

// CanonicalEdgeID builds the canonicalized, order-independent edge id for
// undirected edge types (memory-memory, entity-entity):
// "<typeA>_<minID>_<typeB>_<maxID>".
func CanonicalEdgeID(a, b storage.NodeRef) string {
	if a.Type > b.Type || (a.Type == b.Type && a.ID > b.ID) {
		a, b = b, a
	}
	return fmt.Sprintf("%s_%d_%s_%d", a.Type, a.ID, b.Type, b.ID)
}
