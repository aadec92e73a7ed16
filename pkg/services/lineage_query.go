package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/models"
	"github.com/lumenlake/catalog-engine/pkg/repositories"
)

// Direction selects which edges a lineage traversal follows.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"
	DirectionDownstream Direction = "downstream"
	DirectionBoth       Direction = "both"
)

// IsValid checks if the direction is one of the known values.
func (d Direction) IsValid() bool {
	return d == DirectionUpstream || d == DirectionDownstream || d == DirectionBoth
}

// LineageNode is one table in a neighborhood result. Level is the table's
// layout level in the full graph, not its depth from the query root.
type LineageNode struct {
	ID         uuid.UUID `json:"id"`
	SchemaName string    `json:"schema"`
	TableName  string    `json:"table"`
	Level      int       `json:"level"`
}

// LineageEdge is one directed edge in a neighborhood result.
type LineageEdge struct {
	From uuid.UUID               `json:"from"`
	To   uuid.UUID               `json:"to"`
	Kind models.RelationshipType `json:"kind"`
}

// LineageResult is a bounded neighborhood of the lineage graph around one
// root table.
type LineageResult struct {
	RootID uuid.UUID     `json:"root_id"`
	Nodes  []LineageNode `json:"nodes"`
	Edges  []LineageEdge `json:"edges"`
	// Direct neighbor counts of the root, independent of the query depth.
	// Upstream are the tables the root references; downstream are the
	// tables referencing it.
	UpstreamCount   int `json:"upstream_count"`
	DownstreamCount int `json:"downstream_count"`
}

// LineageQuery answers neighborhood queries against the relationship graph.
// Reads are snapshot-consistent: each query loads the graph once and
// traverses that copy, so concurrent ingestion never corrupts a traversal.
type LineageQuery struct {
	tables repositories.TableRepository
	rels   repositories.RelationshipRepository
	logger *zap.Logger
}

// NewLineageQuery creates a new LineageQuery.
func NewLineageQuery(tables repositories.TableRepository, rels repositories.RelationshipRepository, logger *zap.Logger) *LineageQuery {
	return &LineageQuery{tables: tables, rels: rels, logger: logger}
}

// Neighborhood traverses breadth-first from the named table. Depth 0
// returns only the root with no edges; depth 1 adds direct neighbors and
// their connecting edges. Nodes at equal depth come back ordered by
// (schema, table) so identical queries against an unchanged graph return
// identical results. Cycles terminate through the visited set.
func (q *LineageQuery) Neighborhood(ctx context.Context, schemaName, tableName string, direction Direction, maxDepth int) (*LineageResult, error) {
	if !direction.IsValid() {
		return nil, fmt.Errorf("invalid lineage direction %q", direction)
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	root, err := q.tables.GetByName(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	tables, err := q.tables.List(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := q.rels.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	graph := buildGraph(tables, rels)

	visited := map[uuid.UUID]bool{root.ID: true}
	edgeSeen := map[uuid.UUID]bool{}
	result := &LineageResult{
		RootID:          root.ID,
		Nodes:           []LineageNode{toLineageNode(graph.nodes[root.ID])},
		Edges:           []LineageEdge{},
		UpstreamCount:   len(graph.out[root.ID]),
		DownstreamCount: len(graph.in[root.ID]),
	}

	frontier := []uuid.UUID{root.ID}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var discovered []uuid.UUID
		for _, id := range frontier {
			for _, edge := range q.incident(graph, id, direction) {
				if !edgeSeen[edge.ID] {
					edgeSeen[edge.ID] = true
					result.Edges = append(result.Edges, LineageEdge{
						From: edge.SourceTableID,
						To:   edge.TargetTableID,
						Kind: edge.RelationshipType,
					})
				}
				neighbor := edge.TargetTableID
				if neighbor == id {
					neighbor = edge.SourceTableID
				}
				if !visited[neighbor] {
					visited[neighbor] = true
					discovered = append(discovered, neighbor)
				}
			}
		}

		sort.Slice(discovered, func(i, j int) bool {
			a, b := graph.nodes[discovered[i]], graph.nodes[discovered[j]]
			if a.SchemaName != b.SchemaName {
				return a.SchemaName < b.SchemaName
			}
			return a.TableName < b.TableName
		})
		for _, id := range discovered {
			result.Nodes = append(result.Nodes, toLineageNode(graph.nodes[id]))
		}
		frontier = discovered
	}

	sort.Slice(result.Edges, func(i, j int) bool {
		if result.Edges[i].From != result.Edges[j].From {
			return result.Edges[i].From.String() < result.Edges[j].From.String()
		}
		return result.Edges[i].To.String() < result.Edges[j].To.String()
	})
	return result, nil
}

// incident returns the edges to follow from a node. An edge points from the
// referencing table to the table it references, so upstream walks outgoing
// edges toward dependencies and downstream walks incoming edges toward
// dependents.
func (q *LineageQuery) incident(g *lineageGraph, id uuid.UUID, direction Direction) []*models.TableRelationship {
	switch direction {
	case DirectionDownstream:
		return g.in[id]
	case DirectionUpstream:
		return g.out[id]
	default:
		edges := make([]*models.TableRelationship, 0, len(g.out[id])+len(g.in[id]))
		edges = append(edges, g.out[id]...)
		edges = append(edges, g.in[id]...)
		return edges
	}
}

func toLineageNode(n *graphNode) LineageNode {
	return LineageNode{ID: n.ID, SchemaName: n.SchemaName, TableName: n.TableName, Level: n.Level}
}
