package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/models"
	"github.com/lumenlake/catalog-engine/pkg/repositories"
)

// graphNode is one table in the lineage graph.
type graphNode struct {
	ID         uuid.UUID
	SchemaName string
	TableName  string
	Level      int
}

// lineageGraph is an adjacency view over the relationship set plus the
// level assignment used for layout. It is rebuilt per query, never cached
// as shared mutable state.
type lineageGraph struct {
	nodes map[uuid.UUID]*graphNode
	out   map[uuid.UUID][]*models.TableRelationship
	in    map[uuid.UUID][]*models.TableRelationship
}

func buildGraph(tables []*models.TableMetadata, rels []*models.TableRelationship) *lineageGraph {
	g := &lineageGraph{
		nodes: make(map[uuid.UUID]*graphNode, len(tables)),
		out:   make(map[uuid.UUID][]*models.TableRelationship),
		in:    make(map[uuid.UUID][]*models.TableRelationship),
	}
	for _, t := range tables {
		g.nodes[t.ID] = &graphNode{ID: t.ID, SchemaName: t.SchemaName, TableName: t.TableName}
	}
	for _, r := range rels {
		// Edges whose endpoints are unknown are skipped rather than
		// invented as anonymous nodes.
		if g.nodes[r.SourceTableID] == nil || g.nodes[r.TargetTableID] == nil {
			continue
		}
		g.out[r.SourceTableID] = append(g.out[r.SourceTableID], r)
		g.in[r.TargetTableID] = append(g.in[r.TargetTableID], r)
	}
	g.assignLevels()
	return g
}

// assignLevels runs a multi-source BFS from every root (no incoming edges)
// with roots at level 0. First assignment wins, which both terminates on
// cycles and gives each node its distance to the nearest root. Nodes
// unreachable from any root, such as members of a rootless cycle, stay at
// level 0.
func (g *lineageGraph) assignLevels() {
	leveled := make(map[uuid.UUID]bool, len(g.nodes))
	var frontier []uuid.UUID
	for id := range g.nodes {
		if len(g.in[id]) == 0 {
			g.nodes[id].Level = 0
			leveled[id] = true
			frontier = append(frontier, id)
		}
	}

	for depth := 1; len(frontier) > 0; depth++ {
		var next []uuid.UUID
		for _, id := range frontier {
			for _, edge := range g.out[id] {
				if leveled[edge.TargetTableID] {
					continue
				}
				g.nodes[edge.TargetTableID].Level = depth
				leveled[edge.TargetTableID] = true
				next = append(next, edge.TargetTableID)
			}
		}
		frontier = next
	}
}

// LineageBuilder derives and persists table relationships. Writes are
// source-scoped: rebuilding one table replaces only the edges that table
// owns, leaving incoming edges from other tables untouched.
type LineageBuilder struct {
	tables repositories.TableRepository
	rels   repositories.RelationshipRepository
	logger *zap.Logger
}

// NewLineageBuilder creates a new LineageBuilder.
func NewLineageBuilder(tables repositories.TableRepository, rels repositories.RelationshipRepository, logger *zap.Logger) *LineageBuilder {
	return &LineageBuilder{tables: tables, rels: rels, logger: logger}
}

// MarkDerivedForeignKeys scans freshly profiled columns for the naming
// convention `<table>_id` where `<table>` names a cataloged table in the
// same schema. Matching columns are flagged as foreign keys in place; the
// discovered targets come back for the caller's relationship rebuild. Exact
// name match only, no pluralization guessing.
func (b *LineageBuilder) MarkDerivedForeignKeys(ctx context.Context, schemaName, tableName string, columns []models.ColumnMetadata) ([]uuid.UUID, error) {
	var targets []uuid.UUID
	seen := make(map[uuid.UUID]bool)

	for i := range columns {
		ref, ok := strings.CutSuffix(columns[i].ColumnName, "_id")
		if !ok || ref == "" || ref == tableName {
			continue
		}
		target, err := b.tables.GetByName(ctx, schemaName, ref)
		if err != nil {
			continue
		}
		columns[i].IsForeignKey = true
		if !seen[target.ID] {
			seen[target.ID] = true
			targets = append(targets, target.ID)
		}
	}
	return targets, nil
}

// RebuildForTable replaces every edge whose source is the given table with
// derived edges to the listed targets. Referential integrity holds because
// targets were resolved against the catalog by the caller.
func (b *LineageBuilder) RebuildForTable(ctx context.Context, sourceTableID uuid.UUID, derivedTargets []uuid.UUID) error {
	rels := make([]*models.TableRelationship, 0, len(derivedTargets))
	for _, target := range derivedTargets {
		if target == sourceTableID {
			continue
		}
		rels = append(rels, &models.TableRelationship{
			SourceTableID:    sourceTableID,
			TargetTableID:    target,
			RelationshipType: models.RelationshipDerived,
		})
	}
	if err := b.rels.ReplaceForSource(ctx, sourceTableID, models.RelationshipDerived, rels); err != nil {
		return fmt.Errorf("failed to rebuild lineage for table %s: %w", sourceTableID, err)
	}
	b.logger.Debug("rebuilt lineage edges",
		zap.String("source_table_id", sourceTableID.String()),
		zap.Int("edges", len(rels)))
	return nil
}

// DeclareForeignKeys records explicitly declared foreign keys as
// foreign_key edges. Both endpoints must already exist in the catalog.
// Duplicate declarations are idempotent no-ops.
func (b *LineageBuilder) DeclareForeignKeys(ctx context.Context, schemaName, tableName string, decls []models.ForeignKeyDecl) error {
	source, err := b.tables.GetByName(ctx, schemaName, tableName)
	if err != nil {
		return err
	}

	for _, decl := range decls {
		targetSchema := decl.TargetSchema
		if targetSchema == "" {
			targetSchema = schemaName
		}
		target, err := b.tables.GetByName(ctx, targetSchema, decl.TargetTable)
		if err != nil {
			return fmt.Errorf("foreign key target %s.%s: %w", targetSchema, decl.TargetTable, err)
		}
		if target.ID == source.ID {
			continue
		}
		err = b.rels.Upsert(ctx, &models.TableRelationship{
			SourceTableID:    source.ID,
			TargetTableID:    target.ID,
			RelationshipType: models.RelationshipForeignKey,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
