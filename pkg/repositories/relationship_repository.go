package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlake/catalog-engine/pkg/database"
	"github.com/lumenlake/catalog-engine/pkg/models"
)

// RelationshipRepository provides data access for lineage edges.
type RelationshipRepository interface {
	// Upsert inserts the relationship if it does not already exist.
	// Duplicate (source, target, type) edges are a silent no-op so
	// re-derivation stays idempotent.
	Upsert(ctx context.Context, rel *models.TableRelationship) error
	ListAll(ctx context.Context) ([]*models.TableRelationship, error)
	// ReplaceForSource deletes every edge of the given type whose source is
	// the given table and inserts the provided set in one transaction.
	// Incoming edges and other edge types are untouched, so a derived-edge
	// rebuild never discards declared foreign keys.
	ReplaceForSource(ctx context.Context, sourceTableID uuid.UUID, relType models.RelationshipType, rels []*models.TableRelationship) error
}

type relationshipRepository struct {
	db *database.DB
}

// NewRelationshipRepository creates a new RelationshipRepository.
func NewRelationshipRepository(db *database.DB) RelationshipRepository {
	return &relationshipRepository{db: db}
}

var _ RelationshipRepository = (*relationshipRepository)(nil)

const relationshipInsert = `
	INSERT INTO lineage.table_relationships (
		id, source_table_id, target_table_id, relationship_type, description, created_at
	) VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (source_table_id, target_table_id, relationship_type) DO NOTHING`

func (r *relationshipRepository) Upsert(ctx context.Context, rel *models.TableRelationship) error {
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	rel.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx, relationshipInsert,
		rel.ID, rel.SourceTableID, rel.TargetTableID, rel.RelationshipType,
		rel.Description, rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	return nil
}

func (r *relationshipRepository) ListAll(ctx context.Context) ([]*models.TableRelationship, error) {
	query := `
		SELECT id, source_table_id, target_table_id, relationship_type, description, created_at
		FROM lineage.table_relationships
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var rels []*models.TableRelationship
	for rows.Next() {
		var rel models.TableRelationship
		err := rows.Scan(&rel.ID, &rel.SourceTableID, &rel.TargetTableID,
			&rel.RelationshipType, &rel.Description, &rel.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}
	return rels, nil
}

func (r *relationshipRepository) ReplaceForSource(ctx context.Context, sourceTableID uuid.UUID, relType models.RelationshipType, rels []*models.TableRelationship) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin relationship rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM lineage.table_relationships
		 WHERE source_table_id = $1 AND relationship_type = $2`,
		sourceTableID, relType); err != nil {
		return fmt.Errorf("failed to delete source relationships: %w", err)
	}

	now := time.Now().UTC()
	for _, rel := range rels {
		if rel.ID == uuid.Nil {
			rel.ID = uuid.New()
		}
		rel.CreatedAt = now
		if _, err := tx.Exec(ctx, relationshipInsert,
			rel.ID, rel.SourceTableID, rel.TargetTableID, rel.RelationshipType,
			rel.Description, rel.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert relationship: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit relationship rebuild: %w", err)
	}
	return nil
}
