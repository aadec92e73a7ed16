package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lumenlake/catalog-engine/pkg/database"
	"github.com/lumenlake/catalog-engine/pkg/models"
)

// ColumnRepository provides read access to profiled column statistics.
// Writes go through TableRepository.PublishProfile so table and column
// records always change together.
type ColumnRepository interface {
	ListByTable(ctx context.Context, tableID uuid.UUID) ([]models.ColumnMetadata, error)
	CountAll(ctx context.Context) (int64, error)
}

type columnRepository struct {
	db *database.DB
}

// NewColumnRepository creates a new ColumnRepository.
func NewColumnRepository(db *database.DB) ColumnRepository {
	return &columnRepository{db: db}
}

var _ ColumnRepository = (*columnRepository)(nil)

func (r *columnRepository) ListByTable(ctx context.Context, tableID uuid.UUID) ([]models.ColumnMetadata, error) {
	query := `
		SELECT id, table_id, column_name, column_type, is_nullable,
		       is_primary_key, is_foreign_key, description, null_count,
		       unique_count, unique_is_estimate, min_value, max_value, avg_value,
		       created_at, updated_at
		FROM catalog.column_metadata
		WHERE table_id = $1
		ORDER BY column_name`

	rows, err := r.db.Query(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer rows.Close()

	var columns []models.ColumnMetadata
	for rows.Next() {
		var c models.ColumnMetadata
		err := rows.Scan(&c.ID, &c.TableID, &c.ColumnName, &c.ColumnType, &c.IsNullable,
			&c.IsPrimaryKey, &c.IsForeignKey, &c.Description, &c.NullCount,
			&c.UniqueCount, &c.UniqueIsEstimate, &c.MinValue, &c.MaxValue, &c.AvgValue,
			&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	return columns, nil
}

func (r *columnRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM catalog.column_metadata`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count columns: %w", err)
	}
	return count, nil
}
