package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumenlake/catalog-engine/pkg/apperrors"
	"github.com/lumenlake/catalog-engine/pkg/database"
	"github.com/lumenlake/catalog-engine/pkg/models"
)

// TableRepository provides data access for cataloged tables.
type TableRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.TableMetadata, error)
	GetByName(ctx context.Context, schemaName, tableName string) (*models.TableMetadata, error)
	List(ctx context.Context) ([]*models.TableMetadata, error)
	// PublishProfile atomically upserts the table record and replaces all of
	// its column records in a single transaction. Readers either see the
	// previous profile or the new one, never a mix.
	PublishProfile(ctx context.Context, table *models.TableMetadata, columns []models.ColumnMetadata) error
	// Delete removes the table plus its columns and relationships in both
	// directions (cascade).
	Delete(ctx context.Context, id uuid.UUID) error
	// Overview returns catalog-wide aggregates for the analytics endpoint.
	Overview(ctx context.Context) (*CatalogOverview, error)
	// TopByRowCount returns the largest tables for the analytics endpoint.
	TopByRowCount(ctx context.Context, limit int) ([]*models.TableMetadata, error)
}

// CatalogOverview holds catalog-wide aggregate statistics.
type CatalogOverview struct {
	TotalTables    int64 `json:"total_tables"`
	TotalSchemas   int64 `json:"total_schemas"`
	TotalRows      int64 `json:"total_rows"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

type tableRepository struct {
	db *database.DB
}

// NewTableRepository creates a new TableRepository.
func NewTableRepository(db *database.DB) TableRepository {
	return &tableRepository{db: db}
}

var _ TableRepository = (*tableRepository)(nil)

const tableColumns = `id, schema_name, table_name, table_type, description,
	row_count, size_bytes, last_analyzed_at, created_at, updated_at`

func (r *tableRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TableMetadata, error) {
	query := `SELECT ` + tableColumns + ` FROM catalog.table_metadata WHERE id = $1`
	return scanTableRow(r.db.QueryRow(ctx, query, id))
}

func (r *tableRepository) GetByName(ctx context.Context, schemaName, tableName string) (*models.TableMetadata, error) {
	query := `SELECT ` + tableColumns + `
		FROM catalog.table_metadata
		WHERE schema_name = $1 AND table_name = $2`
	return scanTableRow(r.db.QueryRow(ctx, query, schemaName, tableName))
}

func (r *tableRepository) List(ctx context.Context) ([]*models.TableMetadata, error) {
	query := `SELECT ` + tableColumns + `
		FROM catalog.table_metadata
		ORDER BY schema_name, table_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.TableMetadata
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (r *tableRepository) PublishProfile(ctx context.Context, table *models.TableMetadata, columns []models.ColumnMetadata) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin publish transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	table.UpdatedAt = now

	upsert := `
		INSERT INTO catalog.table_metadata (
			id, schema_name, table_name, table_type, description,
			row_count, size_bytes, last_analyzed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (schema_name, table_name) DO UPDATE SET
			table_type = EXCLUDED.table_type,
			row_count = EXCLUDED.row_count,
			size_bytes = EXCLUDED.size_bytes,
			last_analyzed_at = EXCLUDED.last_analyzed_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err = tx.QueryRow(ctx, upsert,
		table.ID, table.SchemaName, table.TableName, table.TableType, table.Description,
		table.RowCount, table.SizeBytes, table.LastAnalyzedAt, now,
	).Scan(&table.ID, &table.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert table metadata: %w", err)
	}

	// Old column records are superseded, not merged.
	if _, err := tx.Exec(ctx, `DELETE FROM catalog.column_metadata WHERE table_id = $1`, table.ID); err != nil {
		return fmt.Errorf("failed to delete stale column metadata: %w", err)
	}

	insert := `
		INSERT INTO catalog.column_metadata (
			id, table_id, column_name, column_type, is_nullable,
			is_primary_key, is_foreign_key, description, null_count,
			unique_count, unique_is_estimate, min_value, max_value, avg_value,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`

	for i := range columns {
		col := &columns[i]
		if col.ID == uuid.Nil {
			col.ID = uuid.New()
		}
		col.TableID = table.ID
		if _, err := tx.Exec(ctx, insert,
			col.ID, col.TableID, col.ColumnName, col.ColumnType, col.IsNullable,
			col.IsPrimaryKey, col.IsForeignKey, col.Description, col.NullCount,
			col.UniqueCount, col.UniqueIsEstimate, col.MinValue, col.MaxValue, col.AvgValue,
			now,
		); err != nil {
			return fmt.Errorf("failed to insert column metadata for %s: %w", col.ColumnName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit profile publish: %w", err)
	}
	return nil
}

func (r *tableRepository) Delete(ctx context.Context, id uuid.UUID) error {
	// Columns and relationships go with the table (ON DELETE CASCADE).
	tag, err := r.db.Exec(ctx, `DELETE FROM catalog.table_metadata WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete table metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *tableRepository) Overview(ctx context.Context) (*CatalogOverview, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT schema_name),
			COALESCE(SUM(row_count), 0),
			COALESCE(SUM(size_bytes), 0)
		FROM catalog.table_metadata`

	var o CatalogOverview
	err := r.db.QueryRow(ctx, query).Scan(&o.TotalTables, &o.TotalSchemas, &o.TotalRows, &o.TotalSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog overview: %w", err)
	}
	return &o, nil
}

func (r *tableRepository) TopByRowCount(ctx context.Context, limit int) ([]*models.TableMetadata, error) {
	query := `SELECT ` + tableColumns + `
		FROM catalog.table_metadata
		ORDER BY row_count DESC NULLS LAST, schema_name, table_name
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.TableMetadata
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top tables: %w", err)
	}
	return tables, nil
}

func scanTableRow(row pgx.Row) (*models.TableMetadata, error) {
	var t models.TableMetadata
	err := row.Scan(&t.ID, &t.SchemaName, &t.TableName, &t.TableType, &t.Description,
		&t.RowCount, &t.SizeBytes, &t.LastAnalyzedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan table metadata: %w", err)
	}
	return &t, nil
}

func scanTable(rows pgx.Rows) (*models.TableMetadata, error) {
	var t models.TableMetadata
	err := rows.Scan(&t.ID, &t.SchemaName, &t.TableName, &t.TableType, &t.Description,
		&t.RowCount, &t.SizeBytes, &t.LastAnalyzedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan table metadata: %w", err)
	}
	return &t, nil
}
