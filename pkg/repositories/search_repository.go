package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lumenlake/catalog-engine/pkg/database"
)

// SearchResult is a single catalog search hit, either a table or a column.
type SearchResult struct {
	ResultType string    `json:"result_type"`
	TableID    uuid.UUID `json:"table_id"`
	SchemaName string    `json:"schema_name"`
	TableName  string    `json:"table_name"`
	ColumnName *string   `json:"column_name,omitempty"`
	Relevance  float64   `json:"relevance"`
}

// SearchRepository matches tables and columns against a free-text query.
type SearchRepository interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

type searchRepository struct {
	db *database.DB
}

// NewSearchRepository creates a new SearchRepository.
func NewSearchRepository(db *database.DB) SearchRepository {
	return &searchRepository{db: db}
}

var _ SearchRepository = (*searchRepository)(nil)

// Relevance tiers: exact name match 1.0, name prefix 0.9, description hit
// 0.7, any other substring hit 0.5. Ordered by relevance then name so ties
// come back in a stable order.
const searchQuery = `
	SELECT result_type, table_id, schema_name, table_name, column_name, relevance
	FROM (
		SELECT 'table' AS result_type,
		       t.id AS table_id,
		       t.schema_name,
		       t.table_name,
		       NULL::text AS column_name,
		       CASE
		           WHEN lower(t.table_name) = $1 THEN 1.0
		           WHEN lower(t.table_name) LIKE $2 THEN 0.9
		           WHEN t.description IS NOT NULL AND lower(t.description) LIKE $3 THEN 0.7
		           ELSE 0.5
		       END AS relevance
		FROM catalog.table_metadata t
		WHERE lower(t.table_name) LIKE $3
		   OR (t.description IS NOT NULL AND lower(t.description) LIKE $3)

		UNION ALL

		SELECT 'column' AS result_type,
		       t.id AS table_id,
		       t.schema_name,
		       t.table_name,
		       c.column_name,
		       CASE
		           WHEN lower(c.column_name) = $1 THEN 1.0
		           WHEN lower(c.column_name) LIKE $2 THEN 0.9
		           WHEN c.description IS NOT NULL AND lower(c.description) LIKE $3 THEN 0.7
		           ELSE 0.5
		       END AS relevance
		FROM catalog.column_metadata c
		JOIN catalog.table_metadata t ON t.id = c.table_id
		WHERE lower(c.column_name) LIKE $3
		   OR (c.description IS NOT NULL AND lower(c.description) LIKE $3)
	) hits
	ORDER BY relevance DESC, schema_name, table_name, column_name NULLS FIRST
	LIMIT $4`

func (r *searchRepository) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return []SearchResult{}, nil
	}
	escaped := escapeLike(term)

	rows, err := r.db.Query(ctx, searchQuery,
		term, escaped+"%", "%"+escaped+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var res SearchResult
		if err := rows.Scan(&res.ResultType, &res.TableID, &res.SchemaName,
			&res.TableName, &res.ColumnName, &res.Relevance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return results, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
