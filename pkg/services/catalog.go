package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/cache"
	"github.com/lumenlake/catalog-engine/pkg/config"
	"github.com/lumenlake/catalog-engine/pkg/models"
	"github.com/lumenlake/catalog-engine/pkg/repositories"
)

// CatalogService is the read/browse surface over the metadata store. Reads
// that fan out to multiple queries (profiles, lineage, search) go through
// the cache loader; writes invalidate coarsely by table key.
type CatalogService struct {
	cfg     config.CacheConfig
	tables  repositories.TableRepository
	columns repositories.ColumnRepository
	search  repositories.SearchRepository
	jobs    repositories.JobRepository
	lineage *LineageQuery
	cache   *cache.Loader
	logger  *zap.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(
	cfg config.CacheConfig,
	tables repositories.TableRepository,
	columns repositories.ColumnRepository,
	search repositories.SearchRepository,
	jobs repositories.JobRepository,
	lineage *LineageQuery,
	cacheLoader *cache.Loader,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		cfg:     cfg,
		tables:  tables,
		columns: columns,
		search:  search,
		jobs:    jobs,
		lineage: lineage,
		cache:   cacheLoader,
		logger:  logger,
	}
}

// ListTables returns every cataloged table.
func (s *CatalogService) ListTables(ctx context.Context) ([]*models.TableMetadata, error) {
	return s.tables.List(ctx)
}

// GetProfile returns a table with its profiled columns, served from the
// cache within the profile TTL.
func (s *CatalogService) GetProfile(ctx context.Context, schemaName, tableName string) (*models.TableProfile, error) {
	key := cache.ProfileKey(schemaName, tableName)
	raw, err := s.cache.GetOrLoad(ctx, key, s.cfg.ProfileTTL, func(ctx context.Context) ([]byte, error) {
		table, err := s.tables.GetByName(ctx, schemaName, tableName)
		if err != nil {
			return nil, err
		}
		columns, err := s.columns.ListByTable(ctx, table.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(&models.TableProfile{Table: *table, Columns: columns})
	})
	if err != nil {
		return nil, err
	}

	var profile models.TableProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode cached profile: %w", err)
	}
	return &profile, nil
}

// GetLineage returns the lineage neighborhood of a table, served from the
// cache within the lineage TTL.
func (s *CatalogService) GetLineage(ctx context.Context, schemaName, tableName string, direction Direction, maxDepth int) (*LineageResult, error) {
	key := cache.LineageKey(schemaName, tableName, string(direction), maxDepth)
	raw, err := s.cache.GetOrLoad(ctx, key, s.cfg.LineageTTL, func(ctx context.Context) ([]byte, error) {
		result, err := s.lineage.Neighborhood(ctx, schemaName, tableName, direction, maxDepth)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		return nil, err
	}

	var result LineageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached lineage: %w", err)
	}
	return &result, nil
}

// DeleteTable removes a table, its columns, and its relationships in both
// directions, then drops every cached entry for the key. Edge garbage
// collection is eager so no dangling edge survives until the next rebuild.
func (s *CatalogService) DeleteTable(ctx context.Context, schemaName, tableName string) error {
	table, err := s.tables.GetByName(ctx, schemaName, tableName)
	if err != nil {
		return err
	}
	if err := s.tables.Delete(ctx, table.ID); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, schemaName, tableName); err != nil {
		s.logger.Warn("cache invalidation failed after delete",
			zap.String("table", table.Key()), zap.Error(err))
	}
	s.logger.Info("table deleted from catalog", zap.String("table", table.Key()))
	return nil
}

// InvalidateTable drops the cached profile and lineage entries for a table
// after an out-of-band metadata change such as a foreign key declaration.
func (s *CatalogService) InvalidateTable(ctx context.Context, schemaName, tableName string) {
	if err := s.cache.Invalidate(ctx, schemaName, tableName); err != nil {
		s.logger.Warn("cache invalidation failed",
			zap.String("table", models.TableKey(schemaName, tableName)), zap.Error(err))
	}
}

// Search matches tables and columns against a free-text query. Optional
// filters narrow by result type ("table" or "column") and schema.
func (s *CatalogService) Search(ctx context.Context, query, resultType, schemaName string, limit int) ([]repositories.SearchResult, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	key := cache.SearchKey(query, resultType, schemaName)
	raw, err := s.cache.GetOrLoad(ctx, key, s.cfg.SearchTTL, func(ctx context.Context) ([]byte, error) {
		hits, err := s.search.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		filtered := make([]repositories.SearchResult, 0, len(hits))
		for _, hit := range hits {
			if resultType != "" && hit.ResultType != resultType {
				continue
			}
			if schemaName != "" && hit.SchemaName != schemaName {
				continue
			}
			filtered = append(filtered, hit)
		}
		return json.Marshal(filtered)
	})
	if err != nil {
		return nil, err
	}

	var results []repositories.SearchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("failed to decode cached search results: %w", err)
	}
	return results, nil
}

// TableSummary is one entry in the analytics top-tables list.
type TableSummary struct {
	SchemaName string `json:"schema_name"`
	TableName  string `json:"table_name"`
	RowCount   int64  `json:"row_count"`
}

// CatalogAnalytics is the catalog-wide statistics payload.
type CatalogAnalytics struct {
	TotalTables    int64                      `json:"total_tables"`
	TotalSchemas   int64                      `json:"total_schemas"`
	TotalColumns   int64                      `json:"total_columns"`
	TotalRows      int64                      `json:"total_rows"`
	TotalSizeBytes int64                      `json:"total_size_bytes"`
	TotalSizeHuman string                     `json:"total_size_human"`
	TopTables      []TableSummary             `json:"top_tables"`
	JobsByStatus   map[models.JobStatus]int64 `json:"jobs_by_status"`
}

// Analytics aggregates catalog-wide statistics for dashboards.
func (s *CatalogService) Analytics(ctx context.Context) (*CatalogAnalytics, error) {
	overview, err := s.tables.Overview(ctx)
	if err != nil {
		return nil, err
	}
	columnCount, err := s.columns.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	top, err := s.tables.TopByRowCount(ctx, 10)
	if err != nil {
		return nil, err
	}
	jobCounts, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	analytics := &CatalogAnalytics{
		TotalTables:    overview.TotalTables,
		TotalSchemas:   overview.TotalSchemas,
		TotalColumns:   columnCount,
		TotalRows:      overview.TotalRows,
		TotalSizeBytes: overview.TotalSizeBytes,
		TotalSizeHuman: formatSize(overview.TotalSizeBytes),
		TopTables:      make([]TableSummary, 0, len(top)),
		JobsByStatus:   jobCounts,
	}
	for _, t := range top {
		summary := TableSummary{SchemaName: t.SchemaName, TableName: t.TableName}
		if t.RowCount != nil {
			summary.RowCount = *t.RowCount
		}
		analytics.TopTables = append(analytics.TopTables, summary)
	}
	return analytics, nil
}

func formatSize(bytes int64) string {
	const unit = 1024
	switch {
	case bytes < unit:
		return fmt.Sprintf("%d B", bytes)
	case bytes < unit*unit:
		return fmt.Sprintf("%.1f KB", float64(bytes)/unit)
	case bytes < unit*unit*unit:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(unit*unit))
	default:
		return fmt.Sprintf("%.1f GB", float64(bytes)/(unit*unit*unit))
	}
}
