package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlake/catalog-engine/pkg/adapters/dataset"
	"github.com/lumenlake/catalog-engine/pkg/apperrors"
	"github.com/lumenlake/catalog-engine/pkg/models"
	"github.com/lumenlake/catalog-engine/pkg/repositories"
)

// memCatalog implements repositories.TableRepository and
// repositories.ColumnRepository over in-memory maps. Safe for concurrent
// use so job manager tests can run real worker pools against it.
type memCatalog struct {
	mu         sync.Mutex
	tables     map[uuid.UUID]*models.TableMetadata
	columns    map[uuid.UUID][]models.ColumnMetadata
	publishErr error
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		tables:  make(map[uuid.UUID]*models.TableMetadata),
		columns: make(map[uuid.UUID][]models.ColumnMetadata),
	}
}

func (m *memCatalog) GetByID(_ context.Context, id uuid.UUID) (*models.TableMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *memCatalog) GetByName(_ context.Context, schemaName, tableName string) (*models.TableMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.SchemaName == schemaName && t.TableName == tableName {
			copied := *t
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memCatalog) List(_ context.Context) ([]*models.TableMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.TableMetadata, 0, len(m.tables))
	for _, t := range m.tables {
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memCatalog) PublishProfile(_ context.Context, table *models.TableMetadata, columns []models.ColumnMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}

	now := time.Now().UTC()
	for _, existing := range m.tables {
		if existing.SchemaName == table.SchemaName && existing.TableName == table.TableName {
			table.ID = existing.ID
			table.CreatedAt = existing.CreatedAt
		}
	}
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
		table.CreatedAt = now
	}
	table.UpdatedAt = now

	copied := *table
	m.tables[table.ID] = &copied
	stored := make([]models.ColumnMetadata, len(columns))
	copy(stored, columns)
	for i := range stored {
		stored[i].ID = uuid.New()
		stored[i].TableID = table.ID
	}
	m.columns[table.ID] = stored
	return nil
}

func (m *memCatalog) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.tables, id)
	delete(m.columns, id)
	return nil
}

func (m *memCatalog) Overview(_ context.Context) (*repositories.CatalogOverview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	overview := &repositories.CatalogOverview{TotalTables: int64(len(m.tables))}
	schemas := map[string]bool{}
	for _, t := range m.tables {
		schemas[t.SchemaName] = true
		if t.RowCount != nil {
			overview.TotalRows += *t.RowCount
		}
		if t.SizeBytes != nil {
			overview.TotalSizeBytes += *t.SizeBytes
		}
	}
	overview.TotalSchemas = int64(len(schemas))
	return overview, nil
}

func (m *memCatalog) TopByRowCount(_ context.Context, limit int) ([]*models.TableMetadata, error) {
	tables, _ := m.List(context.Background())
	if len(tables) > limit {
		tables = tables[:limit]
	}
	return tables, nil
}

func (m *memCatalog) ListByTable(_ context.Context, tableID uuid.UUID) ([]models.ColumnMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ColumnMetadata, len(m.columns[tableID]))
	copy(out, m.columns[tableID])
	return out, nil
}

func (m *memCatalog) CountAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, cols := range m.columns {
		n += int64(len(cols))
	}
	return n, nil
}

// addTable seeds a table directly, bypassing the publish path.
func (m *memCatalog) addTable(schemaName, tableName string) *models.TableMetadata {
	t := &models.TableMetadata{
		ID:         uuid.New(),
		SchemaName: schemaName,
		TableName:  tableName,
		TableType:  models.TableTypeTable,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	m.mu.Lock()
	m.tables[t.ID] = t
	m.mu.Unlock()
	return t
}

// memRelationships implements repositories.RelationshipRepository.
type memRelationships struct {
	mu         sync.Mutex
	edges      []*models.TableRelationship
	replaceErr error
}

func (m *memRelationships) Upsert(_ context.Context, rel *models.TableRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.edges {
		if e.SourceTableID == rel.SourceTableID && e.TargetTableID == rel.TargetTableID &&
			e.RelationshipType == rel.RelationshipType {
			return nil
		}
	}
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	copied := *rel
	m.edges = append(m.edges, &copied)
	return nil
}

func (m *memRelationships) ListAll(_ context.Context) ([]*models.TableRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.TableRelationship, len(m.edges))
	copy(out, m.edges)
	return out, nil
}

func (m *memRelationships) ReplaceForSource(_ context.Context, sourceTableID uuid.UUID, relType models.RelationshipType, rels []*models.TableRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	kept := m.edges[:0]
	for _, e := range m.edges {
		if e.SourceTableID == sourceTableID && e.RelationshipType == relType {
			continue
		}
		kept = append(kept, e)
	}
	m.edges = kept
	for _, rel := range rels {
		if rel.ID == uuid.Nil {
			rel.ID = uuid.New()
		}
		copied := *rel
		m.edges = append(m.edges, &copied)
	}
	return nil
}

// memJobs implements repositories.JobRepository.
type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[uuid.UUID]*models.Job)}
}

func (m *memJobs) Create(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now().UTC()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memJobs) Get(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		copied := *j
		return &copied, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *memJobs) Update(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Status.IsTerminal() {
		return apperrors.ErrAlreadyTerminal
	}
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memJobs) UpdateProgress(_ context.Context, id uuid.UUID, progress float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.Status == models.JobStatusRunning {
		j.Progress = progress
	}
	return nil
}

func (m *memJobs) CountByStatus(_ context.Context) (map[models.JobStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.JobStatus]int64)
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (m *memJobs) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, j := range m.jobs {
		if j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// sliceReader is an in-memory dataset.Reader over pre-built rows.
type sliceReader struct {
	columns []string
	rows    []dataset.Row
	pos     int
	size    int64

	// batchGate, when non-nil, is received from before every batch so a
	// test can hold a profiling run mid-flight.
	batchGate chan struct{}
}

func (r *sliceReader) Columns() []string { return r.columns }

func (r *sliceReader) ReadBatch(max int) ([]dataset.Row, error) {
	if r.batchGate != nil {
		<-r.batchGate
	}
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	end := r.pos + max
	err := error(nil)
	if end >= len(r.rows) {
		end = len(r.rows)
		err = io.EOF
	}
	batch := r.rows[r.pos:end]
	r.pos = end
	return batch, err
}

func (r *sliceReader) Size() int64      { return r.size }
func (r *sliceReader) BytesRead() int64 { return int64(r.pos) }
func (r *sliceReader) Close() error     { return nil }

var (
	_ repositories.TableRepository        = (*memCatalog)(nil)
	_ repositories.ColumnRepository       = (*memCatalog)(nil)
	_ repositories.RelationshipRepository = (*memRelationships)(nil)
	_ repositories.JobRepository          = (*memJobs)(nil)
	_ dataset.Reader                      = (*sliceReader)(nil)
)

func cells(values ...string) dataset.Row {
	row := make(dataset.Row, len(values))
	for i, v := range values {
		row[i] = dataset.Value{Raw: v, Null: v == ""}
	}
	return row
}
