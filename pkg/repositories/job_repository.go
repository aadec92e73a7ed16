package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumenlake/catalog-engine/pkg/apperrors"
	"github.com/lumenlake/catalog-engine/pkg/database"
	"github.com/lumenlake/catalog-engine/pkg/models"
)

// JobRepository persists job records so status survives polling across
// requests. Status transition legality is enforced here as well as in the
// job manager: a terminal row is never updated.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress float64) error
	CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error)
	// DeleteTerminalBefore removes completed/failed/cancelled jobs whose
	// completion predates the cutoff. Returns how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobRepository struct {
	db *database.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *database.DB) JobRepository {
	return &jobRepository{db: db}
}

var _ JobRepository = (*jobRepository)(nil)

func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO catalog.jobs (
			id, job_type, schema_name, table_name, status, progress, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.JobType, job.SchemaName, job.TableName, job.Status,
		job.Progress, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		SELECT id, job_type, schema_name, table_name, status, progress,
		       created_at, started_at, completed_at, result, error
		FROM catalog.jobs
		WHERE id = $1`

	var job models.Job
	var resultJSON []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.JobType, &job.SchemaName, &job.TableName, &job.Status,
		&job.Progress, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
		&resultJSON, &job.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if len(resultJSON) > 0 {
		var result models.JobResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

func (r *jobRepository) Update(ctx context.Context, job *models.Job) error {
	var resultJSON []byte
	if job.Result != nil {
		var err error
		resultJSON, err = json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("failed to encode job result: %w", err)
		}
	}

	// Terminal rows are immutable; the WHERE clause makes regression
	// impossible even under a racing update.
	query := `
		UPDATE catalog.jobs
		SET status = $2, progress = $3, started_at = $4, completed_at = $5,
		    result = $6, error = $7
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`

	tag, err := r.db.Exec(ctx, query,
		job.ID, job.Status, job.Progress, job.StartedAt, job.CompletedAt,
		resultJSON, job.Error)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAlreadyTerminal
	}
	return nil
}

func (r *jobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress float64) error {
	query := `
		UPDATE catalog.jobs
		SET progress = $2
		WHERE id = $1 AND status = 'running'`

	if _, err := r.db.Exec(ctx, query, id, progress); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (r *jobRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM catalog.jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int64)
	for rows.Next() {
		var status models.JobStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job counts: %w", err)
	}
	return counts, nil
}

func (r *jobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM catalog.jobs
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1`

	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
