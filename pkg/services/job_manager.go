package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/adapters/dataset"
	"github.com/lumenlake/catalog-engine/pkg/apperrors"
	"github.com/lumenlake/catalog-engine/pkg/cache"
	"github.com/lumenlake/catalog-engine/pkg/config"
	"github.com/lumenlake/catalog-engine/pkg/models"
	"github.com/lumenlake/catalog-engine/pkg/repositories"
	"github.com/lumenlake/catalog-engine/pkg/retry"
)

// SubmitRequest describes one dataset ingestion request. Path points at a
// readable source file; RemoveSource hands ownership of that file to the
// manager, which deletes it once the job resolves.
type SubmitRequest struct {
	Path         string
	Format       string
	SchemaName   string
	TableName    string
	RemoveSource bool
}

type queuedJob struct {
	job     *models.Job
	request SubmitRequest
}

type runningJob struct {
	cancel   context.CancelCauseFunc
	progress float64
	// determinate is set once a real percentage arrives; from then on the
	// indeterminate marker is never accepted, even over a value of 0.
	determinate bool
}

// JobManager owns the ingestion job lifecycle: a FIFO queue drained by a
// bounded worker pool, with at most one in-flight job per (schema, table)
// key. The queue, the in-flight set, and the running-job handles are the
// only shared mutable state and all live under one mutex.
type JobManager struct {
	cfg      config.IngestConfig
	jobs     repositories.JobRepository
	tables   repositories.TableRepository
	profiler *Profiler
	builder  *LineageBuilder
	cache    *cache.Loader
	logger   *zap.Logger

	// openSource is swappable so tests can feed in-memory readers.
	openSource func(path, format string) (dataset.Reader, error)

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*queuedJob
	inflight map[string]bool
	running  map[uuid.UUID]*runningJob
	stopping bool

	wg sync.WaitGroup
}

// NewJobManager creates a JobManager. Call Start to launch the workers.
func NewJobManager(
	cfg config.IngestConfig,
	jobs repositories.JobRepository,
	tables repositories.TableRepository,
	profiler *Profiler,
	builder *LineageBuilder,
	cacheLoader *cache.Loader,
	logger *zap.Logger,
) *JobManager {
	m := &JobManager{
		cfg:        cfg,
		jobs:       jobs,
		tables:     tables,
		profiler:   profiler,
		builder:    builder,
		cache:      cacheLoader,
		logger:     logger,
		openSource: dataset.Open,
		inflight:   make(map[string]bool),
		running:    make(map[uuid.UUID]*runningJob),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start launches the worker pool and the terminal-job retention sweep.
// Workers stop after Stop is called and the queue has been abandoned.
func (m *JobManager) Start(ctx context.Context) {
	for i := 0; i < m.cfg.MaxWorkers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
	m.wg.Add(1)
	go m.retentionSweep(ctx)
	m.logger.Info("job manager started", zap.Int("workers", m.cfg.MaxWorkers))
}

// Stop wakes all workers and waits for in-flight jobs to resolve. Queued
// jobs that never started stay pending in the store.
func (m *JobManager) Stop() {
	m.mu.Lock()
	m.stopping = true
	m.cond.Broadcast()
	for _, r := range m.running {
		r.cancel(apperrors.ErrCancelled)
	}
	m.mu.Unlock()
	m.wg.Wait()
	m.logger.Info("job manager stopped")
}

// Submit enqueues an ingestion job for the given source and returns its id.
// A second submission for a key already queued or in flight is accepted; it
// runs after the first resolves.
func (m *JobManager) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	job := &models.Job{
		JobType:    models.JobTypeIngest,
		SchemaName: req.SchemaName,
		TableName:  req.TableName,
		Status:     models.JobStatusPending,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.queue = append(m.queue, &queuedJob{job: job, request: req})
	m.cond.Signal()
	m.mu.Unlock()

	m.logger.Info("ingestion job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("table", job.Key()))
	return job, nil
}

// GetStatus returns the job with live progress overlaid for running jobs:
// the worker stores progress in memory on every batch and flushes to the
// store less often.
func (m *JobManager) GetStatus(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if r, ok := m.running[id]; ok && job.Status == models.JobStatusRunning {
		job.Progress = r.progress
	}
	m.mu.Unlock()
	return job, nil
}

// Cancel stops a job. A pending job is removed from the queue and ends
// cancelled immediately; a running job gets a cooperative signal the
// profiler observes between batches. Terminal jobs are immutable.
func (m *JobManager) Cancel(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	for i, q := range m.queue {
		if q.job.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.mu.Unlock()
			m.removeSource(q.request)
			return m.finishJob(ctx, q.job, models.JobStatusCancelled, nil, nil)
		}
	}
	if r, ok := m.running[id]; ok {
		r.cancel(apperrors.ErrCancelled)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return apperrors.ErrAlreadyTerminal
	}
	// Pending in the store but not in our queue: submitted by a previous
	// process run. Mark it cancelled directly.
	return m.finishJob(ctx, job, models.JobStatusCancelled, nil, nil)
}

// worker pulls runnable jobs until shutdown. The scan is front-to-back so
// order is FIFO overall and per key; a job whose key is in flight is
// skipped, not removed.
func (m *JobManager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		var next *queuedJob
		for next == nil && !m.stopping {
			for i, q := range m.queue {
				if !m.inflight[q.job.Key()] {
					next = q
					m.queue = append(m.queue[:i], m.queue[i+1:]...)
					break
				}
			}
			if next == nil {
				m.cond.Wait()
			}
		}
		if next == nil {
			m.mu.Unlock()
			return
		}
		m.inflight[next.job.Key()] = true
		m.mu.Unlock()

		m.runJob(ctx, next)

		m.mu.Lock()
		delete(m.inflight, next.job.Key())
		// A skipped job for this key may now be runnable.
		m.cond.Broadcast()
		m.mu.Unlock()
	}
}

func (m *JobManager) runJob(ctx context.Context, q *queuedJob) {
	job := q.job
	defer m.removeSource(q.request)

	runCtx, timeoutCancel := context.WithTimeout(ctx, m.cfg.JobTimeout)
	defer timeoutCancel()
	runCtx, cancel := context.WithCancelCause(runCtx)
	defer cancel(nil)

	// The cancel handle is registered before the status flips so Cancel
	// always finds either the queued entry or the running handle.
	m.mu.Lock()
	m.running[job.ID] = &runningJob{cancel: cancel}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.running, job.ID)
		m.mu.Unlock()
	}()

	now := time.Now().UTC()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	if err := m.jobs.Update(ctx, job); err != nil {
		// Lost the race with a cancellation that went straight to the store.
		m.logger.Warn("job not started", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}

	result, err := m.profileAndPublish(runCtx, job, q.request)
	if err != nil {
		status, msg := classifyFailure(runCtx, err)
		m.logger.Warn("ingestion job did not complete",
			zap.String("job_id", job.ID.String()),
			zap.String("table", job.Key()),
			zap.String("status", string(status)),
			zap.Error(err))
		if ferr := m.finishJob(ctx, job, status, nil, &msg); ferr != nil {
			m.logger.Error("failed to record job failure", zap.Error(ferr))
		}
		return
	}

	if err := m.finishJob(ctx, job, models.JobStatusCompleted, result, nil); err != nil {
		m.logger.Error("failed to record job completion", zap.Error(err))
		return
	}
	m.logger.Info("ingestion job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("table", job.Key()),
		zap.Int64("rows", result.RowsProfiled),
		zap.Int("columns", result.ColumnsDiscovered))
}

// profileAndPublish runs the profiler and commits the outcome. Nothing is
// written unless the full pass succeeds, and the table plus its columns
// land in one transaction.
func (m *JobManager) profileAndPublish(ctx context.Context, job *models.Job, req SubmitRequest) (*models.JobResult, error) {
	reader, err := m.openSource(req.Path, req.Format)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	profile, err := m.profiler.Profile(ctx, reader, func(pct float64) {
		m.reportProgress(ctx, job.ID, pct)
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	table := &models.TableMetadata{
		SchemaName:     job.SchemaName,
		TableName:      job.TableName,
		TableType:      models.TableTypeTable,
		RowCount:       &profile.RowCount,
		LastAnalyzedAt: &now,
	}
	if size := reader.Size(); size >= 0 {
		table.SizeBytes = &size
	}

	// Flag derived foreign keys before publishing so the column records
	// carry is_foreign_key from the start. Edges need the published table
	// id, so the rebuild comes after.
	derivedTargets, err := m.builder.MarkDerivedForeignKeys(ctx, job.SchemaName, job.TableName, profile.Columns)
	if err != nil {
		return nil, err
	}
	if err := m.tables.PublishProfile(ctx, table, profile.Columns); err != nil {
		return nil, err
	}

	// A lineage rebuild failure never rolls back a published profile; it is
	// retried and then surfaced as a warning.
	rebuildErr := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return m.builder.RebuildForTable(ctx, table.ID, derivedTargets)
	})
	if rebuildErr != nil {
		m.logger.Warn("lineage rebuild failed after publish",
			zap.String("table", job.Key()),
			zap.Error(rebuildErr))
	}

	if err := m.cache.Invalidate(ctx, job.SchemaName, job.TableName); err != nil {
		m.logger.Warn("cache invalidation failed", zap.String("table", job.Key()), zap.Error(err))
	}

	return &models.JobResult{
		TableID:           table.ID,
		RowsProfiled:      profile.RowCount,
		ColumnsDiscovered: len(profile.Columns),
	}, nil
}

// reportProgress stores progress in memory for pollers and flushes to the
// store. Progress never decreases; an indeterminate marker never replaces a
// determinate value.
func (m *JobManager) reportProgress(ctx context.Context, id uuid.UUID, pct float64) {
	m.mu.Lock()
	r, ok := m.running[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if pct == models.ProgressIndeterminate {
		if r.determinate {
			m.mu.Unlock()
			return
		}
	} else {
		if r.determinate && pct < r.progress {
			m.mu.Unlock()
			return
		}
		r.determinate = true
	}
	r.progress = pct
	m.mu.Unlock()

	if err := m.jobs.UpdateProgress(ctx, id, pct); err != nil {
		m.logger.Debug("progress flush failed", zap.String("job_id", id.String()), zap.Error(err))
	}
}

func (m *JobManager) finishJob(ctx context.Context, job *models.Job, status models.JobStatus, result *models.JobResult, errMsg *string) error {
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	job.Result = result
	job.Error = errMsg
	if status == models.JobStatusCompleted {
		job.Progress = 100
	}
	return m.jobs.Update(ctx, job)
}

// classifyFailure maps a run error to the job's terminal status.
// Cooperative cancellation ends cancelled; hitting the wall-clock ceiling
// ends failed with a distinguishable timeout prefix.
func classifyFailure(runCtx context.Context, err error) (models.JobStatus, string) {
	cause := context.Cause(runCtx)
	switch {
	case errors.Is(cause, apperrors.ErrCancelled) || errors.Is(err, apperrors.ErrCancelled):
		return models.JobStatusCancelled, apperrors.ErrCancelled.Error()
	case errors.Is(cause, context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return models.JobStatusFailed, fmt.Sprintf("timeout: %s", apperrors.ErrJobTimeout.Error())
	default:
		return models.JobStatusFailed, err.Error()
	}
}

func (m *JobManager) removeSource(req SubmitRequest) {
	if !req.RemoveSource {
		return
	}
	if err := os.Remove(req.Path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove source file", zap.String("path", req.Path), zap.Error(err))
	}
}

// retentionSweep deletes terminal jobs older than the configured retention
// on a fixed interval.
func (m *JobManager) retentionSweep(ctx context.Context) {
	defer m.wg.Done()
	if m.cfg.JobRetention <= 0 {
		return
	}

	interval := m.cfg.JobRetention / 4
	if interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		for !m.stopping {
			m.cond.Wait()
		}
		m.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-m.cfg.JobRetention)
			removed, err := m.jobs.DeleteTerminalBefore(ctx, cutoff)
			if err != nil {
				m.logger.Warn("job retention sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				m.logger.Info("removed old jobs", zap.Int64("count", removed))
			}
		}
	}
}
