package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/adapters/dataset"
	"github.com/lumenlake/catalog-engine/pkg/apperrors"
	"github.com/lumenlake/catalog-engine/pkg/cache"
	"github.com/lumenlake/catalog-engine/pkg/config"
	"github.com/lumenlake/catalog-engine/pkg/models"
)

type managerFixture struct {
	manager *JobManager
	catalog *memCatalog
	jobs    *memJobs
	rels    *memRelationships
	readers map[string]func() (dataset.Reader, error)
}

func newManagerFixture(t *testing.T, cfg config.IngestConfig) *managerFixture {
	t.Helper()

	catalog := newMemCatalog()
	jobs := newMemJobs()
	rels := &memRelationships{}
	logger := zap.NewNop()

	f := &managerFixture{
		catalog: catalog,
		jobs:    jobs,
		rels:    rels,
		readers: make(map[string]func() (dataset.Reader, error)),
	}

	builder := NewLineageBuilder(catalog, rels, logger)
	profiler := NewProfiler(cfg, logger)
	loader := cache.NewLoader(cache.NewMemory())

	f.manager = NewJobManager(cfg, jobs, catalog, profiler, builder, loader, logger)
	f.manager.openSource = func(path, _ string) (dataset.Reader, error) {
		open, ok := f.readers[path]
		if !ok {
			return nil, apperrors.ErrSourceUnreadable
		}
		return open()
	}
	return f
}

func managerTestConfig() config.IngestConfig {
	return config.IngestConfig{
		MaxWorkers:         2,
		BatchSize:          2,
		SampleSize:         100,
		PromotionThreshold: 0.95,
		DistinctCeiling:    1000,
		JobTimeout:         5 * time.Second,
	}
}

func waitTerminal(t *testing.T, m *JobManager, id uuid.UUID) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.GetStatus(context.Background(), id)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return nil
}

func waitStatus(t *testing.T, m *JobManager, id uuid.UUID, want models.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.GetStatus(context.Background(), id)
		require.NoError(t, err)
		if job.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached status %s", want)
}

func TestJobManager_CompletesAndPublishes(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	f.readers["orders.csv"] = func() (dataset.Reader, error) {
		return &sliceReader{
			columns: []string{"id", "amount"},
			rows: []dataset.Row{
				cells("1", "10.5"),
				cells("2", "20.5"),
				cells("3", "30.5"),
			},
			size: 60,
		}, nil
	}

	f.manager.Start(context.Background())
	defer f.manager.Stop()

	job, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "orders.csv", SchemaName: "public", TableName: "orders",
	})
	require.NoError(t, err)

	final := waitTerminal(t, f.manager, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, float64(100), final.Progress)
	require.NotNil(t, final.Result)
	assert.Equal(t, int64(3), final.Result.RowsProfiled)
	assert.Equal(t, 2, final.Result.ColumnsDiscovered)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)

	table, err := f.catalog.GetByName(context.Background(), "public", "orders")
	require.NoError(t, err)
	require.NotNil(t, table.RowCount)
	assert.Equal(t, int64(3), *table.RowCount)
	require.NotNil(t, table.LastAnalyzedAt)

	columns, err := f.catalog.ListByTable(context.Background(), table.ID)
	require.NoError(t, err)
	assert.Len(t, columns, 2)
}

func TestJobManager_StatusSequenceIsMonotonicPrefix(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	gate := make(chan struct{})
	f.readers["t.csv"] = func() (dataset.Reader, error) {
		var rows []dataset.Row
		for i := 0; i < 8; i++ {
			rows = append(rows, cells("x"))
		}
		return &sliceReader{columns: []string{"v"}, rows: rows, batchGate: gate}, nil
	}

	f.manager.Start(context.Background())
	defer f.manager.Stop()

	job, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "t.csv", SchemaName: "public", TableName: "t",
	})
	require.NoError(t, err)

	rank := map[models.JobStatus]int{
		models.JobStatusPending:   0,
		models.JobStatusRunning:   1,
		models.JobStatusCompleted: 2,
		models.JobStatusFailed:    2,
		models.JobStatusCancelled: 2,
	}

	done := make(chan []models.JobStatus)
	go func() {
		var observed []models.JobStatus
		for {
			j, err := f.manager.GetStatus(context.Background(), job.ID)
			if err == nil {
				observed = append(observed, j.Status)
				if j.Status.IsTerminal() {
					break
				}
			}
			time.Sleep(time.Millisecond)
		}
		done <- observed
	}()

	// Feed batches so the poller sees the job in flight.
	go func() {
		for i := 0; i < 3; i++ {
			gate <- struct{}{}
			time.Sleep(2 * time.Millisecond)
		}
		close(gate)
	}()

	observed := <-done
	require.NotEmpty(t, observed)
	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, rank[observed[i]], rank[observed[i-1]],
			"status regressed from %s to %s", observed[i-1], observed[i])
	}
	assert.True(t, observed[len(observed)-1].IsTerminal())
}

func TestJobManager_FailureLeavesNothingCommitted(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	f.readers["bad.csv"] = func() (dataset.Reader, error) {
		return nil, apperrors.ErrSourceUnreadable
	}

	f.manager.Start(context.Background())
	defer f.manager.Stop()

	job, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "bad.csv", SchemaName: "public", TableName: "bad",
	})
	require.NoError(t, err)

	final := waitTerminal(t, f.manager, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.NotEmpty(t, *final.Error)

	_, err = f.catalog.GetByName(context.Background(), "public", "bad")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestJobManager_CancelPendingJob(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	// No workers started: the job stays queued.
	job, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "never.csv", SchemaName: "public", TableName: "never",
	})
	require.NoError(t, err)

	require.NoError(t, f.manager.Cancel(context.Background(), job.ID))

	got, err := f.manager.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)

	// A second cancel hits the terminal guard.
	assert.ErrorIs(t, f.manager.Cancel(context.Background(), job.ID), apperrors.ErrAlreadyTerminal)
}

func TestJobManager_CancelRunningJob(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	gate := make(chan struct{})
	var rows []dataset.Row
	for i := 0; i < 10; i++ {
		rows = append(rows, cells("x"))
	}
	f.readers["slow.csv"] = func() (dataset.Reader, error) {
		return &sliceReader{columns: []string{"v"}, rows: rows, batchGate: gate}, nil
	}

	f.manager.Start(context.Background())
	defer f.manager.Stop()

	job, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "slow.csv", SchemaName: "public", TableName: "slow",
	})
	require.NoError(t, err)

	waitStatus(t, f.manager, job.ID, models.JobStatusRunning)
	gate <- struct{}{} // let one batch through
	require.NoError(t, f.manager.Cancel(context.Background(), job.ID))
	close(gate) // unblock the reader so the between-batch check runs

	final := waitTerminal(t, f.manager, job.ID)
	assert.Equal(t, models.JobStatusCancelled, final.Status)

	// A cancelled job never publishes partial metadata.
	_, err = f.catalog.GetByName(context.Background(), "public", "slow")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestJobManager_SameKeyJobsRunSerially(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	gate := make(chan struct{})
	first := true
	f.readers["k.csv"] = func() (dataset.Reader, error) {
		r := &sliceReader{columns: []string{"v"}, rows: []dataset.Row{cells("1"), cells("2")}}
		if first {
			first = false
			r.batchGate = gate
		}
		return r, nil
	}

	f.manager.Start(context.Background())
	defer f.manager.Stop()

	job1, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "k.csv", SchemaName: "public", TableName: "k",
	})
	require.NoError(t, err)
	job2, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "k.csv", SchemaName: "public", TableName: "k",
	})
	require.NoError(t, err)

	waitStatus(t, f.manager, job1.ID, models.JobStatusRunning)

	// The pool has a free worker, yet the second job for the same key must
	// wait for the first.
	time.Sleep(30 * time.Millisecond)
	got2, err := f.manager.GetStatus(context.Background(), job2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got2.Status)

	close(gate)
	final1 := waitTerminal(t, f.manager, job1.ID)
	final2 := waitTerminal(t, f.manager, job2.ID)
	assert.Equal(t, models.JobStatusCompleted, final1.Status)
	assert.Equal(t, models.JobStatusCompleted, final2.Status)
}

func TestJobManager_DifferentKeysRunConcurrently(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	gateA := make(chan struct{})
	gateB := make(chan struct{})
	f.readers["a.csv"] = func() (dataset.Reader, error) {
		return &sliceReader{columns: []string{"v"}, rows: []dataset.Row{cells("1")}, batchGate: gateA}, nil
	}
	f.readers["b.csv"] = func() (dataset.Reader, error) {
		return &sliceReader{columns: []string{"v"}, rows: []dataset.Row{cells("1")}, batchGate: gateB}, nil
	}

	f.manager.Start(context.Background())
	defer f.manager.Stop()

	jobA, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "a.csv", SchemaName: "public", TableName: "a",
	})
	require.NoError(t, err)
	jobB, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "b.csv", SchemaName: "public", TableName: "b",
	})
	require.NoError(t, err)

	// Both jobs reach running while both gates are still held.
	waitStatus(t, f.manager, jobA.ID, models.JobStatusRunning)
	waitStatus(t, f.manager, jobB.ID, models.JobStatusRunning)

	close(gateA)
	close(gateB)
	assert.Equal(t, models.JobStatusCompleted, waitTerminal(t, f.manager, jobA.ID).Status)
	assert.Equal(t, models.JobStatusCompleted, waitTerminal(t, f.manager, jobB.ID).Status)
}

func TestJobManager_TimeoutFailsWithDistinguishableError(t *testing.T) {
	cfg := managerTestConfig()
	cfg.JobTimeout = 30 * time.Millisecond

	f := newManagerFixture(t, cfg)
	gate := make(chan struct{})
	f.readers["slow.csv"] = func() (dataset.Reader, error) {
		return &sliceReader{
			columns:   []string{"v"},
			rows:      []dataset.Row{cells("1"), cells("2"), cells("3"), cells("4")},
			batchGate: gate,
		}, nil
	}

	f.manager.Start(context.Background())
	defer f.manager.Stop()

	job, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "slow.csv", SchemaName: "public", TableName: "slow",
	})
	require.NoError(t, err)

	// Hold the job past its ceiling, then let the between-batch check run.
	time.Sleep(60 * time.Millisecond)
	close(gate)

	final := waitTerminal(t, f.manager, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "timeout")
}

func TestJobManager_LineageRebuildFailureDoesNotFailJob(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	f.rels.replaceErr = errors.New("lineage store down")
	f.readers["t.csv"] = func() (dataset.Reader, error) {
		return &sliceReader{columns: []string{"v"}, rows: []dataset.Row{cells("1")}}, nil
	}

	f.manager.Start(context.Background())
	defer f.manager.Stop()

	job, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "t.csv", SchemaName: "public", TableName: "t",
	})
	require.NoError(t, err)

	final := waitTerminal(t, f.manager, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)

	// The profile still published.
	_, err = f.catalog.GetByName(context.Background(), "public", "t")
	assert.NoError(t, err)
}

func TestJobManager_ProgressIndeterminateNeverDemotes(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	ctx := context.Background()
	id := uuid.New()

	handle := &runningJob{}
	f.manager.running[id] = handle

	// Before any determinate report the marker is accepted.
	f.manager.reportProgress(ctx, id, models.ProgressIndeterminate)
	assert.Equal(t, models.ProgressIndeterminate, handle.progress)

	// A determinate value replaces it, including an exact zero.
	f.manager.reportProgress(ctx, id, 0)
	assert.Equal(t, float64(0), handle.progress)

	// From then on the marker never overwrites a determinate value.
	f.manager.reportProgress(ctx, id, models.ProgressIndeterminate)
	assert.Equal(t, float64(0), handle.progress)

	f.manager.reportProgress(ctx, id, 60)
	f.manager.reportProgress(ctx, id, models.ProgressIndeterminate)
	assert.Equal(t, float64(60), handle.progress)

	// Determinate progress itself never decreases.
	f.manager.reportProgress(ctx, id, 30)
	assert.Equal(t, float64(60), handle.progress)
}

func TestJobManager_GetStatusUnknownJob(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	_, err := f.manager.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestJobManager_DerivedForeignKeyEdge(t *testing.T) {
	f := newManagerFixture(t, managerTestConfig())
	customers := f.catalog.addTable("public", "customer")

	f.readers["orders.csv"] = func() (dataset.Reader, error) {
		return &sliceReader{
			columns: []string{"id", "customer_id"},
			rows:    []dataset.Row{cells("1", "10"), cells("2", "11")},
		}, nil
	}

	f.manager.Start(context.Background())
	defer f.manager.Stop()

	job, err := f.manager.Submit(context.Background(), SubmitRequest{
		Path: "orders.csv", SchemaName: "public", TableName: "orders",
	})
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, waitTerminal(t, f.manager, job.ID).Status)

	orders, err := f.catalog.GetByName(context.Background(), "public", "orders")
	require.NoError(t, err)

	edges, err := f.rels.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, orders.ID, edges[0].SourceTableID)
	assert.Equal(t, customers.ID, edges[0].TargetTableID)
	assert.Equal(t, models.RelationshipDerived, edges[0].RelationshipType)

	columns, err := f.catalog.ListByTable(context.Background(), orders.ID)
	require.NoError(t, err)
	var fkFlagged bool
	for _, c := range columns {
		if c.ColumnName == "customer_id" {
			fkFlagged = c.IsForeignKey
		}
	}
	assert.True(t, fkFlagged)
}
