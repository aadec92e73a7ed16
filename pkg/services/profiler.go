package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/adapters/dataset"
	"github.com/lumenlake/catalog-engine/pkg/apperrors"
	"github.com/lumenlake/catalog-engine/pkg/config"
	"github.com/lumenlake/catalog-engine/pkg/models"
)

// distinctStride is the sampling interval used once a column's distinct
// count crosses the exact-tracking ceiling. One in every stride non-null
// values probes a secondary set; each previously unseen probe stands in for
// stride distinct values.
const distinctStride = 16

// ProfileResult is the outcome of a full pass over a dataset source.
type ProfileResult struct {
	RowCount int64
	Columns  []models.ColumnMetadata
}

// Profiler computes per-column statistics in a single streaming pass.
// Memory use is bounded by the distinct ceiling and the inference sample
// size, never by the row count.
type Profiler struct {
	batchSize          int
	sampleSize         int
	distinctCeiling    int
	promotionThreshold float64
	logger             *zap.Logger
}

// NewProfiler creates a Profiler with the configured bounds.
func NewProfiler(cfg config.IngestConfig, logger *zap.Logger) *Profiler {
	return &Profiler{
		batchSize:          cfg.BatchSize,
		sampleSize:         cfg.SampleSize,
		distinctCeiling:    cfg.DistinctCeiling,
		promotionThreshold: cfg.PromotionThreshold,
		logger:             logger,
	}
}

// Profile drains the reader batch by batch. The context is checked between
// batches only, so a cancelled run stops within one batch of work. The
// progress callback, when non-nil, receives percent complete in [0,100] or
// models.ProgressIndeterminate when the source size is unknown.
func (p *Profiler) Profile(ctx context.Context, reader dataset.Reader, progress func(float64)) (*ProfileResult, error) {
	columns := reader.Columns()
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: source has no columns", apperrors.ErrSourceUnreadable)
	}

	accs := make([]*columnAccumulator, len(columns))
	for i, name := range columns {
		accs[i] = newColumnAccumulator(name, p.sampleSize, p.distinctCeiling)
	}

	var rowCount int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, readErr := reader.ReadBatch(p.batchSize)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, readErr
		}

		for _, row := range rows {
			if len(row) != len(columns) {
				return nil, fmt.Errorf("%w: row has %d values, want %d",
					apperrors.ErrSourceUnreadable, len(row), len(columns))
			}
			for i, v := range row {
				accs[i].observe(v)
			}
			rowCount++
		}

		if progress != nil {
			progress(readProgress(reader))
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
	}

	result := &ProfileResult{
		RowCount: rowCount,
		Columns:  make([]models.ColumnMetadata, len(accs)),
	}
	for i, acc := range accs {
		result.Columns[i] = acc.finalize(p.promotionThreshold)
	}

	p.logger.Debug("profiled dataset source",
		zap.Int64("rows", rowCount),
		zap.Int("columns", len(columns)))
	return result, nil
}

func readProgress(reader dataset.Reader) float64 {
	size := reader.Size()
	if size <= 0 {
		return models.ProgressIndeterminate
	}
	pct := float64(reader.BytesRead()) / float64(size) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// columnAccumulator carries the streaming state for one column. Min and max
// are tracked under every candidate ordering simultaneously because the
// column's final type is unknown until the pass ends.
type columnAccumulator struct {
	name string

	nullCount    int64
	nonNullCount int64

	// distinct estimation
	ceiling int
	exact   map[string]struct{}
	sampled map[string]struct{}
	approx  bool

	// inference sample
	sampleSize int
	samples    []string

	// numeric ordering
	hasNum         bool
	numMin, numMax float64
	numMinRaw      string
	numMaxRaw      string
	numSum         float64
	numCount       int64

	// lexical ordering
	hasLex         bool
	lexMin, lexMax string

	// datetime ordering
	hasTime          bool
	timeMin, timeMax time.Time
	timeMinRaw       string
	timeMaxRaw       string

	// string length ordering
	lenMin, lenMax int
}

func newColumnAccumulator(name string, sampleSize, ceiling int) *columnAccumulator {
	return &columnAccumulator{
		name:       name,
		ceiling:    ceiling,
		exact:      make(map[string]struct{}),
		sampleSize: sampleSize,
	}
}

func (a *columnAccumulator) observe(v dataset.Value) {
	if v.Null {
		a.nullCount++
		return
	}
	a.nonNullCount++
	raw := v.Raw

	a.observeDistinct(raw)

	if len(a.samples) < a.sampleSize {
		a.samples = append(a.samples, raw)
	}

	if f, ok := parseFloatValue(raw); ok {
		if !a.hasNum || f < a.numMin {
			a.numMin, a.numMinRaw = f, raw
		}
		if !a.hasNum || f > a.numMax {
			a.numMax, a.numMaxRaw = f, raw
		}
		a.hasNum = true
		a.numSum += f
		a.numCount++
	}

	if !a.hasLex || raw < a.lexMin {
		a.lexMin = raw
	}
	if !a.hasLex || raw > a.lexMax {
		a.lexMax = raw
	}
	a.hasLex = true

	if t, ok := parseDatetime(raw); ok {
		if !a.hasTime || t.Before(a.timeMin) {
			a.timeMin, a.timeMinRaw = t, raw
		}
		if !a.hasTime || t.After(a.timeMax) {
			a.timeMax, a.timeMaxRaw = t, raw
		}
		a.hasTime = true
	}

	n := len(raw)
	if a.nonNullCount == 1 || n < a.lenMin {
		a.lenMin = n
	}
	if n > a.lenMax {
		a.lenMax = n
	}
}

// observeDistinct tracks exact distinct values up to the ceiling, then
// switches to deterministic stride sampling. The switchover point and every
// estimate are a pure function of the value sequence.
func (a *columnAccumulator) observeDistinct(raw string) {
	if !a.approx {
		a.exact[raw] = struct{}{}
		if len(a.exact) >= a.ceiling {
			a.approx = true
			a.sampled = make(map[string]struct{})
		}
		return
	}
	if a.nonNullCount%distinctStride == 0 {
		if _, seen := a.exact[raw]; !seen {
			a.sampled[raw] = struct{}{}
		}
	}
}

func (a *columnAccumulator) finalize(promotionThreshold float64) models.ColumnMetadata {
	colType := inferColumnType(a.samples, promotionThreshold)

	col := models.ColumnMetadata{
		ColumnName:       a.name,
		ColumnType:       colType,
		IsNullable:       a.nullCount > 0,
		NullCount:        a.nullCount,
		UniqueCount:      int64(len(a.exact)),
		UniqueIsEstimate: a.approx,
	}
	if a.approx {
		col.UniqueCount = int64(len(a.exact)) + int64(len(a.sampled))*distinctStride
	}

	switch {
	case colType.IsNumeric():
		if a.hasNum {
			col.MinValue = &a.numMinRaw
			col.MaxValue = &a.numMaxRaw
		}
		if a.numCount > 0 {
			avg := a.numSum / float64(a.numCount)
			col.AvgValue = &avg
		}
	case colType == models.ColumnTypeDatetime:
		if a.hasTime {
			col.MinValue = &a.timeMinRaw
			col.MaxValue = &a.timeMaxRaw
		}
	case colType == models.ColumnTypeString:
		// String columns report min and max value length.
		if a.nonNullCount > 0 {
			minLen := strconv.Itoa(a.lenMin)
			maxLen := strconv.Itoa(a.lenMax)
			col.MinValue = &minLen
			col.MaxValue = &maxLen
		}
	}
	return col
}
