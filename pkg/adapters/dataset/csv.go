package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/lumenlake/catalog-engine/pkg/apperrors"
)

func init() {
	Register(Registration{
		Info: FormatInfo{
			Format:      "csv",
			DisplayName: "Comma-separated values",
			Extensions:  []string{".csv"},
		},
		Open: openCSV,
	})
}

// csvReader streams a headered CSV file. Empty cells are nulls. Rows whose
// field count differs from the header make the whole source unreadable.
type csvReader struct {
	file    *os.File
	counter *countingReader
	csv     *csv.Reader
	columns []string
	size    int64
	done    bool
}

func openCSV(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnreadable, err)
	}

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	counter := &countingReader{r: bufio.NewReader(f)}
	cr := csv.NewReader(counter)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: reading header: %v", apperrors.ErrSourceUnreadable, err)
	}
	if len(header) == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: empty header", apperrors.ErrSourceUnreadable)
	}

	return &csvReader{
		file:    f,
		counter: counter,
		csv:     cr,
		columns: header,
		size:    size,
	}, nil
}

func (r *csvReader) Columns() []string { return r.columns }

func (r *csvReader) ReadBatch(max int) ([]Row, error) {
	if r.done {
		return nil, io.EOF
	}

	rows := make([]Row, 0, max)
	for len(rows) < max {
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			r.done = true
			return rows, io.EOF
		}
		if err != nil {
			// Includes csv.ErrFieldCount for ragged rows.
			return nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnreadable, err)
		}

		row := make(Row, len(record))
		for i, cell := range record {
			row[i] = Value{Raw: cell, Null: cell == ""}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *csvReader) Size() int64 { return r.size }

func (r *csvReader) BytesRead() int64 { return r.counter.count.Load() }

func (r *csvReader) Close() error { return r.file.Close() }

var _ Reader = (*csvReader)(nil)

type countingReader struct {
	r     io.Reader
	count atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.count.Add(int64(n))
	return n, err
}
