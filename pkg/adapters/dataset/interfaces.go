package dataset

// Value is a single cell read from a dataset source. Raw is the textual
// form of the cell; typed interpretation happens downstream during
// profiling. Null values carry an empty Raw.
type Value struct {
	Raw  string
	Null bool
}

// Row is one record of a dataset batch, aligned with Reader.Columns.
type Row []Value

// Reader streams a dataset source in batches. Implementations must never
// buffer the whole source in memory.
type Reader interface {
	// Columns returns the ordered column names of the source.
	Columns() []string

	// ReadBatch returns up to max rows. It returns io.EOF (possibly with
	// a final partial batch) once the source is exhausted. Every returned
	// row has exactly len(Columns()) values.
	ReadBatch(max int) ([]Row, error)

	// Size returns the total size of the source in bytes, or -1 when the
	// source cannot be stat'ed.
	Size() int64

	// BytesRead returns how many source bytes have been consumed so far.
	BytesRead() int64

	Close() error
}
