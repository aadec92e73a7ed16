package dataset

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlake/catalog-engine/pkg/apperrors"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func drain(t *testing.T, r Reader, batchSize int) []Row {
	t.Helper()
	var all []Row
	for {
		rows, err := r.ReadBatch(batchSize)
		all = append(all, rows...)
		if err == io.EOF {
			return all
		}
		require.NoError(t, err)
	}
}

func TestCSVReader_HeaderAndRows(t *testing.T) {
	path := writeTempCSV(t, "id,name,score\n1,alice,10.5\n2,bob,9.1\n")

	r, err := Open(path, "csv")
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"id", "name", "score"}, r.Columns())

	rows := drain(t, r, 10)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0][1].Raw)
	assert.Equal(t, "9.1", rows[1][2].Raw)
}

func TestCSVReader_EmptyCellIsNull(t *testing.T) {
	path := writeTempCSV(t, "id,name\n1,\n,bob\n")

	r, err := Open(path, "csv")
	require.NoError(t, err)
	defer r.Close()

	rows := drain(t, r, 10)
	require.Len(t, rows, 2)
	assert.True(t, rows[0][1].Null)
	assert.False(t, rows[0][0].Null)
	assert.True(t, rows[1][0].Null)
}

func TestCSVReader_BatchBoundaries(t *testing.T) {
	path := writeTempCSV(t, "n\n1\n2\n3\n4\n5\n")

	r, err := Open(path, "csv")
	require.NoError(t, err)
	defer r.Close()

	first, err := r.ReadBatch(2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := r.ReadBatch(2)
	require.NoError(t, err)
	assert.Len(t, second, 2)

	last, err := r.ReadBatch(2)
	assert.Equal(t, io.EOF, err)
	assert.Len(t, last, 1)

	// Subsequent reads stay at EOF.
	none, err := r.ReadBatch(2)
	assert.Equal(t, io.EOF, err)
	assert.Empty(t, none)
}

func TestCSVReader_RaggedRowFails(t *testing.T) {
	path := writeTempCSV(t, "a,b\n1,2\n3\n")

	r, err := Open(path, "csv")
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadBatch(10)
	assert.ErrorIs(t, err, apperrors.ErrSourceUnreadable)
}

func TestCSVReader_HeaderOnly(t *testing.T) {
	path := writeTempCSV(t, "a,b\n")

	r, err := Open(path, "csv")
	require.NoError(t, err)
	defer r.Close()

	rows := drain(t, r, 10)
	assert.Empty(t, rows)
}

func TestCSVReader_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.csv"), "csv")
	assert.ErrorIs(t, err, apperrors.ErrSourceUnreadable)
}

func TestCSVReader_Progress(t *testing.T) {
	path := writeTempCSV(t, "n\n1\n2\n3\n")

	r, err := Open(path, "csv")
	require.NoError(t, err)
	defer r.Close()

	assert.Greater(t, r.Size(), int64(0))
	drain(t, r, 10)
	assert.Greater(t, r.BytesRead(), int64(0))
	assert.LessOrEqual(t, r.BytesRead(), r.Size()+1)
}

func TestOpen_DetectsFormatFromExtension(t *testing.T) {
	path := writeTempCSV(t, "a\n1\n")

	r, err := Open(path, "")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []string{"a"}, r.Columns())
}

func TestOpen_UnsupportedFormat(t *testing.T) {
	_, err := Open("data.csv", "parquet")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)

	_, err = Open("data.xyz", "")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}

func TestRegisteredFormats(t *testing.T) {
	formats := RegisteredFormats()
	require.NotEmpty(t, formats)

	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.Format)
	}
	assert.Contains(t, names, "csv")
	assert.Contains(t, names, "arrow")
	assert.IsNonDecreasing(t, names)
}
