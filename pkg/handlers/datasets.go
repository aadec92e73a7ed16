package handlers

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/adapters/dataset"
	"github.com/lumenlake/catalog-engine/pkg/config"
	"github.com/lumenlake/catalog-engine/pkg/services"
)

const maxUploadMemory = 32 << 20 // form parsing buffer; files larger than this spill to disk

// DatasetHandler accepts dataset uploads and exposes job lifecycle
// endpoints. The handler spools the upload to a temp file and hands
// ownership of that file to the job manager.
type DatasetHandler struct {
	cfg     config.IngestConfig
	manager *services.JobManager
	logger  *zap.Logger
}

// NewDatasetHandler creates a new DatasetHandler.
func NewDatasetHandler(cfg config.IngestConfig, manager *services.JobManager, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{cfg: cfg, manager: manager, logger: logger}
}

// RegisterRoutes registers the dataset handler's routes on the given mux.
func (h *DatasetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/data/upload", h.Upload)
	mux.HandleFunc("GET /api/v1/data/jobs/{id}", h.GetJob)
	mux.HandleFunc("DELETE /api/v1/data/jobs/{id}", h.CancelJob)
	mux.HandleFunc("GET /api/v1/data/formats", h.ListFormats)
}

// Upload handles POST /api/v1/data/upload multipart requests. Fields:
// "file" (required), "schema_name" (default "public"), "table_name"
// (default: the uploaded filename without extension), "format" (default:
// detected from the file extension). Responds 202 with the queued job.
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "malformed multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "missing file field")
		return
	}
	defer file.Close()

	schemaName := r.FormValue("schema_name")
	if schemaName == "" {
		schemaName = "public"
	}
	tableName := r.FormValue("table_name")
	if tableName == "" {
		base := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		tableName = sanitizeIdentifier(base)
	}
	if !validIdentifier(schemaName) || !validIdentifier(tableName) {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid schema or table name")
		return
	}

	path, err := h.spool(file, header.Filename)
	if err != nil {
		h.logger.Error("failed to spool upload", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to store upload")
		return
	}

	job, err := h.manager.Submit(r.Context(), services.SubmitRequest{
		Path:         path,
		Format:       r.FormValue("format"),
		SchemaName:   schemaName,
		TableName:    tableName,
		RemoveSource: true,
	})
	if err != nil {
		os.Remove(path)
		h.logger.Error("failed to submit ingestion job", zap.Error(err))
		_ = ServiceError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusAccepted, job)
}

// GetJob handles GET /api/v1/data/jobs/{id} requests.
func (h *DatasetHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid job id")
		return
	}

	job, err := h.manager.GetStatus(r.Context(), id)
	if err != nil {
		_ = ServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/v1/data/jobs/{id} requests. Cancellation of
// a running job is cooperative; the response reports the cancellation was
// accepted, and the caller observes the terminal state by polling.
func (h *DatasetHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid job id")
		return
	}

	if err := h.manager.Cancel(r.Context(), id); err != nil {
		_ = ServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// ListFormats handles GET /api/v1/data/formats requests.
func (h *DatasetHandler) ListFormats(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, dataset.RegisteredFormats())
}

func (h *DatasetHandler) spool(src io.Reader, filename string) (string, error) {
	dir := h.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	// The extension survives so format detection can use it.
	out, err := os.CreateTemp(dir, "upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validIdentifier(s string) bool {
	return len(s) <= 63 && identifierPattern.MatchString(s)
}

func sanitizeIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "t_" + out
	}
	return out
}
