package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/services"
)

const defaultLineageDepth = 3

// LineageHandler serves lineage neighborhood queries.
type LineageHandler struct {
	catalog *services.CatalogService
	logger  *zap.Logger
}

// NewLineageHandler creates a new LineageHandler.
func NewLineageHandler(catalog *services.CatalogService, logger *zap.Logger) *LineageHandler {
	return &LineageHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers the lineage handler's routes on the given mux.
func (h *LineageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/data/lineage/{schema}/{table}", h.GetLineage)
}

// GetLineage handles GET /api/v1/data/lineage/{schema}/{table} requests.
// Query params: direction (upstream|downstream|both, default both) and
// depth (default 3; 0 returns only the root).
func (h *LineageHandler) GetLineage(w http.ResponseWriter, r *http.Request) {
	direction := services.Direction(r.URL.Query().Get("direction"))
	if direction == "" {
		direction = services.DirectionBoth
	}
	if !direction.IsValid() {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request",
			"direction must be upstream, downstream, or both")
		return
	}

	depth := defaultLineageDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request",
				"depth must be a non-negative integer")
			return
		}
		depth = parsed
	}

	result, err := h.catalog.GetLineage(r.Context(),
		r.PathValue("schema"), r.PathValue("table"), direction, depth)
	if err != nil {
		_ = ServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, result)
}
