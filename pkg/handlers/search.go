package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/services"
)

// SearchHandler serves catalog search.
type SearchHandler struct {
	catalog *services.CatalogService
	logger  *zap.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(catalog *services.CatalogService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers the search handler's routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
}

// Search handles GET /api/v1/search requests. Query params: q (required),
// type (table|column), schema, limit.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := params.Get("q")
	if query == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "missing query parameter q")
		return
	}

	resultType := params.Get("type")
	if resultType != "" && resultType != "table" && resultType != "column" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "type must be table or column")
		return
	}

	limit := 0
	if raw := params.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		limit = parsed
	}

	results, err := h.catalog.Search(r.Context(), query, resultType, params.Get("schema"), limit)
	if err != nil {
		h.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		_ = ServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}
