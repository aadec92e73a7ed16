package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/services"
)

// AnalyticsHandler serves catalog-wide statistics.
type AnalyticsHandler struct {
	catalog *services.CatalogService
	logger  *zap.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(catalog *services.CatalogService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers the analytics handler's routes on the given mux.
func (h *AnalyticsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Get)
}

// Get handles GET /api/v1/analytics requests.
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.catalog.Analytics(r.Context())
	if err != nil {
		h.logger.Error("failed to compute analytics", zap.Error(err))
		_ = ServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, analytics)
}
