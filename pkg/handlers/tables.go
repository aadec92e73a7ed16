package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/models"
	"github.com/lumenlake/catalog-engine/pkg/services"
)

// TableHandler exposes the catalog browse surface: table listing, profiles,
// deletion, and foreign key declarations.
type TableHandler struct {
	catalog *services.CatalogService
	builder *services.LineageBuilder
	logger  *zap.Logger
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(catalog *services.CatalogService, builder *services.LineageBuilder, logger *zap.Logger) *TableHandler {
	return &TableHandler{catalog: catalog, builder: builder, logger: logger}
}

// RegisterRoutes registers the table handler's routes on the given mux.
func (h *TableHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/data/tables", h.List)
	mux.HandleFunc("GET /api/v1/data/tables/{schema}/{table}", h.GetProfile)
	mux.HandleFunc("DELETE /api/v1/data/tables/{schema}/{table}", h.Delete)
	mux.HandleFunc("POST /api/v1/data/tables/{schema}/{table}/relationships", h.DeclareForeignKeys)
}

// List handles GET /api/v1/data/tables requests.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.catalog.ListTables(r.Context())
	if err != nil {
		h.logger.Error("failed to list tables", zap.Error(err))
		_ = ServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"count":  len(tables),
	})
}

// GetProfile handles GET /api/v1/data/tables/{schema}/{table} requests.
func (h *TableHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.catalog.GetProfile(r.Context(), r.PathValue("schema"), r.PathValue("table"))
	if err != nil {
		_ = ServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, profile)
}

// Delete handles DELETE /api/v1/data/tables/{schema}/{table} requests.
// Columns and relationships in both directions go with the table.
func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteTable(r.Context(), r.PathValue("schema"), r.PathValue("table")); err != nil {
		_ = ServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeclareForeignKeys handles POST
// /api/v1/data/tables/{schema}/{table}/relationships requests. The body is
// a list of foreign key declarations; re-declaring an existing key is a
// no-op.
func (h *TableHandler) DeclareForeignKeys(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ForeignKeys []models.ForeignKeyDecl `json:"foreign_keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if len(body.ForeignKeys) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "no foreign keys declared")
		return
	}

	schemaName, tableName := r.PathValue("schema"), r.PathValue("table")
	if err := h.builder.DeclareForeignKeys(r.Context(), schemaName, tableName, body.ForeignKeys); err != nil {
		_ = ServiceError(w, err)
		return
	}

	// New edges make cached lineage stale at both ends.
	h.catalog.InvalidateTable(r.Context(), schemaName, tableName)
	for _, decl := range body.ForeignKeys {
		targetSchema := decl.TargetSchema
		if targetSchema == "" {
			targetSchema = schemaName
		}
		h.catalog.InvalidateTable(r.Context(), targetSchema, decl.TargetTable)
	}
	_ = WriteJSON(w, http.StatusCreated, map[string]any{
		"declared": len(body.ForeignKeys),
	})
}
