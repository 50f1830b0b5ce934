package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ledgerai/ledgerai/internal/models"
	"github.com/ledgerai/ledgerai/internal/service"
)

// SchemaHandler exposes the ledger schema the generator is prompted with
type SchemaHandler struct {
	store service.Store
}

func NewSchemaHandler(store service.Store) *SchemaHandler {
	return &SchemaHandler{store: store}
}

func (h *SchemaHandler) describe(ctx context.Context) (models.SchemaDescription, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return h.store.DescribeSchema(ctx)
}

// Schema handles GET /api/v1/schema
func (h *SchemaHandler) Schema(w http.ResponseWriter, r *http.Request) {
	desc, err := h.describe(r.Context())
	if err != nil {
		models.WriteErrorDetail(w, http.StatusServiceUnavailable, "schema unavailable", err.Error())
		return
	}
	models.WriteJSON(w, http.StatusOK, models.SchemaResponse{
		Dialect: h.store.Dialect().Name,
		Tables:  desc.Tables,
	})
}

// GetTable handles GET /api/v1/schema/{table}
func (h *SchemaHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")

	desc, err := h.describe(r.Context())
	if err != nil {
		models.WriteErrorDetail(w, http.StatusServiceUnavailable, "schema unavailable", err.Error())
		return
	}
	table, ok := desc.Table(name)
	if !ok {
		models.WriteError(w, http.StatusNotFound, "table not found: "+name)
		return
	}
	models.WriteJSON(w, http.StatusOK, table)
}
