package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
)

// HandleCreateIndex creates an index on a specific field in a table
func (h *Handler) HandleCreateIndex(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	table, field := vars["table"], vars["field"]

	if field == domain.IDField {
		WriteJSONError(w, http.StatusBadRequest, "cannot create index on _id field (records are looked up by id directly)")
		return
	}
	if _, err := h.registry.Field(table, field); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.indexes.CreateIndex(table, field); err != nil {
		WriteError(w, err)
		return
	}

	h.logger.Info("index created", "table", table, "field", field)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Index created successfully",
		"table":   table,
		"field":   field,
	})
}

// HandleDropIndex removes an index
func (h *Handler) HandleDropIndex(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	table, field := vars["table"], vars["field"]

	if err := h.indexes.DropIndex(table, field); err != nil {
		WriteError(w, err)
		return
	}

	h.logger.Info("index dropped", "table", table, "field", field)
	w.WriteHeader(http.StatusNoContent)
}
