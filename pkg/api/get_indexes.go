package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// HandleGetIndexes handles GET requests to retrieve all indexes for a table
func (h *Handler) HandleGetIndexes(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	if _, err := h.registry.Table(table); err != nil {
		WriteError(w, err)
		return
	}

	indexes := h.indexes.GetIndexes(table)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"table":       table,
		"indexes":     indexes,
		"index_count": len(indexes),
	})
}
