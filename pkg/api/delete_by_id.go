package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/realm"
)

// HandleDeleteById handles DELETE requests to remove a specific record by ID
func (h *Handler) HandleDeleteById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	table, id := vars["table"], domain.RecordID(vars["id"])

	err := h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		if _, err := h.registry.Table(table); err != nil {
			return err
		}
		return rlm.ExecuteTransaction(func(rlm *realm.Realm) error {
			return rlm.Delete(table, id)
		})
	})
	if err != nil {
		h.logger.Error("delete failed", "table", table, "id", id, "error", err)
		WriteError(w, err)
		return
	}

	h.logger.Info("deleted record", "table", table, "id", id)
	w.WriteHeader(http.StatusNoContent)
}
