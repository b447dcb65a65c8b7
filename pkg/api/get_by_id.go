package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/realm"
)

// HandleGetById handles GET requests to retrieve a specific record by ID
func (h *Handler) HandleGetById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	table, id := vars["table"], domain.RecordID(vars["id"])

	var rec domain.Record
	err := h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		found, ok, err := rlm.Get(table, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: record %s in table %s", domain.ErrNotFound, id, table)
		}
		rec = found
		return nil
	})
	if err != nil {
		h.logger.Warn("get by id failed", "table", table, "id", id, "error", err)
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
