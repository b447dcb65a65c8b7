package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/realm"
)

// HandleReplaceById handles PUT requests to replace every field of a record.
// Fields missing from the body are set to null.
func (h *Handler) HandleReplaceById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	table, id := vars["table"], domain.RecordID(vars["id"])

	var body domain.Record
	if err := decodeRecord(r, &body); err != nil {
		h.logger.Warn("decoding body failed", "table", table, "error", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.update(r, table, id, func(rlm *realm.Realm) (domain.Record, error) {
		t, err := rlm.Registry().Table(table)
		if err != nil {
			return nil, err
		}
		return t.NormalizeRecord(body)
	})
	if err != nil {
		h.logger.Error("replace failed", "table", table, "id", id, "error", err)
		WriteError(w, err)
		return
	}

	h.logger.Info("replaced record", "table", table, "id", id)
	writeJSON(w, http.StatusOK, rec)
}
