package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/realm"
)

// HandleUpdateById handles PATCH requests to partially update a record
func (h *Handler) HandleUpdateById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	table, id := vars["table"], domain.RecordID(vars["id"])

	var changes domain.Record
	if err := decodeRecord(r, &changes); err != nil {
		h.logger.Warn("decoding body failed", "table", table, "error", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.update(r, table, id, func(rlm *realm.Realm) (domain.Record, error) {
		return changes, nil
	})
	if err != nil {
		h.logger.Error("update failed", "table", table, "id", id, "error", err)
		WriteError(w, err)
		return
	}

	h.logger.Info("updated record", "table", table, "id", id)
	writeJSON(w, http.StatusOK, rec)
}

// update commits the changes built by changesFn and returns the updated record.
func (h *Handler) update(r *http.Request, table string, id domain.RecordID, changesFn func(*realm.Realm) (domain.Record, error)) (domain.Record, error) {
	var rec domain.Record
	err := h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		err := rlm.ExecuteTransaction(func(rlm *realm.Realm) error {
			changes, err := changesFn(rlm)
			if err != nil {
				return err
			}
			return rlm.Update(table, id, changes)
		})
		if err != nil {
			return err
		}
		rec, _, err = rlm.Get(table, id)
		return err
	})
	return rec, err
}
