package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/realm"
)

// InsertResponse is returned for a created record.
type InsertResponse struct {
	ID      domain.RecordID `json:"id"`
	Version uint64          `json:"version"`
}

// decodeRecord reads a JSON object keeping numbers exact.
func decodeRecord(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	return decoder.Decode(v)
}

// HandleInsert handles POST requests to insert a record into a table
func (h *Handler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	var rec domain.Record
	if err := decodeRecord(r, &rec); err != nil {
		h.logger.Warn("decoding body failed", "table", table, "error", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var resp InsertResponse
	err := h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		if err := rlm.BeginWrite(); err != nil {
			return err
		}
		id, err := rlm.Insert(table, rec)
		if err != nil {
			if cerr := rlm.CancelWrite(); cerr != nil {
				h.logger.Warn("cancelling write failed", "table", table, "error", cerr)
			}
			return err
		}
		version, err := rlm.CommitWrite()
		resp = InsertResponse{ID: id, Version: version}
		return err
	})
	if err != nil {
		h.logger.Error("insert failed", "table", table, "error", err)
		WriteError(w, err)
		return
	}

	h.logger.Info("insert successful", "table", table, "id", resp.ID, "version", resp.Version)
	writeJSON(w, http.StatusCreated, resp)
}
