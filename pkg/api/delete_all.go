package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/realm"
)

// DeleteAllResponse reports a bulk deletion.
type DeleteAllResponse struct {
	Table        string `json:"table"`
	Deleted      bool   `json:"deleted"`
	DeletedCount int    `json:"deleted_count"`
	Version      uint64 `json:"version"`
}

// HandleDeleteAll deletes every record matching the query parameters in one write
func (h *Handler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	resp := DeleteAllResponse{Table: table}
	err := h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		if err := rlm.BeginWrite(); err != nil {
			return err
		}
		err := h.findAll(rlm, table, r.URL.Query(), func(res *realm.Results) error {
			n, err := res.Size()
			if err != nil {
				return err
			}
			deleted, err := res.DeleteAllFromRealm()
			if err != nil {
				return err
			}
			resp.Deleted, resp.DeletedCount = deleted, n
			return nil
		})
		if err != nil {
			if cerr := rlm.CancelWrite(); cerr != nil {
				h.logger.Warn("cancelling write failed", "table", table, "error", cerr)
			}
			return err
		}
		resp.Version, err = rlm.CommitWrite()
		return err
	})
	if err != nil {
		h.logger.Error("delete all failed", "table", table, "error", err)
		WriteError(w, err)
		return
	}

	h.logger.Info("deleted records", "table", table, "count", resp.DeletedCount)
	writeJSON(w, http.StatusOK, resp)
}
