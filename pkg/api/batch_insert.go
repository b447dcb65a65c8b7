package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/realm"
)

const maxBatchSize = 1000

// BatchInsertRequest represents the request body for batch insert operations
type BatchInsertRequest struct {
	Records []domain.Record `json:"records"`
}

// BatchInsertResponse represents the response for batch insert operations
type BatchInsertResponse struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	InsertedCount int               `json:"inserted_count"`
	Table         string            `json:"table"`
	IDs           []domain.RecordID `json:"ids"`
	Version       uint64            `json:"version"`
}

// HandleBatchInsert inserts every record in one write, or none of them
func (h *Handler) HandleBatchInsert(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	var req BatchInsertRequest
	if err := decodeRecord(r, &req); err != nil {
		h.logger.Warn("decoding body failed", "table", table, "error", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Records) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "No records provided")
		return
	}
	if len(req.Records) > maxBatchSize {
		WriteJSONError(w, http.StatusBadRequest, "Maximum 1000 records allowed per batch")
		return
	}

	resp := BatchInsertResponse{Table: table}
	err := h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		return rlm.ExecuteTransaction(func(rlm *realm.Realm) error {
			for _, rec := range req.Records {
				id, err := rlm.Insert(table, rec)
				if err != nil {
					return err
				}
				resp.IDs = append(resp.IDs, id)
			}
			return nil
		})
	})
	if err != nil {
		h.logger.Error("batch insert failed", "table", table, "error", err)
		WriteError(w, err)
		return
	}
	resp.Version = h.currentVersion(r)

	resp.Success = true
	resp.Message = "Batch insert completed successfully"
	resp.InsertedCount = len(resp.IDs)
	h.logger.Info("batch insert successful", "table", table, "count", resp.InsertedCount)
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) currentVersion(r *http.Request) uint64 {
	var version uint64
	h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		v, err := rlm.Version()
		version = v
		return err
	})
	return version
}
