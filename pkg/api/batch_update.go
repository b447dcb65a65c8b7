package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/realm"
)

// BatchUpdateRequest represents the request body for batch update operations
type BatchUpdateRequest struct {
	Operations []BatchUpdateOperation `json:"operations"`
}

// BatchUpdateOperation represents a single update operation in the request
type BatchUpdateOperation struct {
	ID      domain.RecordID `json:"id"`
	Updates domain.Record   `json:"updates"`
}

// BatchUpdateResponse represents the response for batch update operations
type BatchUpdateResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	UpdatedCount int             `json:"updated_count"`
	Table        string          `json:"table"`
	Records      []domain.Record `json:"records"`
}

// HandleBatchUpdate applies every update in one write. One failed operation
// fails the whole batch.
func (h *Handler) HandleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	var req BatchUpdateRequest
	if err := decodeRecord(r, &req); err != nil {
		h.logger.Warn("decoding body failed", "table", table, "error", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Operations) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "No operations provided")
		return
	}
	if len(req.Operations) > maxBatchSize {
		WriteJSONError(w, http.StatusBadRequest, "Maximum 1000 operations allowed per batch")
		return
	}

	resp := BatchUpdateResponse{Table: table}
	err := h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		err := rlm.ExecuteTransaction(func(rlm *realm.Realm) error {
			for i, op := range req.Operations {
				if op.ID == "" {
					return fmt.Errorf("%w: operation %d has no id", domain.ErrIllegalArgument, i)
				}
				if err := rlm.Update(table, op.ID, op.Updates); err != nil {
					return fmt.Errorf("operation %d: %w", i, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, op := range req.Operations {
			rec, _, err := rlm.Get(table, op.ID)
			if err != nil {
				return err
			}
			resp.Records = append(resp.Records, rec)
		}
		return nil
	})
	if err != nil {
		h.logger.Error("batch update failed", "table", table, "error", err)
		WriteError(w, err)
		return
	}

	resp.Success = true
	resp.Message = "Batch update completed successfully"
	resp.UpdatedCount = len(resp.Records)
	h.logger.Info("batch update successful", "table", table, "count", resp.UpdatedCount)
	writeJSON(w, http.StatusOK, resp)
}
