package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/realm"
)

// HandleFindAllWithStream streams every matching record as a JSON array.
// NOTE: pagination parameters are ignored. Records are copied off the realm
// goroutine first, so the stream reflects one version.
func (h *Handler) HandleFindAllWithStream(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	params := r.URL.Query()
	for _, key := range []string{"limit", "offset", "after"} {
		if params.Has(key) {
			h.logger.Warn("pagination parameter ignored in streaming endpoint", "param", key)
		}
	}

	var records []domain.Record
	err := h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		return h.findAll(rlm, table, params, func(res *realm.Results) error {
			var err error
			records, err = res.Records()
			return err
		})
	})
	if err != nil {
		h.logger.Warn("stream failed", "table", table, "error", err)
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte("[\n"))

	flusher, canFlush := w.(http.Flusher)
	for i, rec := range records {
		if i > 0 {
			w.Write([]byte(",\n"))
		}
		data, err := json.Marshal(rec)
		if err != nil {
			h.logger.Error("failed to marshal record", "table", table, "id", rec.ID(), "error", err)
			return
		}
		if _, err := w.Write(data); err != nil {
			h.logger.Warn("failed to write to response", "error", err)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
	w.Write([]byte("\n]"))

	h.logger.Info("streamed records", "table", table, "count", len(records))
}
