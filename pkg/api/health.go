package api

import (
	"net/http"

	"github.com/adfharrison1/livedb/pkg/realm"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version uint64 `json:"version"`
}

// HandleHealth reports whether the realm goroutine is serving requests
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var version uint64
	err := h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		v, err := rlm.Version()
		version = v
		return err
	})
	if err != nil {
		WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Message: "livedb is running",
		Version: version,
	})
}
