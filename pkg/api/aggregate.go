package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/aggregate"
	"github.com/adfharrison1/livedb/pkg/realm"
)

// AggregateResponse carries one aggregate. Value is null when the operation
// yields no value.
type AggregateResponse struct {
	Table   string      `json:"table"`
	Field   string      `json:"field"`
	Op      string      `json:"op"`
	Value   interface{} `json:"value"`
	Version uint64      `json:"version"`
}

// HandleAggregate handles GET /tables/{table}/aggregate/{op}/{field} over the
// records matching the query parameters
func (h *Handler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	table, field := vars["table"], vars["field"]

	op, err := aggregate.ParseOp(vars["op"])
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := AggregateResponse{Table: table, Field: field, Op: op.String()}
	err = h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		return h.findAll(rlm, table, r.URL.Query(), func(res *realm.Results) error {
			result, err := res.Aggregate(op, field)
			if err != nil {
				return err
			}
			resp.Value = result.Value()
			resp.Version, err = res.Version()
			return err
		})
	})
	if err != nil {
		h.logger.Warn("aggregate failed", "table", table, "op", op, "field", field, "error", err)
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
