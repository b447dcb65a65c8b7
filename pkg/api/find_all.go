package api

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/livedb/pkg/domain"
	"github.com/adfharrison1/livedb/pkg/realm"
)

// findAll runs the query described by params on the realm goroutine. The
// results are invalidated before returning; fn must copy what it needs.
func (h *Handler) findAll(rlm *realm.Realm, table string, params url.Values, fn func(res *realm.Results) error) error {
	t, err := h.registry.Table(table)
	if err != nil {
		return err
	}
	q, err := rlm.Where(table)
	if err != nil {
		return err
	}
	if q, err = applyFilters(q, t, params); err != nil {
		return err
	}
	res, err := rlm.FindAll(q)
	if err != nil {
		return err
	}
	defer res.Invalidate()
	return fn(res)
}

// HandleFindAll handles GET requests to find records matching the query
// parameters, one page at a time
func (h *Handler) HandleFindAll(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	params := r.URL.Query()

	options, err := paginationOptions(params)
	if err != nil {
		WriteError(w, err)
		return
	}

	var page *domain.PaginationResult
	err = h.exec.Do(r.Context(), func(rlm *realm.Realm) error {
		return h.findAll(rlm, table, params, func(res *realm.Results) error {
			records, err := res.Records()
			if err != nil {
				return err
			}
			version, err := res.Version()
			if err != nil {
				return err
			}
			page, err = domain.Paginate(records, version, options)
			return err
		})
	})
	if err != nil {
		h.logger.Warn("find failed", "table", table, "error", err)
		WriteError(w, err)
		return
	}

	h.logger.Info("found records", "table", table, "total", page.Total, "returned", len(page.Records))
	writeJSON(w, http.StatusOK, page)
}
