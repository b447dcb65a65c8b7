package api

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API routes with the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HandleHealth).Methods("GET")

	// Record operations
	router.HandleFunc("/tables/{table}/records", h.HandleInsert).Methods("POST")
	router.HandleFunc("/tables/{table}/records", h.HandleFindAll).Methods("GET")
	router.HandleFunc("/tables/{table}/records", h.HandleDeleteAll).Methods("DELETE")
	router.HandleFunc("/tables/{table}/records/stream", h.HandleFindAllWithStream).Methods("GET")

	// Batch operations
	router.HandleFunc("/tables/{table}/batch", h.HandleBatchInsert).Methods("POST")
	router.HandleFunc("/tables/{table}/batch", h.HandleBatchUpdate).Methods("PATCH")

	// Record operations (by ID)
	router.HandleFunc("/tables/{table}/records/{id}", h.HandleGetById).Methods("GET")
	router.HandleFunc("/tables/{table}/records/{id}", h.HandleUpdateById).Methods("PATCH") // Partial update
	router.HandleFunc("/tables/{table}/records/{id}", h.HandleReplaceById).Methods("PUT")  // Complete replacement
	router.HandleFunc("/tables/{table}/records/{id}", h.HandleDeleteById).Methods("DELETE")

	// Aggregates over the records matching the query parameters
	router.HandleFunc("/tables/{table}/aggregate/{op}/{field}", h.HandleAggregate).Methods("GET")

	// Index operations
	router.HandleFunc("/tables/{table}/indexes", h.HandleGetIndexes).Methods("GET")
	router.HandleFunc("/tables/{table}/indexes/{field}", h.HandleCreateIndex).Methods("POST")
	router.HandleFunc("/tables/{table}/indexes/{field}", h.HandleDropIndex).Methods("DELETE")
}
