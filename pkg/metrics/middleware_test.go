package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPathLabel(t *testing.T) {
	tests := map[string]string{
		"/":                         "/",
		"/health":                   "/health",
		"/tables/items":             "/tables/items",
		"/tables/items/records/abc": "/tables/items",
	}
	for path, want := range tests {
		assert.Equal(t, want, pathLabel(path), path)
	}
}

func TestMiddleware(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.(http.Flusher).Flush()
	}))

	counter := RequestTotal.WithLabelValues("GET", "/tables/pots", "418")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/tables/pots/records", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.True(t, w.Flushed)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "ok", Status(nil))
	assert.Equal(t, "error", Status(errors.New("boom")))
}
