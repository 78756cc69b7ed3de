package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracing_PassesThrough(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/receipts/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "r-1", r.PathValue("id"))
		w.WriteHeader(http.StatusAccepted)
	})

	rr := httptest.NewRecorder()
	Tracing(mux).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/receipts/r-1", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestTracing_Unmatched(t *testing.T) {
	rr := httptest.NewRecorder()
	Tracing(http.NewServeMux()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
