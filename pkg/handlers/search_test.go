package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestSearchHandler_InvalidParams(t *testing.T) {
	handler := NewSearchHandler(nil, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	cases := []string{
		"/api/v1/search",
		"/api/v1/search?q=",
		"/api/v1/search?q=orders&type=view",
		"/api/v1/search?q=orders&limit=ten",
	}
	for _, url := range cases {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s: expected status %d, got %d", url, http.StatusBadRequest, rec.Code)
		}
	}
}
