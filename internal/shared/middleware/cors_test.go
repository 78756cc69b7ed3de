package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOriginAllowed(t *testing.T) {
	frontends := []string{"app.syntax.local", " Localhost:5173 "}

	tests := map[string]bool{
		"https://app.syntax.local":        true,
		"https://APP.syntax.local:8443":   true,
		"http://localhost:5173":           true,
		"http://localhost:3000":           true,
		"http://127.0.0.1:5173":           false,
		"https://evil.syntax.local":       false,
		"https://app.syntax.local.evil.io": false,
		"null":                            false,
		"://broken":                       false,
	}
	for origin, want := range tests {
		assert.Equal(t, want, isOriginAllowed(origin, frontends), origin)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		method      string
		path        string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantCreds   bool
		wantReached bool
	}{
		{
			name:        "open API echoes wildcard",
			method:      http.MethodGet,
			path:        "/v1/banks",
			origin:      "https://anything.example",
			wantStatus:  http.StatusOK,
			wantOrigin:  "*",
			wantReached: true,
		},
		{
			name:        "listed frontend gets credentialed response",
			allowed:     []string{"app.syntax.local"},
			method:      http.MethodGet,
			path:        "/v1/accounts",
			origin:      "https://app.syntax.local",
			wantStatus:  http.StatusOK,
			wantOrigin:  "https://app.syntax.local",
			wantCreds:   true,
			wantReached: true,
		},
		{
			name:       "unknown origin is refused",
			allowed:    []string{"app.syntax.local"},
			method:     http.MethodPost,
			path:       "/v1/consents",
			origin:     "https://phish.example",
			wantStatus: http.StatusForbidden,
		},
		{
			name:        "request without origin passes untouched",
			allowed:     []string{"app.syntax.local"},
			method:      http.MethodGet,
			path:        "/v1/transactions",
			wantStatus:  http.StatusOK,
			wantReached: true,
		},
		{
			name:        "health probe is public",
			allowed:     []string{"app.syntax.local"},
			method:      http.MethodGet,
			path:        "/health/detailed",
			origin:      "https://monitoring.example",
			wantStatus:  http.StatusOK,
			wantOrigin:  "*",
			wantReached: true,
		},
		{
			name:       "preflight stops before the handler",
			allowed:    []string{"app.syntax.local"},
			method:     http.MethodOptions,
			path:       "/v1/tax-payments/42/pay",
			origin:     "https://app.syntax.local",
			wantStatus: http.StatusNoContent,
			wantOrigin: "https://app.syntax.local",
			wantCreds:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantReached, reached)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantCreds {
				assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
				assert.Contains(t, rr.Header().Values("Vary"), "Origin")
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestCORS_AdvertisesAuthorizationHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/consents", nil)
	CORS(nil)(http.NotFoundHandler()).ServeHTTP(rr, req)

	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
	assert.Equal(t, "3600", rr.Header().Get("Access-Control-Max-Age"))
}
