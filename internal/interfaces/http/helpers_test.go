package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"syntax/internal/domain/bank"
	"syntax/internal/shared/auth"
	"syntax/internal/shared/middleware"
)

var testCreds = NewCredentials(bank.VBank)

func newRequest(method, target, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	return httptest.NewRequest(method, target, rd)
}

// authed attaches the session middleware.Auth would have stored.
func authed(r *http.Request) *http.Request {
	return r.WithContext(middleware.WithSession(r.Context(), &auth.Session{
		ClientID:     "team1",
		ClientSecret: "s3cr3t",
		BankToken:    "session-token",
	}))
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func errorKind(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorResponse](t, rr).Error.Kind
}
