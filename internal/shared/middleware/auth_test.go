package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syntax/internal/infrastructure/crypto"
	"syntax/internal/shared/auth"
)

func newTestCodec(t *testing.T, secret string) *auth.SessionCodec {
	t.Helper()
	enc, err := crypto.NewEncryptor("01234567890123456789012345678901")
	require.NoError(t, err)
	return auth.NewSessionCodec(secret, enc, 30*time.Minute)
}

func TestAuth(t *testing.T) {
	codec := newTestCodec(t, "test-secret")
	validToken, err := codec.Issue("team286", "s3cret", "bank-token")
	require.NoError(t, err)

	forged, err := newTestCodec(t, "other-secret").Issue("team286", "", "bank-token")
	require.NoError(t, err)

	tests := []struct {
		name            string
		setupRequest    func(r *http.Request)
		expectedStatus  int
		expectedSession bool
	}{
		{
			name: "Valid Token in Cookie",
			setupRequest: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "access_token", Value: validToken})
			},
			expectedStatus:  http.StatusOK,
			expectedSession: true,
		},
		{
			name: "Valid Token in Header",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+validToken)
			},
			expectedStatus:  http.StatusOK,
			expectedSession: true,
		},
		{
			name: "Lowercase scheme",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "bearer "+validToken)
			},
			expectedStatus:  http.StatusOK,
			expectedSession: true,
		},
		{
			name:           "No Token",
			setupRequest:   func(r *http.Request) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Wrong scheme",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic "+validToken)
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Invalid Token",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer invalid")
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Token signed with another secret",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+forged)
			},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				s, ok := SessionFrom(r.Context())
				assert.Equal(t, tt.expectedSession, ok)
				if ok {
					assert.Equal(t, "team286", s.ClientID)
					assert.Equal(t, "s3cret", s.ClientSecret)
					assert.Equal(t, "bank-token", s.BankToken)
				}
				w.WriteHeader(http.StatusOK)
			})

			handler := Auth(codec)(nextHandler)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setupRequest(req)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if rr.Code == http.StatusUnauthorized {
				var body struct {
					Error struct {
						Kind string `json:"kind"`
					} `json:"error"`
				}
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, "token_expired_or_invalid", body.Error.Kind)
			}
		})
	}
}

func TestSessionFrom_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := SessionFrom(req.Context())
	assert.False(t, ok)

	ctx := WithSession(req.Context(), &auth.Session{ClientID: "team286"})
	s, ok := SessionFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "team286", s.ClientID)
}
