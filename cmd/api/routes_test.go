package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syntax/internal/infrastructure/postgres"
	"syntax/internal/shared/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{AllowedHosts: []string{"app.example.com"}},
		JWT:    config.JWTConfig{Secret: "jwt-secret", SessionTTL: time.Minute},
		Banks: config.BanksConfig{
			AuthBank: "sbank",
			BaseURLs: map[string]string{
				"abank": "https://abank.example",
				"sbank": "https://sbank.example",
				"vbank": "https://vbank.example",
			},
		},
		Cache:     config.CacheConfig{TransactionTTL: time.Minute},
		Payments:  config.PaymentsConfig{ApprovalTimeout: time.Hour},
		Telemetry: config.TelemetryConfig{ServiceName: "syntax-api-test"},
	}
}

func newTestDeps(t *testing.T, cfg *config.Config) (*Dependencies, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	deps, err := newDependencies(cfg, postgres.Wrap(sqlDB))
	require.NoError(t, err)
	return deps, mock
}

func TestNewDependencies_ReconcilerNeedsTeamCredentials(t *testing.T) {
	cfg := testConfig()
	deps, _ := newTestDeps(t, cfg)
	assert.Nil(t, deps.Reconciler)
	assert.Len(t, deps.Gateways, 3)

	cfg.Banks.ClientID = "team1"
	cfg.Banks.ClientSecret = "s3cr3t"
	deps, _ = newTestDeps(t, cfg)
	assert.NotNil(t, deps.Reconciler)
}

func TestNewDependencies_BadAuthBank(t *testing.T) {
	cfg := testConfig()
	cfg.Banks.AuthBank = "nobank"

	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = newDependencies(cfg, postgres.Wrap(sqlDB))
	assert.Error(t, err)
}

func TestSetupRoutes(t *testing.T) {
	cfg := testConfig()
	deps, mock := newTestDeps(t, cfg)
	handler := SetupRoutes(deps, cfg)

	t.Run("Health Is Public", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	})

	t.Run("Detailed Health Pings Database", func(t *testing.T) {
		mock.ExpectPing()
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"banks":["abank","sbank","vbank"]`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Banks Are Public", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/banks", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	protected := []struct{ method, path string }{
		{http.MethodPost, "/v1/consents"},
		{http.MethodGet, "/v1/accounts?bank_id=vbank"},
		{http.MethodGet, "/v1/transactions?bank_id=vbank"},
		{http.MethodPost, "/v1/tax-payments/abc/pay"},
		{http.MethodGet, "/v1/receipts"},
	}
	for _, p := range protected {
		t.Run("Requires Session "+p.method+" "+p.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(p.method, p.path, strings.NewReader("{}")))
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}

	t.Run("Valid Session Reaches Handler", func(t *testing.T) {
		token, err := deps.Codec.Issue("team1", "s3cr3t", "bank-token")
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, r)

		// bank_id is missing, so the handler itself rejects the request.
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Wrong Method", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/banks", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("Disallowed Origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/banks", nil)
		r.Header.Set("Origin", "https://evil.example")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, r)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
