package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/domain/consent"
)

type MockConsentService struct {
	EnsureFunc         func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) (*consent.Consent, error)
	PollStatusFunc     func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, ref bank.ConsentRef) (*consent.Outcome, error)
	ResolvePendingFunc func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, requestID, clientID string) (*consent.Outcome, error)
	RevokeFunc         func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, consentID string) (*consent.Outcome, error)
	ListFunc           func(ctx context.Context, filter consent.ListFilter) ([]*consent.Consent, error)
}

func (m *MockConsentService) Ensure(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) (*consent.Consent, error) {
	if m.EnsureFunc != nil {
		return m.EnsureFunc(ctx, creds, bankID, clientID)
	}
	return nil, nil
}

func (m *MockConsentService) PollStatus(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, ref bank.ConsentRef) (*consent.Outcome, error) {
	if m.PollStatusFunc != nil {
		return m.PollStatusFunc(ctx, creds, bankID, ref)
	}
	return nil, nil
}

func (m *MockConsentService) ResolvePending(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, requestID, clientID string) (*consent.Outcome, error) {
	if m.ResolvePendingFunc != nil {
		return m.ResolvePendingFunc(ctx, creds, bankID, requestID, clientID)
	}
	return nil, nil
}

func (m *MockConsentService) Revoke(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, consentID string) (*consent.Outcome, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, creds, bankID, consentID)
	}
	return nil, nil
}

func (m *MockConsentService) List(ctx context.Context, filter consent.ListFilter) ([]*consent.Consent, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

func TestHandleCreateConsent(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		status         bank.ConsentStatus
		expectedStatus int
		expectedClient string
	}{
		{"Authorized", `{"bank_id":"vbank"}`, bank.ConsentAuthorized, http.StatusOK, "team1"},
		{"Awaiting Approval", `{"bank_id":"SBank","client_id":"team1-7"}`, bank.ConsentAwaitingAuthorization, http.StatusAccepted, "team1-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotClient string
			var gotCreds banktoken.Credentials
			svc := &MockConsentService{
				EnsureFunc: func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) (*consent.Consent, error) {
					gotClient = clientID
					gotCreds = creds
					return &consent.Consent{ID: "c1", Bank: bankID, ClientID: clientID, Status: tt.status, RequestID: "req-1"}, nil
				},
			}
			h := NewConsentHandler(svc, testCreds)

			rr := httptest.NewRecorder()
			h.HandleCreateConsent(rr, authed(newRequest(http.MethodPost, "/v1/consents", tt.body)))

			require.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedClient, gotClient)
			assert.Equal(t, "s3cr3t", gotCreds.ClientSecret)
			assert.Equal(t, bank.VBank, gotCreds.SessionBank)
			assert.Equal(t, "session-token", gotCreds.SessionToken)

			resp := decodeBody[ConsentResponse](t, rr)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, "req-1", resp.RequestID)
		})
	}
}

func TestHandleCreateConsent_Errors(t *testing.T) {
	h := NewConsentHandler(&MockConsentService{}, testCreds)

	t.Run("No Session", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleCreateConsent(rr, newRequest(http.MethodPost, "/v1/consents", `{"bank_id":"vbank"}`))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "token_expired_or_invalid", errorKind(t, rr))
	})

	t.Run("Unknown Bank", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleCreateConsent(rr, authed(newRequest(http.MethodPost, "/v1/consents", `{"bank_id":"zbank"}`)))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "invalid_request", errorKind(t, rr))
	})
}

func TestHandleListConsents(t *testing.T) {
	var got consent.ListFilter
	h := NewConsentHandler(&MockConsentService{
		ListFunc: func(ctx context.Context, filter consent.ListFilter) ([]*consent.Consent, error) {
			got = filter
			return nil, nil
		},
	}, testCreds)

	rr := httptest.NewRecorder()
	h.HandleListConsents(rr, authed(newRequest(http.MethodGet, "/v1/consents?bank_id=abank&status=AwaitingAuthorisation", "")))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
	assert.Equal(t, bank.ABank, got.Bank)
	assert.Equal(t, "team1", got.ClientID)
	assert.Equal(t, bank.NormalizeConsentStatus("AwaitingAuthorisation"), got.Status)
}

func TestHandleConsentStatus(t *testing.T) {
	t.Run("Request Reference", func(t *testing.T) {
		var got bank.ConsentRef
		h := NewConsentHandler(&MockConsentService{
			PollStatusFunc: func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, ref bank.ConsentRef) (*consent.Outcome, error) {
				got = ref
				return &consent.Outcome{
					Consent: &consent.Consent{Bank: bankID, ConsentID: "cons-1", RequestID: ref.Value, Status: bank.ConsentAuthorized},
					Changed: true,
				}, nil
			},
		}, testCreds)

		r := newRequest(http.MethodGet, "/v1/consents/req-1?bank_id=sbank&kind=request", "")
		r.SetPathValue("id", "req-1")
		rr := httptest.NewRecorder()
		h.HandleConsentStatus(rr, authed(r))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, bank.RequestIDRef("req-1"), got)
		resp := decodeBody[ConsentResponse](t, rr)
		assert.True(t, resp.Changed)
		assert.Equal(t, bank.ConsentAuthorized, resp.Status)
		assert.Equal(t, "cons-1", resp.ConsentID)
	})

	t.Run("Deleted Upstream", func(t *testing.T) {
		h := NewConsentHandler(&MockConsentService{
			PollStatusFunc: func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, ref bank.ConsentRef) (*consent.Outcome, error) {
				return &consent.Outcome{Deleted: true, Changed: true}, nil
			},
		}, testCreds)

		r := newRequest(http.MethodGet, "/v1/consents/cons-9?bank_id=vbank", "")
		r.SetPathValue("id", "cons-9")
		rr := httptest.NewRecorder()
		h.HandleConsentStatus(rr, authed(r))

		require.Equal(t, http.StatusOK, rr.Code)
		resp := decodeBody[ConsentResponse](t, rr)
		assert.True(t, resp.Deleted)
		assert.Equal(t, bank.ConsentRevoked, resp.Status)
		assert.Equal(t, "cons-9", resp.ConsentID)
	})

	t.Run("Bad Kind", func(t *testing.T) {
		h := NewConsentHandler(&MockConsentService{}, testCreds)
		r := newRequest(http.MethodGet, "/v1/consents/x?bank_id=vbank&kind=other", "")
		r.SetPathValue("id", "x")
		rr := httptest.NewRecorder()
		h.HandleConsentStatus(rr, authed(r))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleResolveRequest(t *testing.T) {
	var gotClient string
	h := NewConsentHandler(&MockConsentService{
		ResolvePendingFunc: func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, requestID, clientID string) (*consent.Outcome, error) {
			gotClient = clientID
			return &consent.Outcome{Consent: &consent.Consent{Bank: bankID, RequestID: requestID, Status: bank.ConsentAwaitingAuthorization, RedirectURL: "https://sbank.test/approve"}}, nil
		},
	}, testCreds)

	r := newRequest(http.MethodPost, "/v1/consents/requests/req-1/resolve?bank_id=sbank&client_id=team1-2", "")
	r.SetPathValue("request_id", "req-1")
	rr := httptest.NewRecorder()
	h.HandleResolveRequest(rr, authed(r))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "team1-2", gotClient)
	resp := decodeBody[ConsentResponse](t, rr)
	assert.Equal(t, "https://sbank.test/approve", resp.RedirectURL)
	assert.False(t, resp.Deleted)
}

func TestHandleRevokeConsent(t *testing.T) {
	h := NewConsentHandler(&MockConsentService{
		RevokeFunc: func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, consentID string) (*consent.Outcome, error) {
			return &consent.Outcome{Consent: &consent.Consent{Bank: bankID, ConsentID: consentID, Status: bank.ConsentRevoked}}, nil
		},
	}, testCreds)

	r := newRequest(http.MethodDelete, "/v1/consents/cons-1?bank_id=vbank", "")
	r.SetPathValue("id", "cons-1")
	rr := httptest.NewRecorder()
	h.HandleRevokeConsent(rr, authed(r))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody[ConsentResponse](t, rr)
	assert.Equal(t, bank.ConsentRevoked, resp.Status)
	assert.Equal(t, "cons-1", resp.ConsentID)
}
