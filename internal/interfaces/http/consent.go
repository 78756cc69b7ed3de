package http

import (
	"context"
	"net/http"
	"time"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/domain/consent"
	"syntax/internal/shared/apperr"
)

type ConsentService interface {
	Ensure(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) (*consent.Consent, error)
	PollStatus(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, ref bank.ConsentRef) (*consent.Outcome, error)
	ResolvePending(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, requestID, clientID string) (*consent.Outcome, error)
	Revoke(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, consentID string) (*consent.Outcome, error)
	List(ctx context.Context, filter consent.ListFilter) ([]*consent.Consent, error)
}

type ConsentHandler struct {
	consents ConsentService
	creds    *Credentials
}

func NewConsentHandler(consents ConsentService, creds *Credentials) *ConsentHandler {
	return &ConsentHandler{consents: consents, creds: creds}
}

type CreateConsentRequest struct {
	BankID   string `json:"bank_id"`
	ClientID string `json:"client_id"`
}

// ConsentResponse is the normalized consent view. Deleted is set when the
// bank no longer knows the consent and the local record was dropped.
type ConsentResponse struct {
	ID          string             `json:"id,omitempty"`
	BankID      bank.ID            `json:"bank_id"`
	ClientID    string             `json:"client_id,omitempty"`
	Status      bank.ConsentStatus `json:"status"`
	ConsentID   string             `json:"consent_id,omitempty"`
	RequestID   string             `json:"request_id,omitempty"`
	RedirectURL string             `json:"redirect_url,omitempty"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	Changed     bool               `json:"changed,omitempty"`
	Deleted     bool               `json:"deleted,omitempty"`
}

func toConsentResponse(c *consent.Consent) ConsentResponse {
	return ConsentResponse{
		ID:          c.ID,
		BankID:      c.Bank,
		ClientID:    c.ClientID,
		Status:      c.Status,
		ConsentID:   c.ConsentID,
		RequestID:   c.RequestID,
		RedirectURL: c.RedirectURL,
		ExpiresAt:   c.ExpiresAt,
	}
}

func toOutcomeResponse(bankID bank.ID, ref bank.ConsentRef, o *consent.Outcome) ConsentResponse {
	if o.Consent == nil {
		resp := ConsentResponse{BankID: bankID, Status: bank.ConsentRevoked, Deleted: o.Deleted}
		if ref.Kind == bank.RefRequestID {
			resp.RequestID = ref.Value
		} else {
			resp.ConsentID = ref.Value
		}
		return resp
	}
	resp := toConsentResponse(o.Consent)
	resp.Changed = o.Changed
	if o.Deleted {
		resp.Deleted = true
		resp.Status = bank.ConsentRevoked
		resp.RedirectURL = ""
	}
	return resp
}

// HandleCreateConsent returns an authorized consent for the client, creating
// one upstream when none is usable.
func (h *ConsentHandler) HandleCreateConsent(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req CreateConsentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	bankID, err := bank.ParseID(req.BankID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = creds.ClientID
	}

	c, err := h.consents.Ensure(r.Context(), creds, bankID, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if c.Status != bank.ConsentAuthorized {
		status = http.StatusAccepted
	}
	writeJSON(w, status, toConsentResponse(c))
}

func (h *ConsentHandler) HandleListConsents(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := consent.ListFilter{ClientID: clientParam(r, creds)}
	if raw := r.URL.Query().Get("bank_id"); raw != "" {
		if filter.Bank, err = bank.ParseID(raw); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter.Status = bank.NormalizeConsentStatus(raw)
	}

	list, err := h.consents.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response := make([]ConsentResponse, 0, len(list))
	for _, c := range list {
		response = append(response, toConsentResponse(c))
	}
	writeJSON(w, http.StatusOK, response)
}

// HandleConsentStatus polls the bank for one consent. kind=request selects a
// request id, anything else a consent id.
func (h *ConsentHandler) HandleConsentStatus(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bankID, err := bankParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := bank.ParseRefKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	ref := bank.ConsentRef{Kind: kind, Value: r.PathValue("id")}
	if ref.Value == "" {
		writeError(w, r, apperr.New(apperr.InvalidRequest, "consent id is required"))
		return
	}

	outcome, err := h.consents.PollStatus(r.Context(), creds, bankID, ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(bankID, ref, outcome))
}

// HandleResolveRequest exchanges an approved request id for its consent id.
func (h *ConsentHandler) HandleResolveRequest(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bankID, err := bankParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	requestID := r.PathValue("request_id")
	if requestID == "" {
		writeError(w, r, apperr.New(apperr.InvalidRequest, "request_id is required"))
		return
	}

	outcome, err := h.consents.ResolvePending(r.Context(), creds, bankID, requestID, clientParam(r, creds))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(bankID, bank.RequestIDRef(requestID), outcome))
}

// HandleRevokeConsent revokes a consent. Revoking twice succeeds.
func (h *ConsentHandler) HandleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bankID, err := bankParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	consentID := r.PathValue("id")

	outcome, err := h.consents.Revoke(r.Context(), creds, bankID, consentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(bankID, bank.ConsentIDRef(consentID), outcome))
}
