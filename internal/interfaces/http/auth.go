package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/shared/apperr"
	"syntax/internal/shared/auth"
	"syntax/internal/shared/middleware"
)

// TokenIssuer authenticates a client against a bank, reusing cached tokens.
type TokenIssuer interface {
	Get(ctx context.Context, bankID bank.ID, clientID, clientSecret string) (*banktoken.Token, error)
}

type AuthHandler struct {
	tokens   TokenIssuer
	codec    *auth.SessionCodec
	authBank bank.ID
}

func NewAuthHandler(tokens TokenIssuer, codec *auth.SessionCodec, authBank bank.ID) *AuthHandler {
	return &AuthHandler{tokens: tokens, codec: codec, authBank: authBank}
}

type AuthenticateRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type AuthenticateResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	ClientID    string `json:"client_id"`
}

// HandleAuthenticate exchanges team credentials for a session token.
func (h *AuthHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" || req.ClientSecret == "" {
		writeError(w, r, apperr.New(apperr.InvalidRequest, "client_id and client_secret are required"))
		return
	}

	tok, err := h.tokens.Get(r.Context(), h.authBank, req.ClientID, req.ClientSecret)
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.codec.Issue(req.ClientID, req.ClientSecret, tok.AccessToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ttl := int(h.codec.TTL().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   ttl,
	})

	log.Info().Str("client_id", req.ClientID).Str("bank", h.authBank.String()).Msg("session issued")

	writeJSON(w, http.StatusOK, AuthenticateResponse{
		AccessToken: session,
		TokenType:   "bearer",
		ExpiresIn:   ttl,
		ClientID:    req.ClientID,
	})
}

// HandleLogout clears the session cookie. Bearer clients simply drop the token.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

type BankHandler struct {
	gateways bank.Registry
}

func NewBankHandler(gateways bank.Registry) *BankHandler {
	return &BankHandler{gateways: gateways}
}

type BankResponse struct {
	ID              bank.ID           `json:"bank_id"`
	Name            string            `json:"name"`
	BaseURL         string            `json:"base_url"`
	AccountApproval bank.ApprovalMode `json:"account_consent_approval"`
	PaymentApproval bank.ApprovalMode `json:"payment_consent_approval"`
}

func (h *BankHandler) HandleListBanks(w http.ResponseWriter, r *http.Request) {
	ids := h.gateways.IDs()
	response := make([]BankResponse, 0, len(ids))
	for _, id := range ids {
		gw := h.gateways[id]
		response = append(response, BankResponse{
			ID:              id,
			Name:            gw.DisplayName(),
			BaseURL:         gw.BaseURL(),
			AccountApproval: gw.AccountApproval(),
			PaymentApproval: gw.PaymentApproval(),
		})
	}
	writeJSON(w, http.StatusOK, response)
}
