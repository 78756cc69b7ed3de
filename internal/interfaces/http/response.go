package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/shared/apperr"
	"syntax/internal/shared/middleware"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError renders err as {"error":{"kind","message"}}. Errors outside the
// taxonomy are logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("kind", kind.String()).
		Msg("request failed")

	writeJSON(w, status, errorResponse{Error: errorBody{
		Kind:    kind.String(),
		Message: apperr.MessageOf(err),
	}})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.InvalidRequest, "request body is required")
		}
		return apperr.Wrap(apperr.InvalidRequest, err, "invalid request body")
	}
	return nil
}

// Credentials turns the session stored by middleware.Auth into the
// credentials the bank token cache understands.
type Credentials struct {
	authBank bank.ID
}

func NewCredentials(authBank bank.ID) *Credentials {
	return &Credentials{authBank: authBank}
}

func (c *Credentials) From(r *http.Request) (banktoken.Credentials, error) {
	s, ok := middleware.SessionFrom(r.Context())
	if !ok {
		return banktoken.Credentials{}, apperr.New(apperr.TokenExpiredOrInvalid, "authentication required")
	}
	return banktoken.Credentials{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		SessionBank:  c.authBank,
		SessionToken: s.BankToken,
	}, nil
}

// bankParam reads the required bank_id query parameter.
func bankParam(r *http.Request) (bank.ID, error) {
	return bank.ParseID(r.URL.Query().Get("bank_id"))
}

// clientParam returns the client_id query parameter, defaulting to the
// session's client.
func clientParam(r *http.Request, creds banktoken.Credentials) string {
	if id := r.URL.Query().Get("client_id"); id != "" {
		return id
	}
	return creds.ClientID
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Newf(apperr.InvalidRequest, "%s must be a non-negative integer", name)
	}
	return n, nil
}
