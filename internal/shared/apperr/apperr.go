// Package apperr defines the failure taxonomy shared by every layer of the
// aggregator. Gateways and caches translate transport failures into these
// kinds before returning, so callers never branch on raw network errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	AuthenticationFailed
	InvalidRequest
	UpstreamUnavailable
	ConsentNotFound
	ConsentInvalidOrRevoked
	TokenExpiredOrInvalid
	PaymentRejected
	InternalNormalizationError
	AccountIdentificationUnresolved
	NotFound
)

var kindNames = map[Kind]string{
	Internal:                        "internal_error",
	AuthenticationFailed:            "authentication_failed",
	InvalidRequest:                  "invalid_request",
	UpstreamUnavailable:             "upstream_unavailable",
	ConsentNotFound:                 "consent_not_found",
	ConsentInvalidOrRevoked:         "consent_invalid_or_revoked",
	TokenExpiredOrInvalid:           "token_expired_or_invalid",
	PaymentRejected:                 "payment_rejected",
	InternalNormalizationError:      "internal_normalization_error",
	AccountIdentificationUnresolved: "account_identification_unresolved",
	NotFound:                        "not_found",
}

// String returns the stable code exposed to API clients.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[Internal]
}

// HTTPStatus maps a kind to the status code used by the HTTP layer.
func (k Kind) HTTPStatus() int {
	switch k {
	case AuthenticationFailed, TokenExpiredOrInvalid:
		return http.StatusUnauthorized
	case InvalidRequest:
		return http.StatusBadRequest
	case UpstreamUnavailable:
		return http.StatusServiceUnavailable
	case ConsentNotFound, NotFound:
		return http.StatusNotFound
	case ConsentInvalidOrRevoked:
		return http.StatusForbidden
	case PaymentRejected, AccountIdentificationUnresolved:
		return http.StatusUnprocessableEntity
	case InternalNormalizationError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// MessageOf returns the user-facing message of err. Errors outside the
// taxonomy get a generic message so internal details never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
