package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	base := New(ConsentNotFound, "consent consent-1 not found")
	wrapped := fmt.Errorf("revoke: %w", base)

	assert.Equal(t, ConsentNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, ConsentNotFound))
	assert.False(t, Is(wrapped, UpstreamUnavailable))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(UpstreamUnavailable, cause, "bank unavailable")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "upstream_unavailable")
	assert.Contains(t, err.Error(), "dial tcp: timeout")
	assert.Equal(t, "bank unavailable", MessageOf(err))
}

func TestMessageOfHidesInternalErrors(t *testing.T) {
	assert.Equal(t, "internal server error", MessageOf(errors.New("pq: relation does not exist")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{AuthenticationFailed, http.StatusUnauthorized},
		{TokenExpiredOrInvalid, http.StatusUnauthorized},
		{InvalidRequest, http.StatusBadRequest},
		{UpstreamUnavailable, http.StatusServiceUnavailable},
		{ConsentNotFound, http.StatusNotFound},
		{ConsentInvalidOrRevoked, http.StatusForbidden},
		{PaymentRejected, http.StatusUnprocessableEntity},
		{AccountIdentificationUnresolved, http.StatusUnprocessableEntity},
		{InternalNormalizationError, http.StatusBadGateway},
		{Internal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}

func TestUnknownKindString(t *testing.T) {
	assert.Equal(t, "internal_error", Kind(999).String())
}
