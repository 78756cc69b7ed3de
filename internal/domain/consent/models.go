package consent

import (
	"time"

	"syntax/internal/domain/bank"
	"syntax/internal/shared/apperr"
)

var (
	ErrConsentNotFound   = apperr.New(apperr.ConsentNotFound, "consent not found")
	ErrNoAuthorized      = apperr.New(apperr.ConsentNotFound, "no authorized consent for this bank and client, create one first")
	ErrClientIDRequired  = apperr.New(apperr.InvalidRequest, "client_id is required")
	ErrIdentifierMissing = apperr.New(apperr.InvalidRequest, "consent identifier is required")
)

// Consent is the local record of an account-access consent at one bank.
// ConsentID stays empty until the bank assigns one; manual-approval flows
// are tracked by RequestID in the meantime.
type Consent struct {
	ID          string             `json:"id"`
	Bank        bank.ID            `json:"bank_id"`
	ClientID    string             `json:"client_id"`
	ConsentID   string             `json:"consent_id,omitempty"`
	RequestID   string             `json:"request_id,omitempty"`
	Status      bank.ConsentStatus `json:"status"`
	RedirectURL string             `json:"redirect_url,omitempty"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Usable reports whether the consent may be sent to the bank for data access.
func (c *Consent) Usable() bool {
	return c.Status == bank.ConsentAuthorized && c.ConsentID != ""
}

// Ref returns the identifier the bank knows this consent by.
func (c *Consent) Ref() bank.ConsentRef {
	if c.ConsentID != "" {
		return bank.ConsentIDRef(c.ConsentID)
	}
	return bank.RequestIDRef(c.RequestID)
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Bank     bank.ID
	ClientID string
	Status   bank.ConsentStatus
	Limit    int
}

// Outcome is the result of a reconciliation against the bank.
type Outcome struct {
	Consent *Consent `json:"consent,omitempty"`
	Changed bool     `json:"changed"`
	Deleted bool     `json:"deleted"`
}

func statusRank(s bank.ConsentStatus) int {
	switch s {
	case bank.ConsentAwaitingAuthorization:
		return 1
	case bank.ConsentAuthorized:
		return 2
	case bank.ConsentRevoked:
		return 3
	default:
		return 0
	}
}

// advance applies the monotonic transition rule: a status only moves
// forward and revoked is terminal.
func advance(current, next bank.ConsentStatus) bank.ConsentStatus {
	if statusRank(next) > statusRank(current) {
		return next
	}
	return current
}
