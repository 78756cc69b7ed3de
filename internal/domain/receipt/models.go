package receipt

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"syntax/internal/shared/apperr"
)

type Status string

const (
	StatusDraft  Status = "draft"
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

var (
	ErrReceiptNotFound = apperr.New(apperr.NotFound, "receipt not found")
	ErrAlreadySent     = apperr.New(apperr.InvalidRequest, "receipt already sent")
	ErrInvalidStatus   = apperr.New(apperr.InvalidRequest, "status must be draft, sent or failed")
)

// Receipt documents income received through a bank transaction.
type Receipt struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Service       string          `json:"service"`
	ClientName    string          `json:"client_name"`
	Status        Status          `json:"status"`
	ExternalID    string          `json:"external_id,omitempty"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateParams struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Service       string          `json:"service"`
	ClientName    string          `json:"client_name"`
}

func (p CreateParams) Validate() error {
	switch {
	case strings.TrimSpace(p.TransactionID) == "":
		return apperr.New(apperr.InvalidRequest, "transaction_id is required")
	case strings.TrimSpace(p.AccountID) == "":
		return apperr.New(apperr.InvalidRequest, "account_id is required")
	case p.Date.IsZero():
		return apperr.New(apperr.InvalidRequest, "date is required")
	case !p.Amount.IsPositive():
		return apperr.New(apperr.InvalidRequest, "amount must be positive")
	case strings.TrimSpace(p.Service) == "":
		return apperr.New(apperr.InvalidRequest, "service is required")
	case strings.TrimSpace(p.ClientName) == "":
		return apperr.New(apperr.InvalidRequest, "client_name is required")
	}
	return nil
}

// UpdateParams changes only the fields that are set.
type UpdateParams struct {
	Date       *time.Time       `json:"date,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Service    *string          `json:"service,omitempty"`
	ClientName *string          `json:"client_name,omitempty"`
	Status     *Status          `json:"status,omitempty"`
}

func (p UpdateParams) Validate() error {
	if p.Amount != nil && !p.Amount.IsPositive() {
		return apperr.New(apperr.InvalidRequest, "amount must be positive")
	}
	if p.Service != nil && strings.TrimSpace(*p.Service) == "" {
		return apperr.New(apperr.InvalidRequest, "service must not be empty")
	}
	if p.ClientName != nil && strings.TrimSpace(*p.ClientName) == "" {
		return apperr.New(apperr.InvalidRequest, "client_name must not be empty")
	}
	if p.Status != nil && !IsValidStatus(*p.Status) {
		return ErrInvalidStatus
	}
	return nil
}

func IsValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusSent, StatusFailed:
		return true
	}
	return false
}

type ListFilter struct {
	From   *time.Time
	To     *time.Time
	Status Status
}
