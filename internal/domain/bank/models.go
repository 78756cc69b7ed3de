package bank

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"syntax/internal/shared/apperr"
)

// ID identifies one upstream bank.
type ID string

const (
	ABank ID = "abank"
	SBank ID = "sbank"
	VBank ID = "vbank"
)

// All returns the supported banks in display order.
func All() []ID {
	return []ID{ABank, SBank, VBank}
}

// ParseID validates a bank identifier coming from a request.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	switch id {
	case ABank, SBank, VBank:
		return id, nil
	case "":
		return "", apperr.New(apperr.InvalidRequest, "bank_id is required")
	default:
		return "", apperr.Newf(apperr.InvalidRequest, "unknown bank %q", s)
	}
}

func (id ID) String() string {
	return string(id)
}

// ApprovalMode tells whether a bank grants consents immediately or sends
// the end user to a bank-hosted approval page first.
type ApprovalMode string

const (
	ApprovalAuto   ApprovalMode = "auto"
	ApprovalManual ApprovalMode = "manual"
)

// Token is an upstream bearer token as reported by /auth/bank-token.
type Token struct {
	AccessToken string
	ExpiresIn   int
}

// Account is the canonical account shape, independent of the bank dialect.
type Account struct {
	ID             string    `json:"account_id"`
	Identification string    `json:"identification,omitempty"`
	SchemeName     string    `json:"scheme_name,omitempty"`
	Name           string    `json:"name,omitempty"`
	Currency       string    `json:"currency"`
	Type           string    `json:"account_type,omitempty"`
	SubType        string    `json:"account_sub_type,omitempty"`
	Status         string    `json:"status,omitempty"`
	Balances       []Balance `json:"balances,omitempty"`
}

type Balance struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CreditDebit string          `json:"credit_debit_indicator,omitempty"`
}

// Transaction is the canonical transaction shape. Amount is the absolute
// value reported upstream; CreditDebit carries the direction.
type Transaction struct {
	ID          string          `json:"transaction_id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CreditDebit string          `json:"credit_debit_indicator,omitempty"`
	Status      string          `json:"status,omitempty"`
	BookedAt    time.Time       `json:"booking_date_time"`
	Description string          `json:"description,omitempty"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total,omitempty"`
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Pagination   *Pagination   `json:"pagination,omitempty"`
}

// TransactionQuery selects either one account's transactions (AccountID set)
// or every transaction of the client.
type TransactionQuery struct {
	AccountID string
	ClientID  string
	Page      int
	Limit     int
	From      *time.Time
	To        *time.Time
}

// ConsentStatus is the local consent state machine.
type ConsentStatus string

const (
	ConsentPending               ConsentStatus = "pending"
	ConsentAwaitingAuthorization ConsentStatus = "awaiting_authorization"
	ConsentAuthorized            ConsentStatus = "authorized"
	ConsentRevoked               ConsentStatus = "revoked"
)

// NormalizeConsentStatus maps the status vocabulary used by the banks
// onto the local state machine.
func NormalizeConsentStatus(raw string) ConsentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "authorized", "authorised", "approved", "success", "active", "valid":
		return ConsentAuthorized
	case "awaitingauthorization", "awaitingauthorisation", "awaiting_authorization", "awaiting_authorisation", "pending_approval":
		return ConsentAwaitingAuthorization
	case "revoked", "rejected", "expired", "cancelled", "canceled":
		return ConsentRevoked
	default:
		return ConsentPending
	}
}

// RefKind discriminates the two identifiers a consent can be addressed by.
type RefKind int

const (
	RefConsentID RefKind = iota
	RefRequestID
)

func (k RefKind) String() string {
	if k == RefRequestID {
		return "request"
	}
	return "consent"
}

// ParseRefKind accepts "consent" (default when empty) or "request".
func ParseRefKind(s string) (RefKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "consent", "consent_id":
		return RefConsentID, nil
	case "request", "request_id":
		return RefRequestID, nil
	default:
		return 0, apperr.Newf(apperr.InvalidRequest, "unknown consent reference kind %q", s)
	}
}

// ConsentRef addresses a consent either by the upstream consent id or by the
// pending request id of a manual approval flow.
type ConsentRef struct {
	Kind  RefKind
	Value string
}

func ConsentIDRef(id string) ConsentRef {
	return ConsentRef{Kind: RefConsentID, Value: id}
}

func RequestIDRef(id string) ConsentRef {
	return ConsentRef{Kind: RefRequestID, Value: id}
}

func (r ConsentRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Value)
}

// ConsentResult is what a gateway reports for account and payment consents.
type ConsentResult struct {
	ConsentID   string
	RequestID   string
	Status      ConsentStatus
	RawStatus   string
	RedirectURL string
	ExpiresAt   *time.Time
}

// CreditorAccount describes the payee of a payment.
type CreditorAccount struct {
	SchemeName     string
	Identification string
	BankCode       string
	Name           string
}

type PaymentConsentRequest struct {
	ClientID      string
	Amount        decimal.Decimal
	Currency      string
	DebtorAccount string
	Creditor      CreditorAccount
}

type PaymentRequest struct {
	ConsentID     string
	ClientID      string
	Amount        decimal.Decimal
	Currency      string
	DebtorAccount string
	Creditor      CreditorAccount
	Comment       string
}

// PaymentResult carries the raw upstream payment status; mapping it onto a
// local state is the caller's business.
type PaymentResult struct {
	PaymentID string
	Status    string
	CreatedAt *time.Time
	UpdatedAt *time.Time
}
