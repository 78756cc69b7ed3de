package bankapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"syntax/internal/domain/bank"
	"syntax/internal/shared/apperr"
)

// dialect isolates what differs between banks: approval modes, the headers
// carrying the consent, and the envelopes around accounts and transactions.
// Each implementation decodes its own raw schema and maps it with pure
// functions into the canonical bank types.
type dialect interface {
	displayName() string
	accountApproval() bank.ApprovalMode
	paymentApproval() bank.ApprovalMode
	consentHeaders(consentID, clientID string) http.Header
	decodeAccounts(body []byte) ([]bank.Account, error)
	decodeTransactions(body []byte) (*bank.TransactionPage, error)
}

func dialectFor(id bank.ID) (dialect, error) {
	switch id {
	case bank.ABank:
		return abankDialect{}, nil
	case bank.SBank:
		return sbankDialect{}, nil
	case bank.VBank:
		return vbankDialect{}, nil
	default:
		return nil, fmt.Errorf("no dialect for bank %q", id)
	}
}

// Open Banking style camelCase schema shared by abank and sbank.

type obAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type obAccountIdentification struct {
	SchemeName     string `json:"schemeName"`
	Identification string `json:"identification"`
	Name           string `json:"name"`
}

type obBalance struct {
	Type                 string   `json:"type"`
	CreditDebitIndicator string   `json:"creditDebitIndicator"`
	Amount               obAmount `json:"amount"`
}

type obAccount struct {
	AccountID      string                    `json:"accountId"`
	Status         string                    `json:"status"`
	Currency       string                    `json:"currency"`
	AccountType    string                    `json:"accountType"`
	AccountSubType string                    `json:"accountSubType"`
	Nickname       string                    `json:"nickname"`
	Account        []obAccountIdentification `json:"account"`
	Balances       []obBalance               `json:"balances"`
}

type obTransaction struct {
	TransactionID          string   `json:"transactionId"`
	AccountID              string   `json:"accountId"`
	Amount                 obAmount `json:"amount"`
	CreditDebitIndicator   string   `json:"creditDebitIndicator"`
	Status                 string   `json:"status"`
	BookingDateTime        string   `json:"bookingDateTime"`
	TransactionInformation string   `json:"transactionInformation"`
}

func mapOBAccount(a obAccount) (bank.Account, error) {
	if a.AccountID == "" {
		return bank.Account{}, apperr.New(apperr.InternalNormalizationError, "account without accountId")
	}
	acc := bank.Account{
		ID:       a.AccountID,
		Name:     a.Nickname,
		Currency: a.Currency,
		Type:     a.AccountType,
		SubType:  a.AccountSubType,
		Status:   a.Status,
	}
	if len(a.Account) > 0 {
		acc.Identification = a.Account[0].Identification
		acc.SchemeName = a.Account[0].SchemeName
		if acc.Name == "" {
			acc.Name = a.Account[0].Name
		}
	}
	for _, b := range a.Balances {
		currency := b.Amount.Currency
		if currency == "" {
			currency = a.Currency
		}
		acc.Balances = append(acc.Balances, bank.Balance{
			Type:        b.Type,
			Amount:      b.Amount.Amount,
			Currency:    currency,
			CreditDebit: b.CreditDebitIndicator,
		})
	}
	return acc, nil
}

func mapOBAccounts(items []obAccount) ([]bank.Account, error) {
	out := make([]bank.Account, 0, len(items))
	for _, item := range items {
		acc, err := mapOBAccount(item)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

func mapOBTransaction(t obTransaction) (bank.Transaction, error) {
	if t.TransactionID == "" {
		return bank.Transaction{}, apperr.New(apperr.InternalNormalizationError, "transaction without transactionId")
	}
	booked, err := parseBankTime(t.BookingDateTime)
	if err != nil {
		return bank.Transaction{}, apperr.Wrap(apperr.InternalNormalizationError, err, "transaction with unreadable bookingDateTime")
	}
	return bank.Transaction{
		ID:          t.TransactionID,
		AccountID:   t.AccountID,
		Amount:      t.Amount.Amount.Abs(),
		Currency:    t.Amount.Currency,
		CreditDebit: t.CreditDebitIndicator,
		Status:      t.Status,
		BookedAt:    booked,
		Description: t.TransactionInformation,
	}, nil
}

func mapOBTransactions(items []obTransaction) ([]bank.Transaction, error) {
	out := make([]bank.Transaction, 0, len(items))
	for _, item := range items {
		tx, err := mapOBTransaction(item)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

var bankTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseBankTime accepts the timestamp layouts seen across the banks.
// Timestamps without a zone are taken as UTC.
func parseBankTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range bankTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func normalizationError(id bank.ID, resource string, err error) error {
	if apperr.Is(err, apperr.InternalNormalizationError) {
		return err
	}
	return apperr.Wrap(apperr.InternalNormalizationError, err, fmt.Sprintf("%s returned an unexpected %s payload", id, resource))
}
