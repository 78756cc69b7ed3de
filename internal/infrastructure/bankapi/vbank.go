package bankapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"syntax/internal/domain/bank"
)

// vbank uses snake_case fields inside named envelopes, passes the consent
// in consent_id/client_id headers, and approves payments manually.
type vbankDialect struct{}

type vbankAccount struct {
	AccountID      string `json:"account_id"`
	Status         string `json:"status"`
	Currency       string `json:"currency"`
	AccountType    string `json:"account_type"`
	AccountSubType string `json:"account_sub_type"`
	Nickname       string `json:"nickname"`
	SchemeName     string `json:"scheme_name"`
	Identification string `json:"identification"`
	Balance        *struct {
		Type     string          `json:"type"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	} `json:"balance"`
}

type vbankAccountsResponse struct {
	Accounts []vbankAccount `json:"accounts"`
}

type vbankTransaction struct {
	TransactionID        string          `json:"transaction_id"`
	AccountID            string          `json:"account_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	CreditDebitIndicator string          `json:"credit_debit_indicator"`
	Status               string          `json:"status"`
	BookingDateTime      string          `json:"booking_date_time"`
	Description          string          `json:"description"`
}

type vbankTransactionsResponse struct {
	Transactions []vbankTransaction `json:"transactions"`
	Pagination   *bank.Pagination   `json:"pagination"`
}

func (vbankDialect) displayName() string                { return "Virtual Bank" }
func (vbankDialect) accountApproval() bank.ApprovalMode { return bank.ApprovalAuto }
func (vbankDialect) paymentApproval() bank.ApprovalMode { return bank.ApprovalManual }

func (vbankDialect) consentHeaders(consentID, clientID string) http.Header {
	h := http.Header{}
	h.Set("consent_id", consentID)
	if clientID != "" {
		h.Set("client_id", clientID)
	}
	return h
}

func (vbankDialect) decodeAccounts(body []byte) ([]bank.Account, error) {
	var raw vbankAccountsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, normalizationError(bank.VBank, "accounts", err)
	}
	if raw.Accounts == nil {
		return nil, normalizationError(bank.VBank, "accounts", errors.New("missing accounts field"))
	}
	out := make([]bank.Account, 0, len(raw.Accounts))
	for _, a := range raw.Accounts {
		acc, err := mapVBankAccount(a)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

func mapVBankAccount(a vbankAccount) (bank.Account, error) {
	if a.AccountID == "" {
		return bank.Account{}, normalizationError(bank.VBank, "accounts", errors.New("account without account_id"))
	}
	acc := bank.Account{
		ID:             a.AccountID,
		Identification: a.Identification,
		SchemeName:     a.SchemeName,
		Name:           a.Nickname,
		Currency:       a.Currency,
		Type:           a.AccountType,
		SubType:        a.AccountSubType,
		Status:         a.Status,
	}
	if a.Balance != nil {
		currency := a.Balance.Currency
		if currency == "" {
			currency = a.Currency
		}
		acc.Balances = []bank.Balance{{Type: a.Balance.Type, Amount: a.Balance.Amount, Currency: currency}}
	}
	return acc, nil
}

func (vbankDialect) decodeTransactions(body []byte) (*bank.TransactionPage, error) {
	var raw vbankTransactionsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, normalizationError(bank.VBank, "transactions", err)
	}
	if raw.Transactions == nil {
		return nil, normalizationError(bank.VBank, "transactions", errors.New("missing transactions field"))
	}
	txs := make([]bank.Transaction, 0, len(raw.Transactions))
	for _, t := range raw.Transactions {
		tx, err := mapVBankTransaction(t)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return &bank.TransactionPage{Transactions: txs, Pagination: raw.Pagination}, nil
}

func mapVBankTransaction(t vbankTransaction) (bank.Transaction, error) {
	if t.TransactionID == "" {
		return bank.Transaction{}, normalizationError(bank.VBank, "transactions", errors.New("transaction without transaction_id"))
	}
	booked, err := parseBankTime(t.BookingDateTime)
	if err != nil {
		return bank.Transaction{}, normalizationError(bank.VBank, "transactions", err)
	}
	return bank.Transaction{
		ID:          t.TransactionID,
		AccountID:   t.AccountID,
		Amount:      t.Amount.Abs(),
		Currency:    t.Currency,
		CreditDebit: t.CreditDebitIndicator,
		Status:      t.Status,
		BookedAt:    booked,
		Description: t.Description,
	}, nil
}
