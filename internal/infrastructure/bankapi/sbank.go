package bankapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"syntax/internal/domain/bank"
)

// sbank wraps resources in {"data": {...}} and requires the end user to
// approve both account and payment consents on its own pages.
type sbankDialect struct{}

type sbankAccountsResponse struct {
	Data *struct {
		Account []obAccount `json:"account"`
	} `json:"data"`
}

type sbankTransactionsResponse struct {
	Data *struct {
		Transaction []obTransaction `json:"transaction"`
	} `json:"data"`
	Meta *struct {
		TotalRecords int `json:"totalRecords"`
	} `json:"meta"`
}

func (sbankDialect) displayName() string                { return "Smart Bank" }
func (sbankDialect) accountApproval() bank.ApprovalMode { return bank.ApprovalManual }
func (sbankDialect) paymentApproval() bank.ApprovalMode { return bank.ApprovalManual }

func (sbankDialect) consentHeaders(consentID, clientID string) http.Header {
	h := http.Header{}
	h.Set("X-Consent-Id", consentID)
	return h
}

func (sbankDialect) decodeAccounts(body []byte) ([]bank.Account, error) {
	var raw sbankAccountsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, normalizationError(bank.SBank, "accounts", err)
	}
	if raw.Data == nil {
		return nil, normalizationError(bank.SBank, "accounts", errors.New("missing data envelope"))
	}
	return mapOBAccounts(raw.Data.Account)
}

func (sbankDialect) decodeTransactions(body []byte) (*bank.TransactionPage, error) {
	var raw sbankTransactionsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, normalizationError(bank.SBank, "transactions", err)
	}
	if raw.Data == nil {
		return nil, normalizationError(bank.SBank, "transactions", errors.New("missing data envelope"))
	}
	txs, err := mapOBTransactions(raw.Data.Transaction)
	if err != nil {
		return nil, err
	}
	page := &bank.TransactionPage{Transactions: txs}
	if raw.Meta != nil {
		page.Pagination = &bank.Pagination{Total: raw.Meta.TotalRecords}
	}
	return page, nil
}
