package bankapi

import (
	"encoding/json"
	"net/http"

	"syntax/internal/domain/bank"
)

// abank answers with bare JSON arrays and approves every consent itself.
type abankDialect struct{}

func (abankDialect) displayName() string                { return "Awesome Bank" }
func (abankDialect) accountApproval() bank.ApprovalMode { return bank.ApprovalAuto }
func (abankDialect) paymentApproval() bank.ApprovalMode { return bank.ApprovalAuto }

func (abankDialect) consentHeaders(consentID, clientID string) http.Header {
	h := http.Header{}
	h.Set("X-Consent-Id", consentID)
	return h
}

func (abankDialect) decodeAccounts(body []byte) ([]bank.Account, error) {
	var raw []obAccount
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, normalizationError(bank.ABank, "accounts", err)
	}
	return mapOBAccounts(raw)
}

func (abankDialect) decodeTransactions(body []byte) (*bank.TransactionPage, error) {
	var raw []obTransaction
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, normalizationError(bank.ABank, "transactions", err)
	}
	txs, err := mapOBTransactions(raw)
	if err != nil {
		return nil, err
	}
	return &bank.TransactionPage{Transactions: txs}, nil
}
