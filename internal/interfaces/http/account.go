package http

import (
	"context"
	"net/http"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/domain/transaction"
)

type TransactionService interface {
	Accounts(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) ([]bank.Account, error)
	Transactions(ctx context.Context, creds banktoken.Credentials, q transaction.Query) (*transaction.Result, error)
}

// AccountHandler serves account and transaction reads through the client's
// authorized consent.
type AccountHandler struct {
	transactions TransactionService
	creds        *Credentials
}

func NewAccountHandler(transactions TransactionService, creds *Credentials) *AccountHandler {
	return &AccountHandler{transactions: transactions, creds: creds}
}

type AccountsResponse struct {
	BankID   bank.ID        `json:"bank_id"`
	ClientID string         `json:"client_id"`
	Accounts []bank.Account `json:"accounts"`
}

func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bankID, err := bankParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	clientID := clientParam(r, creds)

	accounts, err := h.transactions.Accounts(r.Context(), creds, bankID, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountsResponse{BankID: bankID, ClientID: clientID, Accounts: accounts})
}

// HandleAccountTransactions lists one account's transactions.
func (h *AccountHandler) HandleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	h.handleTransactions(w, r, r.PathValue("account_id"))
}

// HandleClientTransactions lists every transaction of the client at a bank.
func (h *AccountHandler) HandleClientTransactions(w http.ResponseWriter, r *http.Request) {
	h.handleTransactions(w, r, "")
}

func (h *AccountHandler) handleTransactions(w http.ResponseWriter, r *http.Request, accountID string) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := transactionQuery(r, creds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q.AccountID = accountID

	result, err := h.transactions.Transactions(r.Context(), creds, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func transactionQuery(r *http.Request, creds banktoken.Credentials) (transaction.Query, error) {
	var (
		q   transaction.Query
		err error
	)
	values := r.URL.Query()

	if q.Bank, err = bankParam(r); err != nil {
		return q, err
	}
	q.ClientID = clientParam(r, creds)
	if q.Page, err = intParam(r, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(r, "limit"); err != nil {
		return q, err
	}
	if q.Filter.From, err = transaction.ParseDateBound(values.Get("date_from"), false); err != nil {
		return q, err
	}
	if q.Filter.To, err = transaction.ParseDateBound(values.Get("date_to"), true); err != nil {
		return q, err
	}
	if q.Filter.MinAmount, err = transaction.ParseAmount(values.Get("min_amount")); err != nil {
		return q, err
	}
	if q.Filter.MaxAmount, err = transaction.ParseAmount(values.Get("max_amount")); err != nil {
		return q, err
	}
	return q, nil
}
