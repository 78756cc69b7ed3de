package http

import (
	"context"
	"net/http"
	"strings"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/domain/payment"
	"syntax/internal/shared/apperr"
)

type PaymentService interface {
	Get(ctx context.Context, id string) (*payment.TaxPayment, error)
	List(ctx context.Context, filter payment.ListFilter) ([]*payment.TaxPayment, error)
	SyncTaxes(ctx context.Context, userID, inn string) (*payment.SyncResult, error)
	Pay(ctx context.Context, creds banktoken.Credentials, id string, req payment.PayRequest) (*payment.TaxPayment, error)
	Confirm(ctx context.Context, creds banktoken.Credentials, id string) (*payment.TaxPayment, error)
	Refresh(ctx context.Context, creds banktoken.Credentials, id string) (*payment.TaxPayment, error)
}

type TaxPaymentHandler struct {
	payments PaymentService
	creds    *Credentials
}

func NewTaxPaymentHandler(payments PaymentService, creds *Credentials) *TaxPaymentHandler {
	return &TaxPaymentHandler{payments: payments, creds: creds}
}

type SyncTaxesRequest struct {
	UserID string `json:"user_id"`
	TaxINN string `json:"tax_inn"`
}

type PayTaxRequest struct {
	BankID    string `json:"bank_id"`
	AccountID string `json:"account_id"`
	ClientID  string `json:"client_id"`
}

func (h *TaxPaymentHandler) HandleListTaxPayments(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{UserID: r.URL.Query().Get("user_id")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, payment.Status(strings.TrimSpace(s)))
		}
	}

	list, err := h.payments.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*payment.TaxPayment{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleSyncTaxes creates the previous month's tax record when missing.
func (h *TaxPaymentHandler) HandleSyncTaxes(w http.ResponseWriter, r *http.Request) {
	var req SyncTaxesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.TaxINN) == "" {
		writeError(w, r, apperr.New(apperr.InvalidRequest, "user_id and tax_inn are required"))
		return
	}

	res, err := h.payments.SyncTaxes(r.Context(), req.UserID, req.TaxINN)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (h *TaxPaymentHandler) HandleGetTaxPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandlePayTax starts the payment. Banks with manual payment approval leave
// the record awaiting_payment_approval with a redirect_url to follow before
// calling confirm. A payment the bank rejects is returned as an error.
func (h *TaxPaymentHandler) HandlePayTax(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req PayTaxRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	bankID, err := bank.ParseID(req.BankID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = creds.ClientID
	}

	p, err := h.payments.Pay(r.Context(), creds, r.PathValue("id"), payment.PayRequest{
		BankID:    bankID,
		AccountID: req.AccountID,
		ClientID:  clientID,
	})
	h.writePayment(w, r, p, err)
}

// HandleConfirmTax resumes a payment after the user approved its consent.
func (h *TaxPaymentHandler) HandleConfirmTax(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.Confirm(r.Context(), creds, r.PathValue("id"))
	h.writePayment(w, r, p, err)
}

func (h *TaxPaymentHandler) HandleRefreshTax(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.From(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.Refresh(r.Context(), creds, r.PathValue("id"))
	h.writePayment(w, r, p, err)
}

func (h *TaxPaymentHandler) writePayment(w http.ResponseWriter, r *http.Request, p *payment.TaxPayment, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if p.Status == payment.StatusAwaitingApproval || p.Status == payment.StatusProcessing {
		status = http.StatusAccepted
	}
	writeJSON(w, status, p)
}
