package http

import (
	"context"
	"net/http"

	"syntax/internal/domain/receipt"
	"syntax/internal/domain/transaction"
)

type ReceiptService interface {
	Create(ctx context.Context, params receipt.CreateParams) (*receipt.Receipt, error)
	Get(ctx context.Context, id string) (*receipt.Receipt, error)
	List(ctx context.Context, filter receipt.ListFilter) ([]*receipt.Receipt, error)
	Update(ctx context.Context, id string, params receipt.UpdateParams) (*receipt.Receipt, error)
	Delete(ctx context.Context, id string) error
	Send(ctx context.Context, id string) (*receipt.Receipt, error)
}

type ReceiptHandler struct {
	receipts ReceiptService
}

func NewReceiptHandler(receipts ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

func (h *ReceiptHandler) HandleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var params receipt.CreateParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, r, err)
		return
	}

	rc, err := h.receipts.Create(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rc)
}

// HandleListReceipts accepts date_from, date_to and status filters.
func (h *ReceiptHandler) HandleListReceipts(w http.ResponseWriter, r *http.Request) {
	var (
		filter receipt.ListFilter
		err    error
	)
	values := r.URL.Query()
	if filter.From, err = transaction.ParseDateBound(values.Get("date_from"), false); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.To, err = transaction.ParseDateBound(values.Get("date_to"), true); err != nil {
		writeError(w, r, err)
		return
	}
	if raw := values.Get("status"); raw != "" {
		filter.Status = receipt.Status(raw)
		if !receipt.IsValidStatus(filter.Status) {
			writeError(w, r, receipt.ErrInvalidStatus)
			return
		}
	}

	list, err := h.receipts.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*receipt.Receipt{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ReceiptHandler) HandleGetReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := h.receipts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (h *ReceiptHandler) HandleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	var params receipt.UpdateParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, r, err)
		return
	}

	rc, err := h.receipts.Update(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (h *ReceiptHandler) HandleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := h.receipts.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSendReceipt submits the receipt to the tax service.
func (h *ReceiptHandler) HandleSendReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := h.receipts.Send(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}
