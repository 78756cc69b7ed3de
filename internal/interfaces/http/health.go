package http

import (
	"context"
	"net/http"
	"time"

	"syntax/internal/domain/bank"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db        Pinger
	gateways  bank.Registry
	tokenSize func() int
	pageSize  func() int
	version   string
}

func NewHealthHandler(db Pinger, gateways bank.Registry, tokenSize, pageSize func() int, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		gateways:  gateways,
		tokenSize: tokenSize,
		pageSize:  pageSize,
		version:   version,
	}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type DetailedHealthResponse struct {
	Status           string    `json:"status"`
	Version          string    `json:"version"`
	Database         string    `json:"database"`
	DatabaseError    string    `json:"database_error,omitempty"`
	Banks            []bank.ID `json:"banks"`
	CachedBankTokens int       `json:"cached_bank_tokens"`
	CachedTxPages    int       `json:"cached_transaction_pages"`
}

// HandleDetailedHealth reports database reachability and cache sizes. It
// answers 503 when the database is down.
func (h *HealthHandler) HandleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	resp := DetailedHealthResponse{
		Status:   "ok",
		Version:  h.version,
		Database: "ok",
		Banks:    h.gateways.IDs(),
	}
	if h.tokenSize != nil {
		resp.CachedBankTokens = h.tokenSize()
	}
	if h.pageSize != nil {
		resp.CachedTxPages = h.pageSize()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		resp.DatabaseError = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
