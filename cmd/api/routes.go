package main

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"syntax/internal/shared/config"
	"syntax/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", deps.HealthHandler.HandleHealth)
	mux.HandleFunc("GET /health/detailed", deps.HealthHandler.HandleDetailedHealth)

	// Public routes
	mux.HandleFunc("POST /v1/auth/token", deps.AuthHandler.HandleAuthenticate)
	mux.HandleFunc("POST /v1/auth/logout", deps.AuthHandler.HandleLogout)
	mux.HandleFunc("GET /v1/banks", deps.BankHandler.HandleListBanks)

	// Protected routes
	protect := middleware.Auth(deps.Codec)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}

	handle("POST /v1/consents", deps.ConsentHandler.HandleCreateConsent)
	handle("GET /v1/consents", deps.ConsentHandler.HandleListConsents)
	handle("GET /v1/consents/{id}", deps.ConsentHandler.HandleConsentStatus)
	handle("DELETE /v1/consents/{id}", deps.ConsentHandler.HandleRevokeConsent)
	handle("POST /v1/consents/requests/{request_id}/resolve", deps.ConsentHandler.HandleResolveRequest)

	handle("GET /v1/accounts", deps.AccountHandler.HandleListAccounts)
	handle("GET /v1/accounts/{account_id}/transactions", deps.AccountHandler.HandleAccountTransactions)
	handle("GET /v1/transactions", deps.AccountHandler.HandleClientTransactions)

	handle("GET /v1/tax-payments", deps.TaxPaymentHandler.HandleListTaxPayments)
	handle("POST /v1/tax-payments/sync", deps.TaxPaymentHandler.HandleSyncTaxes)
	handle("GET /v1/tax-payments/{id}", deps.TaxPaymentHandler.HandleGetTaxPayment)
	handle("POST /v1/tax-payments/{id}/pay", deps.TaxPaymentHandler.HandlePayTax)
	handle("POST /v1/tax-payments/{id}/confirm", deps.TaxPaymentHandler.HandleConfirmTax)
	handle("POST /v1/tax-payments/{id}/refresh", deps.TaxPaymentHandler.HandleRefreshTax)

	handle("GET /v1/receipts", deps.ReceiptHandler.HandleListReceipts)
	handle("POST /v1/receipts", deps.ReceiptHandler.HandleCreateReceipt)
	handle("GET /v1/receipts/{id}", deps.ReceiptHandler.HandleGetReceipt)
	handle("PUT /v1/receipts/{id}", deps.ReceiptHandler.HandleUpdateReceipt)
	handle("DELETE /v1/receipts/{id}", deps.ReceiptHandler.HandleDeleteReceipt)
	handle("POST /v1/receipts/{id}/send", deps.ReceiptHandler.HandleSendReceipt)

	// Tracing sits right outside the mux so it sees the matched pattern.
	var handler http.Handler = middleware.Tracing(mux)

	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Info().Msg("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	handler = middleware.NoStore(handler)
	handler = middleware.CORS(cfg.Server.AllowedHosts)(handler)
	handler = middleware.Logging(handler)
	handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)

	return handler
}
