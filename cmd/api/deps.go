package main

import (
	"github.com/rs/zerolog/log"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/domain/consent"
	"syntax/internal/domain/payment"
	"syntax/internal/domain/receipt"
	"syntax/internal/domain/transaction"
	"syntax/internal/infrastructure/bankapi"
	"syntax/internal/infrastructure/postgres"
	httphandlers "syntax/internal/interfaces/http"
	"syntax/internal/interfaces/scheduler"
	"syntax/internal/shared/auth"
	"syntax/internal/shared/cache"
	"syntax/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB       *postgres.DB
	Gateways bank.Registry
	Codec    *auth.SessionCodec
	Tokens   *banktoken.Cache

	Consents     *consent.Service
	Transactions *transaction.Service
	Payments     *payment.Service
	Receipts     *receipt.Service

	// Handlers
	AuthHandler       *httphandlers.AuthHandler
	BankHandler       *httphandlers.BankHandler
	ConsentHandler    *httphandlers.ConsentHandler
	AccountHandler    *httphandlers.AccountHandler
	TaxPaymentHandler *httphandlers.TaxPaymentHandler
	ReceiptHandler    *httphandlers.ReceiptHandler
	HealthHandler     *httphandlers.HealthHandler

	// Reconciler feeds the scheduler. Nil without team credentials.
	Reconciler *scheduler.Reconciler
}

// NewGateways builds one gateway per configured bank URL.
func NewGateways(cfg config.BanksConfig) (bank.Registry, error) {
	return bankapi.NewRegistry(cfg.BaseURLs, bankapi.Config{
		Timeout:            cfg.Timeout,
		AuthTimeout:        cfg.AuthTimeout,
		RequestingBank:     cfg.ClientID,
		RequestingBankName: cfg.RequestingBankName,
	})
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("connected to database")

	deps, err := newDependencies(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return deps, nil
}

func newDependencies(cfg *config.Config, db *postgres.DB) (*Dependencies, error) {
	gateways, err := NewGateways(cfg.Banks)
	if err != nil {
		return nil, err
	}
	codec, err := auth.NewCodec(cfg.JWT.Secret, cfg.Encryption.Key, cfg.JWT.SessionTTL)
	if err != nil {
		return nil, err
	}
	authBank, err := bank.ParseID(cfg.Banks.AuthBank)
	if err != nil {
		return nil, err
	}

	tokens := banktoken.NewCache(gateways)
	pages := cache.NewTTL[*bank.TransactionPage]("transactions", cfg.Cache.TransactionTTL)

	consents := consent.NewService(postgres.NewConsentRepository(db), gateways, tokens)
	transactions := transaction.NewService(consents, gateways, tokens, pages)
	payments := payment.NewService(postgres.NewTaxPaymentRepository(db), gateways, tokens, transactions, payment.Options{
		AllowUnresolvedAccount: cfg.Payments.AllowUnresolvedAccount,
		ApprovalTimeout:        cfg.Payments.ApprovalTimeout,
	})
	receipts := receipt.NewService(postgres.NewReceiptRepository(db))

	creds := httphandlers.NewCredentials(authBank)

	deps := &Dependencies{
		DB:           db,
		Gateways:     gateways,
		Codec:        codec,
		Tokens:       tokens,
		Consents:     consents,
		Transactions: transactions,
		Payments:     payments,
		Receipts:     receipts,

		AuthHandler:       httphandlers.NewAuthHandler(tokens, codec, authBank),
		BankHandler:       httphandlers.NewBankHandler(gateways),
		ConsentHandler:    httphandlers.NewConsentHandler(consents, creds),
		AccountHandler:    httphandlers.NewAccountHandler(transactions, creds),
		TaxPaymentHandler: httphandlers.NewTaxPaymentHandler(payments, creds),
		ReceiptHandler:    httphandlers.NewReceiptHandler(receipts),
		HealthHandler:     httphandlers.NewHealthHandler(db, gateways, tokens.Len, transactions.CacheSize, version),
	}

	if cfg.Banks.HasTeamCredentials() {
		deps.Reconciler = scheduler.NewReconciler(payments, consents, banktoken.Credentials{
			ClientID:     cfg.Banks.ClientID,
			ClientSecret: cfg.Banks.ClientSecret,
		}, 0).WithCaches(transactions)
	}

	log.Info().Interface("banks", gateways.IDs()).Str("auth_bank", authBank.String()).Msg("dependencies initialized")
	return deps, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
