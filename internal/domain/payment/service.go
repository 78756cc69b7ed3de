package payment

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/shared/apperr"
)

// DefaultApprovalTimeout bounds how long a payment may wait for the user
// to approve its consent before the sweep gives up on it.
const DefaultApprovalTimeout = 24 * time.Hour

// Accounts lists the client's accounts at a bank; used to resolve the real
// account number behind an opaque account id.
type Accounts interface {
	Accounts(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) ([]bank.Account, error)
}

type Options struct {
	// AllowUnresolvedAccount lets a payment proceed with the opaque account
	// id when the account number cannot be found.
	AllowUnresolvedAccount bool
	ApprovalTimeout        time.Duration
}

// Service sequences payment consent, approval, account resolution and
// submission for tax records. Any failure along the way leaves the record
// failed with the error message.
type Service struct {
	repo     Repository
	gateways bank.Registry
	tokens   banktoken.Source
	accounts Accounts
	opts     Options

	now    func() time.Time
	amount func() decimal.Decimal
}

func NewService(repo Repository, gateways bank.Registry, tokens banktoken.Source, accounts Accounts, opts Options) *Service {
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = DefaultApprovalTimeout
	}
	return &Service{
		repo:     repo,
		gateways: gateways,
		tokens:   tokens,
		accounts: accounts,
		opts:     opts,
		now:      time.Now,
		amount:   randomTaxAmount,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*TaxPayment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*TaxPayment, error) {
	return s.repo.List(ctx, filter)
}

// SyncTaxes creates the record for the previous month unless it exists.
// Amounts are generated; there is no upstream tax service.
func (s *Service) SyncTaxes(ctx context.Context, userID, inn string) (*SyncResult, error) {
	if userID == "" {
		return nil, apperr.New(apperr.InvalidRequest, "user_id is required")
	}

	now := s.now()
	period, purpose := previousPeriod(now, inn)

	existing, err := s.repo.FindByPeriod(ctx, userID, period)
	if err == nil {
		return &SyncResult{Payment: existing}, nil
	}
	if !errors.Is(err, ErrTaxPaymentNotFound) {
		return nil, err
	}

	p := &TaxPayment{
		ID:               uuid.NewString(),
		UserID:           userID,
		TaxPeriod:        period,
		TaxAmount:        s.amount(),
		TaxINN:           inn,
		RecipientName:    RecipientName,
		RecipientINN:     RecipientINN,
		RecipientKPP:     RecipientKPP,
		RecipientAccount: RecipientAccount,
		RecipientBank:    RecipientBank,
		RecipientBIK:     RecipientBIK,
		PaymentPurpose:   purpose,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", userID).Str("period", period).Str("amount", p.TaxAmount.StringFixed(2)).Msg("tax payment created")
	return &SyncResult{Created: true, Payment: p}, nil
}

// Pay starts paying a tax from the selected account. For banks that approve
// payment consents manually the record is left awaiting_payment_approval
// with a redirect; Confirm resumes it.
func (s *Service) Pay(ctx context.Context, creds banktoken.Credentials, id string, req PayRequest) (*TaxPayment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	gw, err := s.gateways.Get(req.BankID)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Update(ctx, id, func(p *TaxPayment) error {
		switch p.Status {
		case StatusPaid:
			return ErrAlreadyPaid
		case StatusProcessing:
			return ErrInProgress
		}
		clientID := req.ClientID
		if clientID == "" {
			clientID = p.UserID
		}
		if clientID == "" {
			return apperr.New(apperr.InvalidRequest, "client_id is required")
		}

		p.Status = StatusProcessing
		p.ClientID = clientID
		p.BankID = req.BankID
		p.AccountID = req.AccountID
		p.DebtorIdentification = ""
		p.AccountResolved = false
		p.ConsentID, p.RequestID, p.RedirectURL, p.PaymentID = "", "", "", ""
		p.ErrorMessage = ""
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	debtor, resolved := s.resolveAccount(ctx, creds, p)
	if !resolved && !s.opts.AllowUnresolvedAccount {
		return s.fail(ctx, p.ID, apperr.Newf(apperr.AccountIdentificationUnresolved,
			"account %s was not found at %s, cannot determine the account number", p.AccountID, p.BankID))
	}

	var consent *bank.ConsentResult
	err = banktoken.WithGateway(ctx, s.tokens, s.gateways, p.BankID, creds, func(gw bank.Gateway, token string) error {
		consent, err = gw.CreatePaymentConsent(ctx, token, bank.PaymentConsentRequest{
			ClientID:      p.ClientID,
			Amount:        p.TaxAmount,
			Currency:      Currency,
			DebtorAccount: debtor,
			Creditor:      p.Creditor(),
		})
		return err
	})
	if err != nil {
		return s.fail(ctx, p.ID, err)
	}

	p, err = s.repo.Update(ctx, p.ID, func(p *TaxPayment) error {
		p.DebtorIdentification = debtor
		p.AccountResolved = resolved
		p.ConsentID = consent.ConsentID
		p.RequestID = consent.RequestID
		if consent.ConsentID == "" || consent.Status != bank.ConsentAuthorized {
			p.Status = StatusAwaitingApproval
			p.RedirectURL = consent.RedirectURL
		}
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		// The bank already holds a consent for this payment; leave no
		// record stuck in processing.
		return s.fail(ctx, id, err)
	}

	if p.Status == StatusAwaitingApproval {
		log.Info().
			Str("tax_payment_id", p.ID).
			Str("bank", p.BankID.String()).
			Str("request_id", p.RequestID).
			Str("approval", string(gw.PaymentApproval())).
			Msg("payment consent awaiting approval")
		return p, nil
	}
	return s.submit(ctx, creds, p)
}

// Confirm resumes a payment whose consent needed manual approval. While
// the bank still reports the consent pending the record is returned as is.
func (s *Service) Confirm(ctx context.Context, creds banktoken.Credentials, id string) (*TaxPayment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusAwaitingApproval {
		return nil, ErrNotAwaiting
	}

	ref := bank.RequestIDRef(p.RequestID)
	if p.ConsentID != "" {
		ref = bank.ConsentIDRef(p.ConsentID)
	}

	var consent *bank.ConsentResult
	err = banktoken.WithGateway(ctx, s.tokens, s.gateways, p.BankID, creds, func(gw bank.Gateway, token string) error {
		consent, err = gw.GetPaymentConsent(ctx, token, ref)
		return err
	})
	if err != nil {
		return s.fail(ctx, p.ID, err)
	}

	switch {
	case consent.Status == bank.ConsentRevoked:
		return s.fail(ctx, p.ID, apperr.New(apperr.PaymentRejected, "payment consent was rejected"))
	case consent.Status != bank.ConsentAuthorized || consent.ConsentID == "":
		return p, nil
	}

	claimed := false
	p, err = s.repo.Update(ctx, p.ID, func(p *TaxPayment) error {
		if p.Status != StatusAwaitingApproval {
			return nil
		}
		claimed = true
		p.ConsentID = consent.ConsentID
		p.RedirectURL = ""
		p.Status = StatusProcessing
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrNotAwaiting
	}
	return s.submit(ctx, creds, p)
}

// Refresh polls the bank for a submitted payment and records the outcome.
func (s *Service) Refresh(ctx context.Context, creds banktoken.Credentials, id string) (*TaxPayment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusProcessing || p.PaymentID == "" {
		return p, nil
	}

	var res *bank.PaymentResult
	err = banktoken.WithGateway(ctx, s.tokens, s.gateways, p.BankID, creds, func(gw bank.Gateway, token string) error {
		res, err = gw.GetPaymentStatus(ctx, token, p.PaymentID)
		return err
	})
	if err != nil {
		// A failed poll says nothing about the payment itself.
		return nil, err
	}

	next := MapPaymentStatus(res.Status)
	if next == StatusProcessing {
		return p, nil
	}
	return s.settle(ctx, p.ID, p.PaymentID, next)
}

// FailStaleApprovals fails records whose payment consent has waited for
// approval longer than the configured timeout. Their consent is never used.
func (s *Service) FailStaleApprovals(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.opts.ApprovalTimeout)
	stale, err := s.repo.List(ctx, ListFilter{
		Statuses:      []Status{StatusAwaitingApproval},
		UpdatedBefore: &cutoff,
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range stale {
		_, err := s.repo.Update(ctx, p.ID, func(p *TaxPayment) error {
			if p.Status != StatusAwaitingApproval {
				return nil
			}
			p.Status = StatusFailed
			p.ErrorMessage = approvalTimedOut
			p.RedirectURL = ""
			p.UpdatedAt = s.now()
			n++
			return nil
		})
		if err != nil {
			return n, err
		}
		log.Warn().Str("tax_payment_id", p.ID).Str("request_id", p.RequestID).Msg(approvalTimedOut)
	}
	return n, nil
}

// ListProcessing returns submitted payments that still need polling.
func (s *Service) ListProcessing(ctx context.Context, limit int) ([]*TaxPayment, error) {
	return s.repo.List(ctx, ListFilter{Statuses: []Status{StatusProcessing}, Limit: limit})
}

func (s *Service) submit(ctx context.Context, creds banktoken.Credentials, p *TaxPayment) (*TaxPayment, error) {
	var res *bank.PaymentResult
	err := banktoken.WithGateway(ctx, s.tokens, s.gateways, p.BankID, creds, func(gw bank.Gateway, token string) error {
		var err error
		res, err = gw.SubmitPayment(ctx, token, bank.PaymentRequest{
			ConsentID:     p.ConsentID,
			ClientID:      p.ClientID,
			Amount:        p.TaxAmount,
			Currency:      Currency,
			DebtorAccount: p.DebtorIdentification,
			Creditor:      p.Creditor(),
			Comment:       p.PaymentPurpose,
		})
		return err
	})
	if err != nil {
		if !p.AccountResolved && (apperr.Is(err, apperr.InvalidRequest) || apperr.Is(err, apperr.PaymentRejected)) {
			err = apperr.Wrap(apperr.AccountIdentificationUnresolved, err,
				"bank rejected the payment made with an unresolved account number")
		}
		return s.fail(ctx, p.ID, err)
	}

	status := MapPaymentStatus(res.Status)
	log.Info().
		Str("tax_payment_id", p.ID).
		Str("payment_id", res.PaymentID).
		Str("upstream_status", res.Status).
		Str("status", string(status)).
		Msg("payment submitted")

	if status == StatusProcessing {
		return s.repo.Update(ctx, p.ID, func(p *TaxPayment) error {
			p.PaymentID = res.PaymentID
			p.UpdatedAt = s.now()
			return nil
		})
	}
	return s.settle(ctx, p.ID, res.PaymentID, status)
}

// settle records a terminal outcome. A rejected payment is returned as a
// PaymentRejected error alongside the record.
func (s *Service) settle(ctx context.Context, id, paymentID string, status Status) (*TaxPayment, error) {
	now := s.now()
	p, err := s.repo.Update(ctx, id, func(p *TaxPayment) error {
		p.PaymentID = paymentID
		p.Status = status
		p.UpdatedAt = now
		if status == StatusPaid {
			p.PaymentDate = &now
			p.ErrorMessage = ""
		} else {
			p.ErrorMessage = "payment rejected by bank"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if status == StatusFailed {
		return p, apperr.New(apperr.PaymentRejected, "payment rejected by bank")
	}
	return p, nil
}

// fail marks the record failed with err's message and returns err.
func (s *Service) fail(ctx context.Context, id string, cause error) (*TaxPayment, error) {
	p, err := s.repo.Update(ctx, id, func(p *TaxPayment) error {
		p.Status = StatusFailed
		p.ErrorMessage = cause.Error()
		p.RedirectURL = ""
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("tax_payment_id", id).Msg("failed to record payment failure")
		return nil, cause
	}
	log.Error().Err(cause).Str("tax_payment_id", id).Msg("tax payment failed")
	return p, cause
}

// resolveAccount finds the upstream account number behind p.AccountID. When
// it cannot, the opaque id is returned with resolved=false.
func (s *Service) resolveAccount(ctx context.Context, creds banktoken.Credentials, p *TaxPayment) (string, bool) {
	accounts, err := s.accounts.Accounts(ctx, creds, p.BankID, p.ClientID)
	if err != nil {
		log.Warn().Err(err).Str("tax_payment_id", p.ID).Msg("could not list accounts to resolve account number")
		return p.AccountID, false
	}
	for _, a := range accounts {
		if a.ID == p.AccountID || a.Identification == p.AccountID {
			if a.Identification != "" {
				return a.Identification, true
			}
			break
		}
	}
	return p.AccountID, false
}

func randomTaxAmount() decimal.Decimal {
	return decimal.NewFromFloat(1000 + rand.Float64()*49000).Round(2)
}
