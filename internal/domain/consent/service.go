package consent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/shared/apperr"
)

// Service drives the consent lifecycle and keeps local records in step with
// what the bank reports.
type Service struct {
	repo     Repository
	gateways bank.Registry
	tokens   banktoken.Source
	now      func() time.Time
}

func NewService(repo Repository, gateways bank.Registry, tokens banktoken.Source) *Service {
	return &Service{
		repo:     repo,
		gateways: gateways,
		tokens:   tokens,
		now:      time.Now,
	}
}

// Ensure returns an authorized consent for the client, creating one at the
// bank only when none exists locally. Manual-approval banks yield an
// awaiting_authorization record carrying the redirect.
func (s *Service) Ensure(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) (*Consent, error) {
	if clientID == "" {
		return nil, ErrClientIDRequired
	}

	existing, err := s.repo.FindAuthorized(ctx, bankID, clientID)
	switch {
	case err == nil && existing.Usable():
		return existing, nil
	case err != nil && !errors.Is(err, ErrConsentNotFound):
		return nil, err
	}

	var res *bank.ConsentResult
	err = s.withGateway(ctx, creds, bankID, func(gw bank.Gateway, token string) error {
		res, err = gw.CreateConsent(ctx, token, clientID)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &Consent{
		ID:          uuid.NewString(),
		Bank:        bankID,
		ClientID:    clientID,
		ConsentID:   res.ConsentID,
		RequestID:   res.RequestID,
		Status:      res.Status,
		RedirectURL: res.RedirectURL,
		ExpiresAt:   res.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Status == bank.ConsentAuthorized && c.ConsentID == "" {
		c.Status = bank.ConsentAwaitingAuthorization
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	log.Info().
		Str("bank", bankID.String()).
		Str("client_id", clientID).
		Str("status", string(c.Status)).
		Msg("consent created")
	return c, nil
}

// PollStatus re-reads the consent from the bank and reconciles the local
// record. A consent the bank no longer knows is deleted locally and reported
// through Outcome.Deleted instead of an error.
func (s *Service) PollStatus(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, ref bank.ConsentRef) (*Outcome, error) {
	return s.sync(ctx, creds, bankID, ref, "")
}

// ResolvePending turns an approved request into a usable consent id. The
// record stays awaiting_authorization while the user has not approved yet.
// clientID is used when no local record tracks the request.
func (s *Service) ResolvePending(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, requestID, clientID string) (*Outcome, error) {
	return s.sync(ctx, creds, bankID, bank.RequestIDRef(requestID), clientID)
}

func (s *Service) sync(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, ref bank.ConsentRef, createFor string) (*Outcome, error) {
	if ref.Value == "" {
		return nil, ErrIdentifierMissing
	}

	local, err := s.lookup(ctx, bankID, ref)
	if err != nil {
		return nil, err
	}

	var res *bank.ConsentResult
	err = s.withGateway(ctx, creds, bankID, func(gw bank.Gateway, token string) error {
		if ref.Kind == bank.RefRequestID {
			res, err = gw.GetConsentIDByRequestID(ctx, token, ref.Value)
		} else {
			res, err = gw.GetConsentStatus(ctx, token, ref.Value)
		}
		return err
	})
	if apperr.Is(err, apperr.ConsentNotFound) {
		return s.dropStale(ctx, local, ref)
	}
	if err != nil {
		return nil, err
	}

	if local == nil {
		c := s.fromResult(bankID, createFor, ref, res)
		if createFor == "" {
			return &Outcome{Consent: c}, nil
		}
		if err := s.repo.Create(ctx, c); err != nil {
			return nil, err
		}
		return &Outcome{Consent: c, Changed: true}, nil
	}

	return s.reconcile(ctx, local.ID, res)
}

// Revoke revokes the consent upstream and marks the local record revoked.
// A consent the bank does not know is treated as already revoked and its
// local record is removed, so repeated calls succeed.
func (s *Service) Revoke(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, consentID string) (*Outcome, error) {
	if consentID == "" {
		return nil, ErrIdentifierMissing
	}
	ref := bank.ConsentIDRef(consentID)

	local, err := s.lookup(ctx, bankID, ref)
	if err != nil {
		return nil, err
	}

	err = s.withGateway(ctx, creds, bankID, func(gw bank.Gateway, token string) error {
		return gw.RevokeConsent(ctx, token, consentID)
	})
	if apperr.Is(err, apperr.ConsentNotFound) {
		return s.dropStale(ctx, local, ref)
	}
	if err != nil {
		return nil, err
	}

	if local == nil {
		return &Outcome{Changed: true}, nil
	}
	updated, err := s.repo.Update(ctx, local.ID, func(c *Consent) error {
		c.Status = bank.ConsentRevoked
		c.RedirectURL = ""
		c.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("bank", bankID.String()).Str("consent_id", consentID).Msg("consent revoked")
	return &Outcome{Consent: updated, Changed: true}, nil
}

// Authorized returns the consent to use for data access.
func (s *Service) Authorized(ctx context.Context, bankID bank.ID, clientID string) (*Consent, error) {
	c, err := s.repo.FindAuthorized(ctx, bankID, clientID)
	if errors.Is(err, ErrConsentNotFound) {
		return nil, ErrNoAuthorized
	}
	if err != nil {
		return nil, err
	}
	if !c.Usable() {
		return nil, ErrNoAuthorized
	}
	return c, nil
}

// MarkRevoked records that the bank refused a consent, without calling it.
func (s *Service) MarkRevoked(ctx context.Context, bankID bank.ID, consentID string) error {
	c, err := s.repo.GetByConsentID(ctx, bankID, consentID)
	if errors.Is(err, ErrConsentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.repo.Update(ctx, c.ID, func(c *Consent) error {
		c.Status = bank.ConsentRevoked
		c.UpdatedAt = s.now()
		return nil
	})
	if err == nil {
		log.Warn().Str("bank", bankID.String()).Str("consent_id", consentID).Msg("consent rejected by bank, marked revoked")
	}
	return err
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Consent, error) {
	return s.repo.List(ctx, filter)
}

// ListAwaiting returns records still waiting for the user's approval.
func (s *Service) ListAwaiting(ctx context.Context, limit int) ([]*Consent, error) {
	return s.repo.List(ctx, ListFilter{Status: bank.ConsentAwaitingAuthorization, Limit: limit})
}

func (s *Service) lookup(ctx context.Context, bankID bank.ID, ref bank.ConsentRef) (*Consent, error) {
	var (
		c   *Consent
		err error
	)
	if ref.Kind == bank.RefRequestID {
		c, err = s.repo.GetByRequestID(ctx, bankID, ref.Value)
	} else {
		c, err = s.repo.GetByConsentID(ctx, bankID, ref.Value)
	}
	if errors.Is(err, ErrConsentNotFound) {
		return nil, nil
	}
	return c, err
}

func (s *Service) reconcile(ctx context.Context, id string, res *bank.ConsentResult) (*Outcome, error) {
	changed := false
	updated, err := s.repo.Update(ctx, id, func(c *Consent) error {
		changed = apply(c, res)
		if changed {
			c.UpdatedAt = s.now()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		log.Info().
			Str("bank", updated.Bank.String()).
			Str("client_id", updated.ClientID).
			Str("status", string(updated.Status)).
			Msg("consent status changed")
	}
	return &Outcome{Consent: updated, Changed: changed}, nil
}

func (s *Service) dropStale(ctx context.Context, local *Consent, ref bank.ConsentRef) (*Outcome, error) {
	if local == nil {
		return &Outcome{Deleted: true}, nil
	}
	if err := s.repo.Delete(ctx, local.ID); err != nil && !errors.Is(err, ErrConsentNotFound) {
		return nil, err
	}
	log.Info().
		Str("bank", local.Bank.String()).
		Str("ref", ref.String()).
		Msg("consent unknown to bank, local record deleted")
	return &Outcome{Consent: local, Deleted: true}, nil
}

func (s *Service) fromResult(bankID bank.ID, clientID string, ref bank.ConsentRef, res *bank.ConsentResult) *Consent {
	now := s.now()
	c := &Consent{
		ID:        uuid.NewString(),
		Bank:      bankID,
		ClientID:  clientID,
		Status:    bank.ConsentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ref.Kind == bank.RefRequestID {
		c.RequestID = ref.Value
	} else {
		c.ConsentID = ref.Value
	}
	apply(c, res)
	return c
}

func (s *Service) withGateway(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, fn func(gw bank.Gateway, token string) error) error {
	return banktoken.WithGateway(ctx, s.tokens, s.gateways, bankID, creds, fn)
}

// apply folds an upstream result into c and reports whether anything changed.
func apply(c *Consent, res *bank.ConsentResult) bool {
	before := *c

	if c.ConsentID == "" && res.ConsentID != "" {
		c.ConsentID = res.ConsentID
	}
	if c.RequestID == "" && res.RequestID != "" {
		c.RequestID = res.RequestID
	}

	next := res.Status
	if next == bank.ConsentAuthorized && c.ConsentID == "" {
		next = bank.ConsentAwaitingAuthorization
	}
	c.Status = advance(c.Status, next)

	switch c.Status {
	case bank.ConsentAwaitingAuthorization:
		if c.RedirectURL == "" {
			c.RedirectURL = res.RedirectURL
		}
	default:
		c.RedirectURL = ""
	}
	if res.ExpiresAt != nil {
		c.ExpiresAt = res.ExpiresAt
	}

	return c.Status != before.Status || c.ConsentID != before.ConsentID || c.RedirectURL != before.RedirectURL
}
