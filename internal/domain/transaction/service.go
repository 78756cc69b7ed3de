package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/banktoken"
	"syntax/internal/domain/consent"
	"syntax/internal/shared/apperr"
	"syntax/internal/shared/cache"
)

// DefaultCacheTTL is how long a fetched transaction page is served from
// memory.
const DefaultCacheTTL = 15 * time.Minute

// Consents is the part of the consent orchestrator data reads depend on.
type Consents interface {
	Authorized(ctx context.Context, bankID bank.ID, clientID string) (*consent.Consent, error)
	MarkRevoked(ctx context.Context, bankID bank.ID, consentID string) error
}

// Service reads accounts and transactions through the authorized consent
// of a client. Transaction pages are cached; filters run on the cached
// page so different filters share one upstream fetch.
type Service struct {
	consents Consents
	gateways bank.Registry
	tokens   banktoken.Source
	cache    *cache.TTL[*bank.TransactionPage]
}

func NewService(consents Consents, gateways bank.Registry, tokens banktoken.Source, pages *cache.TTL[*bank.TransactionPage]) *Service {
	if pages == nil {
		pages = cache.NewTTL[*bank.TransactionPage]("transactions", DefaultCacheTTL)
	}
	return &Service{
		consents: consents,
		gateways: gateways,
		tokens:   tokens,
		cache:    pages,
	}
}

// Accounts lists the client's accounts at one bank.
func (s *Service) Accounts(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) ([]bank.Account, error) {
	if clientID == "" {
		return nil, apperr.New(apperr.InvalidRequest, "client_id is required")
	}

	c, err := s.consents.Authorized(ctx, bankID, clientID)
	if err != nil {
		return nil, err
	}

	var accounts []bank.Account
	err = banktoken.WithGateway(ctx, s.tokens, s.gateways, bankID, creds, func(gw bank.Gateway, token string) error {
		accounts, err = gw.GetAccounts(ctx, token, c.ConsentID, clientID)
		return err
	})
	if err != nil {
		return nil, s.consentFailure(ctx, bankID, c.ConsentID, err)
	}
	if accounts == nil {
		accounts = []bank.Account{}
	}
	return accounts, nil
}

// Transactions returns one page of transactions, served from cache when a
// fresh copy exists.
func (s *Service) Transactions(ctx context.Context, creds banktoken.Credentials, q Query) (*Result, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}

	c, err := s.consents.Authorized(ctx, q.Bank, q.ClientID)
	if err != nil {
		return nil, err
	}

	res, err := s.cache.GetOrFetch(ctx, cacheKey(q), func(ctx context.Context) (*bank.TransactionPage, error) {
		var page *bank.TransactionPage
		err := banktoken.WithGateway(ctx, s.tokens, s.gateways, q.Bank, creds, func(gw bank.Gateway, token string) error {
			var err error
			page, err = gw.GetTransactions(ctx, token, c.ConsentID, bank.TransactionQuery{
				AccountID: q.AccountID,
				ClientID:  q.ClientID,
				Page:      q.Page,
				Limit:     q.Limit,
			})
			return err
		})
		return page, err
	})
	if err != nil {
		return nil, s.consentFailure(ctx, q.Bank, c.ConsentID, err)
	}

	out := &Result{FromCache: res.FromCache}
	if res.Value != nil {
		out.Transactions = q.Filter.Apply(res.Value.Transactions)
		out.Pagination = res.Value.Pagination
	}
	if out.Transactions == nil {
		out.Transactions = []bank.Transaction{}
	}
	if res.FromCache {
		age := int(res.Age / time.Second)
		out.CacheAgeSeconds = &age
	}
	return out, nil
}

// CacheSize reports the number of cached transaction pages.
func (s *Service) CacheSize() int {
	return s.cache.Len()
}

// PurgeCache drops expired transaction pages and reports how many.
func (s *Service) PurgeCache() int {
	return s.cache.Purge()
}

func (s *Service) consentFailure(ctx context.Context, bankID bank.ID, consentID string, err error) error {
	if apperr.Is(err, apperr.ConsentInvalidOrRevoked) {
		if markErr := s.consents.MarkRevoked(ctx, bankID, consentID); markErr != nil {
			log.Error().Err(markErr).Str("bank", bankID.String()).Msg("failed to mark consent revoked")
		}
	}
	return err
}

func cacheKey(q Query) string {
	account := q.AccountID
	if account == "" {
		account = "*"
	}
	return fmt.Sprintf("%s|%s|%s|%d|%d", q.Bank, q.ClientID, account, q.Page, q.Limit)
}
