package banktoken

import (
	"context"

	"syntax/internal/domain/bank"
	"syntax/internal/shared/apperr"
)

// Credentials is the material a session carries for minting bank tokens.
// SessionToken was issued by SessionBank when the session was created and
// is the only usable token when ClientSecret is empty.
type Credentials struct {
	ClientID     string
	ClientSecret string
	SessionBank  bank.ID
	SessionToken string
}

// Token returns a bearer token for bankID, preferring a cached or freshly
// minted one and falling back to the session's own token.
func (c *Cache) Token(ctx context.Context, bankID bank.ID, creds Credentials) (string, error) {
	if creds.ClientID == "" {
		return "", apperr.New(apperr.AuthenticationFailed, "client_id is required")
	}
	if creds.ClientSecret != "" {
		tok, err := c.Get(ctx, bankID, creds.ClientID, creds.ClientSecret)
		if err != nil {
			return "", err
		}
		return tok.AccessToken, nil
	}
	if bankID == creds.SessionBank && creds.SessionToken != "" {
		return creds.SessionToken, nil
	}
	return "", apperr.Newf(apperr.AuthenticationFailed,
		"session carries no client secret, cannot obtain a token for %s", bankID)
}

// Forget drops the cached token behind creds after the bank rejected it.
func (c *Cache) Forget(bankID bank.ID, creds Credentials) {
	if creds.ClientSecret != "" {
		c.Invalidate(bankID, creds.ClientID, creds.ClientSecret)
	}
}

// Source hands out bank tokens for session credentials.
type Source interface {
	Token(ctx context.Context, bankID bank.ID, creds Credentials) (string, error)
	Forget(bankID bank.ID, creds Credentials)
}

// WithGateway resolves the gateway and a token for bankID and runs fn. A
// token the bank rejects is dropped from the cache; the call is not retried.
func WithGateway(ctx context.Context, src Source, gateways bank.Registry, bankID bank.ID, creds Credentials, fn func(gw bank.Gateway, token string) error) error {
	gw, err := gateways.Get(bankID)
	if err != nil {
		return err
	}
	token, err := src.Token(ctx, bankID, creds)
	if err != nil {
		return err
	}
	err = fn(gw, token)
	if apperr.Is(err, apperr.AuthenticationFailed) {
		src.Forget(bankID, creds)
	}
	return err
}
