package consent

import (
	"context"

	"syntax/internal/domain/bank"
)

// Repository persists consent records. Lookups return ErrConsentNotFound
// when nothing matches.
type Repository interface {
	Create(ctx context.Context, c *Consent) error

	GetByConsentID(ctx context.Context, bankID bank.ID, consentID string) (*Consent, error)
	GetByRequestID(ctx context.Context, bankID bank.ID, requestID string) (*Consent, error)

	// FindAuthorized returns the most recently updated authorized consent.
	FindAuthorized(ctx context.Context, bankID bank.ID, clientID string) (*Consent, error)

	List(ctx context.Context, filter ListFilter) ([]*Consent, error)

	// Update runs fn on the locked row and writes the result back in the
	// same transaction.
	Update(ctx context.Context, id string, fn func(c *Consent) error) (*Consent, error)

	Delete(ctx context.Context, id string) error
}
