package payment

import "context"

// Repository persists tax payment records. Lookups return
// ErrTaxPaymentNotFound when nothing matches.
type Repository interface {
	Create(ctx context.Context, p *TaxPayment) error
	GetByID(ctx context.Context, id string) (*TaxPayment, error)
	FindByPeriod(ctx context.Context, userID, period string) (*TaxPayment, error)
	List(ctx context.Context, filter ListFilter) ([]*TaxPayment, error)

	// Update runs fn on the locked row and writes the result back in the
	// same transaction. An error from fn aborts the update.
	Update(ctx context.Context, id string, fn func(p *TaxPayment) error) (*TaxPayment, error)
}
