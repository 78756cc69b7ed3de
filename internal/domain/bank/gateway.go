package bank

import (
	"context"

	"syntax/internal/shared/apperr"
)

// Gateway is the uniform operation set every bank dialect implements.
// Implementations translate transport failures into apperr kinds.
type Gateway interface {
	Bank() ID
	DisplayName() string
	BaseURL() string
	AccountApproval() ApprovalMode
	PaymentApproval() ApprovalMode

	Authenticate(ctx context.Context, clientID, clientSecret string) (*Token, error)

	CreateConsent(ctx context.Context, token, clientID string) (*ConsentResult, error)
	GetConsentStatus(ctx context.Context, token, consentID string) (*ConsentResult, error)
	GetConsentIDByRequestID(ctx context.Context, token, requestID string) (*ConsentResult, error)
	RevokeConsent(ctx context.Context, token, consentID string) error

	GetAccounts(ctx context.Context, token, consentID, clientID string) ([]Account, error)
	GetTransactions(ctx context.Context, token, consentID string, q TransactionQuery) (*TransactionPage, error)

	CreatePaymentConsent(ctx context.Context, token string, req PaymentConsentRequest) (*ConsentResult, error)
	GetPaymentConsent(ctx context.Context, token string, ref ConsentRef) (*ConsentResult, error)
	SubmitPayment(ctx context.Context, token string, req PaymentRequest) (*PaymentResult, error)
	GetPaymentStatus(ctx context.Context, token, paymentID string) (*PaymentResult, error)
}

// Registry selects the gateway for a bank.
type Registry map[ID]Gateway

func NewRegistry(gateways ...Gateway) Registry {
	r := make(Registry, len(gateways))
	for _, g := range gateways {
		r[g.Bank()] = g
	}
	return r
}

func (r Registry) Get(id ID) (Gateway, error) {
	g, ok := r[id]
	if !ok {
		return nil, apperr.Newf(apperr.InvalidRequest, "bank %q is not configured", id)
	}
	return g, nil
}

// IDs lists configured banks in display order.
func (r Registry) IDs() []ID {
	ids := make([]ID, 0, len(r))
	for _, id := range All() {
		if _, ok := r[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
