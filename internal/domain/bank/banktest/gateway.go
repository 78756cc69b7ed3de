// Package banktest provides a configurable bank.Gateway for tests.
package banktest

import (
	"context"
	"sync/atomic"

	"syntax/internal/domain/bank"
)

// Gateway implements bank.Gateway with overridable funcs. Unset funcs
// return zero values. Calls counts every upstream operation.
type Gateway struct {
	ID          bank.ID
	AccountMode bank.ApprovalMode
	PaymentMode bank.ApprovalMode
	Calls       atomic.Int64
	AuthCalls   atomic.Int64

	AuthenticateFunc            func(ctx context.Context, clientID, clientSecret string) (*bank.Token, error)
	CreateConsentFunc           func(ctx context.Context, token, clientID string) (*bank.ConsentResult, error)
	GetConsentStatusFunc        func(ctx context.Context, token, consentID string) (*bank.ConsentResult, error)
	GetConsentIDByRequestIDFunc func(ctx context.Context, token, requestID string) (*bank.ConsentResult, error)
	RevokeConsentFunc           func(ctx context.Context, token, consentID string) error
	GetAccountsFunc             func(ctx context.Context, token, consentID, clientID string) ([]bank.Account, error)
	GetTransactionsFunc         func(ctx context.Context, token, consentID string, q bank.TransactionQuery) (*bank.TransactionPage, error)
	CreatePaymentConsentFunc    func(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error)
	GetPaymentConsentFunc       func(ctx context.Context, token string, ref bank.ConsentRef) (*bank.ConsentResult, error)
	SubmitPaymentFunc           func(ctx context.Context, token string, req bank.PaymentRequest) (*bank.PaymentResult, error)
	GetPaymentStatusFunc        func(ctx context.Context, token, paymentID string) (*bank.PaymentResult, error)
}

var _ bank.Gateway = (*Gateway)(nil)

func (g *Gateway) Bank() bank.ID       { return g.ID }
func (g *Gateway) DisplayName() string { return string(g.ID) }
func (g *Gateway) BaseURL() string     { return "https://" + string(g.ID) + ".test" }

func (g *Gateway) AccountApproval() bank.ApprovalMode {
	if g.AccountMode == "" {
		return bank.ApprovalAuto
	}
	return g.AccountMode
}

func (g *Gateway) PaymentApproval() bank.ApprovalMode {
	if g.PaymentMode == "" {
		return bank.ApprovalAuto
	}
	return g.PaymentMode
}

func (g *Gateway) Authenticate(ctx context.Context, clientID, clientSecret string) (*bank.Token, error) {
	g.AuthCalls.Add(1)
	if g.AuthenticateFunc != nil {
		return g.AuthenticateFunc(ctx, clientID, clientSecret)
	}
	return &bank.Token{AccessToken: "token-" + clientID, ExpiresIn: 3600}, nil
}

func (g *Gateway) CreateConsent(ctx context.Context, token, clientID string) (*bank.ConsentResult, error) {
	g.Calls.Add(1)
	if g.CreateConsentFunc != nil {
		return g.CreateConsentFunc(ctx, token, clientID)
	}
	return nil, nil
}

func (g *Gateway) GetConsentStatus(ctx context.Context, token, consentID string) (*bank.ConsentResult, error) {
	g.Calls.Add(1)
	if g.GetConsentStatusFunc != nil {
		return g.GetConsentStatusFunc(ctx, token, consentID)
	}
	return nil, nil
}

func (g *Gateway) GetConsentIDByRequestID(ctx context.Context, token, requestID string) (*bank.ConsentResult, error) {
	g.Calls.Add(1)
	if g.GetConsentIDByRequestIDFunc != nil {
		return g.GetConsentIDByRequestIDFunc(ctx, token, requestID)
	}
	return nil, nil
}

func (g *Gateway) RevokeConsent(ctx context.Context, token, consentID string) error {
	g.Calls.Add(1)
	if g.RevokeConsentFunc != nil {
		return g.RevokeConsentFunc(ctx, token, consentID)
	}
	return nil
}

func (g *Gateway) GetAccounts(ctx context.Context, token, consentID, clientID string) ([]bank.Account, error) {
	g.Calls.Add(1)
	if g.GetAccountsFunc != nil {
		return g.GetAccountsFunc(ctx, token, consentID, clientID)
	}
	return nil, nil
}

func (g *Gateway) GetTransactions(ctx context.Context, token, consentID string, q bank.TransactionQuery) (*bank.TransactionPage, error) {
	g.Calls.Add(1)
	if g.GetTransactionsFunc != nil {
		return g.GetTransactionsFunc(ctx, token, consentID, q)
	}
	return &bank.TransactionPage{}, nil
}

func (g *Gateway) CreatePaymentConsent(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error) {
	g.Calls.Add(1)
	if g.CreatePaymentConsentFunc != nil {
		return g.CreatePaymentConsentFunc(ctx, token, req)
	}
	return nil, nil
}

func (g *Gateway) GetPaymentConsent(ctx context.Context, token string, ref bank.ConsentRef) (*bank.ConsentResult, error) {
	g.Calls.Add(1)
	if g.GetPaymentConsentFunc != nil {
		return g.GetPaymentConsentFunc(ctx, token, ref)
	}
	return nil, nil
}

func (g *Gateway) SubmitPayment(ctx context.Context, token string, req bank.PaymentRequest) (*bank.PaymentResult, error) {
	g.Calls.Add(1)
	if g.SubmitPaymentFunc != nil {
		return g.SubmitPaymentFunc(ctx, token, req)
	}
	return nil, nil
}

func (g *Gateway) GetPaymentStatus(ctx context.Context, token, paymentID string) (*bank.PaymentResult, error) {
	g.Calls.Add(1)
	if g.GetPaymentStatusFunc != nil {
		return g.GetPaymentStatusFunc(ctx, token, paymentID)
	}
	return nil, nil
}
