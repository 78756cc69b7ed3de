package payment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syntax/internal/domain/bank"
	"syntax/internal/domain/bank/banktest"
	"syntax/internal/domain/banktoken"
	"syntax/internal/shared/apperr"
)

type memRepository struct {
	mu    sync.Mutex
	items map[string]*TaxPayment
}

func newMemRepository() *memRepository {
	return &memRepository{items: make(map[string]*TaxPayment)}
}

func (m *memRepository) Create(ctx context.Context, p *TaxPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *memRepository) GetByID(ctx context.Context, id string) (*TaxPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, ErrTaxPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepository) FindByPeriod(ctx context.Context, userID, period string) (*TaxPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.UserID == userID && p.TaxPeriod == period {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrTaxPaymentNotFound
}

func (m *memRepository) List(ctx context.Context, f ListFilter) ([]*TaxPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*TaxPayment
	for _, p := range m.items {
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, p.Status) {
			continue
		}
		if f.UpdatedBefore != nil && !p.UpdatedAt.Before(*f.UpdatedBefore) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaxPeriod > out[j].TaxPeriod })
	return out, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memRepository) Update(ctx context.Context, id string, fn func(p *TaxPayment) error) (*TaxPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, ErrTaxPaymentNotFound
	}
	cp := *p
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.items[id] = &cp
	out := cp
	return &out, nil
}

type MockAccounts struct {
	AccountsFunc func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) ([]bank.Account, error)
}

func (m *MockAccounts) Accounts(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) ([]bank.Account, error) {
	if m.AccountsFunc != nil {
		return m.AccountsFunc(ctx, creds, bankID, clientID)
	}
	return []bank.Account{{ID: "acc-1", Identification: "40817810099910004312", Currency: "RUB"}}, nil
}

var (
	creds    = banktoken.Credentials{ClientID: "team1", ClientSecret: "secret"}
	fixedNow = time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc  *Service
	repo *memRepository
	gw   *banktest.Gateway
}

func newFixture(gw *banktest.Gateway, accounts Accounts, opts Options) *fixture {
	registry := bank.NewRegistry(gw)
	repo := newMemRepository()
	if accounts == nil {
		accounts = &MockAccounts{}
	}
	svc := NewService(repo, registry, banktoken.NewCache(registry), accounts, opts)
	svc.now = func() time.Time { return fixedNow }
	svc.amount = func() decimal.Decimal { return decimal.RequireFromString("4500.00") }
	return &fixture{svc: svc, repo: repo, gw: gw}
}

func (f *fixture) seed(t *testing.T) *TaxPayment {
	t.Helper()
	res, err := f.svc.SyncTaxes(context.Background(), "team1-1", "500100732259")
	require.NoError(t, err)
	return res.Payment
}

func TestSyncTaxes(t *testing.T) {
	f := newFixture(&banktest.Gateway{ID: bank.ABank}, nil, Options{})

	res, err := f.svc.SyncTaxes(context.Background(), "team1-1", "500100732259")
	require.NoError(t, err)
	assert.True(t, res.Created)
	p := res.Payment
	assert.Equal(t, "2025-10", p.TaxPeriod)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "Налог на профессиональный доход за октябрь 2025 г. ИНН 500100732259", p.PaymentPurpose)
	assert.Equal(t, RecipientAccount, p.RecipientAccount)
	assert.Equal(t, "4500.00", p.TaxAmount.StringFixed(2))

	again, err := f.svc.SyncTaxes(context.Background(), "team1-1", "500100732259")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, p.ID, again.Payment.ID)

	_, err = f.svc.SyncTaxes(context.Background(), "", "1")
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
}

func TestPreviousPeriod_January(t *testing.T) {
	period, purpose := previousPeriod(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), "7")
	assert.Equal(t, "2025-12", period)
	assert.Contains(t, purpose, "декабрь 2025 г.")
}

func TestRandomTaxAmount(t *testing.T) {
	for i := 0; i < 100; i++ {
		a := randomTaxAmount()
		assert.True(t, a.GreaterThanOrEqual(decimal.NewFromInt(1000)))
		assert.True(t, a.LessThanOrEqual(decimal.NewFromInt(50000)))
		assert.True(t, a.Equal(a.Round(2)))
	}
}

func TestPay_AutoApprovalBankIsPaid(t *testing.T) {
	var submitted bank.PaymentRequest
	gw := &banktest.Gateway{
		ID: bank.ABank,
		CreatePaymentConsentFunc: func(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error) {
			assert.Equal(t, "40817810099910004312", req.DebtorAccount)
			assert.Equal(t, "4500.00", req.Amount.StringFixed(2))
			assert.Equal(t, RecipientAccount, req.Creditor.Identification)
			return &bank.ConsentResult{ConsentID: "pc-1", Status: bank.ConsentAuthorized, RawStatus: "approved"}, nil
		},
		SubmitPaymentFunc: func(ctx context.Context, token string, req bank.PaymentRequest) (*bank.PaymentResult, error) {
			submitted = req
			return &bank.PaymentResult{PaymentID: "pay-1", Status: "AcceptedSettlementCompleted"}, nil
		},
	}
	f := newFixture(gw, nil, Options{})
	p := f.seed(t)

	paid, err := f.svc.Pay(context.Background(), creds, p.ID, PayRequest{BankID: bank.ABank, AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, "pay-1", paid.PaymentID)
	assert.Equal(t, "pc-1", paid.ConsentID)
	assert.True(t, paid.AccountResolved)
	require.NotNil(t, paid.PaymentDate)
	assert.Equal(t, fixedNow, *paid.PaymentDate)

	assert.Equal(t, "pc-1", submitted.ConsentID)
	assert.Equal(t, "team1-1", submitted.ClientID)
	assert.Equal(t, p.PaymentPurpose, submitted.Comment)

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, stored.Status)

	_, err = f.svc.Pay(context.Background(), creds, p.ID, PayRequest{BankID: bank.ABank, AccountID: "acc-1"})
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestPay_ManualApprovalThenConfirmAndRefresh(t *testing.T) {
	consentStatus := &bank.ConsentResult{RequestID: "preq-1", Status: bank.ConsentAwaitingAuthorization}
	paymentStatus := "Pending"
	gw := &banktest.Gateway{
		ID:          bank.VBank,
		PaymentMode: bank.ApprovalManual,
		CreatePaymentConsentFunc: func(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error) {
			return &bank.ConsentResult{
				RequestID:   "preq-1",
				Status:      bank.ConsentAwaitingAuthorization,
				RedirectURL: "https://vbank.test/client/payment-consents.html?request_id=preq-1",
			}, nil
		},
		GetPaymentConsentFunc: func(ctx context.Context, token string, ref bank.ConsentRef) (*bank.ConsentResult, error) {
			assert.Equal(t, bank.RequestIDRef("preq-1"), ref)
			return consentStatus, nil
		},
		SubmitPaymentFunc: func(ctx context.Context, token string, req bank.PaymentRequest) (*bank.PaymentResult, error) {
			assert.Equal(t, "pc-9", req.ConsentID)
			assert.Equal(t, "40817810099910004312", req.DebtorAccount)
			return &bank.PaymentResult{PaymentID: "pay-9", Status: "Pending"}, nil
		},
		GetPaymentStatusFunc: func(ctx context.Context, token, paymentID string) (*bank.PaymentResult, error) {
			return &bank.PaymentResult{PaymentID: paymentID, Status: paymentStatus}, nil
		},
	}
	f := newFixture(gw, nil, Options{})
	p := f.seed(t)
	ctx := context.Background()

	waiting, err := f.svc.Pay(ctx, creds, p.ID, PayRequest{BankID: bank.VBank, AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingApproval, waiting.Status)
	assert.True(t, strings.Contains(waiting.RedirectURL, "preq-1"))
	assert.Equal(t, "40817810099910004312", waiting.DebtorIdentification)

	still, err := f.svc.Confirm(ctx, creds, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingApproval, still.Status)

	*consentStatus = bank.ConsentResult{ConsentID: "pc-9", Status: bank.ConsentAuthorized}
	submitted, err := f.svc.Confirm(ctx, creds, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, submitted.Status)
	assert.Equal(t, "pay-9", submitted.PaymentID)
	assert.Empty(t, submitted.RedirectURL)

	pending, err := f.svc.Refresh(ctx, creds, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, pending.Status)

	paymentStatus = "completed"
	paid, err := f.svc.Refresh(ctx, creds, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.NotNil(t, paid.PaymentDate)

	_, err = f.svc.Confirm(ctx, creds, p.ID)
	assert.ErrorIs(t, err, ErrNotAwaiting)
}

func TestPay_UnresolvedAccountRejected(t *testing.T) {
	gw := &banktest.Gateway{ID: bank.ABank}
	accounts := &MockAccounts{
		AccountsFunc: func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) ([]bank.Account, error) {
			return []bank.Account{{ID: "other"}}, nil
		},
	}
	f := newFixture(gw, accounts, Options{})
	p := f.seed(t)

	failed, err := f.svc.Pay(context.Background(), creds, p.ID, PayRequest{BankID: bank.ABank, AccountID: "acc-1"})
	assert.Equal(t, apperr.AccountIdentificationUnresolved, apperr.KindOf(err))
	require.NotNil(t, failed)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.NotEmpty(t, failed.ErrorMessage)
	assert.EqualValues(t, 0, gw.Calls.Load())
}

func TestPay_UnresolvedFallbackRejectedUpstream(t *testing.T) {
	gw := &banktest.Gateway{
		ID: bank.ABank,
		CreatePaymentConsentFunc: func(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error) {
			assert.Equal(t, "acc-1", req.DebtorAccount)
			return &bank.ConsentResult{ConsentID: "pc-1", Status: bank.ConsentAuthorized}, nil
		},
		SubmitPaymentFunc: func(ctx context.Context, token string, req bank.PaymentRequest) (*bank.PaymentResult, error) {
			return nil, apperr.New(apperr.InvalidRequest, "unknown debtor account")
		},
	}
	accounts := &MockAccounts{
		AccountsFunc: func(ctx context.Context, creds banktoken.Credentials, bankID bank.ID, clientID string) ([]bank.Account, error) {
			return nil, apperr.New(apperr.UpstreamUnavailable, "timeout")
		},
	}
	f := newFixture(gw, accounts, Options{AllowUnresolvedAccount: true})
	p := f.seed(t)

	failed, err := f.svc.Pay(context.Background(), creds, p.ID, PayRequest{BankID: bank.ABank, AccountID: "acc-1"})
	assert.Equal(t, apperr.AccountIdentificationUnresolved, apperr.KindOf(err))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.False(t, failed.AccountResolved)
}

func TestPay_RejectedPayment(t *testing.T) {
	gw := &banktest.Gateway{
		ID: bank.ABank,
		CreatePaymentConsentFunc: func(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error) {
			return &bank.ConsentResult{ConsentID: "pc-1", Status: bank.ConsentAuthorized}, nil
		},
		SubmitPaymentFunc: func(ctx context.Context, token string, req bank.PaymentRequest) (*bank.PaymentResult, error) {
			return &bank.PaymentResult{PaymentID: "pay-1", Status: "Rejected"}, nil
		},
	}
	f := newFixture(gw, nil, Options{})
	p := f.seed(t)

	failed, err := f.svc.Pay(context.Background(), creds, p.ID, PayRequest{BankID: bank.ABank, AccountID: "acc-1"})
	assert.Equal(t, apperr.PaymentRejected, apperr.KindOf(err))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "pay-1", failed.PaymentID)
}

func TestPay_UpstreamFailureMarksFailed(t *testing.T) {
	gw := &banktest.Gateway{
		ID: bank.ABank,
		CreatePaymentConsentFunc: func(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error) {
			return nil, apperr.New(apperr.UpstreamUnavailable, "bank timed out")
		},
	}
	f := newFixture(gw, nil, Options{})
	p := f.seed(t)

	_, err := f.svc.Pay(context.Background(), creds, p.ID, PayRequest{BankID: bank.ABank, AccountID: "acc-1"})
	assert.Equal(t, apperr.UpstreamUnavailable, apperr.KindOf(err))

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "bank timed out")
}

func TestPay_ManualConsentConfirmedByConsentID(t *testing.T) {
	gw := &banktest.Gateway{
		ID:          bank.VBank,
		PaymentMode: bank.ApprovalManual,
		CreatePaymentConsentFunc: func(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error) {
			return &bank.ConsentResult{ConsentID: "pc-1", Status: bank.ConsentAwaitingAuthorization, RawStatus: "pending"}, nil
		},
		GetPaymentConsentFunc: func(ctx context.Context, token string, ref bank.ConsentRef) (*bank.ConsentResult, error) {
			assert.Equal(t, bank.ConsentIDRef("pc-1"), ref)
			return &bank.ConsentResult{ConsentID: "pc-1", Status: bank.ConsentAuthorized}, nil
		},
		SubmitPaymentFunc: func(ctx context.Context, token string, req bank.PaymentRequest) (*bank.PaymentResult, error) {
			assert.Equal(t, "pc-1", req.ConsentID)
			return &bank.PaymentResult{PaymentID: "pay-1", Status: "AcceptedSettlementCompleted"}, nil
		},
	}
	f := newFixture(gw, nil, Options{})
	p := f.seed(t)
	ctx := context.Background()

	waiting, err := f.svc.Pay(ctx, creds, p.ID, PayRequest{BankID: bank.VBank, AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingApproval, waiting.Status)
	assert.Equal(t, "pc-1", waiting.ConsentID)
	assert.Empty(t, waiting.RequestID)

	paid, err := f.svc.Confirm(ctx, creds, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, "pay-1", paid.PaymentID)
	require.NotNil(t, paid.PaymentDate)
	assert.Equal(t, fixedNow, *paid.PaymentDate)
}

// flakyRepository fails the n-th call to Update.
type flakyRepository struct {
	*memRepository
	failOn  int
	updates int
}

func (r *flakyRepository) Update(ctx context.Context, id string, fn func(p *TaxPayment) error) (*TaxPayment, error) {
	r.updates++
	if r.updates == r.failOn {
		return nil, apperr.New(apperr.Internal, "connection reset")
	}
	return r.memRepository.Update(ctx, id, fn)
}

func TestPay_StoreFailureAfterConsentMarksFailed(t *testing.T) {
	gw := &banktest.Gateway{
		ID: bank.ABank,
		CreatePaymentConsentFunc: func(ctx context.Context, token string, req bank.PaymentConsentRequest) (*bank.ConsentResult, error) {
			return &bank.ConsentResult{ConsentID: "pc-1", Status: bank.ConsentAuthorized}, nil
		},
		SubmitPaymentFunc: func(ctx context.Context, token string, req bank.PaymentRequest) (*bank.PaymentResult, error) {
			t.Fatal("payment must not be submitted without a stored consent")
			return nil, nil
		},
	}
	f := newFixture(gw, nil, Options{})
	p := f.seed(t)

	repo := &flakyRepository{memRepository: f.repo, failOn: 2}
	f.svc.repo = repo

	failed, err := f.svc.Pay(context.Background(), creds, p.ID, PayRequest{BankID: bank.ABank, AccountID: "acc-1"})
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	require.NotNil(t, failed)
	assert.Equal(t, StatusFailed, failed.Status)

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "connection reset")
}

func TestPay_Validation(t *testing.T) {
	f := newFixture(&banktest.Gateway{ID: bank.ABank}, nil, Options{})
	p := f.seed(t)
	ctx := context.Background()

	_, err := f.svc.Pay(ctx, creds, p.ID, PayRequest{AccountID: "acc-1"})
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	_, err = f.svc.Pay(ctx, creds, p.ID, PayRequest{BankID: bank.VBank, AccountID: "acc-1"})
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	_, err = f.svc.Pay(ctx, creds, "missing", PayRequest{BankID: bank.ABank, AccountID: "acc-1"})
	assert.ErrorIs(t, err, ErrTaxPaymentNotFound)
}

func TestFailStaleApprovals(t *testing.T) {
	f := newFixture(&banktest.Gateway{ID: bank.SBank}, nil, Options{ApprovalTimeout: time.Hour})
	ctx := context.Background()

	require.NoError(t, f.repo.Create(ctx, &TaxPayment{ID: "old", Status: StatusAwaitingApproval, UpdatedAt: fixedNow.Add(-2 * time.Hour)}))
	require.NoError(t, f.repo.Create(ctx, &TaxPayment{ID: "fresh", Status: StatusAwaitingApproval, UpdatedAt: fixedNow.Add(-time.Minute)}))
	require.NoError(t, f.repo.Create(ctx, &TaxPayment{ID: "paid", Status: StatusPaid, UpdatedAt: fixedNow.Add(-48 * time.Hour)}))

	n, err := f.svc.FailStaleApprovals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, _ := f.repo.GetByID(ctx, "old")
	assert.Equal(t, StatusFailed, old.Status)
	assert.Equal(t, approvalTimedOut, old.ErrorMessage)

	fresh, _ := f.repo.GetByID(ctx, "fresh")
	assert.Equal(t, StatusAwaitingApproval, fresh.Status)
}

func TestMapPaymentStatus(t *testing.T) {
	tests := map[string]Status{
		"accepted":                    StatusPaid,
		"Completed":                   StatusPaid,
		"success":                     StatusPaid,
		"AcceptedSettlementCompleted": StatusPaid,
		"rejected":                    StatusFailed,
		"FAILED":                      StatusFailed,
		"pending":                     StatusProcessing,
		"AcceptedSettlementInProcess": StatusProcessing,
		"":                            StatusProcessing,
	}
	for raw, want := range tests {
		assert.Equal(t, want, MapPaymentStatus(raw), raw)
	}
}
