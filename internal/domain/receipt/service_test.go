package receipt

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syntax/internal/shared/apperr"
)

// MockRepository implements Repository with overridable funcs backed by a map.
type MockRepository struct {
	items map[string]*Receipt

	ListFunc func(ctx context.Context, filter ListFilter) ([]*Receipt, error)
}

func newMockRepository() *MockRepository {
	return &MockRepository{items: make(map[string]*Receipt)}
}

func (m *MockRepository) Create(ctx context.Context, r *Receipt) error {
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*Receipt, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockRepository) List(ctx context.Context, filter ListFilter) ([]*Receipt, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockRepository) Update(ctx context.Context, id string, fn func(r *Receipt) error) (*Receipt, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	cp := *r
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.items[id] = &cp
	out := cp
	return &out, nil
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return ErrReceiptNotFound
	}
	delete(m.items, id)
	return nil
}

func validParams() CreateParams {
	return CreateParams{
		TransactionID: "tx_123",
		AccountID:     "acc_456",
		Date:          time.Date(2025, 11, 6, 10, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString("150.75"),
		Service:       "Дизайн логотипа",
		ClientName:    "ООО Ромашка",
	}
}

func TestCreateAndSend(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	ctx := context.Background()

	r, err := svc.Create(ctx, validParams())
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, r.Status)
	assert.Empty(t, r.ExternalID)

	sent, err := svc.Send(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{12}$`), sent.ExternalID)
	assert.NotNil(t, sent.SentAt)

	_, err = svc.Send(ctx, r.ID)
	assert.ErrorIs(t, err, ErrAlreadySent)
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(newMockRepository())

	tests := map[string]func(p *CreateParams){
		"missing transaction": func(p *CreateParams) { p.TransactionID = "" },
		"missing account":     func(p *CreateParams) { p.AccountID = " " },
		"zero date":           func(p *CreateParams) { p.Date = time.Time{} },
		"negative amount":     func(p *CreateParams) { p.Amount = decimal.NewFromInt(-1) },
		"missing service":     func(p *CreateParams) { p.Service = "" },
		"missing client":      func(p *CreateParams) { p.ClientName = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := validParams()
			mutate(&p)
			_, err := svc.Create(context.Background(), p)
			assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
		})
	}
}

func TestUpdate(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	ctx := context.Background()

	r, err := svc.Create(ctx, validParams())
	require.NoError(t, err)

	amount := decimal.RequireFromString("200.00")
	service := "Вёрстка"
	updated, err := svc.Update(ctx, r.ID, UpdateParams{Amount: &amount, Service: &service})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(amount))
	assert.Equal(t, "Вёрстка", updated.Service)
	assert.Equal(t, r.ClientName, updated.ClientName)

	bad := Status("archived")
	_, err = svc.Update(ctx, r.ID, UpdateParams{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.Update(ctx, "missing", UpdateParams{Service: &service})
	assert.ErrorIs(t, err, ErrReceiptNotFound)
}

func TestDelete(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	ctx := context.Background()

	r, err := svc.Create(ctx, validParams())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, r.ID))

	_, err = svc.Get(ctx, r.ID)
	assert.ErrorIs(t, err, ErrReceiptNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, r.ID), ErrReceiptNotFound)
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	svc := NewService(newMockRepository())
	_, err := svc.List(context.Background(), ListFilter{Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
