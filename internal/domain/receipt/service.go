package receipt

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	externalIDLength  = 12
	externalIDCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Service manages receipts. Sending is simulated: the receipt gets an
// external id as if a tax service had accepted it.
type Service struct {
	repo       Repository
	now        func() time.Time
	externalID func() (string, error)
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, externalID: newExternalID}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Receipt, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	r := &Receipt{
		ID:            uuid.NewString(),
		TransactionID: params.TransactionID,
		AccountID:     params.AccountID,
		Date:          params.Date.UTC(),
		Amount:        params.Amount,
		Service:       params.Service,
		ClientName:    params.ClientName,
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Receipt, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Receipt, error) {
	if filter.Status != "" && !IsValidStatus(filter.Status) {
		return nil, ErrInvalidStatus
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*Receipt, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, func(r *Receipt) error {
		if params.Date != nil {
			r.Date = params.Date.UTC()
		}
		if params.Amount != nil {
			r.Amount = *params.Amount
		}
		if params.Service != nil {
			r.Service = *params.Service
		}
		if params.ClientName != nil {
			r.ClientName = *params.ClientName
		}
		if params.Status != nil {
			r.Status = *params.Status
		}
		r.UpdatedAt = s.now()
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Send submits the receipt and records the external id. A sent receipt
// cannot be sent again.
func (s *Service) Send(ctx context.Context, id string) (*Receipt, error) {
	externalID, err := s.externalID()
	if err != nil {
		return nil, err
	}
	r, err := s.repo.Update(ctx, id, func(r *Receipt) error {
		if r.Status == StatusSent {
			return ErrAlreadySent
		}
		now := s.now()
		r.Status = StatusSent
		r.ExternalID = externalID
		r.SentAt = &now
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("receipt_id", r.ID).Str("external_id", r.ExternalID).Msg("receipt sent")
	return r, nil
}

func newExternalID() (string, error) {
	b := make([]byte, externalIDLength)
	limit := big.NewInt(int64(len(externalIDCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = externalIDCharset[n.Int64()]
	}
	return string(b), nil
}
