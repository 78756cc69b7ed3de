package receipt

import "context"

type Repository interface {
	Create(ctx context.Context, r *Receipt) error
	GetByID(ctx context.Context, id string) (*Receipt, error)
	List(ctx context.Context, filter ListFilter) ([]*Receipt, error)
	Update(ctx context.Context, id string, fn func(r *Receipt) error) (*Receipt, error)
	Delete(ctx context.Context, id string) error
}
