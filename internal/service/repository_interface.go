package service

import "context"

type Repository interface {
	Create(ctx context.Context, creatorID int, title, description string, rateCents int64) (*Offering, error)
	GetByID(ctx context.Context, id int) (*Offering, error)
	ListActive(ctx context.Context) ([]Offering, error)
	ListByCreator(ctx context.Context, creatorID int) ([]Offering, error)
	Deactivate(ctx context.Context, id, creatorID int) error
}
