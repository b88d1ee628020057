package payment

import "context"

type Repository interface {
	Create(ctx context.Context, p *Payment) (*Payment, error)
	GetByID(ctx context.Context, id int) (*Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*Payment, error)
	ListByBooking(ctx context.Context, bookingID int) ([]Payment, error)
	ListByUser(ctx context.Context, userID int) ([]Payment, error)

	SetIntentID(ctx context.Context, id int, intentID string) error

	// Compare-and-swap status moves. Each returns false when the payment was
	// already past pending, which is how webhook replays become no-ops.
	MarkCompleted(ctx context.Context, id int) (bool, error)
	MarkFailed(ctx context.Context, id int) (bool, error)
	MarkRefunded(ctx context.Context, id int) (bool, error)

	// CompletedByBooking returns the completed payments whose money would
	// have to be reversed on cancellation.
	CompletedByBooking(ctx context.Context, bookingID int) ([]Payment, error)
}
