package wallet

import (
	"context"
	"time"
)

type Repository interface {
	Balance(ctx context.Context, userID int) (int64, error)
	Credit(ctx context.Context, userID int, amountCents int64, entryType EntryType, expiresAt *time.Time, bookingID *int) (*Entry, error)
	Debit(ctx context.Context, userID int, amountCents int64, bookingID *int) (*Entry, error)
	Entries(ctx context.Context, userID int, limit, offset int) ([]Entry, error)
	HasRefundForBooking(ctx context.Context, bookingID int) (bool, error)
	ExpireCredits(ctx context.Context, userID int) (int64, error)
}
