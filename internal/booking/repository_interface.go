package booking

import (
	"context"
	"time"
)

// SegmentDraft describes one segment of a booking being created. SlotID is
// set when the segment claims a pre-existing creator slot.
type SegmentDraft struct {
	StartTime  time.Time
	EndTime    time.Time
	PriceCents int64
	SlotID     *int
}

type Repository interface {
	// Create persists the booking, its segments and all slot bindings in one
	// transaction. A clash with a concurrently claimed slot surfaces as
	// slot.ErrAlreadyBooked and nothing is written.
	Create(ctx context.Context, b *Booking, segments []SegmentDraft) (*Booking, []Segment, error)

	GetByID(ctx context.Context, id int) (*Booking, error)
	SegmentsByBooking(ctx context.Context, bookingID int) ([]Segment, error)
	ListByUser(ctx context.Context, userID int) ([]Booking, error)

	// Guarded status transitions. Each returns the number of rows moved (0
	// when the compare-and-swap lost) so the caller can report a precise
	// conflict.
	Accept(ctx context.Context, id int) (bool, error)
	Decline(ctx context.Context, id int) (bool, error)
	Cancel(ctx context.Context, id, cancelledBy int, reason string) (bool, error)
	Complete(ctx context.Context, id int, completedAt time.Time) (bool, error)
	Start(ctx context.Context, id int) (bool, error)

	SoftDelete(ctx context.Context, id int) error
	Restore(ctx context.Context, id int) (bool, error)

	AddSegment(ctx context.Context, bookingID int, draft SegmentDraft) (*Segment, error)
	RemoveSegment(ctx context.Context, bookingID, segmentID int) error
	UpdatePricing(ctx context.Context, id int, subtotal, fee, tax, total int64) error

	SetDepositPlan(ctx context.Context, id int, depositCents, remainingCents int64) error
	MarkDepositPaid(ctx context.Context, id int, at time.Time) error
	MarkRemainingPaid(ctx context.Context, id int, at time.Time) error
	MarkPaidInFull(ctx context.Context, id int, at time.Time) error
	MarkRefunded(ctx context.Context, id int) error
	MarkPayoutCompleted(ctx context.Context, id int, at time.Time) error
}
