package booking

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusDeclined   Status = "declined"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// allowedTransitions is the single authority on the booking lifecycle.
// Refunded is reachable only through the webhook reconciler, never through
// a user-facing transition.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusDeclined, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusDeclined || s == StatusCancelled || s == StatusCompleted || s == StatusRefunded
}

// InvalidTransitionError reports a rejected lifecycle change together with
// what would have been allowed, so callers can recover without guesswork.
type InvalidTransitionError struct {
	BookingID int
	Current   Status
	Attempted Status
	Allowed   []Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("booking %d: cannot move from %s to %s", e.BookingID, e.Current, e.Attempted)
}

func newInvalidTransition(bookingID int, current, attempted Status) *InvalidTransitionError {
	return &InvalidTransitionError{
		BookingID: bookingID,
		Current:   current,
		Attempted: attempted,
		Allowed:   allowedTransitions[current],
	}
}

type Booking struct {
	ID        int    `db:"id" json:"id"`
	AthleteID int    `db:"athlete_id" json:"athlete_id"`
	CreatorID int    `db:"creator_id" json:"creator_id"`
	ServiceID int    `db:"service_id" json:"service_id"`
	Status    Status `db:"status" json:"status"`
	Currency  string `db:"currency" json:"currency"`

	// Envelope over the booking's segments, recomputed on every segment
	// change.
	StartTime     time.Time `db:"start_time" json:"start_time"`
	EndTime       time.Time `db:"end_time" json:"end_time"`
	BookedMinutes int       `db:"booked_minutes" json:"booked_minutes"`

	SubtotalCents int64 `db:"subtotal_cents" json:"subtotal_cents"`
	FeeCents      int64 `db:"fee_cents" json:"fee_cents"`
	TaxCents      int64 `db:"tax_cents" json:"tax_cents"`
	TotalCents    int64 `db:"total_cents" json:"total_cents"`

	// Deposit plan. Zero deposit means no plan has been established yet.
	DepositAmountCents   int64      `db:"deposit_amount_cents" json:"deposit_amount_cents"`
	RemainingAmountCents int64      `db:"remaining_amount_cents" json:"remaining_amount_cents"`
	DepositPaidAt        *time.Time `db:"deposit_paid_at" json:"deposit_paid_at,omitempty"`
	RemainingPaidAt      *time.Time `db:"remaining_paid_at" json:"remaining_paid_at,omitempty"`
	PayoutCompletedAt    *time.Time `db:"payout_completed_at" json:"payout_completed_at,omitempty"`

	CancelledBy  *int       `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	SoftDeleted  bool       `db:"soft_deleted" json:"soft_deleted"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DeliverablesUnlocked: the remaining payment is the sole unlock trigger.
func (b *Booking) DeliverablesUnlocked() bool {
	return b.RemainingPaidAt != nil
}

// Segment is a contiguous time range within a booking, optionally bound to a
// creator slot. Segments of one booking never overlap each other.
type Segment struct {
	ID         int       `db:"id" json:"id"`
	BookingID  int       `db:"booking_id" json:"booking_id"`
	StartTime  time.Time `db:"start_time" json:"start_time"`
	EndTime    time.Time `db:"end_time" json:"end_time"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	SlotID     *int      `db:"slot_id" json:"slot_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

func (s Segment) Minutes() int {
	return int(s.EndTime.Sub(s.StartTime) / time.Minute)
}

type CreateBookingRequest struct {
	ServiceID       int    `json:"service_id" binding:"required"`
	SlotIDs         []int  `json:"slot_ids"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type AddSegmentRequest struct {
	SlotID          *int   `json:"slot_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type CompleteRequest struct {
	CompletedAt string `json:"completed_at"`
}

type BookingWithSegments struct {
	Booking  *Booking  `json:"booking"`
	Segments []Segment `json:"segments"`
}

// CancelResult surfaces the refund outcome without coupling it to the
// cancellation itself: the cancellation stands even when the refund fails.
type CancelResult struct {
	Booking       *Booking `json:"booking"`
	RefundWarning string   `json:"refund_warning,omitempty"`
}
