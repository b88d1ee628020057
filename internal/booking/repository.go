package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"coachbook/internal/slot"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrSegmentNotFound = errors.New("booking segment not found")
	ErrSegmentOverlap  = errors.New("segment overlaps another segment of this booking")
	ErrLastSegment     = errors.New("a booking must keep at least one segment")
	ErrDepositNotPaid  = errors.New("remaining cannot be marked paid before the deposit")
)

const bookingColumns = `id, athlete_id, creator_id, service_id, status, currency,
	start_time, end_time, booked_minutes,
	subtotal_cents, fee_cents, tax_cents, total_cents,
	deposit_amount_cents, remaining_amount_cents,
	deposit_paid_at, remaining_paid_at, payout_completed_at,
	cancelled_by, cancel_reason, completed_at, soft_deleted,
	created_at, updated_at`

const segmentColumns = "id, booking_id, start_time, end_time, price_cents, slot_id, created_at"

type repository struct {
	db       *sqlx.DB
	slotRepo slot.Repository
}

// NewRepository wires the slot ledger in explicitly: binding and releasing
// slots is an orchestrated step of booking persistence, not a side effect.
func NewRepository(db *sqlx.DB, slotRepo slot.Repository) Repository {
	return &repository{db: db, slotRepo: slotRepo}
}

func (r *repository) Create(ctx context.Context, b *Booking, segments []SegmentDraft) (*Booking, []Segment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var created Booking
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO bookings (
			athlete_id, creator_id, service_id, status, currency,
			start_time, end_time, booked_minutes,
			subtotal_cents, fee_cents, tax_cents, total_cents
		)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+bookingColumns,
		b.AthleteID, b.CreatorID, b.ServiceID, b.Currency,
		b.StartTime, b.EndTime, b.BookedMinutes,
		b.SubtotalCents, b.FeeCents, b.TaxCents, b.TotalCents,
	).StructScan(&created)
	if err != nil {
		return nil, nil, err
	}

	persisted := make([]Segment, 0, len(segments))
	for _, draft := range segments {
		var seg Segment
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO booking_segments (booking_id, start_time, end_time, price_cents, slot_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+segmentColumns,
			created.ID, draft.StartTime, draft.EndTime, draft.PriceCents, draft.SlotID,
		).StructScan(&seg)
		if err != nil {
			return nil, nil, err
		}

		if draft.SlotID != nil {
			if err := r.slotRepo.BindTx(ctx, tx, *draft.SlotID, seg.ID); err != nil {
				return nil, nil, err
			}
		}

		persisted = append(persisted, seg)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	return &created, persisted, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) SegmentsByBooking(ctx context.Context, bookingID int) ([]Segment, error) {
	var segments []Segment
	err := r.db.SelectContext(ctx, &segments, `
		SELECT `+segmentColumns+`
		FROM booking_segments
		WHERE booking_id = $1
		ORDER BY start_time ASC
	`, bookingID)
	if err != nil {
		return nil, err
	}
	return segments, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int) ([]Booking, error) {
	var bookings []Booking
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE (athlete_id = $1 OR creator_id = $1) AND soft_deleted = FALSE
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) Accept(ctx context.Context, id int) (bool, error) {
	return r.casStatus(ctx, r.db, id, StatusAccepted, StatusPending)
}

func (r *repository) Start(ctx context.Context, id int) (bool, error) {
	return r.casStatus(ctx, r.db, id, StatusInProgress, StatusAccepted)
}

// Decline moves a pending booking to declined and releases every bound slot
// in the same transaction.
func (r *repository) Decline(ctx context.Context, id int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	moved, err := r.casStatus(ctx, tx, id, StatusDeclined, StatusPending)
	if err != nil || !moved {
		return moved, err
	}

	if err := r.releaseBoundSlots(ctx, tx, id); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *repository) Cancel(ctx context.Context, id, cancelledBy int, reason string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'cancelled', cancelled_by = $2, cancel_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'accepted', 'in_progress')
	`, id, cancelledBy, reason)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	if err := r.releaseBoundSlots(ctx, tx, id); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *repository) Complete(ctx context.Context, id int, completedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'completed', completed_at = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('accepted', 'in_progress')
	`, id, completedAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

type txExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *repository) casStatus(ctx context.Context, ex txExecer, id int, to Status, from ...Status) (bool, error) {
	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = string(s)
	}
	query, args, err := sqlx.In(`
		UPDATE bookings
		SET status = ?, updated_at = NOW()
		WHERE id = ? AND status IN (?)
	`, string(to), id, fromStrings)
	if err != nil {
		return false, err
	}

	result, err := ex.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (r *repository) releaseBoundSlots(ctx context.Context, tx *sqlx.Tx, bookingID int) error {
	var slotIDs []int
	err := tx.SelectContext(ctx, &slotIDs, `
		SELECT slot_id FROM booking_segments
		WHERE booking_id = $1 AND slot_id IS NOT NULL
	`, bookingID)
	if err != nil {
		return err
	}

	for _, slotID := range slotIDs {
		if err := r.slotRepo.ReleaseTx(ctx, tx, slotID); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET soft_deleted = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// Restore reverses a soft delete without touching status.
func (r *repository) Restore(ctx context.Context, id int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET soft_deleted = FALSE, updated_at = NOW()
		WHERE id = $1 AND soft_deleted = TRUE
	`, id)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (r *repository) AddSegment(ctx context.Context, bookingID int, draft SegmentDraft) (*Segment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var overlaps bool
	err = tx.GetContext(ctx, &overlaps, `
		SELECT EXISTS(
			SELECT 1 FROM booking_segments
			WHERE booking_id = $1 AND start_time < $3 AND end_time > $2
		)
	`, bookingID, draft.StartTime, draft.EndTime)
	if err != nil {
		return nil, err
	}
	if overlaps {
		return nil, ErrSegmentOverlap
	}

	var seg Segment
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO booking_segments (booking_id, start_time, end_time, price_cents, slot_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+segmentColumns,
		bookingID, draft.StartTime, draft.EndTime, draft.PriceCents, draft.SlotID,
	).StructScan(&seg)
	if err != nil {
		return nil, err
	}

	if draft.SlotID != nil {
		if err := r.slotRepo.BindTx(ctx, tx, *draft.SlotID, seg.ID); err != nil {
			return nil, err
		}
	}

	if err := r.recomputeEnvelope(ctx, tx, bookingID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &seg, nil
}

func (r *repository) RemoveSegment(ctx context.Context, bookingID, segmentID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM booking_segments WHERE booking_id = $1`, bookingID); err != nil {
		return err
	}
	if count <= 1 {
		return ErrLastSegment
	}

	var slotID *int
	err = tx.GetContext(ctx, &slotID, `
		SELECT slot_id FROM booking_segments WHERE id = $1 AND booking_id = $2
	`, segmentID, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSegmentNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_segments WHERE id = $1`, segmentID); err != nil {
		return err
	}

	if slotID != nil {
		if err := r.slotRepo.ReleaseTx(ctx, tx, *slotID); err != nil {
			return err
		}
	}

	if err := r.recomputeEnvelope(ctx, tx, bookingID); err != nil {
		return err
	}

	return tx.Commit()
}

// recomputeEnvelope rederives the booking's time span and booked minutes from
// its segments.
func (r *repository) recomputeEnvelope(ctx context.Context, tx *sqlx.Tx, bookingID int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET start_time = s.min_start,
		    end_time = s.max_end,
		    booked_minutes = s.minutes,
		    updated_at = NOW()
		FROM (
			SELECT MIN(start_time) AS min_start,
			       MAX(end_time) AS max_end,
			       (COALESCE(SUM(EXTRACT(EPOCH FROM (end_time - start_time))), 0) / 60)::int AS minutes
			FROM booking_segments
			WHERE booking_id = $1
		) s
		WHERE bookings.id = $1
	`, bookingID)
	return err
}

func (r *repository) UpdatePricing(ctx context.Context, id int, subtotal, fee, tax, total int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET subtotal_cents = $2, fee_cents = $3, tax_cents = $4, total_cents = $5, updated_at = NOW()
		WHERE id = $1
	`, id, subtotal, fee, tax, total)
	return err
}

func (r *repository) SetDepositPlan(ctx context.Context, id int, depositCents, remainingCents int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET deposit_amount_cents = $2, remaining_amount_cents = $3, updated_at = NOW()
		WHERE id = $1
	`, id, depositCents, remainingCents)
	return err
}

// MarkDepositPaid is idempotent: replays leave the original timestamp.
func (r *repository) MarkDepositPaid(ctx context.Context, id int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET deposit_paid_at = $2, updated_at = NOW()
		WHERE id = $1 AND deposit_paid_at IS NULL
	`, id, at)
	return err
}

// MarkRemainingPaid enforces the payment ordering invariant at the storage
// layer: the remaining timestamp can never precede the deposit one.
func (r *repository) MarkRemainingPaid(ctx context.Context, id int, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET remaining_paid_at = $2, updated_at = NOW()
		WHERE id = $1 AND remaining_paid_at IS NULL AND deposit_paid_at IS NOT NULL
	`, id, at)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var depositPaid bool
		err := r.db.GetContext(ctx, &depositPaid, `
			SELECT deposit_paid_at IS NOT NULL FROM bookings WHERE id = $1
		`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if !depositPaid {
			return ErrDepositNotPaid
		}
		// Already marked; replayed event.
	}
	return nil
}

func (r *repository) MarkPaidInFull(ctx context.Context, id int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET deposit_paid_at = COALESCE(deposit_paid_at, $2),
		    remaining_paid_at = COALESCE(remaining_paid_at, $2),
		    updated_at = NOW()
		WHERE id = $1
	`, id, at)
	return err
}

// MarkRefunded is additive and idempotent; refunded is terminal.
func (r *repository) MarkRefunded(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'refunded', updated_at = NOW()
		WHERE id = $1 AND status <> 'refunded'
	`, id)
	return err
}

func (r *repository) MarkPayoutCompleted(ctx context.Context, id int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET payout_completed_at = $2, updated_at = NOW()
		WHERE id = $1 AND payout_completed_at IS NULL
	`, id, at)
	return err
}
