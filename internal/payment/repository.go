package payment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrPaymentNotFound = errors.New("payment not found")

const paymentColumns = `id, booking_id, user_id, intent_id, status,
	amount_cents, metadata, currency, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	var created Payment
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO payments (booking_id, user_id, intent_id, status,
			amount_cents, metadata, currency)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6)
		RETURNING `+paymentColumns,
		p.BookingID, p.UserID, p.IntentID,
		p.AmountCents, p.Metadata, p.Currency,
	).StructScan(&created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindByIntentID(ctx context.Context, intentID string) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE intent_id = $1`, intentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListByBooking(ctx context.Context, bookingID int) ([]Payment, error) {
	var payments []Payment
	err := r.db.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at ASC
	`, bookingID)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int) ([]Payment, error) {
	var payments []Payment
	err := r.db.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) SetIntentID(ctx context.Context, id int, intentID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET intent_id = $2, updated_at = NOW() WHERE id = $1
	`, id, intentID)
	return err
}

func (r *repository) MarkCompleted(ctx context.Context, id int) (bool, error) {
	return r.cas(ctx, id, StatusCompleted, StatusPending)
}

func (r *repository) MarkFailed(ctx context.Context, id int) (bool, error) {
	return r.cas(ctx, id, StatusFailed, StatusPending)
}

func (r *repository) MarkRefunded(ctx context.Context, id int) (bool, error) {
	return r.cas(ctx, id, StatusRefunded, StatusCompleted)
}

func (r *repository) cas(ctx context.Context, id int, to, from Status) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3
	`, id, to, from)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (r *repository) CompletedByBooking(ctx context.Context, bookingID int) ([]Payment, error) {
	var payments []Payment
	err := r.db.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1 AND status = 'completed'
		ORDER BY created_at ASC
	`, bookingID)
	if err != nil {
		return nil, err
	}
	return payments, nil
}
