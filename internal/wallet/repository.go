package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"coachbook/internal/metrics"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Credits past their expiry never count, whether or not the expiration sweep
// has recorded them yet. Usage entries subtract; expiration entries are audit
// records for the sweep and stay out of the fold so expired credit is not
// subtracted twice.
const balanceQuery = `
	SELECT COALESCE(SUM(CASE
		WHEN type IN ('purchase', 'bonus', 'refund')
			AND (expires_at IS NULL OR expires_at > NOW()) THEN amount_cents
		WHEN type = 'usage' THEN -amount_cents
		ELSE 0
	END), 0)
	FROM wallet_entries
	WHERE user_id = $1
`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Balance(ctx context.Context, userID int) (int64, error) {
	var balance int64
	if err := r.db.GetContext(ctx, &balance, balanceQuery, userID); err != nil {
		return 0, err
	}
	if balance < 0 {
		balance = 0
	}
	return balance, nil
}

func (r *repository) Credit(ctx context.Context, userID int, amountCents int64, entryType EntryType, expiresAt *time.Time, bookingID *int) (*Entry, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	var e Entry
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO wallet_entries (user_id, amount_cents, type, expires_at, booking_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, amount_cents, type, expires_at, expired, booking_id, created_at`,
		userID, amountCents, entryType, expiresAt, bookingID,
	).StructScan(&e)
	if err != nil {
		return nil, err
	}

	metrics.RecordWalletEntry(string(entryType))
	return &e, nil
}

func (r *repository) Debit(ctx context.Context, userID int, amountCents int64, bookingID *int) (*Entry, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Serialize concurrent debits for one user on the wallets anchor row.
	// The journal itself is insert-only.
	if err := r.lockWallet(ctx, tx, userID); err != nil {
		return nil, err
	}

	var balance int64
	if err := tx.GetContext(ctx, &balance, balanceQuery, userID); err != nil {
		return nil, err
	}
	if balance < amountCents {
		return nil, ErrInsufficientBalance
	}

	var e Entry
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO wallet_entries (user_id, amount_cents, type, booking_id)
		 VALUES ($1, $2, 'usage', $3)
		 RETURNING id, user_id, amount_cents, type, expires_at, expired, booking_id, created_at`,
		userID, amountCents, bookingID,
	).StructScan(&e)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordWalletEntry(string(TypeUsage))
	return &e, nil
}

func (r *repository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID int) error {
	var id int
	err := tx.QueryRowxContext(ctx,
		`SELECT id FROM wallets WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return tx.QueryRowxContext(ctx,
			`INSERT INTO wallets (user_id) VALUES ($1) RETURNING id`, userID,
		).Scan(&id)
	}
	return err
}

func (r *repository) Entries(ctx context.Context, userID int, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []Entry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, amount_cents, type, expires_at, expired, booking_id, created_at
		FROM wallet_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *repository) HasRefundForBooking(ctx context.Context, bookingID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM wallet_entries
			WHERE booking_id = $1 AND type = 'refund'
		)
	`, bookingID)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// ExpireCredits marks lapsed credits and journals one expiration entry for
// the total, clamped at the remaining balance so already-spent credit is not
// expired a second time. Returns the expired amount.
func (r *repository) ExpireCredits(ctx context.Context, userID int) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := r.lockWallet(ctx, tx, userID); err != nil {
		return 0, err
	}

	var lapsed int64
	err = tx.GetContext(ctx, &lapsed, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM wallet_entries
		WHERE user_id = $1
		  AND type IN ('purchase', 'bonus', 'refund')
		  AND expires_at IS NOT NULL AND expires_at <= NOW()
		  AND expired = FALSE
	`, userID)
	if err != nil {
		return 0, err
	}
	if lapsed == 0 {
		return 0, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallet_entries
		SET expired = TRUE
		WHERE user_id = $1
		  AND type IN ('purchase', 'bonus', 'refund')
		  AND expires_at IS NOT NULL AND expires_at <= NOW()
		  AND expired = FALSE
	`, userID)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_entries (user_id, amount_cents, type)
		 VALUES ($1, $2, 'expiration')`,
		userID, lapsed,
	)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	metrics.RecordWalletEntry(string(TypeExpiration))
	return lapsed, nil
}
