package slot

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"coachbook/internal/metrics"
)

var (
	ErrOverlapConflict = errors.New("slot overlaps an existing slot for this owner")
	ErrAlreadyBooked   = errors.New("slot is already booked")
	ErrSlotNotFound    = errors.New("slot not found")
	ErrInvalidWindow   = errors.New("slot end must be after start")
)

const slotColumns = "id, owner_id, start_time, end_time, booked, segment_id, created_at"

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// Reserve inserts a new slot unless [start, end) intersects an existing slot
// of the same owner. The advisory lock serializes reservations per owner so
// two concurrent overlapping requests cannot both pass the check.
func (r *repository) Reserve(ctx context.Context, ownerID int, start, end time.Time) (*Slot, error) {
	if !end.After(start) {
		return nil, ErrInvalidWindow
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ownerID); err != nil {
		return nil, err
	}

	var overlaps bool
	err = tx.GetContext(ctx, &overlaps, `
		SELECT EXISTS(
			SELECT 1 FROM slots
			WHERE owner_id = $1 AND start_time < $3 AND end_time > $2
		)
	`, ownerID, start, end)
	if err != nil {
		return nil, err
	}
	if overlaps {
		metrics.RecordSlotConflict()
		return nil, ErrOverlapConflict
	}

	var s Slot
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO slots (owner_id, start_time, end_time)
		 VALUES ($1, $2, $3)
		 RETURNING `+slotColumns,
		ownerID, start, end,
	).StructScan(&s)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Slot, error) {
	var s Slot
	err := r.db.GetContext(ctx, &s, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID int, onlyFree bool) ([]Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE owner_id = $1`
	if onlyFree {
		query += ` AND booked = FALSE`
	}
	query += ` ORDER BY start_time ASC`

	var slots []Slot
	if err := r.db.SelectContext(ctx, &slots, query, ownerID); err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *repository) Bind(ctx context.Context, slotID, segmentID int) error {
	return r.bind(ctx, r.db, slotID, segmentID)
}

func (r *repository) BindTx(ctx context.Context, tx *sqlx.Tx, slotID, segmentID int) error {
	return r.bind(ctx, tx, slotID, segmentID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// bind flips booked in one guarded statement; the status predicate is the
// compare-and-swap that keeps two bookers from claiming the same slot.
func (r *repository) bind(ctx context.Context, ex execer, slotID, segmentID int) error {
	result, err := ex.ExecContext(ctx, `
		UPDATE slots
		SET booked = TRUE, segment_id = $2
		WHERE id = $1 AND booked = FALSE
	`, slotID, segmentID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		if err := ex.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM slots WHERE id = $1)`, slotID); err != nil {
			return err
		}
		if !exists {
			return ErrSlotNotFound
		}
		return ErrAlreadyBooked
	}

	return nil
}

func (r *repository) Release(ctx context.Context, slotID int) error {
	return r.release(ctx, r.db, slotID)
}

func (r *repository) ReleaseTx(ctx context.Context, tx *sqlx.Tx, slotID int) error {
	return r.release(ctx, tx, slotID)
}

// release is idempotent: unbooking a free slot is a no-op.
func (r *repository) release(ctx context.Context, ex execer, slotID int) error {
	result, err := ex.ExecContext(ctx, `
		UPDATE slots
		SET booked = FALSE, segment_id = NULL
		WHERE id = $1
	`, slotID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSlotNotFound
	}

	return nil
}

func (r *repository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id int) (*Slot, error) {
	var s Slot
	err := tx.GetContext(ctx, &s, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
