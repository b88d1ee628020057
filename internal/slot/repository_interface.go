package slot

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Reserve(ctx context.Context, ownerID int, start, end time.Time) (*Slot, error)
	GetByID(ctx context.Context, id int) (*Slot, error)
	ListByOwner(ctx context.Context, ownerID int, onlyFree bool) ([]Slot, error)
	Bind(ctx context.Context, slotID, segmentID int) error
	Release(ctx context.Context, slotID int) error

	// Tx variants let the booking state machine claim N slots atomically.
	GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id int) (*Slot, error)
	BindTx(ctx context.Context, tx *sqlx.Tx, slotID, segmentID int) error
	ReleaseTx(ctx context.Context, tx *sqlx.Tx, slotID int) error
}
