package wallet

import "time"

type EntryType string

const (
	TypePurchase   EntryType = "purchase"
	TypeBonus      EntryType = "bonus"
	TypeRefund     EntryType = "refund"
	TypeUsage      EntryType = "usage"
	TypeExpiration EntryType = "expiration"
)

// IsCredit reports whether entries of this type add to the balance.
func (t EntryType) IsCredit() bool {
	return t == TypePurchase || t == TypeBonus || t == TypeRefund
}

// Entry is one immutable line of the wallet journal. Amounts are stored
// positive; direction comes from the type. Corrections are new entries,
// never edits — only the derived `expired` flag is ever updated.
type Entry struct {
	ID          int        `db:"id" json:"id"`
	UserID      int        `db:"user_id" json:"user_id"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	Type        EntryType  `db:"type" json:"type"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Expired     bool       `db:"expired" json:"expired"`
	BookingID   *int       `db:"booking_id" json:"booking_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

type BalanceResponse struct {
	UserID       int    `json:"user_id"`
	BalanceCents int64  `json:"balance_cents"`
	Currency     string `json:"currency"`
}
