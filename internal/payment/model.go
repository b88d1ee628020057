package payment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Type says which leg of the booking's money a payment settles. Top-ups are
// not tied to a booking at all; they buy wallet credit.
type Type string

const (
	TypeDeposit   Type = "deposit"
	TypeRemaining Type = "remaining"
	TypeFull      Type = "full"
	TypeTopUp     Type = "topup"
)

// Metadata is the side-channel frozen onto a payment at creation time: the
// wallet/card split the reconciler consults to decide side effects, and which
// leg of the booking the money settles. It lives in one JSONB column so new
// fields stay additive; unknown keys on read are simply dropped.
type Metadata struct {
	WalletUsed  int64 `json:"wallet_used"`
	CardCharged int64 `json:"card_charged"`
	IsDeposit   bool  `json:"is_deposit"`
	PaymentType Type  `json:"payment_type"`
}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("cannot scan %T into payment metadata", src)
}

// Payment records one settlement attempt. The wallet and card splits are
// frozen at creation time so refunds can reverse exactly what was taken.
type Payment struct {
	ID          int      `db:"id" json:"id"`
	BookingID   *int     `db:"booking_id" json:"booking_id,omitempty"`
	UserID      int      `db:"user_id" json:"user_id"`
	IntentID    *string  `db:"intent_id" json:"intent_id,omitempty"`
	Status      Status   `db:"status" json:"status"`
	AmountCents int64    `db:"amount_cents" json:"amount_cents"`
	Metadata    Metadata `db:"metadata" json:"metadata"`
	Currency    string   `db:"currency" json:"currency"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type CreateIntentRequest struct {
	BookingID   int    `json:"booking_id" binding:"required"`
	PaymentType string `json:"payment_type" binding:"required,oneof=deposit remaining full"`
	UseWallet   bool   `json:"use_wallet"`
}

type PayRemainingRequest struct {
	UseWallet bool `json:"use_wallet"`
}

type TopUpRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required,min=100"`
}

// IntentResponse is what the client needs to finish (or skip) the card leg.
// ClientSecret is empty when the wallet covered everything and no card
// confirmation is needed.
type IntentResponse struct {
	Payment      *Payment `json:"payment"`
	ClientSecret string   `json:"client_secret,omitempty"`
}

// StatusResponse summarizes where a booking's money stands.
type StatusResponse struct {
	BookingID            int        `json:"booking_id"`
	Phase                string     `json:"phase"`
	DepositPaidAt        *time.Time `json:"deposit_paid_at,omitempty"`
	RemainingPaidAt      *time.Time `json:"remaining_paid_at,omitempty"`
	DeliverablesUnlocked bool       `json:"deliverables_unlocked"`
	Payments             []Payment  `json:"payments"`
}
