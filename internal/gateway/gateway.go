// Package gateway isolates the payment provider behind a narrow interface.
// The rest of the system only ever sees intents, refunds and verified events.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrUnavailable      = errors.New("payment gateway unavailable")
)

// Gateway event types the reconciler understands.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded  = "charge.refunded"
	EventTransferCreated = "transfer.created"
	EventTransferFailed  = "transfer.failed"
)

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// Event is a verified gateway event reduced to what reconciliation needs.
// Raw keeps the provider payload for logging and forward compatibility.
type Event struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	IntentID string            `json:"intent_id"`
	Metadata map[string]string `json:"metadata"`
	Raw      json.RawMessage   `json:"-"`
}

type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error)
	Refund(ctx context.Context, intentID string) error
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}
