package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/paymentintent"
	"github.com/stripe/stripe-go/v78/refund"
	"github.com/stripe/stripe-go/v78/webhook"

	"coachbook/internal/logger"
)

type stripeGateway struct {
	webhookSecret string
}

// NewStripe configures the package-level Stripe client. The webhook secret is
// kept here so signature verification never depends on request state.
func NewStripe(secretKey, webhookSecret string) Gateway {
	stripe.Key = secretKey
	return &stripeGateway{webhookSecret: webhookSecret}
}

func (g *stripeGateway) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	// Client retries must not mint duplicate intents.
	params.SetIdempotencyKey(uuid.NewString())

	pi, err := paymentintent.New(params)
	if err != nil {
		logger.Errorf("stripe create intent failed: %v", err)
		return nil, fmt.Errorf("%w: create intent", ErrUnavailable)
	}

	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *stripeGateway) Refund(ctx context.Context, intentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		logger.Errorf("stripe refund failed: intent=%s err=%v", intentID, err)
		return fmt.Errorf("%w: refund", ErrUnavailable)
	}

	return nil
}

// eventObject is the slice of a Stripe event object the reconciler needs:
// intents carry their own id, charges point at one.
type eventObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

func (g *stripeGateway) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, ErrSignatureInvalid
	}

	var obj eventObject
	if err := json.Unmarshal(ev.Data.Raw, &obj); err != nil {
		return nil, fmt.Errorf("malformed event object: %w", err)
	}

	intentID := obj.ID
	if obj.PaymentIntent != "" {
		intentID = obj.PaymentIntent
	}

	return &Event{
		ID:       ev.ID,
		Type:     string(ev.Type),
		IntentID: intentID,
		Metadata: obj.Metadata,
		Raw:      ev.Data.Raw,
	}, nil
}
