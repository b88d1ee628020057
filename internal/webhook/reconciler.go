// Package webhook reconciles gateway events with local payment and booking
// state. Every handler is idempotent: the gateway retries on any non-2xx and
// may deliver the same event more than once.
package webhook

import (
	"context"
	"errors"
	"strconv"
	"time"

	"coachbook/internal/booking"
	"coachbook/internal/gateway"
	"coachbook/internal/logger"
	"coachbook/internal/metrics"
	"coachbook/internal/notify"
	"coachbook/internal/payment"
)

// HandlerFunc processes one verified gateway event.
type HandlerFunc func(ctx context.Context, ev *gateway.Event) error

// PaymentReconciler is the slice of the payment orchestrator the webhook
// needs: settling, failing and refunding by gateway intent id.
type PaymentReconciler interface {
	CompleteByIntent(ctx context.Context, intentID string, at time.Time) error
	FailByIntent(ctx context.Context, intentID string) error
	RefundByIntent(ctx context.Context, intentID string, at time.Time) error
}

// Reconciler dispatches verified events to per-type handlers.
type Reconciler struct {
	gw        gateway.Gateway
	handlers  map[string]HandlerFunc
	payments  PaymentReconciler
	bookings  booking.Repository
	publisher notify.Publisher
}

func NewReconciler(gw gateway.Gateway, payments PaymentReconciler, bookings booking.Repository, publisher notify.Publisher) *Reconciler {
	r := &Reconciler{
		gw:        gw,
		payments:  payments,
		bookings:  bookings,
		publisher: publisher,
	}
	r.handlers = map[string]HandlerFunc{
		gateway.EventIntentSucceeded: r.onIntentSucceeded,
		gateway.EventIntentFailed:    r.onIntentFailed,
		gateway.EventChargeRefunded:  r.onChargeRefunded,
		gateway.EventTransferCreated: r.onTransferCreated,
		gateway.EventTransferFailed:  r.onTransferFailed,
	}
	return r
}

// Verify checks the signature and parses the payload. The caller maps
// gateway.ErrSignatureInvalid to 400.
func (r *Reconciler) Verify(payload []byte, signature string) (*gateway.Event, error) {
	return r.gw.VerifyWebhook(payload, signature)
}

// Process runs the handler registered for the event's type. Unknown types
// and unknown intents are absorbed: there is nothing useful in making the
// gateway retry those.
func (r *Reconciler) Process(ctx context.Context, ev *gateway.Event) error {
	handler, ok := r.handlers[ev.Type]
	if !ok {
		logger.Debug("ignoring webhook event", "event_type", ev.Type, "event_id", ev.ID)
		metrics.RecordWebhookEvent(ev.Type, "ignored")
		return nil
	}

	if err := handler(ctx, ev); err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			logger.Info("webhook for unknown intent", "event_type", ev.Type, "intent_id", ev.IntentID)
			metrics.RecordWebhookEvent(ev.Type, "unknown_intent")
			return nil
		}
		metrics.RecordWebhookEvent(ev.Type, "error")
		return err
	}

	metrics.RecordWebhookEvent(ev.Type, "applied")
	return nil
}

func (r *Reconciler) onIntentSucceeded(ctx context.Context, ev *gateway.Event) error {
	if err := r.payments.CompleteByIntent(ctx, ev.IntentID, time.Now().UTC()); err != nil {
		return err
	}
	logger.Info("payment intent succeeded", "intent_id", ev.IntentID, "event_id", ev.ID)
	return nil
}

func (r *Reconciler) onIntentFailed(ctx context.Context, ev *gateway.Event) error {
	if err := r.payments.FailByIntent(ctx, ev.IntentID); err != nil {
		return err
	}
	logger.Info("payment intent failed", "intent_id", ev.IntentID, "event_id", ev.ID)
	r.publisher.Publish(ctx, "payment.failed", ev)
	return nil
}

func (r *Reconciler) onChargeRefunded(ctx context.Context, ev *gateway.Event) error {
	if err := r.payments.RefundByIntent(ctx, ev.IntentID, time.Now().UTC()); err != nil {
		return err
	}
	logger.Info("charge refunded", "intent_id", ev.IntentID, "event_id", ev.ID)
	return nil
}

// onTransferCreated is pure bookkeeping: the booking's payout timestamp.
func (r *Reconciler) onTransferCreated(ctx context.Context, ev *gateway.Event) error {
	bookingID, ok := bookingIDFromMetadata(ev)
	if !ok {
		logger.Info("transfer event without booking metadata", "event_id", ev.ID)
		return nil
	}

	if err := r.bookings.MarkPayoutCompleted(ctx, bookingID, time.Now().UTC()); err != nil {
		return err
	}
	r.publisher.Publish(ctx, "payout.completed", ev)
	return nil
}

// onTransferFailed only records the failure; payouts are remediated by hand.
func (r *Reconciler) onTransferFailed(_ context.Context, ev *gateway.Event) error {
	bookingID, _ := bookingIDFromMetadata(ev)
	logger.Error("payout transfer failed", "event_id", ev.ID, "booking_id", bookingID)
	return nil
}

func bookingIDFromMetadata(ev *gateway.Event) (int, bool) {
	raw, ok := ev.Metadata["booking_id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}
