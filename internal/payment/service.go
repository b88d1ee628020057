package payment

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
	"coachbook/internal/pricing"
	"coachbook/internal/wallet"
)

var (
	ErrForbidden              = errors.New("caller may not pay for this booking")
	ErrNotPayable             = errors.New("booking is not in a payable state")
	ErrAlreadyPaid            = errors.New("this leg of the booking is already paid")
	ErrRemainingBeforeDeposit = errors.New("the deposit must be paid before the remaining amount")
)

type Service struct {
	repo      Repository
	bookings  booking.Repository
	wallets   wallet.Repository
	gw        gateway.Gateway
	publisher notify.Publisher
	policy    booking.PricingPolicy
}

func NewService(
	repo Repository,
	bookings booking.Repository,
	wallets wallet.Repository,
	gw gateway.Gateway,
	publisher notify.Publisher,
	policy booking.PricingPolicy,
) *Service {
	return &Service{
		repo:      repo,
		bookings:  bookings,
		wallets:   wallets,
		gw:        gw,
		publisher: publisher,
		policy:    policy,
	}
}

// CreateIntent starts settling one leg of a booking. Wallet credit covers as
// much as the balance allows; only the shortfall goes to the card. A fully
// wallet-covered payment debits and completes on the spot with no gateway
// round trip. When a card is involved the split is only recorded here; the
// wallet debit waits for the gateway to confirm, guarded by the
// pending-to-completed swap so it happens at most once.
func (s *Service) CreateIntent(ctx context.Context, userID int, req CreateIntentRequest) (*IntentResponse, error) {
	b, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.AthleteID != userID {
		return nil, ErrForbidden
	}
	if b.Status != booking.StatusAccepted && b.Status != booking.StatusInProgress {
		return nil, ErrNotPayable
	}

	payType := Type(req.PaymentType)
	amount, err := s.legAmount(ctx, b, payType)
	if err != nil {
		return nil, err
	}

	var walletUsed int64
	if req.UseWallet {
		balance, err := s.wallets.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		walletUsed = min(balance, amount)
	}
	cardCharged := amount - walletUsed

	bookingID := b.ID
	p, err := s.repo.Create(ctx, &Payment{
		BookingID:   &bookingID,
		UserID:      userID,
		AmountCents: amount,
		Metadata: Metadata{
			WalletUsed:  walletUsed,
			CardCharged: cardCharged,
			IsDeposit:   payType == TypeDeposit,
			PaymentType: payType,
		},
		Currency: s.policy.Currency,
	})
	if err != nil {
		return nil, err
	}

	if cardCharged == 0 {
		if _, err := s.wallets.Debit(ctx, userID, walletUsed, &bookingID); err != nil {
			if _, casErr := s.repo.MarkFailed(ctx, p.ID); casErr != nil {
				logger.Error("marking payment failed after wallet debit error", "payment_id", p.ID, "error", casErr.Error())
			}
			return nil, err
		}
		if err := s.completeOffline(ctx, p); err != nil {
			return nil, err
		}
		completed, err := s.repo.GetByID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return &IntentResponse{Payment: completed}, nil
	}

	intent, err := s.gw.CreateIntent(ctx, cardCharged, s.policy.Currency, map[string]string{
		"payment_id":   strconv.Itoa(p.ID),
		"booking_id":   strconv.Itoa(b.ID),
		"payment_type": string(payType),
		"wallet_used":  strconv.FormatInt(walletUsed, 10),
		"card_charged": strconv.FormatInt(cardCharged, 10),
	})
	if err != nil {
		s.markFailed(ctx, p)
		return nil, err
	}

	if err := s.repo.SetIntentID(ctx, p.ID, intent.ID); err != nil {
		return nil, err
	}

	metrics.RecordPayment("created", string(payType))
	updated, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &IntentResponse{Payment: updated, ClientSecret: intent.ClientSecret}, nil
}

// legAmount resolves how much the requested leg costs, establishing the
// deposit plan on first use.
func (s *Service) legAmount(ctx context.Context, b *booking.Booking, payType Type) (int64, error) {
	switch payType {
	case TypeDeposit:
		if b.DepositPaidAt != nil {
			return 0, ErrAlreadyPaid
		}
		if b.DepositAmountCents == 0 {
			deposit, remaining := pricing.SplitDeposit(b.TotalCents, s.policy.DepositPercent)
			if err := s.bookings.SetDepositPlan(ctx, b.ID, deposit, remaining); err != nil {
				return 0, err
			}
			return deposit, nil
		}
		return b.DepositAmountCents, nil

	case TypeRemaining:
		if b.DepositPaidAt == nil {
			return 0, ErrRemainingBeforeDeposit
		}
		if b.RemainingPaidAt != nil {
			return 0, ErrAlreadyPaid
		}
		return b.RemainingAmountCents, nil

	case TypeFull:
		if b.DepositPaidAt != nil || b.RemainingPaidAt != nil {
			return 0, ErrAlreadyPaid
		}
		return b.TotalCents, nil
	}
	return 0, ErrNotPayable
}

// completeOffline settles a payment the wallet fully covered.
func (s *Service) completeOffline(ctx context.Context, p *Payment) error {
	moved, err := s.repo.MarkCompleted(ctx, p.ID)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	return s.settle(ctx, p, time.Now().UTC())
}

// markFailed flips a payment to failed. No wallet is touched: the wallet
// slice is only ever debited on completion.
func (s *Service) markFailed(ctx context.Context, p *Payment) {
	moved, err := s.repo.MarkFailed(ctx, p.ID)
	if err != nil {
		logger.Error("marking payment failed", "payment_id", p.ID, "error", err.Error())
		return
	}
	if moved {
		metrics.RecordPayment("failed", string(p.Metadata.PaymentType))
	}
}

// settle applies a completed payment to its booking (or, for top-ups, to the
// wallet).
func (s *Service) settle(ctx context.Context, p *Payment, at time.Time) error {
	if p.Metadata.PaymentType == TypeTopUp {
		expires := at.Add(s.policy.WalletCreditTTL)
		if _, err := s.wallets.Credit(ctx, p.UserID, p.AmountCents, wallet.TypePurchase, &expires, nil); err != nil {
			return err
		}
		metrics.RecordPayment("completed", string(TypeTopUp))
		s.publisher.Publish(ctx, "wallet.topped_up", p)
		return nil
	}

	if p.BookingID == nil {
		return nil
	}

	var err error
	switch p.Metadata.PaymentType {
	case TypeDeposit:
		err = s.bookings.MarkDepositPaid(ctx, *p.BookingID, at)
	case TypeRemaining:
		err = s.bookings.MarkRemainingPaid(ctx, *p.BookingID, at)
	case TypeFull:
		err = s.bookings.MarkPaidInFull(ctx, *p.BookingID, at)
	}
	if err != nil {
		return err
	}

	metrics.RecordPayment("completed", string(p.Metadata.PaymentType))
	s.publisher.Publish(ctx, "payment.completed", p)
	return nil
}

// CompleteByIntent is the reconciliation entry point for a succeeded gateway
// intent. Unknown intents are reported as ErrPaymentNotFound; replays are
// absorbed by the status compare-and-swap.
func (s *Service) CompleteByIntent(ctx context.Context, intentID string, at time.Time) error {
	p, err := s.repo.FindByIntentID(ctx, intentID)
	if err != nil {
		return err
	}

	moved, err := s.repo.MarkCompleted(ctx, p.ID)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	// The booking may have been cancelled while the intent was in flight.
	// Settling would take wallet credit and set paid markers on a dead
	// booking, so the capture is sent back to the card instead. A completed
	// booking still settles: a remaining leg confirming after the session
	// is delivered is the normal case, not an orphan.
	if p.BookingID != nil {
		b, err := s.bookings.GetByID(ctx, *p.BookingID)
		if err != nil {
			return err
		}
		if bookingDead(b.Status) {
			logger.Warn("intent succeeded for a dead booking, refunding capture",
				"payment_id", p.ID, "booking_id", b.ID, "booking_status", string(b.Status))
			if err := s.gw.Refund(ctx, intentID); err != nil {
				// The swap already happened, so a retry will no-op; the
				// stranded capture is an ops alert, not a retry loop.
				logger.Error("refunding capture for dead booking", "payment_id", p.ID, "error", err.Error())
			}
			metrics.RecordRefund("orphaned_capture")
			return nil
		}
	}

	// The swap above makes this debit at-most-once across webhook replays.
	if p.Metadata.WalletUsed > 0 {
		if _, err := s.wallets.Debit(ctx, p.UserID, p.Metadata.WalletUsed, p.BookingID); err != nil {
			// The credit was spent elsewhere while the intent was in flight.
			// The payment still settles; the shortfall is an ops problem,
			// not a reason to keep the gateway retrying.
			logger.Error("wallet debit on completion", "payment_id", p.ID, "error", err.Error())
		}
	}

	return s.settle(ctx, p, at)
}

// bookingDead reports whether a booking can no longer receive money.
// Completed is deliberately absent: a remaining leg may confirm after the
// session ends.
func bookingDead(status booking.Status) bool {
	return status == booking.StatusCancelled ||
		status == booking.StatusRefunded ||
		status == booking.StatusDeclined
}

// FailByIntent handles a failed gateway intent. The payment flips to failed;
// nothing was ever taken from the wallet, so there is nothing to return.
func (s *Service) FailByIntent(ctx context.Context, intentID string) error {
	p, err := s.repo.FindByIntentID(ctx, intentID)
	if err != nil {
		return err
	}
	s.markFailed(ctx, p)
	return nil
}

// RefundByIntent handles the gateway confirming a card refund. This is
// bookkeeping only: the card slice went back to the payment method by the
// gateway refund itself, and the wallet slice was re-credited when the
// booking was cancelled. Touching the ledger here would pay the card slice
// out twice.
func (s *Service) RefundByIntent(ctx context.Context, intentID string, at time.Time) error {
	p, err := s.repo.FindByIntentID(ctx, intentID)
	if err != nil {
		return err
	}

	moved, err := s.repo.MarkRefunded(ctx, p.ID)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	if p.BookingID != nil {
		if err := s.bookings.MarkRefunded(ctx, *p.BookingID); err != nil {
			return err
		}
	}

	metrics.RecordRefund("completed")
	s.publisher.Publish(ctx, "payment.refunded", p)
	return nil
}

// Status reports where a booking's money stands, visible to both parties.
func (s *Service) Status(ctx context.Context, bookingID, callerID int, admin bool) (*StatusResponse, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !admin && b.AthleteID != callerID && b.CreatorID != callerID {
		return nil, ErrForbidden
	}

	payments, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	return &StatusResponse{
		BookingID:            b.ID,
		Phase:                phase(b),
		DepositPaidAt:        b.DepositPaidAt,
		RemainingPaidAt:      b.RemainingPaidAt,
		DeliverablesUnlocked: b.DeliverablesUnlocked(),
		Payments:             payments,
	}, nil
}

func phase(b *booking.Booking) string {
	switch {
	case b.Status == booking.StatusRefunded:
		return "refunded"
	case b.RemainingPaidAt != nil:
		return "paid_in_full"
	case b.DepositPaidAt != nil:
		return "deposit_paid"
	default:
		return "unpaid"
	}
}

// TopUp buys wallet credit with a card. The credit lands when the gateway
// confirms the charge.
func (s *Service) TopUp(ctx context.Context, userID int, req TopUpRequest) (*IntentResponse, error) {
	p, err := s.repo.Create(ctx, &Payment{
		UserID:      userID,
		AmountCents: req.AmountCents,
		Metadata: Metadata{
			CardCharged: req.AmountCents,
			PaymentType: TypeTopUp,
		},
		Currency: s.policy.Currency,
	})
	if err != nil {
		return nil, err
	}

	intent, err := s.gw.CreateIntent(ctx, req.AmountCents, s.policy.Currency, map[string]string{
		"payment_id":   strconv.Itoa(p.ID),
		"payment_type": string(TypeTopUp),
	})
	if err != nil {
		s.markFailed(ctx, p)
		return nil, err
	}

	if err := s.repo.SetIntentID(ctx, p.ID, intent.ID); err != nil {
		return nil, err
	}

	metrics.RecordPayment("created", string(TypeTopUp))
	updated, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &IntentResponse{Payment: updated, ClientSecret: intent.ClientSecret}, nil
}

func (s *Service) ListMine(ctx context.Context, userID int) ([]Payment, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Source adapts the payment store to what the cancellation orchestrator
// needs, without the booking package importing this one.
type Source struct {
	repo Repository
}

func NewSource(repo Repository) *Source {
	return &Source{repo: repo}
}

func (s *Source) CapturedPayments(ctx context.Context, bookingID int) ([]booking.CapturedPayment, error) {
	payments, err := s.repo.CompletedByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	captured := make([]booking.CapturedPayment, 0, len(payments))
	for _, p := range payments {
		cp := booking.CapturedPayment{
			WalletUsedCents:  p.Metadata.WalletUsed,
			CardChargedCents: p.Metadata.CardCharged,
		}
		if p.IntentID != nil {
			cp.IntentID = *p.IntentID
		}
		captured = append(captured, cp)
	}
	return captured, nil
}
