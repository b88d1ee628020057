package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coachbook/internal/gateway"
	"coachbook/internal/logger"
	"coachbook/internal/metrics"
	"coachbook/internal/notify"
	"coachbook/internal/pricing"
	"coachbook/internal/service"
	"coachbook/internal/slot"
	"coachbook/internal/user"
	"coachbook/internal/wallet"
)

var (
	ErrForbidden          = errors.New("caller may not act on this booking")
	ErrOfferingInactive   = errors.New("service offering is not active")
	ErrCrossOwnerConflict = errors.New("all slots of a booking must belong to the offering's creator")
	ErrInvalidSchedule    = errors.New("booking schedule is invalid")
	ErrSegmentsLocked     = errors.New("segments can only change while the booking is pending")
	ErrNotTerminal        = errors.New("only finished bookings can be deleted")
)

// CapturedPayment is the slice of a completed payment the cancellation
// orchestrator needs: how much came from the wallet, how much from the card,
// and which gateway intent captured the card part.
type CapturedPayment struct {
	IntentID         string
	WalletUsedCents  int64
	CardChargedCents int64
}

// PaymentSource is implemented by the payment layer. The booking package
// depends on this interface rather than the payment package directly.
type PaymentSource interface {
	CapturedPayments(ctx context.Context, bookingID int) ([]CapturedPayment, error)
}

// PricingPolicy carries the platform's commercial knobs, loaded once from
// configuration.
type PricingPolicy struct {
	DepositPercent     float64
	PlatformFeePercent float64
	PremiumFeePercent  float64
	TaxPercent         float64
	WalletCreditTTL    time.Duration
	Currency           string
}

type Service struct {
	repo      Repository
	slots     slot.Repository
	offerings service.Repository
	users     user.Repository
	wallets   wallet.Repository
	payments  PaymentSource
	gw        gateway.Gateway
	publisher notify.Publisher
	policy    PricingPolicy
}

func NewService(
	repo Repository,
	slots slot.Repository,
	offerings service.Repository,
	users user.Repository,
	wallets wallet.Repository,
	payments PaymentSource,
	gw gateway.Gateway,
	publisher notify.Publisher,
	policy PricingPolicy,
) *Service {
	return &Service{
		repo:      repo,
		slots:     slots,
		offerings: offerings,
		users:     users,
		wallets:   wallets,
		payments:  payments,
		gw:        gw,
		publisher: publisher,
		policy:    policy,
	}
}

// Create books an offering for an athlete, either against pre-reserved
// creator slots or as an ad-hoc time range. Slot bindings and the booking row
// commit atomically; losing a slot race surfaces slot.ErrAlreadyBooked with
// nothing written.
func (s *Service) Create(ctx context.Context, athleteID int, req CreateBookingRequest) (*BookingWithSegments, error) {
	offering, err := s.offerings.GetByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !offering.Active {
		return nil, ErrOfferingInactive
	}

	athlete, err := s.users.FindByID(ctx, athleteID)
	if err != nil {
		return nil, err
	}

	drafts, err := s.buildDrafts(ctx, offering, req)
	if err != nil {
		return nil, err
	}

	start, end, minutes := envelope(drafts)
	quote := pricing.Compute(offering.RateCents, minutes, athlete.Premium,
		s.policy.PlatformFeePercent, s.policy.PremiumFeePercent, s.policy.TaxPercent)

	b := &Booking{
		AthleteID:     athleteID,
		CreatorID:     offering.CreatorID,
		ServiceID:     offering.ID,
		Currency:      s.policy.Currency,
		StartTime:     start,
		EndTime:       end,
		BookedMinutes: minutes,
		SubtotalCents: quote.SubtotalCents,
		FeeCents:      quote.FeeCents,
		TaxCents:      quote.TaxCents,
		TotalCents:    quote.TotalCents,
	}

	created, segments, err := s.repo.Create(ctx, b, drafts)
	if err != nil {
		if errors.Is(err, slot.ErrAlreadyBooked) {
			metrics.RecordSlotConflict()
		}
		return nil, err
	}

	metrics.RecordBooking(string(StatusPending))
	s.publisher.Publish(ctx, "booking.created", created)
	logger.Info("booking created", "booking_id", created.ID, "athlete_id", athleteID, "total_cents", created.TotalCents)

	return &BookingWithSegments{Booking: created, Segments: segments}, nil
}

func (s *Service) buildDrafts(ctx context.Context, offering *service.Offering, req CreateBookingRequest) ([]SegmentDraft, error) {
	if len(req.SlotIDs) > 0 {
		drafts := make([]SegmentDraft, 0, len(req.SlotIDs))
		for _, slotID := range req.SlotIDs {
			sl, err := s.slots.GetByID(ctx, slotID)
			if err != nil {
				return nil, err
			}
			if sl.OwnerID != offering.CreatorID {
				return nil, ErrCrossOwnerConflict
			}
			id := slotID
			drafts = append(drafts, SegmentDraft{
				StartTime:  sl.StartTime,
				EndTime:    sl.EndTime,
				PriceCents: pricing.Prorate(offering.RateCents, int(sl.EndTime.Sub(sl.StartTime)/time.Minute)),
				SlotID:     &id,
			})
		}
		return drafts, nil
	}

	if req.StartTime == "" || req.DurationMinutes <= 0 {
		return nil, ErrInvalidSchedule
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)

	return []SegmentDraft{{
		StartTime:  start,
		EndTime:    end,
		PriceCents: pricing.Prorate(offering.RateCents, req.DurationMinutes),
	}}, nil
}

func envelope(drafts []SegmentDraft) (start, end time.Time, minutes int) {
	for i, d := range drafts {
		if i == 0 || d.StartTime.Before(start) {
			start = d.StartTime
		}
		if i == 0 || d.EndTime.After(end) {
			end = d.EndTime
		}
		minutes += int(d.EndTime.Sub(d.StartTime) / time.Minute)
	}
	return start, end, minutes
}

// Get returns a booking with its segments. Only the two parties (and admins)
// may see it; soft-deleted bookings are hidden from non-admins.
func (s *Service) Get(ctx context.Context, id, callerID int, admin bool) (*BookingWithSegments, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && b.AthleteID != callerID && b.CreatorID != callerID {
		return nil, ErrForbidden
	}
	if b.SoftDeleted && !admin {
		return nil, ErrBookingNotFound
	}

	segments, err := s.repo.SegmentsByBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BookingWithSegments{Booking: b, Segments: segments}, nil
}

func (s *Service) ListMine(ctx context.Context, callerID int) ([]Booking, error) {
	return s.repo.ListByUser(ctx, callerID)
}

// Accept moves a pending booking to accepted. Creator only.
func (s *Service) Accept(ctx context.Context, id, callerID int) (*Booking, error) {
	return s.creatorTransition(ctx, id, callerID, StatusAccepted, s.repo.Accept)
}

// Decline moves a pending booking to declined and frees its slots.
func (s *Service) Decline(ctx context.Context, id, callerID int) (*Booking, error) {
	return s.creatorTransition(ctx, id, callerID, StatusDeclined, s.repo.Decline)
}

// Start moves an accepted booking to in_progress.
func (s *Service) Start(ctx context.Context, id, callerID int) (*Booking, error) {
	return s.creatorTransition(ctx, id, callerID, StatusInProgress, s.repo.Start)
}

func (s *Service) creatorTransition(ctx context.Context, id, callerID int, to Status, move func(context.Context, int) (bool, error)) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CreatorID != callerID {
		return nil, ErrForbidden
	}
	if !b.Status.CanTransitionTo(to) {
		return nil, newInvalidTransition(id, b.Status, to)
	}

	moved, err := move(ctx, id)
	if err != nil {
		return nil, err
	}
	if !moved {
		// Lost the race: report against the state we actually landed in.
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, newInvalidTransition(id, current.Status, to)
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics.RecordBooking(string(to))
	s.publisher.Publish(ctx, "booking."+string(to), updated)
	return updated, nil
}

// Complete marks a booking delivered. Creator only; allowed from accepted or
// in_progress.
func (s *Service) Complete(ctx context.Context, id, callerID int, completedAt time.Time) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CreatorID != callerID {
		return nil, ErrForbidden
	}
	if !b.Status.CanTransitionTo(StatusCompleted) {
		return nil, newInvalidTransition(id, b.Status, StatusCompleted)
	}

	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	moved, err := s.repo.Complete(ctx, id, completedAt)
	if err != nil {
		return nil, err
	}
	if !moved {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, newInvalidTransition(id, current.Status, StatusCompleted)
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics.RecordBooking(string(StatusCompleted))
	s.publisher.Publish(ctx, "booking.completed", updated)
	return updated, nil
}

// Cancel ends a booking from any non-terminal state and kicks off refunds.
// The cancellation commits first; a failed refund never rolls it back, it is
// reported as a warning and retried out of band.
func (s *Service) Cancel(ctx context.Context, id, callerID int, admin bool, reason string) (*CancelResult, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && b.AthleteID != callerID && b.CreatorID != callerID {
		return nil, ErrForbidden
	}
	if !b.Status.CanTransitionTo(StatusCancelled) {
		return nil, newInvalidTransition(id, b.Status, StatusCancelled)
	}

	moved, err := s.repo.Cancel(ctx, id, callerID, reason)
	if err != nil {
		return nil, err
	}
	if !moved {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, newInvalidTransition(id, current.Status, StatusCancelled)
	}

	metrics.RecordBookingCancellation()

	warning := s.refundCaptured(ctx, b)

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, "booking.cancelled", updated)
	return &CancelResult{Booking: updated, RefundWarning: warning}, nil
}

// refundCaptured reverses every captured payment of a cancelled booking.
// Wallet portions are credited back immediately; card portions are sent back
// to the card by the gateway, and the refunded status lands asynchronously
// via the webhook reconciler. Returns a human-readable warning when any card
// refund could not be started.
func (s *Service) refundCaptured(ctx context.Context, b *Booking) string {
	captured, err := s.payments.CapturedPayments(ctx, b.ID)
	if err != nil {
		logger.Error("loading captured payments for refund", "booking_id", b.ID, "error", err.Error())
		return "refund could not be started; it will be retried"
	}
	if len(captured) == 0 {
		return ""
	}

	var walletTotal int64
	cardRefundsPending := false
	warning := ""

	for _, p := range captured {
		walletTotal += p.WalletUsedCents
		if p.CardChargedCents == 0 {
			continue
		}
		if err := s.gw.Refund(ctx, p.IntentID); err != nil {
			logger.Error("gateway refund failed", "booking_id", b.ID, "intent_id", p.IntentID, "error", err.Error())
			metrics.RecordRefund("failed")
			warning = "card refund could not be started; it will be retried"
			continue
		}
		cardRefundsPending = true
		metrics.RecordRefund("requested")
	}

	if walletTotal > 0 {
		already, err := s.wallets.HasRefundForBooking(ctx, b.ID)
		if err != nil {
			logger.Error("wallet refund check failed", "booking_id", b.ID, "error", err.Error())
			return "wallet refund could not be started; it will be retried"
		}
		if !already {
			expires := time.Now().UTC().Add(s.policy.WalletCreditTTL)
			bookingID := b.ID
			if _, err := s.wallets.Credit(ctx, b.AthleteID, walletTotal, wallet.TypeRefund, &expires, &bookingID); err != nil {
				logger.Error("wallet refund credit failed", "booking_id", b.ID, "error", err.Error())
				return "wallet refund could not be started; it will be retried"
			}
			metrics.RecordRefund("wallet_credited")
		}
	}

	// A fully wallet-funded booking has no gateway leg, so there is no
	// webhook coming; settle the terminal state here.
	if !cardRefundsPending && warning == "" {
		if err := s.repo.MarkRefunded(ctx, b.ID); err != nil {
			logger.Error("marking booking refunded", "booking_id", b.ID, "error", err.Error())
		}
	}

	return warning
}

// AddSegment extends a pending booking with another time range and reprices
// the whole booking from the new envelope.
func (s *Service) AddSegment(ctx context.Context, bookingID, callerID int, req AddSegmentRequest) (*BookingWithSegments, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.AthleteID != callerID {
		return nil, ErrForbidden
	}
	if b.Status != StatusPending {
		return nil, ErrSegmentsLocked
	}

	offering, err := s.offerings.GetByID(ctx, b.ServiceID)
	if err != nil {
		return nil, err
	}

	var draft SegmentDraft
	if req.SlotID != nil {
		sl, err := s.slots.GetByID(ctx, *req.SlotID)
		if err != nil {
			return nil, err
		}
		if sl.OwnerID != b.CreatorID {
			return nil, ErrCrossOwnerConflict
		}
		draft = SegmentDraft{
			StartTime:  sl.StartTime,
			EndTime:    sl.EndTime,
			PriceCents: pricing.Prorate(offering.RateCents, int(sl.EndTime.Sub(sl.StartTime)/time.Minute)),
			SlotID:     req.SlotID,
		}
	} else {
		if req.StartTime == "" || req.DurationMinutes <= 0 {
			return nil, ErrInvalidSchedule
		}
		start, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		draft = SegmentDraft{
			StartTime:  start,
			EndTime:    start.Add(time.Duration(req.DurationMinutes) * time.Minute),
			PriceCents: pricing.Prorate(offering.RateCents, req.DurationMinutes),
		}
	}

	if _, err := s.repo.AddSegment(ctx, bookingID, draft); err != nil {
		if errors.Is(err, slot.ErrAlreadyBooked) {
			metrics.RecordSlotConflict()
		}
		return nil, err
	}

	return s.reprice(ctx, bookingID, offering.RateCents)
}

// RemoveSegment drops a segment from a pending booking, frees its slot and
// reprices. The last segment cannot be removed; cancel the booking instead.
func (s *Service) RemoveSegment(ctx context.Context, bookingID, segmentID, callerID int) (*BookingWithSegments, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.AthleteID != callerID {
		return nil, ErrForbidden
	}
	if b.Status != StatusPending {
		return nil, ErrSegmentsLocked
	}

	if err := s.repo.RemoveSegment(ctx, bookingID, segmentID); err != nil {
		return nil, err
	}

	offering, err := s.offerings.GetByID(ctx, b.ServiceID)
	if err != nil {
		return nil, err
	}
	return s.reprice(ctx, bookingID, offering.RateCents)
}

func (s *Service) reprice(ctx context.Context, bookingID int, rateCents int64) (*BookingWithSegments, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	athlete, err := s.users.FindByID(ctx, b.AthleteID)
	if err != nil {
		return nil, err
	}

	quote := pricing.Compute(rateCents, b.BookedMinutes, athlete.Premium,
		s.policy.PlatformFeePercent, s.policy.PremiumFeePercent, s.policy.TaxPercent)
	if err := s.repo.UpdatePricing(ctx, bookingID, quote.SubtotalCents, quote.FeeCents, quote.TaxCents, quote.TotalCents); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	segments, err := s.repo.SegmentsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &BookingWithSegments{Booking: updated, Segments: segments}, nil
}

// SoftDelete hides a terminal booking from listings without destroying its
// financial history.
func (s *Service) SoftDelete(ctx context.Context, id, callerID int, admin bool) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !admin && b.AthleteID != callerID && b.CreatorID != callerID {
		return ErrForbidden
	}
	if !b.Status.IsTerminal() {
		return ErrNotTerminal
	}
	return s.repo.SoftDelete(ctx, id)
}

// Restore is admin-only.
func (s *Service) Restore(ctx context.Context, id int) (*Booking, error) {
	restored, err := s.repo.Restore(ctx, id)
	if err != nil {
		return nil, err
	}
	if !restored {
		return nil, ErrBookingNotFound
	}
	return s.repo.GetByID(ctx, id)
}
