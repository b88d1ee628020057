package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coachbook/internal/booking"
	"coachbook/internal/gateway"
	"coachbook/internal/notify"
	"coachbook/internal/wallet"
)

// Mock repositories
type MockPaymentRepo struct{ mock.Mock }
type MockBookingRepo struct{ mock.Mock }
type MockWalletRepo struct{ mock.Mock }
type MockGateway struct{ mock.Mock }

func (m *MockPaymentRepo) Create(ctx context.Context, p *Payment) (*Payment, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockPaymentRepo) GetByID(ctx context.Context, id int) (*Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockPaymentRepo) FindByIntentID(ctx context.Context, intentID string) (*Payment, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockPaymentRepo) ListByBooking(ctx context.Context, bookingID int) ([]Payment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Payment), args.Error(1)
}

func (m *MockPaymentRepo) ListByUser(ctx context.Context, userID int) ([]Payment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Payment), args.Error(1)
}

func (m *MockPaymentRepo) SetIntentID(ctx context.Context, id int, intentID string) error {
	return m.Called(ctx, id, intentID).Error(0)
}

func (m *MockPaymentRepo) MarkCompleted(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepo) MarkFailed(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepo) MarkRefunded(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepo) CompletedByBooking(ctx context.Context, bookingID int) ([]Payment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Payment), args.Error(1)
}

func (m *MockBookingRepo) Create(ctx context.Context, b *booking.Booking, segments []booking.SegmentDraft) (*booking.Booking, []booking.Segment, error) {
	args := m.Called(ctx, b, segments)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*booking.Booking), args.Get(1).([]booking.Segment), args.Error(2)
}

func (m *MockBookingRepo) GetByID(ctx context.Context, id int) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepo) SegmentsByBooking(ctx context.Context, bookingID int) ([]booking.Segment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]booking.Segment), args.Error(1)
}

func (m *MockBookingRepo) ListByUser(ctx context.Context, userID int) ([]booking.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]booking.Booking), args.Error(1)
}

func (m *MockBookingRepo) Accept(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) Decline(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) Cancel(ctx context.Context, id, cancelledBy int, reason string) (bool, error) {
	args := m.Called(ctx, id, cancelledBy, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) Complete(ctx context.Context, id int, completedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, completedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) Start(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) SoftDelete(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBookingRepo) Restore(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) AddSegment(ctx context.Context, bookingID int, draft booking.SegmentDraft) (*booking.Segment, error) {
	args := m.Called(ctx, bookingID, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Segment), args.Error(1)
}

func (m *MockBookingRepo) RemoveSegment(ctx context.Context, bookingID, segmentID int) error {
	return m.Called(ctx, bookingID, segmentID).Error(0)
}

func (m *MockBookingRepo) UpdatePricing(ctx context.Context, id int, subtotal, fee, tax, total int64) error {
	return m.Called(ctx, id, subtotal, fee, tax, total).Error(0)
}

func (m *MockBookingRepo) SetDepositPlan(ctx context.Context, id int, depositCents, remainingCents int64) error {
	return m.Called(ctx, id, depositCents, remainingCents).Error(0)
}

func (m *MockBookingRepo) MarkDepositPaid(ctx context.Context, id int, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockBookingRepo) MarkRemainingPaid(ctx context.Context, id int, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockBookingRepo) MarkPaidInFull(ctx context.Context, id int, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockBookingRepo) MarkRefunded(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBookingRepo) MarkPayoutCompleted(ctx context.Context, id int, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockWalletRepo) Balance(ctx context.Context, userID int) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWalletRepo) Credit(ctx context.Context, userID int, amountCents int64, entryType wallet.EntryType, expiresAt *time.Time, bookingID *int) (*wallet.Entry, error) {
	args := m.Called(ctx, userID, amountCents, entryType, expiresAt, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Entry), args.Error(1)
}

func (m *MockWalletRepo) Debit(ctx context.Context, userID int, amountCents int64, bookingID *int) (*wallet.Entry, error) {
	args := m.Called(ctx, userID, amountCents, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Entry), args.Error(1)
}

func (m *MockWalletRepo) Entries(ctx context.Context, userID int, limit, offset int) ([]wallet.Entry, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wallet.Entry), args.Error(1)
}

func (m *MockWalletRepo) HasRefundForBooking(ctx context.Context, bookingID int) (bool, error) {
	args := m.Called(ctx, bookingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockWalletRepo) ExpireCredits(ctx context.Context, userID int) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockGateway) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*gateway.Intent, error) {
	args := m.Called(ctx, amountCents, currency, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Intent), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, intentID string) error {
	return m.Called(ctx, intentID).Error(0)
}

func (m *MockGateway) VerifyWebhook(payload []byte, signature string) (*gateway.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Event), args.Error(1)
}

type fixture struct {
	repo     *MockPaymentRepo
	bookings *MockBookingRepo
	wallets  *MockWalletRepo
	gw       *MockGateway
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:     new(MockPaymentRepo),
		bookings: new(MockBookingRepo),
		wallets:  new(MockWalletRepo),
		gw:       new(MockGateway),
	}
	f.svc = NewService(f.repo, f.bookings, f.wallets, f.gw, notify.Nop{}, booking.PricingPolicy{
		DepositPercent:     30,
		PlatformFeePercent: 5,
		TaxPercent:         20,
		WalletCreditTTL:    365 * 24 * time.Hour,
		Currency:           "usd",
	})
	return f
}

func acceptedBooking() *booking.Booking {
	return &booking.Booking{ID: 4, AthleteID: 1, CreatorID: 9, Status: booking.StatusAccepted, TotalCents: 12600, Currency: "usd"}
}

func TestCreateIntentEstablishesDepositPlan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4

	f.bookings.On("GetByID", ctx, 4).Return(acceptedBooking(), nil)
	// 30% of 12600, half-up.
	f.bookings.On("SetDepositPlan", ctx, 4, int64(3780), int64(8820)).Return(nil)
	created := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, AmountCents: 3780, Metadata: Metadata{CardCharged: 3780, IsDeposit: true, PaymentType: TypeDeposit}}
	f.repo.On("Create", ctx, mock.MatchedBy(func(p *Payment) bool {
		return p.AmountCents == 3780 && p.Metadata.CardCharged == 3780 && p.Metadata.WalletUsed == 0 && p.Metadata.IsDeposit
	})).Return(created, nil)
	f.gw.On("CreateIntent", ctx, int64(3780), "usd", mock.Anything).Return(&gateway.Intent{ID: "pi_1", ClientSecret: "cs_1"}, nil)
	f.repo.On("SetIntentID", ctx, 10, "pi_1").Return(nil)
	f.repo.On("GetByID", ctx, 10).Return(created, nil)

	result, err := f.svc.CreateIntent(ctx, 1, CreateIntentRequest{BookingID: 4, PaymentType: "deposit"})

	require.NoError(t, err)
	assert.Equal(t, "cs_1", result.ClientSecret)
	f.bookings.AssertExpectations(t)
}

func TestCreateIntentWalletCoversEverything(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4

	b := acceptedBooking()
	b.DepositAmountCents = 3780
	b.RemainingAmountCents = 8820
	f.bookings.On("GetByID", ctx, 4).Return(b, nil)
	f.wallets.On("Balance", ctx, 1).Return(int64(5000), nil)
	created := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, AmountCents: 3780, Metadata: Metadata{WalletUsed: 3780, IsDeposit: true, PaymentType: TypeDeposit}}
	f.repo.On("Create", ctx, mock.MatchedBy(func(p *Payment) bool {
		return p.Metadata.WalletUsed == 3780 && p.Metadata.CardCharged == 0
	})).Return(created, nil)
	f.wallets.On("Debit", ctx, 1, int64(3780), &bookingID).Return(&wallet.Entry{ID: 1}, nil)
	f.repo.On("MarkCompleted", ctx, 10).Return(true, nil)
	f.bookings.On("MarkDepositPaid", ctx, 4, mock.Anything).Return(nil)
	completed := *created
	completed.Status = StatusCompleted
	f.repo.On("GetByID", ctx, 10).Return(&completed, nil)

	result, err := f.svc.CreateIntent(ctx, 1, CreateIntentRequest{BookingID: 4, PaymentType: "deposit", UseWallet: true})

	require.NoError(t, err)
	assert.Empty(t, result.ClientSecret, "no card confirmation needed")
	assert.Equal(t, StatusCompleted, result.Payment.Status)
	f.gw.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateIntentSplitsWalletAndCard(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4

	b := acceptedBooking()
	b.DepositAmountCents = 3780
	b.RemainingAmountCents = 8820
	f.bookings.On("GetByID", ctx, 4).Return(b, nil)
	f.wallets.On("Balance", ctx, 1).Return(int64(1000), nil)
	created := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, AmountCents: 3780, Metadata: Metadata{WalletUsed: 1000, CardCharged: 2780, IsDeposit: true, PaymentType: TypeDeposit}}
	f.repo.On("Create", ctx, mock.MatchedBy(func(p *Payment) bool {
		return p.Metadata.WalletUsed == 1000 && p.Metadata.CardCharged == 2780
	})).Return(created, nil)
	f.gw.On("CreateIntent", ctx, int64(2780), "usd", mock.Anything).Return(&gateway.Intent{ID: "pi_1", ClientSecret: "cs_1"}, nil)
	f.repo.On("SetIntentID", ctx, 10, "pi_1").Return(nil)
	f.repo.On("GetByID", ctx, 10).Return(created, nil)

	result, err := f.svc.CreateIntent(ctx, 1, CreateIntentRequest{BookingID: 4, PaymentType: "deposit", UseWallet: true})

	require.NoError(t, err)
	assert.Equal(t, "cs_1", result.ClientSecret)
	// The wallet slice is not taken yet; that waits for the gateway to confirm.
	f.wallets.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateIntentRecordsSplitInMetadata(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4

	b := acceptedBooking()
	b.TotalCents = 5000
	f.bookings.On("GetByID", ctx, 4).Return(b, nil)
	f.wallets.On("Balance", ctx, 1).Return(int64(2000), nil)
	created := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, AmountCents: 5000, Metadata: Metadata{WalletUsed: 2000, CardCharged: 3000, PaymentType: TypeFull}}
	f.repo.On("Create", ctx, mock.MatchedBy(func(p *Payment) bool {
		return p.Metadata.WalletUsed == 2000 && p.Metadata.CardCharged == 3000 && !p.Metadata.IsDeposit
	})).Return(created, nil)
	f.gw.On("CreateIntent", ctx, int64(3000), "usd", mock.MatchedBy(func(md map[string]string) bool {
		return md["wallet_used"] == "2000" && md["card_charged"] == "3000"
	})).Return(&gateway.Intent{ID: "pi_1", ClientSecret: "cs_1"}, nil)
	f.repo.On("SetIntentID", ctx, 10, "pi_1").Return(nil)
	f.repo.On("GetByID", ctx, 10).Return(created, nil)

	_, err := f.svc.CreateIntent(ctx, 1, CreateIntentRequest{BookingID: 4, PaymentType: "full", UseWallet: true})

	require.NoError(t, err)
	f.gw.AssertExpectations(t)
}

func TestCreateIntentRemainingRequiresDeposit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, 4).Return(acceptedBooking(), nil)

	_, err := f.svc.CreateIntent(ctx, 1, CreateIntentRequest{BookingID: 4, PaymentType: "remaining"})

	assert.ErrorIs(t, err, ErrRemainingBeforeDeposit)
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateIntentFullAfterDepositRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	b := acceptedBooking()
	now := time.Now()
	b.DepositPaidAt = &now
	f.bookings.On("GetByID", ctx, 4).Return(b, nil)

	_, err := f.svc.CreateIntent(ctx, 1, CreateIntentRequest{BookingID: 4, PaymentType: "full"})

	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestCreateIntentRejectsPendingBooking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	b := acceptedBooking()
	b.Status = booking.StatusPending
	f.bookings.On("GetByID", ctx, 4).Return(b, nil)

	_, err := f.svc.CreateIntent(ctx, 1, CreateIntentRequest{BookingID: 4, PaymentType: "deposit"})

	assert.ErrorIs(t, err, ErrNotPayable)
}

func TestCreateIntentGatewayFailureMarksFailed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4

	b := acceptedBooking()
	b.DepositAmountCents = 3780
	b.RemainingAmountCents = 8820
	f.bookings.On("GetByID", ctx, 4).Return(b, nil)
	f.wallets.On("Balance", ctx, 1).Return(int64(1000), nil)
	created := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, AmountCents: 3780, Metadata: Metadata{WalletUsed: 1000, CardCharged: 2780, IsDeposit: true, PaymentType: TypeDeposit}}
	f.repo.On("Create", ctx, mock.Anything).Return(created, nil)
	f.gw.On("CreateIntent", ctx, int64(2780), "usd", mock.Anything).Return(nil, gateway.ErrUnavailable)
	f.repo.On("MarkFailed", ctx, 10).Return(true, nil)

	_, err := f.svc.CreateIntent(ctx, 1, CreateIntentRequest{BookingID: 4, PaymentType: "deposit", UseWallet: true})

	assert.ErrorIs(t, err, gateway.ErrUnavailable)
	f.repo.AssertExpectations(t)
	// Nothing was ever taken from the wallet.
	f.wallets.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteByIntentSettlesDeposit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4
	at := time.Now()

	p := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, Metadata: Metadata{WalletUsed: 1000, CardCharged: 2780, IsDeposit: true, PaymentType: TypeDeposit}}
	f.repo.On("FindByIntentID", ctx, "pi_1").Return(p, nil)
	f.repo.On("MarkCompleted", ctx, 10).Return(true, nil)
	f.bookings.On("GetByID", ctx, 4).Return(acceptedBooking(), nil)
	f.wallets.On("Debit", ctx, 1, int64(1000), &bookingID).Return(&wallet.Entry{ID: 1}, nil)
	f.bookings.On("MarkDepositPaid", ctx, 4, at).Return(nil)

	require.NoError(t, f.svc.CompleteByIntent(ctx, "pi_1", at))
	f.bookings.AssertExpectations(t)
	f.wallets.AssertExpectations(t)
}

func TestCompleteByIntentCancelledBookingRefundsCapture(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4

	b := acceptedBooking()
	b.Status = booking.StatusCancelled
	p := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, Metadata: Metadata{WalletUsed: 2000, CardCharged: 3000, IsDeposit: true, PaymentType: TypeDeposit}}
	f.repo.On("FindByIntentID", ctx, "pi_1").Return(p, nil)
	f.repo.On("MarkCompleted", ctx, 10).Return(true, nil)
	f.bookings.On("GetByID", ctx, 4).Return(b, nil)
	f.gw.On("Refund", ctx, "pi_1").Return(nil)

	require.NoError(t, f.svc.CompleteByIntent(ctx, "pi_1", time.Now()))

	// The capture goes back to the card; nothing is settled on the dead
	// booking and no wallet credit is taken.
	f.gw.AssertExpectations(t)
	f.wallets.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.bookings.AssertNotCalled(t, "MarkDepositPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteByIntentCompletedBookingStillSettles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4
	at := time.Now()

	b := acceptedBooking()
	b.Status = booking.StatusCompleted
	b.DepositPaidAt = &at
	p := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, Metadata: Metadata{CardCharged: 8820, PaymentType: TypeRemaining}}
	f.repo.On("FindByIntentID", ctx, "pi_1").Return(p, nil)
	f.repo.On("MarkCompleted", ctx, 10).Return(true, nil)
	f.bookings.On("GetByID", ctx, 4).Return(b, nil)
	f.bookings.On("MarkRemainingPaid", ctx, 4, at).Return(nil)

	require.NoError(t, f.svc.CompleteByIntent(ctx, "pi_1", at))
	f.bookings.AssertExpectations(t)
	f.gw.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestCompleteByIntentReplayIsNoOp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4

	p := &Payment{ID: 10, BookingID: &bookingID, Metadata: Metadata{WalletUsed: 1000, IsDeposit: true, PaymentType: TypeDeposit}}
	f.repo.On("FindByIntentID", ctx, "pi_1").Return(p, nil)
	f.repo.On("MarkCompleted", ctx, 10).Return(false, nil)

	require.NoError(t, f.svc.CompleteByIntent(ctx, "pi_1", time.Now()))
	f.bookings.AssertNotCalled(t, "MarkDepositPaid", mock.Anything, mock.Anything, mock.Anything)
	// The lost swap also means the wallet slice is not debited twice.
	f.wallets.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteByIntentTopUpCreditsWallet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	at := time.Now()

	p := &Payment{ID: 10, UserID: 1, AmountCents: 5000, Metadata: Metadata{CardCharged: 5000, PaymentType: TypeTopUp}}
	f.repo.On("FindByIntentID", ctx, "pi_1").Return(p, nil)
	f.repo.On("MarkCompleted", ctx, 10).Return(true, nil)
	f.wallets.On("Credit", ctx, 1, int64(5000), wallet.TypePurchase, mock.MatchedBy(func(exp *time.Time) bool {
		return exp != nil && exp.After(at)
	}), (*int)(nil)).Return(&wallet.Entry{ID: 1}, nil)

	require.NoError(t, f.svc.CompleteByIntent(ctx, "pi_1", at))
	f.wallets.AssertExpectations(t)
}

func TestFailByIntentLeavesWalletAlone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4

	p := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, Metadata: Metadata{WalletUsed: 1000, IsDeposit: true, PaymentType: TypeDeposit}}
	f.repo.On("FindByIntentID", ctx, "pi_1").Return(p, nil)
	f.repo.On("MarkFailed", ctx, 10).Return(true, nil)

	require.NoError(t, f.svc.FailByIntent(ctx, "pi_1"))
	f.repo.AssertExpectations(t)
	f.wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.wallets.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRefundByIntentIsBookkeepingOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4
	at := time.Now()

	p := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, AmountCents: 12600, Metadata: Metadata{WalletUsed: 2600, CardCharged: 10000, PaymentType: TypeFull}}
	f.repo.On("FindByIntentID", ctx, "pi_1").Return(p, nil)
	f.repo.On("MarkRefunded", ctx, 10).Return(true, nil)
	f.bookings.On("MarkRefunded", ctx, 4).Return(nil)

	require.NoError(t, f.svc.RefundByIntent(ctx, "pi_1", at))
	f.bookings.AssertExpectations(t)
	// The gateway refund already returned the card slice to the card, and
	// the wallet slice came back at cancel time. A ledger credit here would
	// pay the athlete twice.
	f.wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelThenRefundNeverExceedsAmountPaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4
	at := time.Now()

	// A completed mixed payment: 2000 from the wallet, 3000 from the card.
	// The cancel path credits the wallet slice and asks the gateway to send
	// the card slice back to the card; the charge.refunded webhook must then
	// add nothing to the ledger.
	p := &Payment{ID: 10, BookingID: &bookingID, UserID: 1, AmountCents: 5000, Metadata: Metadata{WalletUsed: 2000, CardCharged: 3000, PaymentType: TypeFull}}
	f.repo.On("FindByIntentID", ctx, "pi_1").Return(p, nil)
	f.repo.On("MarkRefunded", ctx, 10).Return(true, nil)
	f.bookings.On("MarkRefunded", ctx, 4).Return(nil)

	require.NoError(t, f.svc.RefundByIntent(ctx, "pi_1", at))

	var ledgerCredits int64
	for _, call := range f.wallets.Calls {
		if call.Method == "Credit" {
			ledgerCredits += call.Arguments.Get(2).(int64)
		}
	}
	assert.Zero(t, ledgerCredits, "webhook reconciliation must not credit the ledger")
}

func TestRefundByIntentReplayIsNoOp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bookingID := 4

	p := &Payment{ID: 10, BookingID: &bookingID, Metadata: Metadata{CardCharged: 10000, PaymentType: TypeFull}}
	f.repo.On("FindByIntentID", ctx, "pi_1").Return(p, nil)
	f.repo.On("MarkRefunded", ctx, 10).Return(false, nil)

	require.NoError(t, f.svc.RefundByIntent(ctx, "pi_1", time.Now()))
	f.wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusPhases(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now()

	cases := []struct {
		name  string
		b     *booking.Booking
		phase string
	}{
		{"unpaid", &booking.Booking{ID: 4, AthleteID: 1, Status: booking.StatusAccepted}, "unpaid"},
		{"deposit", &booking.Booking{ID: 4, AthleteID: 1, Status: booking.StatusAccepted, DepositPaidAt: &now}, "deposit_paid"},
		{"full", &booking.Booking{ID: 4, AthleteID: 1, Status: booking.StatusAccepted, DepositPaidAt: &now, RemainingPaidAt: &now}, "paid_in_full"},
		{"refunded", &booking.Booking{ID: 4, AthleteID: 1, Status: booking.StatusRefunded, DepositPaidAt: &now}, "refunded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.bookings.On("GetByID", ctx, 4).Return(tc.b, nil)
			f.repo.On("ListByBooking", ctx, 4).Return([]Payment{}, nil)

			status, err := f.svc.Status(ctx, 4, 1, false)

			require.NoError(t, err)
			assert.Equal(t, tc.phase, status.Phase)
			assert.Equal(t, tc.phase == "paid_in_full", status.DeliverablesUnlocked)
		})
	}
	_ = f
}

func TestSourceMapsCompletedPayments(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	intentID := "pi_1"

	f.repo.On("CompletedByBooking", ctx, 4).Return([]Payment{
		{IntentID: &intentID, Metadata: Metadata{WalletUsed: 1000, CardCharged: 2780}},
		{Metadata: Metadata{WalletUsed: 3780}},
	}, nil)

	captured, err := NewSource(f.repo).CapturedPayments(ctx, 4)

	require.NoError(t, err)
	require.Len(t, captured, 2)
	assert.Equal(t, "pi_1", captured[0].IntentID)
	assert.Equal(t, int64(2780), captured[0].CardChargedCents)
	assert.Empty(t, captured[1].IntentID)
}
