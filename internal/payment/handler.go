package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coachbook/internal/api"
	"coachbook/internal/auth"
	"coachbook/internal/booking"
	"coachbook/internal/gateway"
	"coachbook/internal/wallet"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateIntent godoc
// @Summary      Pay for a booking leg
// @Description  Starts a deposit, remaining, or full payment. Wallet credit covers as much as it can when requested; the card is charged the shortfall.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateIntentRequest  true  "Payment request"
// @Success      201      {object}  IntentResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      402      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ConflictResponse
// @Router       /payments/intent [post]
func (h *Handler) CreateIntent(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking_id and a valid payment_type are required"})
		return
	}

	result, err := h.svc.CreateIntent(c.Request.Context(), userID, req)
	h.respondIntent(c, result, err)
}

// PayRemaining godoc
// @Summary      Pay the remaining amount of a booking
// @Description  Shorthand for a payment_type "remaining" intent. Requires the deposit to be paid.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        bookingID  path      int                  true   "Booking ID"
// @Param        request    body      PayRemainingRequest  false  "Wallet preference"
// @Success      201        {object}  IntentResponse
// @Failure      409        {object}  api.ConflictResponse
// @Router       /payments/pay-remaining/{bookingID} [post]
func (h *Handler) PayRemaining(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	bookingID, err := strconv.Atoi(c.Param("bookingID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req PayRemainingRequest
	_ = c.ShouldBindJSON(&req)

	result, svcErr := h.svc.CreateIntent(c.Request.Context(), userID, CreateIntentRequest{
		BookingID:   bookingID,
		PaymentType: string(TypeRemaining),
		UseWallet:   req.UseWallet,
	})
	h.respondIntent(c, result, svcErr)
}

func (h *Handler) respondIntent(c *gin.Context, result *IntentResponse, err error) {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotPayable) || errors.Is(err, ErrAlreadyPaid) || errors.Is(err, ErrRemainingBeforeDeposit):
		c.JSON(http.StatusConflict, api.ConflictResponse{Error: err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, gateway.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create payment"})
	default:
		c.JSON(http.StatusCreated, result)
	}
}

// Status godoc
// @Summary      Payment status of a booking
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        bookingID  path      int  true  "Booking ID"
// @Success      200        {object}  StatusResponse
// @Router       /payments/status/{bookingID} [get]
func (h *Handler) Status(c *gin.Context) {
	p, ok := auth.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	bookingID, err := strconv.Atoi(c.Param("bookingID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	status, svcErr := h.svc.Status(c.Request.Context(), bookingID, p.UserID, p.IsAdmin())
	switch {
	case errors.Is(svcErr, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": svcErr.Error()})
	case errors.Is(svcErr, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": svcErr.Error()})
	case svcErr != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payment status"})
	default:
		c.JSON(http.StatusOK, status)
	}
}

// TopUp godoc
// @Summary      Buy wallet credit with a card
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      TopUpRequest  true  "Top-up amount"
// @Success      201      {object}  IntentResponse
// @Failure      400      {object}  api.ErrorResponse
// @Router       /wallet/topup [post]
func (h *Handler) TopUp(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must be at least 100"})
		return
	}

	result, err := h.svc.TopUp(c.Request.Context(), userID, req)
	switch {
	case errors.Is(err, gateway.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create top-up"})
	default:
		c.JSON(http.StatusCreated, result)
	}
}

// ListMine godoc
// @Summary      List the caller's payments
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  Payment
// @Router       /payments [get]
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	payments, err := h.svc.ListMine(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, payments)
}
