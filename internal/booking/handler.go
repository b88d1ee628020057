package booking

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coachbook/internal/api"
	"coachbook/internal/auth"
	"coachbook/internal/service"
	"coachbook/internal/slot"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create godoc
// @Summary      Book a service offering
// @Description  Books either against reserved slots or an ad-hoc time range.
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateBookingRequest  true  "Booking request"
// @Success      201      {object}  BookingWithSegments
// @Failure      400      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ConflictResponse
// @Router       /bookings [post]
func (h *Handler) Create(c *gin.Context) {
	p, ok := auth.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "service_id is required"})
		return
	}

	result, err := h.svc.Create(c.Request.Context(), p.UserID, req)
	switch {
	case errors.Is(err, service.ErrOfferingNotFound) || errors.Is(err, slot.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrOfferingInactive) || errors.Is(err, ErrInvalidSchedule):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrCrossOwnerConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, slot.ErrAlreadyBooked):
		c.JSON(http.StatusConflict, api.ConflictResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create booking"})
	default:
		c.JSON(http.StatusCreated, result)
	}
}

// Get godoc
// @Summary      Fetch a booking with its segments
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  BookingWithSegments
// @Failure      404  {object}  api.ErrorResponse
// @Router       /bookings/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	p, id, ok := h.principalAndID(c)
	if !ok {
		return
	}

	result, err := h.svc.Get(c.Request.Context(), id, p.UserID, p.IsAdmin())
	h.respond(c, http.StatusOK, result, err)
}

// ListMine godoc
// @Summary      List the caller's bookings, both sides
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  Booking
// @Router       /bookings [get]
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookings, err := h.svc.ListMine(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookings"})
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// Accept godoc
// @Summary      Accept a pending booking
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  Booking
// @Failure      409  {object}  api.ConflictResponse
// @Router       /bookings/{id}/accept [post]
func (h *Handler) Accept(c *gin.Context) {
	h.transition(c, h.svc.Accept)
}

// Decline godoc
// @Summary      Decline a pending booking and free its slots
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  Booking
// @Failure      409  {object}  api.ConflictResponse
// @Router       /bookings/{id}/decline [post]
func (h *Handler) Decline(c *gin.Context) {
	h.transition(c, h.svc.Decline)
}

// Start godoc
// @Summary      Mark an accepted booking as in progress
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  Booking
// @Failure      409  {object}  api.ConflictResponse
// @Router       /bookings/{id}/start [post]
func (h *Handler) Start(c *gin.Context) {
	h.transition(c, h.svc.Start)
}

// Complete godoc
// @Summary      Mark a booking as delivered
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int              true   "Booking ID"
// @Param        request  body      CompleteRequest  false  "Completion time"
// @Success      200      {object}  Booking
// @Failure      409      {object}  api.ConflictResponse
// @Router       /bookings/{id}/complete [post]
func (h *Handler) Complete(c *gin.Context) {
	p, id, ok := h.principalAndID(c)
	if !ok {
		return
	}

	var req CompleteRequest
	_ = c.ShouldBindJSON(&req)

	var completedAt time.Time
	if req.CompletedAt != "" {
		var err error
		completedAt, err = time.Parse(time.RFC3339, req.CompletedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "completed_at must be RFC3339"})
			return
		}
	}

	b, err := h.svc.Complete(c.Request.Context(), id, p.UserID, completedAt)
	h.respond(c, http.StatusOK, b, err)
}

// Cancel godoc
// @Summary      Cancel a booking and start refunds
// @Description  Cancellation always succeeds when allowed; a failed refund is returned as a warning.
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int            true   "Booking ID"
// @Param        request  body      CancelRequest  false  "Cancellation reason"
// @Success      200      {object}  CancelResult
// @Failure      409      {object}  api.ConflictResponse
// @Router       /bookings/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	p, id, ok := h.principalAndID(c)
	if !ok {
		return
	}

	var req CancelRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.svc.Cancel(c.Request.Context(), id, p.UserID, p.IsAdmin(), req.Reason)
	h.respond(c, http.StatusOK, result, err)
}

// AddSegment godoc
// @Summary      Add a time segment to a pending booking
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                true  "Booking ID"
// @Param        request  body      AddSegmentRequest  true  "Segment"
// @Success      200      {object}  BookingWithSegments
// @Failure      409      {object}  api.ConflictResponse
// @Router       /bookings/{id}/segments [post]
func (h *Handler) AddSegment(c *gin.Context) {
	p, id, ok := h.principalAndID(c)
	if !ok {
		return
	}

	var req AddSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid segment payload"})
		return
	}

	result, err := h.svc.AddSegment(c.Request.Context(), id, p.UserID, req)
	switch {
	case errors.Is(err, ErrCrossOwnerConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSegmentOverlap) || errors.Is(err, slot.ErrAlreadyBooked):
		c.JSON(http.StatusConflict, api.ConflictResponse{Error: err.Error()})
	default:
		h.respond(c, http.StatusOK, result, err)
	}
}

// RemoveSegment godoc
// @Summary      Remove a segment from a pending booking
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id         path      int  true  "Booking ID"
// @Param        segmentID  path      int  true  "Segment ID"
// @Success      200        {object}  BookingWithSegments
// @Failure      409        {object}  api.ConflictResponse
// @Router       /bookings/{id}/segments/{segmentID} [delete]
func (h *Handler) RemoveSegment(c *gin.Context) {
	p, id, ok := h.principalAndID(c)
	if !ok {
		return
	}
	segmentID, err := strconv.Atoi(c.Param("segmentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid segment id"})
		return
	}

	result, svcErr := h.svc.RemoveSegment(c.Request.Context(), id, segmentID, p.UserID)
	switch {
	case errors.Is(svcErr, ErrLastSegment):
		c.JSON(http.StatusConflict, api.ConflictResponse{Error: svcErr.Error()})
	case errors.Is(svcErr, ErrSegmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": svcErr.Error()})
	default:
		h.respond(c, http.StatusOK, result, svcErr)
	}
}

// SoftDelete godoc
// @Summary      Hide a finished booking from listings
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  api.MessageResponse
// @Router       /bookings/{id} [delete]
func (h *Handler) SoftDelete(c *gin.Context) {
	p, id, ok := h.principalAndID(c)
	if !ok {
		return
	}

	err := h.svc.SoftDelete(c.Request.Context(), id, p.UserID, p.IsAdmin())
	switch {
	case errors.Is(err, ErrNotTerminal):
		c.JSON(http.StatusConflict, api.ConflictResponse{Error: err.Error()})
	case errors.Is(err, ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete booking"})
	default:
		c.JSON(http.StatusOK, api.MessageResponse{Message: "booking deleted"})
	}
}

// Restore godoc
// @Summary      Restore a soft-deleted booking
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  Booking
// @Router       /admin/bookings/{id}/restore [post]
func (h *Handler) Restore(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	b, svcErr := h.svc.Restore(c.Request.Context(), id)
	h.respond(c, http.StatusOK, b, svcErr)
}

func (h *Handler) transition(c *gin.Context, move func(ctx context.Context, id, callerID int) (*Booking, error)) {
	p, id, ok := h.principalAndID(c)
	if !ok {
		return
	}

	b, err := move(c.Request.Context(), id, p.UserID)
	h.respond(c, http.StatusOK, b, err)
}

func (h *Handler) principalAndID(c *gin.Context) (auth.Principal, int, bool) {
	p, ok := auth.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return auth.Principal{}, 0, false
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return p, 0, false
	}
	return p, id, true
}

// respond maps service errors onto the shared HTTP error contract.
func (h *Handler) respond(c *gin.Context, status int, body interface{}, err error) {
	var transition *InvalidTransitionError
	switch {
	case err == nil:
		c.JSON(status, body)
	case errors.As(err, &transition):
		allowed := make([]string, len(transition.Allowed))
		for i, a := range transition.Allowed {
			allowed[i] = string(a)
		}
		c.JSON(http.StatusConflict, api.ConflictResponse{
			Error:         transition.Error(),
			ResourceID:    transition.BookingID,
			CurrentStatus: string(transition.Current),
			Allowed:       allowed,
		})
	case errors.Is(err, ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSegmentsLocked):
		c.JSON(http.StatusConflict, api.ConflictResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidSchedule):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "booking operation failed"})
	}
}
