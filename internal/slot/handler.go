package slot

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"coachbook/internal/api"
	"coachbook/internal/auth"
)

type Handler struct {
	repo Repository
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{repo: NewRepository(db)}
}

// Reserve godoc
// @Summary      Publish a bookable time slot
// @Description  Creates a slot for the calling creator. Overlapping windows are rejected.
// @Tags         slots
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      ReserveRequest  true  "Slot window"
// @Success      201      {object}  Slot
// @Failure      400      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ConflictResponse
// @Router       /slots [post]
func (h *Handler) Reserve(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_time and end_time are required"})
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be RFC3339"})
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be RFC3339"})
		return
	}

	s, err := h.repo.Reserve(c.Request.Context(), userID, start, end)
	switch {
	case errors.Is(err, ErrInvalidWindow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrOverlapConflict):
		c.JSON(http.StatusConflict, api.ConflictResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reserve slot"})
	default:
		c.JSON(http.StatusCreated, s)
	}
}

// ListByCreator godoc
// @Summary      List a creator's slots
// @Tags         slots
// @Security     BearerAuth
// @Produce      json
// @Param        creatorID  path   int     true   "Creator ID"
// @Param        free       query  bool    false  "Only unbooked slots"
// @Success      200        {array}  Slot
// @Router       /creators/{creatorID}/slots [get]
func (h *Handler) ListByCreator(c *gin.Context) {
	creatorID, err := strconv.Atoi(c.Param("creatorID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid creator ID"})
		return
	}

	onlyFree := c.DefaultQuery("free", "false") == "true"

	slots, err := h.repo.ListByOwner(c.Request.Context(), creatorID, onlyFree)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list slots"})
		return
	}

	c.JSON(http.StatusOK, slots)
}

// Release godoc
// @Summary      Release a slot
// @Description  Unbinds the slot from any segment. Releasing a free slot is a no-op.
// @Tags         slots
// @Security     BearerAuth
// @Produce      json
// @Param        slotID  path  int  true  "Slot ID"
// @Success      200  {object}  api.MessageResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /slots/{slotID}/release [post]
func (h *Handler) Release(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	slotID, err := strconv.Atoi(c.Param("slotID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot ID"})
		return
	}

	s, err := h.repo.GetByID(c.Request.Context(), slotID)
	if errors.Is(err, ErrSlotNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "slot not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load slot"})
		return
	}
	if s.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "can only release own slots"})
		return
	}

	if err := h.repo.Release(c.Request.Context(), slotID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to release slot"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "slot released"})
}
