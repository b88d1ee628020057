package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"coachbook/internal/api"
	"coachbook/internal/gateway"
	"coachbook/internal/logger"
)

type Handler struct {
	reconciler *Reconciler
}

func NewHandler(reconciler *Reconciler) *Handler {
	return &Handler{reconciler: reconciler}
}

// Receive godoc
// @Summary      Gateway webhook endpoint
// @Description  Verifies the signature, then applies the event. 500 makes the gateway retry.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200  {object}  api.MessageResponse
// @Failure      400  {object}  api.ErrorResponse
// @Router       /payments/webhook [post]
func (h *Handler) Receive(c *gin.Context) {
	// The signature covers the raw bytes; anything that re-serializes the
	// body breaks verification.
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	ev, err := h.reconciler.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			logger.Error("webhook signature rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	if err := h.reconciler.Process(c.Request.Context(), ev); err != nil {
		logger.Error("webhook processing failed", "event_type", ev.Type, "event_id", ev.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "ok"})
}
