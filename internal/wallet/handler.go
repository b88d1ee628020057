package wallet

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"coachbook/internal/auth"
)

type Handler struct {
	repo     Repository
	currency string
}

func NewHandler(db *sqlx.DB, currency string) *Handler {
	return &Handler{
		repo:     NewRepository(db),
		currency: currency,
	}
}

// GetBalance godoc
// @Summary      Wallet balance
// @Description  Returns the caller's current wallet credit in cents.
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  BalanceResponse
// @Router       /wallet/balance [get]
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	balance, err := h.repo.Balance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet balance"})
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{
		UserID:       userID,
		BalanceCents: balance,
		Currency:     h.currency,
	})
}

// ListEntries godoc
// @Summary      Wallet journal
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  Entry
// @Router       /wallet/entries [get]
func (h *Handler) ListEntries(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.repo.Entries(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet entries"})
		return
	}

	c.JSON(http.StatusOK, entries)
}
