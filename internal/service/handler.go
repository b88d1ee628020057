package service

import (
	"errors"
	"net/http"
	"strconv"

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

// Create godoc
// @Summary      Create a service offering
// @Tags         services
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateOfferingRequest  true  "Offering"
// @Success      201      {object}  Offering
// @Router       /services [post]
func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req CreateOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	o, err := h.repo.Create(c.Request.Context(), userID, req.Title, req.Description, req.RateCents)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create offering"})
		return
	}

	c.JSON(http.StatusCreated, o)
}

// List godoc
// @Summary      List active offerings
// @Tags         services
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  Offering
// @Router       /services [get]
func (h *Handler) List(c *gin.Context) {
	offerings, err := h.repo.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list offerings"})
		return
	}

	c.JSON(http.StatusOK, offerings)
}

// Get godoc
// @Summary      Get one offering
// @Tags         services
// @Security     BearerAuth
// @Produce      json
// @Param        serviceID  path  int  true  "Offering ID"
// @Success      200  {object}  Offering
// @Failure      404  {object}  api.ErrorResponse
// @Router       /services/{serviceID} [get]
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("serviceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service ID"})
		return
	}

	o, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrOfferingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "offering not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load offering"})
		return
	}

	c.JSON(http.StatusOK, o)
}

// Deactivate godoc
// @Summary      Deactivate own offering
// @Tags         services
// @Security     BearerAuth
// @Produce      json
// @Param        serviceID  path  int  true  "Offering ID"
// @Success      200  {object}  api.MessageResponse
// @Router       /services/{id} [delete]
func (h *Handler) Deactivate(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	id, err := strconv.Atoi(c.Param("serviceID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service ID"})
		return
	}

	if err := h.repo.Deactivate(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, ErrOfferingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "offering not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate offering"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "offering deactivated"})
}
