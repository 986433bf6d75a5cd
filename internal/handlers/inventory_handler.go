package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/middleware"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/smarttransit/seat-inventory/internal/services"
)

// InventoryHandler serves trip publication, availability and seat blocks
type InventoryHandler struct {
	inventory *services.InventoryService
	logger    *logrus.Logger
	now       func() time.Time
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(inventory *services.InventoryService, logger *logrus.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		logger:    logger,
		now:       time.Now,
	}
}

// ===========================================================================
// PUBLIC ENDPOINTS
// ===========================================================================

// GetAvailability returns the state of every seat of a trip
// @Summary Seat availability
// @Tags Inventory
// @Produce json
// @Param tripId path string true "Trip ID"
// @Success 200 {object} models.AvailabilityQuote
// @Failure 404 {object} ErrorResponse "Trip not found"
// @Router /trips/{tripId}/availability [get]
func (h *InventoryHandler) GetAvailability(c *gin.Context) {
	tripID := strings.TrimSpace(c.Param("tripId"))

	quote, err := h.inventory.QuoteAvailability(c.Request.Context(), tripID, h.now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// GetSeatMap returns the fixed seat layout and fares of a trip
// GET /api/v1/trips/:tripId/seats
func (h *InventoryHandler) GetSeatMap(c *gin.Context) {
	tripID := strings.TrimSpace(c.Param("tripId"))

	seatMap, err := h.inventory.SeatMap(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	type seatWithFare struct {
		models.Seat
		Fare float64 `json:"fare"`
	}
	seats := make([]seatWithFare, 0, seatMap.Len())
	for _, seat := range seatMap.Seats() {
		fare, _ := seatMap.FareFor(seat.Code)
		seats = append(seats, seatWithFare{Seat: seat, Fare: fare})
	}

	c.JSON(http.StatusOK, gin.H{
		"trip":  seatMap.Trip(),
		"seats": seats,
	})
}

// ===========================================================================
// ADMIN ENDPOINTS
// ===========================================================================

// PublishTrip publishes a trip with its seat layout
// @Summary Publish trip
// @Tags Inventory Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.PublishTripRequest true "Trip and layout"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse "Invalid layout"
// @Failure 409 {object} ErrorResponse "Trip already published"
// @Router /admin/trips [post]
func (h *InventoryHandler) PublishTrip(c *gin.Context) {
	var req models.PublishTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	seatMap, err := h.inventory.PublishTrip(c.Request.Context(), req.Trip(), req.Seats, h.now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "Trip published successfully",
		"trip":        seatMap.Trip(),
		"seats_count": seatMap.Len(),
	})
}

// BlockSeats takes seats out of sale
// POST /api/v1/admin/trips/:tripId/seats/block
func (h *InventoryHandler) BlockSeats(c *gin.Context) {
	tripID := strings.TrimSpace(c.Param("tripId"))

	var req models.BlockSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	userCtx := middleware.MustGetUserContext(c)
	if err := h.inventory.BlockSeats(c.Request.Context(), tripID, req.SeatCodes, req.Reason, userCtx.UserID.String(), h.now()); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Seats blocked successfully",
		"blocked_count": len(req.SeatCodes),
	})
}

// UnblockSeats puts blocked seats back on sale
// POST /api/v1/admin/trips/:tripId/seats/unblock
func (h *InventoryHandler) UnblockSeats(c *gin.Context) {
	tripID := strings.TrimSpace(c.Param("tripId"))

	var req models.BlockSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.inventory.UnblockSeats(c.Request.Context(), tripID, req.SeatCodes); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Seats unblocked successfully",
		"unblocked_count": len(req.SeatCodes),
	})
}
