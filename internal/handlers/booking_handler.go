package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/middleware"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/smarttransit/seat-inventory/internal/services"
)

// BookingHandler serves confirmed bookings
type BookingHandler struct {
	inventory *services.InventoryService
	notifier  services.BookingNotifier
	renderer  *services.TicketRenderer
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	inventory *services.InventoryService,
	notifier services.BookingNotifier,
	renderer *services.TicketRenderer,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		inventory: inventory,
		notifier:  notifier,
		renderer:  renderer,
		logger:    logger,
		now:       time.Now,
	}
}

// GetBooking returns one of the caller's bookings
// @Summary Get booking
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 404 {object} ErrorResponse "Booking not found"
// @Router /bookings/{bookingId} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, ok := h.loadOwnBooking(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, booking)
}

// GetTicket renders the booking's e-ticket as a PDF
// GET /api/v1/bookings/:bookingId/ticket
func (h *BookingHandler) GetTicket(c *gin.Context) {
	booking, ok := h.loadOwnBooking(c)
	if !ok {
		return
	}

	seatMap, err := h.inventory.SeatMap(c.Request.Context(), booking.TripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	pdf, err := h.renderer.Render(booking, seatMap.Trip())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, booking.Reference))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// CancelBooking cancels a confirmed booking and frees its seats
// @Summary Cancel booking
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 404 {object} ErrorResponse "Booking not found"
// @Failure 409 {object} ErrorResponse "Already cancelled or completed"
// @Router /bookings/{bookingId}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	booking, ok := h.loadOwnBooking(c)
	if !ok {
		return
	}

	cancelled, err := h.inventory.CancelBooking(c.Request.Context(), booking.ID, h.now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.notifier.BookingCancelled(c.Request.Context(), cancelled); err != nil {
		h.logger.WithError(err).WithField("booking_id", cancelled.ID).Warn("Booking cancellation notification failed")
	}

	c.JSON(http.StatusOK, cancelled)
}

// CompleteBooking marks a booking as travelled (admin)
// POST /api/v1/admin/bookings/:bookingId/complete
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	completed, err := h.inventory.CompleteBooking(c.Request.Context(), bookingID, h.now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, completed)
}

// loadOwnBooking fetches the booking when the caller owns it or is an admin.
// Other callers get the same 404 as for a missing booking.
func (h *BookingHandler) loadOwnBooking(c *gin.Context) (*models.Booking, bool) {
	userCtx := middleware.MustGetUserContext(c)
	bookingID, ok := parseBookingID(c)
	if !ok {
		return nil, false
	}

	booking, err := h.inventory.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}

	if booking.OwnerToken != userCtx.OwnerToken() && !userCtx.IsAdmin() {
		h.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"user_id":    userCtx.UserID,
		}).Warn("Booking access denied")
		respondError(c, h.logger, models.NewError(models.KindBookingNotFound, "booking %s not found", bookingID))
		return nil, false
	}

	return booking, true
}

func parseBookingID(c *gin.Context) (uuid.UUID, bool) {
	bookingID, err := uuid.Parse(c.Param("bookingId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid booking ID",
		})
		return uuid.Nil, false
	}
	return bookingID, true
}
