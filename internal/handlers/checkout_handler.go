package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/middleware"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/smarttransit/seat-inventory/internal/services"
	"github.com/smarttransit/seat-inventory/internal/utils"
	"github.com/smarttransit/seat-inventory/pkg/jwt"
)

// CheckoutHandler drives the hold → passengers → payment flow
type CheckoutHandler struct {
	coordinator *services.BookingCoordinator
	notifier    services.BookingNotifier
	limiter     *services.RateLimitService
	jwtService  *jwt.Service
	logger      *logrus.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler. A nil limiter disables
// hold rate limiting.
func NewCheckoutHandler(
	coordinator *services.BookingCoordinator,
	notifier services.BookingNotifier,
	limiter *services.RateLimitService,
	jwtService *jwt.Service,
	logger *logrus.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		coordinator: coordinator,
		notifier:    notifier,
		limiter:     limiter,
		jwtService:  jwtService,
		logger:      logger,
	}
}

// GuestSessionResponse carries a token for anonymous checkout
type GuestSessionResponse struct {
	AccessToken string `json:"access_token"`
	SessionID   string `json:"session_id"`
	ExpiresIn   int    `json:"expires_in_seconds"`
}

// CreateGuestSession issues a token that owns the holds of an anonymous buyer
// @Summary Create guest checkout session
// @Tags Checkout
// @Produce json
// @Success 201 {object} GuestSessionResponse
// @Router /checkout/session [post]
func (h *CheckoutHandler) CreateGuestSession(c *gin.Context) {
	token, sessionID, err := h.jwtService.GenerateGuestToken()
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue guest token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create checkout session",
		})
		return
	}

	c.JSON(http.StatusCreated, GuestSessionResponse{
		AccessToken: token,
		SessionID:   sessionID.String(),
		ExpiresIn:   int(h.jwtService.Expiry().Seconds()),
	})
}

// StartCheckout holds seats for the caller
// @Summary Start checkout
// @Description Holds the selected seats for the hold TTL. A 409 with outcome reselect_seats lists the seats that are gone.
// @Tags Checkout
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.StartCheckoutRequest true "Seat selection"
// @Success 201 {object} models.HoldResponse
// @Failure 400 {object} ErrorResponse "Invalid selection"
// @Failure 409 {object} models.HoldResponse "Seats unavailable"
// @Failure 429 {object} ErrorResponse "Too many holds"
// @Router /checkout [post]
func (h *CheckoutHandler) StartCheckout(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.StartCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	owner := userCtx.OwnerToken()
	ip := utils.GetRealIP(c)
	undo := func() {}
	if h.limiter != nil {
		var err error
		undo, err = h.limiter.Allow(owner, ip, time.Now())
		if err != nil {
			rlErr, _ := err.(*services.RateLimitError)
			if rlErr != nil {
				retry := int(time.Until(rlErr.RetryAfter).Seconds()) + 1
				c.Header("Retry-After", strconv.Itoa(retry))
			}
			h.logger.WithField("owner", owner).WithField("ip", ip).Warn("Hold rate limit exceeded")
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limited",
				Message: err.Error(),
				Code:    "HOLD_RATE_LIMIT",
			})
			return
		}
	}

	resp, err := h.coordinator.StartCheckout(c.Request.Context(), req.TripID, req.SeatCodes, owner)
	if err != nil {
		// only holds that were granted count against the limit
		undo()
		if resp != nil {
			respondOutcome(c, h.logger, err, resp)
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetCheckout returns the caller's live hold
// GET /api/v1/checkout/:holdId
func (h *CheckoutHandler) GetCheckout(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	holdID, ok := h.parseHoldID(c)
	if !ok {
		return
	}

	resp, err := h.coordinator.GetCheckout(c.Request.Context(), holdID, userCtx.OwnerToken())
	if err != nil {
		if resp != nil {
			respondOutcome(c, h.logger, err, resp)
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitPassengers collects passengers, charges the hold and confirms the booking
// @Summary Submit passengers and pay
// @Tags Checkout
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param holdId path string true "Hold ID"
// @Param request body models.SubmitPassengersRequest true "Passengers, contact and payment method"
// @Success 201 {object} models.SubmitPassengersResponse
// @Failure 400 {object} ErrorResponse "Invalid passengers"
// @Failure 402 {object} models.SubmitPassengersResponse "Payment declined"
// @Failure 409 {object} models.SubmitPassengersResponse "Hold lost, reselect seats"
// @Failure 410 {object} models.SubmitPassengersResponse "Hold expired, reselect seats"
// @Router /checkout/{holdId}/passengers [post]
func (h *CheckoutHandler) SubmitPassengers(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	holdID, ok := h.parseHoldID(c)
	if !ok {
		return
	}

	var req models.SubmitPassengersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	resp, err := h.coordinator.SubmitPassengers(c.Request.Context(), holdID, userCtx.OwnerToken(), &req)
	if err != nil {
		if resp != nil {
			respondOutcome(c, h.logger, err, resp)
			return
		}
		respondError(c, h.logger, err)
		return
	}

	// the booking stands even if nobody hears about it
	if err := h.notifier.BookingConfirmed(c.Request.Context(), resp.Booking); err != nil {
		h.logger.WithError(err).WithField("booking_id", resp.Booking.ID).Warn("Booking confirmation notification failed")
	}

	c.JSON(http.StatusCreated, resp)
}

// AbandonCheckout releases the caller's hold
// DELETE /api/v1/checkout/:holdId
func (h *CheckoutHandler) AbandonCheckout(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	holdID, ok := h.parseHoldID(c)
	if !ok {
		return
	}

	if err := h.coordinator.AbandonCheckout(c.Request.Context(), holdID, userCtx.OwnerToken()); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.HoldResponse{
		Outcome: models.CheckoutOutcomeReleased,
		Message: "Your seats have been released",
	})
}

func (h *CheckoutHandler) parseHoldID(c *gin.Context) (uuid.UUID, bool) {
	holdID, err := uuid.Parse(c.Param("holdId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid hold ID",
		})
		return uuid.Nil, false
	}
	return holdID, true
}
