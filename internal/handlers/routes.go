package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	govalidator "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/middleware"
	"github.com/smarttransit/seat-inventory/pkg/jwt"
	"github.com/smarttransit/seat-inventory/pkg/validator"
)

// Handlers groups every HTTP handler of the service
type Handlers struct {
	Health    *HealthHandler
	Inventory *InventoryHandler
	Checkout  *CheckoutHandler
	Booking   *BookingHandler
}

// RegisterRoutes mounts the API on router
func RegisterRoutes(router *gin.Engine, h Handlers, jwtService *jwt.Service, logger *logrus.Logger) {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		if err := validator.RegisterMobileRule(v); err != nil {
			logger.WithError(err).Warn("Failed to register lk_mobile binding rule")
		}
	}

	router.GET("/health", h.Health.Health)

	auth := middleware.AuthMiddleware(jwtService, logger)
	admin := middleware.RequireRole(middleware.RoleAdmin)

	v1 := router.Group("/api/v1")
	{
		trips := v1.Group("/trips")
		{
			trips.GET("/:tripId/seats", h.Inventory.GetSeatMap)
			trips.GET("/:tripId/availability", h.Inventory.GetAvailability)
		}

		v1.POST("/checkout/session", h.Checkout.CreateGuestSession)
		checkout := v1.Group("/checkout", auth)
		{
			checkout.POST("", h.Checkout.StartCheckout)
			checkout.GET("/:holdId", h.Checkout.GetCheckout)
			checkout.POST("/:holdId/passengers", h.Checkout.SubmitPassengers)
			checkout.DELETE("/:holdId", h.Checkout.AbandonCheckout)
		}

		bookings := v1.Group("/bookings", auth)
		{
			bookings.GET("/:bookingId", h.Booking.GetBooking)
			bookings.GET("/:bookingId/ticket", h.Booking.GetTicket)
			bookings.POST("/:bookingId/cancel", h.Booking.CancelBooking)
		}

		adminGroup := v1.Group("/admin", auth, admin)
		{
			adminGroup.POST("/trips", h.Inventory.PublishTrip)
			adminGroup.POST("/trips/:tripId/seats/block", h.Inventory.BlockSeats)
			adminGroup.POST("/trips/:tripId/seats/unblock", h.Inventory.UnblockSeats)
			adminGroup.POST("/bookings/:bookingId/complete", h.Booking.CompleteBooking)
		}
	}
}
