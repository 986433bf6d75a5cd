package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error            string   `json:"error"`
	Message          string   `json:"message"`
	Code             string   `json:"code,omitempty"`
	Outcome          string   `json:"outcome,omitempty"`
	UnavailableSeats []string `json:"unavailable_seats,omitempty"`
}

// statusFor maps an inventory error to its HTTP status
func statusFor(err error) int {
	kind := models.KindOf(err)
	switch kind {
	case "":
		return http.StatusInternalServerError
	case models.KindPaymentDeclined:
		return http.StatusPaymentRequired
	case models.KindPaymentUnavailable, models.KindPersistenceUnavailable:
		return http.StatusServiceUnavailable
	}

	switch kind.Category() {
	case models.CategoryValidation:
		return http.StatusBadRequest
	case models.CategoryConflict, models.CategoryState:
		return http.StatusConflict
	case models.CategoryNotFound:
		return http.StatusNotFound
	case models.CategoryExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Internal details of
// unavailable dependencies are logged, not returned.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status := statusFor(err)
	kind := models.KindOf(err)

	resp := ErrorResponse{
		Error:   string(kind),
		Message: err.Error(),
	}
	if models.IsReselect(err) {
		resp.Outcome = string(models.CheckoutOutcomeReselect)
		resp.UnavailableSeats = models.SeatsOf(err)
	}

	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		if kind == "" {
			resp.Error = "internal_error"
		}
		resp.Message = "The service is temporarily unavailable. Please try again."
	}

	c.JSON(status, resp)
}

// respondOutcome writes a checkout outcome body with the status of err
func respondOutcome(c *gin.Context, logger *logrus.Logger, err error, body interface{}) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Checkout step failed")
	} else {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Info("Checkout step rejected")
	}
	c.JSON(status, body)
}
