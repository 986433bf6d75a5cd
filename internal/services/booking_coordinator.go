package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// StructValidator checks tagged structs; pkg/validator.PassengerValidator satisfies it
type StructValidator interface {
	Struct(s interface{}) error
}

// BookingCoordinator runs the checkout flow: hold, passengers, payment, confirm.
// It owns no seat state; every transition goes through InventoryService.
type BookingCoordinator struct {
	inventory *InventoryService
	payments  PaymentGateway
	validator StructValidator
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBookingCoordinator creates a new coordinator
func NewBookingCoordinator(inventory *InventoryService, payments PaymentGateway, validator StructValidator, logger *logrus.Logger) *BookingCoordinator {
	return &BookingCoordinator{
		inventory: inventory,
		payments:  payments,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the coordinator's clock
func (c *BookingCoordinator) WithClock(now func() time.Time) *BookingCoordinator {
	c.now = now
	return c
}

// ============================================================================
// START CHECKOUT
// ============================================================================

// StartCheckout holds the selected seats. When the seats are gone the
// response carries the reselect outcome next to the error.
func (c *BookingCoordinator) StartCheckout(ctx context.Context, tripID string, seatCodes []string, ownerToken string) (*models.HoldResponse, error) {
	now := c.now()
	hold, err := c.inventory.RequestHold(ctx, tripID, seatCodes, ownerToken, now)
	if err != nil {
		if models.IsReselect(err) {
			return &models.HoldResponse{
				Outcome:          models.CheckoutOutcomeReselect,
				UnavailableSeats: models.SeatsOf(err),
				Message:          "Some of the selected seats are no longer available. Please pick again.",
			}, err
		}
		return nil, err
	}

	return &models.HoldResponse{
		Outcome:          models.CheckoutOutcomeHeld,
		Hold:             hold,
		ExpiresInSeconds: int(hold.ExpiresAt.Sub(now).Seconds()),
	}, nil
}

// GetCheckout returns the live hold of a checkout session
func (c *BookingCoordinator) GetCheckout(ctx context.Context, holdID uuid.UUID, ownerToken string) (*models.HoldResponse, error) {
	now := c.now()
	hold, err := c.inventory.GetHold(ctx, holdID, ownerToken, now)
	if err != nil {
		if models.IsReselect(err) {
			return &models.HoldResponse{
				Outcome: models.CheckoutOutcomeReselect,
				Message: "Your seat hold is no longer active. Please select seats again.",
			}, err
		}
		return nil, err
	}

	remaining := int(hold.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &models.HoldResponse{
		Outcome:          models.CheckoutOutcomeHeld,
		Hold:             hold,
		ExpiresInSeconds: remaining,
	}, nil
}

// ============================================================================
// SUBMIT PASSENGERS
// ============================================================================

// SubmitPassengers validates the passengers, charges the hold's amount and
// converts the hold into a booking. A declined or failed charge releases the
// hold. A confirm that fails after the charge is refunded.
func (c *BookingCoordinator) SubmitPassengers(ctx context.Context, holdID uuid.UUID, ownerToken string, req *models.SubmitPassengersRequest) (*models.SubmitPassengersResponse, error) {
	hold, err := c.inventory.GetHold(ctx, holdID, ownerToken, c.now())
	if err != nil {
		if models.IsReselect(err) {
			return &models.SubmitPassengersResponse{
				Outcome: models.CheckoutOutcomeReselect,
				Message: "Your seat hold is no longer active. Please select seats again.",
			}, err
		}
		return nil, err
	}

	if len(req.Passengers) != len(hold.SeatCodes) {
		return nil, models.NewError(models.KindInvalidPassengerCount,
			"%d passengers submitted for %d seats", len(req.Passengers), len(hold.SeatCodes))
	}
	if err := c.validateDetails(req); err != nil {
		return nil, err
	}

	auth, err := c.payments.Authorize(ctx, AuthorizeRequest{
		InvoiceID:     hold.ID.String(),
		Amount:        hold.Amount,
		PaymentMethod: req.PaymentMethod,
		CustomerName:  req.Contact.Name,
		CustomerPhone: req.Contact.Mobile,
		CustomerEmail: req.Contact.Email,
		Description:   fmt.Sprintf("Seats %s on trip %s", strings.Join(hold.SeatCodes, ", "), hold.TripID),
	})
	if err != nil {
		c.releaseAfterPaymentFailure(ctx, hold, ownerToken)
		return &models.SubmitPassengersResponse{
			Outcome: models.CheckoutOutcomePaymentFailed,
			Message: "Payment could not be processed. Your seats have been released.",
		}, models.WrapError(models.KindPaymentUnavailable, err, "payment gateway unavailable")
	}
	if !auth.Approved {
		c.releaseAfterPaymentFailure(ctx, hold, ownerToken)
		return &models.SubmitPassengersResponse{
			Outcome: models.CheckoutOutcomePaymentFailed,
			Message: "Payment was declined. Your seats have been released.",
		}, models.NewError(models.KindPaymentDeclined, "payment declined: %s", auth.DeclineReason)
	}

	booking, err := c.inventory.ConfirmBooking(ctx, hold.ID, ownerToken, models.BookingDetails{
		Passengers: req.Passengers,
		Contact:    req.Contact,
		PaymentRef: auth.TransactionRef,
	}, c.now())
	if err != nil {
		refunded := c.refund(ctx, hold, auth.TransactionRef, err)
		resp := &models.SubmitPassengersResponse{
			Outcome:      models.CheckoutOutcomePaymentFailed,
			Message:      "Booking could not be completed. Your payment has been refunded.",
			RefundIssued: refunded,
		}
		if !refunded {
			resp.Message = "Booking could not be completed. Your refund is being processed."
		}
		if models.IsReselect(err) {
			resp.Outcome = models.CheckoutOutcomeReselect
		}
		return resp, err
	}

	return &models.SubmitPassengersResponse{
		Outcome: models.CheckoutOutcomeConfirmed,
		Booking: booking,
	}, nil
}

func (c *BookingCoordinator) validateDetails(req *models.SubmitPassengersRequest) error {
	if c.validator == nil {
		return nil
	}
	var problems []string
	for i := range req.Passengers {
		if err := c.validator.Struct(req.Passengers[i]); err != nil {
			problems = append(problems, fmt.Sprintf("passenger %d: %v", i+1, err))
		}
	}
	if err := c.validator.Struct(req.Contact); err != nil {
		problems = append(problems, fmt.Sprintf("contact: %v", err))
	}
	if len(problems) > 0 {
		return models.NewError(models.KindInvalidPassengerDetails, "%s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *BookingCoordinator) releaseAfterPaymentFailure(ctx context.Context, hold *models.Hold, ownerToken string) {
	if err := c.inventory.ReleaseHold(ctx, hold.ID, ownerToken, c.now()); err != nil {
		// the hold still lapses at its TTL
		c.logger.WithError(err).WithField("hold_id", hold.ID).Warn("Failed to release hold after payment failure")
	}
}

// refund compensates a charge whose booking could not be created
func (c *BookingCoordinator) refund(ctx context.Context, hold *models.Hold, transactionRef string, cause error) bool {
	logger := c.logger.WithFields(logrus.Fields{
		"hold_id":         hold.ID,
		"trip_id":         hold.TripID,
		"transaction_ref": transactionRef,
		"cause":           cause.Error(),
	})

	if err := c.payments.Refund(ctx, transactionRef, "refund-"+hold.ID.String()); err != nil {
		logger.WithError(err).Error("❌ Refund failed after confirm failure - manual refund required")
		return false
	}
	logger.Warn("Payment refunded after confirm failure")
	return true
}

// ============================================================================
// ABANDON CHECKOUT
// ============================================================================

// AbandonCheckout releases the hold. Safe after confirm, release or expiry.
func (c *BookingCoordinator) AbandonCheckout(ctx context.Context, holdID uuid.UUID, ownerToken string) error {
	err := c.inventory.ReleaseHold(ctx, holdID, ownerToken, c.now())
	if err != nil && !errors.Is(err, models.ErrOwnerMismatch) {
		c.logger.WithError(err).WithField("hold_id", holdID).Error("Failed to abandon checkout")
	}
	return err
}
