package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// Booking is a confirmed allocation of seats to passengers.
// It is only ever created by consuming a live hold.
type Booking struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Reference   string        `json:"booking_reference" db:"booking_reference"`
	TripID      string        `json:"trip_id" db:"trip_id"`
	HoldID      uuid.UUID     `json:"hold_id" db:"hold_id"`
	OwnerToken  string        `json:"-" db:"owner_token"`
	SeatCodes   StringArray   `json:"seat_codes" db:"seat_codes"`
	Passengers  PassengerList `json:"passengers" db:"passengers"`
	Contact     ContactPerson `json:"contact" db:"contact"`
	Amount      float64       `json:"amount" db:"amount"`
	Currency    string        `json:"currency" db:"currency"`
	PaymentRef  *string       `json:"payment_reference,omitempty" db:"payment_reference"`
	Status      BookingStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// HoldsSeats reports whether the booking still occupies its seats
func (b *Booking) HoldsSeats() bool {
	return b.Status == BookingStatusConfirmed || b.Status == BookingStatusCompleted
}

// CanCancel returns the error a cancellation would fail with, or nil
func (b *Booking) CanCancel() error {
	switch b.Status {
	case BookingStatusConfirmed:
		return nil
	case BookingStatusCancelled:
		return NewError(KindAlreadyCancelled, "booking %s is already cancelled", b.Reference)
	default:
		return NewError(KindInvalidTransition, "booking %s cannot be cancelled from status %s", b.Reference, b.Status)
	}
}

// CanComplete returns the error a completion would fail with, or nil
func (b *Booking) CanComplete() error {
	if b.Status != BookingStatusConfirmed {
		return NewError(KindInvalidTransition, "booking %s cannot be completed from status %s", b.Reference, b.Status)
	}
	return nil
}

// Clone returns a deep copy
func (b *Booking) Clone() *Booking {
	c := *b
	c.SeatCodes = append(StringArray(nil), b.SeatCodes...)
	c.Passengers = append(PassengerList(nil), b.Passengers...)
	return &c
}

// NewBookingReference derives a short human-readable reference from the booking id
func NewBookingReference(id uuid.UUID, at time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return fmt.Sprintf("BK-%s-%s", at.Format("060102"), short)
}

// BookingDetails is what the coordinator collects before confirmation
type BookingDetails struct {
	Passengers []Passenger   `json:"passengers"`
	Contact    ContactPerson `json:"contact"`
	PaymentRef string        `json:"-"`
	Currency   string        `json:"-"`
}

// ============================================================================
// REQUEST/RESPONSE TYPES
// ============================================================================

// SubmitPassengersRequest carries passenger details and the payment method
type SubmitPassengersRequest struct {
	Passengers    []Passenger   `json:"passengers" binding:"required"`
	Contact       ContactPerson `json:"contact" binding:"required"`
	PaymentMethod string        `json:"payment_method" binding:"required"`
}

// SubmitPassengersResponse is the result of the passenger + payment step
type SubmitPassengersResponse struct {
	Outcome          CheckoutOutcome `json:"outcome"`
	Booking          *Booking        `json:"booking,omitempty"`
	Message          string          `json:"message,omitempty"`
	RefundIssued     bool            `json:"refund_issued,omitempty"`
	UnavailableSeats []string        `json:"unavailable_seats,omitempty"`
}
