package models

import (
	"time"

	"github.com/google/uuid"
)

// EventHeader is carried by every published booking event
type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// NewEventHeader creates a header keyed on the aggregate and transition so
// consumers can drop redeliveries
func NewEventHeader(idempotencyKey string, at time.Time) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    at,
		IdempotencyKey: idempotencyKey,
	}
}

// BookingConfirmed is published after a hold is converted into a booking
type BookingConfirmed struct {
	Header           EventHeader `json:"header"`
	BookingID        string      `json:"booking_id"`
	BookingReference string      `json:"booking_reference"`
	TripID           string      `json:"trip_id"`
	SeatCodes        []string    `json:"seat_codes"`
	Amount           float64     `json:"amount"`
	Currency         string      `json:"currency"`
	ContactMobile    string      `json:"contact_mobile"`
}

// BookingCancelled is published after a booking's seats are returned
type BookingCancelled struct {
	Header           EventHeader `json:"header"`
	BookingID        string      `json:"booking_id"`
	BookingReference string      `json:"booking_reference"`
	TripID           string      `json:"trip_id"`
	SeatCodes        []string    `json:"seat_codes"`
}

// NewBookingConfirmed builds the confirmation event of a booking
func NewBookingConfirmed(b *Booking, at time.Time) BookingConfirmed {
	return BookingConfirmed{
		Header:           NewEventHeader("booking-confirmed-"+b.ID.String(), at),
		BookingID:        b.ID.String(),
		BookingReference: b.Reference,
		TripID:           b.TripID,
		SeatCodes:        append([]string(nil), b.SeatCodes...),
		Amount:           b.Amount,
		Currency:         b.Currency,
		ContactMobile:    b.Contact.Mobile,
	}
}

// NewBookingCancelled builds the cancellation event of a booking
func NewBookingCancelled(b *Booking, at time.Time) BookingCancelled {
	return BookingCancelled{
		Header:           NewEventHeader("booking-cancelled-"+b.ID.String(), at),
		BookingID:        b.ID.String(),
		BookingReference: b.Reference,
		TripID:           b.TripID,
		SeatCodes:        append([]string(nil), b.SeatCodes...),
	}
}
