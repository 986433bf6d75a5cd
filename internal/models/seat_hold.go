package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatState is the derived state of one seat of one trip
type SeatState string

const (
	SeatStateAvailable SeatState = "available"
	SeatStateHeld      SeatState = "held"
	SeatStateBooked    SeatState = "booked"
	SeatStateBlocked   SeatState = "blocked"
)

// HoldStatus represents the lifecycle of a hold
type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "active"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusExpired  HoldStatus = "expired"
	HoldStatusConsumed HoldStatus = "consumed" // converted into a booking
)

// DefaultHoldTTL is used when no TTL is configured
const DefaultHoldTTL = 10 * time.Minute

// ============================================================================
// SEAT HOLD MODEL (seat_holds table)
// ============================================================================

// Hold is a time-boxed exclusive claim on seats of one trip
type Hold struct {
	ID         uuid.UUID   `json:"hold_id" db:"id"`
	TripID     string      `json:"trip_id" db:"trip_id"`
	SeatCodes  StringArray `json:"seat_codes" db:"seat_codes"`
	OwnerToken string      `json:"-" db:"owner_token"`
	Amount     float64     `json:"amount" db:"amount"`
	Status     HoldStatus  `json:"status" db:"status"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at" db:"expires_at"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty" db:"closed_at"`
}

// IsExpiredAt reports whether the TTL has run out at now.
// A hold is live strictly before ExpiresAt.
func (h *Hold) IsExpiredAt(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// IsLiveAt reports whether the hold still claims its seats at now
func (h *Hold) IsLiveAt(now time.Time) bool {
	return h.Status == HoldStatusActive && !h.IsExpiredAt(now)
}

// Clone returns a deep copy
func (h *Hold) Clone() *Hold {
	c := *h
	c.SeatCodes = append(StringArray(nil), h.SeatCodes...)
	if h.ClosedAt != nil {
		t := *h.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// SeatBlock records an operator block on one seat
type SeatBlock struct {
	TripID    string    `json:"trip_id" db:"trip_id"`
	SeatCode  string    `json:"seat_code" db:"seat_code"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	BlockedBy string    `json:"blocked_by,omitempty" db:"blocked_by"`
	BlockedAt time.Time `json:"blocked_at" db:"blocked_at"`
}

// ============================================================================
// AVAILABILITY
// ============================================================================

// SeatAvailability is one seat of an availability quote
type SeatAvailability struct {
	SeatCode string       `json:"seat_code"`
	Deck     SeatDeck     `json:"deck"`
	Position SeatPosition `json:"position"`
	Fare     float64      `json:"fare"`
	State    SeatState    `json:"state"`
}

// AvailabilitySummary counts seats per state
type AvailabilitySummary struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Held      int `json:"held"`
	Booked    int `json:"booked"`
	Blocked   int `json:"blocked"`
}

// AvailabilityQuote is a point-in-time view of a trip's seat states
type AvailabilityQuote struct {
	TripID  string              `json:"trip_id"`
	AsOf    time.Time           `json:"as_of"`
	Version uint64              `json:"version"`
	Seats   []SeatAvailability  `json:"seats"`
	Summary AvailabilitySummary `json:"summary"`
}

// StateOf returns the state of code in the quote
func (q *AvailabilityQuote) StateOf(code string) (SeatState, bool) {
	for _, s := range q.Seats {
		if s.SeatCode == code {
			return s.State, true
		}
	}
	return "", false
}

// ============================================================================
// CHECKOUT REQUEST/RESPONSE TYPES
// ============================================================================

// StartCheckoutRequest asks for a hold on seats of a trip
type StartCheckoutRequest struct {
	TripID    string   `json:"trip_id" binding:"required"`
	SeatCodes []string `json:"seat_codes"`
}

// CheckoutOutcome is the user-facing result of a checkout step
type CheckoutOutcome string

const (
	CheckoutOutcomeHeld          CheckoutOutcome = "held"
	CheckoutOutcomeReselect      CheckoutOutcome = "reselect_seats"
	CheckoutOutcomeConfirmed     CheckoutOutcome = "confirmed"
	CheckoutOutcomePaymentFailed CheckoutOutcome = "payment_failed"
	CheckoutOutcomeReleased      CheckoutOutcome = "released"
)

// HoldResponse is returned when a hold is created or looked up
type HoldResponse struct {
	Outcome          CheckoutOutcome `json:"outcome"`
	Hold             *Hold           `json:"hold,omitempty"`
	UnavailableSeats []string        `json:"unavailable_seats,omitempty"`
	Message          string          `json:"message,omitempty"`
	ExpiresInSeconds int             `json:"expires_in_seconds,omitempty"`
}
