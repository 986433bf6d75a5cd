package models

import (
	"math"
	"strings"
	"time"
)

// SeatDeck is the deck a seat sits on
type SeatDeck string

const (
	SeatDeckLower SeatDeck = "lower"
	SeatDeckUpper SeatDeck = "upper"
)

// SeatPosition is the side of the aisle a seat sits on
type SeatPosition string

const (
	SeatPositionLeft  SeatPosition = "left"
	SeatPositionRight SeatPosition = "right"
)

// Trip is one scheduled departure of one vehicle on one route.
// Immutable once published.
type Trip struct {
	ID          string    `json:"id" db:"id"`
	RouteRef    string    `json:"route_ref" db:"route_ref"`
	VehicleRef  string    `json:"vehicle_ref" db:"vehicle_ref"`
	DepartureAt time.Time `json:"departure_at" db:"departure_at"`
	BaseFare    float64   `json:"base_fare" db:"base_fare"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
}

// Seat is one physical seat of a trip's layout
type Seat struct {
	Code           string       `json:"seat_code" db:"seat_code"`
	Deck           SeatDeck     `json:"deck" db:"deck"`
	Position       SeatPosition `json:"position" db:"position"`
	FareMultiplier float64      `json:"fare_multiplier" db:"fare_multiplier"`
	Ordinal        int          `json:"-" db:"ordinal"`
}

// SeatMap is the fixed seat layout of one trip. It never changes after
// BuildSeatMap; seat state lives in the hold ledger.
type SeatMap struct {
	trip  Trip
	seats []Seat
	index map[string]int
}

// BuildSeatMap validates a layout against its trip and returns the seat map.
// A zero fare multiplier defaults to 1.
func BuildSeatMap(trip Trip, layout []Seat) (*SeatMap, error) {
	if strings.TrimSpace(trip.ID) == "" {
		return nil, NewError(KindInvalidLayout, "trip id is required")
	}
	if trip.BaseFare <= 0 || math.IsNaN(trip.BaseFare) || math.IsInf(trip.BaseFare, 0) {
		return nil, NewError(KindInvalidLayout, "base fare must be positive")
	}
	if len(layout) == 0 {
		return nil, NewError(KindInvalidLayout, "layout has no seats")
	}

	m := &SeatMap{
		trip:  trip,
		seats: make([]Seat, 0, len(layout)),
		index: make(map[string]int, len(layout)),
	}

	for i, s := range layout {
		code := strings.TrimSpace(s.Code)
		if code == "" {
			return nil, NewError(KindInvalidLayout, "seat %d has no code", i+1)
		}
		if _, dup := m.index[code]; dup {
			return nil, NewError(KindInvalidLayout, "duplicate seat code %s", code)
		}

		switch s.Deck {
		case "":
			s.Deck = SeatDeckLower
		case SeatDeckLower, SeatDeckUpper:
		default:
			return nil, NewError(KindInvalidLayout, "seat %s has invalid deck %q", code, s.Deck)
		}

		switch s.Position {
		case SeatPositionLeft, SeatPositionRight:
		default:
			return nil, NewError(KindInvalidLayout, "seat %s has invalid position %q", code, s.Position)
		}

		if s.FareMultiplier == 0 {
			s.FareMultiplier = 1
		}
		if s.FareMultiplier < 0 || math.IsNaN(s.FareMultiplier) || math.IsInf(s.FareMultiplier, 0) {
			return nil, NewError(KindInvalidLayout, "seat %s has invalid fare multiplier", code)
		}

		s.Code = code
		s.Ordinal = i
		m.index[code] = len(m.seats)
		m.seats = append(m.seats, s)
	}

	return m, nil
}

// Trip returns the trip the map belongs to
func (m *SeatMap) Trip() Trip {
	return m.trip
}

// TripID returns the owning trip id
func (m *SeatMap) TripID() string {
	return m.trip.ID
}

// Len returns the number of seats
func (m *SeatMap) Len() int {
	return len(m.seats)
}

// Has reports whether code is part of the layout
func (m *SeatMap) Has(code string) bool {
	_, ok := m.index[code]
	return ok
}

// Seat returns the seat for code
func (m *SeatMap) Seat(code string) (Seat, error) {
	i, ok := m.index[code]
	if !ok {
		return Seat{}, NewSeatError(KindUnknownSeat, []string{code}, "seat %s is not part of trip %s", code, m.trip.ID)
	}
	return m.seats[i], nil
}

// FareFor returns base fare × the seat's multiplier, rounded to cents
func (m *SeatMap) FareFor(code string) (float64, error) {
	seat, err := m.Seat(code)
	if err != nil {
		return 0, err
	}
	return roundFare(m.trip.BaseFare * seat.FareMultiplier), nil
}

// AllSeatCodes returns the seat codes in layout order. Each call returns a fresh slice.
func (m *SeatMap) AllSeatCodes() []string {
	codes := make([]string, len(m.seats))
	for i, s := range m.seats {
		codes[i] = s.Code
	}
	return codes
}

// Seats returns a copy of the layout
func (m *SeatMap) Seats() []Seat {
	out := make([]Seat, len(m.seats))
	copy(out, m.seats)
	return out
}

// TotalFare sums FareFor over codes
func (m *SeatMap) TotalFare(codes []string) (float64, error) {
	var total float64
	for _, code := range codes {
		fare, err := m.FareFor(code)
		if err != nil {
			return 0, err
		}
		total += fare
	}
	return roundFare(total), nil
}

func roundFare(v float64) float64 {
	return math.Round(v*100) / 100
}

// ============================================================================
// REQUEST TYPES
// ============================================================================

// PublishTripRequest publishes a trip together with its seat layout
type PublishTripRequest struct {
	TripID      string    `json:"trip_id" binding:"required"`
	RouteRef    string    `json:"route_ref" binding:"required"`
	VehicleRef  string    `json:"vehicle_ref" binding:"required"`
	DepartureAt time.Time `json:"departure_at" binding:"required"`
	BaseFare    float64   `json:"base_fare" binding:"required,gt=0"`
	Seats       []Seat    `json:"seats" binding:"required,min=1"`
}

// Trip converts the request into a Trip
func (r *PublishTripRequest) Trip() Trip {
	return Trip{
		ID:          strings.TrimSpace(r.TripID),
		RouteRef:    r.RouteRef,
		VehicleRef:  r.VehicleRef,
		DepartureAt: r.DepartureAt,
		BaseFare:    r.BaseFare,
	}
}

// BlockSeatsRequest is used to block or unblock one or more seats
type BlockSeatsRequest struct {
	SeatCodes []string `json:"seat_codes" binding:"required,min=1"`
	Reason    string   `json:"reason,omitempty"`
}
