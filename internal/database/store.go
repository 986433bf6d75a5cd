package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-inventory/internal/models"
)

var (
	// ErrTripExists is returned when a trip id is published twice
	ErrTripExists = errors.New("trip already exists")
	// ErrSeatTaken is returned when the store itself detects a live allocation on a seat
	ErrSeatTaken = errors.New("seat already allocated")
	// ErrNotFound is returned when a row to update does not exist
	ErrNotFound = errors.New("record not found")
)

// LedgerState is everything needed to rebuild one trip's in-memory ledger
type LedgerState struct {
	Holds    []*models.Hold    // active holds, possibly past their TTL
	Bookings []*models.Booking // bookings that still occupy seats
	Blocks   []models.SeatBlock
}

// TripStore persists published trips and their seat layouts
type TripStore interface {
	SaveTrip(ctx context.Context, trip models.Trip, seats []models.Seat) error
	// GetTrip returns nil, nil, nil when the trip does not exist
	GetTrip(ctx context.Context, tripID string) (*models.Trip, []models.Seat, error)
}

// LedgerStore persists holds, bookings and seat blocks.
// Lookups return nil, nil when the record does not exist.
type LedgerStore interface {
	LoadLedger(ctx context.Context, tripID string) (*LedgerState, error)

	InsertHold(ctx context.Context, hold *models.Hold) error
	CloseHolds(ctx context.Context, holdIDs []uuid.UUID, status models.HoldStatus, at time.Time) error
	GetHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error)
	// ExpireStaleHolds closes every active hold whose TTL ran out before now
	ExpireStaleHolds(ctx context.Context, now time.Time) (int64, error)

	// ConsumeHold closes the hold as consumed and inserts the booking in one transaction
	ConsumeHold(ctx context.Context, holdID uuid.UUID, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status models.BookingStatus, at time.Time) error
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)

	BlockSeats(ctx context.Context, blocks []models.SeatBlock) error
	UnblockSeats(ctx context.Context, tripID string, seatCodes []string) error
}

// Store is a complete storage backend
type Store interface {
	TripStore
	LedgerStore
	Ping(ctx context.Context) error
	Close() error
}
