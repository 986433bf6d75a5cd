package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/seat-inventory/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Ping checks the connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// TRIPS
// ============================================================================

// SaveTrip inserts a trip and its seat layout. Returns ErrTripExists on a duplicate id.
func (s *PostgresStore) SaveTrip(ctx context.Context, trip models.Trip, seats []models.Seat) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_trips (id, route_ref, vehicle_ref, departure_at, base_fare, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		trip.ID, trip.RouteRef, trip.VehicleRef, trip.DepartureAt, trip.BaseFare, trip.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrTripExists
	}

	for _, seat := range seats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_trip_seats (trip_id, seat_code, deck, position, fare_multiplier, ordinal)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			trip.ID, seat.Code, seat.Deck, seat.Position, seat.FareMultiplier, seat.Ordinal,
		)
		if err != nil {
			return fmt.Errorf("failed to insert seat %s: %w", seat.Code, err)
		}
	}

	return tx.Commit()
}

// GetTrip returns the trip and its layout in ordinal order
func (s *PostgresStore) GetTrip(ctx context.Context, tripID string) (*models.Trip, []models.Seat, error) {
	var trip models.Trip
	err := s.db.GetContext(ctx, &trip, `
		SELECT id, route_ref, vehicle_ref, departure_at, base_fare, published_at
		FROM inventory_trips WHERE id = $1`, tripID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to get trip: %w", err)
	}

	var seats []models.Seat
	err = s.db.SelectContext(ctx, &seats, `
		SELECT seat_code, deck, position, fare_multiplier, ordinal
		FROM inventory_trip_seats WHERE trip_id = $1
		ORDER BY ordinal`, tripID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get trip seats: %w", err)
	}

	return &trip, seats, nil
}

// ============================================================================
// LEDGER
// ============================================================================

const holdColumns = `id, trip_id, seat_codes, owner_token, amount, status, created_at, expires_at, closed_at`

const bookingColumns = `id, booking_reference, trip_id, hold_id, owner_token, seat_codes, passengers, contact,
	amount, currency, payment_reference, status, created_at, cancelled_at, completed_at`

// LoadLedger loads active holds, seat-holding bookings and blocks of a trip
func (s *PostgresStore) LoadLedger(ctx context.Context, tripID string) (*LedgerState, error) {
	state := &LedgerState{}

	err := s.db.SelectContext(ctx, &state.Holds, `
		SELECT `+holdColumns+`
		FROM seat_holds
		WHERE trip_id = $1 AND status = 'active'
		ORDER BY created_at`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holds: %w", err)
	}

	err = s.db.SelectContext(ctx, &state.Bookings, `
		SELECT `+bookingColumns+`
		FROM seat_bookings
		WHERE trip_id = $1 AND status IN ('confirmed', 'completed')`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	err = s.db.SelectContext(ctx, &state.Blocks, `
		SELECT trip_id, seat_code, COALESCE(reason, '') AS reason,
		       COALESCE(created_by, '') AS blocked_by, created_at AS blocked_at
		FROM seat_allocations
		WHERE trip_id = $1 AND kind = 'block'`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seat blocks: %w", err)
	}

	return state, nil
}

// InsertHold stores a hold and claims its seats. Allocation rows left behind by
// holds that already expired are reclaimed first.
func (s *PostgresStore) InsertHold(ctx context.Context, hold *models.Hold) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM seat_allocations
		WHERE trip_id = $1 AND seat_code = ANY($2) AND kind = 'hold' AND expires_at <= $3`,
		hold.TripID, hold.SeatCodes, hold.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to reclaim expired allocations: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO seat_holds (`+holdColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		hold.ID, hold.TripID, hold.SeatCodes, hold.OwnerToken, hold.Amount,
		hold.Status, hold.CreatedAt, hold.ExpiresAt, hold.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert hold: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO seat_allocations (trip_id, seat_code, kind, ref_id, expires_at, created_by, created_at)
		SELECT $1, code, 'hold', $3, $4, $5, $6 FROM unnest($2::text[]) AS code`,
		hold.TripID, hold.SeatCodes, hold.ID, hold.ExpiresAt, hold.OwnerToken, hold.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSeatTaken
		}
		return fmt.Errorf("failed to allocate seats: %w", err)
	}

	return tx.Commit()
}

// CloseHolds moves active holds to a closed status and frees their seats
func (s *PostgresStore) CloseHolds(ctx context.Context, holdIDs []uuid.UUID, status models.HoldStatus, at time.Time) error {
	if len(holdIDs) == 0 {
		return nil
	}
	ids := uuidStrings(holdIDs)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE seat_holds SET status = $1, closed_at = $2
		WHERE id = ANY($3::uuid[]) AND status = 'active'`,
		status, at, pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to close holds: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM seat_allocations WHERE kind = 'hold' AND ref_id = ANY($1::uuid[])`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to free held seats: %w", err)
	}

	return tx.Commit()
}

// GetHold returns a hold in any status
func (s *PostgresStore) GetHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	var hold models.Hold
	err := s.db.GetContext(ctx, &hold, `SELECT `+holdColumns+` FROM seat_holds WHERE id = $1`, holdID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	return &hold, nil
}

// ExpireStaleHolds closes every active hold past its TTL across all trips
func (s *PostgresStore) ExpireStaleHolds(ctx context.Context, now time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE seat_holds SET status = 'expired', closed_at = $1
		WHERE status = 'active' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire holds: %w", err)
	}
	expired, _ := result.RowsAffected()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM seat_allocations WHERE kind = 'hold' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to free expired allocations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expiry: %w", err)
	}
	return expired, nil
}

// ConsumeHold converts a hold into a booking atomically. Fails with ErrSeatTaken
// when the hold no longer owns every seat of the booking.
func (s *PostgresStore) ConsumeHold(ctx context.Context, holdID uuid.UUID, booking *models.Booking) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE seat_holds SET status = 'consumed', closed_at = $2
		WHERE id = $1 AND status = 'active'`,
		holdID, booking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to consume hold: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO seat_bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		booking.ID, booking.Reference, booking.TripID, booking.HoldID, booking.OwnerToken,
		booking.SeatCodes, booking.Passengers, booking.Contact, booking.Amount, booking.Currency,
		booking.PaymentRef, booking.Status, booking.CreatedAt, booking.CancelledAt, booking.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE seat_allocations SET kind = 'booking', ref_id = $2, expires_at = NULL
		WHERE kind = 'hold' AND ref_id = $1`,
		holdID, booking.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to convert allocations: %w", err)
	}
	// a newer hold reclaimed some of the seats after this one lapsed
	if rows, _ := result.RowsAffected(); rows != int64(len(booking.SeatCodes)) {
		return ErrSeatTaken
	}

	return tx.Commit()
}

// UpdateBookingStatus records a cancellation or completion. Cancelling frees the seats.
func (s *PostgresStore) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status models.BookingStatus, at time.Time) error {
	var query string
	switch status {
	case models.BookingStatusCancelled:
		query = `UPDATE seat_bookings SET status = 'cancelled', cancelled_at = $2 WHERE id = $1`
	case models.BookingStatusCompleted:
		query = `UPDATE seat_bookings SET status = 'completed', completed_at = $2 WHERE id = $1`
	default:
		return fmt.Errorf("unsupported booking status: %s", status)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, bookingID, at)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	if status == models.BookingStatusCancelled {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM seat_allocations WHERE kind = 'booking' AND ref_id = $1`, bookingID)
		if err != nil {
			return fmt.Errorf("failed to free booked seats: %w", err)
		}
	}

	return tx.Commit()
}

// GetBooking returns a booking in any status
func (s *PostgresStore) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM seat_bookings WHERE id = $1`, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// ============================================================================
// SEAT BLOCKS
// ============================================================================

// BlockSeats allocates seats to operator blocks
func (s *PostgresStore) BlockSeats(ctx context.Context, blocks []models.SeatBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, b := range blocks {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM seat_allocations
			WHERE trip_id = $1 AND seat_code = $2 AND kind = 'hold' AND expires_at <= $3`,
			b.TripID, b.SeatCode, b.BlockedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to reclaim expired allocation: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO seat_allocations (trip_id, seat_code, kind, reason, created_by, created_at)
			VALUES ($1, $2, 'block', $3, $4, $5)`,
			b.TripID, b.SeatCode, b.Reason, b.BlockedBy, b.BlockedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrSeatTaken
			}
			return fmt.Errorf("failed to block seat %s: %w", b.SeatCode, err)
		}
	}

	return tx.Commit()
}

// UnblockSeats removes operator blocks
func (s *PostgresStore) UnblockSeats(ctx context.Context, tripID string, seatCodes []string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM seat_allocations
		WHERE trip_id = $1 AND seat_code = ANY($2) AND kind = 'block'`,
		tripID, pq.Array(seatCodes),
	)
	if err != nil {
		return fmt.Errorf("failed to unblock seats: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
