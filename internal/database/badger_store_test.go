package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	store, err := OpenBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTrip(t *testing.T, store *BadgerStore) {
	trip := models.Trip{ID: "trip-1", RouteRef: "r1", VehicleRef: "v1", DepartureAt: time.Now().Add(24 * time.Hour), BaseFare: 1000}
	seats := []models.Seat{
		{Code: "U1", Deck: models.SeatDeckUpper, Position: models.SeatPositionLeft, FareMultiplier: 1, Ordinal: 2},
		{Code: "L1", Deck: models.SeatDeckLower, Position: models.SeatPositionLeft, FareMultiplier: 1, Ordinal: 0},
		{Code: "L2", Deck: models.SeatDeckLower, Position: models.SeatPositionRight, FareMultiplier: 1, Ordinal: 1},
	}
	require.NoError(t, store.SaveTrip(context.Background(), trip, seats))
}

func TestBadgerStore_Trips(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()
	seedTrip(t, store)

	trip, seats, err := store.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	require.NotNil(t, trip)
	assert.Equal(t, "v1", trip.VehicleRef)
	require.Len(t, seats, 3)
	assert.Equal(t, "L1", seats[0].Code)
	assert.Equal(t, "U1", seats[2].Code)

	err = store.SaveTrip(ctx, *trip, seats)
	assert.ErrorIs(t, err, ErrTripExists)

	missing, _, err := store.GetTrip(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBadgerStore_HoldLifecycle(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()
	seedTrip(t, store)

	t0 := time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC)
	hold := &models.Hold{
		ID: uuid.New(), TripID: "trip-1", SeatCodes: models.StringArray{"L1", "L2"}, OwnerToken: "user-a",
		Amount: 2000, Status: models.HoldStatusActive, CreatedAt: t0, ExpiresAt: t0.Add(10 * time.Minute),
	}
	require.NoError(t, store.InsertHold(ctx, hold))

	t.Run("owner token survives round trip", func(t *testing.T) {
		got, err := store.GetHold(ctx, hold.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "user-a", got.OwnerToken)
		assert.Equal(t, models.StringArray{"L1", "L2"}, got.SeatCodes)
	})

	t.Run("overlapping live hold is rejected", func(t *testing.T) {
		other := &models.Hold{
			ID: uuid.New(), TripID: "trip-1", SeatCodes: models.StringArray{"L2"}, OwnerToken: "user-b",
			Status: models.HoldStatusActive, CreatedAt: t0.Add(time.Second), ExpiresAt: t0.Add(11 * time.Minute),
		}
		assert.ErrorIs(t, store.InsertHold(ctx, other), ErrSeatTaken)
	})

	t.Run("ledger contains the hold", func(t *testing.T) {
		state, err := store.LoadLedger(ctx, "trip-1")
		require.NoError(t, err)
		require.Len(t, state.Holds, 1)
		assert.Equal(t, hold.ID, state.Holds[0].ID)
		assert.Empty(t, state.Bookings)
	})

	t.Run("consume converts to booking", func(t *testing.T) {
		booking := &models.Booking{
			ID: uuid.New(), Reference: "BK-1", TripID: "trip-1", HoldID: hold.ID, OwnerToken: "user-a",
			SeatCodes: hold.SeatCodes, Amount: 2000, Currency: "LKR",
			Status: models.BookingStatusConfirmed, CreatedAt: t0.Add(2 * time.Minute),
		}
		require.NoError(t, store.ConsumeHold(ctx, hold.ID, booking))
		assert.ErrorIs(t, store.ConsumeHold(ctx, hold.ID, booking), ErrNotFound)

		state, err := store.LoadLedger(ctx, "trip-1")
		require.NoError(t, err)
		assert.Empty(t, state.Holds)
		require.Len(t, state.Bookings, 1)
		assert.Equal(t, "user-a", state.Bookings[0].OwnerToken)

		consumed, err := store.GetHold(ctx, hold.ID)
		require.NoError(t, err)
		assert.Equal(t, models.HoldStatusConsumed, consumed.Status)

		// cancelling frees the seats for a new hold
		require.NoError(t, store.UpdateBookingStatus(ctx, booking.ID, models.BookingStatusCancelled, t0.Add(3*time.Minute)))
		state, err = store.LoadLedger(ctx, "trip-1")
		require.NoError(t, err)
		assert.Empty(t, state.Bookings)

		again := &models.Hold{
			ID: uuid.New(), TripID: "trip-1", SeatCodes: models.StringArray{"L1"}, OwnerToken: "user-c",
			Status: models.HoldStatusActive, CreatedAt: t0.Add(4 * time.Minute), ExpiresAt: t0.Add(14 * time.Minute),
		}
		assert.NoError(t, store.InsertHold(ctx, again))

		cancelled, err := store.GetBooking(ctx, booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
		assert.NotNil(t, cancelled.CancelledAt)
	})
}

func TestBadgerStore_ExpiredHoldsAreReclaimed(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()
	seedTrip(t, store)

	t0 := time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC)
	stale := &models.Hold{
		ID: uuid.New(), TripID: "trip-1", SeatCodes: models.StringArray{"L1"}, OwnerToken: "user-a",
		Status: models.HoldStatusActive, CreatedAt: t0, ExpiresAt: t0.Add(10 * time.Minute),
	}
	require.NoError(t, store.InsertHold(ctx, stale))

	fresh := &models.Hold{
		ID: uuid.New(), TripID: "trip-1", SeatCodes: models.StringArray{"L1"}, OwnerToken: "user-b",
		Status: models.HoldStatusActive, CreatedAt: t0.Add(11 * time.Minute), ExpiresAt: t0.Add(21 * time.Minute),
	}
	require.NoError(t, store.InsertHold(ctx, fresh))

	expired, err := store.ExpireStaleHolds(ctx, t0.Add(12*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	got, err := store.GetHold(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusExpired, got.Status)

	// the stale hold's expiry must not free the seat now owned by the fresh hold
	state, err := store.LoadLedger(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, state.Holds, 1)
	assert.Equal(t, fresh.ID, state.Holds[0].ID)

	blocked := []models.SeatBlock{{TripID: "trip-1", SeatCode: "L1", BlockedAt: t0.Add(12 * time.Minute)}}
	assert.ErrorIs(t, store.BlockSeats(ctx, blocked), ErrSeatTaken)
}

func TestBadgerStore_ConsumeReclaimedHold(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()
	seedTrip(t, store)

	t0 := time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC)
	stale := &models.Hold{
		ID: uuid.New(), TripID: "trip-1", SeatCodes: models.StringArray{"L1", "L2"}, OwnerToken: "user-a",
		Status: models.HoldStatusActive, CreatedAt: t0, ExpiresAt: t0.Add(10 * time.Minute),
	}
	require.NoError(t, store.InsertHold(ctx, stale))

	fresh := &models.Hold{
		ID: uuid.New(), TripID: "trip-1", SeatCodes: models.StringArray{"L2"}, OwnerToken: "user-b",
		Status: models.HoldStatusActive, CreatedAt: t0.Add(11 * time.Minute), ExpiresAt: t0.Add(21 * time.Minute),
	}
	require.NoError(t, store.InsertHold(ctx, fresh))

	booking := &models.Booking{
		ID: uuid.New(), Reference: "BK-1", TripID: "trip-1", HoldID: stale.ID, OwnerToken: "user-a",
		SeatCodes: stale.SeatCodes, Status: models.BookingStatusConfirmed, CreatedAt: t0.Add(12 * time.Minute),
	}
	assert.ErrorIs(t, store.ConsumeHold(ctx, stale.ID, booking), ErrSeatTaken)

	// nothing was written: the stale hold is still active and L2 still belongs to the fresh hold
	got, err := store.GetHold(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusActive, got.Status)

	stored, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	state, err := store.LoadLedger(ctx, "trip-1")
	require.NoError(t, err)
	assert.Empty(t, state.Bookings)
}

func TestBadgerStore_Blocks(t *testing.T) {
	store := newTestBadgerStore(t)
	ctx := context.Background()
	seedTrip(t, store)
	now := time.Now()

	require.NoError(t, store.BlockSeats(ctx, []models.SeatBlock{
		{TripID: "trip-1", SeatCode: "U1", Reason: "broken recliner", BlockedBy: "admin-1", BlockedAt: now},
	}))

	state, err := store.LoadLedger(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, state.Blocks, 1)
	assert.Equal(t, "U1", state.Blocks[0].SeatCode)
	assert.Equal(t, "broken recliner", state.Blocks[0].Reason)

	hold := &models.Hold{
		ID: uuid.New(), TripID: "trip-1", SeatCodes: models.StringArray{"U1"}, OwnerToken: "user-a",
		Status: models.HoldStatusActive, CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}
	assert.ErrorIs(t, store.InsertHold(ctx, hold), ErrSeatTaken)

	require.NoError(t, store.UnblockSeats(ctx, "trip-1", []string{"U1"}))
	state, err = store.LoadLedger(ctx, "trip-1")
	require.NoError(t, err)
	assert.Empty(t, state.Blocks)
	assert.NoError(t, store.InsertHold(ctx, hold))
}
