package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// Key layout:
//
//	trip/<trip>                    tripRecord
//	hold/<hold>                    holdRecord
//	booking/<booking>              bookingRecord
//	alloc/<trip>/<seat>            allocationRecord
//	idx/hold/<trip>/<hold>         active holds of a trip
//	idx/booking/<trip>/<booking>   seat-holding bookings of a trip
const (
	prefixTrip         = "trip/"
	prefixHold         = "hold/"
	prefixBooking      = "booking/"
	prefixAlloc        = "alloc/"
	prefixHoldIndex    = "idx/hold/"
	prefixBookingIndex = "idx/booking/"
)

type tripRecord struct {
	Trip  models.Trip   `json:"trip"`
	Seats []models.Seat `json:"seats"`
}

// holdRecord keeps the owner token, which models.Hold hides from JSON
type holdRecord struct {
	models.Hold
	Owner string `json:"owner_token"`
}

type bookingRecord struct {
	models.Booking
	Owner string `json:"owner_token"`
}

type allocationRecord struct {
	Kind      string     `json:"kind"` // hold, booking, block
	RefID     uuid.UUID  `json:"ref_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// BadgerStore implements Store on an embedded badger database
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens a badger database at path. An empty path opens an in-memory store.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Ping reports whether the database is open
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// TRIPS
// ============================================================================

// SaveTrip stores a trip and its layout. Returns ErrTripExists on a duplicate id.
func (s *BadgerStore) SaveTrip(ctx context.Context, trip models.Trip, seats []models.Seat) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixTrip + trip.ID)
		if _, err := txn.Get(key); err == nil {
			return ErrTripExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return setJSON(txn, key, tripRecord{Trip: trip, Seats: seats})
	})
}

// GetTrip returns the trip and its layout
func (s *BadgerStore) GetTrip(ctx context.Context, tripID string) (*models.Trip, []models.Seat, error) {
	var rec tripRecord
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, []byte(prefixTrip+tripID), &rec)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get trip: %w", err)
	}
	if !found {
		return nil, nil, nil
	}
	sort.Slice(rec.Seats, func(i, j int) bool { return rec.Seats[i].Ordinal < rec.Seats[j].Ordinal })
	return &rec.Trip, rec.Seats, nil
}

// ============================================================================
// LEDGER
// ============================================================================

// LoadLedger loads active holds, seat-holding bookings and blocks of a trip
func (s *BadgerStore) LoadLedger(ctx context.Context, tripID string) (*LedgerState, error) {
	state := &LedgerState{}

	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range indexIDs(txn, prefixHoldIndex+tripID+"/") {
			hold, err := readHold(txn, id)
			if err != nil {
				return err
			}
			if hold != nil && hold.Status == models.HoldStatusActive {
				state.Holds = append(state.Holds, hold)
			}
		}

		for _, id := range indexIDs(txn, prefixBookingIndex+tripID+"/") {
			booking, err := readBooking(txn, id)
			if err != nil {
				return err
			}
			if booking != nil && booking.HoldsSeats() {
				state.Bookings = append(state.Bookings, booking)
			}
		}

		prefix := []byte(prefixAlloc + tripID + "/")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec allocationRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if rec.Kind != "block" {
				continue
			}
			state.Blocks = append(state.Blocks, models.SeatBlock{
				TripID:    tripID,
				SeatCode:  string(item.Key()[len(prefix):]),
				Reason:    rec.Reason,
				BlockedBy: rec.CreatedBy,
				BlockedAt: rec.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	sort.Slice(state.Holds, func(i, j int) bool { return state.Holds[i].CreatedAt.Before(state.Holds[j].CreatedAt) })
	return state, nil
}

// InsertHold stores a hold and claims its seats
func (s *BadgerStore) InsertHold(ctx context.Context, hold *models.Hold) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, code := range hold.SeatCodes {
			var rec allocationRecord
			found, err := getJSON(txn, allocKey(hold.TripID, code), &rec)
			if err != nil {
				return err
			}
			if found && !(rec.Kind == "hold" && rec.ExpiresAt != nil && !hold.CreatedAt.Before(*rec.ExpiresAt)) {
				return ErrSeatTaken
			}
		}

		expires := hold.ExpiresAt
		for _, code := range hold.SeatCodes {
			rec := allocationRecord{Kind: "hold", RefID: hold.ID, ExpiresAt: &expires, CreatedBy: hold.OwnerToken, CreatedAt: hold.CreatedAt}
			if err := setJSON(txn, allocKey(hold.TripID, code), rec); err != nil {
				return err
			}
		}

		if err := txn.Set([]byte(prefixHoldIndex+hold.TripID+"/"+hold.ID.String()), nil); err != nil {
			return err
		}
		return setJSON(txn, []byte(prefixHold+hold.ID.String()), holdRecord{Hold: *hold, Owner: hold.OwnerToken})
	})
}

// CloseHolds moves active holds to a closed status and frees their seats
func (s *BadgerStore) CloseHolds(ctx context.Context, holdIDs []uuid.UUID, status models.HoldStatus, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range holdIDs {
			if err := closeHold(txn, id, status, at); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetHold returns a hold in any status
func (s *BadgerStore) GetHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	var hold *models.Hold
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		hold, err = readHold(txn, holdID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	return hold, nil
}

// ExpireStaleHolds closes every active hold past its TTL across all trips
func (s *BadgerStore) ExpireStaleHolds(ctx context.Context, now time.Time) (int64, error) {
	var expired int64
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range indexIDs(txn, prefixHoldIndex) {
			hold, err := readHold(txn, id)
			if err != nil {
				return err
			}
			if hold == nil || hold.Status != models.HoldStatusActive || !hold.IsExpiredAt(now) {
				continue
			}
			if err := closeHold(txn, id, models.HoldStatusExpired, now); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire holds: %w", err)
	}
	return expired, nil
}

// ConsumeHold converts a hold into a booking atomically. Fails with ErrSeatTaken
// when the hold no longer owns every seat of the booking.
func (s *BadgerStore) ConsumeHold(ctx context.Context, holdID uuid.UUID, booking *models.Booking) error {
	return s.db.Update(func(txn *badger.Txn) error {
		hold, err := readHold(txn, holdID)
		if err != nil {
			return err
		}
		if hold == nil || hold.Status != models.HoldStatusActive {
			return ErrNotFound
		}

		at := booking.CreatedAt
		hold.Status = models.HoldStatusConsumed
		hold.ClosedAt = &at
		if err := setJSON(txn, []byte(prefixHold+holdID.String()), holdRecord{Hold: *hold, Owner: hold.OwnerToken}); err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixHoldIndex + hold.TripID + "/" + holdID.String())); err != nil {
			return err
		}

		for _, code := range booking.SeatCodes {
			var cur allocationRecord
			found, err := getJSON(txn, allocKey(booking.TripID, code), &cur)
			if err != nil {
				return err
			}
			if !found || cur.Kind != "hold" || cur.RefID != holdID {
				return ErrSeatTaken
			}
		}

		for _, code := range booking.SeatCodes {
			rec := allocationRecord{Kind: "booking", RefID: booking.ID, CreatedBy: booking.OwnerToken, CreatedAt: at}
			if err := setJSON(txn, allocKey(booking.TripID, code), rec); err != nil {
				return err
			}
		}

		if err := txn.Set([]byte(prefixBookingIndex+booking.TripID+"/"+booking.ID.String()), nil); err != nil {
			return err
		}
		return setJSON(txn, []byte(prefixBooking+booking.ID.String()), bookingRecord{Booking: *booking, Owner: booking.OwnerToken})
	})
}

// UpdateBookingStatus records a cancellation or completion. Cancelling frees the seats.
func (s *BadgerStore) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status models.BookingStatus, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		booking, err := readBooking(txn, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrNotFound
		}

		booking.Status = status
		switch status {
		case models.BookingStatusCancelled:
			booking.CancelledAt = &at
			for _, code := range booking.SeatCodes {
				if err := deleteAllocIfRef(txn, booking.TripID, code, booking.ID); err != nil {
					return err
				}
			}
			if err := txn.Delete([]byte(prefixBookingIndex + booking.TripID + "/" + bookingID.String())); err != nil {
				return err
			}
		case models.BookingStatusCompleted:
			booking.CompletedAt = &at
		default:
			return fmt.Errorf("unsupported booking status: %s", status)
		}

		return setJSON(txn, []byte(prefixBooking+bookingID.String()), bookingRecord{Booking: *booking, Owner: booking.OwnerToken})
	})
}

// GetBooking returns a booking in any status
func (s *BadgerStore) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var booking *models.Booking
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		booking, err = readBooking(txn, bookingID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// ============================================================================
// SEAT BLOCKS
// ============================================================================

// BlockSeats allocates seats to operator blocks
func (s *BadgerStore) BlockSeats(ctx context.Context, blocks []models.SeatBlock) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, b := range blocks {
			var rec allocationRecord
			found, err := getJSON(txn, allocKey(b.TripID, b.SeatCode), &rec)
			if err != nil {
				return err
			}
			if found && !(rec.Kind == "hold" && rec.ExpiresAt != nil && !b.BlockedAt.Before(*rec.ExpiresAt)) {
				return ErrSeatTaken
			}
			rec = allocationRecord{Kind: "block", Reason: b.Reason, CreatedBy: b.BlockedBy, CreatedAt: b.BlockedAt}
			if err := setJSON(txn, allocKey(b.TripID, b.SeatCode), rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// UnblockSeats removes operator blocks
func (s *BadgerStore) UnblockSeats(ctx context.Context, tripID string, seatCodes []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, code := range seatCodes {
			var rec allocationRecord
			found, err := getJSON(txn, allocKey(tripID, code), &rec)
			if err != nil {
				return err
			}
			if found && rec.Kind == "block" {
				if err := txn.Delete(allocKey(tripID, code)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func allocKey(tripID, seatCode string) []byte {
	return []byte(prefixAlloc + tripID + "/" + seatCode)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) (bool, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func readHold(txn *badger.Txn, id uuid.UUID) (*models.Hold, error) {
	var rec holdRecord
	found, err := getJSON(txn, []byte(prefixHold+id.String()), &rec)
	if err != nil || !found {
		return nil, err
	}
	hold := rec.Hold
	hold.OwnerToken = rec.Owner
	return &hold, nil
}

func readBooking(txn *badger.Txn, id uuid.UUID) (*models.Booking, error) {
	var rec bookingRecord
	found, err := getJSON(txn, []byte(prefixBooking+id.String()), &rec)
	if err != nil || !found {
		return nil, err
	}
	booking := rec.Booking
	booking.OwnerToken = rec.Owner
	return &booking, nil
}

func closeHold(txn *badger.Txn, id uuid.UUID, status models.HoldStatus, at time.Time) error {
	hold, err := readHold(txn, id)
	if err != nil {
		return err
	}
	if hold == nil || hold.Status != models.HoldStatusActive {
		return nil
	}

	hold.Status = status
	hold.ClosedAt = &at
	for _, code := range hold.SeatCodes {
		if err := deleteAllocIfRef(txn, hold.TripID, code, hold.ID); err != nil {
			return err
		}
	}
	if err := txn.Delete([]byte(prefixHoldIndex + hold.TripID + "/" + id.String())); err != nil {
		return err
	}
	return setJSON(txn, []byte(prefixHold+id.String()), holdRecord{Hold: *hold, Owner: hold.OwnerToken})
}

// deleteAllocIfRef frees a seat only if it still belongs to ref
func deleteAllocIfRef(txn *badger.Txn, tripID, code string, ref uuid.UUID) error {
	var rec allocationRecord
	found, err := getJSON(txn, allocKey(tripID, code), &rec)
	if err != nil || !found {
		return err
	}
	if rec.RefID != ref {
		return nil
	}
	return txn.Delete(allocKey(tripID, code))
}

// indexIDs lists the uuids stored under an index prefix
func indexIDs(txn *badger.Txn, prefix string) []uuid.UUID {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []uuid.UUID
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		key := string(it.Item().Key())
		if len(key) < 36 {
			continue
		}
		if id, err := uuid.Parse(key[len(key)-36:]); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
