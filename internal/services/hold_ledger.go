package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/database"
	"github.com/smarttransit/seat-inventory/internal/models"
	"golang.org/x/sync/singleflight"
)

type allocationKind uint8

const (
	allocHold allocationKind = iota + 1
	allocBooking
	allocBlock
)

// allocation is the claim currently recorded on one seat
type allocation struct {
	kind      allocationKind
	ref       uuid.UUID // hold or booking id; uuid.Nil for blocks
	expiresAt time.Time // holds only
}

func (a allocation) liveAt(now time.Time) bool {
	if a.kind == allocHold {
		return now.Before(a.expiresAt)
	}
	return true
}

func (a allocation) stateAt(now time.Time) models.SeatState {
	if !a.liveAt(now) {
		return models.SeatStateAvailable
	}
	switch a.kind {
	case allocBooking:
		return models.SeatStateBooked
	case allocBlock:
		return models.SeatStateBlocked
	default:
		return models.SeatStateHeld
	}
}

// LedgerSnapshot is an immutable view of one trip's allocations.
// Hold expiry is evaluated against the caller's clock when read.
type LedgerSnapshot struct {
	TripID  string
	Version uint64
	seats   map[string]allocation
}

// StateAt returns the state of a seat at now
func (s *LedgerSnapshot) StateAt(code string, now time.Time) models.SeatState {
	a, ok := s.seats[code]
	if !ok {
		return models.SeatStateAvailable
	}
	return a.stateAt(now)
}

// ActiveHolds maps every seat under a live hold to its hold id
func (s *LedgerSnapshot) ActiveHolds(now time.Time) map[string]uuid.UUID {
	out := make(map[string]uuid.UUID)
	for code, a := range s.seats {
		if a.kind == allocHold && a.liveAt(now) {
			out[code] = a.ref
		}
	}
	return out
}

// tripLedger is the mutable state of one trip, guarded by mu
type tripLedger struct {
	mu       sync.Mutex
	tripID   string
	holds    map[uuid.UUID]*models.Hold    // active holds, possibly past TTL
	bookings map[uuid.UUID]*models.Booking // bookings that occupy seats
	seats    map[string]allocation
	lastNow  time.Time // latest clock reading seen by a writer
	version  uint64
	evicted  bool
	snap     atomic.Pointer[LedgerSnapshot]
}

func newTripLedger(tripID string, state *database.LedgerState) *tripLedger {
	t := &tripLedger{
		tripID:   tripID,
		holds:    make(map[uuid.UUID]*models.Hold),
		bookings: make(map[uuid.UUID]*models.Booking),
		seats:    make(map[string]allocation),
	}
	if state != nil {
		for _, b := range state.Blocks {
			t.seats[b.SeatCode] = allocation{kind: allocBlock}
		}
		for _, b := range state.Bookings {
			t.bookings[b.ID] = b
			for _, code := range b.SeatCodes {
				t.seats[code] = allocation{kind: allocBooking, ref: b.ID}
			}
		}
		// oldest first, so a newer hold that reclaimed an expired one wins
		holds := append([]*models.Hold(nil), state.Holds...)
		sort.Slice(holds, func(i, j int) bool { return holds[i].CreatedAt.Before(holds[j].CreatedAt) })
		for _, h := range holds {
			t.holds[h.ID] = h
			for _, code := range h.SeatCodes {
				if cur, ok := t.seats[code]; ok && cur.kind != allocHold {
					continue
				}
				t.seats[code] = allocation{kind: allocHold, ref: h.ID, expiresAt: h.ExpiresAt}
			}
		}
	}
	t.publish()
	return t
}

// publish installs a fresh snapshot. Caller holds mu (or owns t exclusively).
func (t *tripLedger) publish() {
	t.version++
	seats := make(map[string]allocation, len(t.seats))
	for code, a := range t.seats {
		seats[code] = a
	}
	t.snap.Store(&LedgerSnapshot{TripID: t.tripID, Version: t.version, seats: seats})
}

// observe returns the time a writer evaluates expiry at: the later of now and
// every earlier writer's clock. A writer whose clock lags behind one that
// already treated a hold as expired sees it expired too. Caller holds mu.
func (t *tripLedger) observe(now time.Time) time.Time {
	if now.Before(t.lastNow) {
		return t.lastNow
	}
	t.lastNow = now
	return now
}

// ownsSeats reports whether every seat of h is still allocated to h
func (t *tripLedger) ownsSeats(h *models.Hold) bool {
	for _, code := range h.SeatCodes {
		a, ok := t.seats[code]
		if !ok || a.kind != allocHold || a.ref != h.ID {
			return false
		}
	}
	return true
}

// free drops the allocation on code if it still belongs to ref
func (t *tripLedger) free(code string, ref uuid.UUID) {
	if a, ok := t.seats[code]; ok && a.ref == ref {
		delete(t.seats, code)
	}
}

// HoldLedger tracks live holds, seat-holding bookings and blocks per trip.
//
// Every mutation of a trip runs under that trip's mutex: the check, the
// write-through to the store and the in-memory apply happen as one unit.
// The in-memory state only changes after the store accepted the write.
// Reads go through an atomically published snapshot and never block writers.
type HoldLedger struct {
	store  database.LedgerStore
	logger *logrus.Logger

	mu        sync.Mutex
	trips     map[string]*tripLedger
	holdTrips map[uuid.UUID]string

	loads singleflight.Group
}

// NewHoldLedger creates a new HoldLedger
func NewHoldLedger(store database.LedgerStore, logger *logrus.Logger) *HoldLedger {
	return &HoldLedger{
		store:     store,
		logger:    logger,
		trips:     make(map[string]*tripLedger),
		holdTrips: make(map[uuid.UUID]string),
	}
}

// ============================================================================
// LOADING
// ============================================================================

// ensure returns the trip ledger, loading it from the store on first touch.
// Concurrent first touches share one load.
func (l *HoldLedger) ensure(ctx context.Context, tripID string) (*tripLedger, error) {
	l.mu.Lock()
	t, ok := l.trips[tripID]
	l.mu.Unlock()
	if ok {
		return t, nil
	}

	v, err, _ := l.loads.Do(tripID, func() (interface{}, error) {
		l.mu.Lock()
		if t, ok := l.trips[tripID]; ok {
			l.mu.Unlock()
			return t, nil
		}
		l.mu.Unlock()

		state, err := l.store.LoadLedger(ctx, tripID)
		if err != nil {
			return nil, models.WrapError(models.KindPersistenceUnavailable, err, "failed to load seat ledger")
		}
		t := newTripLedger(tripID, state)

		l.mu.Lock()
		defer l.mu.Unlock()
		if existing, ok := l.trips[tripID]; ok {
			return existing, nil
		}
		l.trips[tripID] = t
		for id := range t.holds {
			l.holdTrips[id] = tripID
		}

		l.logger.WithFields(logrus.Fields{
			"trip_id":  tripID,
			"holds":    len(t.holds),
			"bookings": len(t.bookings),
		}).Debug("Loaded seat ledger")
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tripLedger), nil
}

// lockTrip returns the trip ledger with its mutex held
func (l *HoldLedger) lockTrip(ctx context.Context, tripID string) (*tripLedger, error) {
	for {
		t, err := l.ensure(ctx, tripID)
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		if !t.evicted {
			return t, nil
		}
		t.mu.Unlock()
	}
}

// tripOfHold resolves which trip a hold belongs to, consulting the store
// for holds of trips that are not loaded.
func (l *HoldLedger) tripOfHold(ctx context.Context, holdID uuid.UUID) (string, error) {
	l.mu.Lock()
	tripID, ok := l.holdTrips[holdID]
	l.mu.Unlock()
	if ok {
		return tripID, nil
	}

	hold, err := l.store.GetHold(ctx, holdID)
	if err != nil {
		return "", models.WrapError(models.KindPersistenceUnavailable, err, "failed to look up hold")
	}
	if hold == nil || hold.Status != models.HoldStatusActive {
		return "", nil
	}
	return hold.TripID, nil
}

// ============================================================================
// READS
// ============================================================================

// Snapshot returns the latest published view of a trip
func (l *HoldLedger) Snapshot(ctx context.Context, tripID string) (*LedgerSnapshot, error) {
	t, err := l.ensure(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return t.snap.Load(), nil
}

// ActiveHoldsFor maps each seat under a live hold to its hold id, evaluated at now
func (l *HoldLedger) ActiveHoldsFor(ctx context.Context, tripID string, now time.Time) (map[string]uuid.UUID, error) {
	snap, err := l.Snapshot(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return snap.ActiveHolds(now), nil
}

// Get returns a live hold. Fails with HoldNotFound if absent, closed or expired.
func (l *HoldLedger) Get(ctx context.Context, holdID uuid.UUID, now time.Time) (*models.Hold, error) {
	hold, err := l.Lookup(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if !hold.IsLiveAt(now) {
		return nil, models.NewError(models.KindHoldNotFound, "hold %s not found", holdID)
	}
	return hold, nil
}

// Lookup returns a hold in whatever state it is in, from memory or the store.
// Fails with HoldNotFound if the hold never existed.
func (l *HoldLedger) Lookup(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	l.mu.Lock()
	tripID, ok := l.holdTrips[holdID]
	var t *tripLedger
	if ok {
		t = l.trips[tripID]
	}
	l.mu.Unlock()

	if t != nil {
		t.mu.Lock()
		h, ok := t.holds[holdID]
		var c *models.Hold
		if ok {
			c = h.Clone()
		}
		t.mu.Unlock()
		if c != nil {
			return c, nil
		}
	}

	hold, err := l.store.GetHold(ctx, holdID)
	if err != nil {
		return nil, models.WrapError(models.KindPersistenceUnavailable, err, "failed to look up hold")
	}
	if hold == nil {
		return nil, models.NewError(models.KindHoldNotFound, "hold %s not found", holdID)
	}
	return hold, nil
}

// ============================================================================
// WRITES
// ============================================================================

// Insert records a new hold. Fails with SeatConflict if any seat is under a live
// hold, a booking or a block at hold.CreatedAt.
func (l *HoldLedger) Insert(ctx context.Context, hold *models.Hold) error {
	t, err := l.lockTrip(ctx, hold.TripID)
	if err != nil {
		return err
	}
	defer t.mu.Unlock()

	at := t.observe(hold.CreatedAt)
	var taken []string
	for _, code := range hold.SeatCodes {
		if a, ok := t.seats[code]; ok && a.liveAt(at) {
			taken = append(taken, code)
		}
	}
	if len(taken) > 0 {
		return models.NewSeatError(models.KindSeatConflict, taken, "seats no longer available: %v", taken)
	}

	if err := l.store.InsertHold(ctx, hold); err != nil {
		if errors.Is(err, database.ErrSeatTaken) {
			return models.NewSeatError(models.KindSeatConflict, []string(hold.SeatCodes), "seats no longer available")
		}
		return models.WrapError(models.KindPersistenceUnavailable, err, "failed to store hold")
	}

	h := hold.Clone()
	t.holds[h.ID] = h
	for _, code := range h.SeatCodes {
		t.seats[code] = allocation{kind: allocHold, ref: h.ID, expiresAt: h.ExpiresAt}
	}
	t.publish()

	l.mu.Lock()
	l.holdTrips[h.ID] = h.TripID
	l.mu.Unlock()
	return nil
}

// Release closes a hold and frees its seats. Idempotent: releasing an unknown,
// closed or consumed hold succeeds with a nil hold. An expired hold is closed
// as expired rather than released.
func (l *HoldLedger) Release(ctx context.Context, holdID uuid.UUID, now time.Time) (*models.Hold, error) {
	tripID, err := l.tripOfHold(ctx, holdID)
	if err != nil || tripID == "" {
		return nil, err
	}

	t, err := l.lockTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	h, ok := t.holds[holdID]
	if !ok {
		return nil, nil
	}

	at := t.observe(now)
	status := models.HoldStatusReleased
	if h.IsExpiredAt(at) || !t.ownsSeats(h) {
		status = models.HoldStatusExpired
	}
	if err := l.store.CloseHolds(ctx, []uuid.UUID{holdID}, status, now); err != nil {
		return nil, models.WrapError(models.KindPersistenceUnavailable, err, "failed to release hold")
	}

	l.dropHold(t, h)
	t.publish()

	closed := h.Clone()
	closed.Status = status
	closed.ClosedAt = &now
	return closed, nil
}

// Consume converts a live hold into a booking. A hold that is past its TTL on
// the trip's clock, or no longer owns all its seats, fails with HoldExpired.
// build runs under the trip lock
// with a copy of the hold and returns the booking to store, or an error that
// aborts the conversion unchanged.
func (l *HoldLedger) Consume(ctx context.Context, holdID uuid.UUID, now time.Time, build func(hold *models.Hold) (*models.Booking, error)) (*models.Booking, error) {
	tripID, err := l.tripOfHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if tripID == "" {
		return nil, models.NewError(models.KindHoldNotFound, "hold %s not found", holdID)
	}

	t, err := l.lockTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	h, ok := t.holds[holdID]
	if !ok {
		return nil, models.NewError(models.KindHoldNotFound, "hold %s not found", holdID)
	}
	// a lapsed hold may already have lost seats to a newer one
	if h.IsExpiredAt(t.observe(now)) || !t.ownsSeats(h) {
		return nil, models.NewError(models.KindHoldExpired, "hold %s expired at %s", holdID, h.ExpiresAt.Format(time.RFC3339))
	}

	booking, err := build(h.Clone())
	if err != nil {
		return nil, err
	}

	if err := l.store.ConsumeHold(ctx, holdID, booking); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, models.NewError(models.KindHoldNotFound, "hold %s not found", holdID)
		}
		if errors.Is(err, database.ErrSeatTaken) {
			return nil, models.NewError(models.KindHoldExpired, "hold %s lost its seats", holdID)
		}
		return nil, models.WrapError(models.KindPersistenceUnavailable, err, "failed to store booking")
	}

	l.dropHold(t, h)
	b := booking.Clone()
	t.bookings[b.ID] = b
	for _, code := range b.SeatCodes {
		t.seats[code] = allocation{kind: allocBooking, ref: b.ID}
	}
	t.publish()

	return booking, nil
}

// SetBookingStatus moves a booking to cancelled or completed. Cancelling frees
// its seats.
func (l *HoldLedger) SetBookingStatus(ctx context.Context, tripID string, bookingID uuid.UUID, status models.BookingStatus, now time.Time) (*models.Booking, error) {
	t, err := l.lockTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	b, ok := t.bookings[bookingID]
	if !ok {
		// not occupying seats any more: report the stored state
		stored, err := l.store.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, models.WrapError(models.KindPersistenceUnavailable, err, "failed to look up booking")
		}
		if stored == nil {
			return nil, models.NewError(models.KindBookingNotFound, "booking %s not found", bookingID)
		}
		b = stored
	}

	switch status {
	case models.BookingStatusCancelled:
		err = b.CanCancel()
	case models.BookingStatusCompleted:
		err = b.CanComplete()
	default:
		err = models.NewError(models.KindInvalidTransition, "unsupported booking status %s", status)
	}
	if err != nil {
		return nil, err
	}

	if err := l.store.UpdateBookingStatus(ctx, bookingID, status, now); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, models.NewError(models.KindBookingNotFound, "booking %s not found", bookingID)
		}
		return nil, models.WrapError(models.KindPersistenceUnavailable, err, "failed to update booking")
	}

	updated := b.Clone()
	updated.Status = status
	at := now
	switch status {
	case models.BookingStatusCancelled:
		updated.CancelledAt = &at
		delete(t.bookings, bookingID)
		for _, code := range b.SeatCodes {
			t.free(code, bookingID)
		}
	case models.BookingStatusCompleted:
		updated.CompletedAt = &at
		t.bookings[bookingID] = updated.Clone()
	}
	t.publish()

	return updated, nil
}

// Block marks available seats as blocked
func (l *HoldLedger) Block(ctx context.Context, tripID string, codes []string, reason, blockedBy string, now time.Time) error {
	t, err := l.lockTrip(ctx, tripID)
	if err != nil {
		return err
	}
	defer t.mu.Unlock()

	at := t.observe(now)
	var taken, already []string
	for _, code := range codes {
		a, ok := t.seats[code]
		if !ok || !a.liveAt(at) {
			continue
		}
		if a.kind == allocBlock {
			already = append(already, code)
		} else {
			taken = append(taken, code)
		}
	}
	if len(already) > 0 {
		return models.NewSeatError(models.KindInvalidTransition, already, "seats already blocked: %v", already)
	}
	if len(taken) > 0 {
		return models.NewSeatError(models.KindSeatConflict, taken, "seats are held or booked: %v", taken)
	}

	blocks := make([]models.SeatBlock, len(codes))
	for i, code := range codes {
		blocks[i] = models.SeatBlock{TripID: tripID, SeatCode: code, Reason: reason, BlockedBy: blockedBy, BlockedAt: now}
	}
	if err := l.store.BlockSeats(ctx, blocks); err != nil {
		if errors.Is(err, database.ErrSeatTaken) {
			return models.NewSeatError(models.KindSeatConflict, codes, "seats are held or booked")
		}
		return models.WrapError(models.KindPersistenceUnavailable, err, "failed to block seats")
	}

	for _, code := range codes {
		t.seats[code] = allocation{kind: allocBlock}
	}
	t.publish()
	return nil
}

// Unblock returns blocked seats to available
func (l *HoldLedger) Unblock(ctx context.Context, tripID string, codes []string) error {
	t, err := l.lockTrip(ctx, tripID)
	if err != nil {
		return err
	}
	defer t.mu.Unlock()

	var notBlocked []string
	for _, code := range codes {
		if a, ok := t.seats[code]; !ok || a.kind != allocBlock {
			notBlocked = append(notBlocked, code)
		}
	}
	if len(notBlocked) > 0 {
		return models.NewSeatError(models.KindInvalidTransition, notBlocked, "seats are not blocked: %v", notBlocked)
	}

	if err := l.store.UnblockSeats(ctx, tripID, codes); err != nil {
		return models.WrapError(models.KindPersistenceUnavailable, err, "failed to unblock seats")
	}

	for _, code := range codes {
		delete(t.seats, code)
	}
	t.publish()
	return nil
}

// ============================================================================
// HOUSEKEEPING
// ============================================================================

// SweepExpired closes every expired hold of every loaded trip. Each trip is
// swept under its own lock. Returns the number of holds closed.
func (l *HoldLedger) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var swept int
	var firstErr error

	for _, tripID := range l.LoadedTrips() {
		n, err := l.sweepTrip(ctx, tripID, now)
		if err != nil {
			l.logger.WithError(err).WithField("trip_id", tripID).Error("Failed to sweep expired holds")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		swept += n
	}
	return swept, firstErr
}

func (l *HoldLedger) sweepTrip(ctx context.Context, tripID string, now time.Time) (int, error) {
	t, err := l.lockTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}
	defer t.mu.Unlock()

	at := t.observe(now)
	var expired []*models.Hold
	var ids []uuid.UUID
	for id, h := range t.holds {
		if h.IsExpiredAt(at) || !t.ownsSeats(h) {
			expired = append(expired, h)
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := l.store.CloseHolds(ctx, ids, models.HoldStatusExpired, now); err != nil {
		return 0, models.WrapError(models.KindPersistenceUnavailable, err, "failed to expire holds")
	}

	for _, h := range expired {
		l.dropHold(t, h)
	}
	t.publish()
	return len(ids), nil
}

// LoadedTrips lists the trips with an in-memory ledger
func (l *HoldLedger) LoadedTrips() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.trips))
	for id := range l.trips {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Evict drops a trip's in-memory ledger; it is reloaded from the store on next touch
func (l *HoldLedger) Evict(tripID string) {
	l.mu.Lock()
	t, ok := l.trips[tripID]
	l.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	l.mu.Lock()
	delete(l.trips, tripID)
	for id := range t.holds {
		delete(l.holdTrips, id)
	}
	l.mu.Unlock()
	t.evicted = true
}

// dropHold removes a hold and frees the seats it still owns. Caller holds t.mu.
func (l *HoldLedger) dropHold(t *tripLedger, h *models.Hold) {
	delete(t.holds, h.ID)
	for _, code := range h.SeatCodes {
		t.free(code, h.ID)
	}
	l.mu.Lock()
	delete(l.holdTrips, h.ID)
	l.mu.Unlock()
}
