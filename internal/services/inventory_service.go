package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/database"
	"github.com/smarttransit/seat-inventory/internal/models"
	"golang.org/x/sync/singleflight"
)

// InventoryConfig holds configuration for the inventory service
type InventoryConfig struct {
	HoldTTL         time.Duration // How long a hold claims its seats (default 10 min)
	MaxSeatsPerHold int           // Largest selection one hold may cover
	DefaultCurrency string        // Currency recorded on bookings (default LKR)
}

// DefaultInventoryConfig returns default configuration
func DefaultInventoryConfig() InventoryConfig {
	return InventoryConfig{
		HoldTTL:         models.DefaultHoldTTL,
		MaxSeatsPerHold: 10,
		DefaultCurrency: "LKR",
	}
}

// InventoryService is the single authority for seat state transitions.
// All holds and bookings are created, converted and released through it.
type InventoryService struct {
	trips  database.TripStore
	ledger *HoldLedger
	config InventoryConfig
	logger *logrus.Logger

	mu       sync.RWMutex
	seatMaps map[string]*models.SeatMap
	loads    singleflight.Group
}

// NewInventoryService creates a new inventory service
func NewInventoryService(trips database.TripStore, ledger *HoldLedger, config InventoryConfig, logger *logrus.Logger) *InventoryService {
	if config.HoldTTL <= 0 {
		config.HoldTTL = models.DefaultHoldTTL
	}
	if config.MaxSeatsPerHold <= 0 {
		config.MaxSeatsPerHold = DefaultInventoryConfig().MaxSeatsPerHold
	}
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = DefaultInventoryConfig().DefaultCurrency
	}
	return &InventoryService{
		trips:    trips,
		ledger:   ledger,
		config:   config,
		logger:   logger,
		seatMaps: make(map[string]*models.SeatMap),
	}
}

// HoldTTL returns the configured hold TTL
func (s *InventoryService) HoldTTL() time.Duration {
	return s.config.HoldTTL
}

// ============================================================================
// TRIPS & SEAT MAPS
// ============================================================================

// PublishTrip builds and stores the seat map of a new trip
func (s *InventoryService) PublishTrip(ctx context.Context, trip models.Trip, layout []models.Seat, now time.Time) (*models.SeatMap, error) {
	trip.PublishedAt = now
	seatMap, err := models.BuildSeatMap(trip, layout)
	if err != nil {
		return nil, err
	}

	if err := s.trips.SaveTrip(ctx, seatMap.Trip(), seatMap.Seats()); err != nil {
		if errors.Is(err, database.ErrTripExists) {
			return nil, models.NewError(models.KindInvalidTransition, "trip %s is already published", trip.ID)
		}
		return nil, models.WrapError(models.KindPersistenceUnavailable, err, "failed to store trip")
	}

	s.mu.Lock()
	s.seatMaps[seatMap.TripID()] = seatMap
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"trip_id":      seatMap.TripID(),
		"seats":        seatMap.Len(),
		"departure_at": trip.DepartureAt,
	}).Info("Trip published")

	return seatMap, nil
}

// SeatMap returns the seat map of a trip, loading it from the store once
func (s *InventoryService) SeatMap(ctx context.Context, tripID string) (*models.SeatMap, error) {
	s.mu.RLock()
	m, ok := s.seatMaps[tripID]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := s.loads.Do(tripID, func() (interface{}, error) {
		trip, seats, err := s.trips.GetTrip(ctx, tripID)
		if err != nil {
			return nil, models.WrapError(models.KindPersistenceUnavailable, err, "failed to load trip")
		}
		if trip == nil {
			return nil, models.NewError(models.KindTripNotFound, "trip %s not found", tripID)
		}
		m, err := models.BuildSeatMap(*trip, seats)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.seatMaps[tripID] = m
		s.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SeatMap), nil
}

// ============================================================================
// AVAILABILITY
// ============================================================================

// QuoteAvailability reports the state of every seat of a trip at now.
// booked > blocked > held > available; expired holds count as available.
func (s *InventoryService) QuoteAvailability(ctx context.Context, tripID string, now time.Time) (*models.AvailabilityQuote, error) {
	seatMap, err := s.SeatMap(ctx, tripID)
	if err != nil {
		return nil, err
	}
	snap, err := s.ledger.Snapshot(ctx, tripID)
	if err != nil {
		return nil, err
	}

	quote := &models.AvailabilityQuote{
		TripID:  tripID,
		AsOf:    now,
		Version: snap.Version,
		Seats:   make([]models.SeatAvailability, 0, seatMap.Len()),
	}

	for _, seat := range seatMap.Seats() {
		fare, _ := seatMap.FareFor(seat.Code)
		state := snap.StateAt(seat.Code, now)
		quote.Seats = append(quote.Seats, models.SeatAvailability{
			SeatCode: seat.Code,
			Deck:     seat.Deck,
			Position: seat.Position,
			Fare:     fare,
			State:    state,
		})

		quote.Summary.Total++
		switch state {
		case models.SeatStateAvailable:
			quote.Summary.Available++
		case models.SeatStateHeld:
			quote.Summary.Held++
		case models.SeatStateBooked:
			quote.Summary.Booked++
		case models.SeatStateBlocked:
			quote.Summary.Blocked++
		}
	}

	return quote, nil
}

// ============================================================================
// HOLDS
// ============================================================================

// RequestHold claims seats for ownerToken until now + TTL. The whole selection
// is granted or none of it is.
func (s *InventoryService) RequestHold(ctx context.Context, tripID string, seatCodes []string, ownerToken string, now time.Time) (*models.Hold, error) {
	codes := normalizeSeatCodes(seatCodes)
	if len(codes) == 0 {
		return nil, models.NewError(models.KindEmptySelection, "select at least one seat")
	}
	if len(codes) > s.config.MaxSeatsPerHold {
		return nil, models.NewError(models.KindTooManySeats, "at most %d seats can be held at once", s.config.MaxSeatsPerHold)
	}

	seatMap, err := s.SeatMap(ctx, tripID)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for _, code := range codes {
		if !seatMap.Has(code) {
			unknown = append(unknown, code)
		}
	}
	if len(unknown) > 0 {
		return nil, models.NewSeatError(models.KindUnknownSeat, unknown, "seats %v are not part of trip %s", unknown, tripID)
	}

	amount, err := seatMap.TotalFare(codes)
	if err != nil {
		return nil, err
	}

	hold := &models.Hold{
		ID:         uuid.New(),
		TripID:     tripID,
		SeatCodes:  codes,
		OwnerToken: ownerToken,
		Amount:     amount,
		Status:     models.HoldStatusActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.config.HoldTTL),
	}

	if err := s.ledger.Insert(ctx, hold); err != nil {
		s.logger.WithFields(logrus.Fields{
			"trip_id": tripID,
			"seats":   codes,
			"owner":   ownerToken,
		}).WithError(err).Info("Hold rejected")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"hold_id":    hold.ID,
		"trip_id":    tripID,
		"seats":      codes,
		"amount":     amount,
		"expires_at": hold.ExpiresAt,
	}).Info("Seats held")

	return hold, nil
}

// GetHold returns a live hold owned by ownerToken
func (s *InventoryService) GetHold(ctx context.Context, holdID uuid.UUID, ownerToken string, now time.Time) (*models.Hold, error) {
	hold, err := s.ledger.Lookup(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.OwnerToken != ownerToken {
		return nil, models.NewError(models.KindOwnerMismatch, "hold %s belongs to another session", holdID)
	}
	if hold.Status == models.HoldStatusActive && hold.IsExpiredAt(now) || hold.Status == models.HoldStatusExpired {
		return nil, models.NewError(models.KindHoldExpired, "hold %s has expired", holdID)
	}
	if hold.Status != models.HoldStatusActive {
		return nil, models.NewError(models.KindHoldNotFound, "hold %s is no longer active", holdID)
	}
	return hold, nil
}

// ReleaseHold abandons a hold and returns its seats immediately.
// Releasing an already closed hold succeeds.
func (s *InventoryService) ReleaseHold(ctx context.Context, holdID uuid.UUID, ownerToken string, now time.Time) error {
	hold, err := s.ledger.Lookup(ctx, holdID)
	if err != nil {
		if errors.Is(err, models.ErrHoldNotFound) {
			return nil
		}
		return err
	}
	if hold.OwnerToken != ownerToken {
		return models.NewError(models.KindOwnerMismatch, "hold %s belongs to another session", holdID)
	}

	released, err := s.ledger.Release(ctx, holdID, now)
	if err != nil {
		return err
	}
	if released != nil {
		s.logger.WithFields(logrus.Fields{
			"hold_id": holdID,
			"trip_id": released.TripID,
			"seats":   []string(released.SeatCodes),
			"status":  released.Status,
		}).Info("Hold released")
	}
	return nil
}

// ============================================================================
// BOOKINGS
// ============================================================================

// ConfirmBooking converts a live hold into a booking. Passengers are assigned
// the hold's seats in order.
func (s *InventoryService) ConfirmBooking(ctx context.Context, holdID uuid.UUID, ownerToken string, details models.BookingDetails, now time.Time) (*models.Booking, error) {
	booking, err := s.ledger.Consume(ctx, holdID, now, func(hold *models.Hold) (*models.Booking, error) {
		if hold.OwnerToken != ownerToken {
			return nil, models.NewError(models.KindOwnerMismatch, "hold %s belongs to another session", holdID)
		}
		if len(details.Passengers) != len(hold.SeatCodes) {
			return nil, models.NewError(models.KindInvalidPassengerCount,
				"%d passengers submitted for %d seats", len(details.Passengers), len(hold.SeatCodes))
		}

		passengers := make(models.PassengerList, len(details.Passengers))
		for i, p := range details.Passengers {
			p.SeatCode = hold.SeatCodes[i]
			passengers[i] = p
		}

		currency := details.Currency
		if currency == "" {
			currency = s.config.DefaultCurrency
		}
		var paymentRef *string
		if details.PaymentRef != "" {
			ref := details.PaymentRef
			paymentRef = &ref
		}

		id := uuid.New()
		return &models.Booking{
			ID:         id,
			Reference:  models.NewBookingReference(id, now),
			TripID:     hold.TripID,
			HoldID:     hold.ID,
			OwnerToken: hold.OwnerToken,
			SeatCodes:  hold.SeatCodes,
			Passengers: passengers,
			Contact:    details.Contact,
			Amount:     hold.Amount,
			Currency:   currency,
			PaymentRef: paymentRef,
			Status:     models.BookingStatusConfirmed,
			CreatedAt:  now,
		}, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrHoldNotFound) {
			return nil, s.explainMissingHold(ctx, holdID, err)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"booking_ref": booking.Reference,
		"hold_id":     holdID,
		"trip_id":     booking.TripID,
		"seats":       []string(booking.SeatCodes),
		"amount":      booking.Amount,
	}).Info("Booking confirmed")

	return booking, nil
}

// explainMissingHold turns a HoldNotFound for a hold that timed out into HoldExpired
func (s *InventoryService) explainMissingHold(ctx context.Context, holdID uuid.UUID, notFound error) error {
	hold, err := s.ledger.Lookup(ctx, holdID)
	if err == nil && hold.Status == models.HoldStatusExpired {
		return models.NewError(models.KindHoldExpired, "hold %s has expired", holdID)
	}
	return notFound
}

// GetBooking returns a booking in any status
func (s *InventoryService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.ledger.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, models.WrapError(models.KindPersistenceUnavailable, err, "failed to look up booking")
	}
	if booking == nil {
		return nil, models.NewError(models.KindBookingNotFound, "booking %s not found", bookingID)
	}
	return booking, nil
}

// CancelBooking cancels a confirmed booking and returns its seats to available.
// A second cancellation fails with AlreadyCancelled.
func (s *InventoryService) CancelBooking(ctx context.Context, bookingID uuid.UUID, now time.Time) (*models.Booking, error) {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	cancelled, err := s.ledger.SetBookingStatus(ctx, booking.TripID, bookingID, models.BookingStatusCancelled, now)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  bookingID,
		"booking_ref": cancelled.Reference,
		"trip_id":     cancelled.TripID,
		"seats":       []string(cancelled.SeatCodes),
	}).Info("Booking cancelled")

	return cancelled, nil
}

// CompleteBooking marks a confirmed booking as travelled
func (s *InventoryService) CompleteBooking(ctx context.Context, bookingID uuid.UUID, now time.Time) (*models.Booking, error) {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	completed, err := s.ledger.SetBookingStatus(ctx, booking.TripID, bookingID, models.BookingStatusCompleted, now)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"trip_id":    completed.TripID,
	}).Info("Booking completed")

	return completed, nil
}

// ============================================================================
// OPERATOR BLOCKS
// ============================================================================

// BlockSeats takes available seats out of sale
func (s *InventoryService) BlockSeats(ctx context.Context, tripID string, seatCodes []string, reason, blockedBy string, now time.Time) error {
	codes, err := s.validateSelection(ctx, tripID, seatCodes)
	if err != nil {
		return err
	}
	if err := s.ledger.Block(ctx, tripID, codes, reason, blockedBy, now); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":    tripID,
		"seats":      codes,
		"reason":     reason,
		"blocked_by": blockedBy,
	}).Info("Seats blocked")
	return nil
}

// UnblockSeats puts blocked seats back on sale
func (s *InventoryService) UnblockSeats(ctx context.Context, tripID string, seatCodes []string) error {
	codes, err := s.validateSelection(ctx, tripID, seatCodes)
	if err != nil {
		return err
	}
	if err := s.ledger.Unblock(ctx, tripID, codes); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id": tripID,
		"seats":   codes,
	}).Info("Seats unblocked")
	return nil
}

func (s *InventoryService) validateSelection(ctx context.Context, tripID string, seatCodes []string) ([]string, error) {
	codes := normalizeSeatCodes(seatCodes)
	if len(codes) == 0 {
		return nil, models.NewError(models.KindEmptySelection, "select at least one seat")
	}
	seatMap, err := s.SeatMap(ctx, tripID)
	if err != nil {
		return nil, err
	}
	var unknown []string
	for _, code := range codes {
		if !seatMap.Has(code) {
			unknown = append(unknown, code)
		}
	}
	if len(unknown) > 0 {
		return nil, models.NewSeatError(models.KindUnknownSeat, unknown, "seats %v are not part of trip %s", unknown, tripID)
	}
	return codes, nil
}

// ============================================================================
// HOUSEKEEPING
// ============================================================================

// SweepExpired eagerly reclaims expired holds of loaded trips
func (s *InventoryService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return s.ledger.SweepExpired(ctx, now)
}

// EvictDeparted drops in-memory state of trips that departed before cutoff
func (s *InventoryService) EvictDeparted(ctx context.Context, cutoff time.Time) int {
	var evicted int
	for _, tripID := range s.ledger.LoadedTrips() {
		seatMap, err := s.SeatMap(ctx, tripID)
		if err != nil {
			continue
		}
		if seatMap.Trip().DepartureAt.Before(cutoff) {
			s.ledger.Evict(tripID)
			s.mu.Lock()
			delete(s.seatMaps, tripID)
			s.mu.Unlock()
			evicted++
		}
	}
	return evicted
}

// normalizeSeatCodes trims codes and drops blanks and duplicates, keeping order
func normalizeSeatCodes(seatCodes []string) []string {
	seen := make(map[string]struct{}, len(seatCodes))
	codes := make([]string, 0, len(seatCodes))
	for _, c := range seatCodes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	return codes
}
