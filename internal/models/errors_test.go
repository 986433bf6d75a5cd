package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestInventoryError_Is(t *testing.T) {
	err := NewSeatError(KindSeatConflict, []string{"L2"}, "seat L2 is taken")
	wrapped := fmt.Errorf("request hold: %w", err)

	assert.True(t, errors.Is(wrapped, ErrSeatConflict))
	assert.False(t, errors.Is(wrapped, ErrHoldNotFound))
	assert.Equal(t, KindSeatConflict, KindOf(wrapped))
	assert.Equal(t, []string{"L2"}, SeatsOf(wrapped))
	assert.Equal(t, "seat L2 is taken", err.Error())
}

func TestInventoryError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(KindPersistenceUnavailable, cause, "failed to store hold")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrPersistenceUnavailable))
	assert.Equal(t, "failed to store hold: connection refused", err.Error())
}

func TestErrorKind_Category(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected ErrorCategory
	}{
		{KindEmptySelection, CategoryValidation},
		{KindUnknownSeat, CategoryValidation},
		{KindSeatConflict, CategoryConflict},
		{KindOwnerMismatch, CategoryConflict},
		{KindBookingNotFound, CategoryNotFound},
		{KindHoldExpired, CategoryExpired},
		{KindAlreadyCancelled, CategoryState},
		{KindPaymentDeclined, CategoryExternal},
		{KindPersistenceUnavailable, CategoryExternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.Category())
		})
	}
}

func TestIsReselect(t *testing.T) {
	assert.True(t, IsReselect(ErrSeatConflict))
	assert.True(t, IsReselect(NewError(KindHoldExpired, "expired")))
	assert.True(t, IsReselect(fmt.Errorf("x: %w", ErrHoldNotFound)))
	assert.False(t, IsReselect(ErrPaymentDeclined))
	assert.False(t, IsReselect(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("boom")))
}

func TestHold_Liveness(t *testing.T) {
	t0 := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	h := &Hold{Status: HoldStatusActive, CreatedAt: t0, ExpiresAt: t0.Add(DefaultHoldTTL)}

	assert.True(t, h.IsLiveAt(t0))
	assert.True(t, h.IsLiveAt(t0.Add(DefaultHoldTTL-time.Nanosecond)))
	assert.False(t, h.IsLiveAt(t0.Add(DefaultHoldTTL)))
	assert.True(t, h.IsExpiredAt(t0.Add(DefaultHoldTTL)))

	h.Status = HoldStatusReleased
	assert.False(t, h.IsLiveAt(t0))
}

func TestBooking_Transitions(t *testing.T) {
	b := &Booking{Reference: "BK-1", Status: BookingStatusConfirmed}
	assert.NoError(t, b.CanCancel())
	assert.NoError(t, b.CanComplete())
	assert.True(t, b.HoldsSeats())

	b.Status = BookingStatusCancelled
	assert.True(t, errors.Is(b.CanCancel(), ErrAlreadyCancelled))
	assert.True(t, errors.Is(b.CanComplete(), ErrInvalidTransition))
	assert.False(t, b.HoldsSeats())

	b.Status = BookingStatusCompleted
	assert.True(t, errors.Is(b.CanCancel(), ErrInvalidTransition))
	assert.True(t, b.HoldsSeats())
}

func TestNewBookingReference(t *testing.T) {
	id := uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000000")
	ref := NewBookingReference(id, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "BK-261016-3F2A9C1E", ref)
}
