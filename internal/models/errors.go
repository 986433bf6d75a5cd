package models

import (
	"errors"
	"fmt"
)

// ErrorKind identifies an inventory failure independent of its message
type ErrorKind string

const (
	// Validation
	KindInvalidLayout           ErrorKind = "invalid_layout"
	KindUnknownSeat             ErrorKind = "unknown_seat"
	KindEmptySelection          ErrorKind = "empty_selection"
	KindTooManySeats            ErrorKind = "too_many_seats"
	KindInvalidPassengerCount   ErrorKind = "invalid_passenger_count"
	KindInvalidPassengerDetails ErrorKind = "invalid_passenger_details"

	// Conflict
	KindSeatConflict  ErrorKind = "seat_conflict"
	KindOwnerMismatch ErrorKind = "owner_mismatch"

	// Not found / expiry
	KindTripNotFound    ErrorKind = "trip_not_found"
	KindHoldNotFound    ErrorKind = "hold_not_found"
	KindHoldExpired     ErrorKind = "hold_expired"
	KindBookingNotFound ErrorKind = "booking_not_found"

	// State
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindAlreadyCancelled  ErrorKind = "already_cancelled"

	// External collaborators
	KindPaymentDeclined        ErrorKind = "payment_declined"
	KindPaymentUnavailable     ErrorKind = "payment_unavailable"
	KindPersistenceUnavailable ErrorKind = "persistence_unavailable"
)

// ErrorCategory groups kinds by how a caller should recover
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryExpired    ErrorCategory = "expired"
	CategoryState      ErrorCategory = "state"
	CategoryExternal   ErrorCategory = "external"
)

// Category returns the recovery group of the kind
func (k ErrorKind) Category() ErrorCategory {
	switch k {
	case KindInvalidLayout, KindUnknownSeat, KindEmptySelection, KindTooManySeats,
		KindInvalidPassengerCount, KindInvalidPassengerDetails:
		return CategoryValidation
	case KindSeatConflict, KindOwnerMismatch:
		return CategoryConflict
	case KindTripNotFound, KindHoldNotFound, KindBookingNotFound:
		return CategoryNotFound
	case KindHoldExpired:
		return CategoryExpired
	case KindInvalidTransition, KindAlreadyCancelled:
		return CategoryState
	default:
		return CategoryExternal
	}
}

// InventoryError is the error type returned by the seat inventory core
type InventoryError struct {
	Kind    ErrorKind
	Message string
	Seats   []string // seats involved, e.g. the contested ones on a conflict
	Err     error
}

func (e *InventoryError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *InventoryError) Unwrap() error {
	return e.Err
}

// Is matches any InventoryError of the same kind, so sentinels work with errors.Is
func (e *InventoryError) Is(target error) bool {
	t, ok := target.(*InventoryError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrInvalidLayout           = &InventoryError{Kind: KindInvalidLayout}
	ErrUnknownSeat             = &InventoryError{Kind: KindUnknownSeat}
	ErrEmptySelection          = &InventoryError{Kind: KindEmptySelection}
	ErrTooManySeats            = &InventoryError{Kind: KindTooManySeats}
	ErrInvalidPassengerCount   = &InventoryError{Kind: KindInvalidPassengerCount}
	ErrInvalidPassengerDetails = &InventoryError{Kind: KindInvalidPassengerDetails}
	ErrSeatConflict            = &InventoryError{Kind: KindSeatConflict}
	ErrOwnerMismatch           = &InventoryError{Kind: KindOwnerMismatch}
	ErrTripNotFound            = &InventoryError{Kind: KindTripNotFound}
	ErrHoldNotFound            = &InventoryError{Kind: KindHoldNotFound}
	ErrHoldExpired             = &InventoryError{Kind: KindHoldExpired}
	ErrBookingNotFound         = &InventoryError{Kind: KindBookingNotFound}
	ErrInvalidTransition       = &InventoryError{Kind: KindInvalidTransition}
	ErrAlreadyCancelled        = &InventoryError{Kind: KindAlreadyCancelled}
	ErrPaymentDeclined         = &InventoryError{Kind: KindPaymentDeclined}
	ErrPaymentUnavailable      = &InventoryError{Kind: KindPaymentUnavailable}
	ErrPersistenceUnavailable  = &InventoryError{Kind: KindPersistenceUnavailable}
)

// NewError builds an InventoryError with a formatted message
func NewError(kind ErrorKind, format string, args ...interface{}) *InventoryError {
	return &InventoryError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewSeatError builds an InventoryError that names the seats involved
func NewSeatError(kind ErrorKind, seats []string, format string, args ...interface{}) *InventoryError {
	return &InventoryError{Kind: kind, Message: fmt.Sprintf(format, args...), Seats: seats}
}

// WrapError attaches a kind to an underlying error
func WrapError(kind ErrorKind, err error, message string) *InventoryError {
	return &InventoryError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first InventoryError in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var ie *InventoryError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// SeatsOf returns the seats attached to err, if any
func SeatsOf(err error) []string {
	var ie *InventoryError
	if errors.As(err, &ie) {
		return ie.Seats
	}
	return nil
}

// IsReselect reports whether the correct recovery is to re-render the seat map
// and let the user pick again.
func IsReselect(err error) bool {
	switch KindOf(err) {
	case KindSeatConflict, KindOwnerMismatch, KindHoldNotFound, KindHoldExpired:
		return true
	}
	return false
}
