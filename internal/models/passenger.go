package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Passenger is one traveller of a booking. SeatCode is assigned on confirmation
// in the order of the hold's seats.
type Passenger struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Age      int    `json:"age" validate:"gte=0,lte=120"`
	Gender   string `json:"gender" validate:"required,oneof=male female other"`
	Mobile   string `json:"mobile" validate:"required,lk_mobile"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	SeatCode string `json:"seat_code,omitempty"`
}

// ContactPerson is who the operator reaches about the booking
type ContactPerson struct {
	Name   string `json:"name" validate:"required,min=2,max=100"`
	Mobile string `json:"mobile" validate:"required,lk_mobile"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
}

// PassengerList is stored as JSONB
type PassengerList []Passenger

// ============================================================================
// JSONB SCANNER/VALUER IMPLEMENTATIONS
// ============================================================================

func (p PassengerList) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PassengerList) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for PassengerList")
	}
	return json.Unmarshal(bytes, p)
}

func (c ContactPerson) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *ContactPerson) Scan(value interface{}) error {
	if value == nil {
		*c = ContactPerson{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for ContactPerson")
	}
	return json.Unmarshal(bytes, c)
}
