package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MobileTag is the struct tag that checks a Sri Lankan mobile number
const MobileTag = "lk_mobile"

// FieldError describes one rejected field
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationErrors is returned by PassengerValidator when fields are rejected
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, f := range e {
		parts = append(parts, f.Message)
	}
	return strings.Join(parts, "; ")
}

// PassengerValidator validates passenger and contact details using struct tags
type PassengerValidator struct {
	validate *validator.Validate
	phones   *PhoneValidator
}

// NewPassengerValidator creates a validator with the lk_mobile rule registered
func NewPassengerValidator() *PassengerValidator {
	v := &PassengerValidator{
		validate: validator.New(),
		phones:   NewPhoneValidator(),
	}
	// registration only fails for an empty tag or nil func
	_ = RegisterMobileRule(v.validate)
	return v
}

// RegisterMobileRule adds the lk_mobile rule to an existing validator engine,
// such as gin's binding validator
func RegisterMobileRule(v *validator.Validate) error {
	phones := NewPhoneValidator()
	return v.RegisterValidation(MobileTag, func(fl validator.FieldLevel) bool {
		return phones.IsValid(fl.Field().String())
	})
}

// Struct validates any tagged struct and flattens the failures
func (v *PassengerValidator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, FieldError{
			Field:   fe.Namespace(),
			Rule:    fe.Tag(),
			Message: describe(fe),
		})
	}
	return out
}

// Slice validates each element of a slice, prefixing field names with the index
func (v *PassengerValidator) Slice(name string, items []interface{}) error {
	var out ValidationErrors
	for i, item := range items {
		err := v.Struct(item)
		if err == nil {
			continue
		}
		var fieldErrs ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			fe.Field = fmt.Sprintf("%s[%d].%s", name, i, fe.Field[strings.Index(fe.Field, ".")+1:])
			fe.Message = fmt.Sprintf("%s[%d]: %s", name, i, fe.Message)
			out = append(out, fe)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeMobile returns the digits-only form of a valid mobile number
func (v *PassengerValidator) NormalizeMobile(phone string) string {
	if sanitized, err := v.phones.Validate(phone); err == nil {
		return sanitized
	}
	return phone
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case MobileTag:
		return fmt.Sprintf("%s must be a valid Sri Lankan mobile number", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
