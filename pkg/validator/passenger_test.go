package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPassenger struct {
	Name   string `validate:"required,min=2"`
	Gender string `validate:"required,oneof=male female other"`
	Mobile string `validate:"required,lk_mobile"`
	Email  string `validate:"omitempty,email"`
}

func TestPassengerValidator_Valid(t *testing.T) {
	v := NewPassengerValidator()

	err := v.Struct(testPassenger{Name: "Nimal", Gender: "male", Mobile: "077 123 4567"})
	assert.NoError(t, err)
}

func TestPassengerValidator_CollectsFieldErrors(t *testing.T) {
	v := NewPassengerValidator()

	err := v.Struct(testPassenger{Name: "N", Gender: "robot", Mobile: "0731234567", Email: "nope"})
	require.Error(t, err)

	var fieldErrs ValidationErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Len(t, fieldErrs, 4)

	rules := map[string]string{}
	for _, fe := range fieldErrs {
		rules[fe.Field] = fe.Rule
	}
	assert.Equal(t, "min", rules["testPassenger.Name"])
	assert.Equal(t, "oneof", rules["testPassenger.Gender"])
	assert.Equal(t, MobileTag, rules["testPassenger.Mobile"])
	assert.Equal(t, "email", rules["testPassenger.Email"])
	assert.Contains(t, err.Error(), "valid Sri Lankan mobile number")
}

func TestPassengerValidator_Slice(t *testing.T) {
	v := NewPassengerValidator()

	err := v.Slice("passengers", []interface{}{
		testPassenger{Name: "Nimal", Gender: "male", Mobile: "0771234567"},
		testPassenger{Name: "Kamala", Gender: "female", Mobile: ""},
	})
	require.Error(t, err)

	var fieldErrs ValidationErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "passengers[1].Mobile", fieldErrs[0].Field)
	assert.Equal(t, "required", fieldErrs[0].Rule)

	assert.NoError(t, v.Slice("passengers", []interface{}{
		testPassenger{Name: "Nimal", Gender: "male", Mobile: "0771234567"},
	}))
}

func TestRegisterMobileRule(t *testing.T) {
	engine := validator.New()
	require.NoError(t, RegisterMobileRule(engine))

	assert.NoError(t, engine.Var("0771234567", MobileTag))
	assert.Error(t, engine.Var("12345", MobileTag))
}

func TestNormalizeMobile(t *testing.T) {
	v := NewPassengerValidator()
	assert.Equal(t, "0771234567", v.NormalizeMobile("+94 77 123 4567"))
	assert.Equal(t, "bad", v.NormalizeMobile("bad"))
}
