package core

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// NewDeviceIdentity returns a fresh identity for a new calling context.
func NewDeviceIdentity(generator IDGenerator) DeviceIdentity {
	if generator == nil {
		generator = UUIDGenerator{}
	}
	return DeviceIdentity{DeviceID: generator.NewID()}
}

type structValidator struct {
	validate *validator.Validate
}

func NewStructValidator() StructValidator {
	return &structValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Struct reports the first failing field as an InvalidInputError.
func (v *structValidator) Struct(value any) error {
	if v == nil || v.validate == nil {
		return nil
	}
	err := v.validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		reason := "failed " + first.Tag()
		if param := strings.TrimSpace(first.Param()); param != "" {
			reason += "=" + param
		}
		return &InvalidInputError{Field: first.Namespace(), Reason: reason}
	}
	return &InvalidInputError{Reason: err.Error()}
}
