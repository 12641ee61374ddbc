package util

import (
	"context"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterReservationRules adds the scheduling formats the mobile forms
// produce: resdate (DD/MM/YYYY, a real calendar date) and restime (HH:MM,
// 24-hour clock).
func RegisterReservationRules(v *validator.Validate) error {
	if err := v.RegisterValidation("resdate", validReservationDate); err != nil {
		return err
	}
	return v.RegisterValidation("restime", validReservationTime)
}

var reservationTimeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

func validReservationDate(fl validator.FieldLevel) bool {
	_, err := time.Parse("02/01/2006", fl.Field().String())
	return err == nil
}

func validReservationTime(fl validator.FieldLevel) bool {
	return reservationTimeRe.MatchString(fl.Field().String())
}

// ValidateCtx executes v.StructCtx — kept as the single entry point so every
// handler validates the same way.
func ValidateCtx(ctx context.Context, v *validator.Validate, req any) error {
	return v.StructCtx(ctx, req)
}
