package util

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scheduleFields struct {
	Date string `validate:"required,resdate"`
	Time string `validate:"required,restime"`
}

func TestReservationRules(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterReservationRules(v))

	tests := []struct {
		name  string
		date  string
		time  string
		valid bool
	}{
		{"valid slot", "21/06/2025", "14:30", true},
		{"midnight", "01/01/2026", "00:00", true},
		{"last minute of the day", "31/12/2025", "23:59", true},
		{"american date order", "06/21/2025", "14:30", false},
		{"iso date", "2025-06-21", "14:30", false},
		{"nonexistent date", "31/02/2025", "14:30", false},
		{"hour out of range", "21/06/2025", "24:00", false},
		{"minute out of range", "21/06/2025", "14:60", false},
		{"missing leading zero", "21/06/2025", "9:30", false},
		{"time with seconds", "21/06/2025", "14:30:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCtx(context.Background(), v, scheduleFields{Date: tt.date, Time: tt.time})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
