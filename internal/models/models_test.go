package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSlotSelectable(t *testing.T) {
	assert.True(t, TimeSlot{Time: "09:00", Employees: []string{"e1"}}.Selectable())
	assert.False(t, TimeSlot{Time: "09:00"}.Selectable())
	assert.False(t, TimeSlot{Time: "09:00", Employees: []string{"e1"}, OccupiedByClient: true}.Selectable())
}

func TestAvailabilityResponseNormalize(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		resp := AvailabilityResponse{AvailableDates: []DayAvailability{
			{Date: "2024-06-01", TimeSlots: []TimeSlot{{Time: "09:00"}}},
			{Date: "2024-06-02T00:00:00-03:00", TimeSlots: []TimeSlot{{Time: "23:59"}}},
		}}
		require.NoError(t, resp.Normalize())
		assert.Equal(t, "2024-06-02", resp.AvailableDates[1].Date)

		day, ok := resp.Day("2024-06-02")
		require.True(t, ok)
		_, ok = day.Slot("23:59")
		assert.True(t, ok)
	})

	tests := []struct {
		name string
		resp AvailabilityResponse
	}{
		{"bad date", AvailabilityResponse{AvailableDates: []DayAvailability{{Date: "01/06/2024"}}}},
		{"bad date suffix", AvailabilityResponse{AvailableDates: []DayAvailability{{Date: "2024-06-01 09:00"}}}},
		{"unpadded time", AvailabilityResponse{AvailableDates: []DayAvailability{{Date: "2024-06-01", TimeSlots: []TimeSlot{{Time: "9:00"}}}}}},
		{"out of range time", AvailabilityResponse{AvailableDates: []DayAvailability{{Date: "2024-06-01", TimeSlots: []TimeSlot{{Time: "24:10"}}}}}},
		{"duplicate date", AvailabilityResponse{AvailableDates: []DayAvailability{{Date: "2024-06-01"}, {Date: "2024-06-01T00:00:00Z"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.resp.Normalize(), ErrInvalidPayload)
		})
	}
}

func TestNilResponseDay(t *testing.T) {
	var resp *AvailabilityResponse
	_, ok := resp.Day("2024-06-01")
	assert.False(t, ok)
}
